package driver

import (
	"errors"
	"fmt"

	"github.com/roach88/incr/internal/contract"
)

// CyclesExceededError is returned when a driver exceeds its cycle limit.
type CyclesExceededError struct {
	Cycles int64 // Cycle that would have run
	Limit  int64 // Maximum allowed cycles
}

// Error implements the error interface.
func (e *CyclesExceededError) Error() string {
	return fmt.Sprintf("driver exceeded max cycles: %d cycles > %d limit", e.Cycles, e.Limit)
}

// IsCyclesExceeded returns true if the error is a CyclesExceededError.
// Uses errors.As to handle wrapped errors.
func IsCyclesExceeded(err error) bool {
	var ce *CyclesExceededError
	return errors.As(err, &ce)
}

// CycleError wraps a contract violation that aborted a cycle.
type CycleError struct {
	Cycle     int64
	Violation *contract.Violation
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle %d aborted: %v", e.Cycle, e.Violation)
}

// Unwrap returns the violation so contract.Is matches.
func (e *CycleError) Unwrap() error {
	return e.Violation
}
