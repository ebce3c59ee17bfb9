package contract

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Code categorizes contract violations.
type Code string

const (
	// CodeDoubleRemove indicates a key removed twice without an insert in between.
	CodeDoubleRemove Code = "DOUBLE_REMOVE"

	// CodeForkUnconsumed indicates a fork cycle started while a consumer still
	// held the previous cycle's result.
	CodeForkUnconsumed Code = "FORK_UNCONSUMED"

	// CodeRelationMissing indicates relation bookkeeping referenced a one-key
	// bucket or member that was never registered.
	CodeRelationMissing Code = "RELATION_MISSING"

	// CodeWatchDetached indicates a watch group request for a consumer or
	// column that is no longer attached.
	CodeWatchDetached Code = "WATCH_DETACHED"

	// CodeClosedHandle indicates use of a fork consumer after Close.
	CodeClosedHandle Code = "CLOSED_HANDLE"

	// CodeUnknownKey indicates an upstream removed or updated a key it never
	// inserted.
	CodeUnknownKey Code = "UNKNOWN_KEY"
)

// Violation is the panic value raised for programmer-contract violations.
type Violation struct {
	// Code identifies the violation category.
	Code Code

	// Message is a human-readable description.
	Message string

	// Details contains additional context (keys, consumer ids, node ids).
	Details map[string]string
}

// Error implements the error interface so a recovered violation can be
// returned and matched with errors.As.
func (v *Violation) Error() string {
	if len(v.Details) == 0 {
		return fmt.Sprintf("%s: %s", v.Code, v.Message)
	}
	keys := make([]string, 0, len(v.Details))
	for k := range v.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+v.Details[k])
	}
	return fmt.Sprintf("%s: %s (%s)", v.Code, v.Message, strings.Join(parts, ", "))
}

// Panic raises a violation. It never returns.
func Panic(code Code, message string, details map[string]string) {
	panic(&Violation{Code: code, Message: message, Details: details})
}

// Panicf raises a violation with a formatted message and no details.
func Panicf(code Code, format string, args ...any) {
	panic(&Violation{Code: code, Message: fmt.Sprintf(format, args...)})
}

// FromRecovered converts a value returned by recover() into a *Violation.
// Returns nil, false for nil and for panics that are not violations.
func FromRecovered(r any) (*Violation, bool) {
	if r == nil {
		return nil, false
	}
	switch v := r.(type) {
	case *Violation:
		return v, true
	case error:
		var violation *Violation
		if errors.As(v, &violation) {
			return violation, true
		}
	}
	return nil, false
}

// Catch runs fn and returns the violation it raised, if any. Panics that are
// not violations are re-raised.
func Catch(fn func()) (v *Violation) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		violation, ok := FromRecovered(r)
		if !ok {
			panic(r)
		}
		v = violation
	}()
	fn()
	return nil
}

// Is reports whether err is a violation with the given code.
func Is(err error, code Code) bool {
	var v *Violation
	if errors.As(err, &v) {
		return v.Code == code
	}
	return false
}
