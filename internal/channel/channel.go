// Package channel implements the mutation channel: the boundary between
// imperative writers and reactive observers.
//
// A writer locks the channel, sends any number of per-key changes (merged
// losslessly into one pending batch) and unlocks it, which wakes the
// registered reader. The reader drains the whole pending batch in one poll.
// Closing the sender marks the source as gone; the reader then observes
// StatusClosed instead of waiting forever.
package channel

import (
	"sync"

	"github.com/roach88/incr/internal/change"
	"github.com/roach88/incr/internal/signal"
)

// Status is the outcome of a receiver poll.
type Status int

const (
	// StatusPending means no change is buffered and the source is alive.
	StatusPending Status = iota
	// StatusReady means a non-empty batch was drained.
	StatusReady
	// StatusClosed means the source is gone and nothing is buffered.
	StatusClosed
)

// String returns the lowercase status name.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusReady:
		return "ready"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type state[K comparable, V comparable] struct {
	mu             sync.Mutex
	pending        change.Batch[K, V]
	waiter         signal.Slot
	senderClosed   bool
	receiverClosed bool
}

// Sender is the writer side of a mutation channel.
type Sender[K comparable, V comparable] struct {
	st *state[K, V]
}

// Receiver is the reader side of a mutation channel.
type Receiver[K comparable, V comparable] struct {
	st *state[K, V]
}

// New creates a connected sender and receiver.
func New[K comparable, V comparable]() (*Sender[K, V], *Receiver[K, V]) {
	st := &state[K, V]{pending: change.NewBatch[K, V](0)}
	return &Sender[K, V]{st: st}, &Receiver[K, V]{st: st}
}

// Lock acquires the send lock. Every Send must happen between Lock and Unlock.
func (s *Sender[K, V]) Lock() {
	s.st.mu.Lock()
}

// Send merges c into the pending batch. The caller must hold the send lock.
func (s *Sender[K, V]) Send(k K, c change.ValueChange[V]) {
	s.st.pending.Merge(k, c)
}

// Unlock releases the send lock and wakes the reader if anything is pending.
func (s *Sender[K, V]) Unlock() {
	wake := len(s.st.pending) > 0
	s.st.mu.Unlock()

	if wake {
		s.st.waiter.Wake()
	}
}

// SendOne sends a single change under its own lock.
func (s *Sender[K, V]) SendOne(k K, c change.ValueChange[V]) {
	s.Lock()
	defer s.Unlock()
	s.Send(k, c)
}

// IsClosed reports whether the receiver detached.
func (s *Sender[K, V]) IsClosed() bool {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	return s.st.receiverClosed
}

// Close marks the source as gone and wakes the reader.
func (s *Sender[K, V]) Close() {
	s.st.mu.Lock()
	s.st.senderClosed = true
	s.st.mu.Unlock()

	s.st.waiter.Wake()
}

// Poll registers cx for wake-ups and drains the pending batch.
func (r *Receiver[K, V]) Poll(cx *signal.Context) (change.Batch[K, V], Status) {
	r.st.waiter.Register(cx)

	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	if len(r.st.pending) > 0 {
		out := r.st.pending
		r.st.pending = change.NewBatch[K, V](0)
		return out, StatusReady
	}
	if r.st.senderClosed {
		return change.NewBatch[K, V](0), StatusClosed
	}
	return change.NewBatch[K, V](0), StatusPending
}

// HasChange reports whether a poll would return StatusReady.
func (r *Receiver[K, V]) HasChange() bool {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	return len(r.st.pending) > 0
}

// Close detaches the receiver. Buffered changes are dropped and the sender
// reports IsClosed so its owner can stop sending.
func (r *Receiver[K, V]) Close() {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	r.st.receiverClosed = true
	r.st.pending = change.NewBatch[K, V](0)
}
