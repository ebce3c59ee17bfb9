// Package signal provides the wake-up plumbing between writers and the
// polling driver.
//
// Nothing in the engine suspends mid-computation, so there is no waker from
// an async runtime. A producer only needs to tell whoever polls it that new
// raw mutations arrived. A Listener receives that notification; a Context
// carries the listener of the current poll down the collection graph, and
// producers remember it in a Slot.
package signal

import "sync"

// Listener is notified when a producer has new data.
type Listener interface {
	Wake()
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func()

// Wake calls f.
func (f ListenerFunc) Wake() { f() }

// Signal is a coalescing wake-up flag. Any number of Wake calls between two
// receives on Wait collapse into one notification.
//
// Thread-safety: Wake and Close may be called from any goroutine.
type Signal struct {
	mu     sync.Mutex
	ch     chan struct{} // buffered, size 1
	closed bool
}

// New creates an unset signal.
func New() *Signal {
	return &Signal{ch: make(chan struct{}, 1)}
}

// Wake sets the signal without blocking. Waking a closed signal is a no-op.
func (s *Signal) Wake() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

// Wait returns a channel that receives when the signal was set. The channel
// is closed once the signal is closed.
func (s *Signal) Wait() <-chan struct{} {
	return s.ch
}

// Pending reports whether the signal is set and clears it.
func (s *Signal) Pending() bool {
	select {
	case _, ok := <-s.ch:
		return ok
	default:
		return false
	}
}

// Close releases any waiter. Subsequent Wake calls are ignored.
func (s *Signal) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// Set is a listener list woken together.
type Set struct {
	mu        sync.Mutex
	next      uint64
	listeners map[uint64]Listener
}

// Add registers l and returns a function removing it again.
func (s *Set) Add(l Listener) (remove func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listeners == nil {
		s.listeners = make(map[uint64]Listener)
	}
	id := s.next
	s.next++
	s.listeners[id] = l
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// Wake notifies every registered listener.
func (s *Set) Wake() {
	s.mu.Lock()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l.Wake()
	}
}

// Len returns the number of registered listeners.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}
