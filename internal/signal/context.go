package signal

import "sync"

// Context is handed to every PollChanges call. Producers register its
// listener so they can wake the poller once new mutations arrive.
type Context struct {
	listener Listener
}

// NewContext returns a context waking l.
func NewContext(l Listener) *Context {
	return &Context{listener: l}
}

// Noop returns a context whose listener ignores wake-ups.
func Noop() *Context {
	return &Context{listener: ListenerFunc(func() {})}
}

// Listener returns the listener of the current poll.
func (cx *Context) Listener() Listener {
	if cx == nil || cx.listener == nil {
		return ListenerFunc(func() {})
	}
	return cx.listener
}

// Slot remembers the most recently registered listener of a producer.
type Slot struct {
	mu       sync.Mutex
	listener Listener
}

// Register replaces the remembered listener with the one of cx.
func (s *Slot) Register(cx *Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = cx.Listener()
}

// Wake notifies the remembered listener, if any.
func (s *Slot) Wake() {
	s.mu.Lock()
	l := s.listener
	s.mu.Unlock()

	if l != nil {
		l.Wake()
	}
}
