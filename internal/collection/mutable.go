package collection

import (
	"iter"
	"maps"
	"sync"

	"github.com/roach88/incr/internal/change"
	"github.com/roach88/incr/internal/channel"
	"github.com/roach88/incr/internal/signal"
)

// Mutable is an in-memory source collection keyed by any comparable type.
// Writes update the state immediately and queue a change for the next poll.
//
// Thread-safety: writes may come from any goroutine; polling must happen on
// one goroutine at a time.
type Mutable[K comparable, V comparable] struct {
	mu   sync.RWMutex
	data map[K]V
	tx   *channel.Sender[K, V]
	rx   *channel.Receiver[K, V]

	closed bool
}

// NewMutable creates a source holding initial. The initial rows are
// reported as inserts on the first poll.
func NewMutable[K comparable, V comparable](initial map[K]V) *Mutable[K, V] {
	tx, rx := channel.New[K, V]()
	m := &Mutable[K, V]{data: make(map[K]V, len(initial)), tx: tx, rx: rx}
	for k, v := range initial {
		m.Set(k, v)
	}
	return m
}

// Set stores v under k and reports whether the state changed.
func (m *Mutable[K, V]) Set(k K, v V) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	old, had := m.data[k]
	if had && old == v {
		return false
	}
	m.data[k] = v

	m.tx.SendOne(k, change.Delta(v, old, had))
	return true
}

// Delete removes k and returns the removed value.
func (m *Mutable[K, V]) Delete(k K) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	old, had := m.data[k]
	if !had {
		return old, false
	}
	delete(m.data, k)

	m.tx.SendOne(k, change.Removed(old))
	return old, true
}

// Len returns the number of stored keys.
func (m *Mutable[K, V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// View returns a live view of the current state without draining changes.
func (m *Mutable[K, V]) View() Query[K, V] {
	return mutableView[K, V]{m: m}
}

// Close marks the source as gone.
func (m *Mutable[K, V]) Close() {
	m.tx.Close()
}

// Closed reports whether the source was closed and every change drained.
func (m *Mutable[K, V]) Closed() bool { return m.closed }

func (m *Mutable[K, V]) PollChanges(cx *signal.Context) (Query[K, change.ValueChange[V]], Query[K, V]) {
	batch, status := m.rx.Poll(cx)
	if status == channel.StatusClosed {
		m.closed = true
	}
	return batch, mutableView[K, V]{m: m}
}

func (m *Mutable[K, V]) Request(r Request) {}

func (m *Mutable[K, V]) Op() Op { return OpSource }

type mutableView[K comparable, V comparable] struct {
	m *Mutable[K, V]
}

func (v mutableView[K, V]) Access(k K) (V, bool) {
	v.m.mu.RLock()
	defer v.m.mu.RUnlock()
	val, ok := v.m.data[k]
	return val, ok
}

func (v mutableView[K, V]) IterKeyValue() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		// Snapshot so callers may access other views while iterating.
		v.m.mu.RLock()
		snapshot := maps.Clone(v.m.data)
		v.m.mu.RUnlock()

		for k, val := range snapshot {
			if !yield(k, val) {
				return
			}
		}
	}
}
