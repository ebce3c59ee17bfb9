package fork

import (
	"sync/atomic"

	"github.com/roach88/incr/internal/change"
	"github.com/roach88/incr/internal/collection"
	"github.com/roach88/incr/internal/contract"
	"github.com/roach88/incr/internal/signal"
)

// Fork is one consumer of a shared computation. It is itself a collection.
//
// A Fork must be closed when no longer polled; an open consumer that stops
// polling makes the next cycle of its siblings panic.
type Fork[K comparable, V comparable] struct {
	arena  *Arena
	node   NodeID
	id     ConsumerID
	closed atomic.Bool
}

// New creates a fork node over upstream and returns its first consumer.
func New[K comparable, V comparable](a *Arena, label string, upstream collection.Collection[K, V]) *Fork[K, V] {
	n := newNode(label, upstream, a.metrics)
	id := a.insert(n, label)
	return &Fork[K, V]{arena: a, node: id, id: n.register(false)}
}

func (f *Fork[K, V]) get() *node[K, V] {
	if f.closed.Load() {
		contract.Panic(contract.CodeClosedHandle, "fork consumer used after close", nil)
	}
	return lookup[K, V](f.arena, f.node)
}

// Clone registers a new consumer of the same node. The clone receives the
// full current state as inserts on its first poll.
func (f *Fork[K, V]) Clone() *Fork[K, V] {
	return f.clone(false)
}

// CloneStatic registers a consumer that never receives results. It keeps
// the node alive without taking part in cycles.
func (f *Fork[K, V]) CloneStatic() *Fork[K, V] {
	return f.clone(true)
}

func (f *Fork[K, V]) clone(static bool) *Fork[K, V] {
	n := f.get()
	f.arena.retain(f.node)
	return &Fork[K, V]{arena: f.arena, node: f.node, id: n.register(static)}
}

// PollChanges returns this consumer's result of the current cycle,
// computing it first if no result is pending.
func (f *Fork[K, V]) PollChanges(cx *signal.Context) (collection.Query[K, change.ValueChange[V]], collection.Query[K, V]) {
	return f.get().poll(f.id, cx)
}

// Request forwards r to the shared upstream.
func (f *Fork[K, V]) Request(r collection.Request) {
	f.get().request(r)
}

func (f *Fork[K, V]) Op() collection.Op { return collection.OpFork }

// State returns the cycle state of the node.
func (f *Fork[K, V]) State() State {
	return State(f.get().state.Load())
}

// Node returns the node address.
func (f *Fork[K, V]) Node() NodeID { return f.node }

// Consumer returns the consumer id within the node.
func (f *Fork[K, V]) Consumer() ConsumerID { return f.id }

// Close removes this consumer. Closing twice is a no-op.
func (f *Fork[K, V]) Close() {
	if f.closed.Swap(true) {
		return
	}
	lookup[K, V](f.arena, f.node).unregister(f.id)
	f.arena.release(f.node)
}
