package collection

import (
	"iter"

	"github.com/roach88/incr/internal/change"
	"github.com/roach88/incr/internal/signal"
)

// Map transforms every value with f. f must be pure: it is replayed on old
// values and may run more than once per key and poll.
func Map[K comparable, V, U comparable](upstream Collection[K, V], f func(K, V) U) Collection[K, U] {
	return &mapNode[K, V, U]{upstream: upstream, f: f}
}

type mapNode[K comparable, V, U comparable] struct {
	upstream Collection[K, V]
	f        func(K, V) U
}

func (n *mapNode[K, V, U]) PollChanges(cx *signal.Context) (Query[K, change.ValueChange[U]], Query[K, U]) {
	changes, view := n.upstream.PollChanges(cx)
	return mappedChanges[K, V, U]{q: changes, f: n.f}, mappedView[K, V, U]{q: view, f: n.f}
}

func (n *mapNode[K, V, U]) Request(r Request) { n.upstream.Request(r) }

func (n *mapNode[K, V, U]) Op() Op { return OpMap }

type mappedView[K comparable, V, U comparable] struct {
	q Query[K, V]
	f func(K, V) U
}

func (m mappedView[K, V, U]) Access(k K) (U, bool) {
	v, ok := m.q.Access(k)
	if !ok {
		var zero U
		return zero, false
	}
	return m.f(k, v), true
}

func (m mappedView[K, V, U]) IterKeyValue() iter.Seq2[K, U] {
	return func(yield func(K, U) bool) {
		for k, v := range m.q.IterKeyValue() {
			if !yield(k, m.f(k, v)) {
				return
			}
		}
	}
}

type mappedChanges[K comparable, V, U comparable] struct {
	q Query[K, change.ValueChange[V]]
	f func(K, V) U
}

func (m mappedChanges[K, V, U]) apply(k K, c change.ValueChange[V]) change.ValueChange[U] {
	return change.Map(c, func(v V) U { return m.f(k, v) })
}

func (m mappedChanges[K, V, U]) Access(k K) (change.ValueChange[U], bool) {
	c, ok := m.q.Access(k)
	if !ok {
		return change.ValueChange[U]{}, false
	}
	return m.apply(k, c), true
}

func (m mappedChanges[K, V, U]) IterKeyValue() iter.Seq2[K, change.ValueChange[U]] {
	return func(yield func(K, change.ValueChange[U]) bool) {
		for k, c := range m.q.IterKeyValue() {
			if !yield(k, m.apply(k, c)) {
				return
			}
		}
	}
}

// FilterMap transforms values with f, which may exclude a value by
// returning false. A value that becomes excluded is reported as a removal.
func FilterMap[K comparable, V, U comparable](upstream Collection[K, V], f func(K, V) (U, bool)) Collection[K, U] {
	return &filterMapNode[K, V, U]{upstream: upstream, f: f}
}

// Filter keeps the values satisfying keep.
func Filter[K comparable, V comparable](upstream Collection[K, V], keep func(K, V) bool) Collection[K, V] {
	return FilterMap(upstream, func(k K, v V) (V, bool) { return v, keep(k, v) })
}

type filterMapNode[K comparable, V, U comparable] struct {
	upstream Collection[K, V]
	f        func(K, V) (U, bool)
}

func (n *filterMapNode[K, V, U]) PollChanges(cx *signal.Context) (Query[K, change.ValueChange[U]], Query[K, U]) {
	changes, view := n.upstream.PollChanges(cx)
	return filteredChanges[K, V, U]{q: changes, f: n.f}, filteredView[K, V, U]{q: view, f: n.f}
}

func (n *filterMapNode[K, V, U]) Request(r Request) { n.upstream.Request(r) }

func (n *filterMapNode[K, V, U]) Op() Op { return OpFilterMap }

type filteredView[K comparable, V, U comparable] struct {
	q Query[K, V]
	f func(K, V) (U, bool)
}

func (m filteredView[K, V, U]) Access(k K) (U, bool) {
	v, ok := m.q.Access(k)
	if !ok {
		var zero U
		return zero, false
	}
	return m.f(k, v)
}

func (m filteredView[K, V, U]) IterKeyValue() iter.Seq2[K, U] {
	return func(yield func(K, U) bool) {
		for k, v := range m.q.IterKeyValue() {
			u, ok := m.f(k, v)
			if !ok {
				continue
			}
			if !yield(k, u) {
				return
			}
		}
	}
}

type filteredChanges[K comparable, V, U comparable] struct {
	q Query[K, change.ValueChange[V]]
	f func(K, V) (U, bool)
}

func (m filteredChanges[K, V, U]) apply(k K, c change.ValueChange[V]) (change.ValueChange[U], bool) {
	return change.FilterMap(c, func(v V) (U, bool) { return m.f(k, v) })
}

func (m filteredChanges[K, V, U]) Access(k K) (change.ValueChange[U], bool) {
	c, ok := m.q.Access(k)
	if !ok {
		return change.ValueChange[U]{}, false
	}
	return m.apply(k, c)
}

func (m filteredChanges[K, V, U]) IterKeyValue() iter.Seq2[K, change.ValueChange[U]] {
	return func(yield func(K, change.ValueChange[U]) bool) {
		for k, c := range m.q.IterKeyValue() {
			out, ok := m.apply(k, c)
			if !ok {
				continue
			}
			if !yield(k, out) {
				return
			}
		}
	}
}

// Diff drops redundant deltas whose new and old values are equal.
func Diff[K comparable, V comparable](upstream Collection[K, V]) Collection[K, V] {
	return &diffNode[K, V]{upstream: upstream}
}

type diffNode[K comparable, V comparable] struct {
	upstream Collection[K, V]
}

func (n *diffNode[K, V]) PollChanges(cx *signal.Context) (Query[K, change.ValueChange[V]], Query[K, V]) {
	changes, view := n.upstream.PollChanges(cx)
	return diffChanges[K, V]{q: changes}, view
}

func (n *diffNode[K, V]) Request(r Request) { n.upstream.Request(r) }

func (n *diffNode[K, V]) Op() Op { return OpDiff }

type diffChanges[K comparable, V comparable] struct {
	q Query[K, change.ValueChange[V]]
}

func (d diffChanges[K, V]) Access(k K) (change.ValueChange[V], bool) {
	c, ok := d.q.Access(k)
	if !ok || c.IsRedundant() {
		return change.ValueChange[V]{}, false
	}
	return c, true
}

func (d diffChanges[K, V]) IterKeyValue() iter.Seq2[K, change.ValueChange[V]] {
	return func(yield func(K, change.ValueChange[V]) bool) {
		for k, c := range d.q.IterKeyValue() {
			if c.IsRedundant() {
				continue
			}
			if !yield(k, c) {
				return
			}
		}
	}
}
