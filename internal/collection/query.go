package collection

import (
	"iter"
	"maps"

	"github.com/roach88/incr/internal/change"
)

// Query is a keyed read-only lookup. Keys appear at most once in IterKeyValue.
type Query[K comparable, V any] interface {
	Access(k K) (V, bool)
	IterKeyValue() iter.Seq2[K, V]
}

// MultiQuery is a one-key to many-members lookup.
type MultiQuery[O comparable, M comparable] interface {
	AccessMulti(o O) iter.Seq[M]
	IterKeyInMultiCollection() iter.Seq[O]
}

// Linear is implemented by dense integer keys. Dense indexes use
// LinearIndex as a slice offset.
type Linear interface {
	comparable
	LinearIndex() uint32
}

// HashQuery adapts a map to Query.
type HashQuery[K comparable, V any] map[K]V

// Access returns the value stored for k.
func (q HashQuery[K, V]) Access(k K) (V, bool) {
	v, ok := q[k]
	return v, ok
}

// IterKeyValue iterates the map in unspecified order.
func (q HashQuery[K, V]) IterKeyValue() iter.Seq2[K, V] {
	return maps.All(q)
}

type emptyQuery[K comparable, V any] struct{}

func (emptyQuery[K, V]) Access(K) (V, bool) {
	var zero V
	return zero, false
}

func (emptyQuery[K, V]) IterKeyValue() iter.Seq2[K, V] {
	return func(func(K, V) bool) {}
}

// Empty returns a query without entries.
func Empty[K comparable, V any]() Query[K, V] {
	return emptyQuery[K, V]{}
}

// Collect copies q into a map.
func Collect[K comparable, V any](q Query[K, V]) map[K]V {
	return maps.Collect(q.IterKeyValue())
}

// Keys returns the keys of q in unspecified order.
func Keys[K comparable, V any](q Query[K, V]) []K {
	var out []K
	for k := range q.IterKeyValue() {
		out = append(out, k)
	}
	return out
}

// ToBatch returns the changes of q as a batch. A batch is returned as-is.
func ToBatch[K comparable, V comparable](q Query[K, change.ValueChange[V]]) change.Batch[K, V] {
	if b, ok := q.(change.Batch[K, V]); ok {
		return b
	}
	out := change.NewBatch[K, V](0)
	for k, c := range q.IterKeyValue() {
		out[k] = c
	}
	return out
}

type previousQuery[K comparable, V comparable] struct {
	view    Query[K, V]
	changes Query[K, change.ValueChange[V]]
}

// Previous reconstructs the state before changes were applied to view.
func Previous[K comparable, V comparable](view Query[K, V], changes Query[K, change.ValueChange[V]]) Query[K, V] {
	return previousQuery[K, V]{view: view, changes: changes}
}

func (q previousQuery[K, V]) Access(k K) (V, bool) {
	if c, ok := q.changes.Access(k); ok {
		return c.OldValue()
	}
	return q.view.Access(k)
}

func (q previousQuery[K, V]) IterKeyValue() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for k, v := range q.view.IterKeyValue() {
			if _, changed := q.changes.Access(k); changed {
				continue
			}
			if !yield(k, v) {
				return
			}
		}
		for k, c := range q.changes.IterKeyValue() {
			if old, ok := c.OldValue(); ok {
				if !yield(k, old) {
					return
				}
			}
		}
	}
}
