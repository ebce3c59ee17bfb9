package change

import (
	"iter"
	"maps"
)

// Batch is the set of changes produced by one poll cycle, keyed uniquely.
type Batch[K comparable, V comparable] map[K]ValueChange[V]

// NewBatch returns an empty batch with room for capacity keys.
func NewBatch[K comparable, V comparable](capacity int) Batch[K, V] {
	return make(Batch[K, V], capacity)
}

// Merge folds c into the entry for k, deleting the entry if the changes
// cancel out.
func (b Batch[K, V]) Merge(k K, c ValueChange[V]) {
	existing, ok := b[k]
	if !ok {
		b[k] = c
		return
	}
	if existing.Merge(c) {
		b[k] = existing
	} else {
		delete(b, k)
	}
}

// MergeBatch folds every change of later into b.
func (b Batch[K, V]) MergeBatch(later Batch[K, V]) {
	for k, c := range later {
		b.Merge(k, c)
	}
}

// Access returns the change recorded for k.
func (b Batch[K, V]) Access(k K) (ValueChange[V], bool) {
	c, ok := b[k]
	return c, ok
}

// IterKeyValue iterates the batch in unspecified order.
func (b Batch[K, V]) IterKeyValue() iter.Seq2[K, ValueChange[V]] {
	return maps.All(b)
}

// Len returns the number of changed keys.
func (b Batch[K, V]) Len() int { return len(b) }

// IsEmpty reports whether the batch holds no change.
func (b Batch[K, V]) IsEmpty() bool { return len(b) == 0 }

// Clone returns a shallow copy of b.
func (b Batch[K, V]) Clone() Batch[K, V] {
	if b == nil {
		return NewBatch[K, V](0)
	}
	return maps.Clone(b)
}

// WithoutRedundant returns a batch without redundant deltas. b is returned
// unchanged when it holds none.
func (b Batch[K, V]) WithoutRedundant() Batch[K, V] {
	redundant := 0
	for _, c := range b {
		if c.IsRedundant() {
			redundant++
		}
	}
	if redundant == 0 {
		return b
	}
	out := make(Batch[K, V], len(b)-redundant)
	for k, c := range b {
		if !c.IsRedundant() {
			out[k] = c
		}
	}
	return out
}

// Apply applies every change of b to mirror.
func (b Batch[K, V]) Apply(mirror map[K]V) {
	for k, c := range b {
		if v, ok := c.NewValue(); ok {
			mirror[k] = v
		} else {
			delete(mirror, k)
		}
	}
}

// FromSeq collects changes from an iterator, merging duplicate keys.
func FromSeq[K comparable, V comparable](seq iter.Seq2[K, ValueChange[V]]) Batch[K, V] {
	out := NewBatch[K, V](0)
	for k, c := range seq {
		out.Merge(k, c)
	}
	return out
}

// AsInserts returns a batch in which every pair of seq is a first insert. It
// is the "as if newly created" view handed to late-joining consumers.
func AsInserts[K comparable, V comparable](seq iter.Seq2[K, V]) Batch[K, V] {
	out := NewBatch[K, V](0)
	for k, v := range seq {
		out[k] = Insert(v)
	}
	return out
}
