package collection

import (
	"hash/maphash"
	"iter"

	"github.com/benbjohnson/immutable"

	"github.com/roach88/incr/internal/change"
)

// keyHasher hashes any comparable key for the persistent map.
type keyHasher[K comparable] struct {
	seed maphash.Seed
}

func (h keyHasher[K]) Hash(k K) uint32 {
	return uint32(maphash.Comparable(h.seed, k))
}

func (h keyHasher[K]) Equal(a, b K) bool {
	return a == b
}

// Snapshot is an immutable view. Apply returns a new snapshot and leaves
// the receiver untouched.
type Snapshot[K comparable, V comparable] struct {
	m *immutable.Map[K, V]
}

// NewSnapshot returns an empty snapshot.
func NewSnapshot[K comparable, V comparable]() Snapshot[K, V] {
	return Snapshot[K, V]{m: immutable.NewMap[K, V](keyHasher[K]{seed: maphash.MakeSeed()})}
}

// Apply returns the snapshot after batch.
func (s Snapshot[K, V]) Apply(batch change.Batch[K, V]) Snapshot[K, V] {
	m := s.m
	for k, c := range batch {
		if v, ok := c.NewValue(); ok {
			m = m.Set(k, v)
		} else {
			m = m.Delete(k)
		}
	}
	return Snapshot[K, V]{m: m}
}

// Access returns the value of k.
func (s Snapshot[K, V]) Access(k K) (V, bool) {
	return s.m.Get(k)
}

// IterKeyValue iterates the snapshot in unspecified order.
func (s Snapshot[K, V]) IterKeyValue() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		itr := s.m.Iterator()
		for !itr.Done() {
			k, v, _ := itr.Next()
			if !yield(k, v) {
				return
			}
		}
	}
}

// Len returns the number of entries.
func (s Snapshot[K, V]) Len() int {
	return s.m.Len()
}
