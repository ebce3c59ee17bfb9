package relation

import (
	"iter"
	"maps"
	"slices"

	"github.com/roach88/incr/internal/collection"
)

// reverseIndex maps a one-key to the set of its many-keys.
type reverseIndex[O comparable, M comparable] interface {
	add(o O, m M)
	// remove reports whether o had a bucket holding m. Empty buckets are
	// dropped.
	remove(o O, m M) bool
	members(o O) iter.Seq[M]
	ones() iter.Seq[O]
	shrink()
}

type hashIndex[O comparable, M comparable] struct {
	buckets map[O]*bucket[M]
}

func newHashIndex[O comparable, M comparable]() *hashIndex[O, M] {
	return &hashIndex[O, M]{buckets: make(map[O]*bucket[M])}
}

func (x *hashIndex[O, M]) add(o O, m M) {
	b, ok := x.buckets[o]
	if !ok {
		b = &bucket[M]{}
		x.buckets[o] = b
	}
	b.add(m)
}

func (x *hashIndex[O, M]) remove(o O, m M) bool {
	b, ok := x.buckets[o]
	if !ok || !b.remove(m) {
		return false
	}
	if b.len() == 0 {
		delete(x.buckets, o)
	}
	return true
}

func (x *hashIndex[O, M]) members(o O) iter.Seq[M] {
	b, ok := x.buckets[o]
	if !ok {
		return func(func(M) bool) {}
	}
	return b.members()
}

func (x *hashIndex[O, M]) ones() iter.Seq[O] {
	return maps.Keys(x.buckets)
}

func (x *hashIndex[O, M]) shrink() {
	x.buckets = maps.Clone(x.buckets)
	if x.buckets == nil {
		x.buckets = make(map[O]*bucket[M])
	}
	for _, b := range x.buckets {
		b.shrink()
	}
}

type denseSlot[O comparable, M comparable] struct {
	one     O
	members *bucket[M]
}

// denseIndex addresses buckets by the linear index of the one-key.
type denseIndex[O collection.Linear, M comparable] struct {
	slots []denseSlot[O, M]
}

func newDenseIndex[O collection.Linear, M comparable]() *denseIndex[O, M] {
	return &denseIndex[O, M]{}
}

func (x *denseIndex[O, M]) add(o O, m M) {
	i := int(o.LinearIndex())
	if i >= len(x.slots) {
		x.slots = append(x.slots, make([]denseSlot[O, M], i+1-len(x.slots))...)
	}
	slot := &x.slots[i]
	if slot.members == nil {
		slot.one = o
		slot.members = &bucket[M]{}
	}
	slot.members.add(m)
}

func (x *denseIndex[O, M]) remove(o O, m M) bool {
	i := int(o.LinearIndex())
	if i >= len(x.slots) {
		return false
	}
	slot := &x.slots[i]
	if slot.members == nil || !slot.members.remove(m) {
		return false
	}
	if slot.members.len() == 0 {
		*slot = denseSlot[O, M]{}
	}
	return true
}

func (x *denseIndex[O, M]) members(o O) iter.Seq[M] {
	i := int(o.LinearIndex())
	if i >= len(x.slots) || x.slots[i].members == nil {
		return func(func(M) bool) {}
	}
	return x.slots[i].members.members()
}

func (x *denseIndex[O, M]) ones() iter.Seq[O] {
	return func(yield func(O) bool) {
		for _, slot := range x.slots {
			if slot.members == nil {
				continue
			}
			if !yield(slot.one) {
				return
			}
		}
	}
}

func (x *denseIndex[O, M]) shrink() {
	n := len(x.slots)
	for n > 0 && x.slots[n-1].members == nil {
		n--
	}
	x.slots = slices.Clip(x.slots[:n])
	for _, slot := range x.slots {
		if slot.members != nil {
			slot.members.shrink()
		}
	}
}
