// Package storage holds the base columns of the engine: one backend per
// logical component, wrapped in a Column that turns every write into a
// ValueChange for its watchers.
package storage

import (
	"iter"
	"maps"
	"slices"
)

// Handle identifies a row in every column.
type Handle uint32

// LinearIndex returns the handle as a dense slice offset.
func (h Handle) LinearIndex() uint32 { return uint32(h) }

// Storage is a container for one column.
type Storage[V comparable] interface {
	Get(h Handle) (V, bool)
	Set(h Handle, v V) (prev V, hadPrev bool)
	Delete(h Handle) (V, bool)
	Iter() iter.Seq2[Handle, V]
	Len() int
	ShrinkToFit()
}

// Dense stores values in a slice indexed by handle. It suits columns where
// most handles carry a value.
type Dense[V comparable] struct {
	values  []V
	present []bool
	count   int
}

// NewDense returns an empty dense backend.
func NewDense[V comparable]() *Dense[V] {
	return &Dense[V]{}
}

// Get returns the value stored under h.
func (d *Dense[V]) Get(h Handle) (V, bool) {
	i := int(h)
	if i >= len(d.values) || !d.present[i] {
		var zero V
		return zero, false
	}
	return d.values[i], true
}

// Set stores v under h and returns the previous value, growing the slices as needed.
func (d *Dense[V]) Set(h Handle, v V) (V, bool) {
	i := int(h)
	if i >= len(d.values) {
		d.values = append(d.values, make([]V, i+1-len(d.values))...)
		d.present = append(d.present, make([]bool, i+1-len(d.present))...)
	}
	prev, had := d.values[i], d.present[i]
	d.values[i] = v
	if !had {
		d.present[i] = true
		d.count++
	}
	return prev, had
}

// Delete clears h and returns the removed value.
func (d *Dense[V]) Delete(h Handle) (V, bool) {
	var zero V
	i := int(h)
	if i >= len(d.values) || !d.present[i] {
		return zero, false
	}
	prev := d.values[i]
	d.values[i] = zero
	d.present[i] = false
	d.count--
	return prev, true
}

// Iter yields present values in handle order.
func (d *Dense[V]) Iter() iter.Seq2[Handle, V] {
	return func(yield func(Handle, V) bool) {
		for i, ok := range d.present {
			if !ok {
				continue
			}
			if !yield(Handle(i), d.values[i]) {
				return
			}
		}
	}
}

// Len returns the number of present values.
func (d *Dense[V]) Len() int { return d.count }

// ShrinkToFit drops trailing empty slots and spare capacity.
func (d *Dense[V]) ShrinkToFit() {
	n := len(d.present)
	for n > 0 && !d.present[n-1] {
		n--
	}
	d.values = slices.Clip(d.values[:n])
	d.present = slices.Clip(d.present[:n])
}

// Sparse stores values in a hash map. It suits columns where few handles
// carry a value.
type Sparse[V comparable] struct {
	values map[Handle]V
}

// NewSparse returns an empty sparse backend.
func NewSparse[V comparable]() *Sparse[V] {
	return &Sparse[V]{values: make(map[Handle]V)}
}

// Get returns the value stored under h.
func (s *Sparse[V]) Get(h Handle) (V, bool) {
	v, ok := s.values[h]
	return v, ok
}

// Set stores v under h and returns the previous value.
func (s *Sparse[V]) Set(h Handle, v V) (V, bool) {
	prev, had := s.values[h]
	s.values[h] = v
	return prev, had
}

// Delete removes h and returns the removed value.
func (s *Sparse[V]) Delete(h Handle) (V, bool) {
	prev, had := s.values[h]
	if had {
		delete(s.values, h)
	}
	return prev, had
}

// Iter yields stored values in map order.
func (s *Sparse[V]) Iter() iter.Seq2[Handle, V] {
	return maps.All(s.values)
}

// Len returns the number of stored values.
func (s *Sparse[V]) Len() int { return len(s.values) }

// ShrinkToFit reallocates the map at its current size.
func (s *Sparse[V]) ShrinkToFit() {
	s.values = maps.Clone(s.values)
	if s.values == nil {
		s.values = make(map[Handle]V)
	}
}
