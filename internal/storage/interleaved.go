package storage

import (
	"fmt"
	"iter"
	"math/bits"
	"slices"
	"sync"
)

const maxInterleavedFields = 64

// Interleaved stores several fields of a row next to each other in one
// record slice. Each field is exposed as its own Storage through Field.
//
// Thread-safety: the record slice is shared by every field, so each field
// operation takes the table lock on its own.
type Interleaved[R any] struct {
	mu      sync.RWMutex
	rows    []R
	present []uint64
	fields  int
}

// NewInterleaved returns an empty table of records R.
func NewInterleaved[R any]() *Interleaved[R] {
	return &Interleaved[R]{}
}

// Rows returns the number of allocated records.
func (t *Interleaved[R]) Rows() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

// Field is one field of an interleaved record exposed as a column backend.
type Field[R any, V comparable] struct {
	table *Interleaved[R]
	bit   uint64
	ptr   func(*R) *V
}

// AddField registers a field of R located by ptr.
func AddField[R any, V comparable](t *Interleaved[R], ptr func(*R) *V) *Field[R, V] {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.fields >= maxInterleavedFields {
		panic(fmt.Sprintf("storage: interleaved table supports at most %d fields", maxInterleavedFields))
	}
	f := &Field[R, V]{table: t, bit: 1 << t.fields, ptr: ptr}
	t.fields++
	return f
}

func (f *Field[R, V]) Get(h Handle) (V, bool) {
	t := f.table
	t.mu.RLock()
	defer t.mu.RUnlock()

	i := int(h)
	if i >= len(t.rows) || t.present[i]&f.bit == 0 {
		var zero V
		return zero, false
	}
	return *f.ptr(&t.rows[i]), true
}

func (f *Field[R, V]) Set(h Handle, v V) (V, bool) {
	t := f.table
	t.mu.Lock()
	defer t.mu.Unlock()

	i := int(h)
	if i >= len(t.rows) {
		t.rows = append(t.rows, make([]R, i+1-len(t.rows))...)
		t.present = append(t.present, make([]uint64, i+1-len(t.present))...)
	}
	slot := f.ptr(&t.rows[i])
	prev, had := *slot, t.present[i]&f.bit != 0
	*slot = v
	t.present[i] |= f.bit
	return prev, had
}

func (f *Field[R, V]) Delete(h Handle) (V, bool) {
	t := f.table
	t.mu.Lock()
	defer t.mu.Unlock()

	var zero V
	i := int(h)
	if i >= len(t.rows) || t.present[i]&f.bit == 0 {
		return zero, false
	}
	slot := f.ptr(&t.rows[i])
	prev := *slot
	*slot = zero
	t.present[i] &^= f.bit
	return prev, true
}

// Iter snapshots the field under the table lock.
func (f *Field[R, V]) Iter() iter.Seq2[Handle, V] {
	return func(yield func(Handle, V) bool) {
		t := f.table
		type entry struct {
			h Handle
			v V
		}
		t.mu.RLock()
		var entries []entry
		for i, mask := range t.present {
			if mask&f.bit != 0 {
				entries = append(entries, entry{h: Handle(i), v: *f.ptr(&t.rows[i])})
			}
		}
		t.mu.RUnlock()

		for _, e := range entries {
			if !yield(e.h, e.v) {
				return
			}
		}
	}
}

func (f *Field[R, V]) Len() int {
	t := f.table
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := 0
	for _, mask := range t.present {
		n += bits.OnesCount64(mask & f.bit)
	}
	return n
}

// ShrinkToFit drops trailing records in which no field is present.
func (f *Field[R, V]) ShrinkToFit() {
	t := f.table
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(t.present)
	for n > 0 && t.present[n-1] == 0 {
		n--
	}
	t.rows = slices.Clip(t.rows[:n])
	t.present = slices.Clip(t.present[:n])
}
