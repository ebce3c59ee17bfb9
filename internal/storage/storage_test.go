package storage

import (
	"maps"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends() map[string]func() Storage[string] {
	return map[string]func() Storage[string]{
		"dense":  func() Storage[string] { return NewDense[string]() },
		"sparse": func() Storage[string] { return NewSparse[string]() },
		"interleaved": func() Storage[string] {
			type row struct {
				Name  string
				Other int
			}
			t := NewInterleaved[row]()
			AddField(t, func(r *row) *int { return &r.Other })
			return AddField(t, func(r *row) *string { return &r.Name })
		},
	}
}

func TestStorage_Contract(t *testing.T) {
	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			s := newStore()

			_, ok := s.Get(3)
			assert.False(t, ok)

			prev, had := s.Set(3, "c")
			assert.False(t, had)
			assert.Empty(t, prev)

			prev, had = s.Set(3, "c2")
			assert.True(t, had)
			assert.Equal(t, "c", prev)

			s.Set(0, "a")
			assert.Equal(t, 2, s.Len())
			assert.Equal(t, map[Handle]string{0: "a", 3: "c2"}, maps.Collect(s.Iter()))

			prev, ok = s.Delete(3)
			require.True(t, ok)
			assert.Equal(t, "c2", prev)

			_, ok = s.Delete(3)
			assert.False(t, ok)
			_, ok = s.Delete(100)
			assert.False(t, ok)

			s.ShrinkToFit()
			assert.Equal(t, map[Handle]string{0: "a"}, maps.Collect(s.Iter()))
			assert.Equal(t, 1, s.Len())
		})
	}
}

func TestDense_ShrinkToFitDropsTrailingSlots(t *testing.T) {
	d := NewDense[int]()
	d.Set(1, 1)
	d.Set(9, 9)
	d.Delete(9)

	d.ShrinkToFit()
	assert.Len(t, d.values, 2)
	v, ok := d.Get(1)
	assert.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestInterleaved_FieldsAreIndependent(t *testing.T) {
	type row struct {
		Pos  int
		Name string
	}
	table := NewInterleaved[row]()
	pos := AddField(table, func(r *row) *int { return &r.Pos })
	name := AddField(table, func(r *row) *string { return &r.Name })

	pos.Set(2, 10)
	name.Set(2, "x")
	name.Set(5, "y")

	assert.Equal(t, 6, table.Rows())
	assert.Equal(t, 1, pos.Len())
	assert.Equal(t, 2, name.Len())

	pos.Delete(2)
	got, ok := name.Get(2)
	require.True(t, ok, "deleting one field keeps the other")
	assert.Equal(t, "x", got)

	name.Delete(5)
	name.ShrinkToFit()
	assert.Equal(t, 3, table.Rows())
}

func TestHandle_LinearIndex(t *testing.T) {
	assert.Equal(t, uint32(42), Handle(42).LinearIndex())
}
