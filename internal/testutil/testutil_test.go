package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/incr/internal/change"
	"github.com/roach88/incr/internal/collection"
)

func TestCounting_CountsPolls(t *testing.T) {
	src := collection.NewMutable(map[int]int{1: 1})
	c := NewCounting[int, int](src)

	m := NewMirror[int, int]()
	m.Poll(c)
	m.Poll(c)
	c.Request(collection.RequestShrinkToFit)

	assert.Equal(t, int64(2), c.Polls())
	assert.Equal(t, int64(1), c.Requests())
	assert.Equal(t, collection.OpSource, c.Op())
}

func TestMirror_TracksView(t *testing.T) {
	src := collection.NewMutable(map[string]int{"a": 1, "b": 2})
	m := NewMirror[string, int]()

	_, view := m.Poll(src)
	assert.Equal(t, view, m.State())

	src.Set("a", 3)
	src.Delete("b")
	batch, view := m.Poll(src)
	assert.Equal(t, change.Batch[string, int]{"a": change.Update(3, 1), "b": change.Removed(2)}, batch)
	assert.Equal(t, view, m.State())
	assert.Equal(t, map[string]int{"a": 3}, m.State())

	m.Apply(change.Batch[string, int]{"c": change.Insert(9)})
	assert.Equal(t, 9, m.State()["c"])
}

func TestNewRand_Deterministic(t *testing.T) {
	a, b := NewRand(42), NewRand(42)
	for i := 0; i < 10; i++ {
		assert.Equal(t, a.IntN(1000), b.IntN(1000))
	}
}
