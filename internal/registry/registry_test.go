package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/incr/internal/collection"
	"github.com/roach88/incr/internal/signal"
	"github.com/roach88/incr/internal/testutil"
)

func TestForkOrInsert_CreatesOnce(t *testing.T) {
	r := New()
	defer r.Close()

	src := collection.NewMutable(map[int]int{1: 1})
	counting := testutil.NewCounting[int, int](src)
	creates := 0
	create := func() collection.Collection[int, int] {
		creates++
		return counting
	}

	a := ForkOrInsert(r, "users", create)
	b := ForkOrInsert(r, "users", create)
	defer a.Close()
	defer b.Close()

	assert.Equal(t, 1, creates)
	assert.Equal(t, a.Node(), b.Node())
	assert.Equal(t, []string{"users"}, r.Names())

	a.PollChanges(signal.Noop())
	b.PollChanges(signal.Noop())
	assert.Equal(t, int64(1), counting.Polls(), "consumers share the upstream")
}

func TestForkOrInsert_TypeMismatchPanics(t *testing.T) {
	r := New()
	defer r.Close()

	a := ForkOrInsert(r, "x", func() collection.Collection[int, int] {
		return collection.NewMutable[int, int](nil)
	})
	defer a.Close()

	assert.Panics(t, func() {
		ForkOrInsert(r, "x", func() collection.Collection[string, int] {
			return collection.NewMutable[string, int](nil)
		})
	})
}

func TestRegistry_PrototypeKeepsNodeAlive(t *testing.T) {
	r := New()
	create := func() collection.Collection[int, int] {
		return collection.NewMutable(map[int]int{1: 1})
	}

	a := ForkOrInsert(r, "n", create)
	node := a.Node()
	a.Close()
	assert.Equal(t, 1, r.Arena().Refs(node), "static prototype remains")

	b := ForkOrInsert(r, "n", create)
	assert.Equal(t, node, b.Node())
	changes, _ := b.PollChanges(signal.Noop())
	assert.Equal(t, 1, collection.ToBatch(changes).Len(), "a new consumer starts from the full state")

	require.True(t, r.Remove("n"))
	assert.False(t, r.Remove("n"))
	assert.Equal(t, 1, r.Arena().Refs(node))

	b.Close()
	assert.Equal(t, 0, r.Arena().Len())
}

func TestRegistry_CloseTearsDownPrototypes(t *testing.T) {
	r := New()
	for _, name := range []string{"a", "b"} {
		f := ForkOrInsert(r, name, func() collection.Collection[int, int] {
			return collection.NewMutable[int, int](nil)
		})
		f.Close()
	}
	assert.Equal(t, 2, r.Arena().Len())

	r.Close()
	assert.Equal(t, 0, r.Arena().Len())
	assert.Empty(t, r.Names())
}
