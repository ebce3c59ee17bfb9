package relation

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/incr/internal/change"
	"github.com/roach88/incr/internal/collection"
	"github.com/roach88/incr/internal/signal"
)

type unit = struct{}

func pollBatch[K comparable, V comparable](c collection.Collection[K, V]) (change.Batch[K, V], map[K]V) {
	changes, view := c.PollChanges(signal.Noop())
	return collection.ToBatch(changes), collection.Collect(view)
}

func TestReduce_ReferenceCounting(t *testing.T) {
	set := collection.NewMutable(map[string]unit{"m1": {}, "m2": {}, "m3": {}})
	rel := collection.NewMutable(map[string]string{"m1": "a", "m2": "a", "m3": "b"})
	reduced := Reduce[string, string](set, rel)

	changes, view := pollBatch(reduced)
	assert.Equal(t, change.Batch[string, unit]{"a": change.Insert(unit{}), "b": change.Insert(unit{})}, changes)
	assert.Equal(t, map[string]unit{"a": {}, "b": {}}, view)

	set.Delete("m1")
	changes, _ = pollBatch(reduced)
	assert.True(t, changes.IsEmpty(), "a still referenced by m2")

	set.Delete("m2")
	changes, _ = pollBatch(reduced)
	assert.Equal(t, change.Batch[string, unit]{"a": change.Removed(unit{})}, changes)

	rel.Set("m3", "c")
	changes, view = pollBatch(reduced)
	assert.Equal(t, change.Batch[string, unit]{"b": change.Removed(unit{}), "c": change.Insert(unit{})}, changes)
	assert.Equal(t, map[string]unit{"c": {}}, view)
}

func TestReduce_OppositeTransitionsCancel(t *testing.T) {
	set := collection.NewMutable(map[string]unit{"m1": {}, "m2": {}})
	rel := collection.NewMutable(map[string]string{"m1": "a"})
	reduced := Reduce[string, string](set, rel)
	pollBatch(reduced)

	// a loses m1 and gains m2 in the same cycle.
	rel.Set("m1", "b")
	rel.Set("m2", "a")
	changes, view := pollBatch(reduced)
	assert.Equal(t, change.Batch[string, unit]{"b": change.Insert(unit{})}, changes)
	assert.Equal(t, map[string]unit{"a": {}, "b": {}}, view)
}

func TestReduce_MatchesRecompute(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 5))
	set := collection.NewMutable[int, unit](nil)
	rel := collection.NewMutable[int, int](nil)
	reduced := Reduce[int, int](set, rel)
	mirror := map[int]unit{}

	for cycle := 0; cycle < 150; cycle++ {
		for w := rng.IntN(5); w >= 0; w-- {
			m := rng.IntN(20)
			switch rng.IntN(4) {
			case 0:
				set.Set(m, unit{})
			case 1:
				set.Delete(m)
			case 2:
				rel.Set(m, rng.IntN(5))
			default:
				rel.Delete(m)
			}
		}
		changes, view := pollBatch(reduced)
		changes.Apply(mirror)

		expected := map[int]unit{}
		relNow := collection.Collect(rel.View())
		for m := range collection.Collect(set.View()) {
			if o, ok := relNow[m]; ok {
				expected[o] = unit{}
			}
		}
		require.Equal(t, expected, view, "cycle %d view", cycle)
		require.Equal(t, expected, mirror, "cycle %d mirror", cycle)
	}
}

func TestFanout(t *testing.T) {
	ones := collection.NewMutable(map[string]string{"a": "red", "b": "blue"})
	base := collection.NewMutable(map[int]string{1: "a", 2: "a", 3: "b"})
	fan := Fanout[int, string, string](ones, NewHash[int, string](base))

	changes, view := pollBatch(fan)
	assert.Len(t, changes, 3)
	assert.Equal(t, map[int]string{1: "red", 2: "red", 3: "blue"}, view)

	ones.Set("a", "green")
	changes, _ = pollBatch(fan)
	assert.Equal(t, change.Batch[int, string]{1: change.Update("green", "red"), 2: change.Update("green", "red")}, changes)

	base.Set(3, "a")
	ones.Delete("b")
	changes, view = pollBatch(fan)
	assert.Equal(t, change.Batch[int, string]{3: change.Update("green", "blue")}, changes)
	assert.Equal(t, map[int]string{1: "green", 2: "green", 3: "green"}, view)

	ones.Delete("a")
	changes, view = pollBatch(fan)
	assert.Equal(t, change.Batch[int, string]{
		1: change.Removed("green"),
		2: change.Removed("green"),
		3: change.Removed("green"),
	}, changes)
	assert.Empty(t, view)

	base.Set(4, "z")
	changes, _ = pollBatch(fan)
	assert.True(t, changes.IsEmpty(), "members of a missing one-key have no value")
}
