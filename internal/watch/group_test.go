package watch

import (
	"reflect"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/incr/internal/change"
	"github.com/roach88/incr/internal/collection"
	"github.com/roach88/incr/internal/contract"
	"github.com/roach88/incr/internal/metrics"
	"github.com/roach88/incr/internal/signal"
	"github.com/roach88/incr/internal/storage"
)

type batch = change.Batch[storage.Handle, string]

func newColumn(initial map[storage.Handle]string) *storage.Column[string] {
	col := storage.NewColumn[string]("names", storage.NewSparse[string]())
	col.Write(func(w *storage.Writer[string]) {
		for h, v := range initial {
			w.Set(h, v)
		}
	})
	return col
}

func TestGroup_LateJoinConverges(t *testing.T) {
	col := newColumn(map[storage.Handle]string{1: "a", 2: "b"})
	g := New()
	defer g.Close()

	early := g.AllocateConsumerID()
	view, got := GetBufferedChanges(g, col, early)
	assert.Equal(t, batch{1: change.Insert("a"), 2: change.Insert("b")}, got)
	assert.Equal(t, map[storage.Handle]string{1: "a", 2: "b"}, collection.Collect(view))
	g.ClearChanges()

	col.Write(func(w *storage.Writer[string]) {
		w.Set(1, "a2")
		w.Delete(2)
		w.Set(3, "c")
	})
	_, got = GetBufferedChanges(g, col, early)
	assert.Equal(t, batch{1: change.Update("a2", "a"), 2: change.Removed("b"), 3: change.Insert("c")}, got)

	late := g.AllocateConsumerID()
	view, got = GetBufferedChanges(g, col, late)
	assert.Equal(t, batch{1: change.Insert("a2"), 3: change.Insert("c")}, got)
	assert.Equal(t, map[storage.Handle]string{1: "a2", 3: "c"}, collection.Collect(view))
	g.ClearChanges()

	col.Set(4, "d")
	_, earlyBatch := GetBufferedChanges(g, col, early)
	_, lateBatch := GetBufferedChanges(g, col, late)
	assert.Equal(t, batch{4: change.Insert("d")}, earlyBatch)
	assert.Equal(t, reflect.ValueOf(earlyBatch).Pointer(), reflect.ValueOf(lateBatch).Pointer(),
		"up-to-date consumers share one batch")
}

func TestGroup_WriteAfterDrainWaitsForNextCycle(t *testing.T) {
	col := newColumn(map[storage.Handle]string{1: "a"})
	g := New()
	defer g.Close()

	a, b := g.AllocateConsumerID(), g.AllocateConsumerID()
	GetBufferedChanges(g, col, a)
	GetBufferedChanges(g, col, b)
	g.ClearChanges()

	col.Set(2, "x")
	_, gotA := GetBufferedChanges(g, col, a)
	assert.Equal(t, batch{2: change.Insert("x")}, gotA)

	// Lands after the cycle's drain.
	col.Set(3, "y")

	viewB, gotB := GetBufferedChanges(g, col, b)
	assert.Equal(t, batch{2: change.Insert("x")}, gotB)
	assert.Equal(t, map[storage.Handle]string{1: "a", 2: "x"}, collection.Collect(viewB))

	late := g.AllocateConsumerID()
	viewLate, first := GetBufferedChanges(g, col, late)
	assert.Equal(t, batch{1: change.Insert("a"), 2: change.Insert("x")}, first)
	assert.Equal(t, collection.Collect(viewB), collection.Collect(viewLate))
	g.ClearChanges()

	// Every consumer sees the late write exactly once, next cycle.
	for _, id := range []ConsumerID{a, b, late} {
		view, got := GetBufferedChanges(g, col, id)
		assert.Equal(t, batch{3: change.Insert("y")}, got, "consumer %d", id)
		assert.Equal(t, map[storage.Handle]string{1: "a", 2: "x", 3: "y"}, collection.Collect(view))
	}

	// Views handed out earlier are unaffected by later drains.
	assert.Equal(t, map[storage.Handle]string{1: "a", 2: "x"}, collection.Collect(viewB))
}

func TestGroup_SecondRequestInCycleIsEmpty(t *testing.T) {
	col := newColumn(map[storage.Handle]string{1: "a"})
	g := New()
	id := g.AllocateConsumerID()
	GetBufferedChanges(g, col, id)
	g.ClearChanges()

	col.Set(1, "b")
	_, first := GetBufferedChanges(g, col, id)
	_, second := GetBufferedChanges(g, col, id)
	assert.Equal(t, 1, first.Len())
	assert.True(t, second.IsEmpty())
}

func TestGroup_SkippedCycleIsMerged(t *testing.T) {
	col := newColumn(nil)
	g := New()
	busy, lazy := g.AllocateConsumerID(), g.AllocateConsumerID()
	GetBufferedChanges(g, col, busy)
	GetBufferedChanges(g, col, lazy)
	g.ClearChanges()

	col.Set(1, "a")
	GetBufferedChanges(g, col, busy)
	g.ClearChanges()

	col.Set(1, "a2")
	col.Set(2, "b")
	GetBufferedChanges(g, col, busy)
	_, got := GetBufferedChanges(g, col, lazy)
	assert.Equal(t, batch{1: change.Insert("a2"), 2: change.Insert("b")}, got)
}

func TestGroup_LazyAttachAndDetach(t *testing.T) {
	col := newColumn(map[storage.Handle]string{1: "a"})
	g := New()
	assert.Equal(t, 0, col.Watchers())

	a, b := g.AllocateConsumerID(), g.AllocateConsumerID()
	GetBufferedChanges(g, col, a)
	GetBufferedChanges(g, col, b)
	assert.Equal(t, 1, col.Watchers(), "one attachment per column")
	assert.True(t, g.Attached(col.ID()))

	assert.True(t, g.NotifyConsumerDropped(col.ID(), a))
	assert.False(t, g.NotifyConsumerDropped(col.ID(), a))
	assert.True(t, g.Attached(col.ID()))

	g.DropConsumer(b)
	assert.False(t, g.Attached(col.ID()))
	assert.Equal(t, 0, col.Watchers())

	// A new consumer re-attaches and starts from the full state.
	c := g.AllocateConsumerID()
	_, got := GetBufferedChanges(g, col, c)
	assert.Equal(t, batch{1: change.Insert("a")}, got)
	assert.Equal(t, 1, col.Watchers())
}

func TestGroup_DetachedConsumerPanics(t *testing.T) {
	col := newColumn(nil)
	g := New()
	id := g.AllocateConsumerID()
	GetBufferedChanges(g, col, id)
	g.NotifyConsumerDropped(col.ID(), id)

	v := contract.Catch(func() { GetBufferedChanges(g, col, id) })
	require.NotNil(t, v)
	assert.Equal(t, contract.CodeWatchDetached, v.Code)
	assert.Equal(t, "names", v.Details["column"])

	v = contract.Catch(func() { GetBufferedChanges(g, col, 99) })
	require.NotNil(t, v)
	assert.Equal(t, contract.CodeWatchDetached, v.Code)
}

func TestGroup_WakesListener(t *testing.T) {
	col := newColumn(nil)
	woken := 0
	g := New(WithListener(signal.ListenerFunc(func() { woken++ })))
	id := g.AllocateConsumerID()
	GetBufferedChanges(g, col, id)

	col.Set(1, "a")
	assert.Equal(t, 1, woken)
}

func TestGroup_Metrics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	col := newColumn(nil)
	g := New(WithMetrics(m))

	a, b := g.AllocateConsumerID(), g.AllocateConsumerID()
	GetBufferedChanges(g, col, a)
	GetBufferedChanges(g, col, b)
	assert.Equal(t, 2.0, promtest.ToFloat64(m.WatchConsumers.WithLabelValues("names")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.WatchAttachments.WithLabelValues("names")))

	g.DropConsumer(a)
	assert.Equal(t, 1.0, promtest.ToFloat64(m.WatchConsumers.WithLabelValues("names")))
}
