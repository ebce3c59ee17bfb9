package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/incr/internal/change"
	"github.com/roach88/incr/internal/channel"
	"github.com/roach88/incr/internal/collection"
	"github.com/roach88/incr/internal/signal"
)

func TestColumn_WriteEmitsChanges(t *testing.T) {
	col := NewColumn[string]("names", NewSparse[string]())
	col.Set(1, "a")
	col.Set(2, "b")

	rx, stop := col.Watch()
	defer stop()

	batch, status := rx.Poll(signal.Noop())
	require.Equal(t, channel.StatusReady, status)
	assert.Equal(t, change.Batch[Handle, string]{1: change.Insert("a"), 2: change.Insert("b")}, batch,
		"new watchers start with the content as inserts")

	// Concrete scenario: update, remove and insert in one cycle.
	col.Write(func(w *Writer[string]) {
		_, _, changed := w.Set(1, "a2")
		assert.True(t, changed)
		w.Delete(2)
		w.Set(3, "c")
	})

	batch, _ = rx.Poll(signal.Noop())
	assert.Equal(t, change.Batch[Handle, string]{
		1: change.Update("a2", "a"),
		2: change.Removed("b"),
		3: change.Insert("c"),
	}, batch)
	assert.Equal(t, map[Handle]string{1: "a2", 3: "c"}, collection.Collect(col.View()))
}

func TestColumn_SameValueIsNotAChange(t *testing.T) {
	col := NewColumn[int]("n", NewDense[int]())
	col.Set(0, 1)
	rx, stop := col.Watch()
	defer stop()
	rx.Poll(signal.Noop())

	assert.False(t, col.Set(0, 1))
	assert.False(t, rx.HasChange())

	_, ok := col.Delete(7)
	assert.False(t, ok)
	assert.False(t, rx.HasChange())
}

func TestColumn_WriteWakesOncePerSection(t *testing.T) {
	col := NewColumn[int]("n", NewDense[int]())
	rx, stop := col.Watch()
	defer stop()

	woken := 0
	rx.Poll(signal.NewContext(signal.ListenerFunc(func() { woken++ })))

	col.Write(func(w *Writer[int]) {
		for i := 0; i < 10; i++ {
			w.Set(Handle(i), i)
		}
	})
	assert.Equal(t, 1, woken)
}

func TestColumn_StopDetaches(t *testing.T) {
	col := NewColumn[int]("n", NewSparse[int]())
	_, stop := col.Watch()
	_, stop2 := col.Watch()
	assert.Equal(t, 2, col.Watchers())

	stop()
	stop()
	assert.Equal(t, 1, col.Watchers())
	stop2()
	assert.Equal(t, 0, col.Watchers())
}

func TestColumn_CloseIsTerminal(t *testing.T) {
	col := NewColumn[int]("n", NewSparse[int]())
	src := col.Collection()
	src.PollChanges(signal.Noop())

	col.Set(1, 1)
	col.Close()

	changes, _ := src.PollChanges(signal.Noop())
	assert.Equal(t, 1, collection.ToBatch(changes).Len(), "buffered changes survive close")
	assert.False(t, src.Closed())

	changes, _ = src.PollChanges(signal.Noop())
	assert.True(t, collection.ToBatch(changes).IsEmpty())
	assert.True(t, src.Closed())

	rx, _ := col.Watch()
	_, status := rx.Poll(signal.Noop())
	assert.Equal(t, channel.StatusReady, status, "late watcher still gets the content")
	_, status = rx.Poll(signal.Noop())
	assert.Equal(t, channel.StatusClosed, status)
}

func TestSource_IsACollection(t *testing.T) {
	col := NewColumn[string]("names", NewDense[string]())
	col.Set(1, "a")

	var src collection.Collection[Handle, string] = col.Collection()
	upper := collection.Map(src, func(_ Handle, v string) string { return v + "!" })

	changes, view := upper.PollChanges(signal.Noop())
	assert.Equal(t, change.Batch[Handle, string]{1: change.Insert("a!")}, collection.ToBatch(changes))
	assert.Equal(t, map[Handle]string{1: "a!"}, collection.Collect(view))

	changes, _ = upper.PollChanges(signal.Noop())
	assert.True(t, collection.ToBatch(changes).IsEmpty())

	src.Request(collection.RequestShrinkToFit)
	assert.Equal(t, collection.OpSource, src.Op())
}

func TestColumn_IDsAreUnique(t *testing.T) {
	a := NewColumn[int]("a", NewSparse[int]())
	b := NewColumn[int]("b", NewSparse[int]())
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, "a", a.Name())
}
