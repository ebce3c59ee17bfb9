package storage

import (
	"iter"

	"github.com/roach88/incr/internal/change"
	"github.com/roach88/incr/internal/channel"
	"github.com/roach88/incr/internal/collection"
	"github.com/roach88/incr/internal/signal"
)

// Source is a column observed as a reactive collection. Its first poll
// reports the column content as inserts.
type Source[V comparable] struct {
	col    *Column[V]
	rx     *channel.Receiver[Handle, V]
	stop   func()
	closed bool
}

// Collection attaches a new watcher and returns it as a collection.
func (c *Column[V]) Collection() *Source[V] {
	rx, stop := c.Watch()
	return &Source[V]{col: c, rx: rx, stop: stop}
}

// PollChanges drains the watcher channel.
func (s *Source[V]) PollChanges(cx *signal.Context) (collection.Query[Handle, change.ValueChange[V]], collection.Query[Handle, V]) {
	batch, status := s.rx.Poll(cx)
	if status == channel.StatusClosed {
		s.closed = true
	}
	return batch, columnView[V]{col: s.col}
}

// Closed reports whether the column was closed and every change drained.
func (s *Source[V]) Closed() bool { return s.closed }

func (s *Source[V]) Request(r collection.Request) {
	if r == collection.RequestShrinkToFit {
		s.col.ShrinkToFit()
	}
}

func (s *Source[V]) Op() collection.Op { return collection.OpSource }

// Close detaches the source from its column.
func (s *Source[V]) Close() { s.stop() }

// View returns a live view of c.
func (c *Column[V]) View() collection.Query[Handle, V] {
	return columnView[V]{col: c}
}

type columnView[V comparable] struct {
	col *Column[V]
}

func (v columnView[V]) Access(h Handle) (V, bool) {
	return v.col.Get(h)
}

func (v columnView[V]) IterKeyValue() iter.Seq2[Handle, V] {
	return func(yield func(Handle, V) bool) {
		type entry struct {
			h Handle
			v V
		}
		var entries []entry
		v.col.Read(func(r ReadView[V]) {
			entries = make([]entry, 0, r.Len())
			for h, val := range r.Iter() {
				entries = append(entries, entry{h: h, v: val})
			}
		})
		for _, e := range entries {
			if !yield(e.h, e.v) {
				return
			}
		}
	}
}
