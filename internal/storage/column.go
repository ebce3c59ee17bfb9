package storage

import (
	"iter"
	"sync"
	"sync/atomic"

	"github.com/roach88/incr/internal/change"
	"github.com/roach88/incr/internal/channel"
)

// ColumnID identifies a column across watch groups.
type ColumnID uint64

var nextColumnID atomic.Uint64

// ReadView is a read-only view of a column.
type ReadView[V comparable] interface {
	Get(h Handle) (V, bool)
	Iter() iter.Seq2[Handle, V]
	Len() int
}

// Column is a storage backend guarded by a reader-writer lock. Every write
// is forwarded to the column's watchers as a ValueChange while the writer
// still holds both the column lock and the watchers' send locks.
type Column[V comparable] struct {
	id       ColumnID
	name     string
	mu       sync.RWMutex
	store    Storage[V]
	watchers map[uint64]*channel.Sender[Handle, V]
	nextW    uint64
	closed   bool
}

// NewColumn wraps store. The name is used in diagnostics only.
func NewColumn[V comparable](name string, store Storage[V]) *Column[V] {
	return &Column[V]{
		id:       ColumnID(nextColumnID.Add(1)),
		name:     name,
		store:    store,
		watchers: make(map[uint64]*channel.Sender[Handle, V]),
	}
}

// ID returns the column identifier.
func (c *Column[V]) ID() ColumnID { return c.id }

// Name returns the diagnostic name.
func (c *Column[V]) Name() string { return c.name }

// Read runs fn under the shared lock.
func (c *Column[V]) Read(fn func(ReadView[V])) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fn(c.store)
}

// Get reads one value under the shared lock.
func (c *Column[V]) Get(h Handle) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store.Get(h)
}

// Len returns the number of stored values.
func (c *Column[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store.Len()
}

// Writer is the read-write view handed to Write.
type Writer[V comparable] struct {
	col *Column[V]
}

// Get reads a value inside the write section.
func (w *Writer[V]) Get(h Handle) (V, bool) {
	return w.col.store.Get(h)
}

// Set stores v and emits the change. changed is false when v equals the
// previous value, in which case nothing is emitted.
func (w *Writer[V]) Set(h Handle, v V) (prev V, hadPrev, changed bool) {
	prev, hadPrev = w.col.store.Set(h, v)
	if hadPrev && prev == v {
		return prev, true, false
	}
	w.col.emit(h, change.Delta(v, prev, hadPrev))
	return prev, hadPrev, true
}

// Delete removes the value at h and emits the removal.
func (w *Writer[V]) Delete(h Handle) (V, bool) {
	prev, ok := w.col.store.Delete(h)
	if ok {
		w.col.emit(h, change.Removed(prev))
	}
	return prev, ok
}

// Iter iterates the column inside the write section.
func (w *Writer[V]) Iter() iter.Seq2[Handle, V] {
	return w.col.store.Iter()
}

func (c *Column[V]) emit(h Handle, ch change.ValueChange[V]) {
	for _, tx := range c.watchers {
		tx.Send(h, ch)
	}
}

// Write runs fn under the exclusive lock. Watchers observe all changes of one
// Write together.
func (c *Column[V]) Write(fn func(w *Writer[V])) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pruneLocked()
	for _, tx := range c.watchers {
		tx.Lock()
	}
	defer func() {
		for _, tx := range c.watchers {
			tx.Unlock()
		}
	}()

	fn(&Writer[V]{col: c})
}

// Set is a single-value Write.
func (c *Column[V]) Set(h Handle, v V) (changed bool) {
	c.Write(func(w *Writer[V]) {
		_, _, changed = w.Set(h, v)
	})
	return changed
}

// Delete is a single-value Write.
func (c *Column[V]) Delete(h Handle) (prev V, ok bool) {
	c.Write(func(w *Writer[V]) {
		prev, ok = w.Delete(h)
	})
	return prev, ok
}

// Watch attaches a new mutation channel pre-filled with the current content
// as inserts. stop detaches it again.
func (c *Column[V]) Watch() (rx *channel.Receiver[Handle, V], stop func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, rx := channel.New[Handle, V]()
	tx.Lock()
	for h, v := range c.store.Iter() {
		tx.Send(h, change.Insert(v))
	}
	tx.Unlock()

	if c.closed {
		tx.Close()
		return rx, rx.Close
	}

	id := c.nextW
	c.nextW++
	c.watchers[id] = tx

	var once sync.Once
	return rx, func() {
		once.Do(func() {
			rx.Close()
			c.mu.Lock()
			defer c.mu.Unlock()
			delete(c.watchers, id)
		})
	}
}

// Watchers returns the number of attached watchers.
func (c *Column[V]) Watchers() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.watchers)
}

// ShrinkToFit releases spare storage capacity.
func (c *Column[V]) ShrinkToFit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.ShrinkToFit()
}

// Close closes every watcher channel. Watchers drain what is buffered and
// then observe the terminal state.
func (c *Column[V]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	for id, tx := range c.watchers {
		tx.Close()
		delete(c.watchers, id)
	}
}

// pruneLocked forgets watchers whose receiver went away.
func (c *Column[V]) pruneLocked() {
	for id, tx := range c.watchers {
		if tx.IsClosed() {
			delete(c.watchers, id)
		}
	}
}
