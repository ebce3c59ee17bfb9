// Package watch bridges raw column mutations to per-consumer change batches.
//
// A Group attaches to a column lazily, when the first consumer asks for it,
// and detaches when the last consumer of that column is dropped. A consumer
// asking for a column for the first time receives the whole column as
// inserts; afterwards it receives every change since its previous request.
// The batch drained from the column in one cycle is shared by all consumers
// that are up to date.
package watch

import (
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/roach88/incr/internal/change"
	"github.com/roach88/incr/internal/channel"
	"github.com/roach88/incr/internal/collection"
	"github.com/roach88/incr/internal/contract"
	"github.com/roach88/incr/internal/metrics"
	"github.com/roach88/incr/internal/signal"
	"github.com/roach88/incr/internal/storage"
)

// ConsumerID identifies a consumer across the columns of a group.
type ConsumerID uint64

// attachment is the type-erased part of a column watch.
type attachment interface {
	// drop unregisters id and reports whether it was registered.
	drop(id ConsumerID) bool
	consumers() int
	clear()
	detach()
	label() string
}

type key struct {
	column storage.ColumnID
	id     ConsumerID
}

// Group hands out buffered change batches per (column, consumer).
//
// Thread-safety: all methods are safe for concurrent use.
type Group struct {
	mu       sync.Mutex
	next     ConsumerID
	columns  map[storage.ColumnID]attachment
	dropped  map[key]struct{}
	listener signal.Listener
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// Option configures a Group.
type Option func(*Group)

// WithListener sets the listener woken when a watched column changes.
func WithListener(l signal.Listener) Option {
	return func(g *Group) {
		g.listener = l
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Group) {
		g.logger = l
	}
}

// WithMetrics sets the instruments updated by the group.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Group) {
		g.metrics = m
	}
}

// New creates a group without attachments.
func New(opts ...Option) *Group {
	g := &Group{
		columns: make(map[storage.ColumnID]attachment),
		dropped: make(map[key]struct{}),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.metrics = metrics.Or(g.metrics)
	return g
}

// AllocateConsumerID returns a fresh consumer id.
func (g *Group) AllocateConsumerID() ConsumerID {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.next
	g.next++
	return id
}

// Attached reports whether the group currently watches column.
func (g *Group) Attached(column storage.ColumnID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.columns[column]
	return ok
}

// GetBufferedChanges returns the view of column as of the cycle's drain and
// the changes the consumer has not seen yet. The first request of a
// consumer returns that view as inserts. Writes landing after the drain
// show up in neither until the next cycle.
//
// Requests for an id that was never allocated, or that was dropped from
// column, panic with contract.CodeWatchDetached.
func GetBufferedChanges[V comparable](g *Group, column *storage.Column[V], id ConsumerID) (collection.Query[storage.Handle, V], change.Batch[storage.Handle, V]) {
	g.mu.Lock()
	defer g.mu.Unlock()

	details := map[string]string{"column": column.Name(), "consumer": strconv.FormatUint(uint64(id), 10)}
	if id >= g.next {
		contract.Panic(contract.CodeWatchDetached, "watch consumer id was never allocated", details)
	}
	if _, gone := g.dropped[key{column: column.ID(), id: id}]; gone {
		contract.Panic(contract.CodeWatchDetached, "watch consumer was dropped from this column", details)
	}

	a, ok := g.columns[column.ID()]
	if !ok {
		a = attach(g, column)
	}
	w, ok := a.(*columnWatch[V])
	if !ok {
		panic(fmt.Sprintf("watch: column %s watched with type %T", column.Name(), a))
	}

	batch, fresh := w.request(id, signal.NewContext(g.listener))
	if fresh {
		g.metrics.WatchConsumers.WithLabelValues(w.label()).Set(float64(w.consumers()))
	}
	return w.view, batch
}

func attach[V comparable](g *Group, column *storage.Column[V]) *columnWatch[V] {
	rx, stop := column.Watch()
	// The channel starts with the whole column as inserts.
	initial, _ := rx.Poll(signal.Noop())

	w := &columnWatch[V]{
		column: column,
		rx:     rx,
		stop:   stop,
		view:   collection.NewSnapshot[storage.Handle, V]().Apply(initial),
		seen:   make(map[ConsumerID]uint64),
	}
	g.columns[column.ID()] = w
	g.metrics.WatchAttachments.WithLabelValues(column.Name()).Inc()
	g.logger.Debug("watch attached", "column", column.Name())
	return w
}

// NotifyConsumerDropped unregisters id from column and detaches the column
// once no consumer is left. It reports whether id was registered.
func (g *Group) NotifyConsumerDropped(column storage.ColumnID, id ConsumerID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dropLocked(column, id)
}

// DropConsumer unregisters id from every column.
func (g *Group) DropConsumer(id ConsumerID) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for column := range g.columns {
		g.dropLocked(column, id)
	}
}

func (g *Group) dropLocked(column storage.ColumnID, id ConsumerID) bool {
	a, ok := g.columns[column]
	if !ok || !a.drop(id) {
		return false
	}
	g.dropped[key{column: column, id: id}] = struct{}{}
	g.metrics.WatchConsumers.WithLabelValues(a.label()).Set(float64(a.consumers()))

	if a.consumers() == 0 {
		a.detach()
		delete(g.columns, column)
		g.logger.Debug("watch detached", "column", a.label())
	}
	return true
}

// ClearChanges ends the cycle: the next request drains the columns again.
func (g *Group) ClearChanges() {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, a := range g.columns {
		a.clear()
	}
}

// Close detaches from every column.
func (g *Group) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()

	for column, a := range g.columns {
		a.detach()
		delete(g.columns, column)
	}
}

// columnWatch is the attachment of one column.
type columnWatch[V comparable] struct {
	column *storage.Column[V]
	rx     *channel.Receiver[storage.Handle, V]
	stop   func()

	// view mirrors the column as of the last drain.
	view collection.Snapshot[storage.Handle, V]

	// epoch counts drained batches; history holds the batches some
	// registered consumer has not seen yet.
	epoch   uint64
	history []epochBatch[V]
	drained bool
	seen    map[ConsumerID]uint64
}

type epochBatch[V comparable] struct {
	epoch uint64
	batch change.Batch[storage.Handle, V]
}

func (w *columnWatch[V]) request(id ConsumerID, cx *signal.Context) (batch change.Batch[storage.Handle, V], fresh bool) {
	if !w.drained {
		drainedBatch, _ := w.rx.Poll(cx)
		w.view = w.view.Apply(drainedBatch)
		w.epoch++
		w.history = append(w.history, epochBatch[V]{epoch: w.epoch, batch: drainedBatch})
		w.drained = true
	}

	seen, known := w.seen[id]
	w.seen[id] = w.epoch
	defer w.trim()

	if !known {
		return change.AsInserts(w.view.IterKeyValue()), true
	}
	if seen == w.epoch {
		return change.NewBatch[storage.Handle, V](0), false
	}
	last := w.history[len(w.history)-1]
	if seen == last.epoch-1 {
		return last.batch, false
	}

	merged := change.NewBatch[storage.Handle, V](0)
	for _, h := range w.history {
		if h.epoch > seen {
			merged.MergeBatch(h.batch)
		}
	}
	return merged, false
}

// trim forgets batches every consumer has seen.
func (w *columnWatch[V]) trim() {
	oldest := w.epoch
	for _, s := range w.seen {
		oldest = min(oldest, s)
	}
	i := 0
	for i < len(w.history) && w.history[i].epoch <= oldest {
		i++
	}
	w.history = w.history[i:]
}

func (w *columnWatch[V]) drop(id ConsumerID) bool {
	if _, ok := w.seen[id]; !ok {
		return false
	}
	delete(w.seen, id)
	w.trim()
	return true
}

func (w *columnWatch[V]) consumers() int { return len(w.seen) }

func (w *columnWatch[V]) clear() { w.drained = false }

func (w *columnWatch[V]) detach() { w.stop() }

func (w *columnWatch[V]) label() string { return w.column.Name() }
