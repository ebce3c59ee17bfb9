// Package fork shares one upstream computation among many consumers.
//
// Fork nodes live in an Arena and are addressed by NodeID. A consumer is a
// handle (arena, node, consumer id); cloning a consumer registers a new
// pending-result slot on the same node and bumps the node's reference count.
// The node is destroyed when its last consumer closes.
//
// Per cycle, the first consumer to poll computes: it polls the upstream once
// and hands the materialized batch to every other consumer's slot. Each of
// those consumers must poll before anyone starts the next cycle, otherwise
// the poll panics with contract.CodeForkUnconsumed.
//
// A pending result is never replaced. When the upstream wakes the node
// between computes, the next poll computes again and merges the new batch
// into every pending result. Each result carries a frozen snapshot of the
// view it matches, so writes landing mid-cycle never split a consumer's
// changes from its view.
package fork

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/incr/internal/contract"
	"github.com/roach88/incr/internal/metrics"
)

// NodeID addresses a fork node inside its arena.
type NodeID uint32

// ConsumerID identifies a consumer slot within one node.
type ConsumerID uint32

type entry struct {
	node  any
	label string
	refs  int
}

// Arena owns every fork node.
//
// Thread-safety: all methods are safe for concurrent use.
type Arena struct {
	mu      sync.Mutex
	next    NodeID
	nodes   map[NodeID]*entry
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures an Arena.
type Option func(*Arena)

// WithLogger sets the logger for node lifecycle events.
func WithLogger(l *slog.Logger) Option {
	return func(a *Arena) {
		a.logger = l
	}
}

// WithMetrics sets the instruments updated by fork nodes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Arena) {
		a.metrics = m
	}
}

// NewArena creates an empty arena.
func NewArena(opts ...Option) *Arena {
	a := &Arena{
		nodes:  make(map[NodeID]*entry),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.metrics = metrics.Or(a.metrics)
	return a
}

// Len returns the number of live nodes.
func (a *Arena) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.nodes)
}

// Refs returns the consumer count of a node, zero once destroyed.
func (a *Arena) Refs(id NodeID) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if e, ok := a.nodes[id]; ok {
		return e.refs
	}
	return 0
}

func (a *Arena) insert(node any, label string) NodeID {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.next++
	id := a.next
	a.nodes[id] = &entry{node: node, label: label, refs: 1}
	a.metrics.ForkConsumers.WithLabelValues(label).Set(1)
	a.logger.Debug("fork node created", "node", id, "label", label)
	return id
}

func (a *Arena) retain(id NodeID) {
	a.mu.Lock()
	defer a.mu.Unlock()

	e := a.mustEntry(id)
	e.refs++
	a.metrics.ForkConsumers.WithLabelValues(e.label).Set(float64(e.refs))
}

// release drops one reference and reports whether the node was destroyed.
func (a *Arena) release(id NodeID) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	e := a.mustEntry(id)
	e.refs--
	a.metrics.ForkConsumers.WithLabelValues(e.label).Set(float64(e.refs))
	if e.refs > 0 {
		return false
	}
	delete(a.nodes, id)
	a.logger.Debug("fork node destroyed", "node", id, "label", e.label)
	return true
}

func (a *Arena) mustEntry(id NodeID) *entry {
	e, ok := a.nodes[id]
	if !ok {
		contract.Panic(contract.CodeClosedHandle, "fork node no longer exists",
			map[string]string{"node": fmt.Sprint(id)})
	}
	return e
}

func lookup[K comparable, V comparable](a *Arena, id NodeID) *node[K, V] {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mustEntry(id).node.(*node[K, V])
}
