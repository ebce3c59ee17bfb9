package fork

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/roach88/incr/internal/change"
	"github.com/roach88/incr/internal/collection"
	"github.com/roach88/incr/internal/contract"
	"github.com/roach88/incr/internal/metrics"
	"github.com/roach88/incr/internal/signal"
)

// State is the cycle state of a fork node.
type State int32

const (
	// StateIdle means every consumer retrieved the last result.
	StateIdle State = iota
	// StateComputing means a consumer is polling the upstream.
	StateComputing
	// StateDistributing means some consumers still hold a pending result.
	StateDistributing
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateComputing:
		return "computing"
	case StateDistributing:
		return "distributing"
	default:
		return "unknown"
	}
}

// slot is the pending result of one consumer.
type slot[K comparable, V comparable] struct {
	mu         sync.Mutex
	pending    change.Batch[K, V]
	view       collection.Snapshot[K, V]
	hasPending bool
	// joining marks a pending result that holds the state as of the clone
	// rather than a cycle result. It does not count as outstanding.
	joining bool
	static  bool
	waiter  signal.Slot
}

// deliver merges batch into the slot's pending result. Batches are shared
// between slots, so a held result is copied before merging. Reports whether
// the slot just became outstanding.
func (s *slot[K, V]) deliver(batch change.Batch[K, V], view collection.Snapshot[K, V]) bool {
	counted := s.hasPending && !s.joining
	if s.hasPending {
		merged := s.pending.Clone()
		merged.MergeBatch(batch)
		s.pending = merged
	} else {
		s.pending = batch
	}
	s.view = view
	s.hasPending = true
	s.joining = false
	return !counted
}

// take empties the slot and reports whether the result was outstanding.
func (s *slot[K, V]) take() (change.Batch[K, V], collection.Snapshot[K, V], bool) {
	batch, view, counted := s.pending, s.view, !s.joining
	s.pending, s.hasPending, s.joining = nil, false, false
	return batch, view, counted
}

type node[K comparable, V comparable] struct {
	label    string
	upstream collection.Collection[K, V]
	metrics  *metrics.Metrics

	// computeMu serializes upstream polls and slot registration.
	computeMu sync.Mutex
	view      collection.Snapshot[K, V]
	computed  bool

	slotsMu      sync.RWMutex
	slots        map[ConsumerID]*slot[K, V]
	nextConsumer ConsumerID

	state       atomic.Int32
	outstanding atomic.Int32
	// dirty is set by upstream wake-ups and cleared when a compute starts.
	dirty atomic.Bool
}

func newNode[K comparable, V comparable](label string, upstream collection.Collection[K, V], m *metrics.Metrics) *node[K, V] {
	return &node[K, V]{
		label:    label,
		upstream: upstream,
		metrics:  m,
		view:     collection.NewSnapshot[K, V](),
		slots:    make(map[ConsumerID]*slot[K, V]),
	}
}

// Wake records that the upstream has news and forwards the wake-up to
// every consumer.
func (n *node[K, V]) Wake() {
	n.dirty.Store(true)
	n.slotsMu.RLock()
	defer n.slotsMu.RUnlock()
	for _, s := range n.slots {
		s.waiter.Wake()
	}
}

func (n *node[K, V]) register(static bool) ConsumerID {
	n.computeMu.Lock()
	defer n.computeMu.Unlock()
	n.slotsMu.Lock()
	defer n.slotsMu.Unlock()

	id := n.nextConsumer
	n.nextConsumer++
	s := &slot[K, V]{static: static}

	// A consumer joining after the first compute starts from the current
	// state. Later computes merge into it until it polls.
	if !static && n.computed {
		s.pending = change.AsInserts(n.view.IterKeyValue())
		s.view = n.view
		s.hasPending = true
		s.joining = true
	}
	n.slots[id] = s
	return id
}

func (n *node[K, V]) unregister(id ConsumerID) {
	n.computeMu.Lock()
	defer n.computeMu.Unlock()
	n.slotsMu.Lock()
	defer n.slotsMu.Unlock()

	s, ok := n.slots[id]
	if !ok {
		return
	}
	delete(n.slots, id)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hasPending {
		if _, _, counted := s.take(); counted {
			n.consumed()
		}
	}
}

func (n *node[K, V]) slot(id ConsumerID) *slot[K, V] {
	n.slotsMu.RLock()
	defer n.slotsMu.RUnlock()

	s, ok := n.slots[id]
	if !ok {
		contract.Panic(contract.CodeClosedHandle, "fork consumer is closed",
			map[string]string{"node": n.label, "consumer": fmt.Sprint(id)})
	}
	return s
}

// consumed marks one outstanding result as retrieved.
func (n *node[K, V]) consumed() {
	if n.outstanding.Add(-1) == 0 {
		n.state.Store(int32(StateIdle))
	}
}

// poll hands out the consumer's pending result. It computes first when the
// consumer has nothing pending, when the upstream woke since the last
// compute, or when a joining consumer polls while no cycle is underway.
func (n *node[K, V]) poll(id ConsumerID, cx *signal.Context) (collection.Query[K, change.ValueChange[V]], collection.Query[K, V]) {
	s := n.slot(id)
	s.waiter.Register(cx)

	s.mu.Lock()
	ready := s.hasPending && !n.dirty.Load() &&
		(!s.joining || State(n.state.Load()) == StateDistributing)
	if ready {
		batch, view, counted := s.take()
		if counted {
			n.consumed()
		}
		s.mu.Unlock()
		return batch, view
	}
	s.mu.Unlock()

	return n.compute(id, s)
}

func (n *node[K, V]) compute(id ConsumerID, self *slot[K, V]) (collection.Query[K, change.ValueChange[V]], collection.Query[K, V]) {
	n.computeMu.Lock()
	defer n.computeMu.Unlock()

	// A consumer holding a result catches up by merging the new compute into
	// it. A consumer holding nothing starts a new cycle, which every sibling
	// must have finished.
	self.mu.Lock()
	held, counted := self.hasPending, self.hasPending && !self.joining
	self.mu.Unlock()

	if !held && n.outstanding.Load() > 0 {
		contract.Panic(contract.CodeForkUnconsumed, "fork cycle started while consumers still hold the previous result",
			map[string]string{
				"node":     n.label,
				"consumer": fmt.Sprint(id),
				"pending":  n.pendingConsumers(),
			})
	}

	n.state.Store(int32(StateComputing))
	n.dirty.Store(false)
	changes, upstreamView := n.upstream.PollChanges(signal.NewContext(n))

	// The first compute publishes the full upstream state, whatever the
	// upstream reported as its first batch.
	var batch change.Batch[K, V]
	if n.computed {
		batch = collection.ToBatch(changes)
		n.view = n.view.Apply(batch)
	} else {
		batch = change.AsInserts(upstreamView.IterKeyValue())
		n.view = collection.NewSnapshot[K, V]().Apply(batch)
		n.computed = true
	}
	view := n.view
	n.metrics.ForkComputations.WithLabelValues(n.label).Inc()

	n.slotsMu.RLock()
	targets := 0
	for cid, s := range n.slots {
		if cid == id || s.static {
			continue
		}
		targets++
		s.mu.Lock()
		if s.deliver(batch, view) {
			n.outstanding.Add(1)
		}
		s.mu.Unlock()
	}
	n.slotsMu.RUnlock()
	n.metrics.ForkDistributions.WithLabelValues(n.label).Add(float64(targets))

	self.mu.Lock()
	defer self.mu.Unlock()
	if self.hasPending {
		self.deliver(batch, view)
		batch, view, _ = self.take()
		if counted {
			n.consumed()
		}
	}

	if n.outstanding.Load() > 0 {
		n.state.Store(int32(StateDistributing))
	} else {
		n.state.Store(int32(StateIdle))
	}
	return batch, view
}

// pendingConsumers lists the consumers holding a result, for diagnostics.
func (n *node[K, V]) pendingConsumers() string {
	n.slotsMu.RLock()
	defer n.slotsMu.RUnlock()

	var ids []int
	for cid, s := range n.slots {
		s.mu.Lock()
		if s.hasPending && !s.joining {
			ids = append(ids, int(cid))
		}
		s.mu.Unlock()
	}
	slices.Sort(ids)
	parts := make([]string, len(ids))
	for i, v := range ids {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, ",")
}

func (n *node[K, V]) request(r collection.Request) {
	n.computeMu.Lock()
	defer n.computeMu.Unlock()
	n.upstream.Request(r)
}
