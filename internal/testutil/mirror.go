package testutil

import (
	"github.com/roach88/incr/internal/change"
	"github.com/roach88/incr/internal/collection"
	"github.com/roach88/incr/internal/signal"
)

// Mirror rebuilds a collection's state from its emitted changes only.
//
// After every poll, the mirror must equal the reported view; any difference
// means a change was lost or invented.
type Mirror[K comparable, V comparable] struct {
	state map[K]V
}

// NewMirror returns an empty mirror.
func NewMirror[K comparable, V comparable]() *Mirror[K, V] {
	return &Mirror[K, V]{state: make(map[K]V)}
}

// Apply folds changes into the mirror.
func (m *Mirror[K, V]) Apply(changes collection.Query[K, change.ValueChange[V]]) {
	collection.ToBatch(changes).Apply(m.state)
}

// Poll polls c once, applies the changes and returns them together with the
// view as a plain map.
func (m *Mirror[K, V]) Poll(c collection.Collection[K, V]) (change.Batch[K, V], map[K]V) {
	changes, view := c.PollChanges(signal.Noop())
	batch := collection.ToBatch(changes)
	batch.Apply(m.state)
	return batch, collection.Collect(view)
}

// State returns the mirrored state. The map must not be modified.
func (m *Mirror[K, V]) State() map[K]V { return m.state }
