package testutil

import (
	"sync/atomic"

	"github.com/roach88/incr/internal/change"
	"github.com/roach88/incr/internal/collection"
	"github.com/roach88/incr/internal/signal"
)

// Counting wraps a collection and counts how often it is polled.
//
// Used to assert that shared computations run once per cycle.
//
// Thread-safety: Polls is safe for concurrent use.
type Counting[K comparable, V comparable] struct {
	upstream collection.Collection[K, V]
	polls    atomic.Int64
	requests atomic.Int64
}

// NewCounting wraps upstream.
func NewCounting[K comparable, V comparable](upstream collection.Collection[K, V]) *Counting[K, V] {
	return &Counting[K, V]{upstream: upstream}
}

func (c *Counting[K, V]) PollChanges(cx *signal.Context) (collection.Query[K, change.ValueChange[V]], collection.Query[K, V]) {
	c.polls.Add(1)
	return c.upstream.PollChanges(cx)
}

func (c *Counting[K, V]) Request(r collection.Request) {
	c.requests.Add(1)
	c.upstream.Request(r)
}

func (c *Counting[K, V]) Op() collection.Op { return c.upstream.Op() }

// Polls returns the number of PollChanges calls.
func (c *Counting[K, V]) Polls() int64 { return c.polls.Load() }

// Requests returns the number of Request calls.
func (c *Counting[K, V]) Requests() int64 { return c.requests.Load() }
