package collection

import (
	"fmt"
	"maps"

	"github.com/roach88/incr/internal/change"
	"github.com/roach88/incr/internal/contract"
	"github.com/roach88/incr/internal/signal"
)

// ExecuteMap runs a mapper exactly once per changed key and caches the
// result. create is called once per poll that has changes, so the mapper may
// hold per-batch scratch state. Unlike Map, the mapper need not be pure.
func ExecuteMap[K comparable, V, U comparable](upstream Collection[K, V], create func() func(K, V) U) Collection[K, U] {
	return &executeNode[K, V, U]{
		upstream: upstream,
		create:   create,
		cache:    make(map[K]U),
	}
}

type executeNode[K comparable, V, U comparable] struct {
	upstream Collection[K, V]
	create   func() func(K, V) U
	cache    map[K]U
}

func (n *executeNode[K, V, U]) PollChanges(cx *signal.Context) (Query[K, change.ValueChange[U]], Query[K, U]) {
	changes, _ := n.upstream.PollChanges(cx)

	out := change.NewBatch[K, U](0)
	var mapper func(K, V) U
	for k, c := range changes.IterKeyValue() {
		if c.IsRemoved() {
			old, ok := n.cache[k]
			if !ok {
				contract.Panic(contract.CodeUnknownKey, "execute map received a removal for an unmapped key",
					map[string]string{"key": fmt.Sprint(k)})
			}
			delete(n.cache, k)
			out[k] = change.Removed(old)
			continue
		}

		if mapper == nil {
			mapper = n.create()
		}
		v, _ := c.NewValue()
		next := mapper(k, v)
		old, had := n.cache[k]
		n.cache[k] = next
		out[k] = change.Delta(next, old, had)
	}
	return out, HashQuery[K, U](n.cache)
}

func (n *executeNode[K, V, U]) Request(r Request) {
	if r == RequestShrinkToFit {
		n.cache = maps.Clone(n.cache)
	}
	n.upstream.Request(r)
}

func (n *executeNode[K, V, U]) Op() Op { return OpExecuteMap }

// Materialize caches the upstream state so the view no longer re-evaluates
// lazy operators on every access.
func Materialize[K comparable, V comparable](upstream Collection[K, V]) Collection[K, V] {
	return &materializeNode[K, V]{upstream: upstream, cache: make(map[K]V)}
}

type materializeNode[K comparable, V comparable] struct {
	upstream Collection[K, V]
	cache    map[K]V
}

func (n *materializeNode[K, V]) PollChanges(cx *signal.Context) (Query[K, change.ValueChange[V]], Query[K, V]) {
	changes, _ := n.upstream.PollChanges(cx)
	batch := ToBatch(changes)
	batch.Apply(n.cache)
	return batch, HashQuery[K, V](n.cache)
}

func (n *materializeNode[K, V]) Request(r Request) {
	if r == RequestShrinkToFit {
		n.cache = maps.Clone(n.cache)
	}
	n.upstream.Request(r)
}

func (n *materializeNode[K, V]) Op() Op { return OpMaterialize }
