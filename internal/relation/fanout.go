package relation

import (
	"iter"

	"github.com/roach88/incr/internal/change"
	"github.com/roach88/incr/internal/collection"
	"github.com/roach88/incr/internal/signal"
)

// Fanout projects the value of every one-key onto each of its many-keys:
// the result maps m to upstream[forward(m)].
func Fanout[M comparable, O comparable, V comparable](
	upstream collection.Collection[O, V],
	relation Polled[M, O],
) collection.Collection[M, V] {
	return &fanoutNode[M, O, V]{upstream: upstream, relation: relation}
}

type fanoutNode[M comparable, O comparable, V comparable] struct {
	upstream collection.Collection[O, V]
	relation Polled[M, O]
}

func (n *fanoutNode[M, O, V]) PollChanges(cx *signal.Context) (collection.Query[M, change.ValueChange[V]], collection.Query[M, V]) {
	relChanges, forward, reverse := n.relation.PollRelation(cx)
	oneChanges, oneView := n.upstream.PollChanges(cx)
	forwardPrev := collection.Previous(forward, relChanges)
	onePrev := collection.Previous(oneView, oneChanges)

	lookup := func(fwd collection.Query[M, O], ones collection.Query[O, V], m M) (V, bool) {
		o, ok := fwd.Access(m)
		if !ok {
			var zero V
			return zero, false
		}
		return ones.Access(o)
	}

	out := change.NewBatch[M, V](0)
	visited := make(map[M]struct{})
	visit := func(m M) {
		if _, dup := visited[m]; dup {
			return
		}
		visited[m] = struct{}{}

		old, hadOld := lookup(forwardPrev, onePrev, m)
		cur, hasCur := lookup(forward, oneView, m)
		switch {
		case hasCur && hadOld:
			if cur != old {
				out[m] = change.Update(cur, old)
			}
		case hasCur:
			out[m] = change.Insert(cur)
		case hadOld:
			out[m] = change.Removed(old)
		}
	}

	for m := range relChanges.IterKeyValue() {
		visit(m)
	}
	// Members that moved away are covered by the relation changes above.
	for o := range oneChanges.IterKeyValue() {
		for m := range reverse.AccessMulti(o) {
			visit(m)
		}
	}
	return out, fanoutView[M, O, V]{forward: forward, ones: oneView}
}

func (n *fanoutNode[M, O, V]) Request(r collection.Request) {
	n.upstream.Request(r)
	n.relation.Request(r)
}

func (n *fanoutNode[M, O, V]) Op() collection.Op { return collection.OpFanout }

type fanoutView[M comparable, O comparable, V comparable] struct {
	forward collection.Query[M, O]
	ones    collection.Query[O, V]
}

func (v fanoutView[M, O, V]) Access(m M) (V, bool) {
	o, ok := v.forward.Access(m)
	if !ok {
		var zero V
		return zero, false
	}
	return v.ones.Access(o)
}

func (v fanoutView[M, O, V]) IterKeyValue() iter.Seq2[M, V] {
	return func(yield func(M, V) bool) {
		for m, o := range v.forward.IterKeyValue() {
			val, ok := v.ones.Access(o)
			if !ok {
				continue
			}
			if !yield(m, val) {
				return
			}
		}
	}
}
