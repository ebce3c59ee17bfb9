package relation

import (
	"fmt"
	"iter"
	"maps"

	"github.com/roach88/incr/internal/change"
	"github.com/roach88/incr/internal/collection"
	"github.com/roach88/incr/internal/contract"
	"github.com/roach88/incr/internal/signal"
)

// Reduce collapses a set of many-keys through relation into the set of
// one-keys referenced at least once. A one-key is inserted when its
// reference count goes from 0 to 1 and removed when it drops back to 0;
// opposite transitions within one poll cancel out.
func Reduce[M comparable, O comparable](
	upstream collection.Collection[M, struct{}],
	relation collection.Collection[M, O],
) collection.Collection[O, struct{}] {
	return &reduceNode[M, O]{
		upstream: upstream,
		relation: relation,
		counts:   make(map[O]uint32),
	}
}

type reduceNode[M comparable, O comparable] struct {
	upstream collection.Collection[M, struct{}]
	relation collection.Collection[M, O]
	counts   map[O]uint32
}

// contribution returns the one-key m counts towards, if any.
func contribution[M comparable, O comparable](set collection.Query[M, struct{}], rel collection.Query[M, O], m M) (O, bool) {
	if _, ok := set.Access(m); !ok {
		var zero O
		return zero, false
	}
	return rel.Access(m)
}

func (n *reduceNode[M, O]) PollChanges(cx *signal.Context) (collection.Query[O, change.ValueChange[struct{}]], collection.Query[O, struct{}]) {
	relChanges, relView := n.relation.PollChanges(cx)
	setChanges, setView := n.upstream.PollChanges(cx)
	relPrev := collection.Previous(relView, relChanges)
	setPrev := collection.Previous(setView, setChanges)

	touched := make(map[O]bool) // one-key -> present before this poll
	visit := func(m M) {
		before, hadBefore := contribution(setPrev, relPrev, m)
		after, hasAfter := contribution(setView, relView, m)
		if hadBefore && hasAfter && before == after {
			return
		}
		if hadBefore {
			if _, seen := touched[before]; !seen {
				touched[before] = n.counts[before] > 0
			}
			count, ok := n.counts[before]
			if !ok || count == 0 {
				contract.Panic(contract.CodeRelationMissing, "reduce released a one-key it never counted",
					map[string]string{"one": fmt.Sprint(before), "many": fmt.Sprint(m)})
			}
			if count == 1 {
				delete(n.counts, before)
			} else {
				n.counts[before] = count - 1
			}
		}
		if hasAfter {
			if _, seen := touched[after]; !seen {
				touched[after] = n.counts[after] > 0
			}
			n.counts[after]++
		}
	}

	visited := make(map[M]struct{})
	for m := range relChanges.IterKeyValue() {
		visited[m] = struct{}{}
		visit(m)
	}
	for m := range setChanges.IterKeyValue() {
		if _, dup := visited[m]; dup {
			continue
		}
		visit(m)
	}

	out := change.NewBatch[O, struct{}](0)
	for o, wasPresent := range touched {
		isPresent := n.counts[o] > 0
		switch {
		case isPresent && !wasPresent:
			out[o] = change.Insert(struct{}{})
		case wasPresent && !isPresent:
			out[o] = change.Removed(struct{}{})
		}
	}
	return out, countView[O]{counts: n.counts}
}

func (n *reduceNode[M, O]) Request(r collection.Request) {
	if r == collection.RequestShrinkToFit {
		n.counts = maps.Clone(n.counts)
		if n.counts == nil {
			n.counts = make(map[O]uint32)
		}
	}
	n.upstream.Request(r)
	n.relation.Request(r)
}

func (n *reduceNode[M, O]) Op() collection.Op { return collection.OpReduce }

type countView[O comparable] struct {
	counts map[O]uint32
}

func (v countView[O]) Access(o O) (struct{}, bool) {
	_, ok := v.counts[o]
	return struct{}{}, ok
}

func (v countView[O]) IterKeyValue() iter.Seq2[O, struct{}] {
	return func(yield func(O, struct{}) bool) {
		for o := range v.counts {
			if !yield(o, struct{}{}) {
				return
			}
		}
	}
}
