// Package relation maintains one-to-many relations incrementally and derives
// collections through them.
//
// A relation observes a base collection of many-key to one-key pairs. Its
// forward view is the base view; its reverse index maps every one-key to the
// set of many-keys pointing at it. After every poll, forward(m) == o holds
// exactly when m is a member of reverse(o).
package relation

import (
	"fmt"
	"iter"

	"github.com/roach88/incr/internal/change"
	"github.com/roach88/incr/internal/collection"
	"github.com/roach88/incr/internal/contract"
	"github.com/roach88/incr/internal/signal"
)

// Polled is a collection that can also report its reverse index.
type Polled[M comparable, O comparable] interface {
	collection.Collection[M, O]
	PollRelation(cx *signal.Context) (
		changes collection.Query[M, change.ValueChange[O]],
		forward collection.Query[M, O],
		reverse collection.MultiQuery[O, M],
	)
}

// Relation is a one-to-many relation over a many-key to one-key collection.
// The reverse index is owned by the relation and only changes while it
// processes an upstream batch.
type Relation[M comparable, O comparable] struct {
	upstream collection.Collection[M, O]
	index    reverseIndex[O, M]
}

// NewHash returns a relation indexing one-keys in a hash map.
func NewHash[M comparable, O comparable](upstream collection.Collection[M, O]) *Relation[M, O] {
	return &Relation[M, O]{upstream: upstream, index: newHashIndex[O, M]()}
}

// NewDense returns a relation indexing one-keys by their linear index.
func NewDense[M comparable, O collection.Linear](upstream collection.Collection[M, O]) *Relation[M, O] {
	return &Relation[M, O]{upstream: upstream, index: newDenseIndex[O, M]()}
}

// PollRelation polls the base collection and updates the reverse index.
//
// A change whose old one-key has no bucket holding the many-key panics with
// contract.CodeRelationMissing.
func (r *Relation[M, O]) PollRelation(cx *signal.Context) (
	collection.Query[M, change.ValueChange[O]],
	collection.Query[M, O],
	collection.MultiQuery[O, M],
) {
	changes, forward := r.upstream.PollChanges(cx)
	batch := collection.ToBatch(changes)

	for m, c := range batch {
		if old, ok := c.OldValue(); ok {
			if !r.index.remove(old, m) {
				contract.Panic(contract.CodeRelationMissing, "relation change references an unregistered member",
					map[string]string{"one": fmt.Sprint(old), "many": fmt.Sprint(m)})
			}
		}
		if next, ok := c.NewValue(); ok {
			r.index.add(next, m)
		}
	}
	return batch, forward, reverseView[O, M]{index: r.index}
}

// PollChanges makes the relation an ordinary many-key to one-key collection.
func (r *Relation[M, O]) PollChanges(cx *signal.Context) (collection.Query[M, change.ValueChange[O]], collection.Query[M, O]) {
	changes, forward, _ := r.PollRelation(cx)
	return changes, forward
}

func (r *Relation[M, O]) Request(req collection.Request) {
	if req == collection.RequestShrinkToFit {
		r.index.shrink()
	}
	r.upstream.Request(req)
}

func (r *Relation[M, O]) Op() collection.Op { return collection.OpRelation }

type reverseView[O comparable, M comparable] struct {
	index reverseIndex[O, M]
}

func (v reverseView[O, M]) AccessMulti(o O) iter.Seq[M] {
	return v.index.members(o)
}

func (v reverseView[O, M]) IterKeyInMultiCollection() iter.Seq[O] {
	return v.index.ones()
}

// Verify checks that reverse is the exact inverse of forward.
func Verify[M comparable, O comparable](forward collection.Query[M, O], reverse collection.MultiQuery[O, M]) error {
	members := 0
	for o := range reverse.IterKeyInMultiCollection() {
		empty := true
		for m := range reverse.AccessMulti(o) {
			empty = false
			members++
			got, ok := forward.Access(m)
			if !ok {
				return fmt.Errorf("reverse(%v) holds %v which has no forward entry", o, m)
			}
			if got != o {
				return fmt.Errorf("reverse(%v) holds %v but forward(%v) = %v", o, m, m, got)
			}
		}
		if empty {
			return fmt.Errorf("reverse(%v) is an empty bucket", o)
		}
	}

	forwardLen := 0
	for m, o := range forward.IterKeyValue() {
		forwardLen++
		found := false
		for x := range reverse.AccessMulti(o) {
			if x == m {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("forward(%v) = %v but reverse(%v) lacks it", m, o, o)
		}
	}
	if forwardLen != members {
		return fmt.Errorf("forward has %d entries, reverse has %d members", forwardLen, members)
	}
	return nil
}
