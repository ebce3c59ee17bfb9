package collection

import (
	"iter"

	"github.com/roach88/incr/internal/change"
	"github.com/roach88/incr/internal/signal"
)

// Combine merges the values of both sides for one key. aok and bok report
// presence on each side; returning false excludes the key.
type Combine[A, B, O comparable] func(a A, aok bool, b B, bok bool) (O, bool)

// Union joins two collections key by key through combine. A key changed on
// either side is re-evaluated against the previous and current state of
// both sides.
func Union[K comparable, A, B, O comparable](a Collection[K, A], b Collection[K, B], combine Combine[A, B, O]) Collection[K, O] {
	return &unionNode[K, A, B, O]{a: a, b: b, combine: combine}
}

// Select is a left-biased union: a key present on a shows a's value,
// otherwise b's.
func Select[K comparable, V comparable](a, b Collection[K, V]) Collection[K, V] {
	return Union(a, b, func(av V, aok bool, bv V, bok bool) (V, bool) {
		if aok {
			return av, true
		}
		return bv, bok
	})
}

// Pair holds the values of both sides of an intersection.
type Pair[A, B comparable] struct {
	A A
	B B
}

// Intersect keeps keys present on both sides.
func Intersect[K comparable, A, B comparable](a Collection[K, A], b Collection[K, B]) Collection[K, Pair[A, B]] {
	return Union(a, b, func(av A, aok bool, bv B, bok bool) (Pair[A, B], bool) {
		return Pair[A, B]{A: av, B: bv}, aok && bok
	})
}

// FilterByKeySet keeps the keys of a that are present in set.
func FilterByKeySet[K comparable, V, S comparable](a Collection[K, V], set Collection[K, S]) Collection[K, V] {
	return Union(a, set, func(av V, aok bool, _ S, sok bool) (V, bool) {
		return av, aok && sok
	})
}

type unionNode[K comparable, A, B, O comparable] struct {
	a       Collection[K, A]
	b       Collection[K, B]
	combine Combine[A, B, O]
}

func (n *unionNode[K, A, B, O]) PollChanges(cx *signal.Context) (Query[K, change.ValueChange[O]], Query[K, O]) {
	ca, va := n.a.PollChanges(cx)
	cb, vb := n.b.PollChanges(cx)
	pa := Previous(va, ca)
	pb := Previous(vb, cb)

	out := change.NewBatch[K, O](0)
	seen := make(map[K]struct{})
	emit := func(k K) {
		if _, dup := seen[k]; dup {
			return
		}
		seen[k] = struct{}{}

		oa, oaok := pa.Access(k)
		ob, obok := pb.Access(k)
		na, naok := va.Access(k)
		nb, nbok := vb.Access(k)

		var old, cur O
		var hadOld, hasCur bool
		if oaok || obok {
			old, hadOld = n.combine(oa, oaok, ob, obok)
		}
		if naok || nbok {
			cur, hasCur = n.combine(na, naok, nb, nbok)
		}
		switch {
		case hasCur && hadOld:
			if cur != old {
				out[k] = change.Update(cur, old)
			}
		case hasCur:
			out[k] = change.Insert(cur)
		case hadOld:
			out[k] = change.Removed(old)
		}
	}
	for k := range ca.IterKeyValue() {
		emit(k)
	}
	for k := range cb.IterKeyValue() {
		emit(k)
	}

	return out, unionView[K, A, B, O]{a: va, b: vb, combine: n.combine}
}

func (n *unionNode[K, A, B, O]) Request(r Request) {
	n.a.Request(r)
	n.b.Request(r)
}

func (n *unionNode[K, A, B, O]) Op() Op { return OpUnion }

type unionView[K comparable, A, B, O comparable] struct {
	a       Query[K, A]
	b       Query[K, B]
	combine Combine[A, B, O]
}

func (u unionView[K, A, B, O]) Access(k K) (O, bool) {
	av, aok := u.a.Access(k)
	bv, bok := u.b.Access(k)
	if !aok && !bok {
		var zero O
		return zero, false
	}
	return u.combine(av, aok, bv, bok)
}

func (u unionView[K, A, B, O]) IterKeyValue() iter.Seq2[K, O] {
	return func(yield func(K, O) bool) {
		for k, av := range u.a.IterKeyValue() {
			bv, bok := u.b.Access(k)
			o, ok := u.combine(av, true, bv, bok)
			if !ok {
				continue
			}
			if !yield(k, o) {
				return
			}
		}
		var zeroA A
		for k, bv := range u.b.IterKeyValue() {
			if _, inA := u.a.Access(k); inA {
				continue
			}
			o, ok := u.combine(zeroA, false, bv, true)
			if !ok {
				continue
			}
			if !yield(k, o) {
				return
			}
		}
	}
}
