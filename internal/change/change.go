package change

import (
	"fmt"

	"github.com/roach88/incr/internal/contract"
)

// Kind distinguishes the two ValueChange variants.
type Kind uint8

const (
	// KindDelta is an insert or an update.
	KindDelta Kind = iota + 1
	// KindRemove is a removal carrying the removed value.
	KindRemove
)

// String returns the lowercase variant name.
func (k Kind) String() string {
	switch k {
	case KindDelta:
		return "delta"
	case KindRemove:
		return "remove"
	default:
		return fmt.Sprintf("invalid kind %d", uint8(k))
	}
}

// ValueChange is the change of a single key. The zero value is invalid; use
// Insert, Update or Removed.
type ValueChange[V comparable] struct {
	kind    Kind
	next    V
	prev    V
	hasPrev bool
}

// Insert returns Delta(v, None), a first-ever insertion.
func Insert[V comparable](v V) ValueChange[V] {
	return ValueChange[V]{kind: KindDelta, next: v}
}

// Update returns Delta(next, Some(prev)).
func Update[V comparable](next, prev V) ValueChange[V] {
	return ValueChange[V]{kind: KindDelta, next: next, prev: prev, hasPrev: true}
}

// Delta returns Delta(next, prev) where prev is present only if hasPrev.
func Delta[V comparable](next, prev V, hasPrev bool) ValueChange[V] {
	if !hasPrev {
		return Insert(next)
	}
	return Update(next, prev)
}

// Removed returns Remove(prev).
func Removed[V comparable](prev V) ValueChange[V] {
	return ValueChange[V]{kind: KindRemove, prev: prev, hasPrev: true}
}

// Kind returns the variant.
func (c ValueChange[V]) Kind() Kind { return c.kind }

// IsRemoved reports whether c is a Remove.
func (c ValueChange[V]) IsRemoved() bool { return c.kind == KindRemove }

// IsNewInsert reports whether c is a Delta without a previous value.
func (c ValueChange[V]) IsNewInsert() bool { return c.kind == KindDelta && !c.hasPrev }

// IsRedundant reports whether c is a Delta whose new value equals its
// previous value.
func (c ValueChange[V]) IsRedundant() bool {
	return c.kind == KindDelta && c.hasPrev && c.next == c.prev
}

// NewValue returns the value after the change; absent for Remove.
func (c ValueChange[V]) NewValue() (V, bool) {
	if c.kind == KindDelta {
		return c.next, true
	}
	var zero V
	return zero, false
}

// OldValue returns the value before the change; absent for a first insert.
func (c ValueChange[V]) OldValue() (V, bool) {
	return c.prev, c.hasPrev
}

// Merge folds next (a later change of the same key) into c and reports
// whether the key still exists in the merged batch. False means the change
// cancelled out and the caller must delete the entry.
//
// Merging two removals panics with contract.CodeDoubleRemove.
func (c *ValueChange[V]) Merge(next ValueChange[V]) bool {
	switch c.kind {
	case KindDelta:
		switch next.kind {
		case KindDelta:
			c.next = next.next
			return true
		case KindRemove:
			if !c.hasPrev {
				return false
			}
			*c = Removed(c.prev)
			return true
		}
	case KindRemove:
		switch next.kind {
		case KindDelta:
			*c = Update(next.next, c.prev)
			return true
		case KindRemove:
			contract.Panic(contract.CodeDoubleRemove, "key removed twice without an insert in between",
				map[string]string{"first": fmt.Sprint(c.prev), "second": fmt.Sprint(next.prev)})
		}
	}
	panic(fmt.Sprintf("change: merge of invalid value change kinds %s and %s", c.kind, next.kind))
}

// String renders the change as Delta(new, old) or Remove(old).
func (c ValueChange[V]) String() string {
	switch c.kind {
	case KindDelta:
		if c.hasPrev {
			return fmt.Sprintf("Delta(%v, %v)", c.next, c.prev)
		}
		return fmt.Sprintf("Delta(%v, None)", c.next)
	case KindRemove:
		return fmt.Sprintf("Remove(%v)", c.prev)
	default:
		return "Invalid"
	}
}

// Map applies f to both payloads of c. f must be pure so that replaying it on
// the old value yields what was previously emitted.
func Map[V, U comparable](c ValueChange[V], f func(V) U) ValueChange[U] {
	out := ValueChange[U]{kind: c.kind, hasPrev: c.hasPrev}
	if c.kind == KindDelta {
		out.next = f(c.next)
	}
	if c.hasPrev {
		out.prev = f(c.prev)
	}
	return out
}

// FilterMap applies f to both payloads of c, where f may exclude a value.
// A previously included value that is now excluded becomes a Remove; a value
// that was never included is suppressed (ok is false).
func FilterMap[V, U comparable](c ValueChange[V], f func(V) (U, bool)) (ValueChange[U], bool) {
	var prev U
	hasPrev := false
	if c.hasPrev {
		prev, hasPrev = f(c.prev)
	}
	if c.kind == KindRemove {
		if !hasPrev {
			return ValueChange[U]{}, false
		}
		return Removed(prev), true
	}

	next, ok := f(c.next)
	switch {
	case ok:
		return Delta(next, prev, hasPrev), true
	case hasPrev:
		return Removed(prev), true
	default:
		return ValueChange[U]{}, false
	}
}
