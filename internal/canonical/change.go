package canonical

import (
	"github.com/roach88/incr/internal/change"
	"github.com/roach88/incr/internal/collection"
)

// Change renders a value change. A delta becomes {"new": v} or
// {"new": v, "old": o}; a removal becomes {"removed": o}.
func Change[V comparable](c change.ValueChange[V], conv func(V) Value) Object {
	if c.IsRemoved() {
		old, _ := c.OldValue()
		return Object{"removed": conv(old)}
	}
	next, _ := c.NewValue()
	obj := Object{"new": conv(next)}
	if old, ok := c.OldValue(); ok {
		obj["old"] = conv(old)
	}
	return obj
}

// Batch renders every change of q keyed by key(k).
func Batch[K comparable, V comparable](q collection.Query[K, change.ValueChange[V]], key func(K) string, conv func(V) Value) Object {
	obj := make(Object)
	for k, c := range q.IterKeyValue() {
		obj[key(k)] = Change(c, conv)
	}
	return obj
}

// View renders every entry of q keyed by key(k).
func View[K comparable, V comparable](q collection.Query[K, V], key func(K) string, conv func(V) Value) Object {
	obj := make(Object)
	for k, v := range q.IterKeyValue() {
		obj[key(k)] = conv(v)
	}
	return obj
}
