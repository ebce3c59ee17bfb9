// Package collection defines the reactive query contract and the stateless
// and stateful operators built on it.
//
// A Collection is polled by the driver. Each poll returns the changes since
// the previous poll of the same node together with a view of the current
// state. Both are only valid until the next poll of that node.
//
// The operator set is closed: every node reports its Op so traces and the
// harness can describe a graph without reflection. Map and FilterMap work on
// both queries lazily and never copy. Union and Select compute their merged
// batch eagerly because they need the previous state of both sides.
// ExecuteMap and Materialize keep a per-key cache.
package collection
