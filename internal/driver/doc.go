// Package driver runs polling cycles over a collection graph.
//
// The engine never polls itself. A Driver owns the registered roots and
// polls each of them once per cycle, then ends the cycle on every watch
// group. Writers wake the driver through its Listener, so Run only cycles
// when something changed.
//
// Thread-safety model:
//   - Step and Run must be called from exactly one goroutine
//   - Listener().Wake and Stop are safe from any goroutine
//
// A programmer-contract violation raised while polling aborts the cycle.
// The driver stays failed afterwards: every later Step returns the same
// error, because a partially applied cycle cannot be repaired.
package driver
