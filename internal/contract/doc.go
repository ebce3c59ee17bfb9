// Package contract defines the fatal programmer-contract violations of the
// collection engine.
//
// A violation means the dataflow graph was wired or driven incorrectly (a key
// removed twice, a fork consumer that skipped a cycle, a relation bucket that
// was never registered). Violations are not recoverable at runtime, so they
// are raised with panic carrying a *Violation value. Tests and the harness
// recover them and match on Code.
//
// Expected absence (a key with no value) is never a violation; it is reported
// through the (value, ok) return of Access.
package contract
