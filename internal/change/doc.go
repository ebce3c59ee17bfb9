// Package change implements the change representation of the collection
// engine and its merge algebra.
//
// A ValueChange describes what happened to one key between two observation
// points. It has exactly two variants:
//
//	Delta(new, previous?)  - the key now holds new; previous is absent on first insert
//	Remove(previous)       - the key was removed; previous is the removed value
//
// Merging a then b for the same key:
//
//	Delta  ∘ Delta  -> Delta(b.new, a.previous)
//	Delta  ∘ Remove -> Remove(a.previous), or the key vanishes if a was a first insert
//	Remove ∘ Delta  -> Delta(b.new, a.previous)
//	Remove ∘ Remove -> contract violation (double removal)
//
// A Batch holds at most one ValueChange per key; later merges for the same key
// are folded into the existing entry. Everything above this package only ever
// sees batches.
package change
