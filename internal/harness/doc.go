// Package harness runs conformance scenarios against the collection engine.
//
// A scenario writes rows into one storage column over a number of cycles and
// observes them through every consumer kind the engine offers: the shared
// fork of the column source, late-joining fork clones, watch group
// consumers and, optionally, a one-to-many relation with its reduced set of
// one-keys.
//
// # Scenario Format
//
// Scenarios are YAML or CUE files:
//
//	name: relation_move
//	description: "Moving a member updates both buckets"
//	storage: sparse          # sparse | dense | interleaved
//	relation: true           # values are one-keys of a relation
//	initial:
//	  "1": red
//	consumers:
//	  - name: late
//	    kind: watch          # watch | fork
//	    join: 2              # first cycle the consumer polls
//	cycles:
//	  - set: {"2": red}
//	    expect:
//	      changes: {"1": {new: red}, "2": {new: red}}
//	      reverse: {red: ["1", "2"]}
//	  - set: {"1": blue}
//	    delete: ["2"]
//	    expect:
//	      view: {"1": blue}
//	      groups: [blue]
//
// Handles are written as decimal strings.
//
// # Checks
//
// Besides the explicit expectations, every cycle checks that
//
//   - replaying each consumer's batches reproduces the column state
//   - the relation's reverse index is the inverse of its forward view
//
// # Deterministic Traces
//
// A run produces one trace entry per cycle with every non-empty batch,
// rendered as canonical JSON. Traces are compared against golden files with
// goldie and can be written to a journal.
package harness
