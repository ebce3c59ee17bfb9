package collection

import (
	"github.com/roach88/incr/internal/change"
	"github.com/roach88/incr/internal/signal"
)

// Request is an advisory hint forwarded down the graph.
type Request int

const (
	// RequestShrinkToFit asks stateful nodes to release spare capacity.
	RequestShrinkToFit Request = iota + 1
)

// String returns the request name.
func (r Request) String() string {
	switch r {
	case RequestShrinkToFit:
		return "shrink_to_fit"
	default:
		return "unknown"
	}
}

// Op identifies the kind of a collection node.
type Op string

const (
	OpSource      Op = "source"      // mutable input or storage column
	OpMap         Op = "map"         // per-value transform
	OpFilterMap   Op = "filter_map"  // per-value transform that may drop rows
	OpDiff        Op = "diff"        // values that differ between two inputs
	OpUnion       Op = "union"       // key-wise merge of two inputs
	OpExecuteMap  Op = "execute_map" // keyed query executed per row
	OpMaterialize Op = "materialize" // cached copy of an input
	OpDebug       Op = "debug"       // logs changes passing through
	OpFork        Op = "fork"        // shared upstream with cloned consumers
	OpRelation    Op = "relation"    // multi-valued key index
	OpReduce      Op = "reduce"      // per-key aggregation
	OpFanout      Op = "fanout"      // one input to many keys
)

// Collection is a reactive keyed collection.
//
// PollChanges returns the changes since the previous poll of this node and
// a view of the state after those changes. Polling twice without upstream
// mutations yields an empty change query the second time. Both results are
// invalidated by the next poll.
type Collection[K comparable, V comparable] interface {
	PollChanges(cx *signal.Context) (Query[K, change.ValueChange[V]], Query[K, V])
	Request(r Request)
	Op() Op
}
