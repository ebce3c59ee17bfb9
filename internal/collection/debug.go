package collection

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/incr/internal/change"
	"github.com/roach88/incr/internal/signal"
)

// Debug logs every poll of upstream at debug level and passes it through.
func Debug[K comparable, V comparable](upstream Collection[K, V], name string, logger *slog.Logger) Collection[K, V] {
	if logger == nil {
		logger = slog.Default()
	}
	return &debugNode[K, V]{upstream: upstream, name: name, logger: logger}
}

type debugNode[K comparable, V comparable] struct {
	upstream Collection[K, V]
	name     string
	logger   *slog.Logger
	polls    uint64
}

func (n *debugNode[K, V]) PollChanges(cx *signal.Context) (Query[K, change.ValueChange[V]], Query[K, V]) {
	changes, view := n.upstream.PollChanges(cx)
	n.polls++

	if !n.logger.Enabled(context.Background(), slog.LevelDebug) {
		return changes, view
	}
	batch := ToBatch(changes)
	n.logger.Debug("poll",
		"node", n.name,
		"poll", n.polls,
		"changes", batch.Len(),
	)
	for k, c := range batch {
		n.logger.Debug("change",
			"node", n.name,
			"key", fmt.Sprint(k),
			"change", c.String(),
		)
	}
	return batch, view
}

func (n *debugNode[K, V]) Request(r Request) {
	n.logger.Debug("request", "node", n.name, "request", r.String())
	n.upstream.Request(r)
}

func (n *debugNode[K, V]) Op() Op { return OpDebug }
