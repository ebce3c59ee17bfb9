package driver

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/incr/internal/change"
	"github.com/roach88/incr/internal/collection"
	"github.com/roach88/incr/internal/contract"
	"github.com/roach88/incr/internal/metrics"
	"github.com/roach88/incr/internal/signal"
	"github.com/roach88/incr/internal/watch"
)

// DefaultMaxCycles bounds Run when no limit is configured. Zero means no
// limit.
const DefaultMaxCycles = 0

// Report summarizes one cycle.
type Report struct {
	Cycle    int64
	Changes  map[string]int // changed keys per root
	Duration time.Duration
}

// Total returns the number of changed keys over all roots.
func (r Report) Total() int {
	n := 0
	for _, c := range r.Changes {
		n += c
	}
	return n
}

type root struct {
	name string
	poll func(cx *signal.Context) int
}

// Driver polls registered roots once per cycle.
type Driver struct {
	signal    *signal.Signal
	clock     *Clock
	roots     []root
	groups    []*watch.Group
	observers []func(Report)
	maxCycles int64
	failed    error
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// Option configures a Driver.
type Option func(*Driver)

// WithMaxCycles bounds the number of cycles. Zero disables the bound.
//
// Use WithMaxCycles(10) in tests to catch a graph that never quiesces.
func WithMaxCycles(n int64) Option {
	return func(d *Driver) {
		d.maxCycles = n
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) {
		d.logger = l
	}
}

// WithMetrics sets the instruments updated per cycle.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Driver) {
		d.metrics = m
	}
}

// WithClock sets the cycle clock, e.g. to resume numbering.
func WithClock(c *Clock) Option {
	return func(d *Driver) {
		d.clock = c
	}
}

// New creates a driver without roots.
func New(opts ...Option) *Driver {
	d := &Driver{
		signal:    signal.New(),
		clock:     NewClock(),
		maxCycles: DefaultMaxCycles,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.metrics = metrics.Or(d.metrics)
	return d
}

// Listener returns the listener writers wake.
func (d *Driver) Listener() signal.Listener {
	return d.signal
}

// AddRoot registers a poll function. It returns the number of changed keys.
// Roots are polled in registration order.
func (d *Driver) AddRoot(name string, poll func(cx *signal.Context) int) {
	d.roots = append(d.roots, root{name: name, poll: poll})
}

// Observe registers c as a root and hands every polled batch and view to fn.
// The view is only valid inside fn.
func Observe[K comparable, V comparable](
	d *Driver,
	name string,
	c collection.Collection[K, V],
	fn func(changes change.Batch[K, V], view collection.Query[K, V]),
) {
	d.AddRoot(name, func(cx *signal.Context) int {
		changes, view := c.PollChanges(cx)
		batch := collection.ToBatch(changes)
		if fn != nil {
			fn(batch, view)
		}
		return batch.Len()
	})
}

// AddGroup ends the cycle of g after every Step.
func (d *Driver) AddGroup(g *watch.Group) {
	d.groups = append(d.groups, g)
}

// OnCycle registers fn to receive every cycle report.
func (d *Driver) OnCycle(fn func(Report)) {
	d.observers = append(d.observers, fn)
}

// Cycle returns the number of the last cycle.
func (d *Driver) Cycle() int64 {
	return d.clock.Current()
}

// Step runs one cycle.
func (d *Driver) Step() (Report, error) {
	if d.failed != nil {
		return Report{}, d.failed
	}

	cycle := d.clock.Next()
	if d.maxCycles > 0 && cycle > d.maxCycles {
		return Report{Cycle: cycle}, &CyclesExceededError{Cycles: cycle, Limit: d.maxCycles}
	}

	start := time.Now()
	report := Report{Cycle: cycle, Changes: make(map[string]int, len(d.roots))}
	cx := signal.NewContext(d.signal)

	v := contract.Catch(func() {
		for _, r := range d.roots {
			report.Changes[r.name] = r.poll(cx)
		}
	})
	for _, g := range d.groups {
		g.ClearChanges()
	}
	report.Duration = time.Since(start)

	if v != nil {
		d.failed = &CycleError{Cycle: cycle, Violation: v}
		d.logger.Error("cycle aborted",
			"cycle", cycle,
			"code", string(v.Code),
			"error", v.Message,
		)
		return report, d.failed
	}

	d.metrics.DriverCycles.Inc()
	d.metrics.DriverCycleSeconds.Observe(report.Duration.Seconds())
	d.logger.Debug("cycle complete",
		"cycle", cycle,
		"changes", report.Total(),
		"duration", report.Duration,
	)
	for _, fn := range d.observers {
		fn(report)
	}
	return report, nil
}

// Run cycles whenever the listener was woken. It blocks until ctx is
// cancelled, Stop is called, or a cycle fails.
func (d *Driver) Run(ctx context.Context) error {
	d.logger.Info("driver starting", "roots", len(d.roots))

	for {
		if _, err := d.Step(); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			d.logger.Info("driver stopping: context cancelled")
			return ctx.Err()

		case _, ok := <-d.signal.Wait():
			if !ok {
				d.logger.Info("driver stopping: stopped")
				return nil
			}
		}
	}
}

// Stop makes Run return after the current cycle.
func (d *Driver) Stop() {
	d.signal.Close()
}
