package harness

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/roach88/incr/internal/canonical"
	"github.com/roach88/incr/internal/change"
	"github.com/roach88/incr/internal/collection"
	"github.com/roach88/incr/internal/driver"
	"github.com/roach88/incr/internal/fork"
	"github.com/roach88/incr/internal/journal"
	"github.com/roach88/incr/internal/metrics"
	"github.com/roach88/incr/internal/registry"
	"github.com/roach88/incr/internal/relation"
	"github.com/roach88/incr/internal/signal"
	"github.com/roach88/incr/internal/storage"
	"github.com/roach88/incr/internal/watch"
)

// Root names used in traces.
const (
	RootValue  = "value"
	RootGroups = "groups"
)

// Result contains the outcome of a scenario run.
type Result struct {
	Scenario string
	RunID    string // journal run id, empty without a journal
	Trace    []CycleTrace
	Errors   []string
	Pass     bool
	Digest   string // digest of Snapshot
}

// CycleTrace is what one cycle delivered.
type CycleTrace struct {
	Cycle int64

	// Changes maps root names to their non-empty batches.
	Changes canonical.Object

	// Reverse is the relation's reverse index after the cycle. Nil unless
	// the scenario has a relation.
	Reverse canonical.Object
}

// Option configures a run.
type Option func(*runConfig)

type runConfig struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
	journal *journal.Journal
}

// WithLogger sets the logger handed to every engine component.
func WithLogger(l *slog.Logger) Option {
	return func(c *runConfig) {
		c.logger = l
	}
}

// WithMetrics sets the instruments of the run's arena, group and driver.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *runConfig) {
		c.metrics = m
	}
}

// WithJournal records every cycle of the run.
func WithJournal(j *journal.Journal) Option {
	return func(c *runConfig) {
		c.journal = j
	}
}

// Run executes a scenario and returns its trace and failed checks.
//
// An error is returned when the run could not complete: a programmer
// contract violation aborted a cycle, or the journal failed. Failed checks
// are reported in Result.Errors instead.
func Run(ctx context.Context, s *Scenario, opts ...Option) (*Result, error) {
	cfg := runConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}

	p, err := build(s, cfg)
	if err != nil {
		return nil, err
	}
	defer p.close()

	result := &Result{Scenario: s.Name}
	if cfg.journal != nil {
		if result.RunID, err = cfg.journal.BeginRun(ctx, s.Name); err != nil {
			return nil, err
		}
	}

	for i, cycle := range s.Cycles {
		p.cycle = i + 1
		p.join()
		p.apply(cycle)

		report, err := p.driver.Step()
		if err != nil {
			if cfg.journal != nil {
				_ = cfg.journal.FinishRun(ctx, result.RunID, journal.StatusFailed, "")
			}
			return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
		}

		trace := p.trace(report.Cycle)
		result.Trace = append(result.Trace, trace)
		result.Errors = append(result.Errors, p.check(cycle.Expect)...)

		if cfg.journal != nil {
			if err := cfg.journal.RecordCycle(ctx, result.RunID, trace.Cycle, trace.Changes); err != nil {
				return nil, err
			}
		}
	}

	result.Pass = len(result.Errors) == 0
	if result.Digest, err = canonical.Digest(canonical.DomainTrace, result.Snapshot()); err != nil {
		return nil, err
	}

	if cfg.journal != nil {
		status := journal.StatusPassed
		if !result.Pass {
			status = journal.StatusFailed
		}
		if err := cfg.journal.FinishRun(ctx, result.RunID, status, result.Digest); err != nil {
			return nil, err
		}
	}

	cfg.logger.Debug("scenario complete",
		"scenario", s.Name,
		"cycles", len(result.Trace),
		"pass", result.Pass,
	)
	return result, nil
}

// Snapshot renders the trace as one canonical document.
func (r *Result) Snapshot() canonical.Object {
	cycles := make(canonical.Array, len(r.Trace))
	for i, c := range r.Trace {
		entry := canonical.Object{
			"cycle":   canonical.Int(c.Cycle),
			"changes": c.Changes,
		}
		if c.Reverse != nil {
			entry["reverse"] = c.Reverse
		}
		cycles[i] = entry
	}
	return canonical.Object{
		"scenario": canonical.String(r.Scenario),
		"cycles":   cycles,
	}
}

// tracked is a root whose batches are rendered and mirrored.
type tracked struct {
	name   string
	join   int
	batch  canonical.Object
	mirror map[storage.Handle]string
	polled bool
}

// pipeline is the collection graph of one scenario run.
type pipeline struct {
	scenario *Scenario
	column   *storage.Column[string]
	source   *storage.Source[string]
	registry *registry.Registry
	group    *watch.Group
	driver   *driver.Driver
	cycle    int

	roots   []*tracked
	late    []*lateFork
	reverse canonical.Object
	groups  map[string]struct{}
	groupsB canonical.Object
	errors  []string
	closers []func()
}

func build(s *Scenario, cfg runConfig) (*pipeline, error) {
	store, err := newStorage(s.Storage)
	if err != nil {
		return nil, err
	}

	p := &pipeline{
		scenario: s,
		column:   storage.NewColumn[string](RootValue, store),
	}
	for h, v := range s.Initial {
		handle, err := parseHandle(h)
		if err != nil {
			return nil, err
		}
		p.column.Set(handle, v)
	}

	p.driver = driver.New(
		driver.WithLogger(cfg.logger),
		driver.WithMetrics(cfg.metrics),
		driver.WithMaxCycles(int64(len(s.Cycles))),
	)
	arena := fork.NewArena(fork.WithLogger(cfg.logger), fork.WithMetrics(cfg.metrics))
	p.registry = registry.New(registry.WithArena(arena), registry.WithLogger(cfg.logger))
	p.source = p.column.Collection()

	base := p.share()
	p.track(RootValue, 1, func(cx *signal.Context) change.Batch[storage.Handle, string] {
		changes, _ := base.PollChanges(cx)
		return collection.ToBatch(changes)
	})

	if s.Relation {
		p.buildRelation()
	}

	for _, c := range s.Consumers {
		switch c.Kind {
		case ConsumerFork:
			p.addLateFork(c)
		case ConsumerWatch:
			if p.group == nil {
				p.group = watch.New(
					watch.WithListener(p.driver.Listener()),
					watch.WithLogger(cfg.logger),
					watch.WithMetrics(cfg.metrics),
				)
				p.driver.AddGroup(p.group)
			}
			p.addWatch(c)
		}
	}
	return p, nil
}

type row struct {
	value string
}

func newStorage(kind string) (storage.Storage[string], error) {
	switch kind {
	case "", StorageSparse:
		return storage.NewSparse[string](), nil
	case StorageDense:
		return storage.NewDense[string](), nil
	case StorageInterleaved:
		t := storage.NewInterleaved[row]()
		return storage.AddField(t, func(r *row) *string { return &r.value }), nil
	default:
		return nil, fmt.Errorf("unknown storage %q", kind)
	}
}

// share returns a new consumer of the shared column computation.
func (p *pipeline) share() *fork.Fork[storage.Handle, string] {
	f := registry.ForkOrInsert(p.registry, RootValue, func() collection.Collection[storage.Handle, string] {
		return p.source
	})
	p.closers = append(p.closers, f.Close)
	return f
}

// track registers a driver root that is polled from cycle join onwards.
func (p *pipeline) track(name string, join int, poll func(cx *signal.Context) change.Batch[storage.Handle, string]) {
	t := &tracked{name: name, join: join, mirror: make(map[storage.Handle]string)}
	p.roots = append(p.roots, t)

	p.driver.AddRoot(name, func(cx *signal.Context) int {
		t.batch = nil
		if p.cycle < t.join {
			return 0
		}
		t.polled = true
		b := poll(cx)
		b.Apply(t.mirror)
		if !b.IsEmpty() {
			t.batch = canonical.Batch[storage.Handle, string](b, formatHandle, stringValue)
		}
		return b.Len()
	})
}

// lateFork is a fork consumer cloned right before its join cycle.
type lateFork struct {
	join int
	fork *fork.Fork[storage.Handle, string]
}

func (p *pipeline) addLateFork(c Consumer) {
	lf := &lateFork{join: c.Join}
	p.late = append(p.late, lf)
	p.track("fork:"+c.Name, c.Join, func(cx *signal.Context) change.Batch[storage.Handle, string] {
		changes, _ := lf.fork.PollChanges(cx)
		return collection.ToBatch(changes)
	})
}

// join clones the fork consumers joining in the current cycle. Cloning
// happens while the node is idle, so the clone takes part in the cycle's
// distribution with the full state.
func (p *pipeline) join() {
	for _, lf := range p.late {
		if lf.join == p.cycle {
			lf.fork = p.share()
		}
	}
}

func (p *pipeline) addWatch(c Consumer) {
	var (
		id       watch.ConsumerID
		attached bool
	)
	p.track("watch:"+c.Name, c.Join, func(*signal.Context) change.Batch[storage.Handle, string] {
		if !attached {
			id = p.group.AllocateConsumerID()
			attached = true
		}
		_, b := watch.GetBufferedChanges(p.group, p.column, id)
		return b
	})
}

// buildRelation derives the reverse index of handle -> value and the set
// of values referenced by at least one handle.
func (p *pipeline) buildRelation() {
	rel := relation.NewHash[storage.Handle, string](p.share())
	p.driver.AddRoot("relation", func(cx *signal.Context) int {
		changes, forward, reverse := rel.PollRelation(cx)
		if err := relation.Verify(forward, reverse); err != nil {
			p.errors = append(p.errors, fmt.Sprintf("relation: %v", err))
		}
		p.reverse = renderReverse(reverse)
		return collection.ToBatch(changes).Len()
	})

	members := collection.Map[storage.Handle, string, struct{}](p.share(), func(storage.Handle, string) struct{} {
		return struct{}{}
	})
	reduced := relation.Reduce[storage.Handle, string](members, p.share())
	p.groups = make(map[string]struct{})
	p.driver.AddRoot(RootGroups, func(cx *signal.Context) int {
		changes, _ := reduced.PollChanges(cx)
		b := collection.ToBatch(changes)
		b.Apply(p.groups)
		p.groupsB = nil
		if !b.IsEmpty() {
			p.groupsB = canonical.Batch[string, struct{}](b, identity, presentValue)
		}
		return b.Len()
	})
}

func renderReverse(reverse collection.MultiQuery[string, storage.Handle]) canonical.Object {
	obj := make(canonical.Object)
	for one := range reverse.IterKeyInMultiCollection() {
		var members []storage.Handle
		for m := range reverse.AccessMulti(one) {
			members = append(members, m)
		}
		if len(members) == 0 {
			continue
		}
		slices.Sort(members)
		arr := make(canonical.Array, len(members))
		for i, m := range members {
			arr[i] = canonical.String(formatHandle(m))
		}
		obj[one] = arr
	}
	return obj
}

// apply writes one cycle into the column: sets first, then deletes.
func (p *pipeline) apply(c Cycle) {
	p.column.Write(func(w *storage.Writer[string]) {
		for _, h := range slices.Sorted(maps.Keys(c.Set)) {
			handle, _ := parseHandle(h)
			w.Set(handle, c.Set[h])
		}
		for _, h := range c.Delete {
			handle, _ := parseHandle(h)
			w.Delete(handle)
		}
	})
}

func (p *pipeline) trace(cycle int64) CycleTrace {
	t := CycleTrace{Cycle: cycle, Changes: make(canonical.Object)}
	for _, r := range p.roots {
		if r.batch != nil {
			t.Changes[r.name] = r.batch
		}
	}
	if p.scenario.Relation {
		if p.groupsB != nil {
			t.Changes[RootGroups] = p.groupsB
		}
		t.Reverse = p.reverse
	}
	return t
}

func (p *pipeline) close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		p.closers[i]()
	}
	p.registry.Close()
	if p.group != nil {
		p.group.Close()
	}
	p.source.Close()
	p.column.Close()
}

func stringValue(v string) canonical.Value { return canonical.String(v) }

func presentValue(struct{}) canonical.Value { return canonical.Bool(true) }

func identity(s string) string { return s }
