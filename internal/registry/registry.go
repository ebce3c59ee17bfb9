// Package registry shares named computations through fork nodes.
//
// A Registry is created once by its owner and passed to whoever needs a
// shared computation. The first ForkOrInsert for a name builds the
// computation; later calls return new consumers of the same fork node. The
// registry keeps a static consumer per name so the node survives while no
// other consumer exists. Close tears every prototype down.
package registry

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/roach88/incr/internal/collection"
	"github.com/roach88/incr/internal/fork"
)

type entry struct {
	prototype any
	close     func()
}

// Registry maps names to shared computations.
//
// Thread-safety: all methods are safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	arena   *fork.Arena
	entries map[string]entry
	logger  *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithArena sets the arena holding the fork nodes.
func WithArena(a *fork.Arena) Option {
	return func(r *Registry) {
		r.arena = a
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = l
	}
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		entries: make(map[string]entry),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.arena == nil {
		r.arena = fork.NewArena(fork.WithLogger(r.logger))
	}
	return r
}

// Arena returns the arena holding the registry's fork nodes.
func (r *Registry) Arena() *fork.Arena { return r.arena }

// ForkOrInsert returns a new consumer of the computation registered under
// name, building it with create on first use.
//
// Registering a name with different key or value types panics.
func ForkOrInsert[K comparable, V comparable](r *Registry, name string, create func() collection.Collection[K, V]) *fork.Fork[K, V] {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[name]; ok {
		proto, ok := e.prototype.(*fork.Fork[K, V])
		if !ok {
			panic(fmt.Sprintf("registry: %q registered as %T", name, e.prototype))
		}
		return proto.Clone()
	}

	first := fork.New(r.arena, name, create())
	proto := first.CloneStatic()
	r.entries[name] = entry{prototype: proto, close: proto.Close}
	r.logger.Debug("shared computation registered", "name", name, "node", first.Node())
	return first
}

// Remove drops the prototype of name. Existing consumers keep working; the
// fork node goes away with the last of them.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	e, ok := r.entries[name]
	delete(r.entries, name)
	r.mu.Unlock()

	if ok {
		e.close()
	}
	return ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Close removes every registration.
func (r *Registry) Close() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]entry)
	r.mu.Unlock()

	for _, e := range entries {
		e.close()
	}
}
