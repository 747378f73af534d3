package core

import (
	"fmt"
	"sort"
	"sync"

	"github.com/comalice/ctlfsm/internal/logging"
)

// Registry holds independently addressable engines by name. Construct one
// per application and pass it where machines are looked up.
type Registry struct {
	logger *logging.Logger
	opts   []Option

	mu       sync.Mutex
	machines map[string]*Engine
}

// NewRegistry returns an empty registry. opts are applied to every engine
// it creates, before the per-call options.
func NewRegistry(logger *logging.Logger, opts ...Option) *Registry {
	return &Registry{
		logger:   logger,
		opts:     opts,
		machines: make(map[string]*Engine),
	}
}

// Create returns a new engine registered under name, or the existing one if
// the name is taken.
func (r *Registry) Create(name string, opts ...Option) *Engine {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.machines[name]; ok {
		r.logger.Warning().Str("machine", name).Log("machine already exists, returning it")
		return e
	}
	all := make([]Option, 0, len(r.opts)+len(opts)+2)
	all = append(all, WithLogger(r.logger))
	all = append(all, r.opts...)
	all = append(all, opts...)
	all = append(all, WithName(name))
	e := New(all...)
	r.machines[name] = e
	return e
}

// Get returns the engine registered under name.
func (r *Registry) Get(name string) (*Engine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.machines[name]
	if !ok {
		return nil, fmt.Errorf("machine %q: %w", name, ErrNotFound)
	}
	return e, nil
}

// Remove stops and forgets the engine registered under name.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	e, ok := r.machines[name]
	delete(r.machines, name)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("machine %q: %w", name, ErrNotFound)
	}
	e.Stop()
	return nil
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.machines))
	for name := range r.machines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StopAll stops every registered engine.
func (r *Registry) StopAll() {
	r.mu.Lock()
	machines := make([]*Engine, 0, len(r.machines))
	for _, e := range r.machines {
		machines = append(machines, e)
	}
	r.mu.Unlock()
	for _, e := range machines {
		e.Stop()
	}
}
