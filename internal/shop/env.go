// Package shop wraps a simulated web-shopping text environment behind a
// gym-style registry. Environments are registered by id and constructed
// through Make; the Lab handle owns the lazily-built shared instance.
package shop

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// DefaultNumProducts is the catalog size used when options do not override it.
const DefaultNumProducts = 50000

// ObservationModeText renders observations as plain text.
const ObservationModeText = "text"

// StepResult is the outcome of one environment step.
type StepResult struct {
	Observation string
	Reward      float64
	Done        bool
}

// Environment is a text-observation shopping environment. Reset must be
// called before the first Step.
type Environment interface {
	Reset(ctx context.Context) (observation string, err error)
	Step(ctx context.Context, action string) (StepResult, error)
	Observation() string
}

// Options configure environment construction.
type Options struct {
	NumProducts     int
	ObservationMode string
}

func (o Options) withDefaults() Options {
	if o.NumProducts <= 0 {
		o.NumProducts = DefaultNumProducts
	}
	if o.ObservationMode == "" {
		o.ObservationMode = ObservationModeText
	}
	return o
}

// Factory constructs an environment instance.
type Factory func(opts Options) (Environment, error)

// Registry maps environment ids to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty environment registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under id. Registering an id twice is an error.
func (r *Registry) Register(id string, factory Factory) error {
	if id == "" {
		return fmt.Errorf("environment id is required")
	}
	if factory == nil {
		return fmt.Errorf("environment factory is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[id]; exists {
		return fmt.Errorf("environment %q already registered", id)
	}
	r.factories[id] = factory
	return nil
}

// Make constructs a new environment instance for id with defaulted options.
func (r *Registry) Make(id string, opts Options) (Environment, error) {
	r.mu.RLock()
	factory, ok := r.factories[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("environment %q not registered", id)
	}
	return factory(opts.withDefaults())
}

// IDs lists the registered environment ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SearchAction formats a catalog search action for the environment.
func SearchAction(query string) string {
	return fmt.Sprintf("search[%s]", query)
}

// ClickAction formats a button-click action for the environment.
func ClickAction(button string) string {
	return fmt.Sprintf("click[%s]", button)
}
