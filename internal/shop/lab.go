package shop

import (
	"context"
	"log/slog"
	"sync"
)

// Lab owns the shared environment instance for a process. Construction is
// lazy: the environment is built and reset on the first GetOrCreate call,
// and every later call returns the same instance. Pass the Lab by reference
// to whoever needs the environment instead of reaching for package state.
type Lab struct {
	registry *Registry
	envID    string
	opts     Options
	logger   *slog.Logger

	once sync.Once
	env  Environment
	err  error
}

// NewLab creates a Lab that will build envID from registry on first use.
func NewLab(registry *Registry, envID string, opts Options, logger *slog.Logger) *Lab {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Lab{
		registry: registry,
		envID:    envID,
		opts:     opts,
		logger:   logger,
	}
}

// GetOrCreate returns the shared environment, constructing and resetting it
// exactly once. A construction failure is sticky: later calls return the
// same error without retrying.
func (l *Lab) GetOrCreate(ctx context.Context) (Environment, error) {
	l.once.Do(func() {
		opts := l.opts.withDefaults()
		env, err := l.registry.Make(l.envID, opts)
		if err != nil {
			l.err = err
			return
		}
		if _, err := env.Reset(ctx); err != nil {
			l.err = err
			return
		}
		l.env = env
		l.logger.Info("shopping environment initialized",
			"env_id", l.envID,
			"num_products", opts.NumProducts,
			"observation_mode", opts.ObservationMode)
	})
	return l.env, l.err
}
