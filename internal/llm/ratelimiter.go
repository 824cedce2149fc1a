package llm

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterConfig controls admission and retry behavior for a wrapped provider.
type RateLimiterConfig struct {
	RequestsPerMinute int
	Burst             int
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
}

// RateLimitedProvider wraps a Provider with a token-bucket rate limit and
// bounded exponential-backoff retries. The external services behind a provider
// enforce their own quotas; this keeps batched evaluation runs under them.
type RateLimitedProvider struct {
	inner   Provider
	limiter *rate.Limiter
	cfg     RateLimiterConfig
}

// NewRateLimitedProvider wraps inner with the given rate limit configuration.
func NewRateLimitedProvider(inner Provider, cfg RateLimiterConfig) (*RateLimitedProvider, error) {
	if inner == nil {
		return nil, fmt.Errorf("rate limiter: inner provider is nil")
	}
	if cfg.RequestsPerMinute <= 0 {
		return nil, fmt.Errorf("rate limiter: RequestsPerMinute must be positive, got %d", cfg.RequestsPerMinute)
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 10 * time.Second
	}

	limiter := rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), cfg.Burst)
	return &RateLimitedProvider{inner: inner, limiter: limiter, cfg: cfg}, nil
}

func (p *RateLimitedProvider) Name() string         { return p.inner.Name() }
func (p *RateLimitedProvider) DefaultModel() string { return p.inner.DefaultModel() }

// Complete waits for a token, then calls the inner provider, retrying
// transient failures up to MaxRetries times with doubling backoff.
func (p *RateLimitedProvider) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	var lastErr error
	backoff := p.cfg.InitialBackoff

	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			backoff *= 2
			if backoff > p.cfg.MaxBackoff {
				backoff = p.cfg.MaxBackoff
			}
		}

		if err := p.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}

		resp, err := p.inner.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
	}

	return nil, fmt.Errorf("provider %s failed after %d attempts: %w", p.inner.Name(), p.cfg.MaxRetries+1, lastErr)
}
