// Package ratelimit paces calls to quota-limited LLM providers.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Pacer enforces a minimum interval between consecutive calls to one provider.
// It is safe for concurrent use; sessions sharing an API key should share a Pacer.
type Pacer struct {
	name     string
	interval time.Duration
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// NewPacer creates a pacer. A non-positive interval disables pacing.
func NewPacer(name string, interval time.Duration, logger *zap.Logger) *Pacer {
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Pacer{
		name:     name,
		interval: interval,
		limiter:  rate.NewLimiter(limit, 1),
		logger:   logger.With(zap.String("component", "pacer"), zap.String("provider", name)),
	}
}

// Wait blocks until the next call is allowed or ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	start := time.Now()
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("pacer %s: %w", p.name, err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		p.logger.Debug("provider call paced", zap.Duration("waited", waited))
	}
	return nil
}

// Interval returns the configured minimum interval.
func (p *Pacer) Interval() time.Duration { return p.interval }

// Name returns the provider the pacer guards.
func (p *Pacer) Name() string { return p.name }

// Registry hands out one shared Pacer per provider name.
type Registry struct {
	mu     sync.Mutex
	pacers map[string]*Pacer
	logger *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{pacers: make(map[string]*Pacer), logger: logger}
}

// Get returns the pacer for name, creating it with interval on first use.
// Later calls keep the interval the pacer was created with.
func (r *Registry) Get(name string, interval time.Duration) *Pacer {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.pacers[name]; ok {
		return p
	}
	p := NewPacer(name, interval, r.logger)
	r.pacers[name] = p
	return p
}
