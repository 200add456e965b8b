package ratelimit

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Pacer spaces out outbound requests with a token bucket. Unlike the window
// counters it never rejects a caller, it only delays it.
type Pacer struct {
	limiter *rate.Limiter
	name    string
}

// NewPacer creates a pacer allowing perSecond requests with the given burst.
// A non-positive burst defaults to one request.
func NewPacer(name string, perSecond float64, burst int) *Pacer {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	return &Pacer{
		limiter: rate.NewLimiter(limit, burst),
		name:    name,
	}
}

// Wait blocks until the pacer allows a request to proceed.
// Returns an error if the context is cancelled.
func (p *Pacer) Wait(ctx context.Context) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", p.name, err)
	}
	return nil
}

// Allow reports whether a request can proceed without blocking.
func (p *Pacer) Allow() bool {
	return p.limiter.Allow()
}

// Name returns the name of this pacer.
func (p *Pacer) Name() string {
	return p.name
}
