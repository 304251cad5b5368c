package utils

import (
	"context"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Gate bounds calls to third-party lookup services: at most n in flight,
// paced by an optional token bucket.
type Gate struct {
	sem     *semaphore.Weighted
	limiter *rate.Limiter
}

// NewGate returns a gate admitting n concurrent calls. perSecond <= 0
// disables pacing.
func NewGate(n int, perSecond float64) *Gate {
	if n < 1 {
		n = 1
	}
	g := &Gate{sem: semaphore.NewWeighted(int64(n))}
	if perSecond > 0 {
		burst := n * 2
		g.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
	return g
}

// Do waits for a slot, runs fn and releases the slot.
func (g *Gate) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer g.sem.Release(1)
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	return fn(ctx)
}
