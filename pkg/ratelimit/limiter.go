package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter defines the interface for rate limiting
type Limiter interface {
	// Allow checks if a request is allowed right now, consuming the slot if so
	Allow() bool
	// Wait blocks until the limiter allows another request or ctx is done
	Wait(ctx context.Context) error
	// Reset restores the initial state, so the next request is immediate
	Reset()
}

// Interval spaces requests at least a fixed period apart. The first request
// is never delayed.
type Interval struct {
	period time.Duration

	mu      sync.Mutex
	limiter *rate.Limiter
}

// NewInterval creates a limiter that admits one request per period
func NewInterval(period time.Duration) *Interval {
	iv := &Interval{period: period}
	iv.limiter = iv.newLimiter()
	return iv
}

func (iv *Interval) newLimiter() *rate.Limiter {
	if iv.period <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(iv.period), 1)
}

// Period returns the configured spacing
func (iv *Interval) Period() time.Duration {
	return iv.period
}

func (iv *Interval) current() *rate.Limiter {
	iv.mu.Lock()
	defer iv.mu.Unlock()
	return iv.limiter
}

func (iv *Interval) Allow() bool {
	return iv.current().Allow()
}

func (iv *Interval) Wait(ctx context.Context) error {
	return iv.current().Wait(ctx)
}

func (iv *Interval) Reset() {
	iv.mu.Lock()
	defer iv.mu.Unlock()
	iv.limiter = iv.newLimiter()
}

// Unlimited never delays. Tests and one-shot lookups use it.
func Unlimited() Limiter {
	return unlimited{}
}

type unlimited struct{}

func (unlimited) Allow() bool                    { return true }
func (unlimited) Wait(ctx context.Context) error { return ctx.Err() }
func (unlimited) Reset()                         {}
