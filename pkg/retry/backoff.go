package retry

import (
	"context"
	"time"

	"igfetch/pkg/pacing"
)

// BackoffStrategy picks the wait before the next attempt
type BackoffStrategy interface {
	// NextDelay returns the delay after the given failed attempt (1-based)
	NextDelay(attempt int) time.Duration
	// Reset is called before the first attempt
	Reset()
}

// PacedBackoff draws every delay from a pacing policy, ignoring the attempt number
type PacedBackoff struct {
	Policy pacing.Policy
}

// NewPacedBackoff returns a backoff backed by p
func NewPacedBackoff(p pacing.Policy) *PacedBackoff {
	return &PacedBackoff{Policy: p}
}

func (pb *PacedBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 || pb.Policy == nil {
		return 0
	}
	return pb.Policy.Next()
}

func (pb *PacedBackoff) Reset() {}

// Wait waits for the specified duration or until context is cancelled
func Wait(ctx context.Context, delay time.Duration) error {
	return pacing.Sleep(ctx, delay)
}
