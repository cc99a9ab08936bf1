// Package pacing holds the delay policies that space out browser actions,
// page fetches and download retries.
package pacing

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// Policy yields the next wait duration
type Policy interface {
	Next() time.Duration
}

// Fixed always waits the same duration
type Fixed time.Duration

func (f Fixed) Next() time.Duration { return time.Duration(f) }

// None never waits
var None Policy = Fixed(0)

// Range waits a uniformly random duration in [Min, Max]
type Range struct {
	Min time.Duration
	Max time.Duration

	mu  sync.Mutex
	rnd *rand.Rand
}

// Between returns a Range policy. Arguments given in the wrong order are swapped.
func Between(min, max time.Duration) *Range {
	if max < min {
		min, max = max, min
	}
	return &Range{Min: min, Max: max}
}

// WithSeed makes the sequence deterministic
func (r *Range) WithSeed(seed uint64) *Range {
	r.mu.Lock()
	r.rnd = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	r.mu.Unlock()
	return r
}

func (r *Range) Next() time.Duration {
	span := int64(r.Max - r.Min)
	if span <= 0 {
		return r.Min
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rnd != nil {
		return r.Min + time.Duration(r.rnd.Int64N(span+1))
	}
	return r.Min + time.Duration(rand.Int64N(span+1))
}

// IntRange picks uniformly random integers in [Min, Max], used for scroll steps
type IntRange struct {
	Min int
	Max int
}

func (r IntRange) Next() int {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + rand.IntN(r.Max-r.Min+1)
}

// Sequence replays fixed durations, then repeats the last one. Tests use it
// to observe exactly which waits a component requested.
type Sequence struct {
	mu     sync.Mutex
	values []time.Duration
	calls  int
}

func NewSequence(values ...time.Duration) *Sequence {
	return &Sequence{values: values}
}

func (s *Sequence) Next() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.values) == 0 {
		return 0
	}
	idx := s.calls - 1
	if idx >= len(s.values) {
		idx = len(s.values) - 1
	}
	return s.values[idx]
}

// Calls reports how many delays have been drawn
func (s *Sequence) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Sleep waits for d or until ctx is done
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait draws the next delay from p and sleeps for it. A nil policy does not wait.
func Wait(ctx context.Context, p Policy) error {
	if p == nil {
		return ctx.Err()
	}
	return Sleep(ctx, p.Next())
}
