package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestIntervalFirstRequestImmediate(t *testing.T) {
	iv := NewInterval(time.Hour)

	if !iv.Allow() {
		t.Fatal("Expected first request to be allowed")
	}
	if iv.Allow() {
		t.Error("Expected second request inside the interval to be denied")
	}
}

func TestIntervalWaitSpacing(t *testing.T) {
	iv := NewInterval(50 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := iv.Wait(ctx); err != nil {
			t.Fatalf("Wait returned error: %v", err)
		}
	}
	elapsed := time.Since(start)

	// Two gaps after the immediate first request
	if elapsed < 90*time.Millisecond {
		t.Errorf("Expected at least ~100ms for 3 requests, got %v", elapsed)
	}
}

func TestIntervalWaitCancelled(t *testing.T) {
	iv := NewInterval(time.Hour)
	iv.Allow()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := iv.Wait(ctx); err == nil {
		t.Error("Expected error when the wait cannot finish before the deadline")
	}
}

func TestIntervalReset(t *testing.T) {
	iv := NewInterval(time.Hour)
	iv.Allow()
	if iv.Allow() {
		t.Fatal("Expected limiter to be exhausted")
	}

	iv.Reset()
	if !iv.Allow() {
		t.Error("Expected request to be allowed after reset")
	}
}

func TestIntervalZeroPeriod(t *testing.T) {
	iv := NewInterval(0)
	for i := 0; i < 10; i++ {
		if !iv.Allow() {
			t.Fatalf("Expected unlimited behavior for zero period, denied at %d", i)
		}
	}
	if iv.Period() != 0 {
		t.Errorf("Expected zero period, got %v", iv.Period())
	}
}

func TestUnlimited(t *testing.T) {
	l := Unlimited()
	for i := 0; i < 100; i++ {
		if !l.Allow() {
			t.Fatal("Unlimited limiter denied a request")
		}
	}
	if err := l.Wait(context.Background()); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Wait(ctx); err == nil {
		t.Error("Expected cancelled context to surface")
	}
}
