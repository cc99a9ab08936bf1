package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	errs "igfetch/pkg/errors"
	"igfetch/pkg/logger"
	"igfetch/pkg/pacing"
)

// Config controls a retry loop. The zero value makes one attempt.
type Config struct {
	// MaxAttempts is the total number of attempts, including the first
	MaxAttempts int
	// Backoff picks the wait between attempts; nil means no wait
	Backoff BackoffStrategy
	// RetryIf decides whether a failed attempt is worth repeating.
	// Nil means DefaultRetryIf.
	RetryIf func(error) bool
	// OnRetry is called after a failed attempt, before the wait
	OnRetry func(attempt int, err error, delay time.Duration)
	Logger  logger.Logger
}

// DefaultConfig returns three attempts spaced by a random 1-2s wait
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		Backoff:     NewPacedBackoff(pacing.Between(time.Second, 2*time.Second)),
		RetryIf:     DefaultRetryIf,
	}
}

type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent wraps err so that DefaultRetryIf stops retrying it
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// DefaultRetryIf retries everything except Permanent errors, usage and
// validation failures, and context errors
func DefaultRetryIf(err error) bool {
	var perm *permanentError
	switch {
	case err == nil, errors.As(err, &perm):
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	}
	switch errs.KindOf(err) {
	case errs.KindUsage, errs.KindValidation:
		return false
	}
	return true
}

// Do calls op until it succeeds, returns an error RetryIf rejects, or
// MaxAttempts is used up. op receives the 1-based attempt number. There is
// no wait after the final attempt.
func Do(ctx context.Context, cfg Config, op func(attempt int) error) error {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	retryIf := cfg.RetryIf
	if retryIf == nil {
		retryIf = DefaultRetryIf
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}
	if cfg.Backoff != nil {
		cfg.Backoff.Reset()
	}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := op(attempt)
		if err == nil {
			if attempt > 1 {
				log.DebugWithFields("Succeeded after retry", map[string]interface{}{"attempt": attempt})
			}
			return nil
		}
		if !retryIf(err) {
			return err
		}
		if attempt >= maxAttempts {
			log.WithError(err).WarnWithFields("Giving up", map[string]interface{}{"attempts": attempt})
			return fmt.Errorf("gave up after %d attempts: %w", attempt, err)
		}

		var delay time.Duration
		if cfg.Backoff != nil {
			delay = cfg.Backoff.NextDelay(attempt)
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, delay)
		}
		log.WithError(err).WarnWithFields("Attempt failed, retrying", map[string]interface{}{
			"attempt":      attempt,
			"max_attempts": maxAttempts,
			"delay":        delay,
		})

		if werr := Wait(ctx, delay); werr != nil {
			return fmt.Errorf("retry interrupted: %w", errors.Join(werr, err))
		}
	}
}

// DoWithResult is Do for operations that produce a value. The value of the
// last attempt is returned alongside its error.
func DoWithResult[T any](ctx context.Context, cfg Config, op func(attempt int) (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, func(attempt int) error {
		var opErr error
		result, opErr = op(attempt)
		return opErr
	})
	return result, err
}
