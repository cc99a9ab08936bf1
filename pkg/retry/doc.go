// Package retry runs operations that may fail transiently.
//
// Do calls an operation up to Config.MaxAttempts times, waiting between
// attempts for the delay chosen by a BackoffStrategy. There is no wait after
// the final attempt. Errors wrapped with Permanent, usage and validation
// failures, and context errors are returned immediately.
//
//	err := retry.Do(ctx, retry.Config{
//		MaxAttempts: 3,
//		Backoff:     retry.NewPacedBackoff(pacing.Between(time.Second, 2*time.Second)),
//		Logger:      log,
//	}, func(attempt int) error {
//		return fetch(ctx)
//	})
package retry
