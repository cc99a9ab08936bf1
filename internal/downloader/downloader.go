package downloader

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"igfetch/pkg/logger"
	"igfetch/pkg/pacing"
	"igfetch/pkg/retry"
	"igfetch/pkg/storage"
)

const (
	// DefaultAttempts is how many times a URL is tried
	DefaultAttempts = 3
	// DefaultIdleTimeout aborts an attempt that receives nothing for this long
	DefaultIdleTimeout = 10 * time.Second
)

// DownloadJob is one URL to fetch and where to put it
type DownloadJob struct {
	URL  string
	Dest string
}

// DownloadResult represents the result of a download job
type DownloadResult struct {
	Job      DownloadJob
	Size     int64
	Attempts int
	Error    error
	Duration time.Duration
}

// Success reports whether the job produced a file
func (r DownloadResult) Success() bool {
	return r.Error == nil
}

// MediaFetcher streams a URL into w. *instagram.Client implements it.
type MediaFetcher interface {
	Download(ctx context.Context, url string, w io.Writer) (int64, error)
}

// Options configures a Downloader
type Options struct {
	Attempts int
	// IdleTimeout bounds the wait for headers and between body reads of one attempt
	IdleTimeout time.Duration
	// Delay spaces attempts; nothing waits before the first one
	Delay  pacing.Policy
	Logger logger.Logger
}

// Downloader fetches media files with bounded retries
type Downloader struct {
	client      MediaFetcher
	attempts    int
	idleTimeout time.Duration
	delay       pacing.Policy
	logger      logger.Logger
}

// New creates a downloader over client
func New(client MediaFetcher, opts Options) *Downloader {
	if opts.Attempts <= 0 {
		opts.Attempts = DefaultAttempts
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	if opts.Delay == nil {
		opts.Delay = pacing.Between(1*time.Second, 2*time.Second)
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNopLogger()
	}
	return &Downloader{
		client:      client,
		attempts:    opts.Attempts,
		idleTimeout: opts.IdleTimeout,
		delay:       opts.Delay,
		logger:      opts.Logger,
	}
}

// Fetch downloads url into dest. A failed attempt leaves no file behind;
// the error of the last attempt is returned once all attempts are used.
func (d *Downloader) Fetch(ctx context.Context, url, dest string) (int64, error) {
	n, _, err := d.fetch(ctx, url, dest)
	return n, err
}

func (d *Downloader) fetch(ctx context.Context, url, dest string) (int64, int, error) {
	attempts := 0
	n, err := retry.DoWithResult(ctx, retry.Config{
		MaxAttempts: d.attempts,
		Backoff:     retry.NewPacedBackoff(d.delay),
		// An attempt's own idle timeout is worth retrying; the caller's cancellation is not
		RetryIf: func(err error) bool { return ctx.Err() == nil },
		Logger:  d.logger.WithField("url", url),
	}, func(attempt int) (int64, error) {
		attempts = attempt
		return d.attempt(ctx, url, dest)
	})
	return n, attempts, err
}

func (d *Downloader) attempt(ctx context.Context, url, dest string) (int64, error) {
	actx, cancel := context.WithCancel(ctx)
	defer cancel()

	watchdog := newIdleWatchdog(d.idleTimeout, cancel)
	defer watchdog.stop()

	return storage.WriteFileAtomic(dest, func(w io.Writer) (int64, error) {
		n, err := d.client.Download(actx, url, watchdog.wrap(w))
		if err != nil && watchdog.fired() {
			return n, fmt.Errorf("no data received for %s: %w", d.idleTimeout, err)
		}
		return n, err
	})
}

// FetchAll runs jobs one after another. A failed job does not stop the
// ones after it; only cancellation of ctx does.
func (d *Downloader) FetchAll(ctx context.Context, jobs []DownloadJob) []DownloadResult {
	results := make([]DownloadResult, 0, len(jobs))
	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			results = append(results, DownloadResult{Job: job, Error: err})
			continue
		}

		start := time.Now()
		n, attempts, err := d.fetch(ctx, job.URL, job.Dest)
		result := DownloadResult{
			Job:      job,
			Size:     n,
			Attempts: attempts,
			Error:    err,
			Duration: time.Since(start),
		}
		logger.LogDownload(d.logger, job.URL, job.Dest, n, err)
		results = append(results, result)
	}
	return results
}

// idleWatchdog cancels an attempt when no bytes arrive within timeout
type idleWatchdog struct {
	timeout time.Duration
	timer   *time.Timer

	mu      sync.Mutex
	tripped bool
}

func newIdleWatchdog(timeout time.Duration, cancel context.CancelFunc) *idleWatchdog {
	w := &idleWatchdog{timeout: timeout}
	w.timer = time.AfterFunc(timeout, func() {
		w.mu.Lock()
		w.tripped = true
		w.mu.Unlock()
		cancel()
	})
	return w
}

func (w *idleWatchdog) wrap(dst io.Writer) io.Writer {
	return &watchedWriter{dst: dst, dog: w}
}

func (w *idleWatchdog) fired() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tripped
}

func (w *idleWatchdog) stop() {
	w.timer.Stop()
}

type watchedWriter struct {
	dst io.Writer
	dog *idleWatchdog
}

func (ww *watchedWriter) Write(p []byte) (int, error) {
	ww.dog.timer.Reset(ww.dog.timeout)
	return ww.dst.Write(p)
}
