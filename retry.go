package packdb

import (
	"context"
	"errors"
	log "log/slog"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/sethvargo/go-retry"
)

// UnboundedAttempts makes Attempts retry until the task succeeds or the context is done.
const UnboundedAttempts = -1

const (
	unboundedBaseDelay = 10 * time.Millisecond
	unboundedMaxDelay  = time.Second
)

// Retry executes task with Fibonacci backoff up to 5 retries.
// If retries are exhausted, gaveUpTask is invoked (when not nil) and the final error is returned.
// Only errors wrapped with retry.RetryableError are retried.
func Retry(ctx context.Context, task func(ctx context.Context) error, gaveUpTask func(ctx context.Context)) error {
	b := retry.NewFibonacci(100 * time.Millisecond)
	if err := retry.Do(ctx, retry.WithMaxRetries(5, b), task); err != nil {
		log.Warn(err.Error() + ", gave up")
		if gaveUpTask != nil {
			gaveUpTask(ctx)
		}
		return err
	}
	return nil
}

// Attempts runs task up to maxAttempts times back to back and returns the last error.
// maxAttempts below 1 counts as a single attempt, except UnboundedAttempts which keeps
// going with a capped exponential delay until task succeeds or ctx is done.
func Attempts(ctx context.Context, maxAttempts int, task func(ctx context.Context) error) error {
	var b retry.Backoff
	switch {
	case maxAttempts == UnboundedAttempts:
		b = retry.WithCappedDuration(unboundedMaxDelay, retry.NewExponential(unboundedBaseDelay))
	case maxAttempts <= 1:
		b = retry.WithMaxRetries(0, immediate())
	default:
		b = retry.WithMaxRetries(uint64(maxAttempts-1), immediate())
	}
	return retry.Do(ctx, b, func(ctx context.Context) error {
		return retry.RetryableError(task(ctx))
	})
}

// Backoff builds the exponential policy used by compensating actions.
func (p RetryPolicy) Backoff() retry.Backoff {
	base := p.BaseDelay
	if base <= 0 {
		base = DefaultRollbackPolicy.BaseDelay
	}
	b := retry.NewExponential(base)
	if p.MaxDelay > 0 {
		b = retry.WithCappedDuration(p.MaxDelay, b)
	}
	if p.MaxRetries >= 0 {
		b = retry.WithMaxRetries(uint64(p.MaxRetries), b)
	}
	return b
}

func immediate() retry.Backoff {
	return retry.BackoffFunc(func() (time.Duration, bool) {
		return 0, false
	})
}

// ShouldRetry reports whether the error is retryable (non-nil and not a known permanent failure).
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	// Context cancellations/timeouts are permanent from the caller's POV.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	if errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, os.ErrPermission) ||
		errors.Is(err, os.ErrClosed) ||
		errors.Is(err, os.ErrExist) {
		return false
	}

	switch {
	case errors.Is(err, syscall.EROFS),
		errors.Is(err, syscall.ENOSPC),
		errors.Is(err, syscall.EDQUOT),
		errors.Is(err, syscall.EACCES),
		errors.Is(err, syscall.EPERM),
		errors.Is(err, syscall.ENAMETOOLONG),
		errors.Is(err, syscall.ENOTDIR),
		errors.Is(err, syscall.EISDIR),
		errors.Is(err, syscall.EXDEV),
		errors.Is(err, syscall.EINVAL):
		return false
	}

	if strings.Contains(err.Error(), "read-only file system") {
		return false
	}

	return true
}
