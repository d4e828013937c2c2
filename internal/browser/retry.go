package browser

import (
	"context"
	"time"

	"github.com/kuitang/vaults-e2e/internal/errs"
)

// retryPolicy repeats retryable failures with linear backoff.
type retryPolicy struct {
	retries int
	backoff time.Duration
	closed  func() bool
	onRetry func(attempt int, err error)
}

func (p retryPolicy) do(ctx context.Context, what string, fn func() error) error {
	var err error
	for attempt := 0; attempt <= p.retries; attempt++ {
		if attempt > 0 {
			if p.onRetry != nil {
				p.onRetry(attempt, err)
			}
			if werr := sleepCtx(ctx, p.backoff*time.Duration(attempt)); werr != nil {
				return errs.Wrap(errs.Timeout, what, werr)
			}
		}
		if p.closed != nil && p.closed() {
			return errs.New(errs.PageClosed, what+": page is closed")
		}
		err = fn()
		if err == nil || !errs.Retryable(err) {
			return err
		}
	}
	return err
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
