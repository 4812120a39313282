// Package retry provides the two retry policies the coin initializer
// relies on: a bounded attempt count for network execution, and a
// retry-forever policy for the signer collaborator.
package retry

import (
	"context"
	"time"

	"github.com/iotaledger/gas-station/internal/gslog"
)

var log = gslog.New("retry")

// Forever calls fn until it returns a nil error, backing off between
// attempts. The signer is treated as a guaranteed-eventual collaborator:
// transient signer errors are logged and retried indefinitely rather than
// surfaced to the caller.
func Forever(ctx context.Context, what string, fn func() error) error {
	backoff := 100 * time.Millisecond
	const maxBackoff = 10 * time.Second
	for {
		err := fn()
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		log.Error("retrying after transient error", "what", what, "err", err)
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		if backoff < maxBackoff {
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}
}

// Bounded calls fn up to attempts times, returning the last error if all
// attempts fail. beforeRetry, if non-nil, runs between attempts (used by
// the initializer to refetch a coin's current object version after a
// transient network error).
func Bounded(ctx context.Context, attempts int, fn func() error, beforeRetry func()) error {
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 && beforeRetry != nil {
			beforeRetry()
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	return lastErr
}
