package store

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/atmx/playmarket/internal/model"
)

const (
	retryBaseDelay = 5 * time.Millisecond
	retryMaxDelay  = 200 * time.Millisecond
)

// Backoff returns the delay before retry number n (0-based):
// retryBaseDelay * 2^n, capped at retryMaxDelay.
func Backoff(n int) time.Duration {
	if n < 0 {
		return retryBaseDelay
	}
	if n > 16 {
		return retryMaxDelay
	}
	d := retryBaseDelay * time.Duration(1<<n)
	if d > retryMaxDelay {
		return retryMaxDelay
	}
	return d
}

// Retry runs fn up to attempts times, retrying only on
// model.ErrConcurrencyConflict. fn must be safe to re-run from scratch,
// which InTx guarantees since a failed transaction leaves nothing behind.
func Retry(ctx context.Context, attempts int, op string, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil || !errors.Is(err, model.ErrConcurrencyConflict) {
			return err
		}
		if i == attempts-1 {
			break
		}
		delay := Backoff(i)
		slog.Warn("transaction conflict, retrying", "op", op, "attempt", i+1, "delay", delay, "err", err)
		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(delay):
		}
	}
	return err
}
