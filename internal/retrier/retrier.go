// Package retrier wraps upstream operations with exponential-backoff retry.
package retrier

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"
)

// Retrier runs operations up to MaxRetries+1 times with exponential backoff
// starting at BaseDelay. Context cancellation aborts between attempts.
type Retrier struct {
	maxRetries int
	baseDelay  time.Duration
}

// New builds a Retrier. Non-positive arguments fall back to safe defaults.
func New(maxRetries int, baseDelay time.Duration) *Retrier {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}
	return &Retrier{maxRetries: maxRetries, baseDelay: baseDelay}
}

// Do invokes op until it succeeds or attempts are exhausted, returning the
// last error.
func (r *Retrier) Do(ctx context.Context, op func(context.Context) error) error {
	return retry.Do(
		func() error { return op(ctx) },
		r.options(ctx)...,
	)
}

// Permanent marks err so Do and DoWithData stop retrying immediately. The
// original error remains reachable through errors.Is and errors.As.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return retry.Unrecoverable(err)
}

// DoWithData is Do for operations that produce a value.
func DoWithData[T any](ctx context.Context, r *Retrier, op func(context.Context) (T, error)) (T, error) {
	return retry.DoWithData(
		func() (T, error) { return op(ctx) },
		r.options(ctx)...,
	)
}

func (r *Retrier) options(ctx context.Context) []retry.Option {
	return []retry.Option{
		retry.Attempts(uint(r.maxRetries) + 1),
		retry.Delay(r.baseDelay),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.MaxJitter(r.baseDelay / 4),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	}
}
