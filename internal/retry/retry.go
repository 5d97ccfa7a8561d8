// Package retry gives any blocking external call bounded exponential-backoff
// retries. Policies decide which errors are worth another attempt.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	errx "github.com/energy-monitor/server/internal/core/error"
	logx "github.com/energy-monitor/server/pkg/logger"
)

// Policy parameterises a retried call.
type Policy struct {
	// Name identifies the call in logs.
	Name string
	// MaxRetries is the number of attempts after the first one.
	MaxRetries int
	// InitialDelay is the wait before the first retry.
	InitialDelay time.Duration
	// Multiplier scales the delay after every retry. Zero means 2.
	Multiplier float64
	// Retryable reports whether an error may succeed on another attempt.
	// Nil means errx.IsTransient.
	Retryable func(error) bool
	// OnRetry, when set, observes every scheduled retry.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Predefined policies for the workflow's external calls.
var (
	MediaFetch = Policy{Name: "media_fetch", MaxRetries: 2, InitialDelay: 500 * time.Millisecond, Multiplier: 2}
	Extraction = Policy{Name: "vision_extract", MaxRetries: 3, InitialDelay: time.Second, Multiplier: 2}
	StoreWrite = Policy{Name: "store_upsert", MaxRetries: 1, InitialDelay: 2 * time.Second, Multiplier: 2}
	AgentCall  = Policy{Name: "query_agent", MaxRetries: 3, InitialDelay: time.Second, Multiplier: 2}
	Delivery   = Policy{Name: "delivery", MaxRetries: 2, InitialDelay: time.Second, Multiplier: 2}
)

// With returns a copy of p using the given retry observer.
func (p Policy) With(onRetry func(attempt int, err error, delay time.Duration)) Policy {
	p.OnRetry = onRetry
	return p
}

func (p Policy) retryable(err error) bool {
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return errx.IsTransient(err)
}

func (p Policy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialDelay
	b.RandomizationFactor = 0
	b.Multiplier = p.Multiplier
	if b.Multiplier <= 0 {
		b.Multiplier = 2
	}
	b.MaxInterval = time.Hour
	return b
}

// Do calls fn until it succeeds, returns a non-retryable error, or the
// policy's retries are exhausted. The last error is returned unwrapped.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	attempt := 0
	op := func() (T, error) {
		attempt++
		res, err := fn(ctx)
		if err != nil && !p.retryable(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	}

	notify := func(err error, delay time.Duration) {
		logx.Warn().
			Err(err).
			Str("call", p.Name).
			Int("attempt", attempt).
			Int("max_attempts", p.MaxRetries+1).
			Dur("retry_in", delay).
			Msg("Attempt failed, retrying")
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, delay)
		}
	}

	res, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(p.backOff()),
		backoff.WithMaxTries(uint(p.MaxRetries+1)),
		backoff.WithNotify(notify),
	)
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Unwrap()
		}
		logx.Error().
			Err(err).
			Str("call", p.Name).
			Int("attempts", attempt).
			Msg("Call failed")
	}
	return res, err
}

// Run is Do for calls without a result.
func Run(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	_, err := Do(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
