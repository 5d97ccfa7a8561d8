package retry

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errx "github.com/energy-monitor/server/internal/core/error"
)

func transient() error {
	return errx.New(errors.New("upstream unavailable"), http.StatusServiceUnavailable, "upstream")
}

func testPolicy(maxRetries int, delays *[]time.Duration) Policy {
	return Policy{
		Name:         "test",
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		Multiplier:   2,
		OnRetry: func(_ int, _ error, d time.Duration) {
			*delays = append(*delays, d)
		},
	}
}

func TestDoSucceedsAfterFailures(t *testing.T) {
	const n = 3
	var delays []time.Duration
	calls := 0

	got, err := Do(context.Background(), testPolicy(n, &delays), func(context.Context) (string, error) {
		calls++
		if calls <= n {
			return "", transient()
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, n+1, calls)
	require.Len(t, delays, n)
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond, 4 * time.Millisecond}, delays)
	for i := 1; i < len(delays); i++ {
		assert.GreaterOrEqual(t, delays[i], delays[i-1])
	}
}

func TestDoExhaustsRetries(t *testing.T) {
	var delays []time.Duration
	calls := 0
	last := transient()

	_, err := Do(context.Background(), testPolicy(2, &delays), func(context.Context) (int, error) {
		calls++
		return 0, last
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Len(t, delays, 2)
	assert.True(t, errx.IsTransient(err))
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	var delays []time.Duration
	calls := 0
	denied := errx.New(errors.New("denied"), http.StatusForbidden, "store")

	_, err := Do(context.Background(), testPolicy(3, &delays), func(context.Context) (int, error) {
		calls++
		return 0, denied
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, delays)
	assert.True(t, errx.IsPermission(err))
	assert.ErrorIs(t, err, denied.Err)
}

func TestDoCustomPredicate(t *testing.T) {
	var delays []time.Duration
	sentinel := errors.New("flaky")
	p := testPolicy(1, &delays)
	p.Retryable = func(err error) bool { return errors.Is(err, sentinel) }

	calls := 0
	err := Run(context.Background(), p, func(context.Context) error {
		calls++
		if calls == 1 {
			return sentinel
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Len(t, delays, 1)
}

func TestDoZeroRetries(t *testing.T) {
	var delays []time.Duration
	calls := 0
	err := Run(context.Background(), testPolicy(0, &delays), func(context.Context) error {
		calls++
		return transient()
	})

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, delays)
}

func TestDoCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var delays []time.Duration
	p := testPolicy(5, &delays)
	p.InitialDelay = time.Hour

	start := time.Now()
	err := Run(ctx, p, func(context.Context) error { return transient() })

	assert.Error(t, err)
	assert.Less(t, time.Since(start), time.Minute)
}

func TestPredefinedPolicies(t *testing.T) {
	assert.Equal(t, 2, MediaFetch.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, MediaFetch.InitialDelay)
	assert.Equal(t, 3, Extraction.MaxRetries)
	assert.Equal(t, 1, StoreWrite.MaxRetries)
	assert.Equal(t, 2*time.Second, StoreWrite.InitialDelay)
	assert.Equal(t, 3, AgentCall.MaxRetries)
}
