package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/canasta/internal/obs"
	"github.com/noah-isme/canasta/internal/resilience"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestBreakerTransitions(t *testing.T) {
	c := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	metrics := obs.NewBreakerMetrics("test", prometheus.NewRegistry())
	breaker := resilience.NewBreaker(2, 0.5, time.Minute,
		resilience.WithTarget("promotions"),
		resilience.WithMetrics(metrics),
		resilience.WithClock(c.now),
	)
	ctx := context.Background()

	require.True(t, breaker.Allow(ctx))
	breaker.Report(ctx, false)
	require.True(t, breaker.Allow(ctx))
	breaker.Report(ctx, false)
	require.Equal(t, resilience.Open, breaker.State())
	require.False(t, breaker.Allow(ctx))
	require.Equal(t, float64(1), testutil.ToFloat64(metrics.State.WithLabelValues("promotions")))

	c.t = c.t.Add(time.Minute)
	require.True(t, breaker.Allow(ctx), "cool-off elapsed, probe allowed")
	require.False(t, breaker.Allow(ctx), "only one probe while half-open")
	breaker.Report(ctx, true)
	require.Equal(t, resilience.Closed, breaker.State())
	require.Equal(t, float64(1), testutil.ToFloat64(metrics.Transitions.WithLabelValues("promotions", "open", "half_open")))
}

func TestDoShortCircuits(t *testing.T) {
	breaker := resilience.NewBreaker(1, 1, time.Hour)
	ctx := context.Background()
	calls := 0
	fail := func(context.Context) (int, error) {
		calls++
		return 0, errors.New("db down")
	}

	_, err := resilience.Do(ctx, breaker, fail)
	require.EqualError(t, err, "db down")
	_, err = resilience.Do(ctx, breaker, fail)
	require.ErrorIs(t, err, resilience.ErrOpenCircuit)
	require.Equal(t, 1, calls)

	out, err := resilience.Do(ctx, nil, func(context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	require.Equal(t, 7, out)
}

func TestDoIgnoresCallerCancellation(t *testing.T) {
	breaker := resilience.NewBreaker(1, 1, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := resilience.Do(ctx, breaker, func(ctx context.Context) (int, error) { return 0, ctx.Err() })
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, resilience.Closed, breaker.State())
}
