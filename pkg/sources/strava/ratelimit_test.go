package strava

import (
	"context"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserve_ParsesShortWindowPair(t *testing.T) {
	r := newRateLimiter(slog.Default())

	h := http.Header{}
	h.Set("X-RateLimit-Limit", "100,1000")
	h.Set("X-RateLimit-Usage", "98,512")
	r.observe(h)

	assert.Equal(t, 100, r.limit)
	assert.Equal(t, 98, r.usage)
	assert.False(t, r.exhausted())

	h.Set("X-RateLimit-Usage", "100,514")
	r.observe(h)
	assert.True(t, r.exhausted())
}

func TestObserve_IgnoresMissingHeaders(t *testing.T) {
	r := newRateLimiter(slog.Default())
	r.limit = 100
	r.usage = 50

	r.observe(http.Header{})

	assert.Equal(t, 100, r.limit)
	assert.Equal(t, 50, r.usage)
}

func TestWaitForReset_SleepsToNextQuarterHour(t *testing.T) {
	r := newRateLimiter(slog.Default())
	r.limit = 100
	r.usage = 100
	r.now = func() time.Time {
		return time.Date(2024, 6, 1, 10, 7, 30, 0, time.UTC)
	}

	var slept time.Duration
	r.sleepFn = func(ctx context.Context, d time.Duration) error {
		slept = d
		return nil
	}

	require.NoError(t, r.waitForReset(context.Background()))
	assert.Equal(t, 7*time.Minute+35*time.Second, slept)
	assert.False(t, r.exhausted())
}

func TestWaitForReset_HonorsCancellation(t *testing.T) {
	r := newRateLimiter(slog.Default())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.waitForReset(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
