package strava

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// The API enforces a rolling request budget per 15-minute window aligned
// to clock quarter-hours, reported in X-RateLimit-Limit / X-RateLimit-Usage
// as "short,daily" pairs. When the short window is exhausted the caller
// suspends until the window resets; this is cooperative backoff, not an
// error.
type rateLimiter struct {
	mu      sync.Mutex
	limit   int
	usage   int
	now     func() time.Time
	sleepFn func(ctx context.Context, d time.Duration) error
	logger  *slog.Logger
}

func newRateLimiter(logger *slog.Logger) *rateLimiter {
	return &rateLimiter{
		now:     time.Now,
		sleepFn: sleepCtx,
		logger:  logger,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// observe records the budget headers from a response.
func (r *rateLimiter) observe(h http.Header) {
	limit := firstField(h.Get("X-RateLimit-Limit"))
	usage := firstField(h.Get("X-RateLimit-Usage"))
	if limit == 0 {
		return
	}
	r.mu.Lock()
	r.limit = limit
	r.usage = usage
	r.mu.Unlock()
}

func firstField(v string) int {
	field, _, _ := strings.Cut(v, ",")
	n, err := strconv.Atoi(strings.TrimSpace(field))
	if err != nil {
		return 0
	}
	return n
}

func (r *rateLimiter) exhausted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.limit > 0 && r.usage >= r.limit
}

// waitForReset suspends until the next quarter-hour boundary, plus a small
// skew so the server-side window has definitely rolled over.
func (r *rateLimiter) waitForReset(ctx context.Context) error {
	now := r.now()
	wait := now.Truncate(15 * time.Minute).Add(15*time.Minute + 5*time.Second).Sub(now)
	r.logger.Info("Rate limit budget exhausted, suspending until window reset", "wait", wait.String())
	if err := r.sleepFn(ctx, wait); err != nil {
		return err
	}
	r.mu.Lock()
	r.usage = 0
	r.mu.Unlock()
	return nil
}
