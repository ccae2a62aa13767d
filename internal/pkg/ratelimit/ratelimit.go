package ratelimit

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultMax is the number of requests allowed per key per window.
	DefaultMax = 5
	// DefaultWindow is the fixed window length.
	DefaultWindow = time.Minute
)

// Result is the outcome of a single Check call.
type Result struct {
	Allowed           bool
	RetryAfterSeconds int // meaningful only when !Allowed; 0 when unknown
}

// Limiter enforces a fixed-window limit of max requests per key per window.
// Checking consumes a slot: every Check that is not blocked counts against
// the caller's window.
type Limiter struct {
	store  Store
	max    int64
	window time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// New creates a Limiter on top of the given store. max and window fall back
// to the defaults when zero.
func New(store Store, max int, window time.Duration, logger *zap.Logger) *Limiter {
	if max <= 0 {
		max = DefaultMax
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Limiter{
		store:  store,
		max:    int64(max),
		window: window,
		logger: logger,
		now:    time.Now,
	}
}

// Check records a hit for key and reports whether the request may proceed.
// A store failure fails open: the request is allowed and the error is only
// logged, so a degraded limiter backend never takes the endpoint down.
func (l *Limiter) Check(ctx context.Context, key string) Result {
	count, expiresAt, err := l.store.Incr(ctx, key, l.window)
	if err != nil {
		l.logger.Warn("rate limit store unavailable, allowing request",
			zap.String("key", key), zap.Error(err))
		return Result{Allowed: true}
	}
	if count <= l.max {
		return Result{Allowed: true}
	}

	remaining := expiresAt.Sub(l.now())
	retry := int(math.Ceil(remaining.Seconds()))
	if retry < 1 {
		retry = 1
	}
	return Result{Allowed: false, RetryAfterSeconds: retry}
}

// Reset clears the bucket for key, or every bucket when key is empty.
// Administrative use only; normal traffic never resets buckets.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	return l.store.Reset(ctx, key)
}
