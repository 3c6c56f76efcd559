// Package ratelimit throttles the inbound-call webhook per caller number
// using a Redis sliding window. Without Redis, or when Redis fails, checks
// pass: the call path never depends on the limiter.
package ratelimit

import (
	"context"
	"fmt"
	"frontdesk-server/internal/clients/redis"
	"frontdesk-server/internal/observability"
	"strconv"
	"time"
)

// defaultCallsPerMinute is how many webhook hits one caller number gets
// within the sliding window before being throttled.
const defaultCallsPerMinute = 10

// WindowStore is the sorted-set surface the sliding window runs on.
type WindowStore interface {
	ZRemRangeByScore(ctx context.Context, key, min, max string) error
	ZCard(ctx context.Context, key string) (int64, error)
	ZRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	ZAdd(ctx context.Context, key string, score float64, member string) error
	Expire(ctx context.Context, key string, expiration time.Duration) error
}

// Result represents the outcome of a rate limit check
type Result struct {
	Allowed      bool
	Limit        int
	Remaining    int
	ResetAt      time.Time
	RetryAfterMs int
}

// Service handles rate limiting for inbound call webhooks
type Service struct {
	store  WindowStore
	limit  int
	window time.Duration
	logger *observability.Logger
	now    func() time.Time
}

// NewService creates a new rate limiting service. A disabled Redis client
// leaves the service in pass-through mode.
func NewService(redisClient *redis.Client, logger *observability.Logger) *Service {
	s := &Service{
		limit:  defaultCallsPerMinute,
		window: time.Minute,
		logger: logger,
		now:    time.Now,
	}
	if redisClient.IsEnabled() {
		s.store = redisClient
	}
	return s
}

// IsEnabled returns whether a backing store is configured.
func (s *Service) IsEnabled() bool {
	return s.store != nil
}

// CheckCaller checks whether a caller number is within its webhook budget.
// Store failures are logged and the check passes.
func (s *Service) CheckCaller(ctx context.Context, callerNumber string) Result {
	if s.store == nil {
		return Result{Allowed: true, Limit: s.limit, Remaining: s.limit}
	}

	ctx = observability.WithFields(ctx,
		observability.Field{Key: "caller_number", Value: callerNumber},
	)

	result, err := s.checkWindow(ctx, callerNumber)
	if err != nil {
		s.logger.InfoWithError(ctx, "Rate limit check failed, allowing request", err)
		return Result{Allowed: true, Limit: s.limit, Remaining: s.limit}
	}
	return result
}

// checkWindow implements sliding window rate limiting with Redis sorted sets.
// Key: rl:caller:{number}; members are request timestamps scored in
// milliseconds.
func (s *Service) checkWindow(ctx context.Context, callerNumber string) (Result, error) {
	key := fmt.Sprintf("rl:caller:%s", callerNumber)
	now := s.now()
	nowMs := now.UnixMilli()
	windowStartMs := now.Add(-s.window).UnixMilli()

	// Remove entries that have slid out of the window
	err := s.store.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStartMs, 10))
	if err != nil {
		return Result{}, fmt.Errorf("failed to remove old entries: %w", err)
	}

	count, err := s.store.ZCard(ctx, key)
	if err != nil {
		return Result{}, fmt.Errorf("failed to count requests: %w", err)
	}

	if int(count) >= s.limit {
		return s.throttledResult(ctx, key, now)
	}

	err = s.store.ZAdd(ctx, key, float64(nowMs), strconv.FormatInt(now.UnixNano(), 10))
	if err != nil {
		return Result{}, fmt.Errorf("failed to add request: %w", err)
	}

	// Expiration keeps abandoned keys from accumulating
	if err := s.store.Expire(ctx, key, 2*s.window); err != nil {
		s.logger.InfoWithError(ctx, "failed to set expiration on rate limit key", err)
	}

	return Result{
		Allowed:   true,
		Limit:     s.limit,
		Remaining: s.limit - int(count) - 1,
		ResetAt:   now.Add(s.window),
	}, nil
}

// throttledResult computes when the oldest request slides out of the window.
func (s *Service) throttledResult(ctx context.Context, key string, now time.Time) (Result, error) {
	oldest, err := s.store.ZRange(ctx, key, 0, 0)
	if err != nil || len(oldest) == 0 {
		return Result{
			Allowed:      false,
			Limit:        s.limit,
			Remaining:    0,
			ResetAt:      now.Add(s.window),
			RetryAfterMs: int(s.window.Milliseconds()),
		}, nil
	}

	oldestNano, err := strconv.ParseInt(oldest[0], 10, 64)
	if err != nil {
		return Result{}, fmt.Errorf("failed to parse window entry: %w", err)
	}
	resetAt := time.Unix(0, oldestNano).Add(s.window)
	retryAfter := resetAt.Sub(now)
	if retryAfter < 0 {
		retryAfter = 0
	}

	return Result{
		Allowed:      false,
		Limit:        s.limit,
		Remaining:    0,
		ResetAt:      resetAt,
		RetryAfterMs: int(retryAfter.Milliseconds()),
	}, nil
}
