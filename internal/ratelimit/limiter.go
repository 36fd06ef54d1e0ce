package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/parsepoint/parsepoint-api/internal/models"
)

// Decision is the outcome of one rate-limit check.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Limiter gates an operation per user. Implementations must fail open on
// backend errors so an unavailable limiter never blocks uploads.
type Limiter interface {
	Check(ctx context.Context, userID string, tier models.Tier, op string) (Decision, error)
}

// RedisLimiter implements a fixed one-minute window per user and operation.
// The window key counts attempts via INCR and expires with the window.
type RedisLimiter struct {
	client *redis.Client
}

// NewRedisLimiter constructs the limiter.
func NewRedisLimiter(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{client: client}
}

const window = time.Minute

// Check increments the current window's counter and compares it to the tier's
// per-minute allowance.
func (l *RedisLimiter) Check(ctx context.Context, userID string, tier models.Tier, op string) (Decision, error) {
	limit := tier.Limits().UploadsPerMinute
	if limit <= 0 {
		return Decision{Allowed: true}, nil
	}

	now := time.Now()
	windowStart := now.Truncate(window)
	key := fmt.Sprintf("ratelimit:%s:%s:%d", op, userID, windowStart.Unix())

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, fmt.Errorf("rate limit check: %w", err)
	}

	if incr.Val() > int64(limit) {
		return Decision{
			Allowed:    false,
			RetryAfter: windowStart.Add(window).Sub(now),
		}, nil
	}
	return Decision{Allowed: true}, nil
}
