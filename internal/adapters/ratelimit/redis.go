// Package ratelimit bounds resend requests per recipient using a redis
// sorted set as a sliding window.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"campustickets/internal/domain"
)

type resendLimiter struct {
	redis  *redis.Client
	limit  int64
	window time.Duration
	now    func() time.Time
}

// NewResendLimiter returns a ResendLimiter allowing limit resends per
// recipient per rolling window (3 per 24h in production).
func NewResendLimiter(client *redis.Client, limit int, window time.Duration) domain.ResendLimiter {
	return &resendLimiter{
		redis:  client,
		limit:  int64(limit),
		window: window,
		now:    time.Now,
	}
}

func resendKey(recipient string) string {
	return fmt.Sprintf("resend:%s", recipient)
}

// Allow trims entries older than the window and reports whether the
// recipient has a slot left. It consumes nothing; Record does the counting,
// so a resend that never reaches the queue costs the recipient nothing.
func (l *resendLimiter) Allow(ctx context.Context, recipient string) (bool, error) {
	key := resendKey(recipient)
	cutoff := l.now().Add(-l.window).UnixMilli()

	if err := l.redis.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(cutoff, 10)).Err(); err != nil {
		return false, fmt.Errorf("trim resend window: %w", err)
	}
	count, err := l.redis.ZCard(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("count resend window: %w", err)
	}
	return count < l.limit, nil
}

// Record counts one resend against the recipient's window. The key expires
// a full window after the newest entry, so idle recipients cost nothing.
func (l *resendLimiter) Record(ctx context.Context, recipient string) error {
	key := resendKey(recipient)
	at := l.now().UnixMilli()

	member := redis.Z{Score: float64(at), Member: strconv.FormatInt(at, 10)}
	if err := l.redis.ZAdd(ctx, key, member).Err(); err != nil {
		return fmt.Errorf("record resend: %w", err)
	}
	if err := l.redis.Expire(ctx, key, l.window).Err(); err != nil {
		return fmt.Errorf("expire resend window: %w", err)
	}
	return nil
}
