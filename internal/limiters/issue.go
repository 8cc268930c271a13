// Package limiters enforces issuance budgets for OTP challenges.
package limiters

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrRateLimited means the identity exhausted its issuance budget for
	// the current window.
	ErrRateLimited = errors.New("otp issuance rate limited")
	// ErrBackend wraps Redis failures.
	ErrBackend = errors.New("otp limiter backend unavailable")
)

// IssueConfig bounds OTP issuance per originating identity over a rolling
// window.
type IssueConfig struct {
	Limit  int
	Window time.Duration
}

// IssueLimiter implements a rolling-window counter on a Redis sorted set:
// each issuance records a timestamped member, members older than the window
// are trimmed, and the remaining cardinality is the in-window count. Unlike
// a fixed INCR window, the budget genuinely slides.
type IssueLimiter struct {
	redis  redis.UniversalClient
	prefix string
	config IssueConfig
}

// NewIssueLimiter returns an issuance limiter with the given key prefix.
func NewIssueLimiter(redisClient redis.UniversalClient, prefix string, cfg IssueConfig) *IssueLimiter {
	if prefix == "" {
		prefix = "ink"
	}
	return &IssueLimiter{
		redis:  redisClient,
		prefix: prefix,
		config: cfg,
	}
}

func (l *IssueLimiter) key(identity string) string {
	return l.prefix + ":otpl:" + identity
}

// Record counts one issuance attempt for identity and reports whether it is
// within budget. Attempts beyond the budget are rejected, not silently
// dropped, and still occupy a window slot.
func (l *IssueLimiter) Record(ctx context.Context, identity string) error {
	if l.config.Limit <= 0 || identity == "" {
		return nil
	}

	now := time.Now()
	key := l.key(identity)
	cutoff := strconv.FormatInt(now.Add(-l.config.Window).UnixNano(), 10)

	var card *redis.IntCmd
	_, err := l.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "0", cutoff)
		pipe.ZAdd(ctx, key, redis.Z{
			Score:  float64(now.UnixNano()),
			Member: uuid.NewString(),
		})
		card = pipe.ZCard(ctx, key)
		pipe.Expire(ctx, key, l.config.Window)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackend, err)
	}

	if card.Val() > int64(l.config.Limit) {
		return ErrRateLimited
	}
	return nil
}

// Reset clears the window for identity.
func (l *IssueLimiter) Reset(ctx context.Context, identity string) error {
	if identity == "" {
		return nil
	}
	if err := l.redis.Del(ctx, l.key(identity)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return nil
}
