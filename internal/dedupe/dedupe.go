// Package dedupe guards against two overlapping batches sending the same
// user the same day's digest. Eligibility plus the lastEmailSent write-back
// only narrow that race; a shared Redis claim closes it across processes.
package dedupe

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Guard hands out one claim per (user, day).
type Guard interface {
	// Claim returns true if the caller is the first to claim the pair.
	Claim(ctx context.Context, userID string, day time.Time) (bool, error)

	// Release drops a claim so a later batch can retry after a failed send.
	Release(ctx context.Context, userID string, day time.Time) error
}

// Noop grants every claim. Used when no Redis is configured.
type Noop struct{}

func (Noop) Claim(context.Context, string, time.Time) (bool, error) { return true, nil }
func (Noop) Release(context.Context, string, time.Time) error        { return nil }

// RedisGuard claims keys with SET NX and a TTL.
type RedisGuard struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisGuard constructs a guard. ttl should exceed one day so a claim
// outlives the eligibility window it protects.
func NewRedisGuard(rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisGuard {
	return &RedisGuard{rdb: rdb, ttl: ttl, logger: logger}
}

// NewRedisClient parses a redis:// URL and verifies the server answers.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("dedupe: parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("dedupe: ping redis: %w", err)
	}
	return rdb, nil
}

func key(userID string, day time.Time) string {
	return fmt.Sprintf("digest:sent:%s:%s", userID, day.UTC().Format(time.DateOnly))
}

// Claim fails open: if Redis is unreachable the claim is granted and the
// error is logged, so an outage degrades to the unguarded behaviour rather
// than silencing every digest.
func (g *RedisGuard) Claim(ctx context.Context, userID string, day time.Time) (bool, error) {
	k := key(userID, day)
	ok, err := g.rdb.SetNX(ctx, k, 1, g.ttl).Result()
	if err != nil {
		g.logger.Warn("dedupe: redis claim failed, allowing send", "key", k, "error", err)
		return true, nil
	}
	if !ok {
		g.logger.Debug("dedupe: already claimed", "key", k)
	}
	return ok, nil
}

func (g *RedisGuard) Release(ctx context.Context, userID string, day time.Time) error {
	if err := g.rdb.Del(ctx, key(userID, day)).Err(); err != nil {
		return fmt.Errorf("dedupe: release: %w", err)
	}
	return nil
}
