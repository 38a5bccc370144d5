package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// BalanceCache mirrors the latest running balance per user. It is a pure
// optimization: every implementation must tolerate losing its contents at any
// time, because the ledger can always be replayed.
type BalanceCache interface {
	// TryGet returns the cached balance and whether it was present. Lookup
	// failures count as misses.
	TryGet(ctx context.Context, userID int64) (int64, bool)
	// Set stores the balance for the user.
	Set(ctx context.Context, userID, balance int64) error
	// Invalidate drops the cached balances for the given users.
	Invalidate(ctx context.Context, userIDs ...int64) error
}

func balanceKey(userID int64) string {
	return fmt.Sprintf("user:%d:credit_balance", userID)
}

// RedisBalanceCache stores balances in Redis with a bounded TTL.
type RedisBalanceCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisBalanceCache constructs a Redis-backed balance cache.
func NewRedisBalanceCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisBalanceCache {
	return &RedisBalanceCache{client: client, ttl: ttl, logger: logger}
}

func (c *RedisBalanceCache) TryGet(ctx context.Context, userID int64) (int64, bool) {
	val, err := c.client.Get(ctx, balanceKey(userID)).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("balance cache lookup failed", "user_id", userID, "error", err)
		}
		return 0, false
	}

	balance, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		c.logger.Warn("balance cache holds non-numeric value", "user_id", userID, "value", val)
		return 0, false
	}
	return balance, true
}

func (c *RedisBalanceCache) Set(ctx context.Context, userID, balance int64) error {
	return c.client.Set(ctx, balanceKey(userID), balance, c.ttl).Err()
}

func (c *RedisBalanceCache) Invalidate(ctx context.Context, userIDs ...int64) error {
	_, err := c.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range userIDs {
			pipe.Del(ctx, balanceKey(id))
		}
		return nil
	})
	return err
}

// NopCache is a BalanceCache that caches nothing. Every read falls through to
// the ledger replay.
type NopCache struct{}

func (NopCache) TryGet(context.Context, int64) (int64, bool) { return 0, false }
func (NopCache) Set(context.Context, int64, int64) error     { return nil }
func (NopCache) Invalidate(context.Context, ...int64) error  { return nil }
