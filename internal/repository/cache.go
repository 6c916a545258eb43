package repository

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// BalanceCache keeps hot author balances in Redis so the admin dashboards
// read O(1) without touching Postgres. The Postgres balance table stays
// the source of truth for the cached value: writers refresh the key after
// commit, readers warm it on a miss, and any Redis failure falls back to
// the database.
type BalanceCache struct {
	rdb *redis.Client
}

func NewBalanceCache(rdb *redis.Client) *BalanceCache {
	return &BalanceCache{rdb: rdb}
}

func balanceKey(authorID string) string {
	return fmt.Sprintf("credits:balance:%s", authorID)
}

// Get returns the cached balance and whether the key was present.
func (c *BalanceCache) Get(ctx context.Context, authorID string) (int64, bool, error) {
	val, err := c.rdb.Get(ctx, balanceKey(authorID)).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	balance, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt balance cache entry for %s: %w", authorID, err)
	}
	return balance, true, nil
}

// Set stores the balance. No TTL: the key is refreshed on every write and
// repaired by the warm-up path, so expiry would only add cold reads.
func (c *BalanceCache) Set(ctx context.Context, authorID string, balance int64) error {
	return c.rdb.Set(ctx, balanceKey(authorID), balance, 0).Err()
}

// Invalidate drops the key so the next read warms it from Postgres.
func (c *BalanceCache) Invalidate(ctx context.Context, authorID string) error {
	return c.rdb.Del(ctx, balanceKey(authorID)).Err()
}
