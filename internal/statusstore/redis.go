package statusstore

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisClient is the subset of *redis.Client the store depends on. Tests
// substitute a fake so status-reconciliation logic can run without a live
// Redis instance (SPEC_FULL.md §8).
type RedisClient interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	HSet(ctx context.Context, key string, values ...any) *redis.IntCmd
	HDel(ctx context.Context, key string, fields ...string) *redis.IntCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Keys(ctx context.Context, pattern string) *redis.StringSliceCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
}

var _ RedisClient = (*redis.Client)(nil)
