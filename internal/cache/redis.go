// internal/cache/redis.go
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Rdb is the global Redis client, nil when REDIS_URL is unset. All helpers
// degrade to no-ops without it so the cache stays optional.
var Rdb *redis.Client

const sessionKeyPrefix = "rr:session:"

// ConnectRedis initializes the global Redis client from a redis:// URL.
func ConnectRedis(redisURL string) error {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return fmt.Errorf("failed to parse REDIS_URL: %w", err)
	}
	Rdb = redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := Rdb.Ping(ctx).Err(); err != nil {
		Rdb = nil
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return nil
}

// GetSessionUser returns the cached user id for a session token hash, or ""
// on miss / when the cache is disabled.
func GetSessionUser(ctx context.Context, tokenHash string) string {
	if Rdb == nil {
		return ""
	}
	val, err := Rdb.Get(ctx, sessionKeyPrefix+tokenHash).Result()
	if err != nil {
		return ""
	}
	return val
}

// PutSessionUser caches a resolved session for the given TTL. Errors are
// ignored: the cache is strictly a read-through accelerator over the
// sessions table.
func PutSessionUser(ctx context.Context, tokenHash, userID string, ttl time.Duration) {
	if Rdb == nil || ttl <= 0 {
		return
	}
	_ = Rdb.Set(ctx, sessionKeyPrefix+tokenHash, userID, ttl).Err()
}

// DropSession evicts a cached session, e.g. on logout.
func DropSession(ctx context.Context, tokenHash string) {
	if Rdb == nil {
		return
	}
	_ = Rdb.Del(ctx, sessionKeyPrefix+tokenHash).Err()
}
