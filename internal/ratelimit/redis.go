package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "bookshelf:ratelimit:"

// acquireScript checks the counter and increments it in one round trip so
// concurrent processes sharing the key cannot both slip past the cap.
var acquireScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if current >= tonumber(ARGV[1]) then
	return 0
end
current = redis.call('INCR', KEYS[1])
if current == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 1
`)

// RedisWindow is an Acquirer whose counters live in Redis, shared by every
// process pointed at the same server.
type RedisWindow struct {
	client redis.UniversalClient
}

// NewRedisWindow creates a Redis backed window counter.
func NewRedisWindow(client redis.UniversalClient) *RedisWindow {
	return &RedisWindow{client: client}
}

var _ Acquirer = (*RedisWindow)(nil)

// TryAcquire implements Acquirer.
func (r *RedisWindow) TryAcquire(ctx context.Context, key string, max int, window time.Duration) (bool, error) {
	if max <= 0 {
		return false, nil
	}
	res, err := acquireScript.Run(ctx, r.client, []string{redisKeyPrefix + key}, max, window.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("rate limit acquire %s: %w", key, err)
	}
	return res == 1, nil
}

// Usage implements Acquirer.
func (r *RedisWindow) Usage(ctx context.Context, key string) (int, error) {
	count, err := r.client.Get(ctx, redisKeyPrefix+key).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("rate limit usage %s: %w", key, err)
	}
	return count, nil
}
