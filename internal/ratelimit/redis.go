package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "ratelimit:"

// consumeScript applies the fixed-window step atomically.
// KEYS[1] record key; ARGV: ceiling, now ms, reset ms for a fresh window.
// Returns {count, resetMs, allowed}.
var consumeScript = redis.NewScript(`
local count = tonumber(redis.call("HGET", KEYS[1], "count"))
local reset = tonumber(redis.call("HGET", KEYS[1], "reset"))
local ceiling = tonumber(ARGV[1])
local now = tonumber(ARGV[2])

if count == nil or reset == nil or now >= reset then
	redis.call("HSET", KEYS[1], "count", "1", "reset", ARGV[3])
	redis.call("PEXPIREAT", KEYS[1], ARGV[3])
	return {1, tonumber(ARGV[3]), 1}
end

if count >= ceiling then
	return {count, reset, 0}
end

count = redis.call("HINCRBY", KEYS[1], "count", 1)
return {count, reset, 1}
`)

// RedisStore keeps records in Redis so several server instances share one limit.
// Keys expire at the end of their window.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore constructs a RedisStore.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func redisKey(key string) string {
	return keyPrefix + key
}

func (s *RedisStore) Get(ctx context.Context, key string) (Record, bool, error) {
	vals, err := s.client.HGetAll(ctx, redisKey(key)).Result()
	if err != nil {
		return Record{}, false, fmt.Errorf("ratelimit get for %s: %w", key, err)
	}
	if len(vals) == 0 {
		return Record{}, false, nil
	}

	count, err := strconv.Atoi(vals["count"])
	if err != nil {
		return Record{}, false, fmt.Errorf("parsing count for %s: %w", key, err)
	}
	resetMs, err := strconv.ParseInt(vals["reset"], 10, 64)
	if err != nil {
		return Record{}, false, fmt.Errorf("parsing reset for %s: %w", key, err)
	}

	return Record{Count: count, WindowResetAt: time.UnixMilli(resetMs)}, true, nil
}

func (s *RedisStore) Upsert(ctx context.Context, key string, rec Record) error {
	k := redisKey(key)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, k, "count", rec.Count, "reset", rec.WindowResetAt.UnixMilli())
		pipe.PExpireAt(ctx, k, rec.WindowResetAt)
		return nil
	})
	if err != nil {
		return fmt.Errorf("ratelimit upsert for %s: %w", key, err)
	}
	return nil
}

// Consume runs the fixed-window step inside Redis.
func (s *RedisStore) Consume(ctx context.Context, key string, ceiling int, window time.Duration, now time.Time) (Record, bool, error) {
	res, err := consumeScript.Run(ctx, s.client, []string{redisKey(key)},
		ceiling, now.UnixMilli(), now.Add(window).UnixMilli()).Int64Slice()
	if err != nil {
		return Record{}, false, fmt.Errorf("ratelimit consume for %s: %w", key, err)
	}
	if len(res) != 3 {
		return Record{}, false, errors.New("ratelimit consume: unexpected script reply")
	}

	return Record{Count: int(res[0]), WindowResetAt: time.UnixMilli(res[1])}, res[2] == 1, nil
}
