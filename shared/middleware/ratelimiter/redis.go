package ratelimiter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultRedisPrefix = "ideamarket:rl:"

// The window starts with the first INCR; later hits keep the original TTL.
var hitScript = redis.NewScript(`
local key = KEYS[1]
local window_ms = tonumber(ARGV[1])

local current = redis.call("INCR", key)
if current == 1 then
  redis.call("PEXPIRE", key, window_ms)
end

local ttl = redis.call("PTTL", key)
if ttl < 0 then
  redis.call("PEXPIRE", key, window_ms)
  ttl = window_ms
end

return {current, ttl}
`)

// RedisStore shares windows between instances.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix, now: time.Now}
}

func (s *RedisStore) Hit(ctx context.Context, key string, window time.Duration) (Window, error) {
	windowMS := window.Milliseconds()
	if windowMS <= 0 {
		return Window{}, fmt.Errorf("invalid rate limit window %v", window)
	}

	res, err := hitScript.Run(ctx, s.client, []string{s.prefix + key}, windowMS).Int64Slice()
	if err != nil {
		return Window{}, fmt.Errorf("redis hit: %w", err)
	}
	if len(res) != 2 {
		return Window{}, fmt.Errorf("unexpected redis response %v", res)
	}

	return Window{
		Count:   res[0],
		ResetAt: s.now().Add(time.Duration(res[1]) * time.Millisecond),
	}, nil
}

func (s *RedisStore) Peek(ctx context.Context, key string) (Window, bool, error) {
	pipe := s.client.Pipeline()
	get := pipe.Get(ctx, s.prefix+key)
	ttl := pipe.PTTL(ctx, s.prefix+key)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return Window{}, false, fmt.Errorf("redis peek: %w", err)
	}

	count, err := get.Int64()
	if errors.Is(err, redis.Nil) {
		return Window{}, false, nil
	}
	if err != nil {
		return Window{}, false, fmt.Errorf("redis peek: %w", err)
	}

	d := ttl.Val()
	if d < 0 {
		d = 0
	}
	return Window{Count: count, ResetAt: s.now().Add(d)}, true, nil
}

func (s *RedisStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis reset: %w", err)
	}
	return nil
}
