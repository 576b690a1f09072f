package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// fixedWindowScript charges ARGV[1] against KEYS[1] when the result stays
// within ARGV[2]. The window length ARGV[3] is in milliseconds and is set only
// when the key is created. Returns {allowed, count, pttl}.
const fixedWindowScript = `
local cost = tonumber(ARGV[1])
local max = tonumber(ARGV[2])
local window = tonumber(ARGV[3])

local current = tonumber(redis.call("GET", KEYS[1]) or "0")
local ttl = redis.call("PTTL", KEYS[1])

if current > 0 and ttl < 0 then
  redis.call("DEL", KEYS[1])
  current = 0
end
if current == 0 then
  ttl = window
end

if current + cost > max then
  return {0, current, ttl}
end

local count = redis.call("INCRBY", KEYS[1], cost)
if current == 0 then
  redis.call("PEXPIRE", KEYS[1], window)
end
return {1, count, ttl}
`

// RedisStore shares buckets across instances through Redis.
type RedisStore struct {
	client *redis.Client
	script *redis.Script
	prefix string
	now    func() time.Time
}

// NewRedisStore creates a store. Keys are stored under "ratelimit:<key>".
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		script: redis.NewScript(fixedWindowScript),
		prefix: "ratelimit:",
		now:    time.Now,
	}
}

// Backend implements Store.
func (s *RedisStore) Backend() string { return "redis" }

// Consume implements Store. It fails closed: a Redis error yields a denied
// Result and an error wrapping ErrBackendUnavailable.
func (s *RedisStore) Consume(ctx context.Context, key string, cost, max int, window time.Duration) (Result, error) {
	denied := Result{Allowed: false, Limit: max, Remaining: 0}
	if err := validate(key, cost, max, window); err != nil {
		return denied, err
	}

	windowMS := window.Milliseconds()
	if windowMS < 1 {
		windowMS = 1
	}

	res, err := s.script.Run(ctx, s.client, []string{s.prefix + key}, cost, max, windowMS).Slice()
	if err != nil {
		return denied, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
	if len(res) < 3 {
		return denied, fmt.Errorf("%w: unexpected script reply of length %d", ErrBackendUnavailable, len(res))
	}

	allowed, err1 := castToInt(res[0])
	count, err2 := castToInt(res[1])
	ttl, err3 := castToInt(res[2])
	if err := errors.Join(err1, err2, err3); err != nil {
		return denied, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}

	result := Result{
		Allowed: allowed == 1,
		Limit:   max,
		ResetAt: s.now().Add(time.Duration(ttl) * time.Millisecond),
	}
	if result.Allowed {
		result.Remaining = max - int(count)
		if result.Remaining < 0 {
			result.Remaining = 0
		}
	}
	return result, nil
}

// Reset deletes key's bucket.
func (s *RedisStore) Reset(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key).Err()
}

func castToInt(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected reply type %T", v)
	}
}
