package ratelimit

import (
	"context"
	"time"

	sserr "github.com/bytebites/bytebites-core/pkg/errors"
)

// KeyPrefix namespaces limiter keys in Redis.
const KeyPrefix = "ratelimit:"

// allowScript increments the counter, starts the window on the first hit
// and returns {count, ttl_ms}.
const allowScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {current, ttl}
`

// Redis is the subset of the Redis client the limiter needs.
// *redis.Client from pkg/clients/redis satisfies it.
type Redis interface {
	Eval(ctx context.Context, script string, keys []string, args ...any) (any, error)
	Del(ctx context.Context, keys ...string) (int64, error)
}

// RedisLimiter shares counters across service replicas.
type RedisLimiter struct {
	rdb Redis
	cfg Config
	now func() time.Time
}

// NewRedisLimiter returns a RedisLimiter. A nil now uses time.Now.
func NewRedisLimiter(rdb Redis, cfg Config, now func() time.Time) *RedisLimiter {
	if now == nil {
		now = time.Now
	}
	return &RedisLimiter{rdb: rdb, cfg: cfg, now: now}
}

func (r *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	limit := r.cfg.Limit
	if limit <= 0 {
		return Decision{Allowed: true, Limit: limit, Remaining: limit}, nil
	}
	windowMillis := r.cfg.Window.Milliseconds()
	if windowMillis <= 0 {
		windowMillis = 1000
	}

	res, err := r.rdb.Eval(ctx, allowScript, []string{KeyPrefix + key}, windowMillis)
	if err != nil {
		return Decision{}, err
	}
	values, ok := res.([]any)
	if !ok || len(values) < 2 {
		return Decision{}, sserr.Internal("ratelimit: unexpected script result")
	}
	current, ok := values[0].(int64)
	if !ok {
		return Decision{}, sserr.Internal("ratelimit: counter is not an integer")
	}
	ttl, _ := values[1].(int64)

	resetAt := r.now()
	if ttl > 0 {
		resetAt = resetAt.Add(time.Duration(ttl) * time.Millisecond)
	}
	return Decision{
		Allowed:   current <= int64(limit),
		Limit:     limit,
		Remaining: max(limit-int(current), 0),
		ResetAt:   resetAt,
	}, nil
}

func (r *RedisLimiter) Reset(ctx context.Context, key string) error {
	_, err := r.rdb.Del(ctx, KeyPrefix+key)
	return err
}

var _ Limiter = (*RedisLimiter)(nil)
