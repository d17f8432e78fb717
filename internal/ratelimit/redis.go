package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindowLua counts the entries of a sorted set inside the window and
// admits the request when there is room.
//
// ARGV: now µs, window µs, limit, member.
const slidingWindowLua = `
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - window)
local count = redis.call('ZCARD', KEYS[1])
if count < limit then
    redis.call('ZADD', KEYS[1], now, ARGV[4])
    redis.call('PEXPIRE', KEYS[1], math.ceil(window / 1000))
    return {1, limit - count - 1}
end
return {0, 0}
`

// Redis is a sliding window limiter shared by every instance on the same
// Redis.
type Redis struct {
	rdb    *redis.Client
	script *redis.Script
	rule   Rule
	prefix string
	now    func() time.Time
}

var _ Limiter = (*Redis)(nil)

// NewRedis creates a limiter for rule whose keys live under
// "ratelimit:<scope>:".
func NewRedis(rdb *redis.Client, scope string, rule Rule) *Redis {
	return &Redis{
		rdb:    rdb,
		script: redis.NewScript(slidingWindowLua),
		rule:   rule,
		prefix: "ratelimit:" + scope + ":",
		now:    time.Now,
	}
}

func (l *Redis) Allow(ctx context.Context, key string) (bool, error) {
	if !l.rule.Enabled() {
		return true, nil
	}
	now := l.now().UnixMicro()

	result, err := l.script.Run(ctx, l.rdb,
		[]string{l.prefix + key},
		now, l.rule.Window.Microseconds(), l.rule.Limit, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return false, fmt.Errorf("redis: rate limit %s: %w", key, err)
	}
	if len(result) < 2 {
		return false, fmt.Errorf("redis: rate limit %s: unexpected result length %d", key, len(result))
	}
	return result[0] == 1, nil
}
