package ratelimit

import (
	"context"
	"errors"
	"math"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// tokenBucketScript refills KEYS[1] at ARGV[1] tokens/s up to ARGV[2] and
// takes one token. It answers {allowed, remaining milli-tokens, retry ms}
// so no float crosses the Lua boundary.
const tokenBucketScript = `
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local t = redis.call("TIME")
local now = t[1] * 1000 + math.floor(t[2] / 1000)

local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(state[1]) or burst
local ts = tonumber(state[2]) or now
if now > ts then
  tokens = math.min(burst, tokens + (now - ts) / 1000 * rate)
end

local allowed = 0
local retry = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
else
  retry = math.ceil((1 - tokens) / rate * 1000)
end

redis.call("HSET", KEYS[1], "tokens", tokens, "ts", now)
redis.call("PEXPIRE", KEYS[1], ttl)

return {allowed, math.floor(tokens * 1000), retry}
`

var errBucketResponse = errors.New("invalid rate limit script response")

type TokenBucket struct {
	client *redis.Client
	script *redis.Script
}

type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

func NewTokenBucket(client *redis.Client) *TokenBucket {
	if client == nil {
		return nil
	}
	return &TokenBucket{client: client, script: redis.NewScript(tokenBucketScript)}
}

// Take removes one token from the bucket at key.
func (b *TokenBucket) Take(ctx context.Context, key string, rate float64, burst int) (*Result, error) {
	switch {
	case b == nil || b.client == nil:
		return nil, errors.New("rate limiter not configured")
	case key == "":
		return nil, errors.New("rate limiter key is empty")
	case rate <= 0 || burst <= 0:
		return nil, errors.New("rate limiter rate and burst must be positive")
	}

	out, err := b.script.Run(ctx, b.client, []string{key}, rate, burst, bucketTTL(rate, burst).Milliseconds()).Int64Slice()
	if err != nil {
		return nil, err
	}
	if len(out) != 3 {
		return nil, errBucketResponse
	}
	return &Result{
		Allowed:    out[0] == 1,
		Limit:      burst,
		Remaining:  int(out[1] / 1000),
		RetryAfter: time.Duration(out[2]) * time.Millisecond,
	}, nil
}

// bucketTTL keeps an idle bucket for twice its full refill time.
func bucketTTL(rate float64, burst int) time.Duration {
	seconds := math.Ceil(float64(burst) / rate * 2)
	return time.Duration(max(seconds, 1)) * time.Second
}
