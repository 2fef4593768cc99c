package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"chat_presence_service/pkg/config"

	"github.com/go-redis/redis/v8"
	"golang.org/x/time/rate"
)

// Limiter token bucket per (user, room)
type Limiter interface {
	// TryConsume take one token, false when the bucket is empty
	TryConsume(ctx context.Context, userID, roomID string) (bool, error)
}

// Settings bucket shape, Refill tokens are added every Period up to Capacity
type Settings struct {
	Capacity int
	Refill   int
	Period   time.Duration
}

// FromConfig map the rate_limit section
func FromConfig(c config.RateLimitConfig) Settings {
	return Settings{Capacity: c.Capacity, Refill: c.Refill, Period: c.Period}
}

// New pick the backend named in config, redis falls back to local when no client is given
func New(c config.RateLimitConfig, client redis.UniversalClient) Limiter {
	if c.Backend == "redis" && client != nil {
		return NewRedisLimiter(client, FromConfig(c))
	}
	return NewLocalLimiter(FromConfig(c))
}

func bucketKey(userID, roomID string) string {
	return fmt.Sprintf("chat:rl:%s:%s", userID, roomID)
}

// LocalLimiter process local buckets, only correct for a single instance.
// refills land on whole periods since the bucket's first use, the same as the redis script.
type LocalLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*localBucket
	settings Settings
	now      func() time.Time
}

type localBucket struct {
	limiter    *rate.Limiter
	start      time.Time
	lastAccess time.Time
}

// NewLocalLimiter create LocalLimiter
func NewLocalLimiter(s Settings) *LocalLimiter {
	return &LocalLimiter{
		buckets:  make(map[string]*localBucket),
		settings: s,
		now:      time.Now,
	}
}

// TryConsume implements Limiter
func (l *LocalLimiter) TryConsume(ctx context.Context, userID, roomID string) (bool, error) {
	now := l.now()
	key := bucketKey(userID, roomID)

	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = &localBucket{limiter: rate.NewLimiter(periodLimit(l.settings), l.settings.Capacity), start: now}
		l.buckets[key] = b
	}
	b.lastAccess = now
	l.mu.Unlock()

	// 時間取整到 period 邊界，未滿一個 period 不補 token
	at := now
	if l.settings.Period > 0 {
		at = b.start.Add(now.Sub(b.start).Truncate(l.settings.Period))
	}
	return b.limiter.AllowN(at, 1), nil
}

// periodLimit R tokens per P as a per second rate
func periodLimit(s Settings) rate.Limit {
	if s.Period <= 0 || s.Refill <= 0 {
		return 0
	}
	// 略大於 R/P，避免浮點誤差讓一個 period 少補一個 token
	return rate.Limit(float64(s.Refill) / s.Period.Seconds() * (1 + 1e-9))
}

// Cleanup drop buckets idle longer than maxIdle, a full bucket is the same as no bucket
func (l *LocalLimiter) Cleanup(maxIdle time.Duration) int {
	threshold := l.now().Add(-maxIdle)
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for key, b := range l.buckets {
		if b.lastAccess.Before(threshold) {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

// tokenBucketScript refills whole periods only, so a partial period never leaks tokens
var tokenBucketScript = redis.NewScript(`
local capacity = tonumber(ARGV[1])
local refill = tonumber(ARGV[2])
local period = tonumber(ARGV[3])
local now = tonumber(ARGV[4])

local tokens = tonumber(redis.call('HGET', KEYS[1], 'tokens'))
local ts = tonumber(redis.call('HGET', KEYS[1], 'ts'))
if tokens == nil or ts == nil then
  tokens = capacity
  ts = now
end

local elapsed = now - ts
if elapsed >= period then
  local periods = math.floor(elapsed / period)
  tokens = math.min(capacity, tokens + periods * refill)
  ts = ts + periods * period
end

local allowed = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
end

redis.call('HSET', KEYS[1], 'tokens', tokens, 'ts', ts)
redis.call('PEXPIRE', KEYS[1], period * math.ceil(capacity / refill) + period)
return allowed
`)

// RedisLimiter shared buckets, the check and decrement run as one script
type RedisLimiter struct {
	client   redis.UniversalClient
	settings Settings
	now      func() time.Time
}

// NewRedisLimiter create RedisLimiter
func NewRedisLimiter(client redis.UniversalClient, s Settings) *RedisLimiter {
	return &RedisLimiter{client: client, settings: s, now: time.Now}
}

// TryConsume implements Limiter
func (l *RedisLimiter) TryConsume(ctx context.Context, userID, roomID string) (bool, error) {
	res, err := tokenBucketScript.Run(ctx, l.client, []string{bucketKey(userID, roomID)},
		l.settings.Capacity,
		l.settings.Refill,
		l.settings.Period.Milliseconds(),
		l.now().UnixMilli(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("rate limit script: %w", err)
	}
	return res == 1, nil
}
