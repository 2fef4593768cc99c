package repository

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// OnlineRepository cluster wide count of live connections per user
type OnlineRepository interface {
	// Connected record one more connection of userID on instance
	Connected(ctx context.Context, userID, instance string) error
	// Disconnected drop one connection, the instance field disappears at zero
	Disconnected(ctx context.Context, userID, instance string) error
	// Refresh extend the record while the user still has connections here
	Refresh(ctx context.Context, userID string) error
	IsOnline(ctx context.Context, userID string) (bool, error)
}

type redisOnlineRepository struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisOnlineRepository hash "chat:online:<user>" of instance -> connection count.
// the key expires after ttl without a Refresh so a crashed instance cannot pin a user online.
func NewRedisOnlineRepository(client redis.UniversalClient, ttl time.Duration) OnlineRepository {
	return &redisOnlineRepository{client: client, ttl: ttl}
}

func onlineKey(userID string) string {
	return "chat:online:" + userID
}

func (r *redisOnlineRepository) Connected(ctx context.Context, userID, instance string) error {
	key := onlineKey(userID)
	pipe := r.client.TxPipeline()
	pipe.HIncrBy(ctx, key, instance, 1)
	pipe.Expire(ctx, key, r.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

var disconnectScript = redis.NewScript(`
local n = redis.call('HINCRBY', KEYS[1], ARGV[1], -1)
if n <= 0 then
  redis.call('HDEL', KEYS[1], ARGV[1])
end
return n
`)

func (r *redisOnlineRepository) Disconnected(ctx context.Context, userID, instance string) error {
	return disconnectScript.Run(ctx, r.client, []string{onlineKey(userID)}, instance).Err()
}

func (r *redisOnlineRepository) Refresh(ctx context.Context, userID string) error {
	return r.client.Expire(ctx, onlineKey(userID), r.ttl).Err()
}

func (r *redisOnlineRepository) IsOnline(ctx context.Context, userID string) (bool, error) {
	n, err := r.client.HLen(ctx, onlineKey(userID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type memoryOnlineRepository struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewMemoryOnlineRepository single instance OnlineRepository
func NewMemoryOnlineRepository() OnlineRepository {
	return &memoryOnlineRepository{counts: make(map[string]int)}
}

func (r *memoryOnlineRepository) Connected(ctx context.Context, userID, instance string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[userID]++
	return nil
}

func (r *memoryOnlineRepository) Disconnected(ctx context.Context, userID, instance string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts[userID] <= 1 {
		delete(r.counts, userID)
		return nil
	}
	r.counts[userID]--
	return nil
}

func (r *memoryOnlineRepository) Refresh(ctx context.Context, userID string) error { return nil }

func (r *memoryOnlineRepository) IsOnline(ctx context.Context, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[userID] > 0, nil
}
