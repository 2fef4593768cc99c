package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"chat_presence_service/pkg/database"
)

// LastSeen last time a user had a live connection
type LastSeen struct {
	UserID string    `json:"user_id"`
	At     time.Time `json:"at"`
}

// LastSeenRepository presence timestamps that outlive the process
type LastSeenRepository interface {
	Touch(ctx context.Context, userID string, at time.Time) error
	// Get zero time when never seen
	Get(ctx context.Context, userID string) (time.Time, error)
}

type redisLastSeenRepository struct {
	store database.RedisRepository[LastSeen]
	ttl   time.Duration
}

// NewRedisLastSeenRepository keys are "chat:last_seen:<user>"
func NewRedisLastSeenRepository(store database.RedisRepository[LastSeen], ttl time.Duration) LastSeenRepository {
	return &redisLastSeenRepository{store: store, ttl: ttl}
}

func (r *redisLastSeenRepository) Touch(ctx context.Context, userID string, at time.Time) error {
	return r.store.Set(ctx, userID, LastSeen{UserID: userID, At: at.UTC()}, r.ttl)
}

func (r *redisLastSeenRepository) Get(ctx context.Context, userID string) (time.Time, error) {
	v, err := r.store.Get(ctx, userID)
	if errors.Is(err, database.ErrRedisNil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return v.At, nil
}

type memoryLastSeenRepository struct {
	mu   sync.RWMutex
	seen map[string]time.Time
}

// NewMemoryLastSeenRepository create an in-memory LastSeenRepository
func NewMemoryLastSeenRepository() LastSeenRepository {
	return &memoryLastSeenRepository{seen: make(map[string]time.Time)}
}

func (r *memoryLastSeenRepository) Touch(ctx context.Context, userID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen[userID] = at.UTC()
	return nil
}

func (r *memoryLastSeenRepository) Get(ctx context.Context, userID string) (time.Time, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.seen[userID], nil
}
