package repository

import (
	"context"
	"strings"
	"sync"

	"chat_presence_service/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// PubSub cross instance fan-out channel
type PubSub interface {
	// Publish 發布 payload 到指定 channel
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe 訂閱符合 pattern 的 channel，直到 ctx 結束
	Subscribe(ctx context.Context, pattern string, handler func(channel string, payload []byte)) error
}

// RedisPubSub definition redis pub/sub
type RedisPubSub struct {
	client redis.UniversalClient
}

// NewRedisPubSub create RedisPubSub
func NewRedisPubSub(client redis.UniversalClient) *RedisPubSub {
	return &RedisPubSub{client: client}
}

// Publish implements PubSub
func (r *RedisPubSub) Publish(ctx context.Context, channel string, payload []byte) error {
	return r.client.Publish(ctx, channel, payload).Err()
}

// Subscribe implements PubSub
func (r *RedisPubSub) Subscribe(ctx context.Context, pattern string, handler func(channel string, payload []byte)) error {
	sub := r.client.PSubscribe(ctx, pattern)
	// 確認訂閱成功再回傳
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return err
	}
	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case m, ok := <-ch:
				if !ok {
					return
				}
				handler(m.Channel, []byte(m.Payload))
			case <-ctx.Done():
				logger.Log.Info("pubsub subscription closed", zap.String("pattern", pattern))
				return
			}
		}
	}()
	return nil
}

// MemoryPubSub in process PubSub, only "prefix*" patterns are supported
type MemoryPubSub struct {
	mu   sync.RWMutex
	subs map[int]memorySub
	next int
}

type memorySub struct {
	prefix  string
	handler func(string, []byte)
}

// NewMemoryPubSub create MemoryPubSub
func NewMemoryPubSub() *MemoryPubSub {
	return &MemoryPubSub{subs: make(map[int]memorySub)}
}

// Publish implements PubSub, handlers run synchronously
func (m *MemoryPubSub) Publish(ctx context.Context, channel string, payload []byte) error {
	m.mu.RLock()
	var targets []memorySub
	for _, s := range m.subs {
		if strings.HasPrefix(channel, s.prefix) {
			targets = append(targets, s)
		}
	}
	m.mu.RUnlock()
	for _, s := range targets {
		s.handler(channel, payload)
	}
	return nil
}

// Subscribe implements PubSub
func (m *MemoryPubSub) Subscribe(ctx context.Context, pattern string, handler func(channel string, payload []byte)) error {
	m.mu.Lock()
	id := m.next
	m.next++
	m.subs[id] = memorySub{prefix: strings.TrimSuffix(pattern, "*"), handler: handler}
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}()
	return nil
}
