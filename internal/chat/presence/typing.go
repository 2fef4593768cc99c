package presence

import (
	"context"
	"sort"
	"sync"
	"time"

	"chat_presence_service/internal/chat/domain"
)

// RoomBroadcaster fan-out of one event to a room, skipping the actor's devices
type RoomBroadcaster interface {
	BroadcastRoomExceptUser(ctx context.Context, roomID string, ev domain.Event, userID string)
}

// Typing ephemeral typing signals, never persisted
type Typing struct {
	mu      sync.Mutex
	signals map[string]map[string]time.Time // room -> user -> expires at
	ttl     time.Duration
	out     RoomBroadcaster
	now     func() time.Time
}

// NewTyping create Typing, a signal lives ttl after its last refresh
func NewTyping(out RoomBroadcaster, ttl time.Duration) *Typing {
	return &Typing{
		signals: make(map[string]map[string]time.Time),
		ttl:     ttl,
		out:     out,
		now:     time.Now,
	}
}

// SetTyping start or refresh (isTyping) or stop the signal of userID in roomID.
// none of the actor's devices receive the event.
func (t *Typing) SetTyping(ctx context.Context, roomID, userID string, isTyping bool) {
	t.mu.Lock()
	if isTyping {
		users, ok := t.signals[roomID]
		if !ok {
			users = make(map[string]time.Time)
			t.signals[roomID] = users
		}
		users[userID] = t.now().Add(t.ttl)
	} else {
		t.remove(roomID, userID)
	}
	t.mu.Unlock()

	evType := domain.EventTypingStopped
	if isTyping {
		evType = domain.EventTypingStarted
	}
	t.out.BroadcastRoomExceptUser(ctx, roomID, domain.NewEvent(evType, roomID, domain.TypingPayload{UserID: userID}), userID)
}

// remove caller holds t.mu, true when a signal existed
func (t *Typing) remove(roomID, userID string) bool {
	users, ok := t.signals[roomID]
	if !ok {
		return false
	}
	if _, ok := users[userID]; !ok {
		return false
	}
	delete(users, userID)
	if len(users) == 0 {
		delete(t.signals, roomID)
	}
	return true
}

type typingKey struct {
	roomID string
	userID string
}

// Expire drop signals past their ttl and announce them stopped
func (t *Typing) Expire(ctx context.Context) int {
	now := t.now()
	var expired []typingKey
	t.mu.Lock()
	for roomID, users := range t.signals {
		for userID, until := range users {
			if !now.Before(until) {
				expired = append(expired, typingKey{roomID, userID})
			}
		}
	}
	for _, k := range expired {
		t.remove(k.roomID, k.userID)
	}
	t.mu.Unlock()

	t.announceStopped(ctx, expired)
	return len(expired)
}

// ClearUser drop every signal of userID, used when the user goes offline
func (t *Typing) ClearUser(ctx context.Context, userID string) int {
	var cleared []typingKey
	t.mu.Lock()
	for roomID := range t.signals {
		if t.remove(roomID, userID) {
			cleared = append(cleared, typingKey{roomID, userID})
		}
	}
	t.mu.Unlock()

	t.announceStopped(ctx, cleared)
	return len(cleared)
}

// ClearWhenOffline clear a user's signals whenever registry drops their last connection,
// whether by disconnect, sweep or prune. call before the registry is shared.
func (t *Typing) ClearWhenOffline(registry *Registry) {
	registry.OnDeregister(func(c *Connection, last bool) {
		if !last {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		t.ClearUser(ctx, c.UserID)
	})
}

func (t *Typing) announceStopped(ctx context.Context, keys []typingKey) {
	for _, k := range keys {
		t.out.BroadcastRoomExceptUser(ctx, k.roomID, domain.NewEvent(domain.EventTypingStopped, k.roomID, domain.TypingPayload{UserID: k.userID}), k.userID)
	}
}

// Active users currently typing in roomID
func (t *Typing) Active(roomID string) []string {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []string
	for userID, until := range t.signals[roomID] {
		if now.Before(until) {
			out = append(out, userID)
		}
	}
	sort.Strings(out)
	return out
}

// Run expire signals every interval until ctx ends
func (t *Typing) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.Expire(ctx)
		case <-ctx.Done():
			return
		}
	}
}
