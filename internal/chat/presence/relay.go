package presence

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"chat_presence_service/internal/chat/domain"
	"chat_presence_service/internal/chat/repository"
	"chat_presence_service/pkg/logger"

	"go.uber.org/zap"
)

const (
	roomChannelPrefix = "chat:room:"
	userChannelPrefix = "chat:user:"
)

type envelopeKind string

const (
	kindRoom        envelopeKind = "room"
	kindUser        envelopeKind = "user"
	kindSubscribe   envelopeKind = "subscribe"
	kindUnsubscribe envelopeKind = "unsubscribe"
)

// envelope what instances exchange over pub/sub
type envelope struct {
	Instance    string          `json:"instance"`
	Kind        envelopeKind    `json:"kind"`
	RoomID      string          `json:"room_id,omitempty"`
	UserID      string          `json:"user_id,omitempty"`
	Exclude     []string        `json:"exclude,omitempty"`
	ExcludeUser string          `json:"exclude_user,omitempty"` // all devices of this user, on every instance
	EventType   string          `json:"event_type,omitempty"`
	Event       json.RawMessage `json:"event,omitempty"`
}

// Relay fan-out over every instance: applies locally then publishes for the other instances
type Relay struct {
	instance string
	registry *Registry
	pubsub   repository.PubSub
	online   repository.OnlineRepository
	lastSeen repository.LastSeenRepository
}

// NewRelay create Relay, instance must be unique per process
func NewRelay(
	instance string,
	registry *Registry,
	pubsub repository.PubSub,
	online repository.OnlineRepository,
	lastSeen repository.LastSeenRepository,
) *Relay {
	rl := &Relay{
		instance: instance,
		registry: registry,
		pubsub:   pubsub,
		online:   online,
		lastSeen: lastSeen,
	}
	registry.OnDeregister(rl.afterDeregister)
	return rl
}

// Registry local registry
func (rl *Relay) Registry() *Registry {
	return rl.registry
}

// Run subscribe to the other instances until ctx ends
func (rl *Relay) Run(ctx context.Context) error {
	return rl.pubsub.Subscribe(ctx, "chat:*", rl.receive)
}

// Connect register c with its rooms and record the user online
func (rl *Relay) Connect(ctx context.Context, c *Connection, roomIDs []string) {
	rl.registry.Register(c, roomIDs)
	if err := rl.online.Connected(ctx, c.UserID, rl.instance); err != nil {
		logger.Log.Warn("record online failed", zap.String("user_id", c.UserID), zap.Error(err))
	}
	rl.touchLastSeen(ctx, c.UserID, c.ConnectedAt)
}

// Disconnect deregister c, true when the user has no connection left here
func (rl *Relay) Disconnect(c *Connection) bool {
	return rl.registry.Deregister(c)
}

func (rl *Relay) afterDeregister(c *Connection, last bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rl.online.Disconnected(ctx, c.UserID, rl.instance); err != nil {
		logger.Log.Warn("record offline failed", zap.String("user_id", c.UserID), zap.Error(err))
	}
	rl.touchLastSeen(ctx, c.UserID, time.Now())
}

// Heartbeat refresh c and the user's presence records
func (rl *Relay) Heartbeat(ctx context.Context, c *Connection) {
	now := time.Now()
	c.Touch(now)
	if err := rl.online.Refresh(ctx, c.UserID); err != nil {
		logger.Log.Debug("refresh online failed", zap.String("user_id", c.UserID), zap.Error(err))
	}
	rl.touchLastSeen(ctx, c.UserID, now)
}

func (rl *Relay) touchLastSeen(ctx context.Context, userID string, at time.Time) {
	if err := rl.lastSeen.Touch(ctx, userID, at); err != nil {
		logger.Log.Debug("touch last seen failed", zap.String("user_id", userID), zap.Error(err))
	}
}

// IsOnline user has a live connection on any instance
func (rl *Relay) IsOnline(ctx context.Context, userID string) bool {
	if rl.registry.IsOnline(userID) {
		return true
	}
	online, err := rl.online.IsOnline(ctx, userID)
	if err != nil {
		logger.Log.Warn("online lookup failed", zap.String("user_id", userID), zap.Error(err))
		return false
	}
	return online
}

// LastSeen last time userID had a live connection
func (rl *Relay) LastSeen(ctx context.Context, userID string) (time.Time, error) {
	return rl.lastSeen.Get(ctx, userID)
}

// BroadcastRoom push ev to the room's subscribers on every instance
func (rl *Relay) BroadcastRoom(ctx context.Context, roomID string, ev domain.Event, exclude ...string) {
	data, err := json.Marshal(ev)
	if err != nil {
		logger.Log.Error("marshal event", zap.String("type", string(ev.Type)), zap.Error(err))
		return
	}
	rl.registry.BroadcastRaw(roomID, data, string(ev.Type), exclude...)
	rl.publish(ctx, roomChannelPrefix+roomID, envelope{
		Kind: kindRoom, RoomID: roomID, Exclude: exclude, EventType: string(ev.Type), Event: data,
	})
}

// BroadcastRoomExceptUser push ev to the room on every instance, none of userID's devices get it
func (rl *Relay) BroadcastRoomExceptUser(ctx context.Context, roomID string, ev domain.Event, userID string) {
	data, err := json.Marshal(ev)
	if err != nil {
		logger.Log.Error("marshal event", zap.String("type", string(ev.Type)), zap.Error(err))
		return
	}
	rl.registry.BroadcastRawExceptUser(roomID, data, string(ev.Type), userID)
	rl.publish(ctx, roomChannelPrefix+roomID, envelope{
		Kind: kindRoom, RoomID: roomID, ExcludeUser: userID, EventType: string(ev.Type), Event: data,
	})
}

// SendToUser push ev to every connection of userID on every instance
func (rl *Relay) SendToUser(ctx context.Context, userID string, ev domain.Event, exclude ...string) {
	data, err := json.Marshal(ev)
	if err != nil {
		logger.Log.Error("marshal event", zap.String("type", string(ev.Type)), zap.Error(err))
		return
	}
	rl.registry.SendRawToUser(userID, data, string(ev.Type), exclude...)
	rl.publish(ctx, userChannelPrefix+userID, envelope{
		Kind: kindUser, UserID: userID, Exclude: exclude, EventType: string(ev.Type), Event: data,
	})
}

// Subscribe add the user's connections on every instance to roomID
func (rl *Relay) Subscribe(ctx context.Context, roomID, userID string) {
	rl.registry.Subscribe(roomID, userID)
	rl.publish(ctx, userChannelPrefix+userID, envelope{Kind: kindSubscribe, RoomID: roomID, UserID: userID})
}

// Unsubscribe remove the user's connections on every instance from roomID
func (rl *Relay) Unsubscribe(ctx context.Context, roomID, userID string) {
	rl.registry.Unsubscribe(roomID, userID)
	rl.publish(ctx, userChannelPrefix+userID, envelope{Kind: kindUnsubscribe, RoomID: roomID, UserID: userID})
}

func (rl *Relay) publish(ctx context.Context, channel string, env envelope) {
	env.Instance = rl.instance
	data, err := json.Marshal(env)
	if err != nil {
		logger.Log.Error("marshal envelope", zap.Error(err))
		return
	}
	// 跨節點同步失敗不影響本機已送出的事件
	if err := rl.pubsub.Publish(ctx, channel, data); err != nil {
		logger.Log.Warn("relay publish failed", zap.String("channel", channel), zap.Error(err))
	}
}

func (rl *Relay) receive(channel string, payload []byte) {
	if !strings.HasPrefix(channel, roomChannelPrefix) && !strings.HasPrefix(channel, userChannelPrefix) {
		return
	}
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		logger.Log.Warn("relay decode failed", zap.String("channel", channel), zap.Error(err))
		return
	}
	if env.Instance == rl.instance {
		return
	}
	switch env.Kind {
	case kindRoom:
		if env.ExcludeUser != "" {
			rl.registry.BroadcastRawExceptUser(env.RoomID, env.Event, env.EventType, env.ExcludeUser)
			return
		}
		rl.registry.BroadcastRaw(env.RoomID, env.Event, env.EventType, env.Exclude...)
	case kindUser:
		rl.registry.SendRawToUser(env.UserID, env.Event, env.EventType, env.Exclude...)
	case kindSubscribe:
		rl.registry.Subscribe(env.RoomID, env.UserID)
	case kindUnsubscribe:
		rl.registry.Unsubscribe(env.RoomID, env.UserID)
	}
}
