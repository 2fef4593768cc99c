package presence

import (
	"encoding/json"
	"hash/fnv"
	"sync"
	"time"

	"chat_presence_service/internal/chat/domain"
	"chat_presence_service/pkg/logger"
	"chat_presence_service/pkg/metrics"

	"go.uber.org/zap"
)

const shardCount = 64

type shard struct {
	mu    sync.RWMutex
	users map[string]map[string]*Connection // user -> conn id -> conn
	rooms map[string]map[string]*Connection // room -> conn id -> conn
}

// Registry live connections by user and room subscribers by room.
// users and rooms hash onto independent shards so unrelated rooms never share a lock.
type Registry struct {
	shards       [shardCount]*shard
	onDeregister []func(c *Connection, last bool)
}

// Stats snapshot of the registry
type Stats struct {
	Users       int `json:"users"`
	Connections int `json:"connections"`
	Rooms       int `json:"rooms"`
}

// NewRegistry create an empty Registry
func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i] = &shard{
			users: make(map[string]map[string]*Connection),
			rooms: make(map[string]map[string]*Connection),
		}
	}
	return r
}

func (r *Registry) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return r.shards[h.Sum32()%shardCount]
}

// OnDeregister run fn after a connection is removed, last is true when the user went offline.
// call before the registry is shared.
func (r *Registry) OnDeregister(fn func(c *Connection, last bool)) {
	r.onDeregister = append(r.onDeregister, fn)
}

// Register add c and subscribe it to roomIDs, true when c is the user's first connection
func (r *Registry) Register(c *Connection, roomIDs []string) bool {
	s := r.shardFor(c.UserID)
	s.mu.Lock()
	conns, ok := s.users[c.UserID]
	if !ok {
		conns = make(map[string]*Connection)
		s.users[c.UserID] = conns
	}
	first := len(conns) == 0
	conns[c.ID] = c
	s.mu.Unlock()

	for _, roomID := range roomIDs {
		r.subscribeConn(roomID, c)
	}
	metrics.WebsocketConnections.Inc()
	return first
}

// Deregister remove c from every index and close it, true when the user has no connection left
func (r *Registry) Deregister(c *Connection) bool {
	// 先關閉，晚到的 subscribeConn 看到 closed 會自行退訂
	c.Close()

	s := r.shardFor(c.UserID)
	s.mu.Lock()
	_, registered := s.users[c.UserID][c.ID]
	last := false
	if registered {
		delete(s.users[c.UserID], c.ID)
		last = len(s.users[c.UserID]) == 0
		if last {
			delete(s.users, c.UserID)
		}
	}
	s.mu.Unlock()

	for _, roomID := range c.Rooms() {
		r.unsubscribeConn(roomID, c)
	}
	if !registered {
		return false
	}
	metrics.WebsocketConnections.Dec()

	for _, fn := range r.onDeregister {
		fn(c, last)
	}
	return last
}

func (r *Registry) subscribeConn(roomID string, c *Connection) {
	s := r.shardFor(roomID)
	s.mu.Lock()
	subs, ok := s.rooms[roomID]
	if !ok {
		subs = make(map[string]*Connection)
		s.rooms[roomID] = subs
	}
	subs[c.ID] = c
	s.mu.Unlock()
	c.addRoom(roomID)

	select {
	case <-c.Done():
		r.unsubscribeConn(roomID, c)
	default:
	}
}

func (r *Registry) unsubscribeConn(roomID string, c *Connection) {
	s := r.shardFor(roomID)
	s.mu.Lock()
	if subs, ok := s.rooms[roomID]; ok {
		delete(subs, c.ID)
		if len(subs) == 0 {
			delete(s.rooms, roomID)
		}
	}
	s.mu.Unlock()
	c.removeRoom(roomID)
}

// Connections live connections of userID
func (r *Registry) Connections(userID string) []*Connection {
	s := r.shardFor(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Connection, 0, len(s.users[userID]))
	for _, c := range s.users[userID] {
		out = append(out, c)
	}
	return out
}

// IsOnline user has at least one connection on this instance
func (r *Registry) IsOnline(userID string) bool {
	s := r.shardFor(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users[userID]) > 0
}

// Subscribe add every live connection of userID to roomID, used when a user joins a room
func (r *Registry) Subscribe(roomID, userID string) {
	for _, c := range r.Connections(userID) {
		r.subscribeConn(roomID, c)
	}
}

// Unsubscribe remove userID's connections from roomID
func (r *Registry) Unsubscribe(roomID, userID string) {
	for _, c := range r.Connections(userID) {
		r.unsubscribeConn(roomID, c)
	}
}

// Subscribers connections currently subscribed to roomID
func (r *Registry) Subscribers(roomID string) []*Connection {
	s := r.shardFor(roomID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Connection, 0, len(s.rooms[roomID]))
	for _, c := range s.rooms[roomID] {
		out = append(out, c)
	}
	return out
}

// Broadcast push ev to every subscriber of roomID except exclude, returns frames queued
func (r *Registry) Broadcast(roomID string, ev domain.Event, exclude ...string) int {
	data, err := json.Marshal(ev)
	if err != nil {
		logger.Log.Error("marshal event", zap.String("type", string(ev.Type)), zap.Error(err))
		return 0
	}
	return r.deliver(r.Subscribers(roomID), data, string(ev.Type), "", exclude)
}

// BroadcastRaw push an already encoded event
func (r *Registry) BroadcastRaw(roomID string, data []byte, eventType string, exclude ...string) int {
	return r.deliver(r.Subscribers(roomID), data, eventType, "", exclude)
}

// BroadcastRawExceptUser push an encoded event to roomID skipping every connection of userID
func (r *Registry) BroadcastRawExceptUser(roomID string, data []byte, eventType, userID string) int {
	return r.deliver(r.Subscribers(roomID), data, eventType, userID, nil)
}

// SendToUser push ev to every connection of userID except exclude
func (r *Registry) SendToUser(userID string, ev domain.Event, exclude ...string) int {
	data, err := json.Marshal(ev)
	if err != nil {
		logger.Log.Error("marshal event", zap.String("type", string(ev.Type)), zap.Error(err))
		return 0
	}
	return r.deliver(r.Connections(userID), data, string(ev.Type), "", exclude)
}

// SendRawToUser push an already encoded event to userID
func (r *Registry) SendRawToUser(userID string, data []byte, eventType string, exclude ...string) int {
	return r.deliver(r.Connections(userID), data, eventType, "", exclude)
}

// deliver fire and forget, a connection whose queue is full is pruned and never retried
func (r *Registry) deliver(targets []*Connection, data []byte, eventType, excludeUser string, exclude []string) int {
	sent := 0
	var dead []*Connection
	for _, c := range targets {
		if contains(exclude, c.ID) || (excludeUser != "" && c.UserID == excludeUser) {
			continue
		}
		select {
		case <-c.Done():
			continue
		default:
		}
		if c.Enqueue(data) {
			sent++
			continue
		}
		dead = append(dead, c)
	}
	if sent > 0 {
		metrics.EventsSent.WithLabelValues(eventType).Add(float64(sent))
	}
	for _, c := range dead {
		metrics.EventsDropped.Inc()
		logger.Log.Warn("prune unreachable connection",
			zap.String("conn_id", c.ID),
			zap.String("user_id", c.UserID),
			zap.String("event", eventType),
		)
		r.Deregister(c)
	}
	return sent
}

// Sweep deregister connections without a heartbeat since now-timeout
func (r *Registry) Sweep(now time.Time, timeout time.Duration) int {
	threshold := now.Add(-timeout)
	var stale []*Connection
	for _, s := range r.shards {
		s.mu.RLock()
		for _, conns := range s.users {
			for _, c := range conns {
				if c.LastHeartbeat().Before(threshold) {
					stale = append(stale, c)
				}
			}
		}
		s.mu.RUnlock()
	}
	for _, c := range stale {
		r.Deregister(c)
	}
	if len(stale) > 0 {
		metrics.SweptConnections.Add(float64(len(stale)))
	}
	return len(stale)
}

// Stats count users, connections and subscribed rooms
func (r *Registry) Stats() Stats {
	var st Stats
	for _, s := range r.shards {
		s.mu.RLock()
		st.Users += len(s.users)
		for _, conns := range s.users {
			st.Connections += len(conns)
		}
		st.Rooms += len(s.rooms)
		s.mu.RUnlock()
	}
	return st
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
