package presence

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"chat_presence_service/pkg/logger"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

// Transport the write side of a websocket
type Transport interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Connection one live device of a user.
// all writes go through the outbound queue so only the write pump touches the transport.
type Connection struct {
	ID          string
	UserID      string
	Device      string
	ConnectedAt time.Time

	transport     Transport
	outbound      chan []byte
	done          chan struct{}
	closeOnce     sync.Once
	lastHeartbeat atomic.Int64

	mu    sync.Mutex
	rooms map[string]struct{}
}

// NewConnection create a Connection with a queue of buffer frames
func NewConnection(id, userID, device string, transport Transport, buffer int) *Connection {
	now := time.Now()
	c := &Connection{
		ID:          id,
		UserID:      userID,
		Device:      device,
		ConnectedAt: now,
		transport:   transport,
		outbound:    make(chan []byte, buffer),
		done:        make(chan struct{}),
		rooms:       make(map[string]struct{}),
	}
	c.lastHeartbeat.Store(now.UnixNano())
	return c
}

// Enqueue queue a frame without blocking, false when the queue is full or the connection closed
func (c *Connection) Enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.outbound <- data:
		return true
	default:
		return false
	}
}

// Touch record a heartbeat
func (c *Connection) Touch(at time.Time) {
	c.lastHeartbeat.Store(at.UnixNano())
}

// LastHeartbeat time of the last Touch
func (c *Connection) LastHeartbeat() time.Time {
	return time.Unix(0, c.lastHeartbeat.Load())
}

// Done closed once the connection is closed
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Close stop the write pump and close the transport, safe to call many times
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if err := c.transport.Close(); err != nil {
			logger.Log.Debug("close transport", zap.String("conn_id", c.ID), zap.Error(err))
		}
	})
}

// Rooms rooms this connection is subscribed to
func (c *Connection) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.rooms))
	for r := range c.rooms {
		out = append(out, r)
	}
	return out
}

func (c *Connection) addRoom(roomID string) {
	c.mu.Lock()
	c.rooms[roomID] = struct{}{}
	c.mu.Unlock()
}

func (c *Connection) removeRoom(roomID string) {
	c.mu.Lock()
	delete(c.rooms, roomID)
	c.mu.Unlock()
}

// WritePump drain the outbound queue and ping every pingInterval until ctx ends or the connection closes
func (c *Connection) WritePump(ctx context.Context, pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case data := <-c.outbound:
			if err := c.transport.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Log.Warn("websocket write failed", zap.String("conn_id", c.ID), zap.Error(err))
				c.Close()
				return
			}
		case <-ticker.C:
			// server發出ping，client正常會回pong
			if err := c.transport.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.Log.Warn("websocket ping failed", zap.String("conn_id", c.ID), zap.Error(err))
				c.Close()
				return
			}
		case <-c.done:
			return
		case <-ctx.Done():
			return
		}
	}
}
