package app

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"chat_presence_service/internal/chat/domain"
	"chat_presence_service/internal/chat/presence"
	"chat_presence_service/internal/chat/ratelimit"
	"chat_presence_service/internal/chat/repository"
	"chat_presence_service/pkg/logger"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.SetNewNop()
}

// harness one instance wired on the in-memory stores
type harness struct {
	ctx      context.Context
	rooms    repository.RoomRepository
	invites  repository.InvitationRepository
	messages repository.MessageRepository
	items    *repository.MemoryItemDirectory
	relay    *presence.Relay
	typing   *presence.Typing
	push     *MockPushNotifier
	events   *MockEventPublisher
	minio    *MockMinIO
	// 事件在背景送出，用計數等待
	published atomic.Int32
	msgUC    *MessageUseCase
	roomUC   *RoomUseCase
}

func newHarness(t *testing.T, capacity int) *harness {
	t.Helper()
	h := &harness{
		ctx:      context.Background(),
		rooms:    repository.NewMemoryRoomRepository(),
		invites:  repository.NewMemoryInvitationRepository(),
		messages: repository.NewMemoryMessageRepository(),
		items:    repository.NewMemoryItemDirectory(),
		push:     new(MockPushNotifier),
		events:   new(MockEventPublisher),
		minio:    new(MockMinIO),
	}
	h.push.On("Notify", mock.Anything, mock.Anything).Return(nil)
	h.events.On("Publish", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { h.published.Add(1) }).
		Return(nil)

	h.relay = presence.NewRelay("test-instance",
		presence.NewRegistry(),
		repository.NewMemoryPubSub(),
		repository.NewMemoryOnlineRepository(),
		repository.NewMemoryLastSeenRepository(),
	)
	h.typing = presence.NewTyping(h.relay, 5*time.Second)
	h.typing.ClearWhenOffline(h.relay.Registry())
	limiter := ratelimit.NewLocalLimiter(ratelimit.Settings{Capacity: capacity, Refill: capacity, Period: time.Minute})

	h.msgUC = NewMessageUseCase(h.rooms, h.messages, limiter, h.relay, h.typing, h.push, h.events, h.minio, 15*time.Minute)
	h.roomUC = NewRoomUseCase(h.rooms, h.invites, h.items, h.messages, h.msgUC, h.relay, 24*time.Hour)
	return h
}

// awaitPublished wait until n events reached the publisher
func (h *harness) awaitPublished(t *testing.T, n int32) {
	t.Helper()
	require.Eventually(t, func() bool { return h.published.Load() == n }, time.Second, 5*time.Millisecond)
}

// send text message with a fresh client id
func (h *harness) send(t *testing.T, roomID, senderID, content string) *domain.Message {
	t.Helper()
	m, err := h.msgUC.Send(h.ctx, domain.SendMessage{
		RoomID:          roomID,
		SenderID:        senderID,
		ClientMessageID: uuid.New().String(),
		Content:         content,
	})
	require.NoError(t, err)
	return m
}

func (h *harness) group(t *testing.T, creator string, members ...string) *domain.Room {
	t.Helper()
	room, err := h.roomUC.CreateGroup(h.ctx, GroupInput{CreatorID: creator, Name: "Go Club", MemberIDs: members})
	require.NoError(t, err)
	return room
}

// pushedTo notifications handed to the push mock for userID
func (h *harness) pushedTo(userID string) int {
	n := 0
	for _, call := range h.push.Calls {
		if call.Method == "Notify" && call.Arguments.Get(1).(PushNotification).UserID == userID {
			n++
		}
	}
	return n
}

// wireEvent server event as a client decodes it
type wireEvent struct {
	Type    domain.EventType `json:"type"`
	RoomID  string           `json:"room_id"`
	Payload json.RawMessage  `json:"payload"`
}

type recordingTransport struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func (r *recordingTransport) WriteMessage(messageType int, data []byte) error {
	if messageType != websocket.TextMessage {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, append([]byte(nil), data...))
	return nil
}

func (r *recordingTransport) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

func (r *recordingTransport) events(t domain.EventType) []wireEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []wireEvent
	for _, f := range r.frames {
		var ev wireEvent
		if err := json.Unmarshal(f, &ev); err == nil && ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// connect open a live connection of userID subscribed to its rooms
func (h *harness) connect(t *testing.T, userID string) (*presence.Connection, *recordingTransport) {
	t.Helper()
	tr := &recordingTransport{}
	c := presence.NewConnection(uuid.New().String(), userID, "test", tr, 64)
	roomIDs, err := h.roomUC.ActiveRoomIDs(h.ctx, userID)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(h.ctx)
	h.relay.Connect(ctx, c, roomIDs)
	go c.WritePump(ctx, time.Hour)
	t.Cleanup(func() {
		cancel()
		h.relay.Disconnect(c)
	})
	return c, tr
}

func waitEvent(t *testing.T, tr *recordingTransport, evType domain.EventType, n int) []wireEvent {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(tr.events(evType)) >= n
	}, 2*time.Second, 10*time.Millisecond, "waiting for %d %s", n, evType)
	return tr.events(evType)
}
