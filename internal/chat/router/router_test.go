package router

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"testing"
	"time"

	"chat_presence_service/internal/chat/app"
	"chat_presence_service/internal/chat/domain"
	"chat_presence_service/internal/chat/presence"
	"chat_presence_service/internal/chat/ratelimit"
	"chat_presence_service/internal/chat/repository"
	"chat_presence_service/pkg/logger"
	"chat_presence_service/pkg/token"

	"github.com/gofiber/fiber/v2"
	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.SetNewNop()
}

type liveServer struct {
	addr   string
	roomUC *app.RoomUseCase
}

func startServer(t *testing.T) *liveServer {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	rooms := repository.NewMemoryRoomRepository()
	messages := repository.NewMemoryMessageRepository()
	relay := presence.NewRelay("ws-test", presence.NewRegistry(), repository.NewMemoryPubSub(),
		repository.NewMemoryOnlineRepository(), repository.NewMemoryLastSeenRepository())
	typing := presence.NewTyping(relay, 5*time.Second)
	typing.ClearWhenOffline(relay.Registry())
	limiter := ratelimit.NewLocalLimiter(ratelimit.Settings{Capacity: 50, Refill: 50, Period: time.Minute})

	msgUC := app.NewMessageUseCase(rooms, messages, limiter, relay, typing,
		app.NewNoopPushNotifier(), app.NewNoopEventPublisher(), nil, time.Minute)
	roomUC := app.NewRoomUseCase(rooms, repository.NewMemoryInvitationRepository(),
		repository.NewMemoryItemDirectory(), messages, msgUC, relay, time.Hour)

	f := fiber.New(fiber.Config{DisableStartupMessage: true})
	RegisterRoutes(ctx, f, app.NewChatWebsocketHandler(roomUC, msgUC, relay, app.WebsocketSettings{}))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = f.Listener(ln) }()
	t.Cleanup(func() {
		cancel()
		_ = f.Shutdown()
	})
	return &liveServer{addr: ln.Addr().String(), roomUC: roomUC}
}

func (s *liveServer) dial(t *testing.T, userID string) *gws.Conn {
	t.Helper()
	jwt, err := token.GenerateJWT(userID, string(token.RoleMember), "test")
	require.NoError(t, err)
	conn, resp, err := gws.DefaultDialer.Dial("ws://"+s.addr+"/ws?device=test&auth="+jwt, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { conn.Close() })
	return conn
}

type frame struct {
	Type      string          `json:"type"`
	Action    string          `json:"action"`
	RequestID string          `json:"request_id"`
	Success   bool            `json:"success"`
	Code      string          `json:"code"`
	Payload   json.RawMessage `json:"payload"`
}

// readUntil read frames until match returns true
func readUntil(t *testing.T, conn *gws.Conn, match func(f frame) bool) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var f frame
		require.NoError(t, json.Unmarshal(data, &f))
		if match(f) {
			return f
		}
	}
}

func TestWebsocket_Unauthenticated(t *testing.T) {
	s := startServer(t)
	_, resp, err := gws.DefaultDialer.Dial("ws://"+s.addr+"/ws", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebsocket_SendAndReceive(t *testing.T) {
	s := startServer(t)
	room, err := s.roomUC.CreatePrivate(context.Background(), "alice", "bob")
	require.NoError(t, err)

	alice := s.dial(t, "alice")
	bob := s.dial(t, "bob")

	// heartbeat 回應代表連線已註冊完成
	for _, c := range []*gws.Conn{alice, bob} {
		require.NoError(t, c.WriteJSON(domain.WSRequest{Action: string(domain.HeartbeatAction), RequestID: "hb"}))
		f := readUntil(t, c, func(f frame) bool { return f.RequestID == "hb" })
		assert.True(t, f.Success)
	}

	require.NoError(t, alice.WriteJSON(domain.WSRequest{
		Action:          string(domain.SendMessageAction),
		RequestID:       "r1",
		RoomID:          room.ID,
		ClientMessageID: "c-1",
		Content:         "hello over the wire",
	}))
	ack := readUntil(t, alice, func(f frame) bool { return f.RequestID == "r1" })
	assert.True(t, ack.Success)

	ev := readUntil(t, bob, func(f frame) bool { return f.Type == string(domain.EventMessageCreated) })
	var m domain.Message
	require.NoError(t, json.Unmarshal(ev.Payload, &m))
	assert.Equal(t, "hello over the wire", m.Content)
	assert.Equal(t, int64(1), m.Seq)

	require.NoError(t, bob.WriteJSON(domain.WSRequest{Action: string(domain.ReadMessageAction), RequestID: "r2", RoomID: room.ID, MessageID: m.ID}))
	readUntil(t, alice, func(f frame) bool { return f.Type == string(domain.EventReadReceipt) })

	require.NoError(t, bob.WriteJSON(domain.WSRequest{Action: "dance", RequestID: "r3"}))
	bad := readUntil(t, bob, func(f frame) bool { return f.RequestID == "r3" })
	assert.False(t, bad.Success)
	assert.Equal(t, "invalid_argument", bad.Code)
}

func TestWebsocket_NonParticipantRejected(t *testing.T) {
	s := startServer(t)
	room, err := s.roomUC.CreatePrivate(context.Background(), "alice", "bob")
	require.NoError(t, err)

	mallory := s.dial(t, "mallory")
	require.NoError(t, mallory.WriteJSON(domain.WSRequest{
		Action:          string(domain.SendMessageAction),
		RequestID:       "r1",
		RoomID:          room.ID,
		ClientMessageID: "c-1",
		Content:         "let me in",
	}))
	f := readUntil(t, mallory, func(f frame) bool { return f.RequestID == "r1" })
	assert.False(t, f.Success)
	assert.Equal(t, "forbidden", f.Code)
}
