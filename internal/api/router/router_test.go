package router

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"chat_presence_service/internal/api/handlers"
	"chat_presence_service/internal/chat/app"
	"chat_presence_service/internal/chat/domain"
	"chat_presence_service/internal/chat/presence"
	"chat_presence_service/internal/chat/ratelimit"
	"chat_presence_service/internal/chat/repository"
	"chat_presence_service/pkg/logger"
	"chat_presence_service/pkg/token"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.SetNewNop()
}

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()

	rooms := repository.NewMemoryRoomRepository()
	messages := repository.NewMemoryMessageRepository()
	registry := presence.NewRegistry()
	relay := presence.NewRelay("api-test", registry, repository.NewMemoryPubSub(),
		repository.NewMemoryOnlineRepository(), repository.NewMemoryLastSeenRepository())
	typing := presence.NewTyping(relay, 5*time.Second)
	limiter := ratelimit.NewLocalLimiter(ratelimit.Settings{Capacity: 20, Refill: 20, Period: time.Minute})

	msgUC := app.NewMessageUseCase(rooms, messages, limiter, relay, typing,
		app.NewNoopPushNotifier(), app.NewNoopEventPublisher(), nil, time.Minute)
	roomUC := app.NewRoomUseCase(rooms, repository.NewMemoryInvitationRepository(),
		repository.NewMemoryItemDirectory(domain.Item{ID: "car-1", OwnerID: "dealer", Title: "2019 Civic"}),
		messages, msgUC, relay, time.Hour)

	f := fiber.New()
	RegisterRoutes(f, handlers.NewChatHandler(roomUC, msgUC, registry))
	return f
}

func do(t *testing.T, f *fiber.App, method, path, user, body string) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		jwt, err := token.GenerateJWT(user, string(token.RoleMember), "test")
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+jwt)
	}
	resp, err := f.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func TestConnectCheck(t *testing.T) {
	f := newTestApp(t)
	status, body := do(t, f, http.MethodGet, "/", "", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "chat service start!", string(body))
}

func TestChatRoutes_RequireToken(t *testing.T) {
	f := newTestApp(t)
	status, _ := do(t, f, http.MethodGet, "/chat/rooms", "", "")
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestDeprecatedSend(t *testing.T) {
	f := newTestApp(t)
	status, _ := do(t, f, http.MethodPost, "/chat/messages", "alice", `{"content":"hi"}`)
	assert.Equal(t, http.StatusGone, status)
}

func TestConversationOverREST(t *testing.T) {
	f := newTestApp(t)

	status, body := do(t, f, http.MethodPost, "/chat/private?recipientId=bob", "alice", "")
	require.Equal(t, http.StatusCreated, status, string(body))
	var room domain.Room
	require.NoError(t, json.Unmarshal(body, &room))

	status, _ = do(t, f, http.MethodPost, "/chat/rooms/"+room.ID+"/messages", "alice", `{"clientMessageId":"c-1"}`)
	assert.Equal(t, http.StatusBadRequest, status, "content or attachment is required")

	status, body = do(t, f, http.MethodPost, "/chat/rooms/"+room.ID+"/messages", "alice", `{"clientMessageId":"c-1","content":"hello"}`)
	require.Equal(t, http.StatusCreated, status, string(body))
	var msg domain.Message
	require.NoError(t, json.Unmarshal(body, &msg))
	assert.Equal(t, int64(1), msg.Seq)

	status, _ = do(t, f, http.MethodGet, "/chat/rooms/"+room.ID+"/messages", "mallory", "")
	assert.Equal(t, http.StatusForbidden, status)

	status, body = do(t, f, http.MethodGet, "/chat/unread-count", "bob", "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"total":1}`, string(body))

	status, _ = do(t, f, http.MethodPost, "/chat/rooms/"+room.ID+"/messages/read", "bob", `{"messageIds":["`+msg.ID+`"]}`)
	assert.Equal(t, http.StatusOK, status)

	status, body = do(t, f, http.MethodGet, "/chat/unread-count", "bob", "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"total":0}`, string(body))
}

func TestOutsiderWithBadBodyGetsForbidden(t *testing.T) {
	f := newTestApp(t)

	status, body := do(t, f, http.MethodPost, "/chat/private?recipientId=bob", "alice", "")
	require.Equal(t, http.StatusCreated, status, string(body))
	var room domain.Room
	require.NoError(t, json.Unmarshal(body, &room))
	status, body = do(t, f, http.MethodPost, "/chat/rooms/"+room.ID+"/messages", "alice", `{"clientMessageId":"c-1","content":"hello"}`)
	require.Equal(t, http.StatusCreated, status, string(body))
	var msg domain.Message
	require.NoError(t, json.Unmarshal(body, &msg))

	status, _ = do(t, f, http.MethodPost, "/chat/rooms/"+room.ID+"/messages", "mallory", `{"clientMessageId":"c-2"}`)
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = do(t, f, http.MethodPost, "/chat/rooms/"+room.ID+"/typing", "mallory", `not json`)
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = do(t, f, http.MethodPut, "/chat/messages/"+msg.ID, "mallory", `{}`)
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = do(t, f, http.MethodPost, "/chat/rooms/missing/messages/read", "mallory", `{}`)
	assert.Equal(t, http.StatusNotFound, status)

	// 成員仍拿到 400
	status, _ = do(t, f, http.MethodPut, "/chat/messages/"+msg.ID, "alice", `{}`)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestGroupValidation(t *testing.T) {
	f := newTestApp(t)
	status, _ := do(t, f, http.MethodPost, "/chat/group", "alice", `{"name":"go","memberIds":["bob"]}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = do(t, f, http.MethodPost, "/chat/group", "alice", `{"name":"Go Club","memberIds":["bob"],"maxParticipants":1}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body := do(t, f, http.MethodPost, "/chat/group", "alice", `{"name":"Go Club","memberIds":["bob"]}`)
	assert.Equal(t, http.StatusCreated, status, string(body))
}

func TestInquiryOverREST(t *testing.T) {
	f := newTestApp(t)
	status, body := do(t, f, http.MethodPost, "/chat/inquiries", "buyer", `{"itemId":"car-1","message":"available?"}`)
	require.Equal(t, http.StatusCreated, status, string(body))
	var room domain.Room
	require.NoError(t, json.Unmarshal(body, &room))

	status, _ = do(t, f, http.MethodPut, "/chat/inquiries/"+room.ID+"/status", "dealer", `{"status":"sold"}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = do(t, f, http.MethodPut, "/chat/inquiries/"+room.ID+"/status", "buyer", `{"status":"contacted"}`)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = do(t, f, http.MethodPut, "/chat/inquiries/"+room.ID+"/status", "dealer", `{"status":"contacted"}`)
	assert.Equal(t, http.StatusOK, status)

	status, body = do(t, f, http.MethodGet, "/chat/inquiries?status=contacted", "dealer", "")
	require.Equal(t, http.StatusOK, status)
	var rooms []domain.Room
	require.NoError(t, json.Unmarshal(body, &rooms))
	assert.Len(t, rooms, 1)
}

func TestDebugLogFlag(t *testing.T) {
	f := newTestApp(t)
	status, body := do(t, f, http.MethodPost, "/debug?service=chat_service&status=true", "", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "service[chat_service]: debug mode is : true", string(body))

	status, _ = do(t, f, http.MethodPost, "/debug?service=chat_service&status=maybe", "", "")
	assert.Equal(t, http.StatusBadRequest, status)
}
