package app

import (
	"context"
	"encoding/json"
	"time"

	"chat_presence_service/internal/chat/domain"
	"chat_presence_service/internal/chat/presence"
	errprocess "chat_presence_service/pkg/err"
	"chat_presence_service/pkg/logger"
	"chat_presence_service/pkg/middlewares"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// WebsocketSettings live connection tuning
type WebsocketSettings struct {
	PingInterval   time.Duration
	OutboundBuffer int
}

// ChatWebsocketHandler 可包含所有需要的 UseCase
type ChatWebsocketHandler struct {
	roomUC    *RoomUseCase
	messageUC *MessageUseCase
	relay     *presence.Relay
	settings  WebsocketSettings
}

// NewChatWebsocketHandler create ChatWebsocketHandler
func NewChatWebsocketHandler(
	roomUC *RoomUseCase,
	messageUC *MessageUseCase,
	relay *presence.Relay,
	settings WebsocketSettings,
) *ChatWebsocketHandler {
	if settings.PingInterval <= 0 {
		settings.PingInterval = 30 * time.Second
	}
	if settings.OutboundBuffer <= 0 {
		settings.OutboundBuffer = 128
	}
	return &ChatWebsocketHandler{
		roomUC:    roomUC,
		messageUC: messageUC,
		relay:     relay,
		settings:  settings,
	}
}

// HandleConnection 是 WebSocket 連線的進入點
func (h *ChatWebsocketHandler) HandleConnection(ctx context.Context, conn *websocket.Conn) {
	memberID, _ := conn.Locals(middlewares.TokenMemberID).(string)
	if memberID == "" {
		closeWebSocketConnection(conn, websocket.ClosePolicyViolation, "unauthenticated")
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	c := presence.NewConnection(uuid.New().String(), memberID, conn.Query("device"), conn, h.settings.OutboundBuffer)

	roomIDs, err := h.roomUC.ActiveRoomIDs(ctx, memberID)
	if err != nil {
		logger.Log.Error("load rooms for connection failed", zap.String("user_id", memberID), zap.Error(err))
		cancel()
		closeWebSocketConnection(conn, websocket.CloseInternalServerErr, "try again later")
		return
	}
	h.relay.Connect(ctx, c, roomIDs)
	logger.Log.Info("websocket connected",
		zap.String("user_id", memberID),
		zap.String("conn_id", c.ID),
		zap.Int("rooms", len(roomIDs)),
	)

	defer func() {
		cancel()
		// 最後一條連線的 typing 由 Typing.ClearWhenOffline 清除
		h.relay.Disconnect(c)
		logger.Log.Info("websocket close", zap.String("user_id", memberID), zap.String("conn_id", c.ID))
	}()

	//server發出ping之後client連線正常會回pong
	//fiber會自動處理回傳pong,故需要SetPongHandler另外接出
	conn.SetPongHandler(func(string) error {
		c.Touch(time.Now())
		return nil
	})

	// write pump 是唯一寫入 conn 的 goroutine
	go c.WritePump(ctx, h.settings.PingInterval)

	for {
		mt, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Log.Debug("connection closed", zap.String("conn_id", c.ID))
			} else {
				//直接斷線 1006
				logger.Log.Debug("websocket read error", zap.String("conn_id", c.ID), zap.Error(err))
			}
			return
		}
		c.Touch(time.Now())

		if mt != websocket.TextMessage {
			h.reply(c, domain.WSResponse{Action: "error", Error: "unsupported frame type", Code: string(errprocess.InvalidArgument)})
			continue
		}
		h.reply(c, h.dispatch(ctx, c, message))
	}
}

// dispatch run one request and build its response
func (h *ChatWebsocketHandler) dispatch(ctx context.Context, c *presence.Connection, msg []byte) domain.WSResponse {
	var req domain.WSRequest
	if err := json.Unmarshal(msg, &req); err != nil {
		return domain.WSResponse{Action: "error", Error: "invalid json", Code: string(errprocess.InvalidArgument)}
	}

	resp := domain.WSResponse{Action: req.Action, RequestID: req.RequestID, Payload: map[string]interface{}{}}
	var err error
	switch domain.Action(req.Action) {
	case domain.SendMessageAction:
		var m *domain.Message
		m, err = h.messageUC.Send(ctx, domain.SendMessage{
			RoomID:          req.RoomID,
			SenderID:        c.UserID,
			ClientMessageID: req.ClientMessageID,
			Content:         req.Content,
			Attachment:      req.Attachment,
			ReplyToID:       req.ReplyToID,
			OriginConnID:    c.ID,
		})
		if err == nil {
			resp.Payload["message"] = m
		}

	case domain.EditMessageAction:
		var m *domain.Message
		m, err = h.messageUC.Edit(ctx, req.MessageID, c.UserID, req.Content)
		if err == nil {
			resp.Payload["message"] = m
		}

	case domain.DeleteMessageAction:
		err = h.messageUC.Delete(ctx, req.MessageID, c.UserID)
		if err == nil {
			resp.Payload["message_id"] = req.MessageID
		}

	//讀取訊息  將未讀訊息改為已讀
	case domain.ReadMessageAction:
		var res *ReadResult
		res, err = h.messageUC.MarkRead(ctx, req.RoomID, c.UserID, messageIDs(req))
		if err == nil {
			resp.Payload["last_read_seq"] = res.LastReadSeq
			resp.Payload["unread_count"] = res.UnreadCount
		}

	case domain.AckAction:
		err = h.messageUC.MarkDelivered(ctx, req.RoomID, c.UserID, messageIDs(req))

	case domain.TypingAction:
		err = h.messageUC.SetTyping(ctx, req.RoomID, c.UserID, req.IsTyping)

	case domain.HeartbeatAction:
		h.relay.Heartbeat(ctx, c)
		resp.Payload["server_time"] = time.Now().UTC()

	//搜尋所有未讀訊息
	case domain.GetUnreadAction:
		var summary *UnreadSummary
		summary, err = h.messageUC.UnreadCount(ctx, c.UserID)
		if err == nil {
			resp.Payload["total"] = summary.Total
			resp.Payload["rooms"] = summary.Rooms
		}

	default:
		err = errprocess.Newf(errprocess.InvalidArgument, "unknown action %q", req.Action)
	}

	if err != nil {
		resp.Payload = nil
		resp.Error = err.Error()
		resp.Code = string(errprocess.KindOf(err))
		if errprocess.KindOf(err) == errprocess.Internal {
			logger.Log.Error("websocket err", zap.String("user_id", c.UserID), zap.String("action", req.Action), zap.Error(err))
		}
		return resp
	}
	resp.Success = true
	return resp
}

func messageIDs(req domain.WSRequest) []string {
	if len(req.MessageIDs) > 0 {
		return req.MessageIDs
	}
	if req.MessageID != "" {
		return []string{req.MessageID}
	}
	return nil
}

// reply queue a response on the connection
func (h *ChatWebsocketHandler) reply(c *presence.Connection, resp domain.WSResponse) {
	b, err := json.Marshal(resp)
	if err != nil {
		logger.Log.Error("marshal websocket response failed", zap.Error(err))
		return
	}
	if !c.Enqueue(b) {
		logger.Log.Debug("response dropped, connection closing", zap.String("conn_id", c.ID))
	}
}

func closeWebSocketConnection(conn *websocket.Conn, code int, reason string) {
	if err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason)); err != nil {
		logger.Log.Debug("failed to send close message", zap.Error(err))
	}
	conn.Close()
}
