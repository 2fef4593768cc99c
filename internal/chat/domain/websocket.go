package domain

import "time"

// Action websocket request action
type Action string

const (
	// SendMessageAction websocket action send_message
	SendMessageAction Action = "send_message"
	// EditMessageAction websocket action edit_message
	EditMessageAction Action = "edit_message"
	// DeleteMessageAction websocket action delete_message
	DeleteMessageAction Action = "delete_message"
	// ReadMessageAction websocket action read_message
	ReadMessageAction Action = "read_message"
	// AckAction websocket action ack, marks messages delivered
	AckAction Action = "ack"
	// TypingAction websocket action typing
	TypingAction Action = "typing"
	// HeartbeatAction websocket action heartbeat
	HeartbeatAction Action = "heartbeat"
	// GetUnreadAction websocket action get_unread
	GetUnreadAction Action = "get_unread"
)

// EventType server pushed event
type EventType string

const (
	EventMessageCreated EventType = "message-created"
	EventMessageEdited  EventType = "message-edited"
	EventMessageDeleted EventType = "message-deleted"
	EventTypingStarted  EventType = "typing-started"
	EventTypingStopped  EventType = "typing-stopped"
	EventReadReceipt    EventType = "read-receipt"
	EventUnreadCount    EventType = "unread-count"
)

// Event pushed to live connections
type Event struct {
	Type    EventType   `json:"type"`
	RoomID  string      `json:"room_id,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
	At      time.Time   `json:"at"`
}

// NewEvent stamp an event with the current time
func NewEvent(t EventType, roomID string, payload interface{}) Event {
	return Event{Type: t, RoomID: roomID, Payload: payload, At: time.Now().UTC()}
}

// ReadReceipt payload of EventReadReceipt
type ReadReceipt struct {
	UserID      string `json:"user_id"`
	LastReadSeq int64  `json:"last_read_seq"`
}

// TypingPayload payload of typing events
type TypingPayload struct {
	UserID string `json:"user_id"`
}

// WSRequest websocket Request
type WSRequest struct {
	Action          string      `json:"action"`
	RequestID       string      `json:"request_id,omitempty"`
	RoomID          string      `json:"room_id"`
	MessageID       string      `json:"message_id"`
	MessageIDs      []string    `json:"message_ids"`
	ClientMessageID string      `json:"client_message_id"`
	Content         string      `json:"content"`
	Attachment      *Attachment `json:"attachment,omitempty"`
	ReplyToID       string      `json:"reply_to_id"`
	IsTyping        bool        `json:"is_typing"`
}

// WSResponse websocket Response
type WSResponse struct {
	Action    string                 `json:"action"`
	RequestID string                 `json:"request_id,omitempty"`
	Success   bool                   `json:"success"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Code      string                 `json:"code,omitempty"`
}
