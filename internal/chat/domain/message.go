package domain

import "time"

// MessageType content kind
type MessageType string

const (
	// MessageText plain text
	MessageText MessageType = "text"
	// MessageImage image attachment
	MessageImage MessageType = "image"
	// MessageFile generic file attachment
	MessageFile MessageType = "file"
	// MessageVoice voice note
	MessageVoice MessageType = "voice"
	// MessageLocation shared location
	MessageLocation MessageType = "location"
	// MessageSystem join/leave notices, no sender
	MessageSystem MessageType = "system"
)

// Valid check type is known
func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageImage, MessageFile, MessageVoice, MessageLocation, MessageSystem:
		return true
	}
	return false
}

// DeliveryStatus aggregate state over all recipients
type DeliveryStatus string

const (
	// StatusSent persisted
	StatusSent DeliveryStatus = "sent"
	// StatusDelivered every recipient received it
	StatusDelivered DeliveryStatus = "delivered"
	// StatusRead every recipient read it
	StatusRead DeliveryStatus = "read"
)

// DeletedContent tombstone kept in place of deleted content
const DeletedContent = "[Message deleted]"

// MaxContentLength content limit in runes
const MaxContentLength = 4000

// Attachment file stored in object storage
type Attachment struct {
	ObjectKey string `bson:"object_key" json:"object_key"`
	URL       string `bson:"-" json:"url,omitempty"`
	Name      string `bson:"name" json:"name"`
	Size      int64  `bson:"size" json:"size"`
	MimeType  string `bson:"mime_type" json:"mime_type"`
}

// Message 表示一則聊天訊息
type Message struct {
	ID     string `bson:"_id" json:"id"`
	RoomID string `bson:"room_id" json:"room_id"`
	// Seq strictly increasing and gap free within a room
	Seq             int64          `bson:"seq" json:"seq"`
	SenderID        string         `bson:"sender_id,omitempty" json:"sender_id,omitempty"`
	ClientMessageID string         `bson:"client_message_id,omitempty" json:"client_message_id,omitempty"`
	Type            MessageType    `bson:"type" json:"type"`
	Content         string         `bson:"content" json:"content"`
	Attachment      *Attachment    `bson:"attachment,omitempty" json:"attachment,omitempty"`
	ReplyToID       string         `bson:"reply_to_id,omitempty" json:"reply_to_id,omitempty"`
	Edited          bool           `bson:"edited" json:"edited"`
	EditedAt        *time.Time     `bson:"edited_at,omitempty" json:"edited_at,omitempty"`
	Deleted         bool           `bson:"deleted" json:"deleted"`
	DeletedAt       *time.Time     `bson:"deleted_at,omitempty" json:"deleted_at,omitempty"`
	DeliveryStatus  DeliveryStatus `bson:"delivery_status" json:"delivery_status"`
	CreatedAt       time.Time      `bson:"created_at" json:"created_at"`
}

// ReadRecord per recipient delivery and read state
type ReadRecord struct {
	MessageID   string     `bson:"message_id" json:"message_id"`
	RoomID      string     `bson:"room_id" json:"room_id"`
	UserID      string     `bson:"user_id" json:"user_id"`
	Seq         int64      `bson:"seq" json:"seq"`
	Delivered   bool       `bson:"delivered" json:"delivered"`
	DeliveredAt *time.Time `bson:"delivered_at,omitempty" json:"delivered_at,omitempty"`
	ReadAt      *time.Time `bson:"read_at,omitempty" json:"read_at,omitempty"`
}

// RoomUnreadInfo definition unread by room
type RoomUnreadInfo struct {
	RoomID      string `json:"room_id"`
	UnreadCount int64  `json:"unread_count"`
}

// SendMessage input of a send
type SendMessage struct {
	RoomID          string
	SenderID        string
	ClientMessageID string
	Type            MessageType
	Content         string
	Attachment      *Attachment
	ReplyToID       string
	// OriginConnID connection the send arrived on, skipped during fan-out
	OriginConnID string
}

// Page offset pagination, Page starts at 0
type Page struct {
	Page int
	Size int
}

// Normalize clamp size to 1..100, default 20
func (p Page) Normalize() Page {
	if p.Page < 0 {
		p.Page = 0
	}
	if p.Size <= 0 {
		p.Size = 20
	}
	if p.Size > 100 {
		p.Size = 100
	}
	return p
}

// Offset rows to skip
func (p Page) Offset() int {
	return p.Page * p.Size
}

// AggregateStatus derive the message status from recipient records.
// recipients are the active participants other than the sender.
func AggregateStatus(recipients []string, records []ReadRecord) DeliveryStatus {
	if len(recipients) == 0 {
		return StatusSent
	}
	byUser := make(map[string]ReadRecord, len(records))
	for _, r := range records {
		byUser[r.UserID] = r
	}

	allRead, allDelivered := true, true
	for _, u := range recipients {
		r, ok := byUser[u]
		if !ok {
			return StatusSent
		}
		if r.ReadAt == nil {
			allRead = false
		}
		if !r.Delivered && r.ReadAt == nil {
			allDelivered = false
		}
	}
	switch {
	case allRead:
		return StatusRead
	case allDelivered:
		return StatusDelivered
	default:
		return StatusSent
	}
}
