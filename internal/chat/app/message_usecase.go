package app

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"chat_presence_service/internal/chat/domain"
	"chat_presence_service/internal/chat/ratelimit"
	"chat_presence_service/internal/chat/repository"
	"chat_presence_service/pkg/database"
	errprocess "chat_presence_service/pkg/err"
	"chat_presence_service/pkg/logger"
	"chat_presence_service/pkg/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MessageUseCase 負責處理聊天訊息
type MessageUseCase struct {
	rooms       repository.RoomRepository
	messages    repository.MessageRepository
	limiter     ratelimit.Limiter
	fanout      Fanout
	typing      TypingSignals
	push        PushNotifier
	events      EventPublisher
	attachments database.MinIOClientRepo
	urlExpiry   time.Duration
	now         func() time.Time
}

// NewMessageUseCase init message use case, attachments may be nil
func NewMessageUseCase(
	rooms repository.RoomRepository,
	messages repository.MessageRepository,
	limiter ratelimit.Limiter,
	fanout Fanout,
	typing TypingSignals,
	push PushNotifier,
	events EventPublisher,
	attachments database.MinIOClientRepo,
	urlExpiry time.Duration,
) *MessageUseCase {
	return &MessageUseCase{
		rooms:       rooms,
		messages:    messages,
		limiter:     limiter,
		fanout:      fanout,
		typing:      typing,
		push:        push,
		events:      events,
		attachments: attachments,
		urlExpiry:   urlExpiry,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// membership active room and active participant, Forbidden otherwise
func membership(ctx context.Context, rooms repository.RoomRepository, roomID, userID string) (*domain.Room, *domain.Participant, error) {
	room, err := rooms.FindByID(ctx, roomID)
	if err != nil {
		return nil, nil, err
	}
	p, err := rooms.FindParticipant(ctx, roomID, userID)
	if err != nil {
		if errprocess.IsKind(err, errprocess.NotFound) {
			return nil, nil, errprocess.New(errprocess.Forbidden, "not a participant of this room")
		}
		return nil, nil, err
	}
	if !domain.CanView(room, p) {
		return nil, nil, errprocess.New(errprocess.Forbidden, "not a participant of this room")
	}
	return room, p, nil
}

// CheckRoomAccess nil when userID may act in roomID
func (uc *MessageUseCase) CheckRoomAccess(ctx context.Context, roomID, userID string) error {
	_, _, err := membership(ctx, uc.rooms, roomID, userID)
	return err
}

// CheckMessageAccess nil when userID may act in the room of messageID
func (uc *MessageUseCase) CheckMessageAccess(ctx context.Context, messageID, userID string) error {
	msg, err := uc.messages.FindByID(ctx, messageID)
	if err != nil {
		return err
	}
	return uc.CheckRoomAccess(ctx, msg.RoomID, userID)
}

// Send persist a message and fan it out
func (uc *MessageUseCase) Send(ctx context.Context, in domain.SendMessage) (*domain.Message, error) {
	// 1. 檢查是否為房間成員
	room, sender, err := membership(ctx, uc.rooms, in.RoomID, in.SenderID)
	if err != nil {
		return nil, err
	}
	if !domain.CanSend(room, sender) {
		return nil, errprocess.New(errprocess.Forbidden, "cannot send to this room")
	}

	// 2. 內容檢查
	msgType, err := resolveMessageType(in)
	if err != nil {
		return nil, err
	}
	if in.Attachment != nil && !strings.HasPrefix(in.Attachment.ObjectKey, attachmentPrefix(in.RoomID)) {
		return nil, errprocess.New(errprocess.InvalidArgument, "attachment does not belong to this room")
	}

	// 3. 限流
	allowed, err := uc.limiter.TryConsume(ctx, in.SenderID, in.RoomID)
	if err != nil {
		return nil, errprocess.Wrap(errprocess.Internal, "rate limiter unavailable", err)
	}
	if !allowed {
		metrics.RateLimitRejections.Inc()
		return nil, errprocess.New(errprocess.RateLimited, "too many messages, slow down")
	}

	if in.ReplyToID != "" {
		parent, err := uc.messages.FindByID(ctx, in.ReplyToID)
		if err != nil && !errprocess.IsKind(err, errprocess.NotFound) {
			return nil, err
		}
		if parent == nil || parent.RoomID != in.RoomID {
			return nil, errprocess.New(errprocess.InvalidArgument, "reply target is not in this room")
		}
	}

	// 4/5. 寫入，重送同一個 client message id 直接回傳原訊息
	now := uc.now()
	msg := &domain.Message{
		ID:              uuid.New().String(),
		RoomID:          in.RoomID,
		SenderID:        in.SenderID,
		ClientMessageID: in.ClientMessageID,
		Type:            msgType,
		Content:         in.Content,
		Attachment:      in.Attachment,
		ReplyToID:       in.ReplyToID,
		DeliveryStatus:  domain.StatusSent,
		CreatedAt:       now,
	}
	stored, created, err := uc.messages.Insert(ctx, msg)
	if err != nil {
		return nil, err
	}
	uc.withURLs(ctx, stored)
	if !created {
		logger.Log.Debug("duplicate send returned original",
			zap.String("room_id", in.RoomID),
			zap.String("client_message_id", in.ClientMessageID),
		)
		return stored, nil
	}
	metrics.MessagesSent.WithLabelValues(string(stored.Type)).Inc()
	uc.touch(ctx, in.RoomID, in.SenderID, now)

	// 6. 推播給所有在線連線，發送的那條連線除外
	var exclude []string
	if in.OriginConnID != "" {
		exclude = append(exclude, in.OriginConnID)
	}
	uc.fanout.BroadcastRoom(ctx, in.RoomID, domain.NewEvent(domain.EventMessageCreated, in.RoomID, stored), exclude...)

	// 7. 離線的人送 push
	participants, err := uc.rooms.ListParticipants(ctx, in.RoomID, true)
	if err != nil {
		logger.Log.Warn("list participants for push failed", zap.String("room_id", in.RoomID), zap.Error(err))
	}
	for _, p := range participants {
		if p.UserID == in.SenderID || uc.fanout.IsOnline(ctx, p.UserID) {
			continue
		}
		notifyOffline(ctx, uc.push, PushNotification{
			UserID:    p.UserID,
			RoomID:    in.RoomID,
			MessageID: stored.ID,
			SenderID:  in.SenderID,
			Type:      stored.Type,
			Preview:   preview(stored),
			SentAt:    now,
		})
	}

	// 8. 給搜尋索引的事件
	publishEvent(ctx, uc.events, MessageCreatedEvent, stored)
	return stored, nil
}

// postSystem append a system notice, no rate limit and no push
func (uc *MessageUseCase) postSystem(ctx context.Context, roomID, content string) {
	msg := &domain.Message{
		ID:             uuid.New().String(),
		RoomID:         roomID,
		Type:           domain.MessageSystem,
		Content:        content,
		DeliveryStatus: domain.StatusSent,
		CreatedAt:      uc.now(),
	}
	stored, _, err := uc.messages.Insert(ctx, msg)
	if err != nil {
		logger.Log.Warn("system message failed", zap.String("room_id", roomID), zap.Error(err))
		return
	}
	metrics.MessagesSent.WithLabelValues(string(domain.MessageSystem)).Inc()
	uc.fanout.BroadcastRoom(ctx, roomID, domain.NewEvent(domain.EventMessageCreated, roomID, stored))
}

func resolveMessageType(in domain.SendMessage) (domain.MessageType, error) {
	hasContent := strings.TrimSpace(in.Content) != ""
	hasAttachment := in.Attachment != nil && in.Attachment.ObjectKey != ""
	if hasContent == hasAttachment {
		return "", errprocess.New(errprocess.InvalidArgument, "exactly one of content or attachment is required")
	}
	if utf8.RuneCountInString(in.Content) > domain.MaxContentLength {
		return "", errprocess.Newf(errprocess.InvalidArgument, "content longer than %d characters", domain.MaxContentLength)
	}

	t := in.Type
	if t == "" {
		switch {
		case hasContent:
			t = domain.MessageText
		case strings.HasPrefix(in.Attachment.MimeType, "image/"):
			t = domain.MessageImage
		case strings.HasPrefix(in.Attachment.MimeType, "audio/"):
			t = domain.MessageVoice
		default:
			t = domain.MessageFile
		}
	}
	if !t.Valid() || t == domain.MessageSystem {
		return "", errprocess.Newf(errprocess.InvalidArgument, "unsupported message type %q", t)
	}
	return t, nil
}

func preview(m *domain.Message) string {
	if m.Attachment != nil {
		return "[" + string(m.Type) + "] " + m.Attachment.Name
	}
	r := []rune(m.Content)
	if len(r) > 100 {
		return string(r[:100]) + "…"
	}
	return m.Content
}

func (uc *MessageUseCase) touch(ctx context.Context, roomID, userID string, at time.Time) {
	if err := uc.rooms.TouchRoom(ctx, roomID, at); err != nil {
		logger.Log.Warn("touch room failed", zap.String("room_id", roomID), zap.Error(err))
	}
	if err := uc.rooms.TouchParticipant(ctx, roomID, userID, at); err != nil {
		logger.Log.Warn("touch participant failed", zap.String("room_id", roomID), zap.Error(err))
	}
}

// Edit replace the content of the editor's own message
func (uc *MessageUseCase) Edit(ctx context.Context, messageID, editorID, newContent string) (*domain.Message, error) {
	msg, err := uc.messages.FindByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if _, _, err := membership(ctx, uc.rooms, msg.RoomID, editorID); err != nil {
		return nil, err
	}
	if !domain.CanEdit(msg, editorID) {
		return nil, errprocess.New(errprocess.Forbidden, "only the sender can edit this message")
	}
	if msg.Attachment != nil {
		return nil, errprocess.New(errprocess.InvalidArgument, "attachment messages cannot be edited")
	}
	if strings.TrimSpace(newContent) == "" {
		return nil, errprocess.New(errprocess.InvalidArgument, "content is required")
	}
	if utf8.RuneCountInString(newContent) > domain.MaxContentLength {
		return nil, errprocess.Newf(errprocess.InvalidArgument, "content longer than %d characters", domain.MaxContentLength)
	}

	now := uc.now()
	msg.Content = newContent
	msg.Edited = true
	msg.EditedAt = &now
	if err := uc.messages.Update(ctx, msg); err != nil {
		return nil, err
	}

	uc.fanout.BroadcastRoom(ctx, msg.RoomID, domain.NewEvent(domain.EventMessageEdited, msg.RoomID, msg))
	publishEvent(ctx, uc.events, MessageEditedEvent, msg)
	return msg, nil
}

// Delete soft delete, the tombstone keeps the message's place in the room
func (uc *MessageUseCase) Delete(ctx context.Context, messageID, actorID string) error {
	msg, err := uc.messages.FindByID(ctx, messageID)
	if err != nil {
		return err
	}
	_, actor, err := membership(ctx, uc.rooms, msg.RoomID, actorID)
	if err != nil {
		return err
	}
	if !domain.CanDelete(msg, actorID, actor) {
		return errprocess.New(errprocess.Forbidden, "only the sender or a room admin can delete this message")
	}
	if msg.Deleted {
		return nil
	}

	now := uc.now()
	msg.Content = domain.DeletedContent
	msg.Attachment = nil
	msg.Deleted = true
	msg.DeletedAt = &now
	if err := uc.messages.Update(ctx, msg); err != nil {
		return err
	}

	uc.fanout.BroadcastRoom(ctx, msg.RoomID, domain.NewEvent(domain.EventMessageDeleted, msg.RoomID, map[string]interface{}{
		"message_id": msg.ID,
		"seq":        msg.Seq,
	}))
	publishEvent(ctx, uc.events, MessageDeletedEvent, msg)
	return nil
}

// ReadResult outcome of MarkRead
type ReadResult struct {
	RoomID      string `json:"room_id"`
	LastReadSeq int64  `json:"last_read_seq"`
	UnreadCount int64  `json:"unread_count"`
}

// MarkRead advance the reader's watermark to the highest of messageIDs, never backwards
func (uc *MessageUseCase) MarkRead(ctx context.Context, roomID, readerID string, messageIDs []string) (*ReadResult, error) {
	if _, _, err := membership(ctx, uc.rooms, roomID, readerID); err != nil {
		return nil, err
	}
	if len(messageIDs) == 0 {
		return nil, errprocess.New(errprocess.InvalidArgument, "message ids are required")
	}
	msgs, err := uc.messages.FindInRoom(ctx, roomID, messageIDs)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, errprocess.New(errprocess.NotFound, "no such messages in this room")
	}

	var maxSeq int64
	for _, m := range msgs {
		if m.Seq > maxSeq {
			maxSeq = m.Seq
		}
	}
	watermark, err := uc.rooms.AdvanceWatermark(ctx, roomID, readerID, maxSeq)
	if err != nil {
		return nil, err
	}

	now := uc.now()
	received := othersMessages(msgs, readerID)
	if err := uc.messages.UpsertReadRecords(ctx, readerID, received, true, now); err != nil {
		return nil, err
	}
	uc.refreshStatus(ctx, roomID, received)
	uc.touch(ctx, roomID, readerID, now)

	unread, err := uc.messages.CountUnread(ctx, roomID, readerID, watermark)
	if err != nil {
		return nil, err
	}

	uc.fanout.BroadcastRoom(ctx, roomID, domain.NewEvent(domain.EventReadReceipt, roomID, domain.ReadReceipt{
		UserID:      readerID,
		LastReadSeq: watermark,
	}))
	uc.fanout.SendToUser(ctx, readerID, domain.NewEvent(domain.EventUnreadCount, roomID, domain.RoomUnreadInfo{
		RoomID:      roomID,
		UnreadCount: unread,
	}))
	return &ReadResult{RoomID: roomID, LastReadSeq: watermark, UnreadCount: unread}, nil
}

// MarkDelivered record that the user's device received messageIDs
func (uc *MessageUseCase) MarkDelivered(ctx context.Context, roomID, userID string, messageIDs []string) error {
	if _, _, err := membership(ctx, uc.rooms, roomID, userID); err != nil {
		return err
	}
	if len(messageIDs) == 0 {
		return errprocess.New(errprocess.InvalidArgument, "message ids are required")
	}
	msgs, err := uc.messages.FindInRoom(ctx, roomID, messageIDs)
	if err != nil {
		return err
	}
	received := othersMessages(msgs, userID)
	if err := uc.messages.UpsertReadRecords(ctx, userID, received, false, uc.now()); err != nil {
		return err
	}
	uc.refreshStatus(ctx, roomID, received)
	return nil
}

func othersMessages(msgs []domain.Message, userID string) []domain.Message {
	out := make([]domain.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.SenderID != userID && m.Type != domain.MessageSystem {
			out = append(out, m)
		}
	}
	return out
}

// refreshStatus recompute the aggregate delivery status cache of msgs
func (uc *MessageUseCase) refreshStatus(ctx context.Context, roomID string, msgs []domain.Message) {
	if len(msgs) == 0 {
		return
	}
	participants, err := uc.rooms.ListParticipants(ctx, roomID, true)
	if err != nil {
		logger.Log.Warn("refresh status: list participants failed", zap.String("room_id", roomID), zap.Error(err))
		return
	}
	for _, m := range msgs {
		recipients := make([]string, 0, len(participants))
		for _, p := range participants {
			if p.UserID != m.SenderID {
				recipients = append(recipients, p.UserID)
			}
		}
		records, err := uc.messages.RecordsFor(ctx, m.ID)
		if err != nil {
			logger.Log.Warn("refresh status: records failed", zap.String("message_id", m.ID), zap.Error(err))
			continue
		}
		status := domain.AggregateStatus(recipients, records)
		if status == m.DeliveryStatus {
			continue
		}
		if err := uc.messages.SetDeliveryStatus(ctx, m.ID, status); err != nil {
			logger.Log.Warn("refresh status: update failed", zap.String("message_id", m.ID), zap.Error(err))
		}
	}
}

// History newest first
func (uc *MessageUseCase) History(ctx context.Context, roomID, userID string, page domain.Page) ([]domain.Message, error) {
	if _, _, err := membership(ctx, uc.rooms, roomID, userID); err != nil {
		return nil, err
	}
	msgs, err := uc.messages.ListByRoom(ctx, roomID, page)
	if err != nil {
		return nil, err
	}
	for i := range msgs {
		if msgs[i].Deleted {
			msgs[i].Content = domain.DeletedContent
			msgs[i].Attachment = nil
		}
		uc.withURLs(ctx, &msgs[i])
	}
	return msgs, nil
}

// SearchInRoom case-insensitive substring search in one room
func (uc *MessageUseCase) SearchInRoom(ctx context.Context, roomID, userID, query string, page domain.Page) ([]domain.Message, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errprocess.New(errprocess.InvalidArgument, "query is required")
	}
	if _, _, err := membership(ctx, uc.rooms, roomID, userID); err != nil {
		return nil, err
	}
	return uc.messages.Search(ctx, []string{roomID}, query, page)
}

// SearchGlobal search every room the user is an active participant of
func (uc *MessageUseCase) SearchGlobal(ctx context.Context, userID, query string, page domain.Page) ([]domain.Message, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errprocess.New(errprocess.InvalidArgument, "query is required")
	}
	memberships, err := uc.rooms.ListActiveMemberships(ctx, userID)
	if err != nil {
		return nil, err
	}
	roomIDs := make([]string, len(memberships))
	for i, p := range memberships {
		roomIDs[i] = p.RoomID
	}
	return uc.messages.Search(ctx, roomIDs, query, page)
}

// UnreadSummary unread counts by room and in total
type UnreadSummary struct {
	Total int64                   `json:"total"`
	Rooms []domain.RoomUnreadInfo `json:"rooms"`
}

// UnreadCount messages after each watermark not sent by the user
func (uc *MessageUseCase) UnreadCount(ctx context.Context, userID string) (*UnreadSummary, error) {
	memberships, err := uc.rooms.ListActiveMemberships(ctx, userID)
	if err != nil {
		return nil, err
	}
	summary := &UnreadSummary{Rooms: make([]domain.RoomUnreadInfo, 0, len(memberships))}
	for _, p := range memberships {
		n, err := uc.messages.CountUnread(ctx, p.RoomID, userID, p.LastReadSeq)
		if err != nil {
			return nil, err
		}
		summary.Rooms = append(summary.Rooms, domain.RoomUnreadInfo{RoomID: p.RoomID, UnreadCount: n})
		summary.Total += n
	}
	return summary, nil
}

// SetTyping announce typing to the room, the actor's own devices are skipped
func (uc *MessageUseCase) SetTyping(ctx context.Context, roomID, userID string, isTyping bool) error {
	if _, _, err := membership(ctx, uc.rooms, roomID, userID); err != nil {
		return err
	}
	uc.typing.SetTyping(ctx, roomID, userID, isTyping)
	return nil
}

// AttachmentUpload presigned upload target for an attachment
type AttachmentUpload struct {
	ObjectKey string    `json:"object_key"`
	UploadURL string    `json:"upload_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

func attachmentPrefix(roomID string) string {
	return "rooms/" + roomID + "/"
}

// AttachmentUploadURL presign a PUT the client uses before sending the attachment message
func (uc *MessageUseCase) AttachmentUploadURL(ctx context.Context, roomID, userID, fileName string) (*AttachmentUpload, error) {
	if _, _, err := membership(ctx, uc.rooms, roomID, userID); err != nil {
		return nil, err
	}
	if uc.attachments == nil {
		return nil, errprocess.New(errprocess.Internal, "attachments are not configured")
	}
	name := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if name == "." || name == "/" || name == "" || len(name) > 200 {
		return nil, errprocess.New(errprocess.InvalidArgument, "invalid file name")
	}

	key := fmt.Sprintf("%s%s/%s", attachmentPrefix(roomID), uuid.New().String(), name)
	url, err := uc.attachments.PresignPutURL(ctx, key, uc.urlExpiry)
	if err != nil {
		return nil, errprocess.Wrap(errprocess.Internal, "presign upload", err)
	}
	return &AttachmentUpload{ObjectKey: key, UploadURL: url, ExpiresAt: uc.now().Add(uc.urlExpiry)}, nil
}

// withURLs fill the download url of an attachment
func (uc *MessageUseCase) withURLs(ctx context.Context, m *domain.Message) {
	if m.Attachment == nil || uc.attachments == nil {
		return
	}
	url, err := uc.attachments.PresignGetURL(ctx, m.Attachment.ObjectKey, uc.urlExpiry)
	if err != nil {
		logger.Log.Warn("presign attachment failed", zap.String("object_key", m.Attachment.ObjectKey), zap.Error(err))
		return
	}
	m.Attachment.URL = url
}
