package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"chat_presence_service/internal/chat/domain"
	errprocess "chat_presence_service/pkg/err"
)

type memoryRoomLog struct {
	mu       sync.Mutex
	messages []*domain.Message // index i holds seq i+1
}

type memoryMessageRepository struct {
	mu       sync.RWMutex
	rooms    map[string]*memoryRoomLog
	byID     map[string]*domain.Message
	byClient map[string]*domain.Message // sender + "\x00" + client id
	reads    map[string]map[string]*domain.ReadRecord
}

// NewMemoryMessageRepository create an in-memory MessageRepository.
// each room has its own lock so seq assignment never interleaves within a room.
func NewMemoryMessageRepository() MessageRepository {
	return &memoryMessageRepository{
		rooms:    make(map[string]*memoryRoomLog),
		byID:     make(map[string]*domain.Message),
		byClient: make(map[string]*domain.Message),
		reads:    make(map[string]map[string]*domain.ReadRecord),
	}
}

func (r *memoryMessageRepository) EnsureIndexes(ctx context.Context) error { return nil }

func (r *memoryMessageRepository) roomLog(roomID string) *memoryRoomLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.rooms[roomID]
	if !ok {
		l = &memoryRoomLog{}
		r.rooms[roomID] = l
	}
	return l
}

func (r *memoryMessageRepository) Insert(ctx context.Context, msg *domain.Message) (*domain.Message, bool, error) {
	l := r.roomLog(msg.RoomID)
	l.mu.Lock()
	defer l.mu.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	clientKey := msg.SenderID + "\x00" + msg.ClientMessageID
	if msg.ClientMessageID != "" {
		if existing, ok := r.byClient[clientKey]; ok {
			cp := *existing
			return &cp, false, nil
		}
	}
	if _, ok := r.byID[msg.ID]; ok {
		return nil, false, errprocess.New(errprocess.Conflict, "message already exists")
	}

	stored := *msg
	stored.Seq = int64(len(l.messages)) + 1
	l.messages = append(l.messages, &stored)
	r.byID[stored.ID] = &stored
	if msg.ClientMessageID != "" {
		r.byClient[clientKey] = &stored
	}
	msg.Seq = stored.Seq
	cp := stored
	return &cp, true, nil
}

func (r *memoryMessageRepository) FindByID(ctx context.Context, id string) (*domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byID[id]
	if !ok {
		return nil, errprocess.New(errprocess.NotFound, "message not found")
	}
	cp := *m
	return &cp, nil
}

func (r *memoryMessageRepository) Update(ctx context.Context, msg *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[msg.ID]
	if !ok {
		return errprocess.New(errprocess.NotFound, "message not found")
	}
	m.Content = msg.Content
	m.Edited = msg.Edited
	m.EditedAt = msg.EditedAt
	m.Deleted = msg.Deleted
	m.DeletedAt = msg.DeletedAt
	m.Attachment = msg.Attachment
	return nil
}

func (r *memoryMessageRepository) snapshot(roomID string) []domain.Message {
	r.mu.RLock()
	l, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Message, len(l.messages))
	for i, m := range l.messages {
		out[i] = *m
	}
	return out
}

func (r *memoryMessageRepository) ListByRoom(ctx context.Context, roomID string, page domain.Page) ([]domain.Message, error) {
	page = page.Normalize()
	all := r.snapshot(roomID)
	out := []domain.Message{}
	for i := len(all) - 1 - page.Offset(); i >= 0 && len(out) < page.Size; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

func (r *memoryMessageRepository) Search(ctx context.Context, roomIDs []string, query string, page domain.Page) ([]domain.Message, error) {
	page = page.Normalize()
	needle := strings.ToLower(query)
	var hits []domain.Message
	for _, roomID := range roomIDs {
		for _, m := range r.snapshot(roomID) {
			if !m.Deleted && strings.Contains(strings.ToLower(m.Content), needle) {
				hits = append(hits, m)
			}
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].CreatedAt.After(hits[j].CreatedAt) })

	start := page.Offset()
	if start >= len(hits) {
		return []domain.Message{}, nil
	}
	end := start + page.Size
	if end > len(hits) {
		end = len(hits)
	}
	return hits[start:end], nil
}

func (r *memoryMessageRepository) FindInRoom(ctx context.Context, roomID string, ids []string) ([]domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []domain.Message{}
	for _, id := range ids {
		if m, ok := r.byID[id]; ok && m.RoomID == roomID {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (r *memoryMessageRepository) LatestSeq(ctx context.Context, roomID string) (int64, error) {
	r.mu.RLock()
	l, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if !ok {
		return 0, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return int64(len(l.messages)), nil
}

func (r *memoryMessageRepository) CountUnread(ctx context.Context, roomID, userID string, afterSeq int64) (int64, error) {
	var n int64
	for _, m := range r.snapshot(roomID) {
		if m.Seq > afterSeq && !m.Deleted && m.SenderID != userID {
			n++
		}
	}
	return n, nil
}

func (r *memoryMessageRepository) UpsertReadRecords(ctx context.Context, userID string, msgs []domain.Message, read bool, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		records, ok := r.reads[m.ID]
		if !ok {
			records = make(map[string]*domain.ReadRecord)
			r.reads[m.ID] = records
		}
		rec, ok := records[userID]
		if !ok {
			deliveredAt := at
			rec = &domain.ReadRecord{MessageID: m.ID, RoomID: m.RoomID, UserID: userID, Seq: m.Seq, DeliveredAt: &deliveredAt}
			records[userID] = rec
		}
		rec.Delivered = true
		if read {
			readAt := at
			rec.ReadAt = &readAt
		}
	}
	return nil
}

func (r *memoryMessageRepository) RecordsFor(ctx context.Context, messageID string) ([]domain.ReadRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ReadRecord, 0, len(r.reads[messageID]))
	for _, rec := range r.reads[messageID] {
		out = append(out, *rec)
	}
	return out, nil
}

func (r *memoryMessageRepository) SetDeliveryStatus(ctx context.Context, messageID string, status domain.DeliveryStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.byID[messageID]; ok {
		m.DeliveryStatus = status
	}
	return nil
}
