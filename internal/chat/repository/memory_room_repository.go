package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"chat_presence_service/internal/chat/domain"
	errprocess "chat_presence_service/pkg/err"
)

// memoryRoomRepository process local RoomRepository for local runs and tests
type memoryRoomRepository struct {
	mu           sync.RWMutex
	rooms        map[string]*domain.Room
	pairs        map[string]string
	inquiries    map[string]string
	participants map[string]map[string]*domain.Participant // room -> user -> participant
	nextID       uint
}

// NewMemoryRoomRepository create an in-memory RoomRepository
func NewMemoryRoomRepository() RoomRepository {
	return &memoryRoomRepository{
		rooms:        make(map[string]*domain.Room),
		pairs:        make(map[string]string),
		inquiries:    make(map[string]string),
		participants: make(map[string]map[string]*domain.Participant),
	}
}

func (r *memoryRoomRepository) AutoMigrate() error { return nil }

func (r *memoryRoomRepository) CreateRoom(ctx context.Context, room *domain.Room, participants []*domain.Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rooms[room.ID]; ok {
		return errprocess.New(errprocess.Conflict, "room already exists")
	}
	if room.PairKey != nil {
		if _, ok := r.pairs[*room.PairKey]; ok {
			return errprocess.New(errprocess.Conflict, "room already exists")
		}
	}
	if room.InquiryKey != nil {
		if _, ok := r.inquiries[*room.InquiryKey]; ok {
			return errprocess.New(errprocess.Conflict, "room already exists")
		}
	}

	cp := *room
	r.rooms[room.ID] = &cp
	if room.PairKey != nil {
		r.pairs[*room.PairKey] = room.ID
	}
	if room.InquiryKey != nil {
		r.inquiries[*room.InquiryKey] = room.ID
	}
	members := make(map[string]*domain.Participant, len(participants))
	for _, p := range participants {
		r.nextID++
		p.ID = r.nextID
		p.RoomID = room.ID
		pc := *p
		members[p.UserID] = &pc
	}
	r.participants[room.ID] = members
	return nil
}

func (r *memoryRoomRepository) FindByID(ctx context.Context, roomID string) (*domain.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return nil, errprocess.New(errprocess.NotFound, "room not found")
	}
	cp := *room
	return &cp, nil
}

func (r *memoryRoomRepository) FindByPairKey(ctx context.Context, pairKey string) (*domain.Room, error) {
	r.mu.RLock()
	id, ok := r.pairs[pairKey]
	r.mu.RUnlock()
	if !ok {
		return nil, errprocess.New(errprocess.NotFound, "room not found")
	}
	return r.FindByID(ctx, id)
}

func (r *memoryRoomRepository) FindByInquiryKey(ctx context.Context, inquiryKey string) (*domain.Room, error) {
	r.mu.RLock()
	id, ok := r.inquiries[inquiryKey]
	r.mu.RUnlock()
	if !ok {
		return nil, errprocess.New(errprocess.NotFound, "room not found")
	}
	return r.FindByID(ctx, id)
}

func (r *memoryRoomRepository) UpdateRoom(ctx context.Context, room *domain.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[room.ID]; !ok {
		return errprocess.New(errprocess.NotFound, "room not found")
	}
	cp := *room
	cp.UpdatedAt = time.Now()
	r.rooms[room.ID] = &cp
	return nil
}

func (r *memoryRoomRepository) TouchRoom(ctx context.Context, roomID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return errprocess.New(errprocess.NotFound, "room not found")
	}
	if room.LastActivityAt.Before(at) {
		room.LastActivityAt = at
	}
	return nil
}

func (r *memoryRoomRepository) FindParticipant(ctx context.Context, roomID, userID string) (*domain.Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.participants[roomID][userID]
	if !ok {
		return nil, errprocess.New(errprocess.NotFound, "participant not found")
	}
	cp := *p
	return &cp, nil
}

func (r *memoryRoomRepository) ListParticipants(ctx context.Context, roomID string, activeOnly bool) ([]domain.Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Participant, 0, len(r.participants[roomID]))
	for _, p := range r.participants[roomID] {
		if activeOnly && !p.Active {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryRoomRepository) AddParticipants(ctx context.Context, roomID string, participants []*domain.Participant) ([]domain.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return nil, errprocess.New(errprocess.NotFound, "room not found")
	}
	members := r.participants[roomID]
	active := int64(0)
	for _, p := range members {
		if p.Active {
			active++
		}
	}

	// 先檢查上限，整批成功或整批失敗
	var pending []*domain.Participant
	for _, p := range participants {
		if existing, ok := members[p.UserID]; ok && existing.Active {
			continue
		}
		pending = append(pending, p)
	}
	if room.MaxParticipants != nil && active+int64(len(pending)) > int64(*room.MaxParticipants) {
		return nil, errprocess.New(errprocess.Conflict, "participant limit reached")
	}

	added := make([]domain.Participant, 0, len(pending))
	for _, p := range pending {
		if existing, ok := members[p.UserID]; ok {
			existing.Active = true
			existing.Role = p.Role
			existing.JoinedAt = p.JoinedAt
			existing.LeftAt = nil
			existing.LastActivityAt = p.JoinedAt
			added = append(added, *existing)
			continue
		}
		r.nextID++
		p.ID = r.nextID
		p.RoomID = roomID
		pc := *p
		members[p.UserID] = &pc
		added = append(added, pc)
	}
	return added, nil
}

func (r *memoryRoomRepository) DeactivateParticipant(ctx context.Context, roomID, userID string, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[roomID][userID]
	if !ok || !p.Active {
		return 0, errprocess.New(errprocess.NotFound, "participant not found")
	}
	p.Active = false
	p.LeftAt = &at

	var remaining int64
	for _, other := range r.participants[roomID] {
		if other.Active {
			remaining++
		}
	}
	if remaining == 0 {
		r.rooms[roomID].Active = false
	}
	return remaining, nil
}

func (r *memoryRoomRepository) ReactivateRoom(ctx context.Context, roomID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return errprocess.New(errprocess.NotFound, "room not found")
	}
	room.Active = true
	room.LastActivityAt = at
	for _, p := range r.participants[roomID] {
		p.Active = true
		p.LeftAt = nil
	}
	return nil
}

func (r *memoryRoomRepository) UpdateParticipantRole(ctx context.Context, roomID, userID string, role domain.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[roomID][userID]
	if !ok || !p.Active {
		return errprocess.New(errprocess.NotFound, "participant not found")
	}
	p.Role = role
	return nil
}

func (r *memoryRoomRepository) AdvanceWatermark(ctx context.Context, roomID, userID string, seq int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[roomID][userID]
	if !ok {
		return 0, errprocess.New(errprocess.NotFound, "participant not found")
	}
	if seq > p.LastReadSeq {
		p.LastReadSeq = seq
	}
	return p.LastReadSeq, nil
}

func (r *memoryRoomRepository) TouchParticipant(ctx context.Context, roomID, userID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.participants[roomID][userID]; ok {
		p.LastActivityAt = at
	}
	return nil
}

func (r *memoryRoomRepository) ListUserRooms(ctx context.Context, userID string, page domain.Page) ([]domain.RoomSummary, error) {
	page = page.Normalize()
	r.mu.RLock()
	defer r.mu.RUnlock()

	var all []domain.RoomSummary
	for roomID, members := range r.participants {
		p, ok := members[userID]
		room := r.rooms[roomID]
		if !ok || !p.Active || !room.Active {
			continue
		}
		rc, pc := *room, *p
		all = append(all, domain.RoomSummary{Room: &rc, Participant: &pc})
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].Room.LastActivityAt.After(all[j].Room.LastActivityAt)
	})

	start := page.Offset()
	if start >= len(all) {
		return []domain.RoomSummary{}, nil
	}
	end := start + page.Size
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], nil
}

func (r *memoryRoomRepository) ListActiveMemberships(ctx context.Context, userID string) ([]domain.Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Participant
	for roomID, members := range r.participants {
		if p, ok := members[userID]; ok && p.Active && r.rooms[roomID].Active {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *memoryRoomRepository) ListOwnerInquiries(ctx context.Context, ownerID string, status *domain.InquiryStatus) ([]domain.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Room
	for roomID, room := range r.rooms {
		if room.Type != domain.RoomTypeItemInquiry {
			continue
		}
		p, ok := r.participants[roomID][ownerID]
		if !ok || p.Role != domain.RoleAdmin {
			continue
		}
		if status != nil && (room.InquiryStatus == nil || *room.InquiryStatus != *status) {
			continue
		}
		out = append(out, *room)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActivityAt.After(out[j].LastActivityAt) })
	return out, nil
}
