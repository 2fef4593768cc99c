package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"chat_presence_service/internal/chat/domain"
	errprocess "chat_presence_service/pkg/err"
)

type memoryInvitationRepository struct {
	mu          sync.RWMutex
	links       map[string]domain.InviteLink
	invitations map[string]*domain.Invitation
}

// NewMemoryInvitationRepository create an in-memory InvitationRepository
func NewMemoryInvitationRepository() InvitationRepository {
	return &memoryInvitationRepository{
		links:       make(map[string]domain.InviteLink),
		invitations: make(map[string]*domain.Invitation),
	}
}

func (r *memoryInvitationRepository) CreateLink(ctx context.Context, link *domain.InviteLink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.links[link.Token]; ok {
		return errprocess.New(errprocess.Conflict, "invite link already exists")
	}
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now().UTC()
	}
	r.links[link.Token] = *link
	return nil
}

func (r *memoryInvitationRepository) FindLink(ctx context.Context, token string) (*domain.InviteLink, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	link, ok := r.links[token]
	if !ok {
		return nil, errprocess.New(errprocess.NotFound, "invite link not found")
	}
	return &link, nil
}

func (r *memoryInvitationRepository) CreateInvitation(ctx context.Context, inv *domain.Invitation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.invitations[inv.ID]; ok {
		return errprocess.New(errprocess.Conflict, "invitation already exists")
	}
	cp := *inv
	r.invitations[inv.ID] = &cp
	return nil
}

func (r *memoryInvitationRepository) FindInvitation(ctx context.Context, id string) (*domain.Invitation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inv, ok := r.invitations[id]
	if !ok {
		return nil, errprocess.New(errprocess.NotFound, "invitation not found")
	}
	cp := *inv
	return &cp, nil
}

func (r *memoryInvitationRepository) FindPendingInvitation(ctx context.Context, roomID, inviteeID string) (*domain.Invitation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, inv := range r.invitations {
		if inv.RoomID == roomID && inv.InviteeID == inviteeID && inv.Status == domain.InvitationPending {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, errprocess.New(errprocess.NotFound, "invitation not found")
}

func (r *memoryInvitationRepository) RespondInvitation(ctx context.Context, id string, status domain.InvitationStatus, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invitations[id]
	if !ok || inv.Status != domain.InvitationPending {
		return errprocess.New(errprocess.NotFound, "invitation not pending")
	}
	inv.Status = status
	inv.RespondedAt = &at
	return nil
}

func (r *memoryInvitationRepository) ListPendingInvitations(ctx context.Context, inviteeID string) ([]domain.Invitation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Invitation
	for _, inv := range r.invitations {
		if inv.InviteeID == inviteeID && inv.Status == domain.InvitationPending {
			out = append(out, *inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
