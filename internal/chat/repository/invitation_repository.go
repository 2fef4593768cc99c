package repository

import (
	"context"
	"time"

	"chat_presence_service/internal/chat/domain"
	errprocess "chat_presence_service/pkg/err"

	"gorm.io/gorm"
)

// InvitationRepository invite links and direct group invitations
type InvitationRepository interface {
	CreateLink(ctx context.Context, link *domain.InviteLink) error
	FindLink(ctx context.Context, token string) (*domain.InviteLink, error)

	CreateInvitation(ctx context.Context, inv *domain.Invitation) error
	FindInvitation(ctx context.Context, id string) (*domain.Invitation, error)
	FindPendingInvitation(ctx context.Context, roomID, inviteeID string) (*domain.Invitation, error)
	// RespondInvitation move a pending invitation to status, NotFound if it is no longer pending
	RespondInvitation(ctx context.Context, id string, status domain.InvitationStatus, at time.Time) error
	ListPendingInvitations(ctx context.Context, inviteeID string) ([]domain.Invitation, error)
}

type invitationRepository struct {
	db *gorm.DB
}

// NewInvitationRepository create a gorm backed InvitationRepository
func NewInvitationRepository(db *gorm.DB) InvitationRepository {
	return &invitationRepository{db: db}
}

func (r *invitationRepository) CreateLink(ctx context.Context, link *domain.InviteLink) error {
	return translate(r.db.WithContext(ctx).Create(link).Error, "invite link")
}

func (r *invitationRepository) FindLink(ctx context.Context, token string) (*domain.InviteLink, error) {
	var link domain.InviteLink
	if err := r.db.WithContext(ctx).First(&link, "token = ?", token).Error; err != nil {
		return nil, translate(err, "invite link")
	}
	return &link, nil
}

func (r *invitationRepository) CreateInvitation(ctx context.Context, inv *domain.Invitation) error {
	return translate(r.db.WithContext(ctx).Create(inv).Error, "invitation")
}

func (r *invitationRepository) FindInvitation(ctx context.Context, id string) (*domain.Invitation, error) {
	var inv domain.Invitation
	if err := r.db.WithContext(ctx).First(&inv, "id = ?", id).Error; err != nil {
		return nil, translate(err, "invitation")
	}
	return &inv, nil
}

func (r *invitationRepository) FindPendingInvitation(ctx context.Context, roomID, inviteeID string) (*domain.Invitation, error) {
	var inv domain.Invitation
	err := r.db.WithContext(ctx).
		First(&inv, "room_id = ? AND invitee_id = ? AND status = ?", roomID, inviteeID, domain.InvitationPending).Error
	if err != nil {
		return nil, translate(err, "invitation")
	}
	return &inv, nil
}

func (r *invitationRepository) RespondInvitation(ctx context.Context, id string, status domain.InvitationStatus, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&domain.Invitation{}).
		Where("id = ? AND status = ?", id, domain.InvitationPending).
		Updates(map[string]interface{}{"status": status, "responded_at": at})
	if res.Error != nil {
		return translate(res.Error, "invitation")
	}
	if res.RowsAffected == 0 {
		return errprocess.New(errprocess.NotFound, "invitation not pending")
	}
	return nil
}

func (r *invitationRepository) ListPendingInvitations(ctx context.Context, inviteeID string) ([]domain.Invitation, error) {
	var invs []domain.Invitation
	err := r.db.WithContext(ctx).
		Where("invitee_id = ? AND status = ?", inviteeID, domain.InvitationPending).
		Order("created_at DESC").
		Find(&invs).Error
	return invs, translate(err, "invitation")
}
