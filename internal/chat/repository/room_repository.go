package repository

import (
	"context"
	"errors"
	"time"

	"chat_presence_service/internal/chat/domain"
	errprocess "chat_presence_service/pkg/err"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RoomRepository durable rooms and participants
type RoomRepository interface {
	AutoMigrate() error
	// CreateRoom insert room and its first participants in one transaction.
	// a clash on the private pair key or inquiry key returns Conflict.
	CreateRoom(ctx context.Context, room *domain.Room, participants []*domain.Participant) error
	FindByID(ctx context.Context, roomID string) (*domain.Room, error)
	FindByPairKey(ctx context.Context, pairKey string) (*domain.Room, error)
	FindByInquiryKey(ctx context.Context, inquiryKey string) (*domain.Room, error)
	UpdateRoom(ctx context.Context, room *domain.Room) error
	TouchRoom(ctx context.Context, roomID string, at time.Time) error

	FindParticipant(ctx context.Context, roomID, userID string) (*domain.Participant, error)
	ListParticipants(ctx context.Context, roomID string, activeOnly bool) ([]domain.Participant, error)
	// AddParticipants insert or reactivate under a room lock, Conflict when the cap would be exceeded.
	// returns the participants that were not already active.
	AddParticipants(ctx context.Context, roomID string, participants []*domain.Participant) ([]domain.Participant, error)
	// DeactivateParticipant mark the participant gone and return how many stay active;
	// the room is deactivated in the same transaction when that reaches zero.
	DeactivateParticipant(ctx context.Context, roomID, userID string, at time.Time) (int64, error)
	ReactivateRoom(ctx context.Context, roomID string, at time.Time) error
	UpdateParticipantRole(ctx context.Context, roomID, userID string, role domain.Role) error
	// AdvanceWatermark set last_read_seq to max(current, seq) and return the result
	AdvanceWatermark(ctx context.Context, roomID, userID string, seq int64) (int64, error)
	TouchParticipant(ctx context.Context, roomID, userID string, at time.Time) error

	ListUserRooms(ctx context.Context, userID string, page domain.Page) ([]domain.RoomSummary, error)
	ListActiveMemberships(ctx context.Context, userID string) ([]domain.Participant, error)
	ListOwnerInquiries(ctx context.Context, ownerID string, status *domain.InquiryStatus) ([]domain.Room, error)
}

type roomRepository struct {
	db *gorm.DB
}

// NewRoomRepository create a gorm backed RoomRepository
func NewRoomRepository(db *gorm.DB) RoomRepository {
	return &roomRepository{db: db}
}

// AutoMigrate 只在開發環境使用
func (r *roomRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&domain.Room{}, &domain.Participant{}, &domain.InviteLink{}, &domain.Invitation{})
}

func (r *roomRepository) CreateRoom(ctx context.Context, room *domain.Room, participants []*domain.Participant) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(room).Error; err != nil {
			return err
		}
		for _, p := range participants {
			p.RoomID = room.ID
			if err := tx.Create(p).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return translate(err, "room")
}

func (r *roomRepository) FindByID(ctx context.Context, roomID string) (*domain.Room, error) {
	var room domain.Room
	if err := r.db.WithContext(ctx).First(&room, "id = ?", roomID).Error; err != nil {
		return nil, translate(err, "room")
	}
	return &room, nil
}

func (r *roomRepository) FindByPairKey(ctx context.Context, pairKey string) (*domain.Room, error) {
	var room domain.Room
	if err := r.db.WithContext(ctx).First(&room, "pair_key = ?", pairKey).Error; err != nil {
		return nil, translate(err, "room")
	}
	return &room, nil
}

func (r *roomRepository) FindByInquiryKey(ctx context.Context, inquiryKey string) (*domain.Room, error) {
	var room domain.Room
	if err := r.db.WithContext(ctx).First(&room, "inquiry_key = ?", inquiryKey).Error; err != nil {
		return nil, translate(err, "room")
	}
	return &room, nil
}

func (r *roomRepository) UpdateRoom(ctx context.Context, room *domain.Room) error {
	return translate(r.db.WithContext(ctx).Save(room).Error, "room")
}

func (r *roomRepository) TouchRoom(ctx context.Context, roomID string, at time.Time) error {
	return translate(r.db.WithContext(ctx).Model(&domain.Room{}).
		Where("id = ? AND last_activity_at < ?", roomID, at).
		Update("last_activity_at", at).Error, "room")
}

func (r *roomRepository) FindParticipant(ctx context.Context, roomID, userID string) (*domain.Participant, error) {
	var p domain.Participant
	if err := r.db.WithContext(ctx).First(&p, "room_id = ? AND user_id = ?", roomID, userID).Error; err != nil {
		return nil, translate(err, "participant")
	}
	return &p, nil
}

func (r *roomRepository) ListParticipants(ctx context.Context, roomID string, activeOnly bool) ([]domain.Participant, error) {
	var ps []domain.Participant
	q := r.db.WithContext(ctx).Where("room_id = ?", roomID)
	if activeOnly {
		q = q.Where("active = ?", true)
	}
	if err := q.Order("joined_at").Find(&ps).Error; err != nil {
		return nil, translate(err, "participant")
	}
	return ps, nil
}

func (r *roomRepository) AddParticipants(ctx context.Context, roomID string, participants []*domain.Participant) ([]domain.Participant, error) {
	var added []domain.Participant
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var room domain.Room
		// 鎖住 room，避免同時加入超過上限
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&room, "id = ?", roomID).Error; err != nil {
			return err
		}

		var active int64
		if err := tx.Model(&domain.Participant{}).Where("room_id = ? AND active = ?", roomID, true).Count(&active).Error; err != nil {
			return err
		}

		for _, p := range participants {
			var existing domain.Participant
			err := tx.First(&existing, "room_id = ? AND user_id = ?", roomID, p.UserID).Error
			switch {
			case err == nil && existing.Active:
				continue
			case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
				return err
			}

			if room.MaxParticipants != nil && active+1 > int64(*room.MaxParticipants) {
				return errprocess.New(errprocess.Conflict, "participant limit reached")
			}

			if err == nil {
				existing.Active = true
				existing.Role = p.Role
				existing.JoinedAt = p.JoinedAt
				existing.LeftAt = nil
				existing.LastActivityAt = p.JoinedAt
				if err := tx.Save(&existing).Error; err != nil {
					return err
				}
				added = append(added, existing)
			} else {
				p.RoomID = roomID
				if err := tx.Create(p).Error; err != nil {
					return err
				}
				added = append(added, *p)
			}
			active++
		}
		return nil
	})
	if err != nil {
		return nil, translate(err, "room")
	}
	return added, nil
}

func (r *roomRepository) DeactivateParticipant(ctx context.Context, roomID, userID string, at time.Time) (int64, error) {
	var remaining int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&domain.Room{}, "id = ?", roomID).Error; err != nil {
			return err
		}
		res := tx.Model(&domain.Participant{}).
			Where("room_id = ? AND user_id = ? AND active = ?", roomID, userID, true).
			Updates(map[string]interface{}{"active": false, "left_at": at})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		if err := tx.Model(&domain.Participant{}).Where("room_id = ? AND active = ?", roomID, true).Count(&remaining).Error; err != nil {
			return err
		}
		if remaining == 0 {
			return tx.Model(&domain.Room{}).Where("id = ?", roomID).Update("active", false).Error
		}
		return nil
	})
	return remaining, translate(err, "participant")
}

func (r *roomRepository) ReactivateRoom(ctx context.Context, roomID string, at time.Time) error {
	return translate(r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&domain.Room{}).Where("id = ?", roomID).
			Updates(map[string]interface{}{"active": true, "last_activity_at": at}).Error; err != nil {
			return err
		}
		return tx.Model(&domain.Participant{}).Where("room_id = ?", roomID).
			Updates(map[string]interface{}{"active": true, "left_at": nil}).Error
	}), "room")
}

func (r *roomRepository) UpdateParticipantRole(ctx context.Context, roomID, userID string, role domain.Role) error {
	res := r.db.WithContext(ctx).Model(&domain.Participant{}).
		Where("room_id = ? AND user_id = ? AND active = ?", roomID, userID, true).
		Update("role", role)
	if res.Error != nil {
		return translate(res.Error, "participant")
	}
	if res.RowsAffected == 0 {
		return errprocess.New(errprocess.NotFound, "participant not found")
	}
	return nil
}

func (r *roomRepository) AdvanceWatermark(ctx context.Context, roomID, userID string, seq int64) (int64, error) {
	var p domain.Participant
	err := r.db.WithContext(ctx).Model(&p).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "last_read_seq"}}}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Update("last_read_seq", gorm.Expr("GREATEST(last_read_seq, ?)", seq)).Error
	if err != nil {
		return 0, translate(err, "participant")
	}
	return p.LastReadSeq, nil
}

func (r *roomRepository) TouchParticipant(ctx context.Context, roomID, userID string, at time.Time) error {
	return translate(r.db.WithContext(ctx).Model(&domain.Participant{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Update("last_activity_at", at).Error, "participant")
}

func (r *roomRepository) ListUserRooms(ctx context.Context, userID string, page domain.Page) ([]domain.RoomSummary, error) {
	page = page.Normalize()

	var rooms []domain.Room
	err := r.db.WithContext(ctx).
		Joins("JOIN participants p ON p.room_id = rooms.id AND p.user_id = ? AND p.active = ?", userID, true).
		Where("rooms.active = ?", true).
		Order("rooms.last_activity_at DESC").
		Offset(page.Offset()).Limit(page.Size).
		Find(&rooms).Error
	if err != nil {
		return nil, translate(err, "room")
	}
	if len(rooms) == 0 {
		return []domain.RoomSummary{}, nil
	}

	ids := make([]string, len(rooms))
	for i := range rooms {
		ids[i] = rooms[i].ID
	}
	var ps []domain.Participant
	if err := r.db.WithContext(ctx).Where("user_id = ? AND room_id IN ?", userID, ids).Find(&ps).Error; err != nil {
		return nil, translate(err, "participant")
	}
	byRoom := make(map[string]*domain.Participant, len(ps))
	for i := range ps {
		byRoom[ps[i].RoomID] = &ps[i]
	}

	out := make([]domain.RoomSummary, 0, len(rooms))
	for i := range rooms {
		out = append(out, domain.RoomSummary{Room: &rooms[i], Participant: byRoom[rooms[i].ID]})
	}
	return out, nil
}

func (r *roomRepository) ListActiveMemberships(ctx context.Context, userID string) ([]domain.Participant, error) {
	var ps []domain.Participant
	err := r.db.WithContext(ctx).
		Joins("JOIN rooms ON rooms.id = participants.room_id AND rooms.active = ?", true).
		Where("participants.user_id = ? AND participants.active = ?", userID, true).
		Find(&ps).Error
	return ps, translate(err, "participant")
}

func (r *roomRepository) ListOwnerInquiries(ctx context.Context, ownerID string, status *domain.InquiryStatus) ([]domain.Room, error) {
	var rooms []domain.Room
	q := r.db.WithContext(ctx).
		Joins("JOIN participants p ON p.room_id = rooms.id AND p.user_id = ? AND p.role = ?", ownerID, domain.RoleAdmin).
		Where("rooms.type = ?", domain.RoomTypeItemInquiry)
	if status != nil {
		q = q.Where("rooms.inquiry_status = ?", *status)
	}
	if err := q.Order("rooms.last_activity_at DESC").Find(&rooms).Error; err != nil {
		return nil, translate(err, "room")
	}
	return rooms, nil
}

// translate map gorm errors onto the error taxonomy
func translate(err error, what string) error {
	if err == nil {
		return nil
	}
	var kindErr *errprocess.Error
	switch {
	case errors.As(err, &kindErr):
		return err
	case errors.Is(err, gorm.ErrRecordNotFound):
		return errprocess.New(errprocess.NotFound, what+" not found")
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return errprocess.Wrap(errprocess.Conflict, what+" already exists", err)
	default:
		return errprocess.Wrap(errprocess.Internal, what+" storage failure", err)
	}
}
