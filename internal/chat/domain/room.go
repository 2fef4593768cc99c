package domain

import (
	"sort"
	"strings"
	"time"
)

// RoomType definition chat room type
type RoomType string

const (
	//RoomTypePrivate 1對1
	RoomTypePrivate RoomType = "private"
	//RoomTypeGroup 群組
	RoomTypeGroup RoomType = "group"
	//RoomTypeItemInquiry buyer asking the owner of a listing
	RoomTypeItemInquiry RoomType = "item_inquiry"
	//RoomTypeOrgOnly members of one organization
	RoomTypeOrgOnly RoomType = "org_only"
)

// Role participant role in a room
type Role string

const (
	// RoleAdmin 群主
	RoleAdmin Role = "admin"
	// RoleModerator 管理員
	RoleModerator Role = "moderator"
	// RoleMember 一般成員
	RoleMember Role = "member"
)

// Valid check role is one of the known roles
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleModerator || r == RoleMember
}

// Room definition chat room
type Room struct {
	ID          string   `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Type        RoomType `gorm:"type:varchar(16);not null;index" json:"type"`
	Name        string   `gorm:"type:varchar(50)" json:"name,omitempty"`
	Description string   `gorm:"type:varchar(500)" json:"description,omitempty"`
	CreatorID   string   `gorm:"type:varchar(64);not null" json:"creator_id"`
	ItemID      *string  `gorm:"type:varchar(64);index" json:"item_id,omitempty"`
	OrgID       *string  `gorm:"type:varchar(64);index" json:"org_id,omitempty"`
	// PairKey sorted "a:b" of a private room, unique
	PairKey *string `gorm:"type:varchar(160);uniqueIndex" json:"-"`
	// InquiryKey "buyer:item" of an item inquiry, unique
	InquiryKey      *string `gorm:"type:varchar(160);uniqueIndex" json:"-"`
	Active          bool    `gorm:"not null;default:true;index" json:"active"`
	MaxParticipants *int    `json:"max_participants,omitempty"`

	InquiryStatus *InquiryStatus `gorm:"type:varchar(16)" json:"inquiry_status,omitempty"`
	Priority      *Priority      `gorm:"type:varchar(8)" json:"priority,omitempty"`
	LeadScore     int            `gorm:"not null;default:0" json:"lead_score,omitempty"`

	LastActivityAt time.Time `gorm:"index" json:"last_activity_at"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// IsMultiParty group-like rooms whose membership is managed by admins
func (r *Room) IsMultiParty() bool {
	return r.Type == RoomTypeGroup || r.Type == RoomTypeOrgOnly
}

// Participant user membership in a room
type Participant struct {
	ID     uint   `gorm:"primaryKey" json:"-"`
	RoomID string `gorm:"type:varchar(36);not null;uniqueIndex:idx_participant_room_user" json:"room_id"`
	UserID string `gorm:"type:varchar(64);not null;uniqueIndex:idx_participant_room_user;index" json:"user_id"`
	Role   Role   `gorm:"type:varchar(16);not null" json:"role"`
	Active bool   `gorm:"not null;default:true" json:"active"`
	// LastReadSeq read watermark, only moves forward
	LastReadSeq    int64      `gorm:"not null;default:0" json:"last_read_seq"`
	JoinedAt       time.Time  `json:"joined_at"`
	LeftAt         *time.Time `json:"left_at,omitempty"`
	LastActivityAt time.Time  `json:"last_activity_at"`
}

// InviteLink opaque token granting membership of a room
type InviteLink struct {
	Token        string     `gorm:"primaryKey;type:varchar(64)" json:"token"`
	RoomID       string     `gorm:"type:varchar(36);not null;index" json:"room_id"`
	IssuerID     string     `gorm:"type:varchar(64);not null" json:"issuer_id"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	PasscodeHash string     `gorm:"type:varchar(72)" json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Expired check link against now
func (l *InviteLink) Expired(now time.Time) bool {
	return l.ExpiresAt != nil && !now.Before(*l.ExpiresAt)
}

// InvitationStatus definition invitation status
type InvitationStatus string

const (
	//InvitationPending invitation pending
	InvitationPending InvitationStatus = "pending"
	//InvitationAccepted invitation accepted
	InvitationAccepted InvitationStatus = "accepted"
	// InvitationRejected invitation rejected
	InvitationRejected InvitationStatus = "rejected"
)

// Invitation direct invitation of one user into a group room
type Invitation struct {
	ID          string           `gorm:"primaryKey;type:varchar(36)" json:"id"`
	RoomID      string           `gorm:"type:varchar(36);not null;index" json:"room_id"`
	InviterID   string           `gorm:"type:varchar(64);not null" json:"inviter_id"`
	InviteeID   string           `gorm:"type:varchar(64);not null;index" json:"invitee_id"`
	Status      InvitationStatus `gorm:"type:varchar(16);not null;index" json:"status"`
	CreatedAt   time.Time        `json:"created_at"`
	RespondedAt *time.Time       `json:"responded_at,omitempty"`
}

// PairKey unordered key of two users
func PairKey(userA, userB string) string {
	ids := []string{userA, userB}
	sort.Strings(ids)
	return strings.Join(ids, ":")
}

// InquiryKey key of a buyer asking about one item
func InquiryKey(buyerID, itemID string) string {
	return buyerID + ":" + itemID
}

// Item listing as seen by the chat service
type Item struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`
	Title   string `json:"title"`
}

// RoomSummary room with the caller's participation
type RoomSummary struct {
	Room        *Room        `json:"room"`
	Participant *Participant `json:"participant"`
	UnreadCount int64        `json:"unread_count"`
}
