package app

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"chat_presence_service/internal/chat/domain"
	"chat_presence_service/internal/chat/repository"
	"chat_presence_service/pkg/encrypt"
	errprocess "chat_presence_service/pkg/err"
	"chat_presence_service/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// inviteTokenBytes random bytes behind an invite token
const inviteTokenBytes = 32

// RoomUseCase room lifecycle, membership and invitations
type RoomUseCase struct {
	rooms     repository.RoomRepository
	invites   repository.InvitationRepository
	items     repository.ItemDirectory
	messages  repository.MessageRepository
	msgUC     *MessageUseCase
	fanout    Fanout
	inviteTTL time.Duration
	now       func() time.Time
}

// NewRoomUseCase init room use case, inviteTTL 0 means links never expire by default
func NewRoomUseCase(
	rooms repository.RoomRepository,
	invites repository.InvitationRepository,
	items repository.ItemDirectory,
	messages repository.MessageRepository,
	msgUC *MessageUseCase,
	fanout Fanout,
	inviteTTL time.Duration,
) *RoomUseCase {
	return &RoomUseCase{
		rooms:     rooms,
		invites:   invites,
		items:     items,
		messages:  messages,
		msgUC:     msgUC,
		fanout:    fanout,
		inviteTTL: inviteTTL,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (uc *RoomUseCase) newParticipant(userID string, role domain.Role, at time.Time) *domain.Participant {
	return &domain.Participant{
		UserID:         userID,
		Role:           role,
		Active:         true,
		JoinedAt:       at,
		LastActivityAt: at,
	}
}

// subscribeAll let live connections of userIDs receive roomID events
func (uc *RoomUseCase) subscribeAll(ctx context.Context, roomID string, userIDs ...string) {
	for _, u := range userIDs {
		uc.fanout.Subscribe(ctx, roomID, u)
	}
}

// CreatePrivate find or create the single private room of two users
func (uc *RoomUseCase) CreatePrivate(ctx context.Context, userA, userB string) (*domain.Room, error) {
	if userA == "" || userB == "" {
		return nil, errprocess.New(errprocess.InvalidArgument, "both users are required")
	}
	if userA == userB {
		return nil, errprocess.New(errprocess.InvalidArgument, "cannot start a private chat with yourself")
	}
	key := domain.PairKey(userA, userB)

	room, err := uc.findPrivate(ctx, key)
	if err != nil || room != nil {
		return room, err
	}

	now := uc.now()
	room = &domain.Room{
		ID:             uuid.New().String(),
		Type:           domain.RoomTypePrivate,
		CreatorID:      userA,
		PairKey:        &key,
		Active:         true,
		LastActivityAt: now,
	}
	err = uc.rooms.CreateRoom(ctx, room, []*domain.Participant{
		uc.newParticipant(userA, domain.RoleAdmin, now),
		uc.newParticipant(userB, domain.RoleMember, now),
	})
	if errprocess.IsKind(err, errprocess.Conflict) {
		// 同時建立，回傳搶先建立的房間
		return uc.findPrivate(ctx, key)
	}
	if err != nil {
		return nil, err
	}

	logger.Log.Info("private room created", zap.String("room_id", room.ID))
	uc.subscribeAll(ctx, room.ID, userA, userB)
	return room, nil
}

// findPrivate existing room of the pair, reactivated when it was closed; nil when none
func (uc *RoomUseCase) findPrivate(ctx context.Context, key string) (*domain.Room, error) {
	room, err := uc.rooms.FindByPairKey(ctx, key)
	if errprocess.IsKind(err, errprocess.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !room.Active {
		if err := uc.reactivate(ctx, room); err != nil {
			return nil, err
		}
	}
	return room, nil
}

func (uc *RoomUseCase) reactivate(ctx context.Context, room *domain.Room) error {
	now := uc.now()
	if err := uc.rooms.ReactivateRoom(ctx, room.ID, now); err != nil {
		return err
	}
	room.Active = true
	room.LastActivityAt = now
	participants, err := uc.rooms.ListParticipants(ctx, room.ID, true)
	if err != nil {
		return err
	}
	for _, p := range participants {
		uc.fanout.Subscribe(ctx, room.ID, p.UserID)
	}
	return nil
}

// GroupInput parameters of a group or organization room
type GroupInput struct {
	CreatorID       string
	OrgID           string
	Name            string
	Description     string
	MemberIDs       []string
	MaxParticipants *int
}

func validateGroupDetails(name, description string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(name))
	if n < 3 || n > 50 {
		return errprocess.New(errprocess.InvalidArgument, "name must be 3 to 50 characters")
	}
	if utf8.RuneCountInString(description) > 500 {
		return errprocess.New(errprocess.InvalidArgument, "description must be at most 500 characters")
	}
	return nil
}

// distinctMembers creator first, duplicates and blanks dropped
func distinctMembers(creatorID string, memberIDs []string) []string {
	seen := map[string]struct{}{creatorID: {}}
	out := []string{creatorID}
	for _, id := range memberIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// CreateGroup creator becomes admin, every other member joins as member
func (uc *RoomUseCase) CreateGroup(ctx context.Context, in GroupInput) (*domain.Room, error) {
	return uc.createMultiParty(ctx, domain.RoomTypeGroup, in)
}

// CreateOrgRoom group restricted to one organization
func (uc *RoomUseCase) CreateOrgRoom(ctx context.Context, in GroupInput) (*domain.Room, error) {
	if strings.TrimSpace(in.OrgID) == "" {
		return nil, errprocess.New(errprocess.InvalidArgument, "organization id is required")
	}
	return uc.createMultiParty(ctx, domain.RoomTypeOrgOnly, in)
}

func (uc *RoomUseCase) createMultiParty(ctx context.Context, roomType domain.RoomType, in GroupInput) (*domain.Room, error) {
	if in.CreatorID == "" {
		return nil, errprocess.New(errprocess.InvalidArgument, "creator is required")
	}
	if err := validateGroupDetails(in.Name, in.Description); err != nil {
		return nil, err
	}
	members := distinctMembers(in.CreatorID, in.MemberIDs)
	if in.MaxParticipants != nil {
		if *in.MaxParticipants < 2 {
			return nil, errprocess.New(errprocess.InvalidArgument, "max participants must be at least 2")
		}
		if len(members) > *in.MaxParticipants {
			return nil, errprocess.Newf(errprocess.InvalidArgument, "%d members exceed the limit of %d", len(members), *in.MaxParticipants)
		}
	}

	now := uc.now()
	room := &domain.Room{
		ID:              uuid.New().String(),
		Type:            roomType,
		Name:            strings.TrimSpace(in.Name),
		Description:     in.Description,
		CreatorID:       in.CreatorID,
		Active:          true,
		MaxParticipants: in.MaxParticipants,
		LastActivityAt:  now,
	}
	if roomType == domain.RoomTypeOrgOnly {
		orgID := in.OrgID
		room.OrgID = &orgID
	}
	participants := make([]*domain.Participant, 0, len(members))
	for i, id := range members {
		role := domain.RoleMember
		if i == 0 {
			role = domain.RoleAdmin
		}
		participants = append(participants, uc.newParticipant(id, role, now))
	}
	if err := uc.rooms.CreateRoom(ctx, room, participants); err != nil {
		return nil, err
	}

	logger.Log.Info("room created", zap.String("room_id", room.ID), zap.String("type", string(roomType)), zap.Int("members", len(members)))
	uc.subscribeAll(ctx, room.ID, members...)
	return room, nil
}

// CreateItemInquiry buyer asks the owner of an item, one room per (buyer, item)
func (uc *RoomUseCase) CreateItemInquiry(ctx context.Context, buyerID, itemID, initialMessage string) (*domain.Room, error) {
	if buyerID == "" || strings.TrimSpace(itemID) == "" {
		return nil, errprocess.New(errprocess.InvalidArgument, "buyer and item are required")
	}
	item, err := uc.items.FindItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.OwnerID == buyerID {
		return nil, errprocess.New(errprocess.InvalidArgument, "cannot inquire about your own item")
	}
	key := domain.InquiryKey(buyerID, itemID)

	room, err := uc.findInquiry(ctx, key)
	if err != nil || room != nil {
		return room, err
	}

	now := uc.now()
	status := domain.InquiryNew
	priority := domain.PriorityMedium
	room = &domain.Room{
		ID:             uuid.New().String(),
		Type:           domain.RoomTypeItemInquiry,
		Name:           item.Title,
		CreatorID:      buyerID,
		ItemID:         &item.ID,
		InquiryKey:     &key,
		Active:         true,
		InquiryStatus:  &status,
		Priority:       &priority,
		LastActivityAt: now,
	}
	err = uc.rooms.CreateRoom(ctx, room, []*domain.Participant{
		uc.newParticipant(item.OwnerID, domain.RoleAdmin, now),
		uc.newParticipant(buyerID, domain.RoleMember, now),
	})
	if errprocess.IsKind(err, errprocess.Conflict) {
		return uc.findInquiry(ctx, key)
	}
	if err != nil {
		return nil, err
	}
	uc.subscribeAll(ctx, room.ID, item.OwnerID, buyerID)

	if strings.TrimSpace(initialMessage) != "" {
		_, err := uc.msgUC.Send(ctx, domain.SendMessage{
			RoomID:          room.ID,
			SenderID:        buyerID,
			ClientMessageID: "inquiry-" + room.ID,
			Content:         initialMessage,
		})
		if err != nil {
			// 房間已建立，初始訊息失敗不回滾
			logger.Log.Warn("initial inquiry message failed", zap.String("room_id", room.ID), zap.Error(err))
		}
	}
	return room, nil
}

func (uc *RoomUseCase) findInquiry(ctx context.Context, key string) (*domain.Room, error) {
	room, err := uc.rooms.FindByInquiryKey(ctx, key)
	if errprocess.IsKind(err, errprocess.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !room.Active {
		if err := uc.reactivate(ctx, room); err != nil {
			return nil, err
		}
	}
	return room, nil
}

// moderated room must be a group or org room and actor a moderator of it
func (uc *RoomUseCase) moderated(ctx context.Context, roomID, actorID string) (*domain.Room, *domain.Participant, error) {
	room, actor, err := membership(ctx, uc.rooms, roomID, actorID)
	if err != nil {
		return nil, nil, err
	}
	if !room.IsMultiParty() {
		return nil, nil, errprocess.New(errprocess.InvalidArgument, "membership of this room cannot be changed")
	}
	if !domain.CanModerate(actor.Role) {
		return nil, nil, errprocess.New(errprocess.Forbidden, "admin or moderator role required")
	}
	return room, actor, nil
}

// AddParticipants add users to a group room, all or nothing against the cap
func (uc *RoomUseCase) AddParticipants(ctx context.Context, roomID, actorID string, userIDs []string) ([]domain.Participant, error) {
	if _, _, err := uc.moderated(ctx, roomID, actorID); err != nil {
		return nil, err
	}
	return uc.join(ctx, roomID, userIDs)
}

// join add or reactivate userIDs, announce the newcomers and subscribe them
func (uc *RoomUseCase) join(ctx context.Context, roomID string, userIDs []string) ([]domain.Participant, error) {
	now := uc.now()
	var ps []*domain.Participant
	seen := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ps = append(ps, uc.newParticipant(id, domain.RoleMember, now))
	}
	if len(ps) == 0 {
		return nil, errprocess.New(errprocess.InvalidArgument, "user ids are required")
	}

	added, err := uc.rooms.AddParticipants(ctx, roomID, ps)
	if err != nil {
		return nil, err
	}
	for _, p := range added {
		uc.fanout.Subscribe(ctx, roomID, p.UserID)
		uc.msgUC.postSystem(ctx, roomID, p.UserID+" joined the chat")
	}
	return added, nil
}

// RemoveParticipant moderators remove others, admins cannot be removed by moderators
func (uc *RoomUseCase) RemoveParticipant(ctx context.Context, roomID, actorID, userID string) error {
	if actorID == userID {
		return uc.LeaveRoom(ctx, roomID, userID)
	}
	_, actor, err := uc.moderated(ctx, roomID, actorID)
	if err != nil {
		return err
	}
	target, err := uc.rooms.FindParticipant(ctx, roomID, userID)
	if err != nil {
		return err
	}
	if !target.Active {
		return errprocess.New(errprocess.NotFound, "participant not found")
	}
	if target.Role == domain.RoleAdmin && actor.Role != domain.RoleAdmin {
		return errprocess.New(errprocess.Forbidden, "only an admin can remove an admin")
	}
	return uc.leave(ctx, roomID, userID)
}

// LeaveRoom self removal, a private room closes when either side leaves
func (uc *RoomUseCase) LeaveRoom(ctx context.Context, roomID, userID string) error {
	room, _, err := membership(ctx, uc.rooms, roomID, userID)
	if err != nil {
		return err
	}
	if err := uc.leave(ctx, roomID, userID); err != nil {
		return err
	}
	if room.Type == domain.RoomTypePrivate {
		room.Active = false
		if err := uc.rooms.UpdateRoom(ctx, room); err != nil {
			return err
		}
	}
	return nil
}

func (uc *RoomUseCase) leave(ctx context.Context, roomID, userID string) error {
	remaining, err := uc.rooms.DeactivateParticipant(ctx, roomID, userID, uc.now())
	if err != nil {
		return err
	}
	uc.fanout.Unsubscribe(ctx, roomID, userID)
	if remaining > 0 {
		uc.msgUC.postSystem(ctx, roomID, userID+" left the chat")
	} else {
		logger.Log.Info("room deactivated, no participant left", zap.String("room_id", roomID))
	}
	return nil
}

// UpdateParticipantRole admin only
func (uc *RoomUseCase) UpdateParticipantRole(ctx context.Context, roomID, actorID, userID string, role domain.Role) error {
	if !role.Valid() {
		return errprocess.Newf(errprocess.InvalidArgument, "unknown role %q", role)
	}
	room, actor, err := membership(ctx, uc.rooms, roomID, actorID)
	if err != nil {
		return err
	}
	if !room.IsMultiParty() {
		return errprocess.New(errprocess.InvalidArgument, "roles cannot be changed in this room")
	}
	if actor.Role != domain.RoleAdmin {
		return errprocess.New(errprocess.Forbidden, "admin role required")
	}
	return uc.rooms.UpdateParticipantRole(ctx, roomID, userID, role)
}

// UpdateGroupDetails admin only, nil fields stay unchanged
func (uc *RoomUseCase) UpdateGroupDetails(ctx context.Context, roomID, actorID string, name, description *string) (*domain.Room, error) {
	room, actor, err := membership(ctx, uc.rooms, roomID, actorID)
	if err != nil {
		return nil, err
	}
	if !room.IsMultiParty() {
		return nil, errprocess.New(errprocess.InvalidArgument, "only group rooms have details")
	}
	if actor.Role != domain.RoleAdmin {
		return nil, errprocess.New(errprocess.Forbidden, "admin role required")
	}
	if name != nil {
		room.Name = strings.TrimSpace(*name)
	}
	if description != nil {
		room.Description = *description
	}
	if err := validateGroupDetails(room.Name, room.Description); err != nil {
		return nil, err
	}
	if err := uc.rooms.UpdateRoom(ctx, room); err != nil {
		return nil, err
	}
	return room, nil
}

// CreateInviteLink opaque token for a group room, ttl <= 0 uses the default
func (uc *RoomUseCase) CreateInviteLink(ctx context.Context, roomID, issuerID string, ttl time.Duration, passcode string) (*domain.InviteLink, error) {
	if _, _, err := uc.moderated(ctx, roomID, issuerID); err != nil {
		return nil, err
	}
	token, err := encrypt.OpaqueToken(inviteTokenBytes)
	if err != nil {
		return nil, errprocess.Wrap(errprocess.Internal, "generate invite token", err)
	}

	now := uc.now()
	link := &domain.InviteLink{Token: token, RoomID: roomID, IssuerID: issuerID, CreatedAt: now}
	if ttl <= 0 {
		ttl = uc.inviteTTL
	}
	if ttl > 0 {
		expires := now.Add(ttl)
		link.ExpiresAt = &expires
	}
	if passcode != "" {
		hash, err := encrypt.HashPasscode(passcode)
		if err != nil {
			return nil, errprocess.Wrap(errprocess.InvalidArgument, "invalid passcode", err)
		}
		link.PasscodeHash = hash
	}
	if err := uc.invites.CreateLink(ctx, link); err != nil {
		return nil, err
	}
	return link, nil
}

// InvitePreview what an invitee sees before joining
type InvitePreview struct {
	RoomID           string     `json:"room_id"`
	RoomName         string     `json:"room_name"`
	RoomType         string     `json:"room_type"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
	RequiresPasscode bool       `json:"requires_passcode"`
}

func (uc *RoomUseCase) validLink(ctx context.Context, token string) (*domain.InviteLink, *domain.Room, error) {
	if !encrypt.ValidOpaqueToken(token, inviteTokenBytes) {
		return nil, nil, errprocess.New(errprocess.InvalidArgument, "malformed invite token")
	}
	link, err := uc.invites.FindLink(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	if link.Expired(uc.now()) {
		return nil, nil, errprocess.New(errprocess.InvalidArgument, "invite link expired")
	}
	room, err := uc.rooms.FindByID(ctx, link.RoomID)
	if err != nil {
		return nil, nil, err
	}
	if !room.Active {
		return nil, nil, errprocess.New(errprocess.InvalidArgument, "room is closed")
	}
	return link, room, nil
}

// GetInvite preview of an invite link
func (uc *RoomUseCase) GetInvite(ctx context.Context, token string) (*InvitePreview, error) {
	link, room, err := uc.validLink(ctx, token)
	if err != nil {
		return nil, err
	}
	return &InvitePreview{
		RoomID:           room.ID,
		RoomName:         room.Name,
		RoomType:         string(room.Type),
		ExpiresAt:        link.ExpiresAt,
		RequiresPasscode: link.PasscodeHash != "",
	}, nil
}

// RedeemInvite join through a link, already being a member is not an error
func (uc *RoomUseCase) RedeemInvite(ctx context.Context, token, userID, passcode string) (*domain.Room, error) {
	link, room, err := uc.validLink(ctx, token)
	if err != nil {
		return nil, err
	}
	if link.PasscodeHash != "" {
		if err := encrypt.CheckPasscode(link.PasscodeHash, passcode); err != nil {
			return nil, errprocess.New(errprocess.Forbidden, "wrong passcode")
		}
	}
	if p, err := uc.rooms.FindParticipant(ctx, room.ID, userID); err == nil && p.Active {
		return room, nil
	}
	if _, err := uc.join(ctx, room.ID, []string{userID}); err != nil {
		return nil, err
	}
	return room, nil
}

// InviteToGroup direct invitation of one user by a moderator
func (uc *RoomUseCase) InviteToGroup(ctx context.Context, roomID, inviterID, inviteeID string) (*domain.Invitation, error) {
	if strings.TrimSpace(inviteeID) == "" {
		return nil, errprocess.New(errprocess.InvalidArgument, "invitee is required")
	}
	if _, _, err := uc.moderated(ctx, roomID, inviterID); err != nil {
		return nil, err
	}
	if p, err := uc.rooms.FindParticipant(ctx, roomID, inviteeID); err == nil && p.Active {
		return nil, errprocess.New(errprocess.Conflict, "user is already a participant")
	}
	if _, err := uc.invites.FindPendingInvitation(ctx, roomID, inviteeID); err == nil {
		return nil, errprocess.New(errprocess.Conflict, "invitation already pending")
	} else if !errprocess.IsKind(err, errprocess.NotFound) {
		return nil, err
	}

	inv := &domain.Invitation{
		ID:        uuid.New().String(),
		RoomID:    roomID,
		InviterID: inviterID,
		InviteeID: inviteeID,
		Status:    domain.InvitationPending,
		CreatedAt: uc.now(),
	}
	if err := uc.invites.CreateInvitation(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

func (uc *RoomUseCase) pendingFor(ctx context.Context, invitationID, userID string) (*domain.Invitation, error) {
	inv, err := uc.invites.FindInvitation(ctx, invitationID)
	if err != nil {
		return nil, err
	}
	if inv.InviteeID != userID {
		return nil, errprocess.New(errprocess.Forbidden, "invitation belongs to another user")
	}
	if inv.Status != domain.InvitationPending {
		return nil, errprocess.New(errprocess.Conflict, "invitation already answered")
	}
	return inv, nil
}

// AcceptInvitation join the room of a pending invitation
func (uc *RoomUseCase) AcceptInvitation(ctx context.Context, invitationID, userID string) (*domain.Room, error) {
	inv, err := uc.pendingFor(ctx, invitationID, userID)
	if err != nil {
		return nil, err
	}
	room, err := uc.rooms.FindByID(ctx, inv.RoomID)
	if err != nil {
		return nil, err
	}
	if !room.Active {
		return nil, errprocess.New(errprocess.InvalidArgument, "room is closed")
	}
	if p, err := uc.rooms.FindParticipant(ctx, room.ID, userID); err != nil || !p.Active {
		if _, err := uc.join(ctx, room.ID, []string{userID}); err != nil {
			return nil, err
		}
	}
	if err := uc.invites.RespondInvitation(ctx, inv.ID, domain.InvitationAccepted, uc.now()); err != nil {
		return nil, err
	}
	return room, nil
}

// RejectInvitation decline a pending invitation
func (uc *RoomUseCase) RejectInvitation(ctx context.Context, invitationID, userID string) error {
	inv, err := uc.pendingFor(ctx, invitationID, userID)
	if err != nil {
		return err
	}
	return uc.invites.RespondInvitation(ctx, inv.ID, domain.InvitationRejected, uc.now())
}

// PendingInvitations invitations waiting for userID
func (uc *RoomUseCase) PendingInvitations(ctx context.Context, userID string) ([]domain.Invitation, error) {
	return uc.invites.ListPendingInvitations(ctx, userID)
}

// ownedInquiry inquiry room whose admin (the item owner) is actorID
func (uc *RoomUseCase) ownedInquiry(ctx context.Context, roomID, actorID string) (*domain.Room, error) {
	room, actor, err := membership(ctx, uc.rooms, roomID, actorID)
	if err != nil {
		return nil, err
	}
	if room.Type != domain.RoomTypeItemInquiry {
		return nil, errprocess.New(errprocess.InvalidArgument, "room is not an item inquiry")
	}
	if actor.Role != domain.RoleAdmin {
		return nil, errprocess.New(errprocess.Forbidden, "only the item owner can manage this inquiry")
	}
	return room, nil
}

// UpdateInquiryStatus forward only transitions, same status is a no-op
func (uc *RoomUseCase) UpdateInquiryStatus(ctx context.Context, roomID, actorID string, status domain.InquiryStatus) (*domain.Room, error) {
	if !status.Valid() {
		return nil, errprocess.Newf(errprocess.InvalidArgument, "unknown inquiry status %q", status)
	}
	room, err := uc.ownedInquiry(ctx, roomID, actorID)
	if err != nil {
		return nil, err
	}
	current := domain.InquiryNew
	if room.InquiryStatus != nil {
		current = *room.InquiryStatus
	}
	if current == status {
		return room, nil
	}
	if !domain.CanTransition(current, status) {
		return nil, errprocess.Newf(errprocess.InvalidArgument, "cannot move inquiry from %s to %s", current, status)
	}

	room.InquiryStatus = &status
	room.LeadScore = domain.LeadScoreAfter(room.LeadScore, status)
	if err := uc.rooms.UpdateRoom(ctx, room); err != nil {
		return nil, err
	}
	return room, nil
}

// UpdateInquiryPriority owner sets the priority tier
func (uc *RoomUseCase) UpdateInquiryPriority(ctx context.Context, roomID, actorID string, priority domain.Priority) (*domain.Room, error) {
	if !priority.Valid() {
		return nil, errprocess.Newf(errprocess.InvalidArgument, "unknown priority %q", priority)
	}
	room, err := uc.ownedInquiry(ctx, roomID, actorID)
	if err != nil {
		return nil, err
	}
	room.Priority = &priority
	if err := uc.rooms.UpdateRoom(ctx, room); err != nil {
		return nil, err
	}
	return room, nil
}

// DealerInquiries inquiry rooms of items owned by ownerID
func (uc *RoomUseCase) DealerInquiries(ctx context.Context, ownerID string, status *domain.InquiryStatus) ([]domain.Room, error) {
	if status != nil && !status.Valid() {
		return nil, errprocess.Newf(errprocess.InvalidArgument, "unknown inquiry status %q", *status)
	}
	return uc.rooms.ListOwnerInquiries(ctx, ownerID, status)
}

// ListRooms active rooms of userID with unread counts, most recent activity first
func (uc *RoomUseCase) ListRooms(ctx context.Context, userID string, page domain.Page) ([]domain.RoomSummary, error) {
	rooms, err := uc.rooms.ListUserRooms(ctx, userID, page)
	if err != nil {
		return nil, err
	}
	for i := range rooms {
		n, err := uc.messages.CountUnread(ctx, rooms[i].Room.ID, userID, rooms[i].Participant.LastReadSeq)
		if err != nil {
			return nil, err
		}
		rooms[i].UnreadCount = n
	}
	return rooms, nil
}

// GetRoom room with the caller's participation
func (uc *RoomUseCase) GetRoom(ctx context.Context, roomID, userID string) (*domain.RoomSummary, error) {
	room, p, err := membership(ctx, uc.rooms, roomID, userID)
	if err != nil {
		return nil, err
	}
	n, err := uc.messages.CountUnread(ctx, roomID, userID, p.LastReadSeq)
	if err != nil {
		return nil, err
	}
	return &domain.RoomSummary{Room: room, Participant: p, UnreadCount: n}, nil
}

// ListParticipants active participants, visible to participants only
func (uc *RoomUseCase) ListParticipants(ctx context.Context, roomID, userID string) ([]domain.Participant, error) {
	if _, _, err := membership(ctx, uc.rooms, roomID, userID); err != nil {
		return nil, err
	}
	return uc.rooms.ListParticipants(ctx, roomID, true)
}

// ActiveRoomIDs rooms a new connection subscribes to
func (uc *RoomUseCase) ActiveRoomIDs(ctx context.Context, userID string) ([]string, error) {
	ps, err := uc.rooms.ListActiveMemberships(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(ps))
	for i, p := range ps {
		ids[i] = p.RoomID
	}
	return ids, nil
}
