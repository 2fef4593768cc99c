package handlers

import (
	"time"

	"chat_presence_service/internal/chat/app"
	"chat_presence_service/internal/chat/domain"
	"chat_presence_service/internal/chat/presence"
	errprocess "chat_presence_service/pkg/err"
	"chat_presence_service/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
)

// ChatHandler REST surface of the chat service
type ChatHandler struct {
	rooms    *app.RoomUseCase
	messages *app.MessageUseCase
	registry *presence.Registry
}

// NewChatHandler create ChatHandler
func NewChatHandler(rooms *app.RoomUseCase, messages *app.MessageUseCase, registry *presence.Registry) *ChatHandler {
	return &ChatHandler{rooms: rooms, messages: messages, registry: registry}
}

// parseRoomBody 非成員先拿到 403/404，不因 body 錯誤回 400
func (h *ChatHandler) parseRoomBody(c *fiber.Ctx, dst interface{}) error {
	err := parseBody(c, dst)
	if err == nil {
		return nil
	}
	if accessErr := h.messages.CheckRoomAccess(c.UserContext(), c.Params("id"), middlewares.MemberID(c)); accessErr != nil {
		return accessErr
	}
	return err
}

// parseMessageBody same as parseRoomBody, for routes keyed by message id
func (h *ChatHandler) parseMessageBody(c *fiber.Ctx, dst interface{}) error {
	err := parseBody(c, dst)
	if err == nil {
		return nil
	}
	if accessErr := h.messages.CheckMessageAccess(c.UserContext(), c.Params("id"), middlewares.MemberID(c)); accessErr != nil {
		return accessErr
	}
	return err
}

// CreateGroupRequest body of POST /chat/group
type CreateGroupRequest struct {
	Name            string   `json:"name" validate:"required,min=3,max=50"`
	Description     string   `json:"description" validate:"max=500"`
	MemberIDs       []string `json:"memberIds" validate:"max=500,dive,required"`
	MaxParticipants *int     `json:"maxParticipants" validate:"omitempty,min=2"`
}

// CreateOrgRequest body of POST /chat/org
type CreateOrgRequest struct {
	OrgID     string   `json:"orgId" validate:"required"`
	Name      string   `json:"name" validate:"required,min=3,max=50"`
	MemberIDs []string `json:"memberIds" validate:"max=500,dive,required"`
}

// CreateInquiryRequest body of POST /chat/inquiries
type CreateInquiryRequest struct {
	ItemID  string `json:"itemId" validate:"required"`
	Message string `json:"message" validate:"max=4000"`
}

// UpdateRoomRequest body of PUT /chat/rooms/:id
type UpdateRoomRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=3,max=50"`
	Description *string `json:"description" validate:"omitempty,max=500"`
}

// AddParticipantsRequest body of POST /chat/rooms/:id/participants
type AddParticipantsRequest struct {
	UserIDs []string `json:"userIds" validate:"required,min=1,max=500,dive,required"`
}

// UpdateRoleRequest body of PUT /chat/rooms/:id/participants/:userId/role
type UpdateRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=admin moderator member"`
}

// AttachmentRequest uploaded object referenced by a message
type AttachmentRequest struct {
	ObjectKey string `json:"objectKey" validate:"required,max=512"`
	Name      string `json:"name" validate:"required,max=200"`
	Size      int64  `json:"size" validate:"min=0"`
	MimeType  string `json:"mimeType" validate:"required,max=100"`
}

// SendMessageRequest body of POST /chat/rooms/:id/messages
type SendMessageRequest struct {
	ClientMessageID string             `json:"clientMessageId" validate:"required,max=64"`
	Content         string             `json:"content" validate:"required_without=Attachment,excluded_with=Attachment,max=4000"`
	Attachment      *AttachmentRequest `json:"attachment"`
	ReplyToID       string             `json:"replyToId" validate:"max=64"`
}

// EditMessageRequest body of PUT /chat/messages/:id
type EditMessageRequest struct {
	NewContent string `json:"newContent" validate:"required,max=4000"`
}

// MarkReadRequest body of POST /chat/rooms/:id/messages/read
type MarkReadRequest struct {
	MessageIDs []string `json:"messageIds" validate:"required,min=1,max=500,dive,required"`
}

// TypingRequest body of POST /chat/rooms/:id/typing
type TypingRequest struct {
	IsTyping bool `json:"isTyping"`
}

// AttachmentURLRequest body of POST /chat/rooms/:id/attachments
type AttachmentURLRequest struct {
	FileName string `json:"fileName" validate:"required,max=200"`
}

// InviteLinkRequest body of POST /chat/rooms/:id/invite-link
type InviteLinkRequest struct {
	TTLSeconds int    `json:"ttlSeconds" validate:"min=0"`
	Passcode   string `json:"passcode" validate:"omitempty,min=4,max=72"`
}

// InviteLinkResponse created invite link
type InviteLinkResponse struct {
	Token     string     `json:"token"`
	RoomID    string     `json:"roomId"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// JoinInviteRequest optional body of POST /chat/invites/:token/join
type JoinInviteRequest struct {
	Passcode string `json:"passcode" validate:"max=72"`
}

// InviteUserRequest body of POST /chat/rooms/:id/invitations
type InviteUserRequest struct {
	UserID string `json:"userId" validate:"required"`
}

// InquiryStatusRequest body of PUT /chat/inquiries/:id/status
type InquiryStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=new contacted interested not_interested closed"`
}

// InquiryPriorityRequest body of PUT /chat/inquiries/:id/priority
type InquiryPriorityRequest struct {
	Priority string `json:"priority" validate:"required,oneof=low medium high urgent"`
}

// CreatePrivate find or create the private room with a recipient
// @Summary Create private chat
// @Tags Rooms
// @Produce json
// @Param recipientId query string true "Other user"
// @Success 201 {object} domain.Room
// @Failure 400 {object} ErrorResponse
// @Router /chat/private [post]
func (h *ChatHandler) CreatePrivate(c *fiber.Ctx) error {
	recipient := c.Query("recipientId")
	if recipient == "" {
		return respondError(c, errprocess.New(errprocess.InvalidArgument, "recipientId is required"))
	}
	room, err := h.rooms.CreatePrivate(c.UserContext(), middlewares.MemberID(c), recipient)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(room)
}

// CreateGroup create a group room
// @Summary Create group chat
// @Tags Rooms
// @Accept json
// @Produce json
// @Param request body CreateGroupRequest true "group"
// @Success 201 {object} domain.Room
// @Failure 400 {object} ErrorResponse
// @Router /chat/group [post]
func (h *ChatHandler) CreateGroup(c *fiber.Ctx) error {
	var req CreateGroupRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}
	room, err := h.rooms.CreateGroup(c.UserContext(), app.GroupInput{
		CreatorID:       middlewares.MemberID(c),
		Name:            req.Name,
		Description:     req.Description,
		MemberIDs:       req.MemberIDs,
		MaxParticipants: req.MaxParticipants,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(room)
}

// CreateOrgRoom create a room for one organization
// @Summary Create organization chat
// @Tags Rooms
// @Accept json
// @Produce json
// @Param request body CreateOrgRequest true "organization room"
// @Success 201 {object} domain.Room
// @Router /chat/org [post]
func (h *ChatHandler) CreateOrgRoom(c *fiber.Ctx) error {
	var req CreateOrgRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}
	room, err := h.rooms.CreateOrgRoom(c.UserContext(), app.GroupInput{
		CreatorID: middlewares.MemberID(c),
		OrgID:     req.OrgID,
		Name:      req.Name,
		MemberIDs: req.MemberIDs,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(room)
}

// CreateInquiry ask the owner of an item
// @Summary Create item inquiry
// @Tags Inquiries
// @Accept json
// @Produce json
// @Param request body CreateInquiryRequest true "inquiry"
// @Success 201 {object} domain.Room
// @Failure 404 {object} ErrorResponse
// @Router /chat/inquiries [post]
func (h *ChatHandler) CreateInquiry(c *fiber.Ctx) error {
	var req CreateInquiryRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}
	room, err := h.rooms.CreateItemInquiry(c.UserContext(), middlewares.MemberID(c), req.ItemID, req.Message)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(room)
}

// ListRooms rooms of the caller, most recent activity first
// @Summary List rooms
// @Tags Rooms
// @Produce json
// @Param page query int false "page, from 0"
// @Param size query int false "page size"
// @Success 200 {array} domain.RoomSummary
// @Router /chat/rooms [get]
func (h *ChatHandler) ListRooms(c *fiber.Ctx) error {
	rooms, err := h.rooms.ListRooms(c.UserContext(), middlewares.MemberID(c), pageOf(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(rooms)
}

// GetRoom room with the caller's participation
// @Summary Get room
// @Tags Rooms
// @Produce json
// @Param id path string true "room id"
// @Success 200 {object} domain.RoomSummary
// @Failure 403 {object} ErrorResponse
// @Router /chat/rooms/{id} [get]
func (h *ChatHandler) GetRoom(c *fiber.Ctx) error {
	room, err := h.rooms.GetRoom(c.UserContext(), c.Params("id"), middlewares.MemberID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(room)
}

// UpdateRoom group name and description
// @Summary Update group details
// @Tags Rooms
// @Accept json
// @Produce json
// @Param id path string true "room id"
// @Param request body UpdateRoomRequest true "details"
// @Success 200 {object} domain.Room
// @Router /chat/rooms/{id} [put]
func (h *ChatHandler) UpdateRoom(c *fiber.Ctx) error {
	var req UpdateRoomRequest
	if err := h.parseRoomBody(c, &req); err != nil {
		return respondError(c, err)
	}
	room, err := h.rooms.UpdateGroupDetails(c.UserContext(), c.Params("id"), middlewares.MemberID(c), req.Name, req.Description)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(room)
}

// ListParticipants active participants of a room
// @Summary List participants
// @Tags Rooms
// @Produce json
// @Param id path string true "room id"
// @Success 200 {array} domain.Participant
// @Router /chat/rooms/{id}/participants [get]
func (h *ChatHandler) ListParticipants(c *fiber.Ctx) error {
	ps, err := h.rooms.ListParticipants(c.UserContext(), c.Params("id"), middlewares.MemberID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(ps)
}

// AddParticipants add users to a group
// @Summary Add participants
// @Tags Rooms
// @Accept json
// @Produce json
// @Param id path string true "room id"
// @Param request body AddParticipantsRequest true "users"
// @Success 200 {array} domain.Participant
// @Failure 409 {object} ErrorResponse
// @Router /chat/rooms/{id}/participants [post]
func (h *ChatHandler) AddParticipants(c *fiber.Ctx) error {
	var req AddParticipantsRequest
	if err := h.parseRoomBody(c, &req); err != nil {
		return respondError(c, err)
	}
	added, err := h.rooms.AddParticipants(c.UserContext(), c.Params("id"), middlewares.MemberID(c), req.UserIDs)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(added)
}

// RemoveParticipant remove a user from a group
// @Summary Remove participant
// @Tags Rooms
// @Param id path string true "room id"
// @Param userId path string true "user id"
// @Success 204
// @Router /chat/rooms/{id}/participants/{userId} [delete]
func (h *ChatHandler) RemoveParticipant(c *fiber.Ctx) error {
	if err := h.rooms.RemoveParticipant(c.UserContext(), c.Params("id"), middlewares.MemberID(c), c.Params("userId")); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// UpdateParticipantRole change a participant's role
// @Summary Update participant role
// @Tags Rooms
// @Accept json
// @Param id path string true "room id"
// @Param userId path string true "user id"
// @Param request body UpdateRoleRequest true "role"
// @Success 204
// @Router /chat/rooms/{id}/participants/{userId}/role [put]
func (h *ChatHandler) UpdateParticipantRole(c *fiber.Ctx) error {
	var req UpdateRoleRequest
	if err := h.parseRoomBody(c, &req); err != nil {
		return respondError(c, err)
	}
	err := h.rooms.UpdateParticipantRole(c.UserContext(), c.Params("id"), middlewares.MemberID(c), c.Params("userId"), domain.Role(req.Role))
	if err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// LeaveRoom leave a room
// @Summary Leave room
// @Tags Rooms
// @Param id path string true "room id"
// @Success 204
// @Router /chat/rooms/{id}/leave [post]
func (h *ChatHandler) LeaveRoom(c *fiber.Ctx) error {
	if err := h.rooms.LeaveRoom(c.UserContext(), c.Params("id"), middlewares.MemberID(c)); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// SendMessage send a message to a room
// @Summary Send message
// @Tags Messages
// @Accept json
// @Produce json
// @Param id path string true "room id"
// @Param request body SendMessageRequest true "message"
// @Success 201 {object} domain.Message
// @Failure 429 {object} ErrorResponse
// @Router /chat/rooms/{id}/messages [post]
func (h *ChatHandler) SendMessage(c *fiber.Ctx) error {
	var req SendMessageRequest
	if err := h.parseRoomBody(c, &req); err != nil {
		return respondError(c, err)
	}
	in := domain.SendMessage{
		RoomID:          c.Params("id"),
		SenderID:        middlewares.MemberID(c),
		ClientMessageID: req.ClientMessageID,
		Content:         req.Content,
		ReplyToID:       req.ReplyToID,
	}
	if req.Attachment != nil {
		in.Attachment = &domain.Attachment{
			ObjectKey: req.Attachment.ObjectKey,
			Name:      req.Attachment.Name,
			Size:      req.Attachment.Size,
			MimeType:  req.Attachment.MimeType,
		}
	}
	msg, err := h.messages.Send(c.UserContext(), in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

// History messages of a room, newest first
// @Summary Message history
// @Tags Messages
// @Produce json
// @Param id path string true "room id"
// @Param page query int false "page, from 0"
// @Param size query int false "page size"
// @Success 200 {array} domain.Message
// @Router /chat/rooms/{id}/messages [get]
func (h *ChatHandler) History(c *fiber.Ctx) error {
	msgs, err := h.messages.History(c.UserContext(), c.Params("id"), middlewares.MemberID(c), pageOf(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(msgs)
}

// SearchRoom search messages of one room
// @Summary Search in room
// @Tags Messages
// @Produce json
// @Param id path string true "room id"
// @Param q query string true "text"
// @Success 200 {array} domain.Message
// @Router /chat/rooms/{id}/messages/search [get]
func (h *ChatHandler) SearchRoom(c *fiber.Ctx) error {
	msgs, err := h.messages.SearchInRoom(c.UserContext(), c.Params("id"), middlewares.MemberID(c), c.Query("q"), pageOf(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(msgs)
}

// SearchAll search messages of every room of the caller
// @Summary Search all rooms
// @Tags Messages
// @Produce json
// @Param q query string true "text"
// @Success 200 {array} domain.Message
// @Router /chat/messages/search [get]
func (h *ChatHandler) SearchAll(c *fiber.Ctx) error {
	msgs, err := h.messages.SearchGlobal(c.UserContext(), middlewares.MemberID(c), c.Query("q"), pageOf(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(msgs)
}

// EditMessage edit the caller's message
// @Summary Edit message
// @Tags Messages
// @Accept json
// @Produce json
// @Param id path string true "message id"
// @Param request body EditMessageRequest true "content"
// @Success 200 {object} domain.Message
// @Router /chat/messages/{id} [put]
func (h *ChatHandler) EditMessage(c *fiber.Ctx) error {
	var req EditMessageRequest
	if err := h.parseMessageBody(c, &req); err != nil {
		return respondError(c, err)
	}
	msg, err := h.messages.Edit(c.UserContext(), c.Params("id"), middlewares.MemberID(c), req.NewContent)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(msg)
}

// DeleteMessage delete a message
// @Summary Delete message
// @Tags Messages
// @Param id path string true "message id"
// @Success 204
// @Router /chat/messages/{id} [delete]
func (h *ChatHandler) DeleteMessage(c *fiber.Ctx) error {
	if err := h.messages.Delete(c.UserContext(), c.Params("id"), middlewares.MemberID(c)); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// MarkRead advance the caller's read watermark
// @Summary Mark messages read
// @Tags Messages
// @Accept json
// @Produce json
// @Param id path string true "room id"
// @Param request body MarkReadRequest true "messages"
// @Success 200 {object} app.ReadResult
// @Router /chat/rooms/{id}/messages/read [post]
func (h *ChatHandler) MarkRead(c *fiber.Ctx) error {
	var req MarkReadRequest
	if err := h.parseRoomBody(c, &req); err != nil {
		return respondError(c, err)
	}
	res, err := h.messages.MarkRead(c.UserContext(), c.Params("id"), middlewares.MemberID(c), req.MessageIDs)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(res)
}

// UnreadCount total unread of the caller
// @Summary Unread total
// @Tags Messages
// @Produce json
// @Success 200 {object} map[string]int64
// @Router /chat/unread-count [get]
func (h *ChatHandler) UnreadCount(c *fiber.Ctx) error {
	summary, err := h.messages.UnreadCount(c.UserContext(), middlewares.MemberID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"total": summary.Total})
}

// UnreadByRoom unread of the caller per room
// @Summary Unread by room
// @Tags Messages
// @Produce json
// @Success 200 {object} app.UnreadSummary
// @Router /chat/rooms/unread-count [get]
func (h *ChatHandler) UnreadByRoom(c *fiber.Ctx) error {
	summary, err := h.messages.UnreadCount(c.UserContext(), middlewares.MemberID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(summary)
}

// Typing start or stop typing
// @Summary Typing indicator
// @Tags Messages
// @Accept json
// @Param id path string true "room id"
// @Param request body TypingRequest true "typing"
// @Success 204
// @Router /chat/rooms/{id}/typing [post]
func (h *ChatHandler) Typing(c *fiber.Ctx) error {
	var req TypingRequest
	if err := h.parseRoomBody(c, &req); err != nil {
		return respondError(c, err)
	}
	if err := h.messages.SetTyping(c.UserContext(), c.Params("id"), middlewares.MemberID(c), req.IsTyping); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// AttachmentURL presigned upload url for an attachment
// @Summary Attachment upload url
// @Tags Messages
// @Accept json
// @Produce json
// @Param id path string true "room id"
// @Param request body AttachmentURLRequest true "file"
// @Success 200 {object} app.AttachmentUpload
// @Router /chat/rooms/{id}/attachments [post]
func (h *ChatHandler) AttachmentURL(c *fiber.Ctx) error {
	var req AttachmentURLRequest
	if err := h.parseRoomBody(c, &req); err != nil {
		return respondError(c, err)
	}
	up, err := h.messages.AttachmentUploadURL(c.UserContext(), c.Params("id"), middlewares.MemberID(c), req.FileName)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(up)
}

// CreateInviteLink issue an invite link for a group
// @Summary Create invite link
// @Tags Invitations
// @Accept json
// @Produce json
// @Param id path string true "room id"
// @Param request body InviteLinkRequest false "options"
// @Success 201 {object} InviteLinkResponse
// @Router /chat/rooms/{id}/invite-link [post]
func (h *ChatHandler) CreateInviteLink(c *fiber.Ctx) error {
	var req InviteLinkRequest
	if len(c.Body()) > 0 {
		if err := h.parseRoomBody(c, &req); err != nil {
			return respondError(c, err)
		}
	}
	link, err := h.rooms.CreateInviteLink(c.UserContext(), c.Params("id"), middlewares.MemberID(c),
		time.Duration(req.TTLSeconds)*time.Second, req.Passcode)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(InviteLinkResponse{Token: link.Token, RoomID: link.RoomID, ExpiresAt: link.ExpiresAt})
}

// GetInvite preview an invite link
// @Summary Invite preview
// @Tags Invitations
// @Produce json
// @Param token path string true "invite token"
// @Success 200 {object} app.InvitePreview
// @Router /chat/invites/{token} [get]
func (h *ChatHandler) GetInvite(c *fiber.Ctx) error {
	preview, err := h.rooms.GetInvite(c.UserContext(), c.Params("token"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(preview)
}

// JoinInvite join a room through an invite link
// @Summary Join by invite link
// @Tags Invitations
// @Accept json
// @Produce json
// @Param token path string true "invite token"
// @Param request body JoinInviteRequest false "passcode"
// @Success 200 {object} domain.Room
// @Router /chat/invites/{token}/join [post]
func (h *ChatHandler) JoinInvite(c *fiber.Ctx) error {
	var req JoinInviteRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return respondError(c, err)
		}
	}
	room, err := h.rooms.RedeemInvite(c.UserContext(), c.Params("token"), middlewares.MemberID(c), req.Passcode)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(room)
}

// InviteUser invite one user into a group
// @Summary Invite user
// @Tags Invitations
// @Accept json
// @Produce json
// @Param id path string true "room id"
// @Param request body InviteUserRequest true "invitee"
// @Success 201 {object} domain.Invitation
// @Router /chat/rooms/{id}/invitations [post]
func (h *ChatHandler) InviteUser(c *fiber.Ctx) error {
	var req InviteUserRequest
	if err := h.parseRoomBody(c, &req); err != nil {
		return respondError(c, err)
	}
	inv, err := h.rooms.InviteToGroup(c.UserContext(), c.Params("id"), middlewares.MemberID(c), req.UserID)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(inv)
}

// PendingInvitations invitations waiting for the caller
// @Summary Pending invitations
// @Tags Invitations
// @Produce json
// @Success 200 {array} domain.Invitation
// @Router /chat/invitations [get]
func (h *ChatHandler) PendingInvitations(c *fiber.Ctx) error {
	invs, err := h.rooms.PendingInvitations(c.UserContext(), middlewares.MemberID(c))
	if err != nil {
		return respondError(c, err)
	}
	if invs == nil {
		invs = []domain.Invitation{}
	}
	return c.JSON(invs)
}

// AcceptInvitation accept a pending invitation
// @Summary Accept invitation
// @Tags Invitations
// @Produce json
// @Param id path string true "invitation id"
// @Success 200 {object} domain.Room
// @Router /chat/invitations/{id}/accept [post]
func (h *ChatHandler) AcceptInvitation(c *fiber.Ctx) error {
	room, err := h.rooms.AcceptInvitation(c.UserContext(), c.Params("id"), middlewares.MemberID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(room)
}

// RejectInvitation reject a pending invitation
// @Summary Reject invitation
// @Tags Invitations
// @Param id path string true "invitation id"
// @Success 204
// @Router /chat/invitations/{id}/reject [post]
func (h *ChatHandler) RejectInvitation(c *fiber.Ctx) error {
	if err := h.rooms.RejectInvitation(c.UserContext(), c.Params("id"), middlewares.MemberID(c)); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// UpdateInquiryStatus move an inquiry forward
// @Summary Update inquiry status
// @Tags Inquiries
// @Accept json
// @Produce json
// @Param id path string true "room id"
// @Param request body InquiryStatusRequest true "status"
// @Success 200 {object} domain.Room
// @Router /chat/inquiries/{id}/status [put]
func (h *ChatHandler) UpdateInquiryStatus(c *fiber.Ctx) error {
	var req InquiryStatusRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}
	room, err := h.rooms.UpdateInquiryStatus(c.UserContext(), c.Params("id"), middlewares.MemberID(c), domain.InquiryStatus(req.Status))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(room)
}

// UpdateInquiryPriority set inquiry priority
// @Summary Update inquiry priority
// @Tags Inquiries
// @Accept json
// @Produce json
// @Param id path string true "room id"
// @Param request body InquiryPriorityRequest true "priority"
// @Success 200 {object} domain.Room
// @Router /chat/inquiries/{id}/priority [put]
func (h *ChatHandler) UpdateInquiryPriority(c *fiber.Ctx) error {
	var req InquiryPriorityRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}
	room, err := h.rooms.UpdateInquiryPriority(c.UserContext(), c.Params("id"), middlewares.MemberID(c), domain.Priority(req.Priority))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(room)
}

// DealerInquiries inquiries about the caller's items
// @Summary List inquiries
// @Tags Inquiries
// @Produce json
// @Param status query string false "filter by status"
// @Success 200 {array} domain.Room
// @Router /chat/inquiries [get]
func (h *ChatHandler) DealerInquiries(c *fiber.Ctx) error {
	var status *domain.InquiryStatus
	if s := c.Query("status"); s != "" {
		st := domain.InquiryStatus(s)
		status = &st
	}
	rooms, err := h.rooms.DealerInquiries(c.UserContext(), middlewares.MemberID(c), status)
	if err != nil {
		return respondError(c, err)
	}
	if rooms == nil {
		rooms = []domain.Room{}
	}
	return c.JSON(rooms)
}

// PresenceStats live connection counters of this instance
// @Summary Presence stats
// @Tags Presence
// @Produce json
// @Success 200 {object} presence.Stats
// @Router /chat/presence/stats [get]
func (h *ChatHandler) PresenceStats(c *fiber.Ctx) error {
	return c.JSON(h.registry.Stats())
}

// DeprecatedSend v1 send without a room path
// @Summary Deprecated send
// @Tags Messages
// @Failure 410 {object} ErrorResponse
// @Router /chat/messages [post]
func (h *ChatHandler) DeprecatedSend(c *fiber.Ctx) error {
	return c.Status(fiber.StatusGone).JSON(ErrorResponse{Error: "use POST /chat/rooms/{id}/messages"})
}
