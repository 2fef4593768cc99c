package app

import (
	"strings"
	"sync"
	"testing"
	"time"

	"chat_presence_service/internal/chat/domain"
	errprocess "chat_presence_service/pkg/err"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreatePrivate_Idempotent(t *testing.T) {
	h := newHarness(t, 20)

	r1, err := h.roomUC.CreatePrivate(h.ctx, "alice", "bob")
	require.NoError(t, err)
	r2, err := h.roomUC.CreatePrivate(h.ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, r1.ID, r2.ID, "either order finds the same room")

	_, err = h.roomUC.CreatePrivate(h.ctx, "alice", "alice")
	assert.True(t, errprocess.IsKind(err, errprocess.InvalidArgument))
	_, err = h.roomUC.CreatePrivate(h.ctx, "alice", "")
	assert.True(t, errprocess.IsKind(err, errprocess.InvalidArgument))
}

func TestCreatePrivate_Concurrent(t *testing.T) {
	h := newHarness(t, 20)

	ids := make([]string, 10)
	var wg sync.WaitGroup
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := "alice", "bob"
			if i%2 == 1 {
				a, b = b, a
			}
			room, err := h.roomUC.CreatePrivate(h.ctx, a, b)
			if assert.NoError(t, err) {
				ids[i] = room.ID
			}
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestCreatePrivate_ReactivatesAfterLeave(t *testing.T) {
	h := newHarness(t, 20)
	room, err := h.roomUC.CreatePrivate(h.ctx, "alice", "bob")
	require.NoError(t, err)
	h.send(t, room.ID, "alice", "bye")

	require.NoError(t, h.roomUC.LeaveRoom(h.ctx, room.ID, "bob"))
	_, err = h.msgUC.Send(h.ctx, domain.SendMessage{RoomID: room.ID, SenderID: "alice", ClientMessageID: "x", Content: "hello?"})
	assert.True(t, errprocess.IsKind(err, errprocess.Forbidden), "closed room accepts nothing")

	again, err := h.roomUC.CreatePrivate(h.ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, room.ID, again.ID)
	assert.True(t, again.Active)

	history, err := h.msgUC.History(h.ctx, room.ID, "bob", domain.Page{})
	require.NoError(t, err)
	assert.NotEmpty(t, history, "history survives")
	h.send(t, room.ID, "bob", "back")
}

func TestCreateGroup_Validation(t *testing.T) {
	h := newHarness(t, 20)
	two := 2

	cases := []struct {
		name string
		in   GroupInput
	}{
		{"short name", GroupInput{CreatorID: "alice", Name: "go"}},
		{"long name", GroupInput{CreatorID: "alice", Name: strings.Repeat("n", 51)}},
		{"long description", GroupInput{CreatorID: "alice", Name: "Go Club", Description: strings.Repeat("d", 501)}},
		{"over cap", GroupInput{CreatorID: "alice", Name: "Go Club", MemberIDs: []string{"bob", "carol"}, MaxParticipants: &two}},
		{"no creator", GroupInput{Name: "Go Club"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.roomUC.CreateGroup(h.ctx, tc.in)
			assert.True(t, errprocess.IsKind(err, errprocess.InvalidArgument), "got %v", err)
		})
	}

	_, err := h.roomUC.CreateOrgRoom(h.ctx, GroupInput{CreatorID: "alice", Name: "Sales"})
	assert.True(t, errprocess.IsKind(err, errprocess.InvalidArgument), "org id required")

	room, err := h.roomUC.CreateGroup(h.ctx, GroupInput{CreatorID: "alice", Name: "Go Club", MemberIDs: []string{"bob", "bob", "alice", " "}})
	require.NoError(t, err)
	ps, err := h.roomUC.ListParticipants(h.ctx, room.ID, "alice")
	require.NoError(t, err)
	require.Len(t, ps, 2)
	assert.Equal(t, domain.RoleAdmin, ps[0].Role)
	assert.Equal(t, "bob", ps[1].UserID)
	assert.Equal(t, domain.RoleMember, ps[1].Role)
}

func TestAddParticipants(t *testing.T) {
	h := newHarness(t, 20)
	three := 3
	room, err := h.roomUC.CreateGroup(h.ctx, GroupInput{CreatorID: "alice", Name: "Go Club", MemberIDs: []string{"bob"}, MaxParticipants: &three})
	require.NoError(t, err)

	_, err = h.roomUC.AddParticipants(h.ctx, room.ID, "bob", []string{"carol"})
	assert.True(t, errprocess.IsKind(err, errprocess.Forbidden), "members cannot add")

	_, err = h.roomUC.AddParticipants(h.ctx, room.ID, "alice", []string{"carol", "dave"})
	assert.True(t, errprocess.IsKind(err, errprocess.Conflict), "cap is all or nothing")
	_, err = h.rooms.FindParticipant(h.ctx, room.ID, "carol")
	assert.True(t, errprocess.IsKind(err, errprocess.NotFound))

	added, err := h.roomUC.AddParticipants(h.ctx, room.ID, "alice", []string{"carol"})
	require.NoError(t, err)
	require.Len(t, added, 1)

	history, err := h.msgUC.History(h.ctx, room.ID, "carol", domain.Page{})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.MessageSystem, history[0].Type)
	assert.Equal(t, "carol joined the chat", history[0].Content)

	private, err := h.roomUC.CreatePrivate(h.ctx, "alice", "bob")
	require.NoError(t, err)
	_, err = h.roomUC.AddParticipants(h.ctx, private.ID, "alice", []string{"carol"})
	assert.True(t, errprocess.IsKind(err, errprocess.InvalidArgument))
}

func TestRemoveParticipant_Roles(t *testing.T) {
	h := newHarness(t, 20)
	room := h.group(t, "alice", "bob", "carol")
	require.NoError(t, h.roomUC.UpdateParticipantRole(h.ctx, room.ID, "alice", "bob", domain.RoleModerator))

	err := h.roomUC.UpdateParticipantRole(h.ctx, room.ID, "bob", "carol", domain.RoleModerator)
	assert.True(t, errprocess.IsKind(err, errprocess.Forbidden), "moderators cannot change roles")

	err = h.roomUC.RemoveParticipant(h.ctx, room.ID, "bob", "alice")
	assert.True(t, errprocess.IsKind(err, errprocess.Forbidden), "moderator cannot remove an admin")

	require.NoError(t, h.roomUC.RemoveParticipant(h.ctx, room.ID, "bob", "carol"))
	err = h.roomUC.RemoveParticipant(h.ctx, room.ID, "bob", "carol")
	assert.True(t, errprocess.IsKind(err, errprocess.NotFound))

	_, err = h.msgUC.History(h.ctx, room.ID, "carol", domain.Page{})
	assert.True(t, errprocess.IsKind(err, errprocess.Forbidden), "removed users lose access")

	history, err := h.msgUC.History(h.ctx, room.ID, "alice", domain.Page{})
	require.NoError(t, err)
	assert.Equal(t, "carol left the chat", history[0].Content)
}

func TestLeaveRoom_LastParticipantClosesGroup(t *testing.T) {
	h := newHarness(t, 20)
	room := h.group(t, "alice", "bob")

	require.NoError(t, h.roomUC.LeaveRoom(h.ctx, room.ID, "bob"))
	require.NoError(t, h.roomUC.LeaveRoom(h.ctx, room.ID, "alice"))

	stored, err := h.rooms.FindByID(h.ctx, room.ID)
	require.NoError(t, err)
	assert.False(t, stored.Active)

	rooms, err := h.roomUC.ListRooms(h.ctx, "alice", domain.Page{})
	require.NoError(t, err)
	assert.Empty(t, rooms)
}

func TestUpdateGroupDetails(t *testing.T) {
	h := newHarness(t, 20)
	room := h.group(t, "alice", "bob")
	name := "Gophers"

	_, err := h.roomUC.UpdateGroupDetails(h.ctx, room.ID, "bob", &name, nil)
	assert.True(t, errprocess.IsKind(err, errprocess.Forbidden))

	updated, err := h.roomUC.UpdateGroupDetails(h.ctx, room.ID, "alice", &name, nil)
	require.NoError(t, err)
	assert.Equal(t, "Gophers", updated.Name)

	short := "x"
	_, err = h.roomUC.UpdateGroupDetails(h.ctx, room.ID, "alice", &short, nil)
	assert.True(t, errprocess.IsKind(err, errprocess.InvalidArgument))
}

func TestInviteLink(t *testing.T) {
	h := newHarness(t, 20)
	room := h.group(t, "alice", "bob")

	_, err := h.roomUC.CreateInviteLink(h.ctx, room.ID, "bob", 0, "")
	assert.True(t, errprocess.IsKind(err, errprocess.Forbidden))

	link, err := h.roomUC.CreateInviteLink(h.ctx, room.ID, "alice", 0, "s3cret")
	require.NoError(t, err)
	require.NotNil(t, link.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), *link.ExpiresAt, time.Minute)

	preview, err := h.roomUC.GetInvite(h.ctx, link.Token)
	require.NoError(t, err)
	assert.Equal(t, room.ID, preview.RoomID)
	assert.True(t, preview.RequiresPasscode)

	_, err = h.roomUC.RedeemInvite(h.ctx, link.Token, "carol", "wrong")
	assert.True(t, errprocess.IsKind(err, errprocess.Forbidden))

	joined, err := h.roomUC.RedeemInvite(h.ctx, link.Token, "carol", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, room.ID, joined.ID)
	_, err = h.roomUC.RedeemInvite(h.ctx, link.Token, "carol", "s3cret")
	require.NoError(t, err, "redeeming twice is fine")

	ps, err := h.roomUC.ListParticipants(h.ctx, room.ID, "carol")
	require.NoError(t, err)
	assert.Len(t, ps, 3)

	_, err = h.roomUC.GetInvite(h.ctx, "not-a-token")
	assert.True(t, errprocess.IsKind(err, errprocess.InvalidArgument))

	h.roomUC.now = func() time.Time { return time.Now().UTC().Add(25 * time.Hour) }
	_, err = h.roomUC.RedeemInvite(h.ctx, link.Token, "dave", "s3cret")
	assert.True(t, errprocess.IsKind(err, errprocess.InvalidArgument), "expired")
}

func TestDirectInvitation(t *testing.T) {
	h := newHarness(t, 20)
	room := h.group(t, "alice", "bob")

	_, err := h.roomUC.InviteToGroup(h.ctx, room.ID, "alice", "bob")
	assert.True(t, errprocess.IsKind(err, errprocess.Conflict), "already a participant")

	inv, err := h.roomUC.InviteToGroup(h.ctx, room.ID, "alice", "carol")
	require.NoError(t, err)
	_, err = h.roomUC.InviteToGroup(h.ctx, room.ID, "alice", "carol")
	assert.True(t, errprocess.IsKind(err, errprocess.Conflict), "already pending")

	pending, err := h.roomUC.PendingInvitations(h.ctx, "carol")
	require.NoError(t, err)
	require.Len(t, pending, 1)

	_, err = h.roomUC.AcceptInvitation(h.ctx, inv.ID, "dave")
	assert.True(t, errprocess.IsKind(err, errprocess.Forbidden))

	_, err = h.roomUC.AcceptInvitation(h.ctx, inv.ID, "carol")
	require.NoError(t, err)
	p, err := h.rooms.FindParticipant(h.ctx, room.ID, "carol")
	require.NoError(t, err)
	assert.True(t, p.Active)

	err = h.roomUC.RejectInvitation(h.ctx, inv.ID, "carol")
	assert.True(t, errprocess.IsKind(err, errprocess.Conflict), "already answered")

	inv2, err := h.roomUC.InviteToGroup(h.ctx, room.ID, "alice", "erin")
	require.NoError(t, err)
	require.NoError(t, h.roomUC.RejectInvitation(h.ctx, inv2.ID, "erin"))
	_, err = h.rooms.FindParticipant(h.ctx, room.ID, "erin")
	assert.True(t, errprocess.IsKind(err, errprocess.NotFound))
}

func TestItemInquiry(t *testing.T) {
	h := newHarness(t, 20)
	h.items.Put(domain.Item{ID: "car-1", OwnerID: "dealer", Title: "2019 Civic"})

	room, err := h.roomUC.CreateItemInquiry(h.ctx, "buyer", "car-1", "Is it still available?")
	require.NoError(t, err)
	assert.Equal(t, "2019 Civic", room.Name)
	assert.Equal(t, domain.InquiryNew, *room.InquiryStatus)
	assert.Equal(t, domain.PriorityMedium, *room.Priority)

	again, err := h.roomUC.CreateItemInquiry(h.ctx, "buyer", "car-1", "Is it still available?")
	require.NoError(t, err)
	assert.Equal(t, room.ID, again.ID)

	history, err := h.msgUC.History(h.ctx, room.ID, "dealer", domain.Page{})
	require.NoError(t, err)
	require.Len(t, history, 1, "initial message is not duplicated")
	assert.Equal(t, "buyer", history[0].SenderID)

	_, err = h.roomUC.CreateItemInquiry(h.ctx, "dealer", "car-1", "")
	assert.True(t, errprocess.IsKind(err, errprocess.InvalidArgument), "own item")
	_, err = h.roomUC.CreateItemInquiry(h.ctx, "buyer", "missing", "")
	assert.True(t, errprocess.IsKind(err, errprocess.NotFound))

	_, err = h.roomUC.UpdateInquiryStatus(h.ctx, room.ID, "buyer", domain.InquiryContacted)
	assert.True(t, errprocess.IsKind(err, errprocess.Forbidden), "only the owner")

	updated, err := h.roomUC.UpdateInquiryStatus(h.ctx, room.ID, "dealer", domain.InquiryContacted)
	require.NoError(t, err)
	assert.Equal(t, 10, updated.LeadScore)
	updated, err = h.roomUC.UpdateInquiryStatus(h.ctx, room.ID, "dealer", domain.InquiryContacted)
	require.NoError(t, err)
	assert.Equal(t, 10, updated.LeadScore, "same status is a no-op")
	updated, err = h.roomUC.UpdateInquiryStatus(h.ctx, room.ID, "dealer", domain.InquiryInterested)
	require.NoError(t, err)
	assert.Equal(t, 30, updated.LeadScore)

	_, err = h.roomUC.UpdateInquiryStatus(h.ctx, room.ID, "dealer", domain.InquiryNew)
	assert.True(t, errprocess.IsKind(err, errprocess.InvalidArgument), "no going back")
	_, err = h.roomUC.UpdateInquiryStatus(h.ctx, room.ID, "dealer", "sold")
	assert.True(t, errprocess.IsKind(err, errprocess.InvalidArgument))

	_, err = h.roomUC.UpdateInquiryPriority(h.ctx, room.ID, "dealer", domain.PriorityUrgent)
	require.NoError(t, err)

	interested := domain.InquiryInterested
	list, err := h.roomUC.DealerInquiries(h.ctx, "dealer", &interested)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, domain.PriorityUrgent, *list[0].Priority)

	closed := domain.InquiryClosed
	list, err = h.roomUC.DealerInquiries(h.ctx, "dealer", &closed)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestListRooms_UnreadCounts(t *testing.T) {
	h := newHarness(t, 20)
	r1, err := h.roomUC.CreatePrivate(h.ctx, "alice", "bob")
	require.NoError(t, err)
	r2 := h.group(t, "carol", "alice")
	h.send(t, r1.ID, "bob", "one")
	h.send(t, r1.ID, "bob", "two")
	m := h.send(t, r2.ID, "carol", "three")

	_, err = h.msgUC.MarkRead(h.ctx, r2.ID, "alice", []string{m.ID})
	require.NoError(t, err)

	rooms, err := h.roomUC.ListRooms(h.ctx, "alice", domain.Page{})
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	unread := map[string]int64{}
	for _, s := range rooms {
		unread[s.Room.ID] = s.UnreadCount
	}
	assert.Equal(t, int64(2), unread[r1.ID])
	assert.Equal(t, int64(0), unread[r2.ID])

	summary, err := h.roomUC.GetRoom(h.ctx, r1.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(2), summary.UnreadCount)

	_, err = h.roomUC.GetRoom(h.ctx, r1.ID, "carol")
	assert.True(t, errprocess.IsKind(err, errprocess.Forbidden))
}
