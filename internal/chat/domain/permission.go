package domain

// CanModerate roles allowed to change membership of group rooms
func CanModerate(role Role) bool {
	return role == RoleAdmin || role == RoleModerator
}

// CanSend participant may post into room
func CanSend(room *Room, p *Participant) bool {
	return room != nil && p != nil && room.Active && p.Active
}

// CanView same rule as CanSend, kept separate so the two can diverge
func CanView(room *Room, p *Participant) bool {
	return CanSend(room, p)
}

// CanEdit only the author edits, and not after delete
func CanEdit(msg *Message, userID string) bool {
	return msg.SenderID != "" && msg.SenderID == userID && !msg.Deleted
}

// CanDelete author or a room admin
func CanDelete(msg *Message, userID string, p *Participant) bool {
	if msg.SenderID != "" && msg.SenderID == userID {
		return true
	}
	return p != nil && p.Active && p.Role == RoleAdmin
}
