package domain

import "time"

// MemberStatus makes the soft-delete state machine explicit: a membership is
// either active or removed-but-retained. Removed rows are excluded from the
// active member set and from fan-out, but survive so a re-invite can revive
// them without losing admin state or history association.
type MemberStatus int

const (
	StatusActive MemberStatus = iota
	StatusRemoved
)

func (s MemberStatus) String() string {
	if s == StatusRemoved {
		return "removed"
	}
	return "active"
}

// Membership relates a User to a Conversation. The (UserID, ConversationID)
// pair is unique.
type Membership struct {
	UserID         string
	ConversationID ConversationID
	Admin          bool
	Status         MemberStatus
	LastSeen       time.Time
}

func (m Membership) Active() bool {
	return m.Status == StatusActive
}
