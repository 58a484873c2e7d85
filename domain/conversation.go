package domain

import "time"

type ConversationID string

type Kind int

const (
	KindDirect Kind = iota
	KindGroup
)

func (k Kind) String() string {
	if k == KindDirect {
		return "direct"
	}
	return "group"
}

// Conversation is a named message container, either a two-party direct
// conversation or an admin-managed group. Direct conversations store no
// name or picture of their own; both are derived per viewer from the
// counterpart. DisappearingMode can only be enabled on groups.
type Conversation struct {
	ID               ConversationID
	Kind             Kind
	Name             *string
	Picture          *string
	LastActivity     time.Time
	DisappearingMode bool
}

func (c Conversation) Direct() bool {
	return c.Kind == KindDirect
}

// MemberView is the member shape handed to clients: identity plus the
// profile fields a conversation roster needs.
type MemberView struct {
	UserID   string  `json:"userId"`
	Username string  `json:"username"`
	Picture  *string `json:"picture"`
	Admin    bool    `json:"admin"`
}

// ConversationView is a full client-facing snapshot: the conversation row,
// its active members and (for reads) its message history. For direct
// conversations Name and Picture are already resolved for the viewer.
type ConversationView struct {
	ID               ConversationID `json:"id"`
	Direct           bool           `json:"dm"`
	Name             *string        `json:"name"`
	Picture          *string        `json:"picture"`
	LastActivity     time.Time      `json:"lastMessage"`
	DisappearingMode bool           `json:"disappearingMode"`
	Members          []MemberView   `json:"members"`
	Messages         []MessageView  `json:"messages"`
}
