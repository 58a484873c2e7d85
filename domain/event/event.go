// Package event defines the tagged events fanned out to live connections.
// The wire name of each event is stable across the session regardless of
// which device receives it.
package event

import (
	"time"

	"github.com/google/uuid"

	"parley/domain"
)

// Event is anything deliverable to a subscribed connection. ConversationID
// keys the delivery group; Name tags the payload on the wire.
type Event interface {
	ConversationID() domain.ConversationID
	Name() string
}

// MessageCreated fires after a message send commits. Members who joined
// later only see historical copies via the read path, never via this event.
type MessageCreated struct {
	Conversation domain.ConversationID `json:"-"`
	Message      domain.MessageView    `json:"message"`
}

func (e MessageCreated) ConversationID() domain.ConversationID { return e.Conversation }
func (e MessageCreated) Name() string                          { return "message:transfer" }

// MessageDeleted fires after a sender deletes one of their own messages.
type MessageDeleted struct {
	Conversation domain.ConversationID `json:"-"`
	MessageID    uuid.UUID             `json:"messageId"`
}

func (e MessageDeleted) ConversationID() domain.ConversationID { return e.Conversation }
func (e MessageDeleted) Name() string                          { return "message:delete" }

// ConversationCreated carries the full snapshot a joining member needs.
// For direct conversations the snapshot is personalized per recipient
// before delivery (name and picture of the counterpart).
type ConversationCreated struct {
	Conversation domain.ConversationID   `json:"-"`
	Snapshot     domain.ConversationView `json:"conversation"`
}

func (e ConversationCreated) ConversationID() domain.ConversationID { return e.Conversation }
func (e ConversationCreated) Name() string                          { return "group:join" }

type ModeChanged struct {
	Conversation domain.ConversationID `json:"-"`
	Disappearing bool                  `json:"disappearing"`
}

func (e ModeChanged) ConversationID() domain.ConversationID { return e.Conversation }
func (e ModeChanged) Name() string                          { return "group:mode" }

type NameChanged struct {
	Conversation domain.ConversationID `json:"-"`
	NewName      string                `json:"name"`
}

func (e NameChanged) ConversationID() domain.ConversationID { return e.Conversation }
func (e NameChanged) Name() string                          { return "group:name" }

type PictureChanged struct {
	Conversation domain.ConversationID `json:"-"`
	Picture      string                `json:"picture"`
}

func (e PictureChanged) ConversationID() domain.ConversationID { return e.Conversation }
func (e PictureChanged) Name() string                          { return "group:picture_change" }

type MemberAdded struct {
	Conversation domain.ConversationID `json:"-"`
	Member       domain.MemberView     `json:"member"`
}

func (e MemberAdded) ConversationID() domain.ConversationID { return e.Conversation }
func (e MemberAdded) Name() string                          { return "member:add" }

type MemberRemoved struct {
	Conversation domain.ConversationID `json:"-"`
	UserID       string                `json:"userId"`
}

func (e MemberRemoved) ConversationID() domain.ConversationID { return e.Conversation }
func (e MemberRemoved) Name() string                          { return "member:remove" }

// PresenceChanged is not conversation-scoped; it is addressed to the direct
// peers of the user crossing an online/offline edge and delivered per user.
type PresenceChanged struct {
	UserID     string    `json:"userId"`
	Online     bool      `json:"online"`
	LastOnline time.Time `json:"lastOnline"`
}

func (e PresenceChanged) ConversationID() domain.ConversationID { return "" }
func (e PresenceChanged) Name() string                          { return "status:update" }
