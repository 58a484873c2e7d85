// Messages are immutable once created and validated by the domain.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message is a single conversation entry. Disappearing is copied from the
// conversation's mode at creation time and never re-evaluated, so toggling
// the mode does not retroactively affect already-sent messages. Content and
// FileRef may not both be empty.
type Message struct {
	ID             uuid.UUID
	ConversationID ConversationID
	SenderID       string
	Content        *string
	FileRef        *string
	Disappearing   bool
	CreatedAt      time.Time
}

// HasBody reports whether the message carries text or a file reference.
func (m Message) HasBody() bool {
	return (m.Content != nil && *m.Content != "") || (m.FileRef != nil && *m.FileRef != "")
}

// Expired reports whether a disappearing message has outlived the retention
// window at the given instant. The boundary is inclusive: a message created
// exactly window ago is expired.
func (m Message) Expired(now time.Time, window time.Duration) bool {
	return m.Disappearing && !m.CreatedAt.After(now.Add(-window))
}

// MessageView is the client-facing shape: the message plus sender profile
// fields and the sender's membership removal state, which marks messages
// shown as "removed" to members who joined after the sender left.
type MessageView struct {
	ID            uuid.UUID `json:"id"`
	UserID        string    `json:"userId"`
	SenderName    string    `json:"senderName"`
	SenderPicture *string   `json:"senderPicture"`
	Removed       bool      `json:"removed"`
	Content       *string   `json:"content"`
	FileRef       *string   `json:"fileLink"`
	CreatedAt     time.Time `json:"createdAt"`
}
