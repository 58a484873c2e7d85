// Package projection builds local timelines from observed events.
// Handles ordering and deduplication; it never talks back to the server.
package projection

import (
	"sort"

	"github.com/google/uuid"

	"parley/domain"
)

// Timeline is one conversation's history as reconstructed from the event
// stream. Events may arrive duplicated or late; the timeline absorbs both.
type Timeline struct {
	seen     map[uuid.UUID]struct{}
	Messages []domain.MessageView
}

func NewTimeline() *Timeline {
	return &Timeline{seen: make(map[uuid.UUID]struct{})}
}

// Append inserts one message in creation order and reports whether it was
// new. Duplicates are dropped.
func (t *Timeline) Append(m domain.MessageView) bool {
	if _, ok := t.seen[m.ID]; ok {
		return false
	}
	t.seen[m.ID] = struct{}{}

	at := sort.Search(len(t.Messages), func(i int) bool {
		return t.Messages[i].CreatedAt.After(m.CreatedAt)
	})
	t.Messages = append(t.Messages, domain.MessageView{})
	copy(t.Messages[at+1:], t.Messages[at:])
	t.Messages[at] = m
	return true
}

// Drop removes a deleted message and reports whether it was present.
func (t *Timeline) Drop(id uuid.UUID) bool {
	if _, ok := t.seen[id]; !ok {
		return false
	}
	delete(t.seen, id)
	for i, m := range t.Messages {
		if m.ID == id {
			t.Messages = append(t.Messages[:i], t.Messages[i+1:]...)
			break
		}
	}
	return true
}

// Len is the number of live messages.
func (t *Timeline) Len() int {
	return len(t.Messages)
}
