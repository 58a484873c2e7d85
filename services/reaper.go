package services

import (
	"log/slog"
	"time"

	"parley/domain"
	"parley/observability"
	"parley/repositories"
)

// DefaultRetentionWindow is how long a disappearing message survives.
const DefaultRetentionWindow = 5 * time.Hour

// Reaper purges expired disappearing messages from a conversation. It runs
// synchronously on the read path, before a conversation's history is
// served, and is also invoked by the periodic sweep worker. The purge is
// destructive and idempotent; a failed purge never fails the read it was
// guarding.
type Reaper struct {
	log      *slog.Logger
	messages repositories.IMessageRepository
	index    repositories.ISearchIndex
	monitor  *observability.Monitor
	window   time.Duration
	now      func() time.Time
}

func NewReaper(log *slog.Logger, messages repositories.IMessageRepository,
	index repositories.ISearchIndex, monitor *observability.Monitor,
	window time.Duration) *Reaper {
	return &Reaper{
		log:      log,
		messages: messages,
		index:    index,
		monitor:  monitor,
		window:   window,
		now:      time.Now,
	}
}

// Purge deletes every disappearing message of the conversation created at
// or before now minus the retention window. Errors are logged and
// swallowed; the caller's read proceeds against whatever state is visible.
func (r *Reaper) Purge(conversation domain.ConversationID) {
	cutoff := r.now().UTC().Add(-r.window)
	ids, err := r.messages.DeleteExpired(conversation, cutoff)
	if err != nil {
		r.log.Warn("Reaper purge failed, read proceeds",
			"conversation", conversation, "error", err)
		return
	}
	if len(ids) == 0 {
		return
	}
	for _, id := range ids {
		if err := r.index.Remove(id); err != nil {
			r.log.Warn("Failed to remove reaped message from index",
				"message", id, "error", err)
		}
	}
	r.monitor.MessagesReaped(len(ids))
	r.log.Debug("Purged expired disappearing messages",
		"conversation", conversation, "count", len(ids))
}
