package workers

import (
	"context"
	"log/slog"
	"time"

	"parley/repositories"
	"parley/services"
)

// ReaperWorker sweeps every conversation on a fixed interval so that
// disappearing messages in idle conversations still expire. The read path
// purges on demand; this worker catches conversations nobody opens.
type ReaperWorker struct {
	log           *slog.Logger
	conversations repositories.IConversationRepository
	reaper        *services.Reaper
	sweepInterval time.Duration
}

func NewReaperWorker(log *slog.Logger,
	conversations repositories.IConversationRepository,
	reaper *services.Reaper,
	sweepInterval time.Duration) *ReaperWorker {
	return &ReaperWorker{
		log:           log,
		conversations: conversations,
		reaper:        reaper,
		sweepInterval: sweepInterval,
	}
}

func (w *ReaperWorker) Run(ctx context.Context) error {
	w.log.Info("Starting reaper sweep worker", "interval", w.sweepInterval)
	ticker := time.NewTicker(w.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *ReaperWorker) sweep(ctx context.Context) {
	conversations, err := w.conversations.List()
	if err != nil {
		w.log.Error("Failed to list conversations for sweep", "error", err)
		return
	}

	// Every conversation is swept, not only those currently in
	// disappearing mode: toggling the mode off must not exempt messages
	// that were sent with an expiry.
	for _, conversation := range conversations {
		if ctx.Err() != nil {
			return
		}
		w.reaper.Purge(conversation.ID)
	}
}
