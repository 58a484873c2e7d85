package workers

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"parley/domain"
	"parley/repositories"
	"parley/services"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

type noopIndex struct{}

func (noopIndex) Index(domain.Message) error { return nil }
func (noopIndex) Remove(uuid.UUID) error     { return nil }
func (noopIndex) Search(context.Context, domain.ConversationID, string, int) ([]uuid.UUID, error) {
	return nil, nil
}

func TestReaperWorker_SweepCoversConversationsWithModeOff(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	log := slog.Default()
	conversations := repositories.NewConversationRepository(db)
	messages := repositories.NewMessageRepository(db, log, nil)
	now := time.Now().UTC()

	// A conversation whose disappearing mode has since been switched off,
	// still holding a message sent with an expiry.
	cid := domain.ConversationID(uuid.NewString())
	req.NoError(conversations.Create(domain.Conversation{
		ID:           cid,
		Kind:         domain.KindGroup,
		LastActivity: now,
	}))
	content := "vanishing"
	stale := domain.Message{
		ID:             uuid.New(),
		ConversationID: cid,
		SenderID:       "alice",
		Content:        &content,
		Disappearing:   true,
		CreatedAt:      now.Add(-6 * time.Hour),
	}
	req.NoError(messages.Store(stale))

	reaper := services.NewReaper(log, messages, noopIndex{}, nil, services.DefaultRetentionWindow)
	worker := NewReaperWorker(log, conversations, reaper, time.Hour)
	worker.sweep(context.Background())

	_, err := messages.Get(stale.ID)
	req.ErrorIs(err, badger.ErrKeyNotFound)
}
