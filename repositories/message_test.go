package repositories

import (
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"parley/domain"
)

func strPtr(s string) *string { return &s }

func seedMessage(t *testing.T, repo MessageRepository, cid domain.ConversationID,
	content string, createdAt time.Time, disappearing bool) domain.Message {
	t.Helper()
	message := domain.Message{
		ID:             uuid.New(),
		ConversationID: cid,
		SenderID:       "alice",
		Content:        strPtr(content),
		Disappearing:   disappearing,
		CreatedAt:      createdAt,
	}
	require.NoError(t, repo.Store(message))
	return message
}

func TestMessage_ListChronological(t *testing.T) {
	req := require.New(t)
	repo := NewMessageRepository(openTestDB(t), slog.Default(), nil)

	base := time.Now().UTC()
	// Given messages stored out of order
	seedMessage(t, repo, "conv-1", "second", base.Add(2*time.Second), false)
	seedMessage(t, repo, "conv-1", "first", base.Add(1*time.Second), false)
	seedMessage(t, repo, "conv-1", "third", base.Add(3*time.Second), false)
	seedMessage(t, repo, "other", "elsewhere", base, false)

	messages, err := repo.List("conv-1")
	req.NoError(err)
	req.Len(messages, 3)
	req.Equal("first", *messages[0].Content)
	req.Equal("second", *messages[1].Content)
	req.Equal("third", *messages[2].Content)
}

func TestMessage_ListKeepsMostRecentWithLimit(t *testing.T) {
	req := require.New(t)
	limit := 2
	repo := NewMessageRepository(openTestDB(t), slog.Default(), &limit)

	base := time.Now().UTC()
	seedMessage(t, repo, "conv-1", "oldest", base.Add(1*time.Second), false)
	seedMessage(t, repo, "conv-1", "middle", base.Add(2*time.Second), false)
	seedMessage(t, repo, "conv-1", "newest", base.Add(3*time.Second), false)

	messages, err := repo.List("conv-1")
	req.NoError(err)
	req.Len(messages, 2)
	// The limit drops the oldest, and order stays ascending
	req.Equal("middle", *messages[0].Content)
	req.Equal("newest", *messages[1].Content)
}

func TestMessage_GetAndDeleteThroughIndex(t *testing.T) {
	req := require.New(t)
	repo := NewMessageRepository(openTestDB(t), slog.Default(), nil)

	stored := seedMessage(t, repo, "conv-1", "hello", time.Now().UTC(), false)

	loaded, err := repo.Get(stored.ID)
	req.NoError(err)
	req.Equal("hello", *loaded.Content)

	req.NoError(repo.Delete(stored.ID))
	_, err = repo.Get(stored.ID)
	req.ErrorIs(err, badger.ErrKeyNotFound)
}

func TestMessage_DeleteExpired(t *testing.T) {
	req := require.New(t)
	repo := NewMessageRepository(openTestDB(t), slog.Default(), nil)

	now := time.Now().UTC()
	cutoff := now.Add(-5 * time.Hour)

	// Given a mix of expired, fresh and permanent messages
	expired := seedMessage(t, repo, "conv-1", "expired", now.Add(-6*time.Hour), true)
	boundary := seedMessage(t, repo, "conv-1", "boundary", cutoff, true)
	fresh := seedMessage(t, repo, "conv-1", "fresh", now.Add(-4*time.Hour), true)
	permanent := seedMessage(t, repo, "conv-1", "permanent", now.Add(-6*time.Hour), false)

	ids, err := repo.DeleteExpired("conv-1", cutoff)
	req.NoError(err)

	// Then exactly the disappearing messages at or before the cutoff go
	req.ElementsMatch([]uuid.UUID{expired.ID, boundary.ID}, ids)

	messages, err := repo.List("conv-1")
	req.NoError(err)
	req.Len(messages, 2)
	req.ElementsMatch(
		[]uuid.UUID{fresh.ID, permanent.ID},
		[]uuid.UUID{messages[0].ID, messages[1].ID})

	// And the id index rows went with them
	_, err = repo.Get(expired.ID)
	req.ErrorIs(err, badger.ErrKeyNotFound)

	// Idempotence: a second purge removes nothing
	ids, err = repo.DeleteExpired("conv-1", cutoff)
	req.NoError(err)
	req.Empty(ids)
}
