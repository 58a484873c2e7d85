package repositories

import (
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"

	"parley/domain"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMembership_UpsertCreatesActive(t *testing.T) {
	req := require.New(t)
	repo := NewMembershipRepository(openTestDB(t))

	// When a user joins a conversation for the first time
	membership, err := repo.Upsert("alice", "conv-1", true)
	req.NoError(err)

	// Then the row is active, admin, and never seen
	req.True(membership.Active())
	req.True(membership.Admin)
	req.Equal(time.Unix(0, 0).UTC(), membership.LastSeen)
}

func TestMembership_UpsertRevivalKeepsAdmin(t *testing.T) {
	req := require.New(t)
	repo := NewMembershipRepository(openTestDB(t))

	// Given an admin member who was removed
	_, err := repo.Upsert("alice", "conv-1", true)
	req.NoError(err)
	req.NoError(repo.SetStatus("conv-1", "alice", domain.StatusRemoved))

	// When they are re-invited without admin standing
	revived, err := repo.Upsert("alice", "conv-1", false)
	req.NoError(err)

	// Then only the status flips back; the stored admin flag survives
	req.True(revived.Active())
	req.True(revived.Admin)
}

func TestMembership_ActiveMembersExcludesRemoved(t *testing.T) {
	req := require.New(t)
	repo := NewMembershipRepository(openTestDB(t))

	_, err := repo.Upsert("alice", "conv-1", true)
	req.NoError(err)
	_, err = repo.Upsert("bob", "conv-1", false)
	req.NoError(err)
	req.NoError(repo.SetStatus("conv-1", "bob", domain.StatusRemoved))

	members, err := repo.ActiveMembers("conv-1")
	req.NoError(err)
	req.Len(members, 1)
	req.Equal("alice", members[0].UserID)
}

func TestMembership_ActiveConversationsBothKeyOrders(t *testing.T) {
	req := require.New(t)
	repo := NewMembershipRepository(openTestDB(t))

	// Given memberships in two conversations, one later removed
	_, err := repo.Upsert("alice", "conv-1", false)
	req.NoError(err)
	_, err = repo.Upsert("alice", "conv-2", false)
	req.NoError(err)
	req.NoError(repo.SetStatus("conv-2", "alice", domain.StatusRemoved))

	// Then the user-order scan sees the same state as the member-order one
	conversations, err := repo.ActiveConversations("alice")
	req.NoError(err)
	req.Equal([]domain.ConversationID{"conv-1"}, conversations)
}

func TestMembership_StampSeenCoversEveryConversation(t *testing.T) {
	req := require.New(t)
	repo := NewMembershipRepository(openTestDB(t))

	// Given one user in two conversations
	_, err := repo.Upsert("alice", "conv-1", false)
	req.NoError(err)
	_, err = repo.Upsert("alice", "conv-2", false)
	req.NoError(err)

	// When both are stamped at once
	at := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	req.NoError(repo.StampSeen("alice", []domain.ConversationID{"conv-1", "conv-2"}, at))

	// Then each membership carries the timestamp
	for _, cid := range []domain.ConversationID{"conv-1", "conv-2"} {
		membership, err := repo.Get(cid, "alice")
		req.NoError(err)
		req.Equal(at, membership.LastSeen)
	}

	// An empty stamp is a no-op
	req.NoError(repo.StampSeen("alice", nil, at))
}

func TestMembership_SetAdminFlips(t *testing.T) {
	req := require.New(t)
	repo := NewMembershipRepository(openTestDB(t))

	_, err := repo.Upsert("bob", "conv-1", false)
	req.NoError(err)

	req.NoError(repo.SetAdmin("conv-1", "bob", true))
	membership, err := repo.Get("conv-1", "bob")
	req.NoError(err)
	req.True(membership.Admin)

	req.NoError(repo.SetAdmin("conv-1", "bob", false))
	membership, err = repo.Get("conv-1", "bob")
	req.NoError(err)
	req.False(membership.Admin)
}
