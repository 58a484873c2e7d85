package runtime

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"parley/domain"
	"parley/repositories"
)

type presenceFixture struct {
	presence      *Presence
	registry      *Registry
	users         repositories.IUserRepository
	conversations repositories.IConversationRepository
	memberships   repositories.IMembershipRepository
}

// newPresenceFixture seeds alice with a direct conversation to bob and a
// group shared with carol.
func newPresenceFixture(t *testing.T) presenceFixture {
	t.Helper()
	db := openTestDB(t)
	log := slog.Default()

	users := repositories.NewUserRepository(db)
	conversations := repositories.NewConversationRepository(db)
	memberships := repositories.NewMembershipRepository(db)
	registry := NewRegistry()
	fanout := NewFanout(log, memberships, registry, nil, 100*time.Millisecond)
	presence := NewPresence(log, users, conversations, memberships, registry, fanout, nil)
	fanout.SetPruner(presence)

	for _, name := range []string{"alice", "bob", "carol"} {
		require.NoError(t, users.CreateUser(domain.User{
			ID:        name,
			Username:  name,
			Email:     name + "@example.com",
			CreatedAt: time.Now().UTC(),
		}))
	}

	require.NoError(t, conversations.Create(domain.Conversation{
		ID: "dm-1", Kind: domain.KindDirect,
	}))
	groupName := "team"
	require.NoError(t, conversations.Create(domain.Conversation{
		ID: "group-1", Kind: domain.KindGroup, Name: &groupName,
	}))

	seed := func(user string, cid domain.ConversationID) {
		_, err := memberships.Upsert(user, cid, false)
		require.NoError(t, err)
	}
	seed("alice", "dm-1")
	seed("bob", "dm-1")
	seed("alice", "group-1")
	seed("carol", "group-1")

	return presenceFixture{
		presence:      presence,
		registry:      registry,
		users:         users,
		conversations: conversations,
		memberships:   memberships,
	}
}

func TestPresence_OnConnectUnknownUser(t *testing.T) {
	req := require.New(t)
	f := newPresenceFixture(t)

	err := f.presence.OnConnect(context.Background(), "ghost", "c1", &recordSink{})
	req.Error(err)
	req.Equal(0, f.registry.Devices("ghost"))
}

func TestPresence_FirstDeviceBroadcastsToDirectPeersOnly(t *testing.T) {
	req := require.New(t)
	f := newPresenceFixture(t)
	ctx := context.Background()

	bobSink, carolSink := &recordSink{}, &recordSink{}
	req.NoError(f.presence.OnConnect(ctx, "bob", "cb", bobSink))
	req.NoError(f.presence.OnConnect(ctx, "carol", "cc", carolSink))

	// When alice comes online for the first time
	req.NoError(f.presence.OnConnect(ctx, "alice", "ca", &recordSink{}))

	// Then her direct peer hears about it and the group peer does not
	req.Len(bobSink.Events(), 1)
	req.Equal("status:update", bobSink.Events()[0].Name())
	req.Empty(carolSink.Events())

	// And the durable row agrees with the registry
	user, err := f.users.GetUser("alice")
	req.NoError(err)
	req.True(user.Online)
	req.Equal(1, user.DevicesOnline)
}

func TestPresence_SecondDeviceIsSilent(t *testing.T) {
	req := require.New(t)
	f := newPresenceFixture(t)
	ctx := context.Background()

	bobSink := &recordSink{}
	req.NoError(f.presence.OnConnect(ctx, "bob", "cb", bobSink))

	req.NoError(f.presence.OnConnect(ctx, "alice", "c1", &recordSink{}))
	req.NoError(f.presence.OnConnect(ctx, "alice", "c2", &recordSink{}))

	// Only the 0 to 1 edge broadcasts
	req.Len(bobSink.Events(), 1)

	user, err := f.users.GetUser("alice")
	req.NoError(err)
	req.Equal(2, user.DevicesOnline)
}

func TestPresence_LastDeviceDisconnectBroadcastsOffline(t *testing.T) {
	req := require.New(t)
	f := newPresenceFixture(t)
	ctx := context.Background()

	bobSink := &recordSink{}
	req.NoError(f.presence.OnConnect(ctx, "bob", "cb", bobSink))

	req.NoError(f.presence.OnConnect(ctx, "alice", "c1", &recordSink{}))
	req.NoError(f.presence.OnConnect(ctx, "alice", "c2", &recordSink{}))
	bobEventsBefore := len(bobSink.Events())

	// Closing one of two devices is silent
	f.presence.OnDisconnect(ctx, "alice", "c1")
	req.Len(bobSink.Events(), bobEventsBefore)

	// Closing the last device broadcasts offline and stamps last-online
	f.presence.OnDisconnect(ctx, "alice", "c2")
	events := bobSink.Events()
	req.Len(events, bobEventsBefore+1)

	user, err := f.users.GetUser("alice")
	req.NoError(err)
	req.False(user.Online)
	req.Equal(0, user.DevicesOnline)
	req.False(user.LastOnline.IsZero())
}

func TestPresence_ConnectSubscribesActiveConversations(t *testing.T) {
	req := require.New(t)
	f := newPresenceFixture(t)
	ctx := context.Background()

	sink := &recordSink{}
	req.NoError(f.presence.OnConnect(ctx, "alice", "c1", sink))

	req.Len(f.registry.SinksFor("dm-1"), 1)
	req.Len(f.registry.SinksFor("group-1"), 1)
}
