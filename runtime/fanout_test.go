package runtime

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"

	"parley/contract"
	"parley/domain/event"
	"parley/repositories"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

type pruneRecorder struct {
	dropped []contract.ConnID
}

func (p *pruneRecorder) OnConnect(context.Context, string, contract.ConnID, contract.EventSink) error {
	return nil
}

func (p *pruneRecorder) OnDisconnect(_ context.Context, _ string, conn contract.ConnID) {
	p.dropped = append(p.dropped, conn)
}

func newTestFanout(t *testing.T) (*Fanout, *Registry, repositories.IMembershipRepository) {
	t.Helper()
	memberships := repositories.NewMembershipRepository(openTestDB(t))
	registry := NewRegistry()
	fanout := NewFanout(slog.Default(), memberships, registry, nil, 100*time.Millisecond)
	return fanout, registry, memberships
}

func TestFanout_DeliversToActiveMembersOnly(t *testing.T) {
	req := require.New(t)
	fanout, registry, memberships := newTestFanout(t)

	// Given two subscribed members, only one of which is active in the store
	_, err := memberships.Upsert("alice", "conv-1", true)
	req.NoError(err)

	aliceSink, bobSink := &recordSink{}, &recordSink{}
	registry.Register("alice", "c1", aliceSink)
	registry.Register("bob", "c2", bobSink)
	registry.Subscribe("c1", "conv-1")
	registry.Subscribe("c2", "conv-1")

	fanout.Publish(context.Background(), "conv-1", event.NameChanged{
		Conversation: "conv-1", NewName: "renamed",
	})

	// Then only the active member received it
	req.Len(aliceSink.Events(), 1)
	req.Empty(bobSink.Events())

	// And the stale subscription was cleaned up
	req.Len(registry.SinksFor("conv-1"), 1)
}

func TestFanout_PerConnectionOrder(t *testing.T) {
	req := require.New(t)
	fanout, registry, memberships := newTestFanout(t)

	_, err := memberships.Upsert("alice", "conv-1", true)
	req.NoError(err)

	sink := &recordSink{}
	registry.Register("alice", "c1", sink)
	registry.Subscribe("c1", "conv-1")

	for _, name := range []string{"one", "two", "three"} {
		fanout.Publish(context.Background(), "conv-1", event.NameChanged{
			Conversation: "conv-1", NewName: name,
		})
	}

	events := sink.Events()
	req.Len(events, 3)
	req.Equal("one", events[0].(event.NameChanged).NewName)
	req.Equal("two", events[1].(event.NameChanged).NewName)
	req.Equal("three", events[2].(event.NameChanged).NewName)
}

func TestFanout_FailedSinkIsPrunedOthersStillServed(t *testing.T) {
	req := require.New(t)
	fanout, registry, memberships := newTestFanout(t)
	pruner := &pruneRecorder{}
	fanout.SetPruner(pruner)

	_, err := memberships.Upsert("alice", "conv-1", true)
	req.NoError(err)
	_, err = memberships.Upsert("bob", "conv-1", false)
	req.NoError(err)

	failing := &recordSink{fail: true}
	healthy := &recordSink{}
	registry.Register("alice", "c1", failing)
	registry.Register("bob", "c2", healthy)
	registry.Subscribe("c1", "conv-1")
	registry.Subscribe("c2", "conv-1")

	fanout.Publish(context.Background(), "conv-1", event.NameChanged{
		Conversation: "conv-1", NewName: "renamed",
	})

	// The healthy member still got the event; the failed one was pruned
	req.Len(healthy.Events(), 1)
	req.Equal([]contract.ConnID{"c1"}, pruner.dropped)
}

func TestFanout_PublishToUserHitsEveryDevice(t *testing.T) {
	req := require.New(t)
	fanout, registry, _ := newTestFanout(t)

	first, second := &recordSink{}, &recordSink{}
	registry.Register("alice", "c1", first)
	registry.Register("alice", "c2", second)

	fanout.PublishToUser(context.Background(), "alice", event.PresenceChanged{
		UserID: "bob", Online: true,
	})

	req.Len(first.Events(), 1)
	req.Len(second.Events(), 1)
}
