package runtime

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"parley/domain/event"
)

// recordSink captures delivered events; set fail to refuse deliveries.
type recordSink struct {
	mu     sync.Mutex
	events []event.Event
	fail   bool
}

func (s *recordSink) Consume(_ context.Context, e event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return context.DeadlineExceeded
	}
	s.events = append(s.events, e)
	return nil
}

func (s *recordSink) Events() []event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]event.Event(nil), s.events...)
}

func TestRegistry_DeviceEdges(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	// First device crosses the offline to online edge
	req.True(registry.Register("alice", "c1", &recordSink{}))
	// Second device does not
	req.False(registry.Register("alice", "c2", &recordSink{}))
	req.Equal(2, registry.Devices("alice"))

	// Closing one device leaves the user online
	wentOffline, _ := registry.Deregister("alice", "c1")
	req.False(wentOffline)
	req.Equal(1, registry.Devices("alice"))

	// Closing the last one crosses the online to offline edge
	wentOffline, _ = registry.Deregister("alice", "c2")
	req.True(wentOffline)
	req.Equal(0, registry.Devices("alice"))
}

func TestRegistry_DeregisterIsIdempotent(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	registry.Register("alice", "c1", &recordSink{})
	wentOffline, _ := registry.Deregister("alice", "c1")
	req.True(wentOffline)

	// A duplicate deregister must not report a second offline edge
	wentOffline, _ = registry.Deregister("alice", "c1")
	req.False(wentOffline)
	req.Equal(0, registry.Devices("alice"))
}

func TestRegistry_SubscriptionTopology(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	registry.Register("alice", "c1", &recordSink{})
	registry.Register("bob", "c2", &recordSink{})
	registry.Subscribe("c1", "conv-1")
	registry.Subscribe("c2", "conv-1")

	deliveries := registry.SinksFor("conv-1")
	req.Len(deliveries, 2)

	registry.Unsubscribe("c1", "conv-1")
	deliveries = registry.SinksFor("conv-1")
	req.Len(deliveries, 1)
	req.Equal("bob", deliveries[0].UserID)

	// Unknown conversations and connections are no-ops
	registry.Subscribe("ghost", "conv-1")
	req.Len(registry.SinksFor("conv-1"), 1)
	req.Nil(registry.SinksFor("conv-none"))
}

func TestRegistry_SubscribeUserTargetsEveryDevice(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	registry.Register("alice", "c1", &recordSink{})
	registry.Register("alice", "c2", &recordSink{})
	registry.Register("bob", "c3", &recordSink{})

	registry.SubscribeUser("alice", "conv-1")
	req.Len(registry.SinksFor("conv-1"), 2)

	registry.UnsubscribeUser("alice", "conv-1")
	req.Nil(registry.SinksFor("conv-1"))
}

func TestRegistry_DeregisterReleasesUserEntry(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	registry.Register("alice", "c1", &recordSink{})
	registry.Register("alice", "c2", &recordSink{})

	wentOffline, _ := registry.Deregister("alice", "c1")
	req.False(wentOffline)
	registry.mu.RLock()
	_, held := registry.users["alice"]
	registry.mu.RUnlock()
	req.True(held)

	// The last device going must release the per-user entry
	wentOffline, _ = registry.Deregister("alice", "c2")
	req.True(wentOffline)
	registry.mu.RLock()
	_, held = registry.users["alice"]
	registry.mu.RUnlock()
	req.False(held)

	// A returning user starts a fresh entry and crosses the online edge
	req.True(registry.Register("alice", "c3", &recordSink{}))
	req.Equal(1, registry.Devices("alice"))
}

func TestRegistry_DeregisterDropsSubscriptions(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	registry.Register("alice", "c1", &recordSink{})
	registry.Subscribe("c1", "conv-1")
	registry.Subscribe("c1", "conv-2")

	registry.Deregister("alice", "c1")

	req.Nil(registry.SinksFor("conv-1"))
	req.Nil(registry.SinksFor("conv-2"))
	req.Empty(registry.SinksForUser("alice"))
}
