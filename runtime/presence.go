package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"parley/contract"
	"parley/domain/event"
	"parley/observability"
	"parley/repositories"
)

// Presence is the connection lifecycle entry point and the per-user
// online/offline state machine. Transitions are driven exclusively by
// device-counter edge crossings reported by the registry: 0 to 1 means came
// online, 1 to 0 means went offline. Individual connection counts in
// between never emit anything, so multi-device users do not flicker.
type Presence struct {
	log           *slog.Logger
	users         repositories.IUserRepository
	conversations repositories.IConversationRepository
	memberships   repositories.IMembershipRepository
	registry      contract.IRegistry
	fanout        contract.IFanout
	monitor       *observability.Monitor
}

func NewPresence(log *slog.Logger, users repositories.IUserRepository,
	conversations repositories.IConversationRepository,
	memberships repositories.IMembershipRepository,
	registry contract.IRegistry, fanout contract.IFanout,
	monitor *observability.Monitor) *Presence {
	return &Presence{
		log:           log,
		users:         users,
		conversations: conversations,
		memberships:   memberships,
		registry:      registry,
		fanout:        fanout,
		monitor:       monitor,
	}
}

// OnConnect registers the connection, subscribes it to every conversation
// the user actively belongs to, and, on the user's first device, pushes the
// online snapshot to each direct-conversation peer.
func (p *Presence) OnConnect(ctx context.Context, userID string, conn contract.ConnID, sink contract.EventSink) error {
	if _, err := p.users.GetUser(userID); err != nil {
		return fmt.Errorf("connection for unknown user %s: %w", userID, err)
	}

	cameOnline := p.registry.Register(userID, conn, sink)
	p.monitor.ConnectionOpened()

	if err := p.users.SetPresence(userID, true, p.registry.Devices(userID), nil); err != nil {
		p.log.Warn("Failed to persist online presence", "user_id", userID, "error", err)
	}

	conversations, err := p.memberships.ActiveConversations(userID)
	if err != nil {
		p.log.Error("Initial subscribe failed, connection receives nothing",
			"user_id", userID, "error", err)
	}
	for _, cid := range conversations {
		p.registry.Subscribe(conn, cid)
	}

	if cameOnline {
		p.broadcast(ctx, userID, event.PresenceChanged{
			UserID: userID,
			Online: true,
		})
	}

	p.log.Info(fmt.Sprintf("Connection %s registered for user %s", conn, userID),
		"conversations", len(conversations), "first_device", cameOnline)
	return nil
}

// OnDisconnect deregisters the connection and unsubscribes it everywhere in
// the same step, so no dangling delivery targets remain. Only the last
// device's departure emits the offline snapshot, stamped with last-online.
func (p *Presence) OnDisconnect(ctx context.Context, userID string, conn contract.ConnID) {
	wentOffline, lastOnline := p.registry.Deregister(userID, conn)
	p.monitor.ConnectionClosed()

	devices := p.registry.Devices(userID)
	var stamp *time.Time
	if wentOffline {
		stamp = &lastOnline
	}
	if err := p.users.SetPresence(userID, devices > 0, devices, stamp); err != nil {
		p.log.Warn("Failed to persist offline presence", "user_id", userID, "error", err)
	}

	if wentOffline {
		p.broadcast(ctx, userID, event.PresenceChanged{
			UserID:     userID,
			Online:     false,
			LastOnline: lastOnline,
		})
	}

	p.log.Info(fmt.Sprintf("Connection %s deregistered for user %s", conn, userID),
		"last_device", wentOffline)
}

// broadcast pushes a presence snapshot to the counterpart of every direct
// conversation the user belongs to. Group members are deliberately not
// notified; presence is a direct-relationship concern only.
func (p *Presence) broadcast(ctx context.Context, userID string, snapshot event.PresenceChanged) {
	conversations, err := p.memberships.ActiveConversations(userID)
	if err != nil {
		p.log.Warn("Presence broadcast skipped", "user_id", userID, "error", err)
		return
	}

	notified := make(map[string]struct{})
	for _, cid := range conversations {
		conversation, err := p.conversations.Get(cid)
		if err != nil || !conversation.Direct() {
			continue
		}
		members, err := p.memberships.ActiveMembers(cid)
		if err != nil {
			continue
		}
		for _, member := range members {
			if member.UserID == userID {
				continue
			}
			if _, seen := notified[member.UserID]; seen {
				continue
			}
			notified[member.UserID] = struct{}{}
			p.fanout.PublishToUser(ctx, member.UserID, snapshot)
		}
	}
}
