package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"parley/contract"
	"parley/domain"
	"parley/domain/event"
	"parley/observability"
	"parley/repositories"
)

// Fanout delivers one authoritative event to every live connection of every
// current member of a conversation.
//
// It provides best-effort delivery with no durability or retries: a failed
// connection is pruned as if it had disconnected, and the remaining
// connections still receive the event. Membership is resolved against the
// store on every publish, so fan-out never acts on membership state older
// than the triggering mutation's commit.
//
// Fanout is safe for concurrent use by multiple goroutines.
type Fanout struct {
	log             *slog.Logger
	memberships     repositories.IMembershipRepository
	registry        contract.IRegistry
	monitor         *observability.Monitor
	deliveryTimeout time.Duration
	pruner          contract.IPresence
}

func NewFanout(log *slog.Logger, memberships repositories.IMembershipRepository,
	registry contract.IRegistry, monitor *observability.Monitor,
	deliveryTimeout time.Duration) *Fanout {
	return &Fanout{
		log:             log,
		memberships:     memberships,
		registry:        registry,
		monitor:         monitor,
		deliveryTimeout: deliveryTimeout,
	}
}

// SetPruner wires the disconnect path used to evict failed connections.
// Set once at startup, before any publish.
func (f *Fanout) SetPruner(pruner contract.IPresence) {
	f.pruner = pruner
}

// Publish resolves the conversation's current active members and delivers
// the event to each of their subscribed connections. Sinks are walked
// sequentially so one connection's events keep their commit order; each
// Consume is bounded by the delivery timeout.
func (f *Fanout) Publish(ctx context.Context, conversation domain.ConversationID, e event.Event) {
	members, err := f.memberships.ActiveMembers(conversation)
	if err != nil {
		f.log.Error("Fan-out aborted, could not resolve members",
			"conversation", conversation, "event", e.Name(), "error", err)
		return
	}
	active := make(map[string]struct{}, len(members))
	for _, m := range members {
		active[m.UserID] = struct{}{}
	}

	f.monitor.EventPublished()
	for _, delivery := range f.registry.SinksFor(conversation) {
		if _, ok := active[delivery.UserID]; !ok {
			// Subscription outlived the membership; a removal is normally
			// unsubscribed before the next publish, so this is cleanup.
			f.registry.Unsubscribe(delivery.Conn, conversation)
			continue
		}
		f.deliver(ctx, delivery, e)
	}
}

// PublishToUser addresses an event to every open connection of one user,
// bypassing conversation membership. Used for presence snapshots and the
// personalized direct-conversation snapshots.
func (f *Fanout) PublishToUser(ctx context.Context, userID string, e event.Event) {
	f.monitor.EventPublished()
	for _, delivery := range f.registry.SinksForUser(userID) {
		f.deliver(ctx, delivery, e)
	}
}

func (f *Fanout) deliver(ctx context.Context, delivery contract.Delivery, e event.Event) {
	deliveryCtx, cancel := context.WithTimeout(ctx, f.deliveryTimeout)
	defer cancel()

	if err := delivery.Sink.Consume(deliveryCtx, e); err != nil {
		f.monitor.DeliveryFailed()
		f.log.Warn(fmt.Sprintf("Delivery to connection %s failed, pruning", delivery.Conn),
			"user_id", delivery.UserID, "event", e.Name(), "error", err)
		if f.pruner != nil {
			f.pruner.OnDisconnect(ctx, delivery.UserID, delivery.Conn)
		}
		return
	}
	f.monitor.EventDelivered()
}
