package contract

import (
	"context"
	"reflect"
	"time"

	"parley/domain"
	"parley/domain/event"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker
// lifecycle events, avoiding manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// ConnID identifies one live connection of one user. Connections are
// ephemeral and process-scoped; they are never persisted.
type ConnID string

// EventSink receives events for a single live connection. Consume must be
// bounded: a slow consumer returns an error or drops, it never blocks the
// caller indefinitely.
type EventSink interface {
	Consume(ctx context.Context, e event.Event) error
}

// Delivery pairs a live sink with the identity it belongs to, so fan-out
// can prune a failed connection through the normal disconnect path.
type Delivery struct {
	UserID string
	Conn   ConnID
	Sink   EventSink
}

// IRegistry is the process-scoped connection registry: user identity to
// open connections, and connection to subscribed conversations. It is a
// rebuildable cache, never a source of truth across restarts.
type IRegistry interface {
	// Register adds a connection and reports whether the user's device
	// counter crossed 0 to 1 (came online).
	Register(userID string, conn ConnID, sink EventSink) (cameOnline bool)
	// Deregister removes a connection, unsubscribes it everywhere, and
	// reports whether the counter reached 0 along with the instant to
	// record as last-online.
	Deregister(userID string, conn ConnID) (wentOffline bool, lastOnline time.Time)
	Subscribe(conn ConnID, conversation domain.ConversationID)
	Unsubscribe(conn ConnID, conversation domain.ConversationID)
	// SubscribeUser and UnsubscribeUser retarget every open connection of
	// one user, used on live membership changes.
	SubscribeUser(userID string, conversation domain.ConversationID)
	UnsubscribeUser(userID string, conversation domain.ConversationID)
	SinksFor(conversation domain.ConversationID) []Delivery
	SinksForUser(userID string) []Delivery
	Devices(userID string) int
}

// IFanout resolves current members and delivers an event to each of their
// live connections, best effort per connection.
type IFanout interface {
	Publish(ctx context.Context, conversation domain.ConversationID, e event.Event)
	PublishToUser(ctx context.Context, userID string, e event.Event)
}

// IPresence is the connection lifecycle entry point invoked by the
// transport immediately on handshake completion and socket closure.
type IPresence interface {
	OnConnect(ctx context.Context, userID string, conn ConnID, sink EventSink) error
	OnDisconnect(ctx context.Context, userID string, conn ConnID)
}
