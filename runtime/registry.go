// Package runtime owns the process-scoped live-connection state: which
// connections each user has open, which conversations each connection is
// subscribed to, and the fan-out of events across that topology. Everything
// here is a rebuildable cache over the persistent store.
package runtime

import (
	"sync"
	"time"

	"parley/contract"
	"parley/domain"
)

type connSet map[contract.ConnID]struct{}

// userState carries one user's live connections and device counter behind
// its own lock, so presence edge transitions serialize per user without a
// registry-wide critical section.
type userState struct {
	mu      sync.Mutex
	devices int
	conns   connSet
}

type connState struct {
	userID string
	sink   contract.EventSink
	subs   map[domain.ConversationID]struct{}
}

// Registry maps user identities to open connections and connections to
// their conversation subscriptions. The registry-wide mutex guards only the
// topology maps; it is never held across a store call or a delivery.
type Registry struct {
	mu    sync.RWMutex
	users map[string]*userState
	conns map[contract.ConnID]*connState
	convs map[domain.ConversationID]connSet
}

func NewRegistry() *Registry {
	return &Registry{
		users: make(map[string]*userState),
		conns: make(map[contract.ConnID]*connState),
		convs: make(map[domain.ConversationID]connSet),
	}
}

// Register adds a live connection for the user and reports whether this was
// the user's first device (the 0 to 1 edge the presence tracker acts on).
func (r *Registry) Register(userID string, conn contract.ConnID, sink contract.EventSink) bool {
	r.mu.Lock()
	state, ok := r.users[userID]
	if !ok {
		state = &userState{conns: make(connSet)}
		r.users[userID] = state
	}
	r.conns[conn] = &connState{
		userID: userID,
		sink:   sink,
		subs:   make(map[domain.ConversationID]struct{}),
	}
	r.mu.Unlock()

	state.mu.Lock()
	defer state.mu.Unlock()
	state.conns[conn] = struct{}{}
	state.devices++
	return state.devices == 1
}

// Deregister removes the connection and all its subscriptions. It reports
// whether the user's device counter reached zero, together with the instant
// to record as last-online.
func (r *Registry) Deregister(userID string, conn contract.ConnID) (bool, time.Time) {
	r.mu.Lock()
	state, known := r.users[userID]
	if cs, ok := r.conns[conn]; ok {
		for cid := range cs.subs {
			r.dropSubscriber(cid, conn)
		}
		delete(r.conns, conn)
	}
	r.mu.Unlock()

	now := time.Now().UTC()
	if !known {
		return false, now
	}

	state.mu.Lock()
	if _, ok := state.conns[conn]; !ok {
		state.mu.Unlock()
		return false, now
	}
	delete(state.conns, conn)
	if state.devices > 0 {
		state.devices--
	}
	wentOffline := state.devices == 0
	state.mu.Unlock()

	if wentOffline {
		// Drop the per-user entry so idle users do not accumulate for the
		// process lifetime. Re-checked under both locks: a concurrent
		// Register may have revived the state in the meantime.
		r.mu.Lock()
		state.mu.Lock()
		if state.devices == 0 && r.users[userID] == state {
			delete(r.users, userID)
		}
		state.mu.Unlock()
		r.mu.Unlock()
	}
	return wentOffline, now
}

func (r *Registry) Subscribe(conn contract.ConnID, conversation domain.ConversationID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cs, ok := r.conns[conn]
	if !ok {
		return
	}
	cs.subs[conversation] = struct{}{}
	if _, ok := r.convs[conversation]; !ok {
		r.convs[conversation] = make(connSet)
	}
	r.convs[conversation][conn] = struct{}{}
}

func (r *Registry) Unsubscribe(conn contract.ConnID, conversation domain.ConversationID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cs, ok := r.conns[conn]; ok {
		delete(cs.subs, conversation)
	}
	r.dropSubscriber(conversation, conn)
}

// SubscribeUser joins every open connection of the user to the delivery
// group, used when a member is added to a conversation while connected.
func (r *Registry) SubscribeUser(userID string, conversation domain.ConversationID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for conn, cs := range r.conns {
		if cs.userID != userID {
			continue
		}
		cs.subs[conversation] = struct{}{}
		if _, ok := r.convs[conversation]; !ok {
			r.convs[conversation] = make(connSet)
		}
		r.convs[conversation][conn] = struct{}{}
	}
}

func (r *Registry) UnsubscribeUser(userID string, conversation domain.ConversationID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for conn, cs := range r.conns {
		if cs.userID != userID {
			continue
		}
		delete(cs.subs, conversation)
		r.dropSubscriber(conversation, conn)
	}
}

// SinksFor snapshots the live deliveries of a conversation. The copy lets
// the caller deliver without holding the registry lock.
func (r *Registry) SinksFor(conversation domain.ConversationID) []contract.Delivery {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subscribers, ok := r.convs[conversation]
	if !ok {
		return nil
	}
	var deliveries []contract.Delivery
	for conn := range subscribers {
		if cs, exists := r.conns[conn]; exists {
			deliveries = append(deliveries, contract.Delivery{UserID: cs.userID, Conn: conn, Sink: cs.sink})
		}
	}
	return deliveries
}

func (r *Registry) SinksForUser(userID string) []contract.Delivery {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var deliveries []contract.Delivery
	for conn, cs := range r.conns {
		if cs.userID == userID {
			deliveries = append(deliveries, contract.Delivery{UserID: userID, Conn: conn, Sink: cs.sink})
		}
	}
	return deliveries
}

func (r *Registry) Devices(userID string) int {
	r.mu.RLock()
	state, ok := r.users[userID]
	r.mu.RUnlock()
	if !ok {
		return 0
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	return state.devices
}

// dropSubscriber removes a connection from a conversation's delivery group,
// deleting the group entirely when it empties to avoid leaking map entries.
// Callers must hold r.mu.
func (r *Registry) dropSubscriber(conversation domain.ConversationID, conn contract.ConnID) {
	if subscribers, ok := r.convs[conversation]; ok {
		delete(subscribers, conn)
		if len(subscribers) == 0 {
			delete(r.convs, conversation)
		}
	}
}
