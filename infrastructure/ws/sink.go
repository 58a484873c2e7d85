// Package ws is the duplex transport: one WebSocket per device, events out,
// keepalive in. All commands travel over the REST surface; the socket only
// pushes.
package ws

import (
	"context"

	"parley/domain/event"
	"parley/errors"
)

// Sink buffers events for a single connection. Consume is called by the
// fan-out engine and must never block it.
type Sink struct {
	events chan event.Event
}

func NewSink(bufferSize int) *Sink {
	return &Sink{events: make(chan event.Event, bufferSize)}
}

// Consume redirects the event to the connection's write pump. A full
// buffer means the consumer stopped draining; reporting the failure lets
// the fan-out engine prune the connection.
func (s *Sink) Consume(ctx context.Context, e event.Event) error {
	select {
	case s.events <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return errors.ErrDelivery
	}
}

// Events is drained by the write pump.
func (s *Sink) Events() <-chan event.Event {
	return s.events
}
