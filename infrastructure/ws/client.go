package ws

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"parley/contract"
	"parley/domain/event"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second

	// Inbound frames are keepalive only; anything bigger is a client bug.
	maxInboundSize = 512
)

// envelope is the wire shape of one pushed event.
type envelope struct {
	Event          string      `json:"event"`
	ConversationID string      `json:"conversationId,omitempty"`
	Payload        event.Event `json:"payload"`
}

// client owns one socket: a read pump that watches for closure and a write
// pump that drains the sink. When either pump stops, done closes and the
// handler runs the disconnect path exactly once.
type client struct {
	log    *slog.Logger
	conn   *websocket.Conn
	sink   *Sink
	userID string
	connID contract.ConnID
	done   chan struct{}
	once   sync.Once
}

func newClient(log *slog.Logger, conn *websocket.Conn, sink *Sink,
	userID string, connID contract.ConnID) *client {
	return &client{
		log:    log,
		conn:   conn,
		sink:   sink,
		userID: userID,
		connID: connID,
		done:   make(chan struct{}),
	}
}

// readPump drains inbound frames until the peer goes away. The socket
// carries no client commands; reading only services pings and detects
// closure.
func (c *client) readPump() {
	defer c.stop()

	c.conn.SetReadLimit(maxInboundSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug("Socket closed unexpectedly",
					"conn", c.connID, "error", err)
			}
			return
		}
	}
}

// writePump serializes sink events onto the socket and keeps the
// connection alive with periodic pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.stop()
	}()

	for {
		select {
		case <-c.done:
			return
		case e := <-c.sink.Events():
			if !c.write(e) {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) write(e event.Event) bool {
	data, err := json.Marshal(envelope{
		Event:          e.Name(),
		ConversationID: string(e.ConversationID()),
		Payload:        e,
	})
	if err != nil {
		c.log.Error("Failed to encode event", "event", e.Name(), "error", err)
		return true
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.log.Debug("Write failed, closing socket",
			"conn", c.connID, "error", err)
		return false
	}
	return true
}

// stop closes done once; safe to call from both pumps.
func (c *client) stop() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}
