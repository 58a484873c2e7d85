package ws

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"parley/auth"
	"parley/contract"
)

// Handler upgrades authenticated requests to WebSocket connections and
// drives the presence lifecycle around each one. Connection accounting
// lives in the presence tracker, not here.
type Handler struct {
	log        *slog.Logger
	tokens     *auth.TokenManager
	presence   contract.IPresence
	bufferSize int
	upgrader   websocket.Upgrader
}

func NewHandler(log *slog.Logger, tokens *auth.TokenManager,
	presence contract.IPresence, bufferSize int) *Handler {
	return &Handler{
		log:        log,
		tokens:     tokens,
		presence:   presence,
		bufferSize: bufferSize,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "websocket endpoint only accepts GET", http.StatusMethodNotAllowed)
		return
	}

	// Authentication happens before the upgrade so a bad token costs one
	// plain HTTP round trip, not a socket.
	tokenStr := auth.TokenFromRequest(r)
	if tokenStr == "" {
		tokenStr = r.URL.Query().Get("token")
	}
	claims, err := h.tokens.Validate(tokenStr)
	if err != nil {
		http.Error(w, "invalid or expired token", http.StatusForbidden)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	userID := claims.UserID
	connID := contract.ConnID(uuid.NewString())
	sink := NewSink(h.bufferSize)

	if err := h.presence.OnConnect(r.Context(), userID, connID, sink); err != nil {
		h.log.Warn("Connection rejected", "user_id", userID, "error", err)
		_ = conn.Close()
		return
	}
	h.log.Info("Connection established", "user_id", userID, "conn", connID)

	c := newClient(h.log, conn, sink, userID, connID)
	go c.writePump()
	go func() {
		c.readPump()
		<-c.done
		// Both pumps funnel through stop(), so this runs exactly once per
		// socket. Detaching from the request context keeps the disconnect
		// bookkeeping alive during server shutdown.
		h.presence.OnDisconnect(context.WithoutCancel(r.Context()), userID, connID)
		h.log.Info("Connection closed", "user_id", userID, "conn", connID)
	}()
}
