package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"parley/auth"
)

// NewRouter assembles the full route table. Signup and login are the only
// unauthenticated endpoints; everything else sits behind the session
// middleware, including the WebSocket upgrade.
func NewRouter(tokens *auth.TokenManager,
	authHandlers *AuthHandlers,
	chatHandlers *ChatHandlers,
	uploadHandler *UploadHandler,
	wsHandler http.Handler) *http.ServeMux {

	protected := auth.Middleware(tokens)
	mux := http.NewServeMux()

	mux.HandleFunc("POST /auth/signup", authHandlers.Signup)
	mux.HandleFunc("POST /auth/login", authHandlers.Login)
	mux.Handle("POST /auth/logout", protected(http.HandlerFunc(authHandlers.Logout)))
	mux.Handle("GET /auth/me", protected(http.HandlerFunc(authHandlers.Me)))
	mux.Handle("PUT /auth/dark", protected(http.HandlerFunc(authHandlers.SetDark)))
	mux.Handle("PUT /auth/picture", protected(http.HandlerFunc(authHandlers.SetPicture)))

	mux.Handle("GET /chat", protected(http.HandlerFunc(chatHandlers.List)))
	mux.Handle("POST /chat/dm", protected(http.HandlerFunc(chatHandlers.CreateDM)))
	mux.Handle("POST /chat/group", protected(http.HandlerFunc(chatHandlers.CreateGroup)))
	mux.Handle("GET /chat/{id}/members", protected(http.HandlerFunc(chatHandlers.Members)))
	mux.Handle("POST /chat/{id}/members", protected(http.HandlerFunc(chatHandlers.AddMember)))
	mux.Handle("DELETE /chat/{id}/members/{userId}", protected(http.HandlerFunc(chatHandlers.RemoveMember)))
	mux.Handle("POST /chat/{id}/leave", protected(http.HandlerFunc(chatHandlers.Leave)))
	mux.Handle("POST /chat/{id}/admin/{userId}", protected(http.HandlerFunc(chatHandlers.ToggleAdmin)))
	mux.Handle("POST /chat/{id}/message", protected(http.HandlerFunc(chatHandlers.PostMessage)))
	mux.Handle("DELETE /chat/message/{messageId}", protected(http.HandlerFunc(chatHandlers.DeleteMessage)))
	mux.Handle("GET /chat/{id}/transcript", protected(http.HandlerFunc(chatHandlers.Transcript)))
	mux.Handle("GET /chat/{id}/search", protected(http.HandlerFunc(chatHandlers.Search)))
	mux.Handle("PUT /chat/{id}/name", protected(http.HandlerFunc(chatHandlers.Rename)))
	mux.Handle("PUT /chat/{id}/mode", protected(http.HandlerFunc(chatHandlers.SetMode)))
	mux.Handle("PUT /chat/{id}/picture", protected(http.HandlerFunc(chatHandlers.SetPicture)))

	mux.Handle("POST /upload", protected(http.HandlerFunc(uploadHandler.Upload)))
	mux.Handle("GET /files/", protected(uploadHandler.Serve()))

	// The socket authenticates itself (cookie or token query parameter)
	// because browsers cannot set headers on the upgrade request.
	mux.Handle("GET /ws", wsHandler)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok"))
	})

	return mux
}

// Server wraps http.Server with the shutdown discipline the process uses.
type Server struct {
	log  *slog.Logger
	http *http.Server
}

func NewServer(log *slog.Logger, addr string, handler http.Handler) *Server {
	return &Server{
		log: log,
		http: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Run serves until the context cancels, then drains in-flight requests.
// Open WebSockets are closed by their own pumps when presence shuts down.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.ListenAndServe()
	}()
	s.log.Info("HTTP server listening", "addr", s.http.Addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}
