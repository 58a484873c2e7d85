// Terminal event listener: authenticates against a running parley server,
// opens the event socket and prints everything it pushes. Useful for
// watching fan-out behaviour without a browser.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/google/uuid"
	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"

	"parley/domain"
	"parley/projection"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	ServerAddress string `env:"PARLEY_SERVER_ADDR,default=localhost:8080"`
	Username      string `env:"PARLEY_USERNAME,required=true"`
	Password      string `env:"PARLEY_PASSWORD,required=true"`
	LogLevel      string `env:"LOG_LEVEL,required=true"`
}

// envelope mirrors the server's wire shape for pushed events.
type envelope struct {
	Event          string          `json:"event"`
	ConversationID string          `json:"conversationId"`
	Payload        json.RawMessage `json:"payload"`
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

// run handles login, the socket lifecycle and the reception loop.
func run() (int, error) {
	// 1. Load configuration from environment variables.
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Setup context to handle termination signals (Ctrl+C).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Login over REST to obtain a session token.
	token, err := login(ctx, config)
	if err != nil {
		return exitRuntime, fmt.Errorf("login failed: %w", err)
	}

	// 4. Open the event socket with the token as a query parameter.
	wsURL := fmt.Sprintf("ws://%s/ws?token=%s", config.ServerAddress, token)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return exitRuntime, fmt.Errorf("could not connect to %s: %w", config.ServerAddress, err)
	}
	defer func() {
		log.Info("Closing connection...")
		_ = conn.Close()
	}()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	header := color.New(color.BgBlack, color.FgGreen).
		Render(fmt.Sprintf(">>> Connected to %s as %s (Ctrl+C to quit)", config.ServerAddress, config.Username))
	fmt.Println(header)

	// 5. Event reception loop, projecting messages into local timelines.
	timelines := make(map[string]*projection.Timeline)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				log.Info("Stopping client...")
				return exitOK, nil
			}
			return exitRuntime, fmt.Errorf("socket error: %w", err)
		}

		var e envelope
		if err := json.Unmarshal(data, &e); err != nil {
			log.Warn("Unreadable frame", "error", err)
			continue
		}
		display(e, project(log, timelines, e))
	}
}

// project folds message events into per-conversation timelines and returns
// the live count for the event's conversation, -1 when untracked.
func project(log *slog.Logger, timelines map[string]*projection.Timeline, e envelope) int {
	timeline, ok := timelines[e.ConversationID]
	if !ok {
		timeline = projection.NewTimeline()
		timelines[e.ConversationID] = timeline
	}

	switch e.Event {
	case "message:transfer":
		var payload struct {
			Message domain.MessageView `json:"message"`
		}
		if err := json.Unmarshal(e.Payload, &payload); err != nil {
			log.Warn("Unreadable message payload", "error", err)
			return -1
		}
		timeline.Append(payload.Message)
	case "message:delete":
		var payload struct {
			MessageID uuid.UUID `json:"messageId"`
		}
		if err := json.Unmarshal(e.Payload, &payload); err != nil {
			log.Warn("Unreadable delete payload", "error", err)
			return -1
		}
		timeline.Drop(payload.MessageID)
	default:
		return -1
	}
	return timeline.Len()
}

func login(ctx context.Context, config Config) (string, error) {
	body, _ := json.Marshal(map[string]string{
		"username": config.Username,
		"password": config.Password,
	})
	url := fmt.Sprintf("http://%s/auth/login", config.ServerAddress)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("server answered %s", resp.Status)
	}

	for _, cookie := range resp.Cookies() {
		if cookie.Name == "parley_session" {
			return cookie.Value, nil
		}
	}
	return "", fmt.Errorf("no session cookie in login response")
}

// display renders one event, coloring by family so a busy stream stays
// readable. count is the conversation's live message count, -1 when the
// event does not touch a timeline.
func display(e envelope, count int) {
	stamp := time.Now().Format(time.TimeOnly)
	var tag string
	switch e.Event {
	case "message:transfer", "message:delete":
		tag = color.New(color.FgCyan).Render(e.Event)
	case "status:update":
		tag = color.New(color.FgYellow).Render(e.Event)
	case "member:add", "member:remove", "group:join":
		tag = color.New(color.FgMagenta).Render(e.Event)
	default:
		tag = color.New(color.FgWhite).Render(e.Event)
	}

	suffix := ""
	if count >= 0 {
		suffix = fmt.Sprintf(" (%d in timeline)", count)
	}
	fmt.Printf("[%s] %s %s %s%s\n", stamp, tag, e.ConversationID, string(e.Payload), suffix)
}
