package main

import (
	"context"
	"embed"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"parley/auth"
	"parley/infrastructure/httpapi"
	"parley/infrastructure/ws"
	"parley/internal"
	"parley/moderation"
	"parley/observability"
	"parley/repositories"
	"parley/runtime"
	"parley/runtime/workers"
	"parley/services"
)

//go:embed censored/*
var censoredFolder embed.FS

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// This pattern is preferred over calling os.Exit or panic directly because:
// 1. It ensures all 'defer' statements (like database cleanup) are executed before the program exits.
// 2. It improves testability by decoupling the initialization logic from the main entry point.
// 3. It provides a structured way to handle graceful shutdowns for the HTTP server and background workers.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Search index (Bluge)
	writer, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return fmt.Errorf("search index opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing search index...")
		_ = writer.Close()
	}()

	if err := os.MkdirAll(config.UploadDir, 0o750); err != nil {
		return fmt.Errorf("upload directory: %w", err)
	}

	// 4. Moderation dictionaries
	loader := moderation.NewCensoredLoader(censoredFolder)
	data, err := loader.LoadAll("censored")
	if err != nil {
		return fmt.Errorf("censored words loading failed: %w", err)
	}
	censoredChar, err := moderation.CharacterRune(config.ModerationCharReplacement)
	if err != nil {
		return fmt.Errorf("moderation config: %w", err)
	}
	moderator, err := moderation.NewModerator(data.Words, censoredChar, log)
	if err != nil {
		return fmt.Errorf("moderator build failed: %w", err)
	}
	log.Info("Moderation ready", "languages", data.Languages, "words", len(data.Words))

	// 5. Repositories & runtime
	monitor := observability.NewMonitor()
	users := repositories.NewUserRepository(db)
	conversations := repositories.NewConversationRepository(db)
	memberships := repositories.NewMembershipRepository(db)
	messages := repositories.NewMessageRepository(db, log, config.LimitMessages)
	index := repositories.NewSearchIndex(writer, log)

	if config.DebugPort > 0 {
		internal.StartDebugServer(log, db, monitor, config.DebugPort)
	}

	registry := runtime.NewRegistry()
	fanout := runtime.NewFanout(log, memberships, registry, monitor, config.DeliveryTimeout)
	presence := runtime.NewPresence(log, users, conversations, memberships, registry, fanout, monitor)
	fanout.SetPruner(presence)

	reaper := services.NewReaper(log, messages, index, monitor, config.RetentionWindow)

	// 6. Services & transport
	tokens := auth.NewTokenManager(config.JWTSecret, config.SessionDuration)
	authService := services.NewAuthService(users, tokens)
	chatService := services.NewChatService(log, users, conversations, memberships,
		messages, index, &moderator, registry, fanout, reaper)

	authHandlers := httpapi.NewAuthHandlers(log, authService, config.SessionDuration, config.SecureCookies)
	chatHandlers := httpapi.NewChatHandlers(log, chatService)
	uploadHandler := httpapi.NewUploadHandler(log, config.UploadDir, config.UploadMaxBytes)
	wsHandler := ws.NewHandler(log, tokens, presence, config.ConnectionBufferSize)

	router := httpapi.NewRouter(tokens, authHandlers, chatHandlers, uploadHandler, wsHandler)
	server := httpapi.NewServer(log, fmt.Sprintf("%s:%d", config.Host, config.Port), router)

	// 7. Context & signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 8. Background workers under supervision
	sup := workers.NewSupervisor(log)
	sup.Add(
		workers.NewReaperWorker(log, conversations, reaper, config.SweepInterval),
		workers.NewTelemetryWorker(log, monitor, config.TelemetryInterval),
	)
	supDone := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(supDone)
	}()

	// 9. Serve until a signal arrives
	err = server.Run(ctx)

	sup.Stop()
	<-supDone
	log.Info("Program stopped cleanly")
	return err
}
