package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dm-relay/internal"
	"dm-relay/moderation"
	"dm-relay/observability"
	"dm-relay/repositories"
	"dm-relay/runtime"
	"dm-relay/runtime/workers"
	"dm-relay/transport"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and
// centralizes error reporting so deferred cleanup always executes.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	censoredChar, err := internal.CharacterRune(config.CensoredChar)
	if err != nil {
		return err
	}

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

	// 3. Storage, metrics, moderation
	metrics := observability.New()
	users := repositories.NewUserRepository(db)
	conversations := repositories.NewConversationRepository(db)
	messages := repositories.NewMessageRepository(db, log, config.LimitMessages)

	moderator, err := moderation.New(config.CensoredWords, censoredChar)
	if err != nil {
		return fmt.Errorf("moderation setup failed: %w", err)
	}

	// 4. Engine wiring. The gateway comes first because the routing core
	// consumes it as its Transport.
	gateway := transport.NewGateway(log, metrics, transport.GatewayConfig{
		QueueSize:  config.ConnectionQueueSize,
		PongWait:   config.PongWait,
		PingPeriod: config.PingPeriod,
		WriteWait:  config.WriteWait,
	})
	registry := runtime.NewRegistry()
	presence := runtime.NewPresence(log, registry, users, gateway, metrics)
	receipts := runtime.NewReceipts(log, registry, conversations, messages, gateway, metrics)
	router := runtime.NewRouter(log, registry, users, messages, gateway, receipts, moderator, metrics)
	gateway.Bind(presence, router)

	// 5. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 6. Supervised background workers
	sup := workers.NewSupervisor(log)
	sup.Add(
		workers.NewSweeperWorker(log, gateway, config.SweepInterval, config.LivenessWindow),
		workers.NewReporterWorker(log, registry, gateway, config.ReportInterval),
	)
	go sup.Run(ctx)

	// 7. Debug server (health, metrics, storage inspection, history reads)
	internal.StartDebugServer(log, db, messages, config.DebugPort, func() map[string]any {
		return map[string]any{
			"connections":  gateway.Len(),
			"online_users": len(registry.OnlineUsers()),
		}
	})

	// 8. Websocket endpoint
	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	mux := http.NewServeMux()
	mux.Handle("/ws", gateway)
	server := &http.Server{Addr: address, Handler: mux}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting relay server", "address", address, "at", time.Now().UTC())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("relay server error: %w", err)
		}
	}()

	// 9. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("Server shutdown incomplete", "error", err)
	}
	return nil
}
