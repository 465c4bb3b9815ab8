package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"

	"chat-intel/annotation"
	"chat-intel/contract"
	"chat-intel/gateway"
	"chat-intel/internal"
	"chat-intel/moderation"
	"chat-intel/observability"
	"chat-intel/repositories"
	"chat-intel/runtime"
	"chat-intel/runtime/workers"
	"chat-intel/search"
	"chat-intel/transport/ws"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	// The main function acts as a thin wrapper.
	// Its only responsibility is to call run() and handle the OS exit code.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// Returning instead of os.Exit keeps the defers (database close, index
// close) running on every exit path.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()

	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	charReplacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return exitConfig, err
	}

	logger := internal.GetLoggerFromString(config.LogLevel)
	ctx := context.Background()

	// 2. Storage (BadgerDB) & Search (Bluge)
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		// Defer ensures the database lock is released and buffers are flushed before the function returns.
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open bluge writer: %w", err)
	}
	defer func() {
		logger.Info("Closing Bluge...")
		_ = blugeWriter.Close()
	}()

	// 3. Moderation & Annotation
	censored, err := moderation.LoadEmbedded()
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to load censored words: %w", err)
	}
	moderator, err := moderation.NewModerator(censored.Words, charReplacement)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to build moderator: %w", err)
	}
	logger.Info("Moderation ready", "words", len(censored.Words), "languages", censored.Languages)

	var annotator contract.IAnnotator
	annotatorMode := "lexicon"
	if config.AnnotationURL != "" {
		annotator = annotation.NewHTTPAnnotator(config.AnnotationURL, config.AnnotationTimeout, logger)
		annotatorMode = "sidecar"
		logger.Info("Using sidecar annotator", "url", config.AnnotationURL)
	} else {
		annotator = annotation.NewLexiconAnnotator()
		logger.Info("Using embedded lexicon annotator")
	}

	// 4. Engine (supervisor, registry, gateway)
	monitor := observability.NewMonitor()
	messageRepository := repositories.NewMessageRepository(db, logger)
	messageIndex := search.NewMessageIndex(blugeWriter, logger)

	sup := workers.NewSupervisor(logger, config.RestartInterval)
	sup.Add(workers.NewHealthWorker(logger, monitor, config.MetricInterval))

	registry := runtime.NewRegistry(logger, runtime.SessionDeps{
		Log:       logger,
		Annotator: annotator,
		Store:     messageRepository,
		Index:     messageIndex,
		Moderator: &moderator,
		Monitor:   monitor,
	}, runtime.SessionConfig{
		MailboxSize:       config.BufferSize,
		GracePeriod:       config.GracePeriod,
		AnnotationTimeout: config.AnnotationTimeout,
		AnalyticsInterval: config.AnalyticsInterval,
		HistoryLimit:      config.HistoryLimit,
		TopEntities:       config.TopEntities,
		MaxContentLength:  config.MaxContentLength,
	}, sup)

	gw := gateway.NewGateway(logger, registry, messageIndex, monitor, config.SearchLimit)

	// 5. Context & Signals
	// NotifyContext captures OS signals and cancels the context to trigger a shutdown.
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry.Start(ctx)
	go sup.Run(ctx)

	// 6. HTTP / Websocket Server
	wsServer := ws.NewServer(logger, gw, config.ConnectionBufferSize, annotatorMode)
	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	httpServer := &http.Server{
		Addr:              address,
		Handler:           wsServer.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("Starting websocket server", "address", address, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 7. Wait for Stop or Error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		return exitRuntime, err
	}

	// 8. Final Cleanup (Graceful Shutdown)
	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown did not complete", "error", err)
	}
	sup.Stop()
	logger.Info("Program stopped cleanly")

	return exitOK, nil
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG).
			WithBypassLockGuard(true)
	} else {
		options = options.WithLoggingLevel(badger.INFO)
	}

	return options
}
