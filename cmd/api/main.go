package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tradedesk/internal/cleanup"
	"tradedesk/internal/config"
	"tradedesk/internal/database"
	"tradedesk/internal/handler"
	"tradedesk/internal/notify"
	"tradedesk/internal/ordernum"
	"tradedesk/internal/repository"
	"tradedesk/internal/router"
	"tradedesk/internal/service"
	"tradedesk/internal/storage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Initialize logger
	logger := config.NewLogger(cfg.Logger)
	logger.Info().Msg("starting tradedesk API server")

	// Create context for application lifecycle
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Run schema migrations before opening the pool
	if err := database.Migrate(cfg.Database, logger); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// Initialize database connection pool
	pool, err := database.NewPool(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer pool.Close()

	// Initialize repositories
	artifactRepo := repository.NewArtifactRepository(pool, logger)
	orderRepo := repository.NewOrderRepository(pool, logger)
	messageRepo := repository.NewMessageRepository(pool, logger)
	userRepo := repository.NewUserRepository(pool, logger)
	rateLimitRepo := repository.NewRateLimitRepository(pool, logger)
	cleanupRepo := repository.NewCleanupRepository(pool, logger)

	// Initialize attachment store with S3 and local fallback
	var store storage.ObjectStore
	if cfg.S3.Enabled {
		s3Store, err := storage.NewS3Store(ctx, cfg.S3.Bucket, cfg.S3.Region, cfg.S3.Prefix, logger)
		if err != nil {
			logger.Warn().
				Err(err).
				Msg("failed to initialise S3 store, falling back to local file system")
			store = storage.NewLocalStore("uploads", logger)
		} else {
			store = s3Store
		}
	} else {
		store = storage.NewLocalStore("uploads", logger)
		logger.Info().Msg("using local file system for attachments (S3 disabled)")
	}

	// Initialize notification dispatcher over the enabled transports
	httpClient := &http.Client{Timeout: cfg.Notify.Timeout}
	var transports []notify.Transport
	if cfg.Notify.PushURL != "" {
		transports = append(transports, notify.NewHTTPTransport("push", cfg.Notify.PushURL, httpClient, logger))
	}
	if cfg.Notify.EmailURL != "" {
		transports = append(transports, notify.NewHTTPTransport("email", cfg.Notify.EmailURL, httpClient, logger))
	}
	if cfg.Notify.TelegramURL != "" {
		transports = append(transports, notify.NewHTTPTransport("telegram", cfg.Notify.TelegramURL, httpClient, logger))
	}
	dispatcher := notify.NewDispatcher(transports, cfg.Notify.Timeout, logger)

	// Initialize services
	numbers := ordernum.NewGenerator()
	orderService := service.NewOrderService(orderRepo, artifactRepo, userRepo, numbers, dispatcher, logger)
	negotiationService := service.NewNegotiationService(orderRepo, artifactRepo, userRepo, dispatcher, logger)
	messageService := service.NewMessageService(messageRepo, orderRepo, artifactRepo, store, dispatcher, logger)

	// Start the background cleanup sweeper
	sweeper := cleanup.NewSweeper(cleanupRepo, orderRepo, messageRepo, store,
		cfg.Cleanup.Interval, cfg.Cleanup.Retention, logger)
	go sweeper.Run(ctx)

	// Initialize HTTP handlers and router
	orderHandler := handler.NewOrderHandler(orderService, negotiationService, messageService, logger)
	mux := router.New(orderHandler, rateLimitRepo, cfg.RateLimit, logger)

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Channel to listen for errors from the server
	serverErrors := make(chan error, 1)

	// Start HTTP server in a goroutine
	go func() {
		logger.Info().
			Str("address", cfg.Server.Address()).
			Msg("HTTP server started")
		serverErrors <- server.ListenAndServe()
	}()

	// Channel to listen for interrupt signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a signal or an error
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		logger.Info().
			Str("signal", sig.String()).
			Msg("shutdown signal received, starting graceful shutdown")

		// Create a context with timeout for shutdown
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		// Attempt graceful shutdown
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown server gracefully")
			// Force close
			if closeErr := server.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to close server")
			}
			return fmt.Errorf("server shutdown failed: %w", err)
		}

		logger.Info().Msg("server shutdown completed")
	}

	return nil
}
