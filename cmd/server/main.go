/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the back-office ledger server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env file, then environment)
  2. Open the store selected by STORE_DRIVER (schema is migrated on open)
  3. Connect optional infrastructure: RabbitMQ events, Redis rate limiting
  4. Create the ledger, token issuer and API handler
  5. Configure HTTP router
  6. Start server with graceful shutdown

COMMANDS:
  backoffice            Same as "serve"
  backoffice serve      Run the HTTP API
  backoffice migrate    Create or upgrade the schema and exit
  backoffice version    Print build information

FLAGS:
  --env-file   dotenv file loaded before reading the environment (default: .env)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close broker, cache and database connections
  4. Exit

ENVIRONMENT:
  See config/config.go for every variable.

EXAMPLES:
  # Local run with an in-memory store
  STORE_DRIVER=memory JWT_SECRET=dev ./backoffice

  # PostgreSQL with events and rate limiting
  STORE_DRIVER=postgres DATABASE_URL=postgres://... RABBITMQ_URL=amqp://... \
  REDIS_URL=redis://localhost:6379/0 JWT_SECRET=... ./backoffice serve

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go, store/postgres/postgres.go: Database implementations
*/
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

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/warp/backoffice/api"
	"github.com/warp/backoffice/auth"
	"github.com/warp/backoffice/buildinfo"
	"github.com/warp/backoffice/config"
	"github.com/warp/backoffice/events"
	"github.com/warp/backoffice/ledger"
	"github.com/warp/backoffice/ledger/store"
	"github.com/warp/backoffice/store/postgres"
	"github.com/warp/backoffice/store/sqlite"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var envFile string

	rootCmd := &cobra.Command{
		Use:     "backoffice",
		Short:   "Banking back-office ledger service",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", buildinfo.Version, buildinfo.Commit, buildinfo.Date),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(envFile)
		},
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(envFile)
		},
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return migrate(cmd.Context(), envFile)
		},
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), rootCmd.Version)
		},
	})

	return rootCmd
}

// =============================================================================
// COMMANDS
// =============================================================================

func serve(envFile string) error {
	cfg, logger, err := setup(envFile)
	if err != nil {
		return err
	}

	ctx := context.Background()
	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to initialize database", "driver", cfg.StoreDriver, "error", err)
		return err
	}
	defer closeStore()

	pub, closePub := newPublisher(cfg, logger)
	defer closePub()

	limiter, closeLimiter := newLimiter(ctx, cfg, logger)
	defer closeLimiter()

	l, err := newLedger(cfg, st, pub, logger)
	if err != nil {
		return err
	}
	tokens := auth.NewTokens(cfg.JWTSecret, cfg.JWTTTL)
	handler := api.NewHandler(l, tokens, auth.NewHasher(), logger)

	router := api.NewRouter(handler, api.RouterOptions{
		Origins: cfg.Origins(),
		Tokens:  tokens,
		Limiter: limiter,
		Logger:  logger,
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", server.Addr, "driver", cfg.StoreDriver, "version", buildinfo.Version)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		logger.Error("server failed", "error", err)
		return err
	case <-quit:
	}

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		return err
	}

	logger.Info("server stopped")
	return nil
}

func migrate(ctx context.Context, envFile string) error {
	cfg, logger, err := setup(envFile)
	if err != nil {
		return err
	}
	if cfg.StoreDriver == "memory" {
		logger.Info("memory store has no schema to migrate")
		return nil
	}
	_, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("migration failed", "driver", cfg.StoreDriver, "error", err)
		return err
	}
	closeStore()
	logger.Info("schema up to date", "driver", cfg.StoreDriver)
	return nil
}

// =============================================================================
// WIRING
// =============================================================================

func setup(envFile string) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return cfg, nil, fmt.Errorf("load config: %w", err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func openStore(ctx context.Context, cfg config.Config) (ledger.TxStore, func(), error) {
	switch cfg.StoreDriver {
	case "memory":
		return store.NewMemory(), func() {}, nil
	case "postgres":
		s, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		s, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	}
}

// newPublisher falls back to logging events when the broker is not
// configured or unreachable at startup.
func newLedger(cfg config.Config, st ledger.TxStore, pub ledger.Publisher, logger *slog.Logger) (*ledger.Ledger, error) {
	floor, err := cfg.Floor()
	if err != nil {
		return nil, err
	}
	return ledger.New(st, ledger.Options{
		HistoryFloor:       floor,
		DefaultAccountType: ledger.AccountTypeID(cfg.DefaultAccountType),
		Publisher:          pub,
		Logger:             logger,
	}), nil
}

func newPublisher(cfg config.Config, logger *slog.Logger) (ledger.Publisher, func()) {
	fallback := events.Fallback{Log: logger}
	if cfg.RabbitMQURL == "" {
		return fallback, func() {}
	}
	p, err := events.NewProducer(cfg.RabbitMQURL, cfg.EventsExchange, logger)
	if err != nil {
		logger.Warn("event broker unavailable, events will not be published", "component", "events", "error", err)
		return fallback, func() {}
	}
	return p, func() {
		if err := p.Close(); err != nil {
			logger.Warn("failed to close event producer", "component", "events", "error", err)
		}
	}
}

// newLimiter returns nil when rate limiting is disabled.
func newLimiter(ctx context.Context, cfg config.Config, logger *slog.Logger) (api.Limiter, func()) {
	if cfg.RedisURL == "" {
		return nil, func() {}
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Warn("invalid REDIS_URL, rate limiting disabled", "component", "api", "error", err)
		return nil, func() {}
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		// the limiter fails open, so an unreachable redis only disables limiting
		logger.Warn("redis unreachable at startup", "component", "api", "error", err)
	}
	return api.NewRedisLimiter(client, cfg.RateLimitPrefix, cfg.RateLimitPerMinute, time.Minute), func() { _ = client.Close() }
}
