package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"

	"github.com/logvault-systems/logvault/internal/config"
	"github.com/logvault-systems/logvault/internal/gateway"
	"github.com/logvault-systems/logvault/internal/logging"
	"github.com/logvault-systems/logvault/internal/query"
	"github.com/logvault-systems/logvault/internal/queue"
	"github.com/logvault-systems/logvault/internal/ratelimit"
	"github.com/logvault-systems/logvault/internal/registry"
	"github.com/logvault-systems/logvault/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP gateway, query and registry services",
	Long: `serve starts the HTTP surface of the pipeline: log ingestion,
log query, project registry management and the operational endpoints
(healthz, readyz, metrics). Entries accepted here are published to the
queue; run 'logvault consume' to drain them into storage.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context) error {
	cfg, logger, err := loadConfig("serve")
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.Info("starting logvault",
		slog.Int("port", cfg.Server.Port),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Registry persistence. Postgres in production; in-memory keeps
	// development runs free of external dependencies.
	var repo registry.Repository
	if cfg.Registry.DatabaseURL != "" {
		pgRepo, err := registry.NewPostgresRepository(ctx, cfg.Registry.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		defer pgRepo.Close()

		if err := runMigrations(cfg, logger); err != nil {
			return err
		}
		repo = pgRepo
		logger.Info("connected to postgres")
	} else {
		logger.Warn("no database configured, using in-memory registry (development only)")
		repo = registry.NewInMemoryRepository()
	}

	regService := registry.NewService(repo)

	q, err := queue.NewJetStream(cfg.Queue, cfg.Consumer, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to queue: %w", err)
	}
	defer q.Close()

	backends, err := buildStorageSet(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer backends.Close()

	limiter, err := buildRateLimiter(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer limiter.Close()

	gatewayHandler := gateway.NewHandler(
		gateway.NewService(q, backends),
		regService,
		limiter,
		cfg.Ingestion.MaxBatchSize,
		logger,
	)
	queryHandler := query.NewHandler(query.NewService(backends), regService, logger)
	registryHandler := registry.NewHandler(regService, logger)

	def, err := backends.Default()
	if err != nil {
		return err
	}
	router := server.NewRouter(server.Deps{
		Gateway:  gatewayHandler,
		Query:    queryHandler,
		Registry: registryHandler,
		Readiness: map[string]server.HealthChecker{
			"registry": repo.Healthy,
			"queue":    q.Healthy,
			"storage":  def.Healthy,
		},
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		logger.Info("shutting down", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("shutting down", slog.String("reason", "context canceled"))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// runMigrations brings the registry schema up to date before serving.
func runMigrations(cfg *config.Config, logger *logging.Logger) error {
	m, err := migrate.New("file://"+cfg.Registry.MigrationsPath, cfg.Registry.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		logger.Warn("could not read migration version", slog.String("error", err.Error()))
		return nil
	}
	logger.Info("migrations complete",
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
	)
	return nil
}

func buildRateLimiter(cfg *config.Config, logger *logging.Logger) (ratelimit.RateLimiter, error) {
	if !cfg.Ingestion.RateLimitEnabled || !cfg.Redis.Enabled {
		return &ratelimit.NoOpRateLimiter{}, nil
	}
	limiter, err := ratelimit.NewRedisRateLimiter(
		cfg.Redis.URL,
		cfg.Ingestion.RateLimitRequests,
		cfg.Ingestion.RateLimitWindow,
	)
	if err != nil {
		return nil, err
	}
	logger.Info("rate limiting enabled",
		slog.Int("requests", cfg.Ingestion.RateLimitRequests),
		slog.Duration("window", cfg.Ingestion.RateLimitWindow),
	)
	return limiter, nil
}
