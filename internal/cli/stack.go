package cli

import (
	"context"
	"log/slog"

	"github.com/logvault-systems/logvault/internal/config"
	"github.com/logvault-systems/logvault/internal/logging"
	"github.com/logvault-systems/logvault/internal/storage"
)

// loadConfig reads the configuration and builds the process logger.
func loadConfig(component string) (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}

	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(slog.String("service", "logvault"), logging.Component(component))
	logging.SetDefault(logger)

	return cfg, logger, nil
}

// buildStorageSet registers every backend the configuration enables.
// SQLite is mandatory; OpenSearch and S3 are skipped with a warning when
// unreachable so the pipeline can run on SQLite alone.
func buildStorageSet(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*storage.Set, error) {
	set := storage.NewSet(storage.Kind(cfg.Storage.DefaultBackend))

	sqlite, err := storage.NewSQLite(cfg.Storage.SQLite.Path)
	if err != nil {
		return nil, err
	}
	set.Register(sqlite)

	if cfg.Storage.OpenSearch.URL != "" {
		osb, err := storage.NewOpenSearch(cfg.Storage.OpenSearch)
		if err != nil {
			logger.Warn("opensearch backend unavailable, skipping",
				slog.String("url", cfg.Storage.OpenSearch.URL),
				slog.String("error", err.Error()),
			)
		} else {
			set.Register(osb)
		}
	}

	if cfg.Storage.S3.Endpoint != "" {
		s3b, err := storage.NewS3(ctx, cfg.Storage.S3)
		if err != nil {
			logger.Warn("s3 backend unavailable, skipping",
				slog.String("endpoint", cfg.Storage.S3.Endpoint),
				slog.String("error", err.Error()),
			)
		} else {
			set.Register(s3b)
		}
	}

	logger.Info("storage backends registered",
		slog.Any("backends", set.Kinds()),
		slog.String("default", cfg.Storage.DefaultBackend),
	)
	return set, nil
}
