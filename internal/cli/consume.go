package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/logvault-systems/logvault/internal/consumer"
	"github.com/logvault-systems/logvault/internal/queue"
)

var consumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Drain queued log entries into storage",
	Long: `consume subscribes to the log entry stream and writes each entry
to the storage backend named in its envelope. Transient write failures
are retried in process and then handed back to the queue; permanent
failures and poison messages are acknowledged and dropped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConsume(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(consumeCmd)
}

func runConsume(ctx context.Context) error {
	cfg, logger, err := loadConfig("consume")
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backends, err := buildStorageSet(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer backends.Close()

	q, err := queue.NewJetStream(cfg.Queue, cfg.Consumer, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to queue: %w", err)
	}
	defer q.Close()

	dispatcher := consumer.NewDispatcher(backends, cfg.Consumer, cfg.Storage.WriteTimeout, logger)
	logger.Info("consumer running")
	if err := dispatcher.Run(ctx, q); err != nil {
		return fmt.Errorf("consumer error: %w", err)
	}

	logger.Info("consumer stopped")
	return nil
}
