package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/logvault-systems/logvault/internal/seeder"
)

var seedScenario string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Generate synthetic log traffic",
	Long: `seed loads a scenario file and posts generated log batches to a
running gateway. Useful for demos and for exercising the pipeline end
to end.`,
	Example: `  logvault seed --scenario scenarios/demo.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSeed(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
	seedCmd.Flags().StringVar(&seedScenario, "scenario", "", "path to the scenario YAML (required)")
	_ = seedCmd.MarkFlagRequired("scenario")
}

func runSeed(ctx context.Context) error {
	_, logger, err := loadConfig("seed")
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	scenario, err := seeder.LoadScenario(seedScenario)
	if err != nil {
		return fmt.Errorf("failed to load scenario: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	queued, failed, err := seeder.New(scenario, logger).Run(ctx)
	logger.Info("seeding finished",
		slog.Int("queued", queued),
		slog.Int("failed", failed),
	)
	if err != nil {
		return fmt.Errorf("seeding aborted: %w", err)
	}
	return nil
}
