// Package cli defines the logvault command tree.
package cli

import (
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "logvault",
	Short: "LogVault multi-tenant log pipeline",
	Long: `logvault runs the components of the LogVault pipeline.

serve exposes the HTTP surface (ingestion, query, registry management),
consume drains the queue into the configured storage backends, and
seed generates synthetic traffic against a running gateway.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml or /etc/logvault/config.yaml)")
}
