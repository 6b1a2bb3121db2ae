// Package cli wires the harvest commands: one subcommand per harvest type,
// plus run history and version.
package cli

import (
	"context"

	"github.com/spf13/cobra"

	config "github.com/custodia-labs/harvest-cli/internal/adapters/driven/config/file"
	"github.com/custodia-labs/harvest-cli/internal/logger"
)

// version is set at build time via -ldflags.
var version = "dev"

var (
	cfgPath string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "harvest",
	Short: "Incremental engineering-activity harvester",
	Long: `Harvest pulls engineering activity (pull requests, review comments,
contributor stats, ticket assignments, ticket comments, forum posts and
replies) from GitHub, Jira and Discourse into per-harvest output files.

Every harvest is checkpointed after each accepted item, so a killed run
resumes where it left off without duplicating rows.`,
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c",
		"config/harvest.toml", "path to the TOML configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v",
		false, "enable debug logging")
}

// loadConfig reads the configured TOML file.
func loadConfig() (*config.Config, error) {
	return config.Load(cfgPath)
}

// Execute runs the root command. The context is cancelled on shutdown
// signals so in-flight harvests checkpoint and exit cleanly.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
