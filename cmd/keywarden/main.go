package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/vtlabs/keywarden/cmd/keywarden/commands"
	"github.com/vtlabs/keywarden/internal/config"
	"github.com/vtlabs/keywarden/internal/logging"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Global flags
	var (
		configFile string
		noColor    bool
		debug      bool
		actor      string
	)

	cfg := &config.Config{}

	rootCmd := &cobra.Command{
		Use:   "keywarden",
		Short: "API key lifecycle manager - rotate credentials without downtime",
		Long: `keywarden manages the API keys the platform uses against its
downstream services (model inference, voice, database). Keys move through a
forward-only lifecycle (pending, active, deprecating, revoked) so a new key
is always live before the old one stops answering.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger := logging.New(debug, noColor)

			cfg.Path = configFile
			cfg.Logger = logger
			cfg.Actor = actor
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "keywarden.yaml", "Config file path")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&actor, "actor", "", "Operator recorded in the audit trail (defaults to $USER)")

	rootCmd.AddCommand(
		commands.NewInitCommand(cfg),
		commands.NewListCommand(cfg),
		commands.NewGenerateCommand(cfg),
		commands.NewActivateCommand(cfg),
		commands.NewDeprecateCommand(cfg),
		commands.NewRevokeCommand(cfg),
		commands.NewResolveCommand(cfg),
		commands.NewHealthCommand(cfg),
		commands.NewAlertsCommand(cfg),
		commands.NewAuditCommand(cfg),
		commands.NewCompletionCommand(cfg),
	)

	return rootCmd.Execute()
}
