package commands

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"github.com/vtlabs/keywarden/internal/config"
	"github.com/vtlabs/keywarden/internal/keys"
)

// NewActivateCommand promotes a pending key to active primary, demoting
// the current primary in the same step.
func NewActivateCommand(cfg *config.Config) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "activate <key-id>",
		Short: "Promote a pending key to active primary",
		Long: `Promote a pending key to active primary. If the service already has
a primary, it is demoted to deprecating in the same atomic step, so the
service always has exactly one primary.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			view, err := app.engine.Activate(cmd.Context(), args[0], actor(cfg))
			if err != nil {
				return err
			}
			return printTransition(cfg, view, jsonOutput, "key %s is now the active primary for %s")
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output JSON")
	return cmd
}

// NewDeprecateCommand moves an active key to deprecating. Repeating the
// command on an already-deprecating key succeeds without changing state,
// so interrupted rotations can be retried.
func NewDeprecateCommand(cfg *config.Config) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "deprecate <key-id>",
		Short: "Move an active key to deprecating",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			view, err := app.engine.Deprecate(cmd.Context(), args[0], actor(cfg))
			if err != nil {
				return err
			}
			return printTransition(cfg, view, jsonOutput, "key %s is deprecating for %s")
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output JSON")
	return cmd
}

// NewRevokeCommand permanently terminates a key from any non-revoked
// state. Use it for compromised keys; prefer deprecate for routine
// rotation so in-flight callers keep working.
func NewRevokeCommand(cfg *config.Config) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Permanently revoke a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			view, err := app.engine.Revoke(cmd.Context(), args[0], actor(cfg))
			if err != nil {
				return err
			}
			return printTransition(cfg, view, jsonOutput, "key %s is revoked for %s")
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output JSON")
	return cmd
}

func printTransition(cfg *config.Config, view keys.View, jsonOutput bool, format string) error {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	}
	cfg.Logger.Info(format, view.ID, view.Service)
	return nil
}
