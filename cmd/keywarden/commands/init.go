package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/vtlabs/keywarden/internal/config"
)

const configTemplate = `# keywarden configuration
version: 1

storage:
  path: ~/.keywarden/keys.db

# Environment variable holding the 32-byte master key (base64 or hex).
master_key_env: KEYWARDEN_MASTER_KEY

# JSONL audit log. Defaults to a file next to the database.
# audit_log: ~/.keywarden/audit.log

# How long a mutating command waits for another in-flight operation on the
# same service before giving up.
guard_timeout_ms: 5000

# Requirements enforced on raw secret values before they are accepted.
secret_policy:
  min_length: 16

# Per-service lifetime overrides. Built-in services (gemini, livekit,
# supabase) use 90d / 0.70 unless listed here; listing a new name
# registers it.
services:
  gemini:
    max_lifetime: 90d
    warning_threshold: 0.70
    grace_windows:
      scheduled: 72h
      security_incident: 1h
`

// NewInitCommand scaffolds a starter keywarden.yaml.
func NewInitCommand(cfg *config.Config) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a starter keywarden.yaml",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(cfg.Path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", cfg.Path)
			}

			if err := os.WriteFile(cfg.Path, []byte(configTemplate), 0644); err != nil {
				return fmt.Errorf("write %s: %w", cfg.Path, err)
			}

			cfg.Logger.Info("created %s", cfg.Path)
			cfg.Logger.Info("set a master key before issuing keys, e.g.:")
			fmt.Printf("  export %s=$(openssl rand -base64 32)\n", config.DefaultMasterKeyEnv)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")
	return cmd
}
