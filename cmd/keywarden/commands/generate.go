package commands

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/vtlabs/keywarden/internal/config"
	"github.com/vtlabs/keywarden/internal/issuer"
	"github.com/vtlabs/keywarden/internal/keys"
)

// NewGenerateCommand issues a new pending key for a service. The secret
// value is read from stdin or an environment variable, never from a flag,
// so it cannot leak through shell history or process listings.
func NewGenerateCommand(cfg *config.Config) *cobra.Command {
	var (
		serviceName   string
		reason        string
		secretEnv     string
		externalKeyID string
		jsonOutput    bool
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Issue a new pending key for a service",
		Long: `Issue a new pending key. The key takes no traffic until it is
activated; generate first, update the downstream service, then activate.

The secret value is read from stdin by default:

  keywarden generate --service gemini --reason scheduled < new-key.txt
  echo -n "$NEW_KEY" | keywarden generate --service gemini --reason manual

or from an environment variable:

  keywarden generate --service gemini --reason scheduled --secret-env NEW_KEY`,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := readSecret(secretEnv)
			if err != nil {
				return err
			}

			app, cleanup, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			view, err := app.engine.Generate(cmd.Context(), issuer.Request{
				Service:       keys.Service(strings.ToLower(serviceName)),
				Secret:        secret,
				Reason:        reason,
				ExternalKeyID: externalKeyID,
				Actor:         actor(cfg),
			})
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(view)
			}

			cfg.Logger.Info("issued pending key %s for %s", view.ID, view.Service)
			cfg.Logger.Info("activate it once the downstream service accepts it: keywarden activate %s", view.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&serviceName, "service", "", "Service the key belongs to (required)")
	cmd.Flags().StringVar(&reason, "reason", "", "Rotation reason: scheduled, security_incident, compliance or manual (required)")
	cmd.Flags().StringVar(&secretEnv, "secret-env", "", "Read the secret from this environment variable instead of stdin")
	cmd.Flags().StringVar(&externalKeyID, "external-id", "", "Provider-side identifier of the key, if any")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output JSON")
	cmd.MarkFlagRequired("service")
	cmd.MarkFlagRequired("reason")
	return cmd
}

// readSecret obtains the raw secret from the named environment variable
// or, when unset, from stdin. Trailing newlines are stripped.
func readSecret(secretEnv string) (string, error) {
	if secretEnv != "" {
		value := os.Getenv(secretEnv)
		if value == "" {
			return "", fmt.Errorf("environment variable %s is empty or unset", secretEnv)
		}
		return value, nil
	}

	reader := bufio.NewReader(os.Stdin)
	var sb strings.Builder
	buf := make([]byte, 4096)
	for {
		n, err := reader.Read(buf)
		sb.Write(buf[:n])
		if err != nil {
			break
		}
	}
	return strings.TrimRight(sb.String(), "\r\n"), nil
}
