package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/vtlabs/keywarden/internal/config"
	"github.com/vtlabs/keywarden/internal/keys"
)

// NewResolveCommand prints the secret a service should use right now.
// This is the only read path that reveals secret material; everything
// else is redacted.
func NewResolveCommand(cfg *config.Config) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "resolve <service>",
		Short: "Print the secret the service should use right now",
		Long: `Print the decrypted secret of the service's active primary key.
When no primary exists, the most recent still-usable key answers instead
and a warning is logged. The raw value goes to stdout for scripting:

  export GEMINI_API_KEY=$(keywarden resolve gemini)`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			res, err := app.engine.Resolve(cmd.Context(), keys.Service(strings.ToLower(args[0])))
			if err != nil {
				return err
			}
			defer res.Secret.Destroy()

			locked, err := res.Secret.Open()
			if err != nil {
				return err
			}
			defer locked.Destroy()

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					KeyID   string       `json:"key_id"`
					Service keys.Service `json:"service"`
					Source  string       `json:"source"`
					Secret  string       `json:"secret"`
				}{res.View.ID, res.View.Service, res.Source, locked.String()})
			}

			fmt.Println(locked.String())
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output JSON with key metadata")
	return cmd
}
