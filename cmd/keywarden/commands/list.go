package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/vtlabs/keywarden/internal/config"
	"github.com/vtlabs/keywarden/internal/keys"
)

// NewListCommand lists key records. Output is always redacted; there is
// no flag that reveals secret material.
func NewListCommand(cfg *config.Config) *cobra.Command {
	var (
		serviceName string
		jsonOutput  bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List key records, newest first",
		Long: `List key records across all services or for one service.

Examples:
  keywarden list
  keywarden list --service gemini
  keywarden list --service gemini --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			views, err := app.engine.List(cmd.Context(), keys.Service(serviceName))
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(views)
			}

			if len(views) == 0 {
				fmt.Println("No key records. Use 'keywarden generate' to issue one.")
				return nil
			}
			printViews(views)
			return nil
		},
	}

	cmd.Flags().StringVar(&serviceName, "service", "", "Limit to one service")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output JSON")
	return cmd
}
