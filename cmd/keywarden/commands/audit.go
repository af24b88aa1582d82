package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/vtlabs/keywarden/internal/config"
)

// NewAuditCommand shows recent audit trail entries.
func NewAuditCommand(cfg *config.Config) *cobra.Command {
	var (
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show recent lifecycle operations from the audit trail",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			entries, err := app.trail.Tail(limit)
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}

			if len(entries) == 0 {
				fmt.Println("Audit trail is empty.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tACTOR\tOPERATION\tSERVICE\tKEY\tTRANSITION")
			for _, entry := range entries {
				transition := ""
				if entry.FromStatus != "" || entry.ToStatus != "" {
					transition = fmt.Sprintf("%s -> %s", entry.FromStatus, entry.ToStatus)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					formatTimestamp(entry.Timestamp), entry.Actor, entry.Operation,
					entry.Service, shortID(entry.KeyID), transition)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Number of entries to show (0 for all)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output JSON")
	return cmd
}
