package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/vtlabs/keywarden/internal/config"
	"github.com/vtlabs/keywarden/internal/health"
)

// NewHealthCommand grades key condition: one key when an id is given,
// otherwise every stored key.
func NewHealthCommand(cfg *config.Config) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "health [key-id]",
		Short: "Report key age, lifetime consumption and expiry status",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			var reports []health.Report
			if len(args) == 1 {
				report, err := app.analyzer.CheckKeyHealth(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				reports = []health.Report{report}
			} else {
				if reports, err = app.analyzer.CheckHealth(cmd.Context()); err != nil {
					return err
				}
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(reports)
			}

			if len(reports) == 0 {
				fmt.Println("No key records.")
				return nil
			}
			printReports(reports)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output JSON")
	return cmd
}

func printReports(reports []health.Report) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tSERVICE\tSTATUS\tROLE\tAGE\tLIFETIME\tLEVEL\tNOTE")
	for _, report := range reports {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%dd\t%.0f%%\t%s\t%s\n",
			shortID(report.KeyID), report.Service, report.Status, report.Role,
			report.AgeInDays, report.LifetimeConsumed*100, report.Level, report.Message)
	}
	w.Flush()
}

// NewAlertsCommand sweeps every service for rotation problems. Exits
// non-zero when anything critical is found, for use in cron and CI.
func NewAlertsCommand(cfg *config.Config) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Report services that need a rotation",
		Long: `Scan all services and report what needs attention:

  warning   the primary key has crossed its lifetime threshold
  error     a usable key is past its expiry
  critical  the service has no active primary at all

Exits with status 1 when any critical alert is present.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			alerts, err := app.analyzer.GetRotationAlerts(cmd.Context())
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(alerts); err != nil {
					return err
				}
			} else if len(alerts) == 0 {
				cfg.Logger.Info("all services healthy")
			} else {
				for _, alert := range alerts {
					switch alert.Severity {
					case health.SeverityWarning:
						cfg.Logger.Warn("%s: %s", alert.Service, alert.Message)
					default:
						cfg.Logger.Error("%s: %s", alert.Service, alert.Message)
					}
				}
			}

			for _, alert := range alerts {
				if alert.Severity == health.SeverityCritical {
					return fmt.Errorf("critical: at least one service has no active primary key")
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output JSON")
	return cmd
}
