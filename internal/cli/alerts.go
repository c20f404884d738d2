package cli

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/minimib/internal/config"
	"github.com/roach88/minimib/internal/store"
)

// AlertsOptions holds flags for the alerts command.
type AlertsOptions struct {
	*RootOptions
	DB     string
	Config string
	Limit  int
}

// NewAlertsCommand creates the alerts command.
func NewAlertsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AlertsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "List recorded threshold alerts",
		Long: `List the alert history kept by a running agent, newest first.

The history database is given with --db, or read from the alerts.db
setting of the agent config.`,
		Example: `  minimib alerts --db /var/lib/minimib/alerts.db --limit 5
  minimib alerts --config minimib.yaml --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAlerts(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DB, "db", "", "alert history database")
	cmd.Flags().StringVar(&opts.Config, "config", "", "agent config file naming the database")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "maximum alerts to list (0 for all)")

	return cmd
}

func runAlerts(opts *AlertsOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	path := opts.DB
	if path == "" && opts.Config != "" {
		cfg, err := config.Load(opts.Config)
		if err != nil {
			_ = formatter.Error(ErrCodeConfig, err.Error(), nil)
			return WrapExitError(ExitCommandError, "load config", err)
		}
		path = cfg.Alerts.DB
	}
	if path == "" {
		err := fmt.Errorf("no alert database: pass --db or a config with alerts.db")
		return usageError(opts.RootOptions, cmd, err)
	}

	// Opening creates the file, so check first.
	if _, err := os.Stat(path); err != nil {
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("alert database not found: %s", path), nil)
		return WrapExitError(ExitCommandError, "alert database not found", err)
	}

	db, err := store.OpenSQLite(path, nil)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "open alert database", err)
	}
	defer db.Close()

	records, err := db.ListAlerts(cmd.Context(), opts.Limit)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitFailure, "list alerts", err)
	}
	formatter.VerboseLog("Read %d alert(s) from %s", len(records), path)

	if formatter.Format == "json" {
		return formatter.Success(records, "")
	}

	w := formatter.Writer
	if len(records) == 0 {
		fmt.Fprintln(w, "No alerts recorded.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tRAISED\tVALUE\tTHRESHOLD\tRECIPIENT\tSINKS")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\n",
			r.ID, r.RaisedAt.Format(time.RFC3339), r.Value, r.Threshold, r.Recipient, formatSinks(r.Sinks))
	}
	return tw.Flush()
}

// formatSinks renders sink results sorted by sink name.
func formatSinks(sinks map[string]string) string {
	parts := make([]string, 0, len(sinks))
	for _, name := range slices.Sorted(maps.Keys(sinks)) {
		parts = append(parts, name+"="+sinks[name])
	}
	return strings.Join(parts, " ")
}
