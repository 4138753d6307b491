package main

import (
	"fmt"
	"io"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/blakegallagher1/gpc-cres-sub006/internal/model"
	"github.com/blakegallagher1/gpc-cres-sub006/internal/report"
	"github.com/blakegallagher1/gpc-cres-sub006/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect and import evaluation run history",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List evaluation runs, most recently updated first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		filter, err := runFilterFromFlags(cmd)
		if err != nil {
			return err
		}
		format, _ := cmd.Flags().GetString("format")

		env, err := initService(ctx, "evaluate")
		if err != nil {
			return err
		}
		defer env.Close()

		runs, err := env.Service.ListRuns(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "runs list")
		}
		return writeRuns(cmd.OutOrStdout(), format, runs)
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initService(ctx, "evaluate")
		if err != nil {
			return err
		}
		defer env.Close()

		run, err := env.Service.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}
		return writeJSON(cmd.OutOrStdout(), run)
	},
}

// -- runs import --

var runsImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Upsert runs from a JSON array (for example a runs list --format json export)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		var runs []model.Run
		if err := decodeInput(cmd, &runs); err != nil {
			return err
		}

		env, err := initService(ctx, "evaluate")
		if err != nil {
			return err
		}
		defer env.Close()

		n, err := env.Store.ImportRuns(ctx, runs)
		if err != nil {
			return eris.Wrap(err, "runs import")
		}
		zap.L().Info("runs: import complete", zap.Int64("runs", n))
		fmt.Fprintf(cmd.ErrOrStderr(), "imported %d runs\n", n)
		return nil
	},
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize recent runs by status and run type",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		since, _ := cmd.Flags().GetDuration("since")
		hours := int(since.Hours())
		if hours < 1 {
			hours = 1
		}

		env, err := initService(ctx, "evaluate")
		if err != nil {
			return err
		}
		defer env.Close()

		snap, err := env.Collector().Collect(ctx, hours)
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}
		return writeJSON(cmd.OutOrStdout(), snap)
	},
}

func init() {
	addRunFilterFlags(runsListCmd)
	runsListCmd.Flags().String("format", report.FormatTable, "output format: table, csv or json")
	addInputFlag(runsImportCmd)
	runsStatsCmd.Flags().Duration("since", 24*time.Hour, "lookback window (whole hours)")

	runsCmd.AddCommand(runsListCmd, runsShowCmd, runsStatsCmd, runsImportCmd)
	rootCmd.AddCommand(runsCmd)
}

func addRunFilterFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("type", "", "filter by run type")
	f.String("deal", "", "filter by deal id")
	f.String("org", "", "filter by org id")
	f.String("status", "", "filter by status (running, complete, failed)")
	f.Int("limit", 20, "max runs to show")
	f.Int("offset", 0, "runs to skip")
}

func runFilterFromFlags(cmd *cobra.Command) (store.RunFilter, error) {
	runType, _ := cmd.Flags().GetString("type")
	dealID, _ := cmd.Flags().GetString("deal")
	orgID, _ := cmd.Flags().GetString("org")
	status, _ := cmd.Flags().GetString("status")
	limit, _ := cmd.Flags().GetInt("limit")
	offset, _ := cmd.Flags().GetInt("offset")

	filter := store.RunFilter{
		DealID: dealID,
		OrgID:  orgID,
		Limit:  limit,
		Offset: offset,
	}
	if runType != "" {
		rt, err := model.ParseRunType(runType)
		if err != nil {
			return store.RunFilter{}, err
		}
		filter.RunType = rt
	}
	switch rs := model.RunStatus(status); rs {
	case "":
	case model.RunStatusRunning, model.RunStatusComplete, model.RunStatusFailed:
		filter.Status = rs
	default:
		return store.RunFilter{}, eris.Errorf("unknown run status %q", status)
	}
	return filter, nil
}

func writeRuns(w io.Writer, format string, runs []model.Run) error {
	if format == report.FormatJSON {
		return writeJSON(w, runs)
	}
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "No runs found.")
		return err
	}

	rows := make([]report.Row, len(runs))
	for i, r := range runs {
		rows[i] = report.FromRun(r, false)
	}
	switch format {
	case report.FormatCSV:
		return report.WriteCSV(w, rows)
	case report.FormatTable, "":
		return report.WriteTable(w, rows)
	default:
		return eris.Errorf("unknown output format %q", format)
	}
}
