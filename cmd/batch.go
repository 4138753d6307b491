package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/blakegallagher1/gpc-cres-sub006/internal/evaluation"
	"github.com/blakegallagher1/gpc-cres-sub006/internal/model"
	"github.com/blakegallagher1/gpc-cres-sub006/internal/report"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Evaluate many deals from a JSON or XLSX request file",
	Long: `Reads evaluation requests from a JSON array or an XLSX sheet with the
columns run_type, deal_id, org_id, payload and (optionally) force_rerun,
evaluates them concurrently and writes one summary row per request.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		path, _ := cmd.Flags().GetString("input")
		sheet, _ := cmd.Flags().GetString("sheet")
		format, _ := cmd.Flags().GetString("format")
		out, _ := cmd.Flags().GetString("out")
		concurrency, _ := cmd.Flags().GetInt("concurrency")
		if concurrency <= 0 {
			concurrency = cfg.Batch.MaxConcurrent
		}

		reqs, err := loadBatchRequests(path, sheet)
		if err != nil {
			return err
		}

		env, err := initService(ctx, "evaluate")
		if err != nil {
			return err
		}
		defer env.Close()

		items, summary, err := env.Service.EvaluateBatch(ctx, reqs, concurrency)
		if err != nil {
			return err
		}

		if out != "" {
			if err := report.WriteXLSX(out, batchRows(items)); err != nil {
				return err
			}
			zap.L().Info("batch: wrote workbook", zap.String("path", out))
		}
		if err := writeBatch(cmd.OutOrStdout(), format, items); err != nil {
			return err
		}

		fmt.Fprintf(cmd.ErrOrStderr(), "computed=%d reused=%d failed=%d\n", summary.Computed, summary.Reused, summary.Failed)
		return nil
	},
}

func init() {
	batchCmd.Flags().StringP("input", "i", "", "request file (.json or .xlsx)")
	batchCmd.Flags().String("sheet", "", "XLSX sheet to read (default first sheet)")
	batchCmd.Flags().String("format", report.FormatTable, "output format: table, csv or json")
	batchCmd.Flags().String("out", "", "also write the summary to this XLSX file")
	batchCmd.Flags().Int("concurrency", 0, "max evaluations in flight (default from config)")
	_ = batchCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(batchCmd)
}

// loadBatchRequests reads requests from a JSON array or an XLSX sheet,
// chosen by file extension.
func loadBatchRequests(path, sheet string) ([]evaluation.Request, error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		rows, err := report.ReadSheet(path, sheet)
		if err != nil {
			return nil, err
		}
		return requestsFromSheet(rows)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read batch file %s", path)
	}
	var reqs []evaluation.Request
	if err := json.Unmarshal(data, &reqs); err != nil {
		return nil, eris.Wrapf(err, "decode batch file %s", path)
	}
	return reqs, nil
}

// requestsFromSheet maps sheet rows to requests using the header row.
// Blank rows are skipped.
func requestsFromSheet(rows [][]string) ([]evaluation.Request, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	cols := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"run_type", "deal_id", "org_id", "payload"} {
		if _, ok := cols[required]; !ok {
			return nil, eris.Errorf("batch sheet is missing the %q column", required)
		}
	}
	cell := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var reqs []evaluation.Request
	for n, row := range rows[1:] {
		if strings.TrimSpace(strings.Join(row, "")) == "" {
			continue
		}
		req := evaluation.Request{
			RunType: model.RunType(cell(row, "run_type")),
			DealID:  cell(row, "deal_id"),
			OrgID:   cell(row, "org_id"),
			Payload: json.RawMessage(cell(row, "payload")),
		}
		if raw := cell(row, "force_rerun"); raw != "" {
			force, err := strconv.ParseBool(raw)
			if err != nil {
				return nil, eris.Wrapf(err, "batch sheet row %d: force_rerun", n+2)
			}
			req.ForceRerun = force
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

// batchRows summarizes batch items. Requests that never produced a run get
// a failed row carrying the error.
func batchRows(items []evaluation.BatchItem) []report.Row {
	rows := make([]report.Row, 0, len(items))
	for _, item := range items {
		if item.Result != nil && item.Result.Run != nil {
			rows = append(rows, report.FromRun(*item.Result.Run, item.Result.Reused))
			continue
		}
		rows = append(rows, report.Row{
			RunType: item.Request.RunType,
			DealID:  item.Request.DealID,
			OrgID:   item.Request.OrgID,
			Status:  model.RunStatusFailed,
			Error:   item.Error,
		})
	}
	return rows
}

func writeBatch(w io.Writer, format string, items []evaluation.BatchItem) error {
	switch format {
	case report.FormatJSON:
		return writeJSON(w, items)
	case report.FormatCSV:
		return report.WriteCSV(w, batchRows(items))
	case report.FormatTable, "":
		return report.WriteTable(w, batchRows(items))
	default:
		return eris.Errorf("unknown output format %q", format)
	}
}
