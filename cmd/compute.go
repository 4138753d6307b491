package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/blakegallagher1/gpc-cres-sub006/internal/evaluation"
	"github.com/blakegallagher1/gpc-cres-sub006/internal/rerun"
	"github.com/blakegallagher1/gpc-cres-sub006/internal/routing"
)

// parseCreatedAt reads --created-at, defaulting to now.
func parseCreatedAt(cmd *cobra.Command) (time.Time, error) {
	raw, _ := cmd.Flags().GetString("created-at")
	if raw == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "parse --created-at %q", raw)
	}
	return t, nil
}

// -- triage --

var triageCmd = &cobra.Command{
	Use:   "triage",
	Short: "Score a site, route it and date its first task",
	RunE: func(cmd *cobra.Command, _ []string) error {
		opts, err := computeOptions()
		if err != nil {
			return err
		}
		createdAt, err := parseCreatedAt(cmd)
		if err != nil {
			return err
		}

		var p evaluation.TriagePayload
		if err := decodeInput(cmd, &p); err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), opts.Triage(p, createdAt))
	},
}

// -- screen --

var screenCmd = &cobra.Command{
	Use:   "screen",
	Short: "Run the financial screening engine on deal inputs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		opts, err := computeOptions()
		if err != nil {
			return err
		}

		var p evaluation.ScreeningPayload
		if err := decodeInput(cmd, &p); err != nil {
			return err
		}
		out, err := opts.Screen(p)
		if err != nil {
			return eris.Wrap(err, "screen")
		}
		return writeJSON(cmd.OutOrStdout(), out)
	},
}

// -- deal-score --

var dealScoreCmd = &cobra.Command{
	Use:   "deal-score",
	Short: "Compute the weighted deal score and tier",
	RunE: func(cmd *cobra.Command, _ []string) error {
		opts, err := computeOptions()
		if err != nil {
			return err
		}

		var p evaluation.DealScorePayload
		if err := decodeInput(cmd, &p); err != nil {
			return err
		}
		out, err := opts.DealScore(p)
		if err != nil {
			return eris.Wrap(err, "deal score")
		}
		return writeJSON(cmd.OutOrStdout(), out)
	},
}

// -- route --

var routeCmd = &cobra.Command{
	Use:   "route",
	Short: "Assign a processing lane from routing signals",
	RunE: func(cmd *cobra.Command, _ []string) error {
		var in routing.SignalInput
		if err := decodeInput(cmd, &in); err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), routing.Route(in))
	},
}

// -- due-at --

var dueAtCmd = &cobra.Command{
	Use:   "due-at",
	Short: "Compute a task due date from a pipeline step and SLA tier",
	RunE: func(cmd *cobra.Command, _ []string) error {
		opts, err := computeOptions()
		if err != nil {
			return err
		}
		createdAt, err := parseCreatedAt(cmd)
		if err != nil {
			return err
		}

		step, _ := cmd.Flags().GetInt("step")
		if step == 0 {
			step = opts.DefaultPipelineStep
		}
		rawTier, _ := cmd.Flags().GetString("tier")
		tier, ok := routing.ParseSLATier(rawTier)
		if !ok {
			zap.L().Warn("due-at: unknown sla tier, using standard", zap.String("tier", rawTier))
		}

		return writeJSON(cmd.OutOrStdout(), map[string]any{
			"created_at":    createdAt,
			"pipeline_step": step,
			"sla_tier":      tier,
			"task_due_at":   opts.SLA.DueAt(createdAt, step, tier),
		})
	},
}

// -- rerun --

var rerunCmd = &cobra.Command{
	Use:   "rerun",
	Short: "Decide whether a prior evaluation result can be reused",
	RunE: func(cmd *cobra.Command, _ []string) error {
		var req rerun.Request
		if err := decodeInput(cmd, &req); err != nil {
			return err
		}
		d, err := rerun.Decide(req)
		if err != nil {
			return eris.Wrap(err, "rerun decision")
		}
		return writeJSON(cmd.OutOrStdout(), d)
	},
}

func init() {
	for _, c := range []*cobra.Command{triageCmd, screenCmd, dealScoreCmd, routeCmd, rerunCmd} {
		addInputFlag(c)
	}
	triageCmd.Flags().String("created-at", "", "run creation time, RFC3339 (default now)")
	dueAtCmd.Flags().String("created-at", "", "task creation time, RFC3339 (default now)")
	dueAtCmd.Flags().Int("step", 0, "pipeline step 1-8 (default from config)")
	dueAtCmd.Flags().String("tier", string(routing.TierStandard), "SLA tier: fast-triage, standard or deep-diligence")

	rootCmd.AddCommand(triageCmd, screenCmd, dealScoreCmd, routeCmd, dueAtCmd, rerunCmd)
}
