package main

import (
	"bytes"
	"encoding/json"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/blakegallagher1/gpc-cres-sub006/internal/evaluation"
	"github.com/blakegallagher1/gpc-cres-sub006/internal/model"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate a deal, reusing the prior run when inputs are unchanged",
	Long:  "Reads the run payload as JSON, compares its hash with the latest completed run for the same deal, org and run type, and either reuses that result or computes and records a new run.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		runType, _ := cmd.Flags().GetString("type")
		rt, err := model.ParseRunType(runType)
		if err != nil {
			return err
		}
		dealID, _ := cmd.Flags().GetString("deal")
		orgID, _ := cmd.Flags().GetString("org")
		force, _ := cmd.Flags().GetBool("force")

		payload, err := readInput(cmd)
		if err != nil {
			return err
		}
		payload = bytes.TrimSpace(payload)

		env, err := initService(ctx, "evaluate")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Service.Evaluate(ctx, evaluation.Request{
			RunType:    rt,
			DealID:     dealID,
			OrgID:      orgID,
			Payload:    json.RawMessage(payload),
			ForceRerun: force,
		})
		if err != nil {
			return eris.Wrap(err, "evaluate")
		}
		return writeJSON(cmd.OutOrStdout(), res)
	},
}

func init() {
	addInputFlag(evaluateCmd)
	evaluateCmd.Flags().String("type", "", "run type: triage, screening or deal_score")
	evaluateCmd.Flags().String("deal", "", "deal id")
	evaluateCmd.Flags().String("org", "", "org id")
	evaluateCmd.Flags().Bool("force", false, "compute even when the inputs match the prior run")
	_ = evaluateCmd.MarkFlagRequired("type")
	_ = evaluateCmd.MarkFlagRequired("deal")
	_ = evaluateCmd.MarkFlagRequired("org")
	rootCmd.AddCommand(evaluateCmd)
}
