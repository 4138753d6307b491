package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/blakegallagher1/gpc-cres-sub006/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "deal-engine",
	Short: "Deal evaluation scoring and routing engine",
	Long:  "Scores land deals (site triage, financial screening, weighted deal score), routes them to a processing lane and records every evaluation run so unchanged inputs reuse prior results.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
