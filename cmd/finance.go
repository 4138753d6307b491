package main

import (
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/blakegallagher1/gpc-cres-sub006/internal/finance"
)

var financeCmd = &cobra.Command{
	Use:   "finance",
	Short: "Underwriting math helpers",
}

var financeIRRCmd = &cobra.Command{
	Use:   "irr",
	Short: "Internal rate of return of a cash flow series",
	RunE: func(cmd *cobra.Command, _ []string) error {
		flows, _ := cmd.Flags().GetFloat64Slice("flows")
		rate, ok := finance.IRR(flows)
		out := map[string]any{"flows": flows, "converged": ok}
		if ok {
			out["irr"] = rate
		}
		return writeJSON(cmd.OutOrStdout(), out)
	},
}

var financeNPVCmd = &cobra.Command{
	Use:   "npv",
	Short: "Net present value of a cash flow series",
	RunE: func(cmd *cobra.Command, _ []string) error {
		flows, _ := cmd.Flags().GetFloat64Slice("flows")
		rate, _ := cmd.Flags().GetFloat64("rate")
		return writeJSON(cmd.OutOrStdout(), map[string]any{
			"rate":  rate,
			"flows": flows,
			"npv":   finance.NPV(rate, flows),
		})
	},
}

var financeMortgageCmd = &cobra.Command{
	Use:   "mortgage",
	Short: "Monthly payment of a fully amortizing loan",
	RunE: func(cmd *cobra.Command, _ []string) error {
		rawPrincipal, _ := cmd.Flags().GetString("principal")
		rate, _ := cmd.Flags().GetFloat64("rate")
		years, _ := cmd.Flags().GetInt("years")

		principal, err := decimal.NewFromString(rawPrincipal)
		if err != nil {
			return eris.Wrapf(err, "parse --principal %q", rawPrincipal)
		}
		payment, err := finance.MortgagePayment(principal, rate, years)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), map[string]any{
			"principal":       principal.StringFixed(2),
			"annual_rate":     rate,
			"years":           years,
			"monthly_payment": payment.StringFixed(2),
		})
	},
}

func init() {
	financeIRRCmd.Flags().Float64Slice("flows", nil, "cash flows, period 0 first (e.g. -100,30,40,50)")
	financeNPVCmd.Flags().Float64Slice("flows", nil, "cash flows, period 0 first")
	financeNPVCmd.Flags().Float64("rate", 0, "discount rate per period as a fraction")
	financeMortgageCmd.Flags().String("principal", "0", "loan amount")
	financeMortgageCmd.Flags().Float64("rate", 0, "annual interest rate as a fraction")
	financeMortgageCmd.Flags().Int("years", 30, "amortization in years")

	financeCmd.AddCommand(financeIRRCmd, financeNPVCmd, financeMortgageCmd)
	rootCmd.AddCommand(financeCmd)
}
