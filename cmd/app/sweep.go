package main

import (
	"encoding/json"
	"fmt"
	"io"

	"CreditPulse/internal/domain/models"
	"CreditPulse/internal/services/analytics"
	"CreditPulse/pkg/config"

	"github.com/spf13/cobra"
)

var (
	sweepFirm  models.MarketInputs
	sweepInput string
	sweepFrom  float64
	sweepTo    float64
	sweepSteps int
	sweepJSON  bool
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Re-solve one firm over a grid of one input",
	Long: `Hold every input fixed except one, solve the firm at each grid value and
print asset value, asset volatility, DD, PD and leverage per point. Only the
analytics section of the config is used; nothing is read from or written to
storage.

Examples:
  creditpulse sweep --equity 400 --equity-vol 0.35 --debt 600 --input equity_volatility --from 0.1 --to 0.8
  creditpulse sweep --equity 400 --equity-vol 0.35 --debt 600 --input risk_free_rate --from -0.01 --to 0.06 --json`,
	RunE: runSweep,
}

func init() {
	f := sweepCmd.Flags()
	f.StringVar(&sweepFirm.Ticker, "ticker", "", "label for the firm")
	f.Float64Var(&sweepFirm.EquityValue, "equity", 0, "market value of equity")
	f.Float64Var(&sweepFirm.EquityVolatility, "equity-vol", 0, "annualized equity volatility")
	f.Float64Var(&sweepFirm.DebtFaceValue, "debt", 0, "face value of debt")
	f.Float64Var(&sweepFirm.RiskFreeRate, "rate", 0.03, "continuously compounded risk-free rate")
	f.Float64Var(&sweepFirm.HorizonYears, "horizon", 1, "horizon in years")
	f.StringVar(&sweepInput, "input", models.InputEquityVolatility, "input to sweep")
	f.Float64Var(&sweepFrom, "from", 0, "first grid value")
	f.Float64Var(&sweepTo, "to", 0, "last grid value")
	f.IntVar(&sweepSteps, "steps", 8, "number of grid points")
	f.BoolVar(&sweepJSON, "json", false, "print the points as JSON")
	_ = sweepCmd.MarkFlagRequired("equity")
	_ = sweepCmd.MarkFlagRequired("equity-vol")
	_ = sweepCmd.MarkFlagRequired("debt")

	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := sweepFirm.Validate(); err != nil {
		return err
	}
	grid, err := analytics.Grid(sweepFrom, sweepTo, sweepSteps)
	if err != nil {
		return err
	}
	points, err := analytics.Sweep(sweepFirm, sweepInput, grid, cfg.Analytics)
	if err != nil {
		return err
	}

	if sweepJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(points)
	}
	printSweep(cmd.OutOrStdout(), points)
	return nil
}

func printSweep(w io.Writer, points []models.SweepPoint) {
	fmt.Fprintf(w, "%12s %12s %10s %9s %10s %8s\n", "value", "asset_value", "asset_vol", "dd", "pd", "leverage")
	for _, p := range points {
		if !p.Converged {
			reason := p.Error
			if reason == "" {
				reason = "no convergence"
			}
			fmt.Fprintf(w, "%12.6g  %s\n", p.Value, reason)
			continue
		}
		fmt.Fprintf(w, "%12.6g %12.4f %10.4f %9.4f %10.3e %8.4f\n",
			p.Value, p.AssetValue, p.AssetVolatility, p.DistanceToDefault, p.ProbabilityOfDefault, p.Leverage)
	}
}
