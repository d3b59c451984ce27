package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"CreditPulse/internal/di"
	"CreditPulse/pkg/config"
	"CreditPulse/pkg/server"
	"CreditPulse/pkg/util"

	"github.com/spf13/cobra"
)

var (
	configPath  string
	batchFrom   string
	batchTo     string
	batchTicker []string
	batchServe  bool
	batchJSON   bool
)

var rootCmd = &cobra.Command{
	Use:   "creditpulse",
	Short: "Structural credit risk engine",
	Long: `CreditPulse recovers asset value and asset volatility from equity data with
the Merton model and derives distance to default, default probability, rating
buckets, confidence intervals, sensitivities, stress results and DD signals.`,
	SilenceUsage: true,
}

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Analyze stored market inputs for a date range",
	Long: `Load market inputs from ClickHouse for the given range and tickers, run the
full analysis per ticker-day and write the results to the configured sinks.

Examples:
  creditpulse batch --from 2024-01-01 --to 2024-03-31
  creditpulse batch --from 2024-03-28 --to 2024-03-28 --tickers AAPL,MSFT --json`,
	RunE: runBatch,
}

var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Consume market inputs from Kafka until interrupted",
	RunE:  runStream,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/config.yaml", "config file path")

	batchCmd.Flags().StringVar(&batchFrom, "from", "", "first date (YYYY-MM-DD)")
	batchCmd.Flags().StringVar(&batchTo, "to", "", "last date, inclusive (defaults to --from)")
	batchCmd.Flags().StringSliceVar(&batchTicker, "tickers", nil, "comma separated tickers (default: all)")
	batchCmd.Flags().BoolVar(&batchServe, "serve", false, "keep the ops HTTP server up after the batch")
	batchCmd.Flags().BoolVar(&batchJSON, "json", false, "print the batch report as JSON")
	_ = batchCmd.MarkFlagRequired("from")

	rootCmd.AddCommand(batchCmd, streamCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// parseRange resolves the --from/--to flags into UTC days.
func parseRange(from, to string) (time.Time, time.Time, error) {
	start, ok := util.ParseDate(from)
	if !ok {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --from %q", from)
	}
	if to == "" {
		return start, start, nil
	}
	end, ok := util.ParseDate(to)
	if !ok {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --to %q", to)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("--to %s is before --from %s", to, from)
	}
	return start, end, nil
}

func buildApp() (*server.App, func(), error) {
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	app, cleanup, err := di.InitializeApp(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("init: %w", err)
	}
	return app, cleanup, nil
}

func runBatch(cmd *cobra.Command, _ []string) error {
	from, to, err := parseRange(batchFrom, batchTo)
	if err != nil {
		return err
	}
	tickers := util.NormalizeTickers(batchTicker)

	app, cleanup, err := buildApp()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := app.RunBatch(ctx, from, to, tickers)
	if err != nil {
		return err
	}
	if batchJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	}
	if batchServe {
		return app.Serve(ctx)
	}
	return nil
}

func runStream(cmd *cobra.Command, _ []string) error {
	app, cleanup, err := buildApp()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return app.RunStream(ctx)
}
