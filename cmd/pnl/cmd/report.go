package cmd

import (
	"fmt"
	"os"

	"upbit-pnl/internal/pnl"
	"upbit-pnl/internal/report"

	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Compute realized PnL per period and market",
	Long: `Fetch the order history of the configured markets, then print the FIFO
realized profit and loss grouped by period and market.

Examples:
  pnl report --granularity month
  pnl report --offline --markets KRW-BTC,KRW-ETH --rollup year
  pnl report --granularity day --csv daily.csv`,
	Args: cobra.NoArgs,
	RunE: runReport,
}

var (
	reportGranularity string
	reportRollup      string
	reportMarkets     []string
	reportTimezone    string
	reportCSV         string
	reportOffline     bool
	reportStrict      bool
	reportParallel    bool
)

func init() {
	rootCmd.AddCommand(reportCmd)

	f := reportCmd.Flags()
	f.StringVarP(&reportGranularity, "granularity", "g", "", "bucket size: day, month or year (default from config)")
	f.StringVar(&reportRollup, "rollup", "year", "print subtotals at this coarser granularity")
	f.StringSliceVarP(&reportMarkets, "markets", "m", nil, "markets to include (default from config)")
	f.StringVar(&reportTimezone, "timezone", "", "IANA zone for bucket labels (default: each order's own offset)")
	f.StringVar(&reportCSV, "csv", "", "also write bucket,instrument,realized rows to this file")
	f.BoolVar(&reportOffline, "offline", false, "use stored orders only, do not call the API")
	f.BoolVar(&reportStrict, "strict", false, "fail when any stored order is malformed")
	f.BoolVar(&reportParallel, "parallel", false, "match each market on its own goroutine")
}

func runReport(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	if flags.Changed("granularity") {
		cfg.Report.Granularity = reportGranularity
	}
	if flags.Changed("markets") {
		cfg.Report.Markets = reportMarkets
	}
	if flags.Changed("timezone") {
		cfg.Report.Timezone = reportTimezone
	}
	if flags.Changed("strict") {
		cfg.Report.Strict = reportStrict
	}
	if flags.Changed("parallel") {
		cfg.Report.Parallel = reportParallel
	}

	rollup, err := pnl.ParseGranularity(reportRollup)
	if err != nil {
		return err
	}

	engine, err := newEngine(reportOffline)
	if err != nil {
		return err
	}
	rep, err := engine.Compute(cmd.Context(), reportOffline)
	if err != nil {
		return err
	}

	if err := report.PrintTable(cmd.OutOrStdout(), rep, report.Options{Currency: cfg.Report.Currency, Rollup: rollup}); err != nil {
		return err
	}

	if reportCSV != "" {
		f, err := os.Create(reportCSV)
		if err != nil {
			return fmt.Errorf("create %s: %w", reportCSV, err)
		}
		defer f.Close()
		if err := report.WriteCSV(f, rep); err != nil {
			return fmt.Errorf("write %s: %w", reportCSV, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\nWrote %s\n", reportCSV)
	}
	return nil
}
