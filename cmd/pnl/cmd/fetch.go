package cmd

import (
	"fmt"
	"os"

	"upbit-pnl/internal/database"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download completed orders into the local store",
	Long: `Page through the completed orders of every configured market and upsert
them into the local database.

Examples:
  pnl fetch
  pnl fetch --markets KRW-BTC --export orders.csv`,
	Args: cobra.NoArgs,
	RunE: runFetch,
}

var (
	fetchMarkets []string
	fetchExport  string
)

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().StringSliceVarP(&fetchMarkets, "markets", "m", nil, "markets to fetch (default from config)")
	fetchCmd.Flags().StringVar(&fetchExport, "export", "", "write the stored orders of these markets to a CSV file")
}

func runFetch(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("markets") {
		cfg.Report.Markets = fetchMarkets
	}

	engine, err := newEngine(false)
	if err != nil {
		return err
	}
	if err := engine.CheckConnection(cmd.Context()); err != nil {
		return err
	}
	n, err := engine.Sync(cmd.Context())
	if err != nil {
		return err
	}
	log.Info("Fetch complete", zap.Int("orders", n), zap.Strings("markets", cfg.Report.Markets))
	fmt.Fprintf(cmd.OutOrStdout(), "Stored %d orders\n", n)

	if fetchExport == "" {
		return nil
	}
	orders, err := engine.StoredOrders()
	if err != nil {
		return err
	}
	f, err := os.Create(fetchExport)
	if err != nil {
		return fmt.Errorf("create %s: %w", fetchExport, err)
	}
	defer f.Close()
	if err := database.ExportOrdersCSV(f, orders); err != nil {
		return fmt.Errorf("write %s: %w", fetchExport, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Exported %d orders to %s\n", len(orders), fetchExport)
	return nil
}
