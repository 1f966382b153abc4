package cmd

import (
	"fmt"

	"upbit-pnl/internal/pnl"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var feeCmd = &cobra.Command{
	Use:   "fee",
	Short: "Show the effective fee rate of one order",
	Long: `Compute paid_fee / (executed_volume * price) as a percentage.

Example:
  pnl fee --volume 0.0017 --price 58800000 --fee 49.98`,
	Args: cobra.NoArgs,
	RunE: runFee,
}

var (
	feeVolume string
	feePrice  string
	feePaid   string
)

func init() {
	rootCmd.AddCommand(feeCmd)

	feeCmd.Flags().StringVar(&feeVolume, "volume", "", "executed volume (required)")
	feeCmd.Flags().StringVar(&feePrice, "price", "", "execution price (required)")
	feeCmd.Flags().StringVar(&feePaid, "fee", "", "paid fee (required)")
	feeCmd.MarkFlagRequired("volume")
	feeCmd.MarkFlagRequired("price")
	feeCmd.MarkFlagRequired("fee")
}

func runFee(cmd *cobra.Command, args []string) error {
	values := make([]decimal.Decimal, 3)
	for i, s := range []string{feeVolume, feePrice, feePaid} {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return fmt.Errorf("invalid number %q: %w", s, err)
		}
		values[i] = d
	}

	pct, err := pnl.FeePercent(values[0], values[1], values[2])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Paid fee percentage: %s%%\n", pct.StringFixed(2))
	return nil
}
