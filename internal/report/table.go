// Package report renders realized PnL reports for terminals and spreadsheets.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"upbit-pnl/internal/pnl"
)

// Options controls table output.
type Options struct {
	Currency string
	// Rollup adds subtotals at a coarser granularity, e.g. yearly totals
	// under a monthly report. Ignored unless coarser than the report.
	Rollup pnl.Granularity
}

// PrintTable writes the report entries sorted by bucket then instrument,
// followed by the rollup subtotals, per-instrument totals and the grand total.
func PrintTable(w io.Writer, rep *pnl.Report, opts Options) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "%s\tINSTRUMENT\tP/L\n", strings.ToUpper(rep.Granularity.String()))
	for _, e := range rep.Entries() {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Bucket, e.Instrument, FormatAmount(e.Amount, opts.Currency))
	}

	if opts.Rollup.Valid() && opts.Rollup.Coarser(rep.Granularity) {
		rolled, err := rep.Rollup(opts.Rollup)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "\n%s\t\tP/L\n", strings.ToUpper(opts.Rollup.String()))
		for _, t := range rolled.ByBucket() {
			fmt.Fprintf(tw, "%s\t\t%s\n", t.Name, FormatAmount(t.Amount, opts.Currency))
		}
	}

	if instruments := rep.ByInstrument(); len(instruments) > 1 {
		fmt.Fprintf(tw, "\nINSTRUMENT\t\tP/L\n")
		for _, t := range instruments {
			fmt.Fprintf(tw, "%s\t\t%s\n", t.Name, FormatAmount(t.Amount, opts.Currency))
		}
	}

	fmt.Fprintf(tw, "\nTOTAL\t\t%s\n", FormatAmount(rep.Total(), opts.Currency))
	if n := len(rep.Rejected); n > 0 {
		fmt.Fprintf(tw, "EXCLUDED ORDERS\t\t%d\n", n)
	}
	if n := len(rep.Shortfalls); n > 0 {
		fmt.Fprintf(tw, "UNMATCHED SELLS\t\t%d\n", n)
	}
	return tw.Flush()
}

// WriteCSV writes one bucket,instrument,realized row per report entry.
// Amounts are written unrounded.
func WriteCSV(w io.Writer, rep *pnl.Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"bucket", "instrument", "realized"}); err != nil {
		return err
	}
	for _, e := range rep.Entries() {
		if err := cw.Write([]string{e.Bucket, e.Instrument, e.Amount.String()}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
