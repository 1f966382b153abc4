package pnl

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Key identifies one aggregate cell.
type Key struct {
	Bucket     string
	Instrument string
}

// Entry is one (bucket, instrument, realized amount) triple.
type Entry struct {
	Bucket     string
	Instrument string
	Amount     decimal.Decimal
}

// Total is a realized amount summed over one dimension.
type Total struct {
	Name   string
	Amount decimal.Decimal
}

// Report is the realized PnL of a batch, keyed by (bucket, instrument).
type Report struct {
	Granularity Granularity
	// Rejected lists the input orders that failed normalization.
	Rejected []*OrderError
	// Shortfalls lists sells that exceeded the open inventory.
	Shortfalls []Shortfall
	// Skipped counts records with zero executed quantity.
	Skipped int

	amounts map[Key]decimal.Decimal
	events  []RealizedEvent
	lots    map[string][]Lot
}

// NewReport returns an empty report for the given granularity.
func NewReport(g Granularity) *Report {
	return &Report{
		Granularity: g,
		amounts:     make(map[Key]decimal.Decimal),
		lots:        make(map[string][]Lot),
	}
}

// Add folds a realized event into the report.
func (r *Report) Add(ev RealizedEvent) {
	r.events = append(r.events, ev)
	r.addAmount(Key{Bucket: ev.Bucket, Instrument: ev.Instrument}, ev.Amount)
}

func (r *Report) addAmount(k Key, amount decimal.Decimal) {
	r.amounts[k] = r.amounts[k].Add(amount)
}

// Len is the number of (bucket, instrument) cells.
func (r *Report) Len() int {
	return len(r.amounts)
}

// Amount returns the realized amount of one cell, zero when absent.
func (r *Report) Amount(bucket, instrument string) decimal.Decimal {
	return r.amounts[Key{Bucket: bucket, Instrument: instrument}]
}

// Entries returns every cell sorted by bucket, then instrument.
func (r *Report) Entries() []Entry {
	out := make([]Entry, 0, len(r.amounts))
	for k, v := range r.amounts {
		out = append(out, Entry{Bucket: k.Bucket, Instrument: k.Instrument, Amount: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Bucket != out[j].Bucket {
			return out[i].Bucket < out[j].Bucket
		}
		return out[i].Instrument < out[j].Instrument
	})
	return out
}

// ByBucket sums across instruments, sorted by bucket.
func (r *Report) ByBucket() []Total {
	return reduce(r.amounts, func(k Key) string { return k.Bucket })
}

// ByInstrument sums across buckets, sorted by instrument.
func (r *Report) ByInstrument() []Total {
	return reduce(r.amounts, func(k Key) string { return k.Instrument })
}

// Total is the grand total over all cells.
func (r *Report) Total() decimal.Decimal {
	total := decimal.Zero
	for _, v := range r.amounts {
		total = total.Add(v)
	}
	return total
}

func reduce(amounts map[Key]decimal.Decimal, by func(Key) string) []Total {
	sums := make(map[string]decimal.Decimal)
	for k, v := range amounts {
		name := by(k)
		sums[name] = sums[name].Add(v)
	}
	out := make([]Total, 0, len(sums))
	for name, v := range sums {
		out = append(out, Total{Name: name, Amount: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Rollup re-buckets the cells into a coarser granularity, e.g. days into years.
// Only the aggregate cells are carried over.
func (r *Report) Rollup(g Granularity) (*Report, error) {
	if !g.Valid() {
		return nil, fmt.Errorf("rollup: invalid granularity %d", int(g))
	}
	if r.Granularity.Coarser(g) {
		return nil, fmt.Errorf("rollup: cannot go from %s to finer %s", r.Granularity, g)
	}
	out := NewReport(g)
	for k, v := range r.amounts {
		start, err := r.Granularity.Parse(k.Bucket)
		if err != nil {
			return nil, fmt.Errorf("rollup: %w", err)
		}
		out.addAmount(Key{Bucket: g.Bucket(start), Instrument: k.Instrument}, v)
	}
	return out, nil
}

// Merge adds other into r. Both reports must share a granularity.
// Merging reports over disjoint instruments equals computing them together.
func (r *Report) Merge(other *Report) error {
	if other == nil {
		return nil
	}
	if other.Granularity != r.Granularity {
		return fmt.Errorf("merge: granularity mismatch %s != %s", r.Granularity, other.Granularity)
	}
	for k, v := range other.amounts {
		r.addAmount(k, v)
	}
	r.events = append(r.events, other.events...)
	r.Shortfalls = append(r.Shortfalls, other.Shortfalls...)
	r.Rejected = append(r.Rejected, other.Rejected...)
	r.Skipped += other.Skipped
	for name, lots := range other.lots {
		r.lots[name] = append(r.lots[name], lots...)
	}
	r.sortEvents()
	return nil
}

func (r *Report) sortEvents() {
	sort.SliceStable(r.events, func(i, j int) bool {
		return r.events[i].Timestamp.Before(r.events[j].Timestamp)
	})
	sort.SliceStable(r.Shortfalls, func(i, j int) bool {
		return r.Shortfalls[i].Timestamp.Before(r.Shortfalls[j].Timestamp)
	})
}

// Events returns the realized events in chronological order.
func (r *Report) Events() []RealizedEvent {
	out := make([]RealizedEvent, len(r.events))
	copy(out, r.events)
	return out
}

// OpenLots returns the inventory left for instrument after the batch, oldest first.
func (r *Report) OpenLots(instrument string) []Lot {
	lots := r.lots[instrument]
	out := make([]Lot, len(lots))
	copy(out, lots)
	return out
}

// Instruments returns every instrument with a cell or open inventory, sorted.
func (r *Report) Instruments() []string {
	seen := make(map[string]struct{})
	for k := range r.amounts {
		seen[k.Instrument] = struct{}{}
	}
	for name, lots := range r.lots {
		if len(lots) > 0 {
			seen[name] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ShortfallErr returns nil when every sell was fully matched, otherwise one
// error per shortfall wrapping ErrInventoryShortfall.
func (r *Report) ShortfallErr() error {
	var errs []error
	for _, s := range r.Shortfalls {
		errs = append(errs, fmt.Errorf("%w: %s sold %s more than held at %s",
			ErrInventoryShortfall, s.Instrument, s.Quantity, s.Timestamp.Format("2006-01-02T15:04:05Z07:00")))
	}
	return errors.Join(errs...)
}
