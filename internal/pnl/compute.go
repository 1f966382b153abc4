// Package pnl computes FIFO realized profit and loss over a batch of executed
// orders and aggregates it into calendar buckets per instrument.
//
// A computation is self-contained: ledgers live only for the duration of one
// call and nothing is shared between calls.
package pnl

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Options controls a computation.
type Options struct {
	Granularity Granularity
	// Location, when set, is used to derive bucket labels. Otherwise each
	// timestamp is bucketed in the offset it was recorded with.
	Location *time.Location
	// Strict fails the whole batch on the first malformed order instead of
	// excluding the offending orders.
	Strict bool
	// Parallel matches each instrument on its own goroutine.
	Parallel bool
	Logger   *zap.Logger
}

func (o Options) bucketFunc() BucketFunc {
	g, loc := o.Granularity, o.Location
	if loc == nil {
		return g.Bucket
	}
	return func(t time.Time) string { return g.Bucket(t.In(loc)) }
}

// ComputeRealizedPnl computes the realized PnL of orders bucketed by granularity.
func ComputeRealizedPnl(orders []RawOrder, granularity Granularity) (*Report, error) {
	return Compute(orders, Options{Granularity: granularity})
}

// Compute normalizes, sequences and matches orders, and folds the realized
// events into a Report.
func Compute(orders []RawOrder, opts Options) (*Report, error) {
	if !opts.Granularity.Valid() {
		return nil, fmt.Errorf("compute: invalid granularity %d", int(opts.Granularity))
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	records, rejected := NormalizeOrders(orders)
	if len(rejected) > 0 {
		if opts.Strict {
			errs := make([]error, len(rejected))
			for i, oe := range rejected {
				errs[i] = oe
			}
			return nil, fmt.Errorf("compute: %d of %d orders rejected: %w", len(rejected), len(orders), errors.Join(errs...))
		}
		for _, oe := range rejected {
			log.Warn("Excluding malformed order", zap.Int("index", oe.Index), zap.String("uuid", oe.UUID), zap.Error(oe.Err))
		}
	}

	sequenced := Sequence(records)
	bucket := opts.bucketFunc()

	var report *Report
	if opts.Parallel {
		var err error
		if report, err = computeParallel(sequenced, opts.Granularity, bucket); err != nil {
			return nil, err
		}
	} else {
		report = run(sequenced, opts.Granularity, bucket)
	}
	report.Rejected = rejected

	for _, s := range report.Shortfalls {
		log.Warn("Sell exceeds open inventory, unmatched quantity has no cost basis",
			zap.String("instrument", s.Instrument),
			zap.String("uuid", s.OrderUUID),
			zap.Time("timestamp", s.Timestamp),
			zap.String("quantity", s.Quantity.String()),
		)
	}
	log.Debug("Realized PnL computed",
		zap.Int("orders", len(orders)),
		zap.Int("accepted", len(records)),
		zap.Int("events", len(report.events)),
		zap.Int("cells", report.Len()),
		zap.String("total", report.Total().String()),
	)
	return report, nil
}

// run processes an already sequenced batch on the calling goroutine.
func run(records []OrderRecord, g Granularity, bucket BucketFunc) *Report {
	report := NewReport(g)
	acc := NewAccumulator(bucket)
	for _, rec := range records {
		if !rec.ExecutedQuantity.IsPositive() {
			report.Skipped++
			continue
		}
		ev, short := acc.Apply(rec)
		if ev != nil {
			report.Add(*ev)
		}
		if short != nil {
			report.Shortfalls = append(report.Shortfalls, *short)
		}
	}
	report.lots = acc.ledgerSnapshot()
	return report
}

// computeParallel runs each instrument independently and merges the partial
// reports in first-seen instrument order.
func computeParallel(records []OrderRecord, g Granularity, bucket BucketFunc) (*Report, error) {
	names, groups := partition(records)
	partials := make([]*Report, len(names))

	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, recs []OrderRecord) {
			defer wg.Done()
			partials[i] = run(recs, g, bucket)
		}(i, groups[name])
	}
	wg.Wait()

	report := NewReport(g)
	for i, p := range partials {
		if err := report.Merge(p); err != nil {
			return nil, fmt.Errorf("compute: merge %s: %w", names[i], err)
		}
	}
	return report, nil
}
