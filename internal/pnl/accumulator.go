package pnl

import (
	"time"

	"github.com/shopspring/decimal"
)

// BucketFunc maps an execution time to a bucket label.
type BucketFunc func(time.Time) string

// RealizedEvent is the realized PnL of one sell.
type RealizedEvent struct {
	OrderUUID  string
	Instrument string
	Timestamp  time.Time
	Bucket     string
	Matches    []Match
	// GrossProfit is the sum of (sell price - lot price) * quantity over Matches.
	GrossProfit decimal.Decimal
	Fee         decimal.Decimal
	// Amount is GrossProfit minus the sell fee.
	Amount decimal.Decimal
}

// Shortfall records the part of a sell that no open lot could cover.
// That part carries no cost basis and adds nothing to gross profit.
type Shortfall struct {
	OrderUUID  string
	Instrument string
	Timestamp  time.Time
	Quantity   decimal.Decimal
}

// Realize computes the realized event for sell given the lots it was matched against.
func Realize(sell OrderRecord, matches []Match, bucket BucketFunc) RealizedEvent {
	gross := decimal.Zero
	for _, m := range matches {
		gross = gross.Add(sell.Price.Sub(m.LotPrice).Mul(m.Quantity))
	}
	return RealizedEvent{
		OrderUUID:   sell.UUID,
		Instrument:  sell.Instrument,
		Timestamp:   sell.Timestamp,
		Bucket:      bucket(sell.Timestamp),
		Matches:     matches,
		GrossProfit: gross,
		Fee:         sell.Fee,
		Amount:      gross.Sub(sell.Fee),
	}
}

// Accumulator drives one ledger per instrument over a sequenced batch.
// Buy fees are not charged against PnL; only the sell fee is.
type Accumulator struct {
	bucket  BucketFunc
	ledgers map[string]*Ledger
}

// NewAccumulator returns an accumulator that labels events with bucket.
func NewAccumulator(bucket BucketFunc) *Accumulator {
	return &Accumulator{bucket: bucket, ledgers: make(map[string]*Ledger)}
}

// Ledger returns the ledger of instrument, creating it on first use.
func (a *Accumulator) Ledger(instrument string) *Ledger {
	l, ok := a.ledgers[instrument]
	if !ok {
		l = NewLedger()
		a.ledgers[instrument] = l
	}
	return l
}

// Apply feeds one record to its instrument's ledger. A sell yields an event,
// and a shortfall when it exceeded the open lots. Buys and zero-quantity
// records yield neither.
func (a *Accumulator) Apply(rec OrderRecord) (*RealizedEvent, *Shortfall) {
	if !rec.ExecutedQuantity.IsPositive() {
		return nil, nil
	}
	ledger := a.Ledger(rec.Instrument)
	switch rec.Side {
	case Buy:
		ledger.RecordBuy(rec.Price, rec.ExecutedQuantity)
		return nil, nil
	case Sell:
		matches, unmatched := ledger.MatchSell(rec.ExecutedQuantity)
		ev := Realize(rec, matches, a.bucket)
		if !unmatched.IsPositive() {
			return &ev, nil
		}
		return &ev, &Shortfall{
			OrderUUID:  rec.UUID,
			Instrument: rec.Instrument,
			Timestamp:  rec.Timestamp,
			Quantity:   unmatched,
		}
	default:
		return nil, nil
	}
}

// ledgerSnapshot copies the open lots of every ledger.
func (a *Accumulator) ledgerSnapshot() map[string][]Lot {
	out := make(map[string][]Lot, len(a.ledgers))
	for name, l := range a.ledgers {
		out[name] = l.Lots()
	}
	return out
}
