package pnl

import "github.com/shopspring/decimal"

// Lot is an open, not yet sold quantity from one buy at its unit cost.
type Lot struct {
	UnitCost decimal.Decimal
	Quantity decimal.Decimal
}

// Match is the part of a sell satisfied by one lot.
type Match struct {
	LotPrice decimal.Decimal
	Quantity decimal.Decimal
}

// Ledger is the FIFO queue of open buy lots for a single instrument.
// Lots are kept oldest first and a lot is dropped as soon as it is used up.
// A Ledger is not safe for concurrent use.
type Ledger struct {
	lots []Lot
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// RecordBuy appends a new lot to the tail of the queue.
func (l *Ledger) RecordBuy(price, quantity decimal.Decimal) {
	if !quantity.IsPositive() {
		return
	}
	l.lots = append(l.lots, Lot{UnitCost: price, Quantity: quantity})
}

// MatchSell consumes the oldest lots until quantity is covered or the queue
// is empty. It returns the matched pairs in consumption order and the part of
// quantity that could not be matched.
func (l *Ledger) MatchSell(quantity decimal.Decimal) ([]Match, decimal.Decimal) {
	remaining := quantity
	var matches []Match
	for remaining.IsPositive() && len(l.lots) > 0 {
		head := &l.lots[0]
		matched := decimal.Min(remaining, head.Quantity)
		matches = append(matches, Match{LotPrice: head.UnitCost, Quantity: matched})

		if head.Quantity.GreaterThan(matched) {
			head.Quantity = head.Quantity.Sub(matched)
		} else {
			l.lots[0] = Lot{}
			l.lots = l.lots[1:]
		}
		remaining = remaining.Sub(matched)
	}
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	return matches, remaining
}

// Lots returns a copy of the open lots, oldest first.
func (l *Ledger) Lots() []Lot {
	out := make([]Lot, len(l.lots))
	copy(out, l.lots)
	return out
}

// Quantity is the total open quantity across all lots.
func (l *Ledger) Quantity() decimal.Decimal {
	total := decimal.Zero
	for _, lot := range l.lots {
		total = total.Add(lot.Quantity)
	}
	return total
}

// Len is the number of open lots.
func (l *Ledger) Len() int {
	return len(l.lots)
}
