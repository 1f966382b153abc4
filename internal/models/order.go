package models

import (
	"upbit-pnl/internal/pnl"

	"gorm.io/gorm"
)

// Order is a completed exchange order as fetched from the order source.
// Numeric values are stored as exchange-formatted decimal strings.
type Order struct {
	gorm.Model
	UUID           string `gorm:"uniqueIndex;not null" json:"uuid"`
	Market         string `gorm:"index;not null" json:"market"`
	Side           string `json:"side"` // "bid" or "ask"
	OrdType        string `json:"ord_type"`
	State          string `json:"state"`
	Price          string `json:"price"` // empty when the exchange sent null
	Volume         string `json:"volume"`
	ExecutedVolume string `json:"executed_volume"`
	PaidFee        string `json:"paid_fee"`
	OrderCreatedAt string `gorm:"index" json:"created_at"`
	TradesCount    int    `json:"trades_count"`
}

// Raw converts the stored order into the form the PnL engine normalizes.
// Empty columns are left out so they surface as missing fields.
func (o Order) Raw() pnl.RawOrder {
	raw := pnl.RawOrder{
		pnl.FieldUUID:   o.UUID,
		pnl.FieldMarket: o.Market,
	}
	for key, value := range map[string]string{
		pnl.FieldSide:           o.Side,
		pnl.FieldCreatedAt:      o.OrderCreatedAt,
		pnl.FieldExecutedVolume: o.ExecutedVolume,
		pnl.FieldPrice:          o.Price,
		pnl.FieldPaidFee:        o.PaidFee,
	} {
		if value != "" {
			raw[key] = value
		}
	}
	return raw
}

// RawOrders converts a slice of stored orders.
func RawOrders(orders []Order) []pnl.RawOrder {
	out := make([]pnl.RawOrder, len(orders))
	for i, o := range orders {
		out[i] = o.Raw()
	}
	return out
}
