package database

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"upbit-pnl/internal/models"
	"upbit-pnl/internal/upbit"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const saveBatchSize = 200

// FromUpbit maps an API order onto its stored form.
func FromUpbit(o upbit.Order) models.Order {
	deref := func(p *string) string {
		if p == nil {
			return ""
		}
		return *p
	}
	return models.Order{
		UUID:           o.UUID,
		Market:         o.Market,
		Side:           o.Side,
		OrdType:        o.OrdType,
		State:          o.State,
		Price:          deref(o.Price),
		Volume:         deref(o.Volume),
		ExecutedVolume: o.ExecutedVolume,
		PaidFee:        o.PaidFee,
		OrderCreatedAt: o.CreatedAt,
		TradesCount:    o.TradesCount,
	}
}

// SaveOrders upserts orders by UUID. Refetching an order overwrites its fields.
func SaveOrders(db *gorm.DB, orders []models.Order) error {
	if len(orders) == 0 {
		return nil
	}
	err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "uuid"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"market", "side", "ord_type", "state", "price", "volume",
			"executed_volume", "paid_fee", "order_created_at", "trades_count", "updated_at",
		}),
	}).CreateInBatches(&orders, saveBatchSize).Error
	if err != nil {
		return fmt.Errorf("failed to save %d orders: %w", len(orders), err)
	}
	return nil
}

// LoadOrders returns the stored orders of the given markets, or of every market
// when none is given, oldest first.
func LoadOrders(db *gorm.DB, markets ...string) ([]models.Order, error) {
	var orders []models.Order
	q := db.Order("order_created_at asc").Order("id asc")
	if len(markets) > 0 {
		q = q.Where("market IN ?", markets)
	}
	if err := q.Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to load orders: %w", err)
	}
	return orders, nil
}

// ListMarkets returns the distinct markets with stored orders.
func ListMarkets(db *gorm.DB) ([]string, error) {
	var markets []string
	if err := db.Model(&models.Order{}).Distinct("market").Order("market").Pluck("market", &markets).Error; err != nil {
		return nil, fmt.Errorf("failed to list markets: %w", err)
	}
	return markets, nil
}

var orderCSVHeader = []string{
	"uuid", "market", "side", "ord_type", "state", "price", "volume",
	"executed_volume", "paid_fee", "created_at", "trades_count",
}

// ExportOrdersCSV writes the raw orders with a header row.
func ExportOrdersCSV(w io.Writer, orders []models.Order) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(orderCSVHeader); err != nil {
		return err
	}
	for _, o := range orders {
		if err := cw.Write([]string{
			o.UUID, o.Market, o.Side, o.OrdType, o.State, o.Price, o.Volume,
			o.ExecutedVolume, o.PaidFee, o.OrderCreatedAt, strconv.Itoa(o.TradesCount),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
