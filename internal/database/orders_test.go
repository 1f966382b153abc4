package database

import (
	"bytes"
	"encoding/csv"
	"path/filepath"
	"testing"

	"upbit-pnl/internal/models"
	"upbit-pnl/internal/upbit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := NewDatabase(filepath.Join(t.TempDir(), "orders.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func stored(uuid, market, side, createdAt string) models.Order {
	return models.Order{
		UUID: uuid, Market: market, Side: side, OrdType: "limit", State: "done",
		Price: "100", Volume: "1", ExecutedVolume: "1", PaidFee: "0.05", OrderCreatedAt: createdAt,
	}
}

func TestSaveOrders_UpsertsByUUID(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, SaveOrders(db, []models.Order{
		stored("u1", "KRW-BTC", "bid", "2024-01-01T00:00:00+09:00"),
		stored("u2", "KRW-BTC", "ask", "2024-01-02T00:00:00+09:00"),
	}))

	updated := stored("u2", "KRW-BTC", "ask", "2024-01-02T00:00:00+09:00")
	updated.PaidFee = "0.07"
	require.NoError(t, SaveOrders(db, []models.Order{updated}))

	orders, err := LoadOrders(db)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "u1", orders[0].UUID)
	assert.Equal(t, "0.07", orders[1].PaidFee)
}

func TestSaveOrders_Empty(t *testing.T) {
	db := newTestDB(t)
	assert.NoError(t, SaveOrders(db, nil))
}

func TestLoadOrders_FiltersMarkets(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, SaveOrders(db, []models.Order{
		stored("u1", "KRW-BTC", "bid", "2024-01-03T00:00:00+09:00"),
		stored("u2", "KRW-ETH", "bid", "2024-01-02T00:00:00+09:00"),
		stored("u3", "KRW-XRP", "bid", "2024-01-01T00:00:00+09:00"),
	}))

	orders, err := LoadOrders(db, "KRW-BTC", "KRW-XRP")
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "u3", orders[0].UUID, "oldest first")
	assert.Equal(t, "u1", orders[1].UUID)

	markets, err := ListMarkets(db)
	require.NoError(t, err)
	assert.Equal(t, []string{"KRW-BTC", "KRW-ETH", "KRW-XRP"}, markets)
}

func TestFromUpbit(t *testing.T) {
	price := "160000000"
	o := FromUpbit(upbit.Order{
		UUID: "u1", Market: "KRW-BTC", Side: "bid", OrdType: "limit", State: "done",
		Price: &price, ExecutedVolume: "0.1", PaidFee: "8000", CreatedAt: "2024-01-01T00:00:00+09:00",
	})

	assert.Equal(t, "160000000", o.Price)
	assert.Equal(t, "", o.Volume)
	raw := o.Raw()
	assert.Equal(t, "0.1", raw["executed_volume"])
	assert.Equal(t, "2024-01-01T00:00:00+09:00", raw["created_at"])
	_, hasVolume := raw["volume"]
	assert.False(t, hasVolume)
}

func TestExportOrdersCSV(t *testing.T) {
	var buf bytes.Buffer
	err := ExportOrdersCSV(&buf, []models.Order{stored("u1", "KRW-BTC", "bid", "2024-01-01T00:00:00+09:00")})
	require.NoError(t, err)

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, orderCSVHeader, rows[0])
	assert.Equal(t, "u1", rows[1][0])
	assert.Equal(t, "2024-01-01T00:00:00+09:00", rows[1][9])
}
