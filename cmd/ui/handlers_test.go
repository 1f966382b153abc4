package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"upbit-pnl/internal/config"
	"upbit-pnl/internal/database"
	"upbit-pnl/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func setupServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	setupHandler(t, zap.NewNop()).Routes(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func setupHandler(t *testing.T, log *zap.Logger) *APIHandler {
	t.Helper()
	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "orders.db"))
	require.NoError(t, err)
	require.NoError(t, database.SaveOrders(db, []models.Order{
		{UUID: "b1", Market: "KRW-BTC", Side: "bid", Price: "100", ExecutedVolume: "2", PaidFee: "0", OrderCreatedAt: "2024-01-30T23:30:00+09:00"},
		{UUID: "s1", Market: "KRW-BTC", Side: "ask", Price: "150", ExecutedVolume: "1", PaidFee: "2", OrderCreatedAt: "2024-01-31T23:30:00+09:00"},
		{UUID: "s2", Market: "KRW-BTC", Side: "ask", Price: "90", ExecutedVolume: "1", PaidFee: "0", OrderCreatedAt: "2024-02-01T10:00:00+09:00"},
		{UUID: "b2", Market: "KRW-ETH", Side: "bid", Price: "10", ExecutedVolume: "1", PaidFee: "0", OrderCreatedAt: "2024-02-02T10:00:00+09:00"},
		{UUID: "s3", Market: "KRW-ETH", Side: "ask", Price: "15", ExecutedVolume: "1", PaidFee: "0", OrderCreatedAt: "2024-02-03T10:00:00+09:00"},
	}))

	return NewAPIHandler(log, db, config.Report{Markets: []string{"KRW-BTC", "KRW-ETH"}, Granularity: "month"})
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func TestPnLHandler(t *testing.T) {
	server := setupServer(t)

	t.Run("configured granularity", func(t *testing.T) {
		var got PnLResponse
		require.Equal(t, http.StatusOK, getJSON(t, server.URL+"/api/pnl", &got))

		assert.Equal(t, "month", got.Granularity)
		require.Len(t, got.Entries, 3)
		assert.Equal(t, "2024-01", got.Entries[0].Bucket)
		assert.True(t, decimal.NewFromInt(48).Equal(got.Entries[0].Realized))
		assert.Equal(t, "2024-02", got.Entries[1].Bucket)
		assert.Equal(t, "KRW-BTC", got.Entries[1].Instrument)
		assert.True(t, decimal.NewFromInt(-10).Equal(got.Entries[1].Realized))
		assert.True(t, decimal.NewFromInt(43).Equal(got.Total))
	})

	t.Run("year for one market", func(t *testing.T) {
		var got PnLResponse
		require.Equal(t, http.StatusOK, getJSON(t, server.URL+"/api/pnl?granularity=year&market=KRW-ETH", &got))

		require.Len(t, got.Entries, 1)
		assert.Equal(t, "2024", got.Entries[0].Bucket)
		assert.True(t, decimal.NewFromInt(5).Equal(got.Total))
	})

	t.Run("timezone override", func(t *testing.T) {
		var got PnLResponse
		require.Equal(t, http.StatusOK, getJSON(t, server.URL+"/api/pnl?granularity=day&market=KRW-BTC&timezone=UTC", &got))

		require.Len(t, got.Entries, 2)
		assert.Equal(t, "2024-01-31", got.Entries[0].Bucket)
		assert.Equal(t, "2024-02-01", got.Entries[1].Bucket)
	})

	t.Run("bad granularity", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, getJSON(t, server.URL+"/api/pnl?granularity=week", nil))
	})
}

func TestOrdersHandler(t *testing.T) {
	server := setupServer(t)

	var all []models.Order
	require.Equal(t, http.StatusOK, getJSON(t, server.URL+"/api/orders", &all))
	assert.Len(t, all, 5)

	var btc []models.Order
	require.Equal(t, http.StatusOK, getJSON(t, server.URL+"/api/orders?market=KRW-BTC", &btc))
	require.Len(t, btc, 3)
	assert.Equal(t, "b1", btc[0].UUID)
}

func TestMarketsHandler(t *testing.T) {
	server := setupServer(t)

	var got []string
	require.Equal(t, http.StatusOK, getJSON(t, server.URL+"/api/markets", &got))
	assert.Equal(t, []string{"KRW-BTC", "KRW-ETH"}, got)
}

func TestHealthHandler(t *testing.T) {
	server := setupServer(t)

	var got map[string]string
	require.Equal(t, http.StatusOK, getJSON(t, server.URL+"/health", &got))
	assert.Equal(t, "ok", got["status"])
}

// brokenWriter fails every body write, like a client that hung up.
type brokenWriter struct {
	header http.Header
}

func (w *brokenWriter) Header() http.Header       { return w.header }
func (w *brokenWriter) WriteHeader(int)           {}
func (w *brokenWriter) Write([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestWriteJSON_LogsEncodeFailure(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	h := setupHandler(t, zap.New(core))

	h.HealthHandler(&brokenWriter{header: http.Header{}}, httptest.NewRequest(http.MethodGet, "/health", nil))

	entries := logs.FilterMessage("Failed to write response").All()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].ContextMap()["error"], "connection reset")
}
