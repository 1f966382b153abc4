package upbit

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"upbit-pnl/internal/config"
	"upbit-pnl/internal/pnl"

	"github.com/go-resty/resty/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	testAccessKey = "test_access_key"
	testSecretKey = "test_secret_key"
)

// setupTestServer creates a new test server and a RestClient configured to use it.
func setupTestServer(handler http.Handler, pageSize int) (*RestClient, *httptest.Server) {
	server := httptest.NewServer(handler)

	rc := &RestClient{
		client:    resty.New().SetBaseURL(server.URL),
		accessKey: testAccessKey,
		secretKey: testSecretKey,
		pageSize:  pageSize,
		logger:    zap.NewNop(), // Use a no-op logger for tests
		limiter:   rate.NewLimiter(rate.Inf, 1), // Allow all requests in tests
		backoff:   func(int) time.Duration { return time.Millisecond },
	}

	return rc, server
}

// verifyAuth checks the bearer token signature and the query hash claim.
func verifyAuth(t *testing.T, r *http.Request) jwt.MapClaims {
	t.Helper()
	header := r.Header.Get("Authorization")
	assert.True(t, strings.HasPrefix(header, "Bearer "), header)

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(strings.TrimPrefix(header, "Bearer "), claims, func(tok *jwt.Token) (any, error) {
		return []byte(testSecretKey), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	assert.NoError(t, err)

	assert.Equal(t, testAccessKey, claims["access_key"])
	assert.NotEmpty(t, claims["nonce"])
	if r.URL.RawQuery != "" {
		sum := sha512.Sum512([]byte(r.URL.RawQuery))
		assert.Equal(t, hex.EncodeToString(sum[:]), claims["query_hash"])
		assert.Equal(t, "SHA512", claims["query_hash_alg"])
	}
	return claims
}

func ordersJSON(n, offset int) string {
	items := make([]string, n)
	for i := range items {
		items[i] = fmt.Sprintf(`{"uuid":"u-%d","side":"bid","ord_type":"limit","price":"100","state":"done","market":"KRW-BTC","created_at":"2024-01-01T00:00:%02d+09:00","volume":"1","executed_volume":"1","paid_fee":"0.05","trades_count":1}`, offset+i, (offset+i)%60)
	}
	return "[" + strings.Join(items, ",") + "]"
}

func TestGetOrders(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		// Arrange
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/orders", r.URL.Path)
			q := r.URL.Query()
			assert.Equal(t, "KRW-BTC", q.Get("market"))
			assert.Equal(t, "done", q.Get("state"))
			assert.Equal(t, "2", q.Get("page"))
			assert.Equal(t, "desc", q.Get("order_by"))
			assert.Equal(t, "10", q.Get("limit"))
			verifyAuth(t, r)

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(ordersJSON(2, 0)))
		})
		rc, server := setupTestServer(handler, 10)
		defer server.Close()

		// Act
		orders, err := rc.GetOrders(context.Background(), "KRW-BTC", 2)

		// Assert
		require.NoError(t, err)
		require.Len(t, orders, 2)
		assert.Equal(t, "u-0", orders[0].UUID)
		require.NotNil(t, orders[0].Price)
		assert.Equal(t, "100", *orders[0].Price)
		assert.Equal(t, "0.05", orders[0].PaidFee)
	})

	t.Run("ClientErrorIsNotRetried", func(t *testing.T) {
		var calls int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"name":"invalid_query_payload","message":"bad jwt"}}`))
		})
		rc, server := setupTestServer(handler, 10)
		defer server.Close()

		orders, err := rc.GetOrders(context.Background(), "KRW-BTC", 1)

		assert.Error(t, err)
		assert.Nil(t, orders)
		assert.Contains(t, err.Error(), "failed to get orders")
		assert.Contains(t, err.Error(), "invalid_query_payload")
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})

	t.Run("ServerErrorIsRetriedWithFreshNonce", func(t *testing.T) {
		var calls int32
		nonces := make(map[string]bool)
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := verifyAuth(t, r)
			nonce, _ := claims["nonce"].(string)
			nonces[nonce] = true
			if atomic.AddInt32(&calls, 1) < 3 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(ordersJSON(1, 0)))
		})
		rc, server := setupTestServer(handler, 10)
		defer server.Close()

		orders, err := rc.GetOrders(context.Background(), "KRW-BTC", 1)

		require.NoError(t, err)
		assert.Len(t, orders, 1)
		assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
		assert.Len(t, nonces, 3)
	})

	t.Run("GivesUpAfterMaxRetries", func(t *testing.T) {
		var calls int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusTooManyRequests)
		})
		rc, server := setupTestServer(handler, 10)
		defer server.Close()

		_, err := rc.GetOrders(context.Background(), "KRW-BTC", 1)

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "request failed after 3 attempts")
		assert.Equal(t, int32(maxRetries), atomic.LoadInt32(&calls))
	})
}

func TestCollectAllOrders(t *testing.T) {
	testCases := []struct {
		name      string
		pages     []int // number of orders returned per page
		wantCalls int
		wantTotal int
	}{
		{name: "Short last page", pages: []int{3, 3, 1}, wantCalls: 3, wantTotal: 7},
		{name: "Empty page ends", pages: []int{3, 3, 0}, wantCalls: 3, wantTotal: 6},
		{name: "No orders", pages: []int{0}, wantCalls: 1, wantTotal: 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var calls int32
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				page, _ := strconv.Atoi(r.URL.Query().Get("page"))
				w.Header().Set("Content-Type", "application/json")
				if page < 1 || page > len(tc.pages) {
					t.Errorf("unexpected page %d", page)
					_, _ = w.Write([]byte("[]"))
					return
				}
				_, _ = w.Write([]byte(ordersJSON(tc.pages[page-1], page*100)))
			})
			rc, server := setupTestServer(handler, 3)
			defer server.Close()

			orders, err := rc.CollectAllOrders(context.Background(), "KRW-BTC")

			require.NoError(t, err)
			assert.Len(t, orders, tc.wantTotal)
			assert.Equal(t, int32(tc.wantCalls), atomic.LoadInt32(&calls))
		})
	}
}

func TestGetOrderChance(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/orders/chance", r.URL.Path)
		assert.Equal(t, "market=KRW-BTC", r.URL.RawQuery)
		verifyAuth(t, r)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"bid_fee":"0.0005","ask_fee":"0.0005","market":{"id":"KRW-BTC","name":"BTC/KRW"}}`))
	})
	rc, server := setupTestServer(handler, 100)
	defer server.Close()

	chance, err := rc.GetOrderChance(context.Background(), "KRW-BTC")

	require.NoError(t, err)
	assert.Equal(t, "0.0005", chance.BidFee)
	assert.Equal(t, "KRW-BTC", chance.Market.ID)
}

func TestOrder_Raw(t *testing.T) {
	price := "130"
	o := Order{UUID: "u1", Side: "ask", Market: "KRW-ETH", CreatedAt: "2024-01-01T00:00:00+09:00",
		Price: &price, ExecutedVolume: "4", PaidFee: "5"}

	rec, err := pnl.NormalizeOrder(0, o.Raw())
	require.NoError(t, err)
	assert.Equal(t, pnl.Sell, rec.Side)
	assert.Equal(t, "KRW-ETH", rec.Instrument)

	// Market sells carry no price and are rejected by normalization.
	o.Price = nil
	_, err = pnl.NormalizeOrder(0, o.Raw())
	assert.ErrorIs(t, err, pnl.ErrMalformedOrder)
}

func TestNewRestClient(t *testing.T) {
	cfg := &config.Upbit{AccessKey: "a", SecretKey: "s", RateLimit: 5, PageSize: 50}
	rc := NewRestClient(cfg, zap.NewNop())
	assert.NotNil(t, rc)
	assert.Equal(t, "a", rc.accessKey)
	assert.Equal(t, "s", rc.secretKey)
	assert.Equal(t, 50, rc.pageSize)
	assert.Equal(t, defaultBaseURL, rc.client.BaseURL)
	assert.Equal(t, 2*time.Second, rc.backoff(1))
}
