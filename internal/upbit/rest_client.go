package upbit

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"upbit-pnl/internal/config"
	"upbit-pnl/internal/pnl"

	"github.com/go-resty/resty/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://api.upbit.com"
	maxRetries     = 3
	OrderSideBid   = "bid"
	OrderSideAsk   = "ask"
	OrderStateDone = "done"
)

// RestClientInterface defines the interface for the Upbit REST API client.
type RestClientInterface interface {
	GetOrders(ctx context.Context, market string, page int) ([]Order, error)
	CollectAllOrders(ctx context.Context, market string) ([]Order, error)
	GetOrderChance(ctx context.Context, market string) (*OrderChance, error)
}

// RestClient is a client for the Upbit REST API.
// It implements the RestClientInterface.
type RestClient struct {
	client    *resty.Client
	accessKey string
	secretKey string
	pageSize  int
	logger    *zap.Logger
	limiter   *rate.Limiter
	backoff   func(attempt int) time.Duration
}

// ensure RestClient implements the interface
var _ RestClientInterface = (*RestClient)(nil)

// NewRestClient creates a new Upbit REST API client.
func NewRestClient(cfg *config.Upbit, logger *zap.Logger) *RestClient {
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	burst := cfg.RateLimitBurst
	if burst <= 0 {
		burst = 1
	}
	logger.Info("Using Upbit API", zap.String("base_url", base))

	return &RestClient{
		client:    resty.New().SetBaseURL(base),
		accessKey: cfg.AccessKey,
		secretKey: cfg.SecretKey,
		pageSize:  pageSize,
		logger:    logger,
		// rate.Limit is requests per second.
		limiter: rate.NewLimiter(limit, burst),
		backoff: exponentialBackoff,
	}
}

// exponentialBackoff waits 1s, 2s, 4s...
func exponentialBackoff(attempt int) time.Duration {
	return time.Duration(math.Pow(2, float64(attempt))) * time.Second
}

// authorization builds the bearer token for a request. When the request has
// a query, its SHA512 hash is signed along so the server can verify it.
func (c *RestClient) authorization(query url.Values) (string, error) {
	claims := jwt.MapClaims{
		"access_key": c.accessKey,
		"nonce":      uuid.NewString(),
	}
	if len(query) > 0 {
		sum := sha512.Sum512([]byte(query.Encode()))
		claims["query_hash"] = hex.EncodeToString(sum[:])
		claims["query_hash_alg"] = "SHA512"
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(c.secretKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return "Bearer " + token, nil
}

// signedRequest returns a builder for an authenticated GET with the given query.
// A fresh request (and nonce) is produced on every call so retries are not replays.
func (c *RestClient) signedRequest(query url.Values, result any) func(ctx context.Context) (*resty.Request, error) {
	return func(ctx context.Context) (*resty.Request, error) {
		auth, err := c.authorization(query)
		if err != nil {
			return nil, err
		}
		return c.client.R().
			SetContext(ctx).
			SetHeader("Authorization", auth).
			SetHeader("Accept", "application/json").
			SetQueryString(query.Encode()).
			SetResult(result), nil
	}
}

// doRequest handles the actual request execution with rate limiting and retry logic.
func (c *RestClient) doRequest(ctx context.Context, method, path string, build func(context.Context) (*resty.Request, error)) (*resty.Response, error) {
	var resp *resty.Response
	var err error

	for i := 0; i < maxRetries; i++ {
		// Wait for the rate limiter
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		req, buildErr := build(ctx)
		if buildErr != nil {
			return nil, buildErr
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", c.client.BaseURL+path))
		resp, err = req.Execute(method, path)

		if err == nil && !resp.IsError() {
			return resp, nil // Success
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		// Analyze error and decide whether to retry. Network and other
		// client-side errors are always retried.
		var retryAfter time.Duration
		if err == nil {
			statusCode := resp.StatusCode()
			switch {
			case statusCode == http.StatusTooManyRequests || statusCode == 418:
				if seconds, convErr := strconv.Atoi(resp.Header().Get("Retry-After")); convErr == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			case statusCode >= 500: // Server errors
			default:
				return nil, fmt.Errorf("request failed with status %s: %s", resp.Status(), resp.String())
			}
			err = fmt.Errorf("status %s", resp.Status())
		}

		if i == maxRetries-1 {
			break
		}
		if retryAfter == 0 {
			retryAfter = c.backoff(i)
		}

		c.logger.Warn("Request failed, retrying...",
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", maxRetries, err)
}

// Order is one entry of the /v1/orders response. Numeric fields are decimal strings.
type Order struct {
	UUID            string  `json:"uuid"`
	Side            string  `json:"side"`
	OrdType         string  `json:"ord_type"`
	Price           *string `json:"price"`
	State           string  `json:"state"`
	Market          string  `json:"market"`
	CreatedAt       string  `json:"created_at"`
	Volume          *string `json:"volume"`
	RemainingVolume *string `json:"remaining_volume"`
	ReservedFee     string  `json:"reserved_fee"`
	RemainingFee    string  `json:"remaining_fee"`
	PaidFee         string  `json:"paid_fee"`
	Locked          string  `json:"locked"`
	ExecutedVolume  string  `json:"executed_volume"`
	TradesCount     int     `json:"trades_count"`
}

// Raw converts the order into the loosely-typed form the PnL engine normalizes.
// Absent or null fields are left out so they are reported as missing.
func (o Order) Raw() pnl.RawOrder {
	raw := pnl.RawOrder{
		pnl.FieldUUID:   o.UUID,
		pnl.FieldMarket: o.Market,
	}
	set := func(key, value string) {
		if value != "" {
			raw[key] = value
		}
	}
	set(pnl.FieldSide, o.Side)
	set(pnl.FieldCreatedAt, o.CreatedAt)
	set(pnl.FieldExecutedVolume, o.ExecutedVolume)
	set(pnl.FieldPaidFee, o.PaidFee)
	if o.Price != nil {
		set(pnl.FieldPrice, *o.Price)
	}
	return raw
}

// GetOrders fetches one page of completed orders for market, newest first.
func (c *RestClient) GetOrders(ctx context.Context, market string, page int) ([]Order, error) {
	query := url.Values{}
	query.Set("market", market)
	query.Set("state", OrderStateDone)
	query.Set("page", strconv.Itoa(page))
	query.Set("order_by", "desc")
	query.Set("limit", strconv.Itoa(c.pageSize))

	var orders []Order
	resp, err := c.doRequest(ctx, http.MethodGet, "/v1/orders", c.signedRequest(query, &orders))
	if err != nil {
		c.logger.Error("Failed to get orders", zap.String("market", market), zap.Int("page", page), zap.Error(err))
		return nil, fmt.Errorf("failed to get orders for %s page %d: %w", market, page, err)
	}

	return *resp.Result().(*[]Order), nil
}

// CollectAllOrders pages through every completed order of market. It stops at
// an empty page or a page shorter than the page size.
func (c *RestClient) CollectAllOrders(ctx context.Context, market string) ([]Order, error) {
	var all []Order
	for page := 1; ; page++ {
		orders, err := c.GetOrders(ctx, market, page)
		if err != nil {
			return nil, err
		}
		if len(orders) == 0 {
			break
		}
		all = append(all, orders...)
		c.logger.Debug("Fetched order page", zap.String("market", market), zap.Int("page", page), zap.Int("count", len(orders)))
		if len(orders) < c.pageSize {
			break
		}
	}
	c.logger.Info("Collected orders", zap.String("market", market), zap.Int("count", len(all)))
	return all, nil
}

// OrderChance is the subset of /v1/orders/chance used here.
type OrderChance struct {
	BidFee string `json:"bid_fee"`
	AskFee string `json:"ask_fee"`
	Market struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"market"`
}

// GetOrderChance fetches the fee rates for market. It doubles as a check that
// the credentials are accepted.
func (c *RestClient) GetOrderChance(ctx context.Context, market string) (*OrderChance, error) {
	query := url.Values{}
	query.Set("market", market)

	resp, err := c.doRequest(ctx, http.MethodGet, "/v1/orders/chance", c.signedRequest(query, &OrderChance{}))
	if err != nil {
		return nil, fmt.Errorf("failed to get order chance for %s: %w", market, err)
	}
	return resp.Result().(*OrderChance), nil
}
