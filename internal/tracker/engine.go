package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"upbit-pnl/internal/config"
	"upbit-pnl/internal/database"
	"upbit-pnl/internal/models"
	"upbit-pnl/internal/pnl"
	"upbit-pnl/internal/upbit"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrNoOrderSource is returned when a sync is requested without a REST client.
var ErrNoOrderSource = errors.New("no order source configured")

// Engine fetches order history per market, stores it and computes realized PnL.
type Engine struct {
	logger *zap.Logger
	cfg    *config.Config
	client upbit.RestClientInterface
	db     *gorm.DB
}

// NewEngine creates a new engine. client may be nil when only stored orders are used.
func NewEngine(logger *zap.Logger, cfg *config.Config, client upbit.RestClientInterface, db *gorm.DB) *Engine {
	return &Engine{
		logger: logger,
		cfg:    cfg,
		client: client,
		db:     db,
	}
}

// OptionsFromConfig builds computation options from the report settings.
func OptionsFromConfig(cfg config.Report, logger *zap.Logger) (pnl.Options, error) {
	g, err := pnl.ParseGranularity(cfg.Granularity)
	if err != nil {
		return pnl.Options{}, err
	}
	opts := pnl.Options{
		Granularity: g,
		Strict:      cfg.Strict,
		Parallel:    cfg.Parallel,
		Logger:      logger,
	}
	if cfg.Timezone != "" {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return pnl.Options{}, fmt.Errorf("invalid report.timezone %q: %w", cfg.Timezone, err)
		}
		opts.Location = loc
	}
	return opts, nil
}

// CheckConnection verifies the credentials against the first configured market
// and logs its fee rates.
func (e *Engine) CheckConnection(ctx context.Context) error {
	if e.client == nil {
		return ErrNoOrderSource
	}
	if len(e.cfg.Report.Markets) == 0 {
		return errors.New("no markets configured")
	}
	market := e.cfg.Report.Markets[0]
	chance, err := e.client.GetOrderChance(ctx, market)
	if err != nil {
		return fmt.Errorf("could not reach Upbit API: %w", err)
	}
	e.logger.Info("Connected to Upbit API",
		zap.String("market", market),
		zap.String("bid_fee", chance.BidFee),
		zap.String("ask_fee", chance.AskFee))
	return nil
}

// Sync fetches every configured market and stores the orders. A market that
// fails is logged and skipped; Sync fails only when every market failed.
func (e *Engine) Sync(ctx context.Context) (int, error) {
	if e.client == nil {
		return 0, ErrNoOrderSource
	}
	markets := e.cfg.Report.Markets
	total := 0
	var errs []error
	for _, market := range markets {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		l := e.logger.With(zap.String("market", market))
		l.Info("Fetching order history...")

		fetched, err := e.client.CollectAllOrders(ctx, market)
		if err != nil {
			l.Error("Failed to fetch orders, skipping market", zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", market, err))
			continue
		}

		orders := make([]models.Order, len(fetched))
		for i, o := range fetched {
			orders[i] = database.FromUpbit(o)
		}
		if err := database.SaveOrders(e.db, orders); err != nil {
			return total, fmt.Errorf("could not store orders for %s: %w", market, err)
		}
		l.Info("Stored orders", zap.Int("count", len(orders)))
		total += len(orders)
	}
	if len(markets) > 0 && len(errs) == len(markets) {
		return 0, fmt.Errorf("all markets failed: %w", errors.Join(errs...))
	}
	return total, nil
}

// StoredOrders returns the stored orders of the configured markets, oldest first.
func (e *Engine) StoredOrders() ([]models.Order, error) {
	return database.LoadOrders(e.db, e.cfg.Report.Markets...)
}

// Compute syncs unless offline is set, then computes realized PnL over the
// stored orders of the configured markets.
func (e *Engine) Compute(ctx context.Context, offline bool) (*pnl.Report, error) {
	if !offline {
		if _, err := e.Sync(ctx); err != nil {
			return nil, err
		}
	}
	opts, err := OptionsFromConfig(e.cfg.Report, e.logger)
	if err != nil {
		return nil, err
	}

	stored, err := e.StoredOrders()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.logger.Info("Computing realized PnL",
		zap.Int("orders", len(stored)),
		zap.Stringer("granularity", opts.Granularity))

	report, err := pnl.Compute(models.RawOrders(stored), opts)
	if err != nil {
		return nil, fmt.Errorf("could not compute realized PnL: %w", err)
	}
	if len(report.Rejected) > 0 {
		e.logger.Warn("Some orders were excluded", zap.Int("rejected", len(report.Rejected)))
	}
	if len(report.Shortfalls) > 0 {
		e.logger.Warn("Some sells exceeded recorded inventory", zap.Int("shortfalls", len(report.Shortfalls)))
	}
	return report, nil
}
