package main

import (
	"encoding/json"
	"net/http"
	"strings"

	"upbit-pnl/internal/config"
	"upbit-pnl/internal/database"
	"upbit-pnl/internal/models"
	"upbit-pnl/internal/pnl"
	"upbit-pnl/internal/tracker"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// APIHandler holds dependencies for the API endpoints.
type APIHandler struct {
	log    *zap.Logger
	db     *gorm.DB
	report config.Report
}

// NewAPIHandler creates a new APIHandler.
func NewAPIHandler(log *zap.Logger, db *gorm.DB, report config.Report) *APIHandler {
	return &APIHandler{log: log, db: db, report: report}
}

// Routes registers the API endpoints on mux.
func (h *APIHandler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/orders", h.OrdersHandler)
	mux.HandleFunc("GET /api/markets", h.MarketsHandler)
	mux.HandleFunc("GET /api/pnl", h.PnLHandler)
	mux.HandleFunc("GET /health", h.HealthHandler)
}

// markets reads ?market=A&market=B or ?market=A,B, falling back to the configured markets.
func (h *APIHandler) markets(r *http.Request) []string {
	var out []string
	for _, v := range r.URL.Query()["market"] {
		for _, m := range strings.Split(v, ",") {
			if m = strings.TrimSpace(m); m != "" {
				out = append(out, m)
			}
		}
	}
	if len(out) == 0 {
		return h.report.Markets
	}
	return out
}

// OrdersHandler returns the stored orders, oldest first.
func (h *APIHandler) OrdersHandler(w http.ResponseWriter, r *http.Request) {
	orders, err := database.LoadOrders(h.db, h.markets(r)...)
	if err != nil {
		h.log.Error("Failed to get orders from database", zap.Error(err))
		http.Error(w, "Failed to get orders", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, orders)
}

// MarketsHandler returns the distinct markets with stored orders.
func (h *APIHandler) MarketsHandler(w http.ResponseWriter, r *http.Request) {
	markets, err := database.ListMarkets(h.db)
	if err != nil {
		h.log.Error("Failed to list markets", zap.Error(err))
		http.Error(w, "Failed to list markets", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, markets)
}

// EntryResponse is one bucket and market cell.
type EntryResponse struct {
	Bucket     string          `json:"bucket"`
	Instrument string          `json:"instrument"`
	Realized   decimal.Decimal `json:"realized"`
}

// TotalResponse is a realized amount summed over buckets or markets.
type TotalResponse struct {
	Name     string          `json:"name"`
	Realized decimal.Decimal `json:"realized"`
}

// PnLResponse is the structure for the /api/pnl endpoint.
type PnLResponse struct {
	Granularity  string          `json:"granularity"`
	Entries      []EntryResponse `json:"entries"`
	ByBucket     []TotalResponse `json:"by_bucket"`
	ByInstrument []TotalResponse `json:"by_instrument"`
	Total        decimal.Decimal `json:"total"`
	Rejected     int             `json:"rejected"`
	Shortfalls   int             `json:"shortfalls"`
}

// PnLHandler computes realized PnL over the stored orders.
// Query parameters granularity, timezone and market override the configuration.
func (h *APIHandler) PnLHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	settings := h.report
	if g := q.Get("granularity"); g != "" {
		settings.Granularity = g
	}
	if tz := q.Get("timezone"); tz != "" {
		settings.Timezone = tz
	}
	settings.Strict = false

	opts, err := tracker.OptionsFromConfig(settings, h.log)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	orders, err := database.LoadOrders(h.db, h.markets(r)...)
	if err != nil {
		h.log.Error("Failed to get orders for PnL", zap.Error(err))
		http.Error(w, "Failed to compute PnL", http.StatusInternalServerError)
		return
	}
	rep, err := pnl.Compute(models.RawOrders(orders), opts)
	if err != nil {
		h.log.Error("Failed to compute PnL", zap.Error(err))
		http.Error(w, "Failed to compute PnL", http.StatusInternalServerError)
		return
	}

	response := PnLResponse{
		Granularity:  rep.Granularity.String(),
		Entries:      []EntryResponse{},
		ByBucket:     totals(rep.ByBucket()),
		ByInstrument: totals(rep.ByInstrument()),
		Total:        rep.Total(),
		Rejected:     len(rep.Rejected),
		Shortfalls:   len(rep.Shortfalls),
	}
	for _, e := range rep.Entries() {
		response.Entries = append(response.Entries, EntryResponse{Bucket: e.Bucket, Instrument: e.Instrument, Realized: e.Amount})
	}
	h.writeJSON(w, response)
}

func totals(in []pnl.Total) []TotalResponse {
	out := make([]TotalResponse, len(in))
	for i, t := range in {
		out[i] = TotalResponse{Name: t.Name, Realized: t.Amount}
	}
	return out
}

// HealthHandler reports whether the database is reachable.
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(r.Context())
	}
	if err != nil {
		h.log.Error("Health check failed", zap.Error(err))
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	h.writeJSON(w, map[string]string{"status": "ok"})
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to write response", zap.Error(err))
	}
}
