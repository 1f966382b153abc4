package pnl

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrMalformedOrder is returned when a required field is missing or cannot be coerced.
	ErrMalformedOrder = errors.New("malformed order")
	// ErrUnknownSide is returned when the side is neither a buy nor a sell.
	ErrUnknownSide = errors.New("unknown order side")
	// ErrInventoryShortfall marks a sell that exceeded every open lot of its instrument.
	ErrInventoryShortfall = errors.New("inventory shortfall")
)

// Raw order field names, as delivered by the exchange.
const (
	FieldMarket         = "market"
	FieldUUID           = "uuid"
	FieldCreatedAt      = "created_at"
	FieldTimestamp      = "timestamp"
	FieldSide           = "side"
	FieldExecutedVolume = "executed_volume"
	FieldPrice          = "price"
	FieldPaidFee        = "paid_fee"
)

// RawOrder is a loosely-typed order entry as received from an order source.
type RawOrder map[string]any

// Side is the direction of an executed order.
type Side int

const (
	Buy Side = iota + 1
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "Buy"
	case Sell:
		return "Sell"
	default:
		return "Unknown"
	}
}

// ParseSide maps exchange side values ("bid"/"ask" or "buy"/"sell") to a Side.
func ParseSide(v string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "bid", "buy":
		return Buy, nil
	case "ask", "sell":
		return Sell, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownSide, v)
	}
}

// OrderRecord is a validated, strictly typed executed order.
type OrderRecord struct {
	UUID             string
	Instrument       string
	Timestamp        time.Time
	Side             Side
	ExecutedQuantity decimal.Decimal
	Price            decimal.Decimal
	Fee              decimal.Decimal
}

// OrderError reports why a single raw order was rejected.
type OrderError struct {
	// Index is the position of the order in the input batch.
	Index int
	UUID  string
	Field string
	Err   error
}

func (e *OrderError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "order #%d", e.Index)
	if e.UUID != "" {
		fmt.Fprintf(&b, " (%s)", e.UUID)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, " field %q", e.Field)
	}
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	return b.String()
}

func (e *OrderError) Unwrap() error { return e.Err }

// NormalizeOrder validates a raw order and coerces it into an OrderRecord.
// index is only used to identify the order in the returned error.
func NormalizeOrder(index int, raw RawOrder) (OrderRecord, error) {
	rec := OrderRecord{}
	rec.UUID, _ = raw[FieldUUID].(string)
	rec.Instrument, _ = raw[FieldMarket].(string)

	fail := func(field string, err error) (OrderRecord, error) {
		return OrderRecord{}, &OrderError{Index: index, UUID: rec.UUID, Field: field, Err: err}
	}

	tsField := FieldCreatedAt
	tsValue, ok := raw[FieldCreatedAt]
	if !ok || tsValue == nil {
		tsField = FieldTimestamp
		tsValue, ok = raw[FieldTimestamp]
	}
	if !ok || tsValue == nil {
		return fail(FieldCreatedAt, fmt.Errorf("%w: missing timestamp", ErrMalformedOrder))
	}
	ts, err := coerceTime(tsValue)
	if err != nil {
		return fail(tsField, err)
	}
	rec.Timestamp = ts

	sideValue, ok := raw[FieldSide].(string)
	if !ok {
		if _, present := raw[FieldSide]; !present {
			return fail(FieldSide, fmt.Errorf("%w: missing side", ErrMalformedOrder))
		}
		return fail(FieldSide, fmt.Errorf("%w: side is not a string", ErrMalformedOrder))
	}
	if rec.Side, err = ParseSide(sideValue); err != nil {
		return fail(FieldSide, err)
	}

	for _, f := range []struct {
		name string
		dst  *decimal.Decimal
	}{
		{FieldExecutedVolume, &rec.ExecutedQuantity},
		{FieldPrice, &rec.Price},
		{FieldPaidFee, &rec.Fee},
	} {
		v, ok := raw[f.name]
		if !ok || v == nil {
			return fail(f.name, fmt.Errorf("%w: missing %s", ErrMalformedOrder, f.name))
		}
		d, err := coerceDecimal(v)
		if err != nil {
			return fail(f.name, err)
		}
		if d.IsNegative() {
			return fail(f.name, fmt.Errorf("%w: negative value %s", ErrMalformedOrder, d))
		}
		*f.dst = d
	}

	return rec, nil
}

// NormalizeOrders normalizes a batch, returning the accepted records in input
// order together with one error per rejected order.
func NormalizeOrders(raws []RawOrder) ([]OrderRecord, []*OrderError) {
	records := make([]OrderRecord, 0, len(raws))
	var rejected []*OrderError
	for i, raw := range raws {
		rec, err := NormalizeOrder(i, raw)
		if err != nil {
			var oe *OrderError
			if errors.As(err, &oe) {
				rejected = append(rejected, oe)
			}
			continue
		}
		records = append(records, rec)
	}
	return records, rejected
}

func coerceDecimal(v any) (decimal.Decimal, error) {
	switch x := v.(type) {
	case decimal.Decimal:
		return x, nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(x))
		if err != nil {
			return decimal.Zero, fmt.Errorf("%w: %q is not a number", ErrMalformedOrder, x)
		}
		return d, nil
	case json.Number:
		d, err := decimal.NewFromString(x.String())
		if err != nil {
			return decimal.Zero, fmt.Errorf("%w: %q is not a number", ErrMalformedOrder, x)
		}
		return d, nil
	case float64:
		if !finite(x) {
			return decimal.Zero, fmt.Errorf("%w: %v is not a finite number", ErrMalformedOrder, x)
		}
		return decimal.NewFromFloat(x), nil
	case float32:
		if !finite(float64(x)) {
			return decimal.Zero, fmt.Errorf("%w: %v is not a finite number", ErrMalformedOrder, x)
		}
		return decimal.NewFromFloat32(x), nil
	case int:
		return decimal.NewFromInt(int64(x)), nil
	case int64:
		return decimal.NewFromInt(x), nil
	default:
		return decimal.Zero, fmt.Errorf("%w: unsupported numeric type %T", ErrMalformedOrder, v)
	}
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func coerceTime(v any) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case string:
		s := strings.TrimSpace(x)
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.UnixMilli(ms).UTC(), nil
		}
		return time.Time{}, fmt.Errorf("%w: %q is not a timestamp", ErrMalformedOrder, x)
	case json.Number:
		ms, err := x.Int64()
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q is not a timestamp", ErrMalformedOrder, x)
		}
		return time.UnixMilli(ms).UTC(), nil
	case int64:
		return time.UnixMilli(x).UTC(), nil
	case int:
		return time.UnixMilli(int64(x)).UTC(), nil
	case float64:
		if !finite(x) {
			return time.Time{}, fmt.Errorf("%w: %v is not a timestamp", ErrMalformedOrder, x)
		}
		return time.UnixMilli(int64(x)).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("%w: unsupported timestamp type %T", ErrMalformedOrder, v)
	}
}
