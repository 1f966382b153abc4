package report

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var currencyPlaces = map[string]int32{
	"KRW":  0,
	"BTC":  8,
	"USDT": 2,
}

var currencySymbols = map[string]string{
	"KRW": "₩",
}

var printer = message.NewPrinter(language.English)

// FormatAmount renders d with thousands separators, rounded to the minor unit
// of currency. KRW amounts have no fractional part and use the won sign.
func FormatAmount(d decimal.Decimal, currency string) string {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	places, ok := currencyPlaces[currency]
	if !ok {
		places = 2
	}

	r := d.Round(places)
	abs := r.Abs()
	whole := abs.Truncate(0)
	s := groupDigits(whole)
	if places > 0 {
		// "0.50" -> ".50"
		s += abs.Sub(whole).StringFixed(places)[1:]
	}

	sign := ""
	if r.IsNegative() {
		sign = "-"
	}
	if sym, ok := currencySymbols[currency]; ok {
		return sign + sym + s
	}
	if currency == "" {
		return sign + s
	}
	return sign + s + " " + currency
}

// groupDigits inserts thousands separators into a non-negative integer.
// Values past int64 are grouped from their exact digit string.
func groupDigits(whole decimal.Decimal) string {
	if bi := whole.BigInt(); bi.IsInt64() {
		return printer.Sprintf("%d", bi.Int64())
	}
	digits := whole.String()
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return b.String()
}
