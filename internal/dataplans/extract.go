package dataplans

import (
	"fmt"
	"strconv"
	"strings"
)

// Upstream providers disagree on where the price lives. The flat fields are
// tried in order, then the nested price/pricing objects.
var priceFields = []string{
	"retailPrice", "price", "priceAmount", "cost", "amount",
	"price_amount", "price_value", "value", "rate", "fee",
}

var currencyFields = []string{
	"priceCurrency", "currency", "price_currency",
	"priceCurrencyCode", "currencyCode", "price_code",
}

// usdRates is a fixed conversion table; catalog prices are indicative, not
// settlement amounts, so a live feed is not warranted.
var usdRates = map[string]float64{
	"CNY": 0.14,
	"THB": 0.028,
	"EUR": 1.08,
	"GBP": 1.27,
	"JPY": 0.0067,
	"KRW": 0.00075,
	"SGD": 0.74,
	"HKD": 0.13,
	"AUD": 0.65,
	"CAD": 0.74,
}

// ExtractPrice walks the fallback chain of known price field names and returns
// the first numeric value found.
func ExtractPrice(plan map[string]any) (float64, bool) {
	for _, field := range priceFields {
		if v, ok := toFloat(plan[field]); ok {
			return v, true
		}
	}
	for _, nested := range []string{"price", "pricing"} {
		switch obj := plan[nested].(type) {
		case map[string]any:
			for _, field := range []string{"amount", "value", "price", "retail"} {
				if v, ok := toFloat(obj[field]); ok {
					return v, true
				}
			}
		case []any:
			for _, item := range obj {
				if v, ok := toFloat(item); ok {
					return v, true
				}
			}
		}
	}
	return 0, false
}

// ExtractCurrency walks the currency fallback chain, defaulting to USD.
func ExtractCurrency(plan map[string]any) string {
	for _, field := range currencyFields {
		if s, ok := plan[field].(string); ok && s != "" {
			return strings.ToUpper(strings.TrimSpace(s))
		}
	}
	for _, nested := range []string{"price", "pricing"} {
		if obj, ok := plan[nested].(map[string]any); ok {
			for _, field := range currencyFields {
				if s, ok := obj[field].(string); ok && s != "" {
					return strings.ToUpper(strings.TrimSpace(s))
				}
			}
		}
	}
	return "USD"
}

// ConvertToUSD converts an amount using the static rate table. Unknown
// currencies pass through at rate 1.0.
func ConvertToUSD(amount float64, currency string) float64 {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" || currency == "USD" {
		return amount
	}
	rate, ok := usdRates[currency]
	if !ok {
		return amount
	}
	return amount * rate
}

// FormatCapacity renders the plan capacity, mapping the provider's -1 sentinel
// to "Unlimited".
func FormatCapacity(raw any) string {
	if v, ok := toFloat(raw); ok {
		if v == -1 {
			return "Unlimited"
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	if s, ok := raw.(string); ok {
		if strings.TrimSpace(s) == "-1" {
			return "Unlimited"
		}
		return s
	}
	return ""
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	case fmt.Stringer:
		f, err := strconv.ParseFloat(n.String(), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
