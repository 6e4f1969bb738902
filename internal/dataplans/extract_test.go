package dataplans

import (
	"math"
	"testing"
)

func TestExtractPrice(t *testing.T) {
	tests := []struct {
		name string
		plan map[string]any
		want float64
		ok   bool
	}{
		{
			name: "retail price wins over price",
			plan: map[string]any{"retailPrice": 12.5, "price": 9.0},
			want: 12.5,
			ok:   true,
		},
		{
			name: "snake case field",
			plan: map[string]any{"price_amount": 7.25},
			want: 7.25,
			ok:   true,
		},
		{
			name: "string encoded number",
			plan: map[string]any{"cost": "3.99"},
			want: 3.99,
			ok:   true,
		},
		{
			name: "nested price object",
			plan: map[string]any{"price": map[string]any{"amount": 15.0}},
			want: 15,
			ok:   true,
		},
		{
			name: "nested pricing retail",
			plan: map[string]any{"pricing": map[string]any{"retail": 22.0}},
			want: 22,
			ok:   true,
		},
		{
			name: "pricing list takes first numeric",
			plan: map[string]any{"pricing": []any{"n/a", 5.5}},
			want: 5.5,
			ok:   true,
		},
		{
			name: "no price anywhere",
			plan: map[string]any{"name": "5GB"},
			want: 0,
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractPrice(tt.plan)
			if ok != tt.ok {
				t.Fatalf("ExtractPrice ok = %v, want %v", ok, tt.ok)
			}
			if got != tt.want {
				t.Errorf("ExtractPrice = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExtractCurrency(t *testing.T) {
	tests := []struct {
		name string
		plan map[string]any
		want string
	}{
		{"camel case", map[string]any{"priceCurrency": "eur"}, "EUR"},
		{"snake case", map[string]any{"price_currency": "THB"}, "THB"},
		{"nested object", map[string]any{"price": map[string]any{"currency": "gbp"}}, "GBP"},
		{"default usd", map[string]any{"name": "plan"}, "USD"},
		{"empty string falls through", map[string]any{"currency": "", "currencyCode": "JPY"}, "JPY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractCurrency(tt.plan); got != tt.want {
				t.Errorf("ExtractCurrency = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConvertToUSD(t *testing.T) {
	tests := []struct {
		name     string
		amount   float64
		currency string
		want     float64
	}{
		{"usd passthrough", 10, "USD", 10},
		{"eur", 10, "EUR", 10.8},
		{"thb", 100, "THB", 2.8},
		{"unknown currency rate 1.0", 42, "XYZ", 42},
		{"empty currency", 5, "", 5},
		{"lowercase currency", 10, "eur", 10.8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ConvertToUSD(tt.amount, tt.currency)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("ConvertToUSD(%v, %q) = %v, want %v", tt.amount, tt.currency, got, tt.want)
			}
		})
	}
}

func TestFormatCapacity(t *testing.T) {
	tests := []struct {
		name string
		raw  any
		want string
	}{
		{"unlimited sentinel", float64(-1), "Unlimited"},
		{"unlimited string sentinel", "-1", "Unlimited"},
		{"numeric capacity", float64(5), "5"},
		{"fractional capacity", 1.5, "1.5"},
		{"string capacity kept", "10GB", "10GB"},
		{"missing capacity", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatCapacity(tt.raw); got != tt.want {
				t.Errorf("FormatCapacity(%v) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}
