package service

import (
	"testing"

	"github.com/roamjet/backend/internal/apierr"
	"github.com/roamjet/backend/internal/config"
)

func TestResolveMode(t *testing.T) {
	s := &StripeService{cfg: config.Config{StripeMode: "test"}}

	tests := []struct {
		name    string
		mode    string
		want    string
		wantErr bool
	}{
		{"empty falls back to configured default", "", "test", false},
		{"explicit test", "test", "test", false},
		{"explicit live", "live", "live", false},
		{"uppercase normalized", "LIVE", "live", false},
		{"unknown rejected", "staging", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.resolveMode(tt.mode)
			if (err != nil) != tt.wantErr {
				t.Fatalf("resolveMode(%q) error = %v, wantErr %v", tt.mode, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("resolveMode(%q) = %q, want %q", tt.mode, got, tt.want)
			}
		})
	}
}

func TestAPIUnconfiguredMode(t *testing.T) {
	s := NewStripeService(config.Config{StripeMode: "test", StripeTestSecretKey: "sk_test_x"}, testLogger(), nil, nil)

	if _, err := s.api("test"); err != nil {
		t.Errorf("api(test) error = %v, want configured client", err)
	}

	_, err := s.api("live")
	if err == nil {
		t.Fatal("api(live) should fail when no live key is set")
	}
	if apierr.From(err).Code != apierr.CodeFailedPrecondition {
		t.Errorf("api(live) code = %v, want failed-precondition", apierr.From(err).Code)
	}
}

func TestToMinorUnits(t *testing.T) {
	tests := []struct {
		amount float64
		want   int64
	}{
		{19.99, 1999},
		{10, 1000},
		{0.1, 10},
		{49.99, 4999},
	}
	for _, tt := range tests {
		if got := toMinorUnits(tt.amount); got != tt.want {
			t.Errorf("toMinorUnits(%v) = %d, want %d", tt.amount, got, tt.want)
		}
	}
}
