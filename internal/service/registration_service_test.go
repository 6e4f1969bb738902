package service

import (
	"strings"
	"testing"
	"time"

	"github.com/roamjet/backend/internal/models"
)

func TestGenerateCode(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		code, err := generateCode()
		if err != nil {
			t.Fatalf("generateCode: %v", err)
		}
		if len(code) != codeLength {
			t.Fatalf("code %q has length %d, want %d", code, len(code), codeLength)
		}
		for _, r := range code {
			if !strings.ContainsRune(codeAlphabet, r) {
				t.Fatalf("code %q contains %q outside the alphabet", code, r)
			}
		}
		if seen[code] {
			t.Fatalf("duplicate code %q in 50 draws", code)
		}
		seen[code] = true
	}
}

func TestEvaluateCode(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(24 * time.Hour)
	past := now.Add(-time.Hour)

	tests := []struct {
		name       string
		record     *models.RegistrationCode
		email      string
		emailUsed  bool
		wantReason string
	}{
		{
			name:       "unknown code",
			record:     nil,
			email:      "a@b.com",
			wantReason: "Invalid registration code",
		},
		{
			name:       "already used",
			record:     &models.RegistrationCode{Code: "ABCD1234", IsUsed: true, ExpiresAt: future},
			email:      "a@b.com",
			wantReason: "Registration code has already been used",
		},
		{
			name:       "expired",
			record:     &models.RegistrationCode{Code: "ABCD1234", ExpiresAt: past},
			email:      "a@b.com",
			wantReason: "Registration code has expired",
		},
		{
			name:       "bound to another email",
			record:     &models.RegistrationCode{Code: "ABCD1234", Email: "owner@b.com", ExpiresAt: future},
			email:      "a@b.com",
			wantReason: "Registration code is not valid for this email address",
		},
		{
			name:       "email already redeemed another code",
			record:     &models.RegistrationCode{Code: "ABCD1234", ExpiresAt: future},
			email:      "a@b.com",
			emailUsed:  true,
			wantReason: "This email address has already been used with a registration code",
		},
		{
			name:   "valid unbound code",
			record: &models.RegistrationCode{Code: "ABCD1234", ExpiresAt: future},
			email:  "a@b.com",
		},
		{
			name:   "valid bound code",
			record: &models.RegistrationCode{Code: "ABCD1234", Email: "a@b.com", ExpiresAt: future},
			email:  "a@b.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := evaluateCode(tt.record, tt.email, tt.emailUsed, now)
			if got != tt.wantReason {
				t.Errorf("evaluateCode() = %q, want %q", got, tt.wantReason)
			}
		})
	}
}

func TestEvaluateCodeCheckOrder(t *testing.T) {
	// A used code that is also expired must report "used"; redemption state
	// outranks expiry.
	now := time.Now().UTC()
	record := &models.RegistrationCode{Code: "ABCD1234", IsUsed: true, ExpiresAt: now.Add(-time.Hour)}
	if got := evaluateCode(record, "a@b.com", false, now); got != "Registration code has already been used" {
		t.Errorf("evaluateCode() = %q, want used-first ordering", got)
	}
}
