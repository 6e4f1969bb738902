package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/roamjet/backend/internal/apierr"
	"github.com/roamjet/backend/internal/models"
	"github.com/roamjet/backend/internal/repository"
)

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength   = 8
	codeValidity = 60 * 24 * time.Hour
)

// RegistrationService issues and redeems single-use invite codes.
type RegistrationService struct {
	log   *slog.Logger
	codes *repository.RegistrationRepository
}

func NewRegistrationService(log *slog.Logger, codes *repository.RegistrationRepository) *RegistrationService {
	return &RegistrationService{log: log, codes: codes}
}

type GeneratedCode struct {
	Code      string    `json:"code"`
	Email     string    `json:"email,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Generate creates a code valid for 60 days, optionally bound to an email.
func (s *RegistrationService) Generate(ctx context.Context, email string) (*GeneratedCode, error) {
	code, err := generateCode()
	if err != nil {
		return nil, apierr.Internal("generate code", err)
	}

	record := &models.RegistrationCode{
		Code:      code,
		Email:     strings.ToLower(strings.TrimSpace(email)),
		ExpiresAt: time.Now().UTC().Add(codeValidity),
	}
	if err := s.codes.Create(ctx, record); err != nil {
		return nil, apierr.Internal("store code", err)
	}

	return &GeneratedCode{Code: record.Code, Email: record.Email, ExpiresAt: record.ExpiresAt}, nil
}

func generateCode() (string, error) {
	buf := make([]byte, codeLength)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("random index: %w", err)
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf), nil
}

type ValidationResult struct {
	Valid     bool       `json:"valid"`
	Code      string     `json:"code,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// Validate checks a code for an email. An invalid code is a normal result,
// not an error; only malformed requests and infrastructure failures error.
func (s *RegistrationService) Validate(ctx context.Context, code, email string) (*ValidationResult, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	email = strings.ToLower(strings.TrimSpace(email))
	if code == "" || email == "" {
		return nil, apierr.InvalidArgument("code and email are required")
	}

	record, err := s.codes.FindByCode(ctx, code)
	if err != nil {
		return nil, apierr.Internal("look up code", err)
	}

	emailUsed := false
	if record != nil {
		emailUsed, err = s.codes.EmailHasUsedCode(ctx, email)
		if err != nil {
			return nil, apierr.Internal("check email usage", err)
		}
	}

	if reason := evaluateCode(record, email, emailUsed, time.Now().UTC()); reason != "" {
		return &ValidationResult{Valid: false, Error: reason}, nil
	}
	expires := record.ExpiresAt
	return &ValidationResult{Valid: true, Code: code, ExpiresAt: &expires}, nil
}

// evaluateCode applies the redemption checks in order; the first failing
// check decides the reported reason.
func evaluateCode(record *models.RegistrationCode, email string, emailUsedElsewhere bool, now time.Time) string {
	if record == nil {
		return "Invalid registration code"
	}
	if record.IsUsed {
		return "Registration code has already been used"
	}
	if record.ExpiresAt.Before(now) {
		return "Registration code has expired"
	}
	if record.Email != "" && record.Email != email {
		return "Registration code is not valid for this email address"
	}
	if emailUsedElsewhere {
		return "This email address has already been used with a registration code"
	}
	return ""
}

// MarkUsed consumes a code on behalf of an authenticated user. Irreversible.
func (s *RegistrationService) MarkUsed(ctx context.Context, userID, code, email string) error {
	if userID == "" {
		return apierr.Unauthenticated("user must be authenticated")
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	email = strings.ToLower(strings.TrimSpace(email))
	if code == "" || email == "" {
		return apierr.InvalidArgument("code and email are required")
	}

	if err := s.codes.MarkUsed(ctx, code, userID, email); err != nil {
		return apierr.Internal("mark code used", err)
	}
	return nil
}

// CleanupExpired deletes expired codes that were never redeemed.
func (s *RegistrationService) CleanupExpired(ctx context.Context) (int64, error) {
	deleted, err := s.codes.DeleteExpiredUnused(ctx)
	if err != nil {
		return 0, apierr.Internal("cleanup expired codes", err)
	}
	s.log.Info("expired registration codes removed", "count", deleted)
	return deleted, nil
}
