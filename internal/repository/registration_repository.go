package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roamjet/backend/internal/models"
)

type RegistrationRepository struct {
	db *sql.DB
}

func NewRegistrationRepository(db *sql.DB) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

func (r *RegistrationRepository) Create(ctx context.Context, code *models.RegistrationCode) error {
	const query = `
INSERT INTO registration_codes (code, email, is_used, expires_at)
VALUES (?, NULLIF(?, ''), 0, ?)`
	if _, err := r.db.ExecContext(ctx, query, code.Code, code.Email, code.ExpiresAt); err != nil {
		return fmt.Errorf("insert registration code: %w", err)
	}
	return nil
}

func (r *RegistrationRepository) FindByCode(ctx context.Context, code string) (*models.RegistrationCode, error) {
	const query = `
SELECT code, COALESCE(email, ''), is_used, expires_at, COALESCE(used_by_user_id, ''), COALESCE(used_by_email, ''), used_at, created_at
FROM registration_codes WHERE code = ?`
	row := r.db.QueryRowContext(ctx, query, code)
	var rc models.RegistrationCode
	var used int
	var usedAt sql.NullTime
	if err := row.Scan(&rc.Code, &rc.Email, &used, &rc.ExpiresAt, &rc.UsedByUserID, &rc.UsedByEmail, &usedAt, &rc.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan registration code: %w", err)
	}
	rc.IsUsed = used != 0
	if usedAt.Valid {
		rc.UsedAt = &usedAt.Time
	}
	return &rc, nil
}

// EmailHasUsedCode reports whether any code has already been consumed by the
// given email. One code redemption per email, across all codes.
func (r *RegistrationRepository) EmailHasUsedCode(ctx context.Context, email string) (bool, error) {
	const query = `SELECT 1 FROM registration_codes WHERE used_by_email = ? AND is_used = 1 LIMIT 1`
	row := r.db.QueryRowContext(ctx, query, email)
	var dummy int
	if err := row.Scan(&dummy); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check code usage: %w", err)
	}
	return true, nil
}

// MarkUsed consumes a code. The is_used guard makes the write one-shot: a
// repeat call matches zero rows and leaves the first consumer's audit trail
// intact, which is treated as a no-op success.
func (r *RegistrationRepository) MarkUsed(ctx context.Context, code, userID, email string) error {
	const query = `
UPDATE registration_codes
SET is_used = 1, used_by_user_id = ?, used_by_email = ?, used_at = NOW()
WHERE code = ? AND is_used = 0`
	if _, err := r.db.ExecContext(ctx, query, userID, email, code); err != nil {
		return fmt.Errorf("mark code used: %w", err)
	}
	return nil
}

// DeleteExpiredUnused removes expired codes that were never consumed. Used
// codes stay behind as an audit trail.
func (r *RegistrationRepository) DeleteExpiredUnused(ctx context.Context) (int64, error) {
	const query = `DELETE FROM registration_codes WHERE expires_at < NOW() AND is_used = 0`
	res, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("delete expired codes: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deleted rows affected: %w", err)
	}
	return deleted, nil
}
