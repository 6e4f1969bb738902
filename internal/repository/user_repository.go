package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roamjet/backend/internal/models"
)

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) DB() *sql.DB {
	return r.db
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	const query = `
SELECT id, COALESCE(email, ''), COALESCE(name, ''), wallet_balance, COALESCE(stripe_customer_id_test, ''), COALESCE(stripe_customer_id_live, ''), created_at, updated_at
FROM users WHERE id = ?`
	row := r.db.QueryRowContext(ctx, query, id)
	var u models.User
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.WalletBalance, &u.StripeCustomerIDTest, &u.StripeCustomerIDLive, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	const query = `
INSERT INTO users (id, email, name, wallet_balance)
VALUES (?, NULLIF(?, ''), NULLIF(?, ''), ?)`
	if _, err := r.db.ExecContext(ctx, query, user.ID, user.Email, user.Name, user.WalletBalance); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// Ensure returns the stored user, creating a fresh record on first contact.
func (r *UserRepository) Ensure(ctx context.Context, id, email, name string) (*models.User, error) {
	user, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user != nil {
		return user, nil
	}
	newUser := &models.User{ID: id, Email: email, Name: name}
	if err := r.Create(ctx, newUser); err != nil {
		return nil, err
	}
	return newUser, nil
}

// SetStripeCustomerID stores the customer id for the given mode. Test and live
// customers live in separate Stripe namespaces and must never be mixed.
func (r *UserRepository) SetStripeCustomerID(ctx context.Context, userID, mode, customerID string) error {
	column := "stripe_customer_id_test"
	if mode == "live" {
		column = "stripe_customer_id_live"
	}
	query := fmt.Sprintf(`UPDATE users SET %s = ?, updated_at = NOW() WHERE id = ?`, column)
	if _, err := r.db.ExecContext(ctx, query, customerID, userID); err != nil {
		return fmt.Errorf("set stripe customer id: %w", err)
	}
	return nil
}
