package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roamjet/backend/internal/models"
)

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) DB() *sql.DB {
	return r.db
}

func (r *OrderRepository) Create(ctx context.Context, order *models.Order) error {
	const query = `
INSERT INTO orders (id, user_id, plan_slug, amount, currency, status, esim_data)
VALUES (?, ?, ?, ?, ?, ?, NULLIF(?, ''))`
	if _, err := r.db.ExecContext(ctx, query, order.ID, order.UserID, order.PlanSlug, order.Amount, order.Currency, order.Status, order.EsimData); err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *OrderRepository) FindByID(ctx context.Context, id string) (*models.Order, error) {
	const query = `
SELECT id, user_id, plan_slug, amount, currency, status, COALESCE(esim_data, ''), created_at, updated_at
FROM orders WHERE id = ?`
	row := r.db.QueryRowContext(ctx, query, id)
	var o models.Order
	if err := row.Scan(&o.ID, &o.UserID, &o.PlanSlug, &o.Amount, &o.Currency, &o.Status, &o.EsimData, &o.CreatedAt, &o.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}
	return &o, nil
}

// SetEsimData stores the raw provider payload captured at purchase time.
func (r *OrderRepository) SetEsimData(ctx context.Context, orderID, data string) error {
	const query = `UPDATE orders SET esim_data = ?, updated_at = NOW() WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, data, orderID); err != nil {
		return fmt.Errorf("set order esim data: %w", err)
	}
	return nil
}

func (r *OrderRepository) FindEsimByID(ctx context.Context, id string) (*models.Esim, error) {
	const query = esimSelect + ` WHERE id = ?`
	row := r.db.QueryRowContext(ctx, query, id)
	e, err := scanEsim(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan esim: %w", err)
	}
	return e, nil
}

// ListEsims returns a user's eSIMs, optionally filtered to active (unexpired)
// or expired profiles.
func (r *OrderRepository) ListEsims(ctx context.Context, userID string, expired *bool) ([]*models.Esim, error) {
	query := esimSelect + ` WHERE user_id = ?`
	if expired != nil {
		if *expired {
			query += ` AND expiry_date IS NOT NULL AND expiry_date < NOW()`
		} else {
			query += ` AND (expiry_date IS NULL OR expiry_date >= NOW())`
		}
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list esims: %w", err)
	}
	defer rows.Close()

	var esims []*models.Esim
	for rows.Next() {
		e, err := scanEsim(rows)
		if err != nil {
			return nil, fmt.Errorf("scan esim: %w", err)
		}
		esims = append(esims, e)
	}
	return esims, rows.Err()
}

func (r *OrderRepository) ListTransactions(ctx context.Context, userID string) ([]models.WalletTransaction, error) {
	const query = `
SELECT id, user_id, type, amount, COALESCE(order_id, ''), status, created_at
FROM wallet_transactions WHERE user_id = ? ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list wallet transactions: %w", err)
	}
	defer rows.Close()

	var txs []models.WalletTransaction
	for rows.Next() {
		var t models.WalletTransaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Type, &t.Amount, &t.OrderID, &t.Status, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan wallet transaction: %w", err)
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

const esimSelect = `
SELECT id, user_id, order_id, COALESCE(iccid, ''), COALESCE(qr_code, ''), COALESCE(qr_code_image, ''), COALESCE(activation_code, ''), COALESCE(smdp_address, ''), COALESCE(confirmation_code, ''), provider, is_demo, status, expiry_date, created_at
FROM esims`

func scanEsim(row interface{ Scan(...any) error }) (*models.Esim, error) {
	var e models.Esim
	var demo int
	var expiry sql.NullTime
	if err := row.Scan(&e.ID, &e.UserID, &e.OrderID, &e.ICCID, &e.QRCode, &e.QRCodeImage, &e.ActivationCode, &e.SMDPAddress, &e.ConfirmationCode, &e.Provider, &demo, &e.Status, &expiry, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.IsDemo = demo != 0
	if expiry.Valid {
		e.ExpiryDate = &expiry.Time
	}
	return &e, nil
}
