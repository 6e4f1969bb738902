package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roamjet/backend/internal/models"
)

// batchSize caps the number of rows written per statement. Mirrors the batch
// ceiling of the document store this catalog was originally hosted in.
const batchSize = 500

type CatalogRepository struct {
	db *sql.DB
}

func NewCatalogRepository(db *sql.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// UpsertCountries merges countries into the catalog in chunks, leaving columns
// not covered by the sync untouched on existing rows.
func (r *CatalogRepository) UpsertCountries(ctx context.Context, countries []models.Country) (int, error) {
	written := 0
	for _, batch := range chunk(countries, batchSize) {
		placeholders := make([]string, 0, len(batch))
		args := make([]any, 0, len(batch)*4)
		for _, c := range batch {
			placeholders = append(placeholders, "(?, ?, ?, ?, NOW())")
			args = append(args, c.Code, c.Name, c.Status, c.Provider)
		}
		query := `
INSERT INTO countries (code, name, status, provider, synced_at)
VALUES ` + strings.Join(placeholders, ", ") + `
ON DUPLICATE KEY UPDATE name = VALUES(name), status = VALUES(status), provider = VALUES(provider), synced_at = NOW()`
		if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
			return written, fmt.Errorf("upsert countries: %w", err)
		}
		written += len(batch)
	}
	return written, nil
}

func (r *CatalogRepository) UpsertRegions(ctx context.Context, regions []models.Region) (int, error) {
	written := 0
	for _, batch := range chunk(regions, batchSize) {
		placeholders := make([]string, 0, len(batch))
		args := make([]any, 0, len(batch)*4)
		for _, reg := range batch {
			placeholders = append(placeholders, "(?, ?, ?, ?, NOW())")
			args = append(args, reg.Slug, reg.Name, reg.Status, reg.Provider)
		}
		query := `
INSERT INTO regions (slug, name, status, provider, synced_at)
VALUES ` + strings.Join(placeholders, ", ") + `
ON DUPLICATE KEY UPDATE name = VALUES(name), status = VALUES(status), provider = VALUES(provider), synced_at = NOW()`
		if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
			return written, fmt.Errorf("upsert regions: %w", err)
		}
		written += len(batch)
	}
	return written, nil
}

func (r *CatalogRepository) UpsertPlans(ctx context.Context, plans []models.Plan) (int, error) {
	written := 0
	for _, batch := range chunk(plans, batchSize) {
		placeholders := make([]string, 0, len(batch))
		args := make([]any, 0, len(batch)*9)
		for _, p := range batch {
			placeholders = append(placeholders, "(?, ?, ?, ?, ?, NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), ?, NOW())")
			args = append(args, p.Slug, p.Name, p.Price, p.OriginalPrice, p.OriginalCurrency, p.Capacity, p.Period, p.CountryCodes, p.Operator, p.Provider)
		}
		query := `
INSERT INTO plans (slug, name, price, original_price, original_currency, capacity, period, country_codes, operator, provider, synced_at)
VALUES ` + strings.Join(placeholders, ", ") + `
ON DUPLICATE KEY UPDATE
    name = VALUES(name),
    price = VALUES(price),
    original_price = VALUES(original_price),
    original_currency = VALUES(original_currency),
    capacity = VALUES(capacity),
    period = VALUES(period),
    country_codes = VALUES(country_codes),
    operator = VALUES(operator),
    provider = VALUES(provider),
    synced_at = NOW()`
		if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
			return written, fmt.Errorf("upsert plans: %w", err)
		}
		written += len(batch)
	}
	return written, nil
}

func (r *CatalogRepository) FindPlanBySlug(ctx context.Context, slug string) (*models.Plan, error) {
	const query = `
SELECT slug, name, price, original_price, original_currency, COALESCE(capacity, ''), COALESCE(period, ''), COALESCE(country_codes, ''), COALESCE(operator, ''), provider
FROM plans WHERE slug = ?`
	row := r.db.QueryRowContext(ctx, query, slug)
	var p models.Plan
	if err := row.Scan(&p.Slug, &p.Name, &p.Price, &p.OriginalPrice, &p.OriginalCurrency, &p.Capacity, &p.Period, &p.CountryCodes, &p.Operator, &p.Provider); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan plan: %w", err)
	}
	return &p, nil
}

func (r *CatalogRepository) ListPlans(ctx context.Context) ([]models.Plan, error) {
	const query = `
SELECT slug, name, price, original_price, original_currency, COALESCE(capacity, ''), COALESCE(period, ''), COALESCE(country_codes, ''), COALESCE(operator, ''), provider
FROM plans ORDER BY slug`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var plans []models.Plan
	for rows.Next() {
		var p models.Plan
		if err := rows.Scan(&p.Slug, &p.Name, &p.Price, &p.OriginalPrice, &p.OriginalCurrency, &p.Capacity, &p.Period, &p.CountryCodes, &p.Operator, &p.Provider); err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

func (r *CatalogRepository) SaveSyncLog(ctx context.Context, entry *models.SyncLog) error {
	const query = `
INSERT INTO sync_logs (provider, environment, countries_synced, regions_synced, plans_synced, notes)
VALUES (?, ?, ?, ?, ?, NULLIF(?, ''))`
	res, err := r.db.ExecContext(ctx, query, entry.Provider, entry.Environment, entry.CountriesSynced, entry.RegionsSynced, entry.PlansSynced, entry.Notes)
	if err != nil {
		return fmt.Errorf("insert sync log: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	entry.ID = id
	return nil
}

func chunk[T any](items []T, size int) [][]T {
	if size <= 0 || len(items) == 0 {
		return nil
	}
	var batches [][]T
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, items[start:end])
	}
	return batches
}
