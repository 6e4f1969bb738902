package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roamjet/backend/internal/models"
)

type ConfigRepository struct {
	db *sql.DB
}

func NewConfigRepository(db *sql.DB) *ConfigRepository {
	return &ConfigRepository{db: db}
}

func (r *ConfigRepository) Find(ctx context.Context, provider string) (*models.ProviderConfig, error) {
	const query = `
SELECT provider, COALESCE(api_token, ''), COALESCE(client_secret, ''), mode, updated_at
FROM provider_config WHERE provider = ?`
	row := r.db.QueryRowContext(ctx, query, provider)
	var c models.ProviderConfig
	if err := row.Scan(&c.Provider, &c.APIToken, &c.ClientSecret, &c.Mode, &c.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan provider config: %w", err)
	}
	return &c, nil
}

func (r *ConfigRepository) Save(ctx context.Context, cfg *models.ProviderConfig) error {
	const query = `
INSERT INTO provider_config (provider, api_token, client_secret, mode)
VALUES (?, NULLIF(?, ''), NULLIF(?, ''), ?)
ON DUPLICATE KEY UPDATE
    api_token = COALESCE(NULLIF(VALUES(api_token), ''), api_token),
    client_secret = COALESCE(NULLIF(VALUES(client_secret), ''), client_secret),
    mode = VALUES(mode)`
	if _, err := r.db.ExecContext(ctx, query, cfg.Provider, cfg.APIToken, cfg.ClientSecret, cfg.Mode); err != nil {
		return fmt.Errorf("save provider config: %w", err)
	}
	return nil
}
