package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roamjet/backend/internal/models"
)

type ClientRepository struct {
	db *sql.DB
}

func NewClientRepository(db *sql.DB) *ClientRepository {
	return &ClientRepository{db: db}
}

const clientColumns = `client_id, device_type, proxy_type, country, COALESCE(city, ''), COALESCE(platform, ''), COALESCE(original_ip, ''), is_chrome_extension, COALESCE(capabilities, ''), COALESCE(device_fingerprint, ''), COALESCE(connection_quality, ''), online, last_seen, created_at, updated_at`

func (r *ClientRepository) scan(row interface{ Scan(...any) error }) (*models.ProxyClient, error) {
	var c models.ProxyClient
	var chromeExt, online int
	var lastSeen sql.NullTime
	if err := row.Scan(&c.ClientID, &c.DeviceType, &c.ProxyType, &c.Country, &c.City, &c.Platform, &c.OriginalIP, &chromeExt, &c.Capabilities, &c.DeviceFingerprint, &c.ConnectionQuality, &online, &lastSeen, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.IsChromeExtension = chromeExt != 0
	c.Online = online != 0
	if lastSeen.Valid {
		c.LastSeen = &lastSeen.Time
	}
	return &c, nil
}

func (r *ClientRepository) FindByID(ctx context.Context, clientID string) (*models.ProxyClient, error) {
	query := `SELECT ` + clientColumns + ` FROM proxy_clients WHERE client_id = ?`
	row := r.db.QueryRowContext(ctx, query, clientID)
	c, err := r.scan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan proxy client: %w", err)
	}
	return c, nil
}

func (r *ClientRepository) Save(ctx context.Context, c *models.ProxyClient) error {
	const query = `
INSERT INTO proxy_clients (client_id, device_type, proxy_type, country, city, platform, original_ip, is_chrome_extension, capabilities, device_fingerprint, connection_quality, online, last_seen)
VALUES (?, ?, ?, ?, NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), ?, NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), ?, NOW())
ON DUPLICATE KEY UPDATE
    device_type = VALUES(device_type),
    proxy_type = VALUES(proxy_type),
    country = VALUES(country),
    city = VALUES(city),
    platform = VALUES(platform),
    original_ip = VALUES(original_ip),
    is_chrome_extension = VALUES(is_chrome_extension),
    capabilities = VALUES(capabilities),
    device_fingerprint = VALUES(device_fingerprint),
    connection_quality = VALUES(connection_quality),
    online = VALUES(online),
    last_seen = NOW()`
	chromeExt := 0
	if c.IsChromeExtension {
		chromeExt = 1
	}
	online := 0
	if c.Online {
		online = 1
	}
	if _, err := r.db.ExecContext(ctx, query, c.ClientID, c.DeviceType, c.ProxyType, c.Country, c.City, c.Platform, c.OriginalIP, chromeExt, c.Capabilities, c.DeviceFingerprint, c.ConnectionQuality, online); err != nil {
		return fmt.Errorf("save proxy client: %w", err)
	}
	return nil
}

func (r *ClientRepository) UpdateStatus(ctx context.Context, clientID string, online bool) error {
	const query = `UPDATE proxy_clients SET online = ?, last_seen = NOW(), updated_at = NOW() WHERE client_id = ?`
	value := 0
	if online {
		value = 1
	}
	res, err := r.db.ExecContext(ctx, query, value, clientID)
	if err != nil {
		return fmt.Errorf("update client status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("status rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *ClientRepository) List(ctx context.Context) ([]*models.ProxyClient, error) {
	query := `SELECT ` + clientColumns + ` FROM proxy_clients ORDER BY last_seen DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list proxy clients: %w", err)
	}
	defer rows.Close()

	var clients []*models.ProxyClient
	for rows.Next() {
		c, err := r.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan proxy client: %w", err)
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

func (r *ClientRepository) ListChromeExtension(ctx context.Context) ([]*models.ProxyClient, error) {
	query := `SELECT ` + clientColumns + ` FROM proxy_clients WHERE is_chrome_extension = 1`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list chrome extension clients: %w", err)
	}
	defer rows.Close()

	var clients []*models.ProxyClient
	for rows.Next() {
		c, err := r.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan proxy client: %w", err)
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

func (r *ClientRepository) Delete(ctx context.Context, clientID string) error {
	const query = `DELETE FROM proxy_clients WHERE client_id = ?`
	res, err := r.db.ExecContext(ctx, query, clientID)
	if err != nil {
		return fmt.Errorf("delete proxy client: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
