package database

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id VARCHAR(64) PRIMARY KEY,
    email VARCHAR(255),
    name VARCHAR(255),
    wallet_balance DECIMAL(10,2) NOT NULL DEFAULT 0,
    stripe_customer_id_test VARCHAR(64),
    stripe_customer_id_live VARCHAR(64),
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS proxy_clients (
    client_id VARCHAR(128) PRIMARY KEY,
    device_type VARCHAR(16) NOT NULL DEFAULT 'desktop',
    proxy_type VARCHAR(16) NOT NULL DEFAULT 'socks5',
    country VARCHAR(64) NOT NULL DEFAULT 'unknown',
    city VARCHAR(128),
    platform VARCHAR(64),
    original_ip VARCHAR(64),
    is_chrome_extension TINYINT(1) NOT NULL DEFAULT 0,
    capabilities TEXT,
    device_fingerprint VARCHAR(255),
    connection_quality VARCHAR(32),
    online TINYINT(1) NOT NULL DEFAULT 0,
    last_seen TIMESTAMP NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS countries (
    code VARCHAR(8) PRIMARY KEY,
    name VARCHAR(255) NOT NULL,
    status VARCHAR(16) NOT NULL DEFAULT 'active',
    provider VARCHAR(32) NOT NULL,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
    synced_at TIMESTAMP NULL
);

CREATE TABLE IF NOT EXISTS regions (
    slug VARCHAR(64) PRIMARY KEY,
    name VARCHAR(255) NOT NULL,
    status VARCHAR(16) NOT NULL DEFAULT 'active',
    provider VARCHAR(32) NOT NULL,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
    synced_at TIMESTAMP NULL
);

CREATE TABLE IF NOT EXISTS plans (
    slug VARCHAR(128) PRIMARY KEY,
    name VARCHAR(255) NOT NULL,
    price DECIMAL(10,2) NOT NULL,
    original_price DECIMAL(10,2) NOT NULL,
    original_currency VARCHAR(8) NOT NULL DEFAULT 'USD',
    capacity VARCHAR(32),
    period VARCHAR(32),
    country_codes TEXT,
    operator VARCHAR(255),
    provider VARCHAR(32) NOT NULL,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
    synced_at TIMESTAMP NULL
);

CREATE TABLE IF NOT EXISTS orders (
    id VARCHAR(64) PRIMARY KEY,
    user_id VARCHAR(64) NOT NULL,
    plan_slug VARCHAR(128) NOT NULL,
    amount DECIMAL(10,2) NOT NULL,
    currency VARCHAR(8) NOT NULL DEFAULT 'USD',
    status VARCHAR(16) NOT NULL DEFAULT 'initiated',
    esim_data TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
    KEY idx_orders_user (user_id)
);

CREATE TABLE IF NOT EXISTS esims (
    id VARCHAR(64) PRIMARY KEY,
    user_id VARCHAR(64) NOT NULL,
    order_id VARCHAR(64) NOT NULL,
    iccid VARCHAR(32),
    qr_code TEXT,
    qr_code_image TEXT,
    activation_code VARCHAR(255),
    smdp_address VARCHAR(255),
    confirmation_code VARCHAR(255),
    provider VARCHAR(32) NOT NULL DEFAULT 'dataplans',
    is_demo TINYINT(1) NOT NULL DEFAULT 0,
    status VARCHAR(16) NOT NULL DEFAULT 'active',
    expiry_date TIMESTAMP NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    KEY idx_esims_user (user_id),
    KEY idx_esims_order (order_id)
);

CREATE TABLE IF NOT EXISTS wallet_transactions (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    user_id VARCHAR(64) NOT NULL,
    type VARCHAR(32) NOT NULL,
    amount DECIMAL(10,2) NOT NULL,
    order_id VARCHAR(64),
    status VARCHAR(16) NOT NULL DEFAULT 'completed',
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    KEY idx_wallet_tx_user (user_id)
);

CREATE TABLE IF NOT EXISTS registration_codes (
    code VARCHAR(16) PRIMARY KEY,
    email VARCHAR(255),
    is_used TINYINT(1) NOT NULL DEFAULT 0,
    expires_at TIMESTAMP NOT NULL,
    used_by_user_id VARCHAR(64),
    used_by_email VARCHAR(255),
    used_at TIMESTAMP NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    KEY idx_registration_codes_used_email (used_by_email)
);

CREATE TABLE IF NOT EXISTS sync_logs (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    provider VARCHAR(32) NOT NULL,
    environment VARCHAR(16) NOT NULL,
    countries_synced INT NOT NULL DEFAULT 0,
    regions_synced INT NOT NULL DEFAULT 0,
    plans_synced INT NOT NULL DEFAULT 0,
    notes TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS provider_config (
    provider VARCHAR(32) PRIMARY KEY,
    api_token VARCHAR(255),
    client_secret VARCHAR(255),
    mode VARCHAR(16) NOT NULL DEFAULT 'sandbox',
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
);
`
