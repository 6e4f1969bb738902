package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the API server and supporting services.
type Config struct {
	ListenAddr     string
	LogLevel       string
	MySQLDSN       string
	RequestTimeout time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	DataPlansAPIToken    string
	DataPlansBaseURL     string
	DataPlansEnvironment string

	AiraloClientID     string
	AiraloClientSecret string
	AiraloBaseURL      string

	StripeTestSecretKey string
	StripeLiveSecretKey string
	StripeMode          string
	CheckoutSuccessURL  string
	CheckoutCancelURL   string
	PortalReturnURL     string

	WiseAPIToken    string
	WiseBaseURL     string
	WiseEnvironment string

	S3Endpoint      string
	S3Region        string
	S3AccessKey     string
	S3SecretKey     string
	S3Bucket        string
	S3PublicBaseURL string
	S3UsePathStyle  bool
	S3Prefix        string
}

// Load reads configuration from environment variables, applying sane defaults.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	const defaultDataPlansBaseURL = "https://app.dataplans.io/api/v1"
	const defaultAiraloBaseURL = "https://partners-api.airalo.com"
	const defaultWiseBaseURL = "https://api.sandbox.transferwise.tech"

	cfg := Config{
		ListenAddr:           getEnv("LISTEN_ADDR", ":8080"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		RequestTimeout:       time.Second * time.Duration(getInt("HTTP_TIMEOUT_SECONDS", 30)),
		RedisAddr:            getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:        getEnv("REDIS_PASSWORD", ""),
		RedisDB:              getInt("REDIS_DB", 0),
		RedisPrefix:          getEnv("REDIS_PREFIX", "roamjet"),
		DataPlansBaseURL:     normalizeBaseURL(getEnv("DATAPLANS_BASE_URL", defaultDataPlansBaseURL), defaultDataPlansBaseURL),
		DataPlansEnvironment: strings.ToLower(getEnv("DATAPLANS_ENVIRONMENT", "sandbox")),
		AiraloBaseURL:        normalizeBaseURL(getEnv("AIRALO_BASE_URL", defaultAiraloBaseURL), defaultAiraloBaseURL),
		StripeMode:           strings.ToLower(getEnv("STRIPE_MODE", "test")),
		CheckoutSuccessURL:   getEnv("CHECKOUT_SUCCESS_URL", "https://roamjet.net/success"),
		CheckoutCancelURL:    getEnv("CHECKOUT_CANCEL_URL", "https://roamjet.net/cancel"),
		PortalReturnURL:      getEnv("PORTAL_RETURN_URL", "https://roamjet.net/account"),
		WiseBaseURL:          normalizeBaseURL(getEnv("WISE_BASE_URL", defaultWiseBaseURL), defaultWiseBaseURL),
		WiseEnvironment:      strings.ToLower(getEnv("WISE_ENVIRONMENT", "sandbox")),
		S3Endpoint:           getEnv("S3_ENDPOINT", ""),
		S3Region:             os.Getenv("S3_REGION"),
		S3AccessKey:          os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:          os.Getenv("S3_SECRET_KEY"),
		S3Bucket:             os.Getenv("S3_BUCKET"),
		S3PublicBaseURL:      os.Getenv("S3_PUBLIC_BASE_URL"),
		S3UsePathStyle:       getBool("S3_USE_PATH_STYLE", false),
		S3Prefix:             getEnv("S3_PREFIX", "qrcodes"),
	}

	cfg.MySQLDSN = os.Getenv("MYSQL_DSN")
	cfg.DataPlansAPIToken = getEnvFallback("DATAPLANS_API_TOKEN", "DATAPLANS_API_KEY")
	cfg.AiraloClientID = os.Getenv("AIRALO_CLIENT_ID")
	cfg.AiraloClientSecret = os.Getenv("AIRALO_CLIENT_SECRET")
	cfg.StripeTestSecretKey = getEnvFallback("STRIPE_TEST_SECRET_KEY", "STRIPE_SECRET_KEY")
	cfg.StripeLiveSecretKey = getEnvFallback("STRIPE_LIVE_SECRET_KEY", "STRIPE_SECRET_KEY")
	cfg.WiseAPIToken = os.Getenv("WISE_API_TOKEN")

	var missing []string
	if cfg.MySQLDSN == "" {
		missing = append(missing, "MYSQL_DSN")
	}
	if cfg.StripeMode != "test" && cfg.StripeMode != "live" {
		return Config{}, fmt.Errorf("STRIPE_MODE must be test or live, got %q", cfg.StripeMode)
	}
	if cfg.StripeMode == "live" && cfg.StripeLiveSecretKey == "" {
		missing = append(missing, "STRIPE_LIVE_SECRET_KEY")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %v", missing)
	}

	return cfg, nil
}

// StripeSecretKey returns the secret key for the given mode, falling back to
// the configured default mode when mode is empty.
func (c Config) StripeSecretKey(mode string) string {
	if mode == "" {
		mode = c.StripeMode
	}
	if strings.ToLower(mode) == "live" {
		return c.StripeLiveSecretKey
	}
	return c.StripeTestSecretKey
}

// normalizeBaseURL keeps provider base URLs well-formed. Dashboard pages and docs
// sometimes hand out bare hosts without a scheme.
func normalizeBaseURL(raw string, fallback string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return fallback
	}

	if parsed.Scheme == "" {
		parsed.Scheme = "https"
	}
	if parsed.Host == "" {
		parsed.Host = parsed.Path
		parsed.Path = ""
	}

	return strings.TrimRight(parsed.String(), "/")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvFallback(key string, fallbacks ...string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	for _, fb := range fallbacks {
		if v := os.Getenv(fb); v != "" {
			return v
		}
	}
	return ""
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func loadEnvFile() error {
	candidates := []string{}
	if custom, ok := os.LookupEnv("CONFIG_ENV_PATH"); ok && custom != "" {
		candidates = append(candidates, custom)
	}
	candidates = append(candidates,
		filepath.Join("configs", ".env"),
		".env",
	)

	for _, path := range candidates {
		if path == "" {
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("access env file %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		if err := godotenv.Overload(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	// Running purely on the process environment is fine in containers.
	return nil
}
