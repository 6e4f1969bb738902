package airalo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/roamjet/backend/internal/cache"
)

// Client talks to the Airalo partner API. Access tokens come from the
// client_credentials flow and are cached in Redis until shortly before expiry.
type Client struct {
	clientID     string
	clientSecret string
	baseURL      string
	environment  string
	httpClient   *http.Client
	cache        *cache.Cache
	log          *slog.Logger
}

func NewClient(clientID, clientSecret, baseURL, environment string, c *cache.Cache, log *slog.Logger) *Client {
	return &Client{
		clientID:     clientID,
		clientSecret: clientSecret,
		baseURL:      strings.TrimRight(baseURL, "/"),
		environment:  environment,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		cache: c,
		log:   log,
	}
}

// SetClientSecret swaps in a secret saved through the admin callable without
// restarting the process.
func (c *Client) SetClientSecret(secret string) {
	c.clientSecret = secret
}

type cachedToken struct {
	AccessToken string `json:"access_token"`
}

func (c *Client) tokenCacheKey() string {
	return "airalo:token:" + c.environment
}

func (c *Client) token(ctx context.Context) (string, error) {
	if c.cache != nil {
		var cached cachedToken
		if err := c.cache.Get(ctx, c.tokenCacheKey(), &cached); err == nil && cached.AccessToken != "" {
			return cached.AccessToken, nil
		}
	}

	form := url.Values{}
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("new token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("airalo token request: %w", err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("airalo token error: status=%d body=%s", resp.StatusCode, truncateBody(rawBody))
	}

	var tokenResp struct {
		Data struct {
			AccessToken string `json:"access_token"`
			ExpiresIn   int    `json:"expires_in"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rawBody, &tokenResp); err != nil {
		return "", fmt.Errorf("decode token response: %w (body=%s)", err, truncateBody(rawBody))
	}
	if tokenResp.Data.AccessToken == "" {
		return "", fmt.Errorf("empty access token in response")
	}

	expiresIn := tokenResp.Data.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 3600
	}
	// Refresh five minutes early so in-flight calls never race an expiring token.
	ttl := time.Duration(expiresIn-300) * time.Second
	if ttl > 0 && c.cache != nil {
		if err := c.cache.Set(ctx, c.tokenCacheKey(), cachedToken{AccessToken: tokenResp.Data.AccessToken}, ttl); err != nil && c.log != nil {
			c.log.Warn("cache airalo token", "err", err)
		}
	}

	return tokenResp.Data.AccessToken, nil
}

func (c *Client) Countries(ctx context.Context) ([]map[string]any, error) {
	return c.getList(ctx, "/v2/countries")
}

func (c *Client) Regions(ctx context.Context) ([]map[string]any, error) {
	return c.getList(ctx, "/v2/regions")
}

func (c *Client) Packages(ctx context.Context) ([]map[string]any, error) {
	return c.getList(ctx, "/v2/packages")
}

// SubmitOrder places an order for the given package slug.
func (c *Client) SubmitOrder(ctx context.Context, packageSlug, customerEmail, customerName string) (map[string]any, error) {
	payload := map[string]any{
		"package_slug":   packageSlug,
		"customer_email": customerEmail,
	}
	if customerName != "" {
		payload["customer_name"] = customerName
	}
	body, err := c.do(ctx, http.MethodPost, "/v2/orders", payload)
	if err != nil {
		return nil, err
	}
	return unwrapData(body)
}

func (c *Client) GetEsim(ctx context.Context, esimID string) (map[string]any, error) {
	body, err := c.do(ctx, http.MethodGet, "/v2/esims/"+esimID, nil)
	if err != nil {
		return nil, err
	}
	return unwrapData(body)
}

func (c *Client) getList(ctx context.Context, path string) ([]map[string]any, error) {
	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var envelope struct {
		Data []map[string]any `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode list response: %w (body=%s)", err, truncateBody(body))
	}
	return envelope.Data, nil
}

func unwrapData(body []byte) (map[string]any, error) {
	var envelope struct {
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode response: %w (body=%s)", err, truncateBody(body))
	}
	if envelope.Data == nil {
		return nil, fmt.Errorf("empty data in response (body=%s)", truncateBody(body))
	}
	return envelope.Data, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, fmt.Errorf("authenticate: %w", err)
	}

	fullURL := c.baseURL + path

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		reqBody = strings.NewReader(string(data))
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("airalo request: %w", err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 300 {
		if c.log != nil {
			c.log.Error("airalo request failed", "status", resp.StatusCode, "url", fullURL, "body", truncateBody(rawBody))
		}
		return nil, fmt.Errorf("airalo error: status=%d url=%s body=%s", resp.StatusCode, fullURL, truncateBody(rawBody))
	}

	return rawBody, nil
}

func truncateBody(body []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(body))
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}
