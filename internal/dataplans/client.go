package dataplans

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Client talks to the DataPlans REST API. The token is resolved by the caller
// (stored provider config first, environment second) and passed in as-is.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	log        *slog.Logger
}

func NewClient(token, baseURL string, timeout time.Duration, log *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		token:   token,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

// Countries fetches the raw country list. Entries keep their provider shape so
// the sync layer can apply its own field extraction.
func (c *Client) Countries(ctx context.Context) ([]map[string]any, error) {
	return c.getList(ctx, "/countries")
}

func (c *Client) Regions(ctx context.Context) ([]map[string]any, error) {
	return c.getList(ctx, "/regions")
}

func (c *Client) Plans(ctx context.Context) ([]map[string]any, error) {
	return c.getList(ctx, "/plans")
}

func (c *Client) Plan(ctx context.Context, slug string) (map[string]any, error) {
	body, err := c.do(ctx, http.MethodGet, "/plans/"+slug, nil)
	if err != nil {
		return nil, err
	}
	var plan map[string]any
	if err := json.Unmarshal(body, &plan); err != nil {
		return nil, fmt.Errorf("decode plan response: %w (body=%s)", err, truncateBody(body))
	}
	if data, ok := plan["data"].(map[string]any); ok {
		return data, nil
	}
	return plan, nil
}

// PurchaseDetails carries the activation artifacts extracted from a completed
// purchase response.
type PurchaseDetails struct {
	OrderID          string
	ICCID            string
	QRCode           string
	ActivationCode   string
	SMDPAddress      string
	ConfirmationCode string
	ExpiryDate       string
	Raw              json.RawMessage
}

// Purchase submits an eSIM purchase for the given plan slug.
func (c *Client) Purchase(ctx context.Context, slug string) (*PurchaseDetails, error) {
	payload := map[string]any{"planSlug": slug}
	body, err := c.do(ctx, http.MethodPost, "/purchases", payload)
	if err != nil {
		return nil, err
	}
	details, err := parsePurchase(body)
	if err != nil {
		return nil, err
	}
	if c.log != nil {
		c.log.Info("dataplans purchase completed", "plan", slug, "order_id", details.OrderID)
	}
	return details, nil
}

// parsePurchase unwraps the nested data.purchase.esim envelope the purchase
// endpoint responds with.
func parsePurchase(body []byte) (*PurchaseDetails, error) {
	var resp struct {
		Data struct {
			Purchase struct {
				PurchaseID string `json:"purchaseId"`
				ExpiryDate string `json:"expiryDate"`
				Esim       struct {
					Serial       string `json:"serial"`
					QRCodeString string `json:"qrCodeString"`
					Manual1      string `json:"manual1"`
					Manual2      string `json:"manual2"`
					OptionalCode string `json:"optionalCode"`
				} `json:"esim"`
			} `json:"purchase"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode purchase response: %w (body=%s)", err, truncateBody(body))
	}
	purchase := resp.Data.Purchase
	if purchase.Esim.Serial == "" {
		return nil, fmt.Errorf("purchase response missing esim serial (body=%s)", truncateBody(body))
	}
	return &PurchaseDetails{
		OrderID:          purchase.PurchaseID,
		ICCID:            purchase.Esim.Serial,
		QRCode:           purchase.Esim.QRCodeString,
		ActivationCode:   purchase.Esim.Manual2,
		SMDPAddress:      purchase.Esim.Manual1,
		ConfirmationCode: purchase.Esim.OptionalCode,
		ExpiryDate:       purchase.ExpiryDate,
		Raw:              json.RawMessage(body),
	}, nil
}

// getList decodes either a bare JSON array or a {"data": [...]} envelope; the
// API uses both depending on the endpoint.
func (c *Client) getList(ctx context.Context, path string) ([]map[string]any, error) {
	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var list []map[string]any
	if err := json.Unmarshal(body, &list); err == nil {
		return list, nil
	}

	var envelope struct {
		Data []map[string]any `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode list response: %w (body=%s)", err, truncateBody(body))
	}
	return envelope.Data, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	fullURL := c.baseURL + path

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dataplans request: %w", err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 300 {
		if c.log != nil {
			c.log.Error("dataplans request failed", "status", resp.StatusCode, "url", fullURL, "body", truncateBody(rawBody))
		}
		return nil, fmt.Errorf("dataplans error: status=%d url=%s body=%s", resp.StatusCode, fullURL, truncateBody(rawBody))
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
