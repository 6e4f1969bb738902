package wise

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

	"github.com/google/uuid"
)

// Client drives the bank payout flow against the Wise API.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	log        *slog.Logger
}

func NewClient(token, baseURL string, log *slog.Logger) *Client {
	return &Client{
		token:   token,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log,
	}
}

type Profile struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

// Profiles lists the account profiles the API token can act for.
func (c *Client) Profiles(ctx context.Context) ([]Profile, error) {
	body, err := c.do(ctx, http.MethodGet, "/v1/profiles", nil)
	if err != nil {
		return nil, err
	}
	var profiles []Profile
	if err := json.Unmarshal(body, &profiles); err != nil {
		return nil, fmt.Errorf("decode profiles: %w (body=%s)", err, truncateBody(body))
	}
	return profiles, nil
}

// WithdrawalInput describes one payout request.
type WithdrawalInput struct {
	Amount         float64
	SourceCurrency string
	Reference      string
	BankAccount    BankAccount
}

// WithdrawalResult returns the raw artifacts of each step so callers can
// surface transfer and quote ids.
type WithdrawalResult struct {
	Transfer   map[string]any `json:"transfer"`
	Recipient  map[string]any `json:"recipient"`
	Quote      map[string]any `json:"quote"`
	FundResult map[string]any `json:"fund_result,omitempty"`
	Status     string         `json:"status"`
}

// Withdraw runs the payout sequence: pick a profile, create the recipient,
// quote the amount, create the transfer and fund it from balance. A funding
// failure is not fatal; the created transfer may be auto-funded or approved
// manually.
func (c *Client) Withdraw(ctx context.Context, input WithdrawalInput) (*WithdrawalResult, error) {
	if err := input.BankAccount.Validate(); err != nil {
		return nil, err
	}

	profiles, err := c.Profiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("get profiles: %w", err)
	}
	if len(profiles) == 0 {
		return nil, fmt.Errorf("no wise profiles found")
	}
	profileID := pickProfile(profiles)

	recipient, err := c.createRecipient(ctx, profileID, input.BankAccount)
	if err != nil {
		return nil, fmt.Errorf("create recipient: %w", err)
	}

	quote, err := c.createQuote(ctx, profileID, input.SourceCurrency, input.BankAccount.Currency, input.Amount)
	if err != nil {
		return nil, fmt.Errorf("create quote: %w", err)
	}

	transfer, err := c.createTransfer(ctx, recipient, quote, input.Reference)
	if err != nil {
		return nil, fmt.Errorf("create transfer: %w", err)
	}

	result := &WithdrawalResult{
		Transfer:  transfer,
		Recipient: recipient,
		Quote:     quote,
		Status:    "success",
	}

	fundResult, err := c.fundTransfer(ctx, transfer)
	if err != nil {
		if c.log != nil {
			c.log.Warn("transfer funding failed, transfer may require manual approval", "err", err)
		}
		return result, nil
	}
	result.FundResult = fundResult
	return result, nil
}

// pickProfile prefers a business profile; payouts come out of the business
// balance.
func pickProfile(profiles []Profile) int64 {
	for _, p := range profiles {
		if p.Type == "business" {
			return p.ID
		}
	}
	return profiles[0].ID
}

func (c *Client) createRecipient(ctx context.Context, profileID int64, account BankAccount) (map[string]any, error) {
	currency := strings.ToUpper(account.Currency)

	var payload map[string]any
	if currency == "CAD" {
		payload = map[string]any{
			"profile":           profileID,
			"accountHolderName": SanitizeText(account.AccountHolderName),
			"currency":          currency,
			"country":           "CA",
			"type":              "canadian",
			"details": map[string]any{
				"legalType":         "PRIVATE",
				"institutionNumber": account.Institution,
				"transitNumber":     account.Transit,
				"accountNumber":     account.AccountNumber,
				"accountType":       strings.ToUpper(account.Type),
				"address": map[string]any{
					"country":   "CA",
					"state":     "ON",
					"city":      "Toronto",
					"firstLine": "123 Front St",
					"postCode":  "M5J2N1",
				},
			},
		}
	} else {
		payload = map[string]any{
			"profile":           profileID,
			"accountHolderName": SanitizeText(account.AccountHolderName),
			"currency":          currency,
			"country":           "US",
			"type":              "aba",
			"details": map[string]any{
				"legalType":     "PRIVATE",
				"abartn":        account.Transit,
				"accountNumber": account.AccountNumber,
				"accountType":   strings.ToUpper(account.Type),
				"address": map[string]any{
					"country":   "US",
					"state":     "NY",
					"city":      "New York",
					"postCode":  "10001",
					"firstLine": "123 Main St",
				},
			},
		}
	}

	return c.postObject(ctx, "/v1/accounts", payload)
}

func (c *Client) createQuote(ctx context.Context, profileID int64, source, target string, amount float64) (map[string]any, error) {
	payload := map[string]any{
		"profile":      profileID,
		"source":       strings.ToUpper(source),
		"target":       strings.ToUpper(target),
		"rateType":     "FIXED",
		"sourceAmount": amount,
		"type":         "BALANCE_PAYOUT",
	}
	return c.postObject(ctx, "/v1/quotes", payload)
}

func (c *Client) createTransfer(ctx context.Context, recipient, quote map[string]any, reference string) (map[string]any, error) {
	payload := map[string]any{
		"targetAccount":         recipient["id"],
		"quote":                 quote["id"],
		"customerTransactionId": uuid.NewString(),
		"details": map[string]any{
			"reference":       SanitizeText(reference),
			"transferPurpose": "VERIFICATION.TRANSFERS.PURPOSE.PAY.BILLS",
			"sourceOfFunds":   "VERIFICATION.SOURCE_OF_FUNDS.OTHER",
		},
	}
	return c.postObject(ctx, "/v1/transfers", payload)
}

// fundTransfer pays the transfer from balance, falling back to the v3 payments
// endpoint; the two API generations disagree on the path.
func (c *Client) fundTransfer(ctx context.Context, transfer map[string]any) (map[string]any, error) {
	transferID := fmt.Sprintf("%v", transfer["id"])
	payload := map[string]any{"type": "BALANCE"}

	result, err := c.postObject(ctx, "/v1/transfers/"+transferID+"/payments", payload)
	if err == nil {
		return result, nil
	}
	return c.postObject(ctx, "/v3/transfers/"+transferID+"/payments", payload)
}

func (c *Client) postObject(ctx context.Context, path string, payload any) (map[string]any, error) {
	body, err := c.do(ctx, http.MethodPost, path, payload)
	if err != nil {
		return nil, err
	}
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, fmt.Errorf("decode response: %w (body=%s)", err, truncateBody(body))
	}
	return obj, nil
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
		return nil, fmt.Errorf("wise request: %w", err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 300 {
		if c.log != nil {
			c.log.Error("wise request failed", "status", resp.StatusCode, "url", fullURL, "body", truncateBody(rawBody))
		}
		return nil, fmt.Errorf("wise error: status=%d url=%s body=%s", resp.StatusCode, fullURL, truncateBody(rawBody))
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
