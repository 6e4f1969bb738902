package service

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/roamjet/backend/internal/airalo"
	"github.com/roamjet/backend/internal/apierr"
	"github.com/roamjet/backend/internal/config"
	"github.com/roamjet/backend/internal/dataplans"
	"github.com/roamjet/backend/internal/models"
	"github.com/roamjet/backend/internal/repository"
	"github.com/roamjet/backend/internal/storage"
)

const mockEsimHost = "mock.esim.provider.com"

// EsimService issues eSIM orders and settles them against wallet balances.
type EsimService struct {
	cfg      config.Config
	log      *slog.Logger
	orders   *repository.OrderRepository
	users    *repository.UserRepository
	catalog  *repository.CatalogRepository
	configs  *repository.ConfigRepository
	airalo   *airalo.Client
	uploader *storage.Uploader

	newDataPlans func(token string) *dataplans.Client
}

func NewEsimService(cfg config.Config, log *slog.Logger, orders *repository.OrderRepository, users *repository.UserRepository, catalog *repository.CatalogRepository, configs *repository.ConfigRepository, airaloClient *airalo.Client, uploader *storage.Uploader) *EsimService {
	return &EsimService{
		cfg:      cfg,
		log:      log,
		orders:   orders,
		users:    users,
		catalog:  catalog,
		configs:  configs,
		airalo:   airaloClient,
		uploader: uploader,
		newDataPlans: func(token string) *dataplans.Client {
			return dataplans.NewClient(token, cfg.DataPlansBaseURL, cfg.RequestTimeout, log)
		},
	}
}

// OrderResult is the tagged outcome of an order attempt. Provider and IsDemo
// are always set together: a demo result means the real provider path failed
// and the artifacts are placeholders.
type OrderResult struct {
	OrderID          string          `json:"orderId"`
	ProviderOrderID  string          `json:"providerOrderId,omitempty"`
	PlanSlug         string          `json:"planSlug"`
	ICCID            string          `json:"iccid"`
	QRCode           string          `json:"qrCode"`
	ActivationCode   string          `json:"activationCode,omitempty"`
	SMDPAddress      string          `json:"smdpAddress,omitempty"`
	ConfirmationCode string          `json:"confirmationCode,omitempty"`
	ExpiryDate       string          `json:"expiryDate,omitempty"`
	Provider         string          `json:"provider"`
	IsDemo           bool            `json:"isDemo"`
	Note             string          `json:"note,omitempty"`
	Raw              json.RawMessage `json:"raw,omitempty"`
}

// CreateOrder records an initiated order for the plan and submits the
// provider purchase. Any failure on the provider path degrades to a
// clearly-tagged demo result instead of an error.
func (s *EsimService) CreateOrder(ctx context.Context, userID, planSlug string) (*OrderResult, error) {
	if planSlug == "" {
		return nil, apierr.InvalidArgument("plan_id is required")
	}

	plan, err := s.catalog.FindPlanBySlug(ctx, planSlug)
	if err != nil {
		return nil, apierr.Internal("look up plan", err)
	}
	if plan == nil {
		return nil, apierr.NotFound("plan not found")
	}

	order := &models.Order{
		ID:       uuid.NewString(),
		UserID:   userID,
		PlanSlug: plan.Slug,
		Amount:   plan.Price,
		Currency: "USD",
		Status:   models.OrderInitiated,
	}
	if err := s.orders.Create(ctx, order); err != nil {
		return nil, apierr.Internal("create order", err)
	}

	result := s.purchase(ctx, plan.Slug)
	result.OrderID = order.ID
	result.PlanSlug = plan.Slug

	data, err := json.Marshal(result)
	if err == nil {
		if err := s.orders.SetEsimData(ctx, order.ID, string(data)); err != nil {
			s.log.Error("store order esim data", "order_id", order.ID, "err", err)
		}
	}

	return result, nil
}

func (s *EsimService) purchase(ctx context.Context, planSlug string) *OrderResult {
	token, err := s.resolveDataPlansToken(ctx)
	if err != nil {
		s.log.Warn("falling back to demo esim", "plan", planSlug, "err", err)
		return demoOrderResult(err.Error())
	}

	details, err := s.newDataPlans(token).Purchase(ctx, planSlug)
	if err != nil {
		s.log.Warn("falling back to demo esim", "plan", planSlug, "err", err)
		return demoOrderResult(err.Error())
	}

	return &OrderResult{
		ProviderOrderID:  details.OrderID,
		ICCID:            details.ICCID,
		QRCode:           details.QRCode,
		ActivationCode:   details.ActivationCode,
		SMDPAddress:      details.SMDPAddress,
		ConfirmationCode: details.ConfirmationCode,
		ExpiryDate:       details.ExpiryDate,
		Provider:         "dataplans",
		Raw:              details.Raw,
	}
}

func (s *EsimService) resolveDataPlansToken(ctx context.Context) (string, error) {
	stored, err := s.configs.Find(ctx, "dataplans")
	if err != nil {
		return "", err
	}
	if stored != nil && stored.APIToken != "" {
		return stored.APIToken, nil
	}
	if s.cfg.DataPlansAPIToken != "" {
		return s.cfg.DataPlansAPIToken, nil
	}
	return "", fmt.Errorf("no dataplans api token configured")
}

// demoOrderResult fabricates a placeholder eSIM so the purchase flow stays
// available when the provider is down. Callers must check IsDemo.
func demoOrderResult(reason string) *OrderResult {
	iccid := mockICCID(time.Now())
	return &OrderResult{
		ICCID:    iccid,
		QRCode:   fmt.Sprintf("LPA:1$%s$%s", mockEsimHost, iccid),
		Provider: "mock",
		IsDemo:   true,
		Note:     "demo esim issued after provider failure: " + reason,
	}
}

func mockICCID(now time.Time) string {
	return fmt.Sprintf("89010%d", now.UnixNano()/1e6)
}

type WalletPaymentResult struct {
	NewBalance float64 `json:"new_balance"`
	EsimID     string  `json:"esim_id"`
}

// ProcessWalletPayment atomically debits the user's wallet, records a ledger
// entry, completes the order and creates the eSIM record. Validation order:
// order exists, owner matches, order initiated, amount matches the order,
// balance sufficient. The debit always uses the amount stored on the order at
// creation time. The row locks make concurrent payments against the same
// order or balance serialize.
func (s *EsimService) ProcessWalletPayment(ctx context.Context, userID, orderID string, amount float64) (*WalletPaymentResult, error) {
	if orderID == "" {
		return nil, apierr.InvalidArgument("order_id is required")
	}
	if amount <= 0 {
		return nil, apierr.InvalidArgument("amount must be positive")
	}

	// Pre-render the QR image outside the transaction; it talks to S3.
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, apierr.Internal("load order", err)
	}
	if order == nil {
		return nil, apierr.NotFound("order not found")
	}
	artifacts := s.orderArtifacts(order)
	qrImage := s.renderQRImage(ctx, artifacts.QRCode)

	tx, err := s.orders.DB().BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, apierr.Internal("begin transaction", err)
	}
	defer tx.Rollback()

	var ownerID string
	var status string
	var orderAmount float64
	row := tx.QueryRowContext(ctx, `SELECT user_id, status, amount FROM orders WHERE id = ? FOR UPDATE`, orderID)
	if err := row.Scan(&ownerID, &status, &orderAmount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierr.NotFound("order not found")
		}
		return nil, apierr.Internal("lock order", err)
	}
	if ownerID != userID {
		return nil, apierr.PermissionDenied("order belongs to a different user")
	}
	if status != string(models.OrderInitiated) {
		return nil, apierr.FailedPrecondition("order is not in initiated state")
	}
	// The price was fixed when the order was created; the caller's amount is
	// only a confirmation and the stored amount is what gets debited.
	if math.Abs(amount-orderAmount) > 0.005 {
		return nil, apierr.FailedPrecondition("amount does not match order amount")
	}

	var balance float64
	row = tx.QueryRowContext(ctx, `SELECT wallet_balance FROM users WHERE id = ? FOR UPDATE`, userID)
	if err := row.Scan(&balance); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierr.NotFound("user not found")
		}
		return nil, apierr.Internal("lock user", err)
	}
	if balance < orderAmount {
		return nil, apierr.FailedPrecondition("insufficient wallet balance")
	}

	if _, err := tx.ExecContext(ctx, `UPDATE users SET wallet_balance = wallet_balance - ?, updated_at = NOW() WHERE id = ?`, orderAmount, userID); err != nil {
		return nil, apierr.Internal("debit wallet", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO wallet_transactions (user_id, type, amount, order_id, status) VALUES (?, ?, ?, ?, ?)`,
		userID, "esim_purchase", -orderAmount, orderID, "completed"); err != nil {
		return nil, apierr.Internal("record ledger entry", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE orders SET status = ?, updated_at = NOW() WHERE id = ?`, models.OrderCompleted, orderID); err != nil {
		return nil, apierr.Internal("complete order", err)
	}

	esimID := uuid.NewString()
	demo := 0
	if artifacts.IsDemo {
		demo = 1
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO esims (id, user_id, order_id, iccid, qr_code, qr_code_image, activation_code, smdp_address, confirmation_code, provider, is_demo, status, expiry_date)
		 VALUES (?, ?, ?, NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), ?, ?, 'active', ?)`,
		esimID, userID, orderID, artifacts.ICCID, artifacts.QRCode, qrImage, artifacts.ActivationCode, artifacts.SMDPAddress, artifacts.ConfirmationCode, artifacts.Provider, demo, parseExpiry(artifacts.ExpiryDate)); err != nil {
		return nil, apierr.Internal("create esim", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apierr.Internal("commit payment", err)
	}

	s.log.Info("wallet payment processed", "user_id", userID, "order_id", orderID, "amount", orderAmount)
	return &WalletPaymentResult{NewBalance: balance - orderAmount, EsimID: esimID}, nil
}

// orderArtifacts restores the purchase artifacts stored on the order,
// synthesizing an LPA payload when the provider supplied no QR string.
func (s *EsimService) orderArtifacts(order *models.Order) *OrderResult {
	var artifacts OrderResult
	if order.EsimData != "" {
		if err := json.Unmarshal([]byte(order.EsimData), &artifacts); err != nil {
			s.log.Warn("unreadable order esim data", "order_id", order.ID, "err", err)
		}
	}
	if artifacts.Provider == "" {
		artifacts.Provider = "dataplans"
	}
	if artifacts.ICCID == "" {
		artifacts.ICCID = mockICCID(time.Now())
	}
	if artifacts.QRCode == "" {
		artifacts.QRCode = fmt.Sprintf("LPA:1$%s$%s", mockEsimHost, artifacts.ICCID)
	}
	return &artifacts
}

// renderQRImage produces a PNG for the activation payload, hosted on S3 when
// storage is configured and inlined as a data URL otherwise.
func (s *EsimService) renderQRImage(ctx context.Context, payload string) string {
	png, err := qrcode.Encode(payload, qrcode.Medium, 256)
	if err != nil {
		s.log.Warn("render qr image", "err", err)
		return ""
	}
	if s.uploader != nil {
		url, err := s.uploader.Upload(ctx, png, "image/png")
		if err == nil {
			return url
		}
		s.log.Warn("upload qr image", "err", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}

func parseExpiry(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}

// GetEsimQRCode resolves the activation payload for an Airalo eSIM, falling
// back to a synthesized LPA string when the lookup fails.
func (s *EsimService) GetEsimQRCode(ctx context.Context, esimID string) (string, error) {
	if esimID == "" {
		return "", apierr.InvalidArgument("esim_id is required")
	}
	esim, err := s.airalo.GetEsim(ctx, esimID)
	if err == nil {
		for _, field := range []string{"qrcode", "qr_code", "qrCodeString"} {
			if qr, ok := esim[field].(string); ok && qr != "" {
				return qr, nil
			}
		}
	} else {
		s.log.Warn("airalo esim lookup failed, synthesizing lpa string", "esim_id", esimID, "err", err)
	}
	return "LPA:1$airalo.com$" + esimID, nil
}

// CreateAiraloOrder submits an order straight to Airalo.
func (s *EsimService) CreateAiraloOrder(ctx context.Context, packageSlug, customerEmail, customerName string) (map[string]any, error) {
	if packageSlug == "" {
		return nil, apierr.InvalidArgument("package_slug is required")
	}
	if customerEmail == "" {
		return nil, apierr.InvalidArgument("customer_email is required")
	}
	order, err := s.airalo.SubmitOrder(ctx, packageSlug, customerEmail, customerName)
	if err != nil {
		return nil, apierr.Internal("submit airalo order", err)
	}
	return order, nil
}

func (s *EsimService) GetActiveEsims(ctx context.Context, userID string) ([]*models.Esim, error) {
	expired := false
	esims, err := s.orders.ListEsims(ctx, userID, &expired)
	if err != nil {
		return nil, apierr.Internal("list esims", err)
	}
	return esims, nil
}

func (s *EsimService) GetExpiredEsims(ctx context.Context, userID string) ([]*models.Esim, error) {
	expired := true
	esims, err := s.orders.ListEsims(ctx, userID, &expired)
	if err != nil {
		return nil, apierr.Internal("list esims", err)
	}
	return esims, nil
}

type EsimCapacity struct {
	EsimID     string     `json:"esim_id"`
	ICCID      string     `json:"iccid"`
	Status     string     `json:"status"`
	Provider   string     `json:"provider"`
	IsDemo     bool       `json:"is_demo"`
	ExpiryDate *time.Time `json:"expiry_date,omitempty"`
	Expired    bool       `json:"expired"`
}

// CheckEsimCapacity summarizes a stored eSIM for the capacity screen.
func (s *EsimService) CheckEsimCapacity(ctx context.Context, userID, esimID string) (*EsimCapacity, error) {
	if esimID == "" {
		return nil, apierr.InvalidArgument("esim_id is required")
	}
	esim, err := s.orders.FindEsimByID(ctx, esimID)
	if err != nil {
		return nil, apierr.Internal("load esim", err)
	}
	if esim == nil {
		return nil, apierr.NotFound("esim not found")
	}
	if esim.UserID != userID {
		return nil, apierr.PermissionDenied("esim belongs to a different user")
	}
	return &EsimCapacity{
		EsimID:     esim.ID,
		ICCID:      esim.ICCID,
		Status:     esim.Status,
		Provider:   esim.Provider,
		IsDemo:     esim.IsDemo,
		ExpiryDate: esim.ExpiryDate,
		Expired:    esim.ExpiryDate != nil && esim.ExpiryDate.Before(time.Now()),
	}, nil
}

// ListTransactions returns the user's wallet ledger.
func (s *EsimService) ListTransactions(ctx context.Context, userID string) ([]models.WalletTransaction, error) {
	txs, err := s.orders.ListTransactions(ctx, userID)
	if err != nil {
		return nil, apierr.Internal("list transactions", err)
	}
	return txs, nil
}
