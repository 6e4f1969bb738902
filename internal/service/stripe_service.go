package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"

	"github.com/roamjet/backend/internal/apierr"
	"github.com/roamjet/backend/internal/config"
	"github.com/roamjet/backend/internal/repository"
)

// StripeService handles card payments, checkout sessions and subscriptions.
// Test and live modes use separate API clients and separate stored customer
// ids; a request may override the configured default mode per call.
type StripeService struct {
	cfg     config.Config
	log     *slog.Logger
	users   *repository.UserRepository
	catalog *repository.CatalogRepository

	apis map[string]*client.API
}

func NewStripeService(cfg config.Config, log *slog.Logger, users *repository.UserRepository, catalog *repository.CatalogRepository) *StripeService {
	apis := map[string]*client.API{}
	for _, mode := range []string{"test", "live"} {
		key := cfg.StripeSecretKey(mode)
		if key == "" {
			continue
		}
		api := &client.API{}
		api.Init(key, nil)
		apis[mode] = api
	}
	return &StripeService{cfg: cfg, log: log, users: users, catalog: catalog, apis: apis}
}

// resolveMode validates a caller-supplied mode, falling back to the
// configured default when empty.
func (s *StripeService) resolveMode(mode string) (string, error) {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == "" {
		mode = s.cfg.StripeMode
	}
	if mode != "test" && mode != "live" {
		return "", apierr.InvalidArgument("mode must be test or live")
	}
	return mode, nil
}

func (s *StripeService) api(mode string) (*client.API, error) {
	api, ok := s.apis[mode]
	if !ok {
		return nil, apierr.FailedPrecondition(fmt.Sprintf("stripe %s mode is not configured", mode))
	}
	return api, nil
}

// ensureCustomer returns the user's Stripe customer id for the mode, creating
// the customer on first use.
func (s *StripeService) ensureCustomer(ctx context.Context, userID, email, name, mode string) (string, error) {
	user, err := s.users.Ensure(ctx, userID, email, name)
	if err != nil {
		return "", apierr.Internal("load user", err)
	}

	customerID := user.StripeCustomerIDTest
	if mode == "live" {
		customerID = user.StripeCustomerIDLive
	}
	if customerID != "" {
		return customerID, nil
	}

	api, err := s.api(mode)
	if err != nil {
		return "", err
	}
	params := &stripe.CustomerParams{}
	if user.Email != "" {
		params.Email = stripe.String(user.Email)
	}
	if user.Name != "" {
		params.Name = stripe.String(user.Name)
	}
	params.AddMetadata("user_id", userID)

	customer, err := api.Customers.New(params)
	if err != nil {
		return "", apierr.Internal("create stripe customer", err)
	}
	if err := s.users.SetStripeCustomerID(ctx, userID, mode, customer.ID); err != nil {
		return "", apierr.Internal("store stripe customer id", err)
	}
	s.log.Info("stripe customer created", "user_id", userID, "mode", mode, "customer_id", customer.ID)
	return customer.ID, nil
}

type CustomerResult struct {
	CustomerID string `json:"customerId"`
	Mode       string `json:"mode"`
}

// CreateCustomer ensures a Stripe customer exists for the user and mode.
// Idempotent per user and mode.
func (s *StripeService) CreateCustomer(ctx context.Context, userID, email, name, mode string) (*CustomerResult, error) {
	mode, err := s.resolveMode(mode)
	if err != nil {
		return nil, err
	}
	customerID, err := s.ensureCustomer(ctx, userID, email, name, mode)
	if err != nil {
		return nil, err
	}
	return &CustomerResult{CustomerID: customerID, Mode: mode}, nil
}

type SetupIntentResult struct {
	ClientSecret string `json:"clientSecret"`
	CustomerID   string `json:"customerId"`
}

// CreateSetupIntent prepares saving a card for later off-session charges.
func (s *StripeService) CreateSetupIntent(ctx context.Context, userID, email, mode string) (*SetupIntentResult, error) {
	mode, err := s.resolveMode(mode)
	if err != nil {
		return nil, err
	}
	customerID, err := s.ensureCustomer(ctx, userID, email, "", mode)
	if err != nil {
		return nil, err
	}
	api, err := s.api(mode)
	if err != nil {
		return nil, err
	}

	intent, err := api.SetupIntents.New(&stripe.SetupIntentParams{
		Customer:           stripe.String(customerID),
		Usage:              stripe.String("off_session"),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
	})
	if err != nil {
		return nil, apierr.Internal("create setup intent", err)
	}
	return &SetupIntentResult{ClientSecret: intent.ClientSecret, CustomerID: customerID}, nil
}

type PaymentMethodInfo struct {
	ID        string `json:"id"`
	Brand     string `json:"brand"`
	Last4     string `json:"last4"`
	ExpMonth  int64  `json:"expMonth"`
	ExpYear   int64  `json:"expYear"`
	IsDefault bool   `json:"isDefault"`
}

// ListPaymentMethods returns the user's saved cards.
func (s *StripeService) ListPaymentMethods(ctx context.Context, userID, email, mode string) ([]PaymentMethodInfo, error) {
	mode, err := s.resolveMode(mode)
	if err != nil {
		return nil, err
	}
	customerID, err := s.ensureCustomer(ctx, userID, email, "", mode)
	if err != nil {
		return nil, err
	}
	api, err := s.api(mode)
	if err != nil {
		return nil, err
	}

	customer, err := api.Customers.Get(customerID, nil)
	if err != nil {
		return nil, apierr.Internal("load stripe customer", err)
	}
	defaultPM := ""
	if customer.InvoiceSettings != nil && customer.InvoiceSettings.DefaultPaymentMethod != nil {
		defaultPM = customer.InvoiceSettings.DefaultPaymentMethod.ID
	}

	iter := api.PaymentMethods.List(&stripe.PaymentMethodListParams{
		Customer: stripe.String(customerID),
		Type:     stripe.String("card"),
	})

	methods := []PaymentMethodInfo{}
	for iter.Next() {
		pm := iter.PaymentMethod()
		info := PaymentMethodInfo{ID: pm.ID, IsDefault: pm.ID == defaultPM}
		if pm.Card != nil {
			info.Brand = string(pm.Card.Brand)
			info.Last4 = pm.Card.Last4
			info.ExpMonth = pm.Card.ExpMonth
			info.ExpYear = pm.Card.ExpYear
		}
		methods = append(methods, info)
	}
	if err := iter.Err(); err != nil {
		return nil, apierr.Internal("list payment methods", err)
	}
	return methods, nil
}

// DeletePaymentMethod detaches a saved card. The card must belong to the
// caller's customer.
func (s *StripeService) DeletePaymentMethod(ctx context.Context, userID, email, mode, paymentMethodID string) error {
	if strings.TrimSpace(paymentMethodID) == "" {
		return apierr.InvalidArgument("payment method id is required")
	}
	mode, err := s.resolveMode(mode)
	if err != nil {
		return err
	}
	customerID, err := s.ensureCustomer(ctx, userID, email, "", mode)
	if err != nil {
		return err
	}
	api, err := s.api(mode)
	if err != nil {
		return err
	}

	pm, err := api.PaymentMethods.Get(paymentMethodID, nil)
	if err != nil {
		return apierr.Internal("load payment method", err)
	}
	if pm.Customer == nil || pm.Customer.ID != customerID {
		return apierr.PermissionDenied("payment method does not belong to this user")
	}
	if _, err := api.PaymentMethods.Detach(paymentMethodID, nil); err != nil {
		return apierr.Internal("detach payment method", err)
	}
	return nil
}

// SetDefaultPaymentMethod makes a saved card the default for future charges.
func (s *StripeService) SetDefaultPaymentMethod(ctx context.Context, userID, email, mode, paymentMethodID string) error {
	if strings.TrimSpace(paymentMethodID) == "" {
		return apierr.InvalidArgument("payment method id is required")
	}
	mode, err := s.resolveMode(mode)
	if err != nil {
		return err
	}
	customerID, err := s.ensureCustomer(ctx, userID, email, "", mode)
	if err != nil {
		return err
	}
	api, err := s.api(mode)
	if err != nil {
		return err
	}

	_, err = api.Customers.Update(customerID, &stripe.CustomerParams{
		InvoiceSettings: &stripe.CustomerInvoiceSettingsParams{
			DefaultPaymentMethod: stripe.String(paymentMethodID),
		},
	})
	if err != nil {
		return apierr.Internal("set default payment method", err)
	}
	return nil
}

type PaymentIntentInput struct {
	Amount          float64 `json:"amount"`
	Currency        string  `json:"currency"`
	PaymentMethodID string  `json:"paymentMethodId"`
	Description     string  `json:"description"`
	Mode            string  `json:"mode"`
}

type PaymentIntentResult struct {
	ID           string `json:"id"`
	ClientSecret string `json:"clientSecret"`
	Status       string `json:"status"`
	CustomerID   string `json:"customerId"`
}

// CreatePaymentIntent charges the user. With a saved payment method the
// charge is confirmed off-session immediately; otherwise the intent is
// returned for on-session confirmation in the client.
func (s *StripeService) CreatePaymentIntent(ctx context.Context, userID, email string, input PaymentIntentInput) (*PaymentIntentResult, error) {
	if input.Amount <= 0 {
		return nil, apierr.InvalidArgument("amount must be positive")
	}
	mode, err := s.resolveMode(input.Mode)
	if err != nil {
		return nil, err
	}
	customerID, err := s.ensureCustomer(ctx, userID, email, "", mode)
	if err != nil {
		return nil, err
	}
	api, err := s.api(mode)
	if err != nil {
		return nil, err
	}

	currency := strings.ToLower(input.Currency)
	if currency == "" {
		currency = "usd"
	}
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(toMinorUnits(input.Amount)),
		Currency: stripe.String(currency),
		Customer: stripe.String(customerID),
	}
	if input.Description != "" {
		params.Description = stripe.String(input.Description)
	}
	params.AddMetadata("user_id", userID)

	if input.PaymentMethodID != "" {
		params.PaymentMethod = stripe.String(input.PaymentMethodID)
		params.OffSession = stripe.Bool(true)
		params.Confirm = stripe.Bool(true)
	} else {
		params.AutomaticPaymentMethods = &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		}
	}

	intent, err := api.PaymentIntents.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeAuthenticationRequired {
			return nil, apierr.FailedPrecondition("card requires authentication, complete the payment in the app")
		}
		return nil, apierr.Internal("create payment intent", err)
	}
	return &PaymentIntentResult{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
		Status:       string(intent.Status),
		CustomerID:   customerID,
	}, nil
}

type CheckoutInput struct {
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	ProductName string  `json:"productName"`
	PriceID     string  `json:"priceId"`
	Quantity    int64   `json:"quantity"`
	Subscribe   bool    `json:"subscribe"`
	SuccessURL  string  `json:"successUrl"`
	CancelURL   string  `json:"cancelUrl"`
	Mode        string  `json:"mode"`
}

type CheckoutResult struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

// CreateCheckoutSession builds a hosted checkout page. Subscriptions require
// a price id; one-off payments take an ad-hoc amount and product name.
func (s *StripeService) CreateCheckoutSession(ctx context.Context, userID, email string, input CheckoutInput) (*CheckoutResult, error) {
	mode, err := s.resolveMode(input.Mode)
	if err != nil {
		return nil, err
	}
	customerID, err := s.ensureCustomer(ctx, userID, email, "", mode)
	if err != nil {
		return nil, err
	}
	api, err := s.api(mode)
	if err != nil {
		return nil, err
	}

	quantity := input.Quantity
	if quantity <= 0 {
		quantity = 1
	}
	successURL := input.SuccessURL
	if successURL == "" {
		successURL = s.cfg.CheckoutSuccessURL
	}
	cancelURL := input.CancelURL
	if cancelURL == "" {
		cancelURL = s.cfg.CheckoutCancelURL
	}

	params := &stripe.CheckoutSessionParams{
		Customer:   stripe.String(customerID),
		SuccessURL: stripe.String(successURL),
		CancelURL:  stripe.String(cancelURL),
	}
	params.AddMetadata("user_id", userID)

	if input.Subscribe {
		if input.PriceID == "" {
			return nil, apierr.InvalidArgument("priceId is required for subscriptions")
		}
		params.Mode = stripe.String(string(stripe.CheckoutSessionModeSubscription))
		params.LineItems = []*stripe.CheckoutSessionLineItemParams{{
			Price:    stripe.String(input.PriceID),
			Quantity: stripe.Int64(quantity),
		}}
	} else {
		if input.Amount <= 0 {
			return nil, apierr.InvalidArgument("amount must be positive")
		}
		currency := strings.ToLower(input.Currency)
		if currency == "" {
			currency = "usd"
		}
		name := input.ProductName
		if name == "" {
			name = "RoamJet purchase"
		}
		params.Mode = stripe.String(string(stripe.CheckoutSessionModePayment))
		params.LineItems = []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(currency),
				UnitAmount: stripe.Int64(toMinorUnits(input.Amount)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(name),
				},
			},
			Quantity: stripe.Int64(quantity),
		}}
	}

	session, err := api.CheckoutSessions.New(params)
	if err != nil {
		return nil, apierr.Internal("create checkout session", err)
	}
	return &CheckoutResult{SessionID: session.ID, URL: session.URL}, nil
}

// CreatePaymentOrder opens a checkout session priced from a catalog plan.
func (s *StripeService) CreatePaymentOrder(ctx context.Context, userID, email, planSlug, mode string) (*CheckoutResult, error) {
	if strings.TrimSpace(planSlug) == "" {
		return nil, apierr.InvalidArgument("planSlug is required")
	}
	plan, err := s.catalog.FindPlanBySlug(ctx, planSlug)
	if err != nil {
		return nil, apierr.Internal("look up plan", err)
	}
	if plan == nil {
		return nil, apierr.NotFound("plan not found")
	}

	name := plan.Name
	if plan.Capacity != "" {
		name = fmt.Sprintf("%s (%s)", plan.Name, plan.Capacity)
	}
	return s.CreateCheckoutSession(ctx, userID, email, CheckoutInput{
		Amount:      plan.Price,
		Currency:    "usd",
		ProductName: name,
		Mode:        mode,
	})
}

type SessionStatus struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	PaymentStatus string `json:"paymentStatus"`
	AmountTotal   int64  `json:"amountTotal"`
	Currency      string `json:"currency"`
	CustomerEmail string `json:"customerEmail,omitempty"`
}

// RetrieveSession reports a checkout session's state after redirect.
func (s *StripeService) RetrieveSession(ctx context.Context, sessionID, mode string) (*SessionStatus, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, apierr.InvalidArgument("session id is required")
	}
	mode, err := s.resolveMode(mode)
	if err != nil {
		return nil, err
	}
	api, err := s.api(mode)
	if err != nil {
		return nil, err
	}

	session, err := api.CheckoutSessions.Get(sessionID, nil)
	if err != nil {
		return nil, apierr.Internal("retrieve checkout session", err)
	}
	status := &SessionStatus{
		ID:            session.ID,
		Status:        string(session.Status),
		PaymentStatus: string(session.PaymentStatus),
		AmountTotal:   session.AmountTotal,
		Currency:      string(session.Currency),
	}
	if session.CustomerDetails != nil {
		status.CustomerEmail = session.CustomerDetails.Email
	}
	return status, nil
}

// CreatePortalSession opens the Stripe billing portal for the user.
func (s *StripeService) CreatePortalSession(ctx context.Context, userID, email, mode string) (*CheckoutResult, error) {
	mode, err := s.resolveMode(mode)
	if err != nil {
		return nil, err
	}
	customerID, err := s.ensureCustomer(ctx, userID, email, "", mode)
	if err != nil {
		return nil, err
	}
	api, err := s.api(mode)
	if err != nil {
		return nil, err
	}

	session, err := api.BillingPortalSessions.New(&stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(s.cfg.PortalReturnURL),
	})
	if err != nil {
		return nil, apierr.Internal("create portal session", err)
	}
	return &CheckoutResult{SessionID: session.ID, URL: session.URL}, nil
}

type SubscriptionStatus struct {
	Active           bool   `json:"active"`
	Status           string `json:"status,omitempty"`
	SubscriptionID   string `json:"subscriptionId,omitempty"`
	CurrentPeriodEnd int64  `json:"currentPeriodEnd,omitempty"`
}

// CheckSubscriptionStatus reports whether the user has a live subscription.
// Trialing counts as active.
func (s *StripeService) CheckSubscriptionStatus(ctx context.Context, userID, email, mode string) (*SubscriptionStatus, error) {
	mode, err := s.resolveMode(mode)
	if err != nil {
		return nil, err
	}
	customerID, err := s.ensureCustomer(ctx, userID, email, "", mode)
	if err != nil {
		return nil, err
	}
	api, err := s.api(mode)
	if err != nil {
		return nil, err
	}

	iter := api.Subscriptions.List(&stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String("all"),
	})

	result := &SubscriptionStatus{}
	for iter.Next() {
		sub := iter.Subscription()
		switch sub.Status {
		case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing:
			return &SubscriptionStatus{
				Active:           true,
				Status:           string(sub.Status),
				SubscriptionID:   sub.ID,
				CurrentPeriodEnd: sub.CurrentPeriodEnd,
			}, nil
		}
		if result.Status == "" {
			result.Status = string(sub.Status)
			result.SubscriptionID = sub.ID
		}
	}
	if err := iter.Err(); err != nil {
		return nil, apierr.Internal("list subscriptions", err)
	}
	return result, nil
}

// toMinorUnits converts a dollar amount to cents without drifting on floats
// like 19.99.
func toMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
