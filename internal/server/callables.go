package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/roamjet/backend/internal/apierr"
	"github.com/roamjet/backend/internal/service"
)

// caller is the gateway-verified identity attached to a callable invocation.
type caller struct {
	UserID string
	Email  string
}

type callable struct {
	requireAuth bool
	handle      func(ctx context.Context, c caller, data json.RawMessage) (any, error)
}

// handleCallable dispatches POST /call/{name}. Requests carry a {"data": ...}
// envelope; responses come back as {"result": ...}.
func (s *Server) handleCallable(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	fn, ok := s.callables[name]
	if !ok {
		s.writeError(w, apierr.NotFound("unknown function: "+name))
		return
	}

	userID, email := userIdentity(r)
	if fn.requireAuth && userID == "" {
		s.writeError(w, apierr.Unauthenticated("authentication required"))
		return
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, apierr.InvalidArgument("unreadable request body"))
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &envelope); err != nil {
			s.writeError(w, apierr.InvalidArgument("invalid json body"))
			return
		}
	}

	result, err := fn.handle(r.Context(), caller{UserID: userID, Email: email}, envelope.Data)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"result": result})
}

func decodePayload[T any](data json.RawMessage) (T, error) {
	var payload T
	if len(data) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return payload, apierr.InvalidArgument("invalid request data")
	}
	return payload, nil
}

func (s *Server) registerCallables() map[string]callable {
	return map[string]callable{
		"create_customer": {requireAuth: true, handle: func(ctx context.Context, c caller, data json.RawMessage) (any, error) {
			req, err := decodePayload[struct {
				Email string `json:"email"`
				Name  string `json:"name"`
				Mode  string `json:"mode"`
			}](data)
			if err != nil {
				return nil, err
			}
			email := req.Email
			if email == "" {
				email = c.Email
			}
			return s.payments.CreateCustomer(ctx, c.UserID, email, req.Name, req.Mode)
		}},
		"create_setup_intent": {requireAuth: true, handle: func(ctx context.Context, c caller, data json.RawMessage) (any, error) {
			req, err := decodePayload[struct {
				Mode string `json:"mode"`
			}](data)
			if err != nil {
				return nil, err
			}
			return s.payments.CreateSetupIntent(ctx, c.UserID, c.Email, req.Mode)
		}},
		"list_payment_methods": {requireAuth: true, handle: func(ctx context.Context, c caller, data json.RawMessage) (any, error) {
			req, err := decodePayload[struct {
				Mode string `json:"mode"`
			}](data)
			if err != nil {
				return nil, err
			}
			methods, err := s.payments.ListPaymentMethods(ctx, c.UserID, c.Email, req.Mode)
			if err != nil {
				return nil, err
			}
			return map[string]any{"paymentMethods": methods}, nil
		}},
		"create_payment_intent": {requireAuth: true, handle: func(ctx context.Context, c caller, data json.RawMessage) (any, error) {
			input, err := decodePayload[service.PaymentIntentInput](data)
			if err != nil {
				return nil, err
			}
			return s.payments.CreatePaymentIntent(ctx, c.UserID, c.Email, input)
		}},
		"delete_payment_method": {requireAuth: true, handle: func(ctx context.Context, c caller, data json.RawMessage) (any, error) {
			req, err := decodePayload[struct {
				PaymentMethodID string `json:"paymentMethodId"`
				Mode            string `json:"mode"`
			}](data)
			if err != nil {
				return nil, err
			}
			if err := s.payments.DeletePaymentMethod(ctx, c.UserID, c.Email, req.Mode, req.PaymentMethodID); err != nil {
				return nil, err
			}
			return map[string]any{"success": true}, nil
		}},
		"set_default_payment_method": {requireAuth: true, handle: func(ctx context.Context, c caller, data json.RawMessage) (any, error) {
			req, err := decodePayload[struct {
				PaymentMethodID string `json:"paymentMethodId"`
				Mode            string `json:"mode"`
			}](data)
			if err != nil {
				return nil, err
			}
			if err := s.payments.SetDefaultPaymentMethod(ctx, c.UserID, c.Email, req.Mode, req.PaymentMethodID); err != nil {
				return nil, err
			}
			return map[string]any{"success": true}, nil
		}},
		"create_order": {requireAuth: true, handle: func(ctx context.Context, c caller, data json.RawMessage) (any, error) {
			req, err := decodePayload[struct {
				PlanID   string `json:"plan_id"`
				PlanSlug string `json:"planSlug"`
			}](data)
			if err != nil {
				return nil, err
			}
			slug := req.PlanID
			if slug == "" {
				slug = req.PlanSlug
			}
			return s.esims.CreateOrder(ctx, c.UserID, slug)
		}},
		"process_wallet_payment": {requireAuth: true, handle: func(ctx context.Context, c caller, data json.RawMessage) (any, error) {
			req, err := decodePayload[struct {
				OrderID string  `json:"order_id"`
				Amount  float64 `json:"amount"`
			}](data)
			if err != nil {
				return nil, err
			}
			return s.esims.ProcessWalletPayment(ctx, c.UserID, req.OrderID, req.Amount)
		}},
		"fetch_plans": {handle: func(ctx context.Context, c caller, data json.RawMessage) (any, error) {
			plans, err := s.catalog.FetchPlans(ctx)
			if err != nil {
				return nil, apierr.Internal("fetch plans", err)
			}
			return map[string]any{"plans": plans, "count": len(plans)}, nil
		}},
		"get_esim_qr_code": {requireAuth: true, handle: func(ctx context.Context, c caller, data json.RawMessage) (any, error) {
			req, err := decodePayload[struct {
				EsimID string `json:"esim_id"`
			}](data)
			if err != nil {
				return nil, err
			}
			qr, err := s.esims.GetEsimQRCode(ctx, req.EsimID)
			if err != nil {
				return nil, err
			}
			return map[string]any{"qrCode": qr}, nil
		}},
		"create_airalo_order": {requireAuth: true, handle: func(ctx context.Context, c caller, data json.RawMessage) (any, error) {
			req, err := decodePayload[struct {
				PackageSlug   string `json:"package_slug"`
				CustomerEmail string `json:"customer_email"`
				CustomerName  string `json:"customer_name"`
			}](data)
			if err != nil {
				return nil, err
			}
			email := req.CustomerEmail
			if email == "" {
				email = c.Email
			}
			return s.esims.CreateAiraloOrder(ctx, req.PackageSlug, email, req.CustomerName)
		}},
		"get_active_esims": {requireAuth: true, handle: func(ctx context.Context, c caller, data json.RawMessage) (any, error) {
			esims, err := s.esims.GetActiveEsims(ctx, c.UserID)
			if err != nil {
				return nil, err
			}
			return map[string]any{"esims": esims, "count": len(esims)}, nil
		}},
		"get_expired_esims": {requireAuth: true, handle: func(ctx context.Context, c caller, data json.RawMessage) (any, error) {
			esims, err := s.esims.GetExpiredEsims(ctx, c.UserID)
			if err != nil {
				return nil, err
			}
			return map[string]any{"esims": esims, "count": len(esims)}, nil
		}},
		"get_wallet_transactions": {requireAuth: true, handle: func(ctx context.Context, c caller, data json.RawMessage) (any, error) {
			txs, err := s.esims.ListTransactions(ctx, c.UserID)
			if err != nil {
				return nil, err
			}
			return map[string]any{"transactions": txs, "count": len(txs)}, nil
		}},
		"check_esim_capacity": {requireAuth: true, handle: func(ctx context.Context, c caller, data json.RawMessage) (any, error) {
			req, err := decodePayload[struct {
				EsimID string `json:"esim_id"`
			}](data)
			if err != nil {
				return nil, err
			}
			return s.esims.CheckEsimCapacity(ctx, c.UserID, req.EsimID)
		}},
		"sync_countries_from_dataplans": {handle: func(ctx context.Context, c caller, data json.RawMessage) (any, error) {
			return s.catalog.SyncCountriesFromDataPlans(ctx)
		}},
		"sync_all_data_from_dataplans": {handle: func(ctx context.Context, c caller, data json.RawMessage) (any, error) {
			return s.catalog.SyncAllFromDataPlans(ctx)
		}},
		"sync_countries_from_airalo": {handle: func(ctx context.Context, c caller, data json.RawMessage) (any, error) {
			return s.catalog.SyncCountriesFromAiralo(ctx)
		}},
		"sync_all_data_from_airalo": {handle: func(ctx context.Context, c caller, data json.RawMessage) (any, error) {
			return s.catalog.SyncAllFromAiralo(ctx)
		}},
		"save_airalo_client_secret": {handle: func(ctx context.Context, c caller, data json.RawMessage) (any, error) {
			req, err := decodePayload[struct {
				ClientSecret string `json:"client_secret"`
			}](data)
			if err != nil {
				return nil, err
			}
			if err := s.catalog.SaveAiraloClientSecret(ctx, req.ClientSecret); err != nil {
				return nil, apierr.InvalidArgument(err.Error())
			}
			return map[string]any{"success": true}, nil
		}},
		"generate_registration_code": {handle: func(ctx context.Context, c caller, data json.RawMessage) (any, error) {
			req, err := decodePayload[struct {
				Email string `json:"email"`
			}](data)
			if err != nil {
				return nil, err
			}
			return s.registrations.Generate(ctx, req.Email)
		}},
		"validate_registration_code": {handle: func(ctx context.Context, c caller, data json.RawMessage) (any, error) {
			req, err := decodePayload[struct {
				Code  string `json:"code"`
				Email string `json:"email"`
			}](data)
			if err != nil {
				return nil, err
			}
			return s.registrations.Validate(ctx, req.Code, req.Email)
		}},
		"mark_registration_code_used": {requireAuth: true, handle: func(ctx context.Context, c caller, data json.RawMessage) (any, error) {
			req, err := decodePayload[struct {
				Code  string `json:"code"`
				Email string `json:"email"`
			}](data)
			if err != nil {
				return nil, err
			}
			email := req.Email
			if email == "" {
				email = c.Email
			}
			if err := s.registrations.MarkUsed(ctx, c.UserID, req.Code, email); err != nil {
				return nil, err
			}
			return map[string]any{"success": true}, nil
		}},
		"cleanup_expired_codes": {handle: func(ctx context.Context, c caller, data json.RawMessage) (any, error) {
			deleted, err := s.registrations.CleanupExpired(ctx)
			if err != nil {
				return nil, err
			}
			return map[string]any{"deleted": deleted}, nil
		}},
	}
}
