package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/roamjet/backend/internal/apierr"
	"github.com/roamjet/backend/internal/models"
	"github.com/roamjet/backend/internal/service"
	"github.com/roamjet/backend/internal/wise"
)

// Server exposes the REST API, the callable function endpoint and the
// payment/payout endpoints.
type Server struct {
	addr          string
	log           *slog.Logger
	clients       *service.ClientService
	catalog       *service.CatalogService
	esims         *service.EsimService
	registrations *service.RegistrationService
	payments      *service.StripeService
	wise          *wise.Client
	router        *chi.Mux
	callables     map[string]callable
}

func NewServer(addr string, log *slog.Logger, clients *service.ClientService, catalog *service.CatalogService, esims *service.EsimService, registrations *service.RegistrationService, payments *service.StripeService, wiseClient *wise.Client) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	s := &Server{
		addr:          addr,
		log:           log,
		clients:       clients,
		catalog:       catalog,
		esims:         esims,
		registrations: registrations,
		payments:      payments,
		wise:          wiseClient,
		router:        r,
	}
	s.callables = s.registerCallables()

	r.Get("/", s.handleRoot)
	r.Get("/ok", s.handleOK)
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/network-info", s.handleNetworkInfo)
		r.Get("/ip-check", s.handleNetworkInfo)
		r.Route("/clients", func(r chi.Router) {
			r.Post("/", s.handleRegisterClient)
			r.Get("/", s.handleListClients)
			r.Get("/{id}", s.handleGetClient)
			r.Put("/{id}/status", s.handleUpdateClientStatus)
			r.Delete("/{id}", s.handleDeleteClient)
		})
		r.Get("/analytics", s.handleAnalytics)
		r.Post("/cleanup-duplicates", s.handleCleanupDuplicates)
	})
	r.Post("/call/{name}", s.handleCallable)

	r.Post("/create-payment-intent", s.handleCreatePaymentIntent)
	r.Post("/create-checkout-session", s.handleCreateCheckoutSession)
	r.Post("/create-payment-order", s.handleCreatePaymentOrder)
	r.Post("/retrieve-session", s.handleRetrieveSession)
	r.Post("/create-customer-portal-session", s.handleCreatePortalSession)
	r.Post("/check-subscription-status", s.handleCheckSubscriptionStatus)

	r.Get("/wise/auth", s.handleWiseAuth)
	r.Post("/wise/withdrawal", s.handleWiseWithdrawal)

	return s
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("server shutdown error", "err", err)
		}
	}()

	s.log.Info("api listening", "addr", s.addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}

func (s *Server) Handler() http.Handler { return s.router }

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-User-ID, X-User-Email")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"service": "roamjet-backend",
		"status":  "ok",
	})
}

func (s *Server) handleOK(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleNetworkInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.clients.NetworkInfo(r.Context(), callerIP(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleRegisterClient(w http.ResponseWriter, r *http.Request) {
	var payload models.ProxyClient
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, apierr.InvalidArgument("invalid json body"))
		return
	}
	client, err := s.clients.Register(r.Context(), payload, callerIP(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true, "client": client})
}

func (s *Server) handleListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := s.clients.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"clients": clients, "count": len(clients)})
}

func (s *Server) handleGetClient(w http.ResponseWriter, r *http.Request) {
	client, err := s.clients.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, client)
}

func (s *Server) handleUpdateClientStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Online bool `json:"online"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, apierr.InvalidArgument("invalid json body"))
		return
	}
	if err := s.clients.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req.Online); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleDeleteClient(w http.ResponseWriter, r *http.Request) {
	if err := s.clients.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	analytics, err := s.clients.Analytics(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, analytics)
}

func (s *Server) handleCleanupDuplicates(w http.ResponseWriter, r *http.Request) {
	removed, err := s.clients.CleanupDuplicates(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true, "duplicates_removed": removed})
}

func (s *Server) handleWiseAuth(w http.ResponseWriter, r *http.Request) {
	if s.wise == nil {
		s.writeError(w, apierr.FailedPrecondition("wise is not configured"))
		return
	}
	profiles, err := s.wise.Profiles(r.Context())
	if err != nil {
		s.writeError(w, apierr.Internal("wise auth check failed", err))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"connected": true, "profiles": len(profiles)})
}

func (s *Server) handleWiseWithdrawal(w http.ResponseWriter, r *http.Request) {
	if s.wise == nil {
		s.writeError(w, apierr.FailedPrecondition("wise is not configured"))
		return
	}
	var req struct {
		Amount         float64          `json:"amount"`
		SourceCurrency string           `json:"sourceCurrency"`
		Reference      string           `json:"reference"`
		BankAccount    wise.BankAccount `json:"bankAccount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, apierr.InvalidArgument("invalid json body"))
		return
	}
	if req.Amount <= 0 {
		s.writeError(w, apierr.InvalidArgument("amount must be positive"))
		return
	}
	if err := req.BankAccount.Validate(); err != nil {
		s.writeError(w, apierr.InvalidArgument(err.Error()))
		return
	}
	result, err := s.wise.Withdraw(r.Context(), wise.WithdrawalInput{
		Amount:         req.Amount,
		SourceCurrency: req.SourceCurrency,
		Reference:      req.Reference,
		BankAccount:    req.BankAccount,
	})
	if err != nil {
		s.writeError(w, apierr.Internal("withdrawal failed", err))
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// callerIP returns the request's remote address with the port stripped.
// RealIP middleware has already resolved proxy headers into RemoteAddr.
func callerIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func userIdentity(r *http.Request) (userID, email string) {
	return r.Header.Get("X-User-ID"), r.Header.Get("X-User-Email")
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	apiErr := apierr.From(err)
	if apiErr.Code == apierr.CodeInternal {
		s.log.Error("request failed", "err", err)
	}
	s.writeJSON(w, apierr.HTTPStatus(apiErr.Code), map[string]any{
		"error": map[string]string{
			"code":    string(apiErr.Code),
			"message": apiErr.Message,
		},
	})
}
