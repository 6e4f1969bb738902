package server

import (
	"encoding/json"
	"net/http"

	"github.com/roamjet/backend/internal/apierr"
	"github.com/roamjet/backend/internal/service"
)

func (s *Server) handleCreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	userID, email := userIdentity(r)
	if userID == "" {
		s.writeError(w, apierr.Unauthenticated("authentication required"))
		return
	}
	var input service.PaymentIntentInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.writeError(w, apierr.InvalidArgument("invalid json body"))
		return
	}
	result, err := s.payments.CreatePaymentIntent(r.Context(), userID, email, input)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	userID, email := userIdentity(r)
	if userID == "" {
		s.writeError(w, apierr.Unauthenticated("authentication required"))
		return
	}
	var input service.CheckoutInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.writeError(w, apierr.InvalidArgument("invalid json body"))
		return
	}
	result, err := s.payments.CreateCheckoutSession(r.Context(), userID, email, input)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCreatePaymentOrder(w http.ResponseWriter, r *http.Request) {
	userID, email := userIdentity(r)
	if userID == "" {
		s.writeError(w, apierr.Unauthenticated("authentication required"))
		return
	}
	var req struct {
		PlanSlug string `json:"planSlug"`
		Mode     string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, apierr.InvalidArgument("invalid json body"))
		return
	}
	result, err := s.payments.CreatePaymentOrder(r.Context(), userID, email, req.PlanSlug, req.Mode)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleRetrieveSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"sessionId"`
		Mode      string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, apierr.InvalidArgument("invalid json body"))
		return
	}
	result, err := s.payments.RetrieveSession(r.Context(), req.SessionID, req.Mode)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCreatePortalSession(w http.ResponseWriter, r *http.Request) {
	userID, email := userIdentity(r)
	if userID == "" {
		s.writeError(w, apierr.Unauthenticated("authentication required"))
		return
	}
	var req struct {
		Mode string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, apierr.InvalidArgument("invalid json body"))
		return
	}
	result, err := s.payments.CreatePortalSession(r.Context(), userID, email, req.Mode)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCheckSubscriptionStatus(w http.ResponseWriter, r *http.Request) {
	userID, email := userIdentity(r)
	if userID == "" {
		s.writeError(w, apierr.Unauthenticated("authentication required"))
		return
	}
	var req struct {
		Mode string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, apierr.InvalidArgument("invalid json body"))
		return
	}
	result, err := s.payments.CheckSubscriptionStatus(r.Context(), userID, email, req.Mode)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}
