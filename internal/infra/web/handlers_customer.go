package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"saas-billing-core/internal/domain"
	"saas-billing-core/internal/domain/model"
	"saas-billing-core/internal/domain/ports/adapter"
	"saas-billing-core/internal/infra/adapters/payment"
	"saas-billing-core/internal/usecase"
)

// The customer surface sits behind the platform's API gateway, which owns end
// user authentication and forwards the verified identity in X-User-Id. An
// empty header is a deployment error, not an anonymous user.
const headerUserID = "X-User-Id"

type userIDKey struct{}

func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid := r.Header.Get(headerUserID)
		if uid == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey{}, uid)))
	})
}

func userID(r *http.Request) string {
	uid, _ := r.Context().Value(userIDKey{}).(string)
	return uid
}

// ---- Response shapes ----

type paymentResponse struct {
	ID        string `json:"id"`
	OrderID   string `json:"order_id"`
	Amount    int64  `json:"amount"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

func toPaymentResponse(p *model.Payment) *paymentResponse {
	if p == nil {
		return nil
	}
	return &paymentResponse{
		ID:        p.ID,
		OrderID:   p.OrderID,
		Amount:    p.Amount,
		Status:    string(p.Status),
		CreatedAt: p.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type subscriptionResponse struct {
	ID                 string `json:"id"`
	PlanID             string `json:"plan_id"`
	BillingCycle       string `json:"billing_cycle"`
	Status             string `json:"status"`
	CurrentPeriodStart string `json:"current_period_start"`
	CurrentPeriodEnd   string `json:"current_period_end"`
	CancelAtPeriodEnd  bool   `json:"cancel_at_period_end"`
}

func toSubscriptionResponse(s *model.Subscription) *subscriptionResponse {
	return &subscriptionResponse{
		ID:                 s.ID,
		PlanID:             s.PlanID,
		BillingCycle:       string(s.BillingCycle),
		Status:             string(s.Status),
		CurrentPeriodStart: s.CurrentPeriodStart.UTC().Format(time.RFC3339),
		CurrentPeriodEnd:   s.CurrentPeriodEnd.UTC().Format(time.RFC3339),
		CancelAtPeriodEnd:  s.CancelAtPeriodEnd,
	}
}

type paymentMethodResponse struct {
	ID          string `json:"id"`
	CardCompany string `json:"card_company"`
	CardNumber  string `json:"card_number"`
	CardType    string `json:"card_type"`
	IsDefault   bool   `json:"is_default"`
}

// customerError maps domain errors onto HTTP statuses without leaking
// internals.
func (s *Server) customerError(w http.ResponseWriter, r *http.Request, err error) {
	var gwErr *adapter.GatewayError
	switch {
	case errors.As(err, &gwErr):
		// The provider made a decision; the side table turns its code into
		// wording safe to show, the raw message stays in the log.
		s.log.Warn().
			Str("gateway_code", gwErr.Code).
			Str("path", r.URL.Path).
			Bool("decline", payment.IsDeclineCode(gwErr.Code)).
			Msg("gateway rejected customer request")
		http.Error(w, payment.UserMessage(err), http.StatusPaymentRequired)
	case errors.Is(err, domain.ErrInvalidArgument):
		http.Error(w, "Invalid request", http.StatusBadRequest)
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrNotOwner):
		// Not-owner presents as not-found so resource ids cannot be probed.
		http.NotFound(w, r)
	case errors.Is(err, domain.ErrActiveSubscriptionExists),
		errors.Is(err, domain.ErrSamePlan),
		errors.Is(err, domain.ErrBillingKeyInUse),
		errors.Is(err, domain.ErrRefundRequestImmutable),
		errors.Is(err, domain.ErrPaymentNotRefundable):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrRefundAmountExceeded),
		errors.Is(err, domain.ErrRefundWindowExpired),
		errors.Is(err, domain.ErrAmountMismatch):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("customer request failed")
		http.Error(w, "Request failed", http.StatusInternalServerError)
	}
}

// ---- Subscriptions ----

type subscriptionPrepareRequest struct {
	PlanID string `json:"plan_id"`
	Cycle  string `json:"cycle"`
}

func (s *Server) handleSubscriptionPrepare(w http.ResponseWriter, r *http.Request) {
	var req subscriptionPrepareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	pending, err := s.subs.PrepareSubscription(r.Context(), userID(r), req.PlanID, model.BillingCycle(req.Cycle))
	if err != nil {
		s.customerError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, toPaymentResponse(pending))
}

type subscriptionConfirmRequest struct {
	AuthKey     string `json:"auth_key"`
	CustomerKey string `json:"customer_key"`
	OrderID     string `json:"order_id"`
	PlanID      string `json:"plan_id"`
	Cycle       string `json:"cycle"`
}

func (s *Server) handleSubscriptionConfirm(w http.ResponseWriter, r *http.Request) {
	var req subscriptionConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	sub, err := s.subs.ConfirmSubscription(r.Context(), userID(r), usecase.ConfirmSubscriptionInput{
		AuthKey:     req.AuthKey,
		CustomerKey: req.CustomerKey,
		OrderID:     req.OrderID,
		PlanID:      req.PlanID,
		Cycle:       model.BillingCycle(req.Cycle),
	})
	if err != nil {
		s.customerError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, toSubscriptionResponse(sub))
}

type subscriptionCancelRequest struct {
	AtPeriodEnd bool `json:"at_period_end"`
}

func (s *Server) handleSubscriptionCancel(w http.ResponseWriter, r *http.Request) {
	var req subscriptionCancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.subs.CancelSubscription(r.Context(), userID(r), req.AtPeriodEnd); err != nil {
		s.customerError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- Plan changes ----

type planChangeRequest struct {
	NewPlanID string `json:"new_plan_id"`
	NewCycle  string `json:"new_cycle"`
	OrderID   string `json:"order_id"`
}

func (s *Server) handlePlanChangePrepare(w http.ResponseWriter, r *http.Request) {
	var req planChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	quote, err := s.planChanges.PreparePlanChange(r.Context(), userID(r), req.NewPlanID, model.BillingCycle(req.NewCycle))
	if err != nil {
		s.customerError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, struct {
		Kind          string           `json:"kind"`
		Amount        int64            `json:"amount"`
		EffectiveDate string           `json:"effective_date"`
		Payment       *paymentResponse `json:"payment,omitempty"`
	}{
		Kind:          string(quote.Proration.Kind),
		Amount:        quote.Proration.Amount,
		EffectiveDate: quote.Proration.EffectiveDate.UTC().Format(time.RFC3339),
		Payment:       toPaymentResponse(quote.Payment),
	})
}

func (s *Server) handlePlanChangeConfirm(w http.ResponseWriter, r *http.Request) {
	var req planChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	err := s.planChanges.ConfirmPlanChange(r.Context(), userID(r), usecase.ConfirmPlanChangeInput{
		NewPlanID: req.NewPlanID,
		NewCycle:  model.BillingCycle(req.NewCycle),
		OrderID:   req.OrderID,
	})
	if err != nil {
		s.customerError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePlanChangeCancelScheduled(w http.ResponseWriter, r *http.Request) {
	if err := s.planChanges.CancelScheduledChange(r.Context(), userID(r)); err != nil {
		s.customerError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- Refunds ----

type refundRequestBody struct {
	PaymentID string `json:"payment_id"`
	Amount    *int64 `json:"amount"`
	Type      string `json:"type"`
	Reason    string `json:"reason"`
}

func (s *Server) handleRefund(w http.ResponseWriter, r *http.Request) {
	var req refundRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	result, err := s.refunds.RequestRefund(r.Context(), userID(r), req.PaymentID, req.Amount, req.Reason)
	if err != nil {
		s.customerError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleRefundRequestCreate(w http.ResponseWriter, r *http.Request) {
	var req refundRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	var amount int64
	if req.Amount != nil {
		amount = *req.Amount
	}
	created, err := s.refunds.CreateRefundRequest(r.Context(), userID(r), req.PaymentID, amount, model.RefundType(req.Type), req.Reason)
	if err != nil {
		s.customerError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, struct {
		ID              string `json:"id"`
		PaymentID       string `json:"payment_id"`
		RequestedAmount int64  `json:"requested_amount"`
		Type            string `json:"type"`
		Status          string `json:"status"`
	}{
		ID:              created.ID,
		PaymentID:       created.PaymentID,
		RequestedAmount: created.RequestedAmount,
		Type:            string(created.Type),
		Status:          string(created.Status),
	})
}

func (s *Server) handleRefundRequestCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.refunds.CancelRefundRequest(r.Context(), userID(r), chi.URLParam(r, "id")); err != nil {
		s.customerError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- Payment methods ----

func (s *Server) handlePaymentMethodList(w http.ResponseWriter, r *http.Request) {
	keys, err := s.billingKeys.ListPaymentMethods(r.Context(), userID(r))
	if err != nil {
		s.customerError(w, r, err)
		return
	}
	out := make([]*paymentMethodResponse, 0, len(keys))
	for _, k := range keys {
		out = append(out, &paymentMethodResponse{
			ID:          k.ID,
			CardCompany: k.CardCompany,
			CardNumber:  k.CardNumber,
			CardType:    k.CardType,
			IsDefault:   k.IsDefault,
		})
	}
	respondJSON(w, http.StatusOK, struct {
		Data []*paymentMethodResponse `json:"data"`
	}{Data: out})
}

func (s *Server) handlePaymentMethodSetDefault(w http.ResponseWriter, r *http.Request) {
	if err := s.billingKeys.SetDefaultPaymentMethod(r.Context(), userID(r), chi.URLParam(r, "id")); err != nil {
		s.customerError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePaymentMethodDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.billingKeys.DeletePaymentMethod(r.Context(), userID(r), chi.URLParam(r, "id")); err != nil {
		s.customerError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
