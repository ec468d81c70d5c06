package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"saas-billing-core/internal/domain"
	"saas-billing-core/internal/domain/model"
	"saas-billing-core/internal/domain/ports/repository"
)

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func pageParams(r *http.Request) (offset, limit int) {
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return offset, limit
}

// handleRefundRequestList returns refund requests by status, pending by
// default.
func (s *Server) handleRefundRequestList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := model.RefundStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = model.RefundStatusPending
	}
	offset, limit := pageParams(r)

	list, err := s.requests.ListByStatus(ctx, repository.NoTX, status, offset, limit)
	if err != nil {
		s.log.Error().Err(err).Msg("refund request list failed")
		http.Error(w, "Failed to list refund requests", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, struct {
		Data   []*model.RefundRequest `json:"data"`
		Limit  int                    `json:"limit"`
		Offset int                    `json:"offset"`
	}{Data: list, Limit: limit, Offset: offset})
}

type refundDecisionRequest struct {
	AdminNote string `json:"admin_note"`
	Reason    string `json:"reason"`
}

func (s *Server) handleRefundRequestApprove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	var req refundDecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := s.refunds.ApproveRefundRequest(ctx, id, req.AdminNote)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			http.NotFound(w, r)
		case errors.Is(err, domain.ErrRefundRequestImmutable):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			s.log.Error().Err(err).Str("request_id", id).Msg("refund approval failed")
			http.Error(w, "Failed to approve refund request", http.StatusInternalServerError)
		}
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleRefundRequestReject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	var req refundDecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Reason == "" {
		http.Error(w, "Rejection reason is required", http.StatusBadRequest)
		return
	}

	if err := s.refunds.RejectRefundRequest(ctx, id, req.Reason); err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			http.NotFound(w, r)
		case errors.Is(err, domain.ErrRefundRequestImmutable):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			s.log.Error().Err(err).Str("request_id", id).Msg("refund rejection failed")
			http.Error(w, "Failed to reject refund request", http.StatusInternalServerError)
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleCompensationList serves the reconciliation queue. ?manual_only=true
// narrows to records an operator must look at.
func (s *Server) handleCompensationList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	manualOnly := r.URL.Query().Get("manual_only") == "true"
	_, limit := pageParams(r)

	list, err := s.comps.ListPending(ctx, repository.NoTX, manualOnly, limit)
	if err != nil {
		s.log.Error().Err(err).Msg("compensation list failed")
		http.Error(w, "Failed to list compensation records", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, struct {
		Data  []*model.CompensationRecord `json:"data"`
		Limit int                         `json:"limit"`
	}{Data: list, Limit: limit})
}

func (s *Server) handleCompensationResolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	if err := s.comps.MarkProcessed(ctx, repository.NoTX, id, time.Now()); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		s.log.Error().Err(err).Str("record_id", id).Msg("compensation resolve failed")
		http.Error(w, "Failed to resolve compensation record", http.StatusInternalServerError)
		return
	}
	s.log.Info().Str("record_id", id).Msg("compensation record resolved by operator")
	w.WriteHeader(http.StatusNoContent)
}
