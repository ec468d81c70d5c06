package web

import (
	"errors"
	"io"
	"net/http"

	"saas-billing-core/internal/domain"
	"saas-billing-core/internal/infra/metrics"
	"saas-billing-core/internal/usecase"
)

const (
	headerTransmissionID = "toss-webhook-transmission-id"
	headerSignature      = "toss-webhook-signature"

	maxWebhookBody = 1 << 20
)

// handleTossWebhook verifies the signature, then hands the raw body to the
// webhook use case. Response codes drive the provider's redelivery: 2xx
// acknowledges, 5xx asks for a retry. Business rejections (amount mismatch,
// unknown order) are acknowledged so a poisoned event cannot retry forever.
func (s *Server) handleTossWebhook(w http.ResponseWriter, r *http.Request) {
	rawBody, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "read failed", http.StatusBadRequest)
		return
	}

	if !VerifySignature(rawBody, r.Header.Get(headerSignature), []byte(s.cfg.Payment.Toss.WebhookSecret)) {
		metrics.IncWebhookSignatureFailure()
		s.log.Warn().Str("remote", r.RemoteAddr).Msg("SECURITY: webhook signature verification failed")
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	ctx := r.Context()
	transmissionID := r.Header.Get(headerTransmissionID)

	if s.cache != nil && transmissionID != "" {
		seen, err := s.cache.Seen(ctx, transmissionID)
		if err != nil {
			s.log.Warn().Err(err).Msg("webhook cache lookup failed; falling through to log")
		} else if seen {
			respondJSON(w, http.StatusOK, map[string]string{"result": string(usecase.WebhookDuplicate)})
			return
		}
	}

	outcome, err := s.webhooks.Process(ctx, rawBody, transmissionID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidArgument):
			http.Error(w, "malformed payload", http.StatusBadRequest)
		case usecase.IsRetryableWebhookError(err):
			s.log.Error().Err(err).Msg("webhook processing failed; requesting redelivery")
			http.Error(w, "temporary failure", http.StatusInternalServerError)
		default:
			// Acknowledged but not applied. The failure is recorded in the
			// webhook log for investigation.
			s.log.Error().Err(err).Msg("webhook rejected")
			respondJSON(w, http.StatusOK, map[string]string{"result": "rejected"})
		}
		return
	}

	if s.cache != nil && transmissionID != "" {
		if err := s.cache.Mark(ctx, transmissionID); err != nil {
			s.log.Warn().Err(err).Msg("webhook cache mark failed")
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"result": string(outcome)})
}
