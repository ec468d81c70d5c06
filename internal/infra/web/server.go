package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"saas-billing-core/internal/config"
	"saas-billing-core/internal/domain/ports/repository"
	"saas-billing-core/internal/usecase"
)

// WebhookCache is the optional Redis fast path in front of the webhook log.
// Nil disables it; the durable log stays authoritative either way.
type WebhookCache interface {
	Seen(ctx context.Context, transmissionID string) (bool, error)
	Mark(ctx context.Context, transmissionID string) error
}

type Server struct {
	cfg         *config.Config
	webhooks    usecase.WebhookUseCase
	refunds     usecase.RefundUseCase
	subs        usecase.SubscriptionUseCase
	planChanges usecase.PlanChangeUseCase
	billingKeys usecase.BillingKeyUseCase
	requests    repository.RefundRequestRepository
	comps       repository.CompensationRepository
	cache       WebhookCache
	auth        *AuthManager
	log         *zerolog.Logger
	server      *http.Server
}

func NewServer(
	cfg *config.Config,
	webhooks usecase.WebhookUseCase,
	refunds usecase.RefundUseCase,
	subs usecase.SubscriptionUseCase,
	planChanges usecase.PlanChangeUseCase,
	billingKeys usecase.BillingKeyUseCase,
	requests repository.RefundRequestRepository,
	comps repository.CompensationRepository,
	cache WebhookCache,
	logger *zerolog.Logger,
) *Server {
	return &Server{
		cfg:         cfg,
		webhooks:    webhooks,
		refunds:     refunds,
		subs:        subs,
		planChanges: planChanges,
		billingKeys: billingKeys,
		requests:    requests,
		comps:       comps,
		cache:       cache,
		auth:        NewAuthManager(cfg.Admin.JWTSecret, cfg.Admin.APIKeys, !cfg.Runtime.Dev, "", 30*time.Minute),
		log:         logger,
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/webhooks/toss", s.handleTossWebhook)

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(requireUser)
			r.Post("/subscriptions/prepare", s.handleSubscriptionPrepare)
			r.Post("/subscriptions/confirm", s.handleSubscriptionConfirm)
			r.Post("/subscriptions/cancel", s.handleSubscriptionCancel)
			r.Post("/plan-changes/prepare", s.handlePlanChangePrepare)
			r.Post("/plan-changes/confirm", s.handlePlanChangeConfirm)
			r.Delete("/plan-changes/scheduled", s.handlePlanChangeCancelScheduled)
			r.Post("/refunds", s.handleRefund)
			r.Post("/refund-requests", s.handleRefundRequestCreate)
			r.Post("/refund-requests/{id}/cancel", s.handleRefundRequestCancel)
			r.Get("/payment-methods", s.handlePaymentMethodList)
			r.Post("/payment-methods/{id}/default", s.handlePaymentMethodSetDefault)
			r.Delete("/payment-methods/{id}", s.handlePaymentMethodDelete)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.auth.RequireAdmin)
			r.Get("/refund-requests", s.handleRefundRequestList)
			r.Post("/refund-requests/{id}/approve", s.handleRefundRequestApprove)
			r.Post("/refund-requests/{id}/reject", s.handleRefundRequestReject)
			r.Get("/compensations", s.handleCompensationList)
			r.Post("/compensations/{id}/resolve", s.handleCompensationResolve)
		})
	})

	return r
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:      s.Routes(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}
	s.log.Info().Int("port", s.cfg.Server.Port).Msg("http server listening")
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "active",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
