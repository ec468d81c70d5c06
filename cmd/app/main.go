// File: cmd/app/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	stdlog "log"

	"saas-billing-core/internal/config"
	"saas-billing-core/internal/domain/ports/adapter"
	alertAdapters "saas-billing-core/internal/infra/adapters/alert"
	payAdapters "saas-billing-core/internal/infra/adapters/payment"
	pg "saas-billing-core/internal/infra/db/postgres"
	"saas-billing-core/internal/infra/logging"
	"saas-billing-core/internal/infra/metrics"
	red "saas-billing-core/internal/infra/redis"
	"saas-billing-core/internal/infra/sched"
	"saas-billing-core/internal/infra/security"
	"saas-billing-core/internal/infra/web"
	"saas-billing-core/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfig()
	if err != nil {
		stdlog.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("developer mode enabled")
	}

	metrics.MustRegister()

	// ---- Postgres ----
	pool := pg.MustConnectPostgres(cfg.Database.URL)
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	locker := red.NewLocker(redisClient)
	webhookCache := red.NewWebhookCache(redisClient)

	// ---- Encryption ----
	encSvc, err := security.NewEncryptionService(cfg.Security.EncryptionKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("encryption")
	}

	// ---- Repositories ----
	planRepo := pg.NewPlanRepo(pool)
	subRepo := pg.NewSubscriptionRepo(pool)
	payRepo := pg.NewPaymentRepo(pool)
	keyRepo := pg.NewBillingKeyRepo(pool)
	requestRepo := pg.NewRefundRequestRepo(pool)
	compRepo := pg.NewCompensationRepo(pool)
	webhookLogRepo := pg.NewWebhookLogRepo(pool)
	procs := pg.NewLedgerProcedures(pool)
	txManager := pg.NewTxManager(pool)

	// ---- Gateway + alerts ----
	gateway, err := payAdapters.NewTossGateway(&cfg.Payment.Toss)
	if err != nil {
		logger.Fatal().Err(err).Msg("toss gateway")
	}

	var alerter adapter.AdminAlerter = alertAdapters.NoopAlerter{}
	if cfg.Alert.TelegramToken != "" && cfg.Alert.TelegramChatID != 0 {
		alerter, err = alertAdapters.NewTelegramAlerter(&cfg.Alert, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("telegram alerter")
		}
	} else {
		logger.Warn().Msg("no alert channel configured; compensation alerts go to logs only")
	}

	// ---- Use cases ----
	comp := usecase.NewCompensator(compRepo, alerter, logger)
	subUC := usecase.NewSubscriptionUseCase(planRepo, subRepo, payRepo, keyRepo, procs, gateway, encSvc, comp, logger)
	planChangeUC := usecase.NewPlanChangeUseCase(planRepo, subRepo, payRepo, keyRepo, procs, gateway, encSvc, comp, logger)
	refundUC := usecase.NewRefundUseCase(payRepo, requestRepo, procs, gateway, comp, logger)
	webhookUC := usecase.NewWebhookUseCase(webhookLogRepo, payRepo, procs, logger)
	billingKeyUC := usecase.NewBillingKeyUseCase(keyRepo, subRepo, txManager, logger)

	// ---- HTTP ----
	srv := web.NewServer(cfg, webhookUC, refundUC, subUC, planChangeUC, billingKeyUC, requestRepo, compRepo, webhookCache, logger)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server stopped")
			cancel()
		}
	}()

	// ---- Workers ----
	renewalWorker := sched.NewRenewalWorker(subUC, subRepo, locker,
		cfg.Worker.RenewalInterval, cfg.Worker.RenewalBatchSize, cfg.Worker.LockTTL, logger)
	go renewalWorker.Start(ctx)

	compWorker := sched.NewCompensationWorker(compRepo, procs,
		cfg.Worker.CompensationInterval, cfg.Worker.CompensationBatch, logger)
	go compWorker.Start(ctx)

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigc:
		logger.Info().Msg("shutdown requested")
	case <-ctx.Done():
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
}
