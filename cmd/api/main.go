package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"payx/config"
	httpHandler "payx/internal/adapter/http/handler"
	pgStorage "payx/internal/adapter/storage/postgres"
	redisStorage "payx/internal/adapter/storage/redis"
	"payx/internal/core/ports"
	"payx/internal/service"
	"payx/internal/worker"
	"payx/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Str("addr", cfg.Server.BindAddress).
		Msg("Starting payx")

	ctx := context.Background()

	// Initialize PostgreSQL pool
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	// Initialize repositories
	businessRepo := pgStorage.NewBusinessRepo(pool)
	accountRepo := pgStorage.NewAccountRepo(pool)
	apiKeyRepo := pgStorage.NewApiKeyRepo(pool)
	txRepo := pgStorage.NewTransactionRepo(pool)
	ledgerRepo := pgStorage.NewLedgerRepo(pool)
	outboxRepo := pgStorage.NewOutboxRepo(pool)
	rateLimitRepo := pgStorage.NewRateLimitRepo(pool)
	transactor := pgStorage.NewTransactor(pool)

	healthCheckers := []ports.HealthChecker{pgStorage.NewHealthCheck(pool)}

	// Redis is optional; without it idempotency replays hit the database
	// directly.
	var idempCache ports.IdempotencyCache = redisStorage.NoopIdempotencyCache{}
	if cfg.Redis.Addr != "" {
		rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()
		log.Info().Msg("Redis connected")

		idempCache = redisStorage.NewIdempotencyCache(rdb)
		healthCheckers = append(healthCheckers, redisStorage.NewHealthCheck(rdb))
	}

	// Initialize core services
	hashSvc := service.NewArgon2HashService()
	sigSvc := service.NewHmacSignatureService()
	apiKeySvc := service.NewApiKeyService(apiKeyRepo, hashSvc, cfg.RateLimit.PerMinute, log)
	businessSvc := service.NewBusinessService(businessRepo, apiKeySvc, log)
	ledgerSvc := service.NewLedgerService(
		txRepo,
		ledgerRepo,
		accountRepo,
		outboxRepo,
		idempCache,
		transactor,
		cfg.Webhook.MaxAttempts,
		log,
	)

	// Webhook delivery workers
	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()

	httpClient := &http.Client{Timeout: cfg.Webhook.HTTPTimeout}
	var wg sync.WaitGroup
	for i := 0; i < cfg.Webhook.Workers; i++ {
		w := worker.NewWebhookWorker(
			outboxRepo,
			businessRepo,
			sigSvc,
			transactor,
			httpClient,
			cfg.Webhook.BatchSize,
			cfg.Webhook.PollInterval,
			log.With().Int("worker", i).Logger(),
		)
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(workerCtx)
		}()
	}

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		BusinessSvc:    businessSvc,
		LedgerSvc:      ledgerSvc,
		ApiKeySvc:      apiKeySvc,
		BusinessRepo:   businessRepo,
		AccountRepo:    accountRepo,
		TxRepo:         txRepo,
		LedgerRepo:     ledgerRepo,
		OutboxRepo:     outboxRepo,
		RateLimitStore: rateLimitRepo,
		RequestTimeout: cfg.Server.RequestTimeout,
		HealthCheckers: healthCheckers,
		Logger:         log,
	})

	// HTTP Server with graceful shutdown
	srv := &http.Server{
		Addr:    cfg.Server.BindAddress,
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", cfg.Server.BindAddress).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Drain workers after the server stops accepting requests.
	stopWorkers()
	wg.Wait()

	log.Info().Msg("Server exited")
}
