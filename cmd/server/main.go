package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/erpwoosync/cianbox-pos-sub004/internal/config"
	"github.com/erpwoosync/cianbox-pos-sub004/internal/infra"
	"github.com/erpwoosync/cianbox-pos-sub004/internal/repository"
	"github.com/erpwoosync/cianbox-pos-sub004/internal/router"
	"github.com/erpwoosync/cianbox-pos-sub004/internal/service"
	"github.com/erpwoosync/cianbox-pos-sub004/internal/worker"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Structured logger — dev: pretty, prod: JSON
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	db, err := infra.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}

	rdb, err := infra.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// One breaker shared by the refund path, the queue workers and the retry
	// cron, so a tax-sidecar outage is observed exactly once.
	taxCB := infra.NewCircuitBreaker(infra.DefaultCBConfig())
	taxClient := infra.NewTaxDocClient(cfg.TaxDocURL)

	// Worker handlers are wired here (composition root) so the pool has full
	// access to all infrastructure dependencies.
	outboxRepo := repository.NewOutboxRepository(db)
	giftCardSvc := service.NewGiftCardService(repository.NewGiftCardRepository(db))
	storeCreditSvc := service.NewStoreCreditService(repository.NewStoreCreditRepository(db))

	redemptionW := worker.NewRedemptionWorker(outboxRepo, giftCardSvc, storeCreditSvc, rdb)
	creditNoteW := worker.NewCreditNoteWorker(outboxRepo, taxClient, taxCB, rdb)
	worker.StartWorkerPool(ctx, rdb, cfg.WorkerPoolSize, worker.Handlers{
		Redemptions: redemptionW,
		CreditNotes: creditNoteW,
	})
	worker.StartRetryCron(ctx, worker.RetryCronConfig{
		Outbox:      outboxRepo,
		Redemptions: redemptionW,
		CreditNotes: creditNoteW,
		CB:          taxCB,
		RDB:         rdb,
	})

	r := router.New(cfg, db, rdb, taxCB)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM
	go func() {
		log.Info().Msgf("settlement engine listening on :%d", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server…")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("forced shutdown")
	}
	log.Info().Msg("server exited")
}
