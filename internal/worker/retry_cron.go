package worker

// retry_cron.go
// Background goroutine that periodically re-attempts outbox work stuck with a
// next_retry_at in the past: instrument redemptions whose sale committed but
// whose ledger write failed, and fiscal credit notes awaiting emission. The
// cron also catches rows orphaned by a crash between commit and the first
// attempt. Credit note calls go through the Circuit Breaker to avoid
// hammering a downed invoicing service.

import (
	"context"
	"time"

	"github.com/erpwoosync/cianbox-pos-sub004/internal/infra"
	"github.com/erpwoosync/cianbox-pos-sub004/internal/repository"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	retryTickInterval = 30 * time.Second
	retryBatchSize    = 10
)

// RetryCronConfig holds all dependencies for the retry goroutine.
type RetryCronConfig struct {
	Outbox      repository.OutboxRepository
	Redemptions *RedemptionWorker
	CreditNotes *CreditNoteWorker
	CB          *infra.CircuitBreaker
	RDB         *redis.Client
}

// StartRetryCron launches a background goroutine that ticks every 30s and
// drains both outboxes. It respects the context for graceful shutdown.
func StartRetryCron(ctx context.Context, cfg RetryCronConfig) {
	go func() {
		ticker := time.NewTicker(retryTickInterval)
		defer ticker.Stop()

		log.Info().Msg("retry_cron: started")

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("retry_cron: shutting down")
				return
			case <-ticker.C:
				processRedemptionRetries(ctx, cfg)
				processCreditNoteRetries(ctx, cfg)
				ReportDLQDepths(ctx, cfg.RDB, QueueRedemptions, QueueCreditNotes)
			}
		}
	}()
}

func processRedemptionRetries(ctx context.Context, cfg RetryCronConfig) {
	due, err := cfg.Outbox.ListDueRedemptions(ctx, time.Now(), retryBatchSize)
	if err != nil {
		log.Error().Err(err).Msg("retry_cron: failed to query pending redemptions")
		return
	}
	if len(due) == 0 {
		return
	}
	log.Info().Int("count", len(due)).Msg("retry_cron: processing pending redemptions")
	for i := range due {
		cfg.Redemptions.Apply(ctx, &due[i])
	}
}

func processCreditNoteRetries(ctx context.Context, cfg RetryCronConfig) {
	// If CB is open, skip entirely — don't hammer a downed invoicing service
	if cfg.CB.State() == infra.CBOpen {
		log.Debug().Msg("retry_cron: circuit breaker is open, skipping credit notes")
		return
	}

	due, err := cfg.Outbox.ListDueCreditNotes(ctx, time.Now(), retryBatchSize)
	if err != nil {
		log.Error().Err(err).Msg("retry_cron: failed to query pending credit notes")
		return
	}
	if len(due) == 0 {
		return
	}
	log.Info().Int("count", len(due)).Msg("retry_cron: processing pending credit notes")
	for i := range due {
		// Check CB state before each call — it may have tripped mid-batch
		if cfg.CB.State() == infra.CBOpen {
			log.Debug().Msg("retry_cron: circuit breaker opened mid-batch, stopping")
			return
		}
		cfg.CreditNotes.Apply(ctx, &due[i])
	}
}
