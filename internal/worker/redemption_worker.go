package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/erpwoosync/cianbox-pos-sub004/internal/model"
	"github.com/erpwoosync/cianbox-pos-sub004/internal/repository"
	"github.com/erpwoosync/cianbox-pos-sub004/internal/service"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// MaxRedemptionRetries bounds re-attempts before a redemption is parked in
// FAILED and pushed to the DLQ for manual resolution.
const MaxRedemptionRetries = 5

// RedemptionWorker re-applies instrument redemptions whose sale committed but
// whose ledger write failed. Redeem is conditioned on the remaining balance,
// so re-running an already-applied redemption cannot double-charge: the
// outbox row flips to DONE the first time Redeem succeeds.
type RedemptionWorker struct {
	outbox      repository.OutboxRepository
	giftCards   service.GiftCardService
	storeCredit service.StoreCreditService
	rdb         *redis.Client
}

func NewRedemptionWorker(
	outbox repository.OutboxRepository,
	giftCards service.GiftCardService,
	storeCredit service.StoreCreditService,
	rdb *redis.Client,
) *RedemptionWorker {
	return &RedemptionWorker{outbox: outbox, giftCards: giftCards, storeCredit: storeCredit, rdb: rdb}
}

func (w *RedemptionWorker) Process(ctx context.Context, payload RedemptionJobPayload) {
	id, err := uuid.Parse(payload.RedemptionID)
	if err != nil {
		log.Error().Str("redemption_id", payload.RedemptionID).Msg("redemption job with invalid id dropped")
		return
	}
	pending, err := w.outbox.FindRedemption(ctx, id)
	if err != nil {
		log.Error().Err(err).Str("redemption_id", payload.RedemptionID).Msg("redemption job load failed")
		return
	}
	w.Apply(ctx, pending)
}

// Apply attempts the redemption and persists the outcome. Shared between the
// queue consumer and the retry cron.
func (w *RedemptionWorker) Apply(ctx context.Context, pending *model.PendingRedemption) {
	if pending.Status != model.RedemptionPending {
		return
	}

	var err error
	switch pending.InstrumentKind {
	case model.KindGiftCard:
		_, err = w.giftCards.Redeem(ctx, pending.TenantID, pending.InstrumentCode, pending.Amount, &pending.SaleID)
	case model.KindStoreCredit:
		_, err = w.storeCredit.Redeem(ctx, pending.TenantID, pending.InstrumentCode, pending.Amount, &pending.SaleID)
	default:
		log.Error().Str("kind", pending.InstrumentKind).Msg("redemption with unknown instrument kind dropped")
		return
	}

	pending.Attempts++
	if err == nil {
		pending.Status = model.RedemptionDone
		pending.NextRetryAt = nil
		pending.LastError = nil
		if updErr := w.outbox.UpdateRedemption(ctx, pending); updErr != nil {
			log.Error().Err(updErr).Str("redemption_id", pending.ID.String()).Msg("redemption state update failed")
		}
		log.Info().
			Str("code", pending.InstrumentCode).
			Str("sale_id", pending.SaleID.String()).
			Int("attempts", pending.Attempts).
			Msg("deferred redemption applied")
		return
	}

	msg := err.Error()
	pending.LastError = &msg

	if pending.Attempts >= MaxRedemptionRetries {
		pending.Status = model.RedemptionFailed
		pending.NextRetryAt = nil
		payload, _ := json.Marshal(RedemptionJobPayload{RedemptionID: pending.ID.String()})
		SendToDLQ(ctx, w.rdb, QueueRedemptions, "redemption", pending.TenantID, payload, msg, pending.Attempts)
	} else {
		retryAt := time.Now().Add(computeRetryBackoff(pending.Attempts))
		pending.NextRetryAt = &retryAt
		log.Warn().
			Str("code", pending.InstrumentCode).
			Int("attempts", pending.Attempts).
			Time("next_retry_at", retryAt).
			Msg("deferred redemption failed, scheduled next attempt")
	}
	if updErr := w.outbox.UpdateRedemption(ctx, pending); updErr != nil {
		log.Error().Err(updErr).Str("redemption_id", pending.ID.String()).Msg("redemption state update failed")
	}
}

// computeRetryBackoff doubles the wait per attempt: 1m, 2m, 4m … capped at 30m.
func computeRetryBackoff(attempts int) time.Duration {
	d := time.Minute
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= 30*time.Minute {
			return 30 * time.Minute
		}
	}
	return d
}
