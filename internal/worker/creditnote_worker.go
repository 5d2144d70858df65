package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/erpwoosync/cianbox-pos-sub004/internal/infra"
	"github.com/erpwoosync/cianbox-pos-sub004/internal/model"
	"github.com/erpwoosync/cianbox-pos-sub004/internal/repository"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// MaxCreditNoteRetries bounds re-attempts before a credit note is parked in
// ERROR and pushed to the DLQ.
const MaxCreditNoteRetries = 3

// CreditNoteWorker re-attempts fiscal credit note emission for refunds whose
// first emission failed.
type CreditNoteWorker struct {
	outbox  repository.OutboxRepository
	emitter infra.TaxDocEmitter
	cb      *infra.CircuitBreaker
	rdb     *redis.Client
}

func NewCreditNoteWorker(
	outbox repository.OutboxRepository,
	emitter infra.TaxDocEmitter,
	cb *infra.CircuitBreaker,
	rdb *redis.Client,
) *CreditNoteWorker {
	return &CreditNoteWorker{outbox: outbox, emitter: emitter, cb: cb, rdb: rdb}
}

func (w *CreditNoteWorker) Process(ctx context.Context, payload CreditNoteJobPayload) {
	id, err := uuid.Parse(payload.CreditNoteID)
	if err != nil {
		log.Error().Str("credit_note_id", payload.CreditNoteID).Msg("credit note job with invalid id dropped")
		return
	}
	note, err := w.outbox.FindCreditNote(ctx, id)
	if err != nil {
		log.Error().Err(err).Str("credit_note_id", payload.CreditNoteID).Msg("credit note job load failed")
		return
	}
	w.Apply(ctx, note)
}

// Apply emits the note through the circuit breaker and persists the outcome.
func (w *CreditNoteWorker) Apply(ctx context.Context, note *model.CreditNote) {
	if note.Status != "PENDING" {
		return
	}

	var result *infra.CreditNoteResponse
	cbErr := w.cb.Execute(func() error {
		resp, err := w.emitter.EmitCreditNote(ctx, infra.CreditNoteRequest{
			TenantID:           note.TenantID.String(),
			SalesPointRef:      note.SalesPointRef,
			OriginalInvoiceRef: note.OriginalInvoiceRef,
			Amount:             note.Amount.InexactFloat64(),
			RefundSaleID:       note.RefundSaleID.String(),
		})
		if err != nil {
			return err
		}
		result = resp
		return nil
	})

	if cbErr != nil {
		note.RetryCount++
		msg := cbErr.Error()
		note.LastError = &msg

		if note.RetryCount >= MaxCreditNoteRetries {
			note.Status = "ERROR"
			note.NextRetryAt = nil
			payload, _ := json.Marshal(CreditNoteJobPayload{CreditNoteID: note.ID.String()})
			SendToDLQ(ctx, w.rdb, QueueCreditNotes, "credit_note", note.TenantID, payload, msg, note.RetryCount)
		} else {
			retryAt := time.Now().Add(computeRetryBackoff(note.RetryCount))
			note.NextRetryAt = &retryAt
			log.Warn().
				Str("credit_note_id", note.ID.String()).
				Int("retry_count", note.RetryCount).
				Time("next_retry_at", retryAt).
				Msg("credit note emission failed, scheduled next attempt")
		}
		if err := w.outbox.UpdateCreditNote(ctx, note); err != nil {
			log.Error().Err(err).Msg("credit note state update failed")
		}
		return
	}

	note.Status = "EMITTED"
	note.InvoiceID = &result.InvoiceID
	note.CAE = &result.CAE
	note.VoucherNumber = &result.VoucherNumber
	note.NextRetryAt = nil
	note.LastError = nil
	if err := w.outbox.UpdateCreditNote(ctx, note); err != nil {
		log.Error().Err(err).Msg("credit note state update failed")
	}
	log.Info().
		Str("credit_note_id", note.ID.String()).
		Str("cae", result.CAE).
		Int("total_retries", note.RetryCount).
		Msg("credit note emitted after retry")
}
