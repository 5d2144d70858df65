package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	QueueRedemptions = "jobs:redemptions"
	QueueCreditNotes = "jobs:creditnotes"
)

// Job is the generic envelope for all async tasks.
type Job struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// RedemptionJobPayload re-attempts one outbox redemption by id.
type RedemptionJobPayload struct {
	RedemptionID string `json:"redemption_id"`
}

// CreditNoteJobPayload re-attempts one credit note emission by id.
type CreditNoteJobPayload struct {
	CreditNoteID string `json:"credit_note_id"`
}

// Dispatcher enqueues async jobs into Redis lists.
// The worker pool dequeues them via BRPOP.
type Dispatcher struct {
	rdb *redis.Client
}

func NewDispatcher(rdb *redis.Client) *Dispatcher {
	return &Dispatcher{rdb: rdb}
}

// EnqueueRedemption pushes an instrument redemption retry to Redis.
func (d *Dispatcher) EnqueueRedemption(ctx context.Context, payload RedemptionJobPayload) error {
	return d.enqueue(ctx, QueueRedemptions, "redemption", payload)
}

// EnqueueCreditNote pushes a credit note emission retry to Redis.
func (d *Dispatcher) EnqueueCreditNote(ctx context.Context, payload CreditNoteJobPayload) error {
	return d.enqueue(ctx, QueueCreditNotes, "credit_note", payload)
}

func (d *Dispatcher) enqueue(ctx context.Context, queue, jobType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	job := Job{Type: jobType, Payload: data}
	encoded, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return d.rdb.LPush(ctx, queue, encoded).Err()
}

// Handlers bundles the per-queue processors the pool dispatches to.
type Handlers struct {
	Redemptions *RedemptionWorker
	CreditNotes *CreditNoteWorker
}

// StartWorkerPool launches numWorkers goroutines consuming both queues.
// Each goroutine blocks on BRPOP — zero CPU when idle.
func StartWorkerPool(ctx context.Context, rdb *redis.Client, numWorkers int, handlers Handlers) {
	for i := 0; i < numWorkers; i++ {
		go runWorker(ctx, rdb, i, handlers)
	}
	log.Info().Msgf("worker pool started with %d workers", numWorkers)
}

func runWorker(ctx context.Context, rdb *redis.Client, id int, handlers Handlers) {
	queues := []string{QueueRedemptions, QueueCreditNotes}
	for {
		select {
		case <-ctx.Done():
			log.Info().Msgf("worker %d shutting down", id)
			return
		default:
			// Blocking pop — waits up to 5s then loops to check ctx
			result, err := rdb.BRPop(ctx, 5*time.Second, queues...).Result()
			if err != nil {
				continue // timeout or context cancelled
			}
			if len(result) < 2 {
				continue
			}
			processJob(ctx, result[0], result[1], handlers)
		}
	}
}

func processJob(ctx context.Context, queue, raw string, handlers Handlers) {
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		log.Error().Str("queue", queue).Err(err).Msg("failed to unmarshal job")
		return
	}

	switch queue {
	case QueueRedemptions:
		var payload RedemptionJobPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			log.Error().Err(err).Msg("failed to unmarshal redemption payload")
			return
		}
		handlers.Redemptions.Process(ctx, payload)
	case QueueCreditNotes:
		var payload CreditNoteJobPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			log.Error().Err(err).Msg("failed to unmarshal credit note payload")
			return
		}
		handlers.CreditNotes.Process(ctx, payload)
	default:
		log.Warn().Str("queue", queue).Str("type", job.Type).Msg("job from unknown queue dropped")
	}
}
