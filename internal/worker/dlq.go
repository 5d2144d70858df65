package worker

// dlq.go
// Jobs that exhaust their retries are parked on a Redis list per source
// queue (dlq:{queue}) so an operator can inspect and replay them. Entries
// carry the tenant so support can triage without decoding the payload.

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const DLQPrefix = "dlq:"

// DLQEntry wraps a failed job with enough metadata to triage it.
type DLQEntry struct {
	OriginalQueue string          `json:"original_queue"`
	JobType       string          `json:"job_type"`
	TenantID      uuid.UUID       `json:"tenant_id"`
	Payload       json.RawMessage `json:"payload"`
	Reason        string          `json:"reason"`
	FailedAt      time.Time       `json:"failed_at"`
	Attempts      int             `json:"attempts"`
}

// SendToDLQ parks a job that exhausted its retries. A nil Redis client
// (unit tests, degraded boot) makes this a no-op; the outbox row keeps
// the terminal status either way.
func SendToDLQ(ctx context.Context, rdb *redis.Client, queue, jobType string, tenantID uuid.UUID, payload json.RawMessage, reason string, attempts int) {
	if rdb == nil {
		return
	}
	entry := DLQEntry{
		OriginalQueue: queue,
		JobType:       jobType,
		TenantID:      tenantID,
		Payload:       payload,
		Reason:        reason,
		FailedAt:      time.Now().UTC(),
		Attempts:      attempts,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		log.Error().Err(err).Str("queue", queue).Msg("dlq: failed to marshal entry")
		return
	}
	if err := rdb.LPush(ctx, DLQPrefix+queue, data).Err(); err != nil {
		log.Error().Err(err).Str("queue", queue).Msg("dlq: push failed")
		return
	}

	log.Warn().
		Str("queue", queue).
		Str("job_type", jobType).
		Str("tenant_id", tenantID.String()).
		Str("reason", reason).
		Int("attempts", attempts).
		Msg("dlq: job moved to dead letter queue")
}

// ReportDLQDepths logs the backlog of each dead letter queue so a non-empty
// DLQ shows up in log-based alerting.
func ReportDLQDepths(ctx context.Context, rdb *redis.Client, queues ...string) {
	if rdb == nil {
		return
	}
	for _, q := range queues {
		n, err := rdb.LLen(ctx, DLQPrefix+q).Result()
		if err != nil {
			log.Error().Err(err).Str("queue", q).Msg("dlq: depth check failed")
			continue
		}
		if n > 0 {
			log.Warn().Str("queue", q).Int64("depth", n).Msg("dlq: entries awaiting manual resolution")
		}
	}
}
