package repository

import (
	"context"
	"time"

	"github.com/erpwoosync/cianbox-pos-sub004/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OutboxRepository persists the durable post-commit work: instrument
// redemptions deferred until after the sale transaction, and credit notes
// awaiting emission. Both are drained by the retry cron.
type OutboxRepository interface {
	CreateRedemptionTx(tx *gorm.DB, r *model.PendingRedemption) error
	FindRedemption(ctx context.Context, id uuid.UUID) (*model.PendingRedemption, error)
	ListDueRedemptions(ctx context.Context, now time.Time, limit int) ([]model.PendingRedemption, error)
	UpdateRedemption(ctx context.Context, r *model.PendingRedemption) error

	CreateCreditNote(ctx context.Context, cn *model.CreditNote) error
	FindCreditNote(ctx context.Context, id uuid.UUID) (*model.CreditNote, error)
	ListDueCreditNotes(ctx context.Context, now time.Time, limit int) ([]model.CreditNote, error)
	UpdateCreditNote(ctx context.Context, cn *model.CreditNote) error
}

type outboxRepo struct{ db *gorm.DB }

func NewOutboxRepository(db *gorm.DB) OutboxRepository { return &outboxRepo{db: db} }

func (r *outboxRepo) CreateRedemptionTx(tx *gorm.DB, p *model.PendingRedemption) error {
	return tx.Create(p).Error
}

func (r *outboxRepo) FindRedemption(ctx context.Context, id uuid.UUID) (*model.PendingRedemption, error) {
	var p model.PendingRedemption
	if err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *outboxRepo) ListDueRedemptions(ctx context.Context, now time.Time, limit int) ([]model.PendingRedemption, error) {
	var due []model.PendingRedemption
	err := r.db.WithContext(ctx).
		Where("status = ? AND (next_retry_at IS NULL OR next_retry_at <= ?)", model.RedemptionPending, now).
		Order("created_at ASC").
		Limit(limit).
		Find(&due).Error
	return due, err
}

func (r *outboxRepo) UpdateRedemption(ctx context.Context, p *model.PendingRedemption) error {
	return r.db.WithContext(ctx).Save(p).Error
}

func (r *outboxRepo) CreateCreditNote(ctx context.Context, cn *model.CreditNote) error {
	return r.db.WithContext(ctx).Create(cn).Error
}

func (r *outboxRepo) FindCreditNote(ctx context.Context, id uuid.UUID) (*model.CreditNote, error) {
	var cn model.CreditNote
	if err := r.db.WithContext(ctx).First(&cn, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &cn, nil
}

func (r *outboxRepo) ListDueCreditNotes(ctx context.Context, now time.Time, limit int) ([]model.CreditNote, error) {
	var due []model.CreditNote
	err := r.db.WithContext(ctx).
		Where("status = ? AND (next_retry_at IS NULL OR next_retry_at <= ?)", "PENDING", now).
		Order("created_at ASC").
		Limit(limit).
		Find(&due).Error
	return due, err
}

func (r *outboxRepo) UpdateCreditNote(ctx context.Context, cn *model.CreditNote) error {
	return r.db.WithContext(ctx).Save(cn).Error
}
