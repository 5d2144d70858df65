package repository

import (
	"context"

	"github.com/erpwoosync/cianbox-pos-sub004/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GiftCardRepository persists gift cards and their append-only ledger.
// DecrementBalanceTx is the only balance mutation: a conditional UPDATE so a
// racing double-redeem can never drive the balance negative.
type GiftCardRepository interface {
	Create(ctx context.Context, tx *gorm.DB, gc *model.GiftCard) error
	FindByCode(ctx context.Context, tenantID uuid.UUID, code string) (*model.GiftCard, error)
	FindByIDTx(tx *gorm.DB, id uuid.UUID) (*model.GiftCard, error)
	DecrementBalanceTx(tx *gorm.DB, id uuid.UUID, amount decimal.Decimal) (bool, error)
	UpdateStatusTx(tx *gorm.DB, id uuid.UUID, status string) error
	AppendTransactionTx(tx *gorm.DB, t *model.InstrumentTransaction) error
	ListTransactions(ctx context.Context, id uuid.UUID) ([]model.InstrumentTransaction, error)
	DB() *gorm.DB
}

type giftCardRepo struct{ db *gorm.DB }

func NewGiftCardRepository(db *gorm.DB) GiftCardRepository { return &giftCardRepo{db: db} }

func (r *giftCardRepo) DB() *gorm.DB { return r.db }

func (r *giftCardRepo) Create(ctx context.Context, tx *gorm.DB, gc *model.GiftCard) error {
	return tx.WithContext(ctx).Create(gc).Error
}

func (r *giftCardRepo) FindByCode(ctx context.Context, tenantID uuid.UUID, code string) (*model.GiftCard, error) {
	var gc model.GiftCard
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND code = ?", tenantID, code).
		First(&gc).Error
	if err != nil {
		return nil, err
	}
	return &gc, nil
}

func (r *giftCardRepo) FindByIDTx(tx *gorm.DB, id uuid.UUID) (*model.GiftCard, error) {
	var gc model.GiftCard
	if err := tx.First(&gc, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &gc, nil
}

func (r *giftCardRepo) DecrementBalanceTx(tx *gorm.DB, id uuid.UUID, amount decimal.Decimal) (bool, error) {
	res := tx.Model(&model.GiftCard{}).
		Where("id = ? AND current_balance >= ?", id, amount).
		Update("current_balance", gorm.Expr("current_balance - ?", amount))
	return res.RowsAffected == 1, res.Error
}

func (r *giftCardRepo) UpdateStatusTx(tx *gorm.DB, id uuid.UUID, status string) error {
	return tx.Model(&model.GiftCard{}).Where("id = ?", id).Update("status", status).Error
}

func (r *giftCardRepo) AppendTransactionTx(tx *gorm.DB, t *model.InstrumentTransaction) error {
	return tx.Create(t).Error
}

func (r *giftCardRepo) ListTransactions(ctx context.Context, id uuid.UUID) ([]model.InstrumentTransaction, error) {
	var txs []model.InstrumentTransaction
	err := r.db.WithContext(ctx).
		Where("gift_card_id = ?", id).
		Order("created_at ASC").
		Find(&txs).Error
	return txs, err
}

// StoreCreditRepository mirrors GiftCardRepository for vouchers.
type StoreCreditRepository interface {
	Create(ctx context.Context, tx *gorm.DB, sc *model.StoreCredit) error
	FindByCode(ctx context.Context, tenantID uuid.UUID, code string) (*model.StoreCredit, error)
	FindByIDTx(tx *gorm.DB, id uuid.UUID) (*model.StoreCredit, error)
	DecrementBalanceTx(tx *gorm.DB, id uuid.UUID, amount decimal.Decimal) (bool, error)
	UpdateStatusTx(tx *gorm.DB, id uuid.UUID, status string) error
	AppendTransactionTx(tx *gorm.DB, t *model.InstrumentTransaction) error
	ListTransactions(ctx context.Context, id uuid.UUID) ([]model.InstrumentTransaction, error)
	DB() *gorm.DB
}

type storeCreditRepo struct{ db *gorm.DB }

func NewStoreCreditRepository(db *gorm.DB) StoreCreditRepository { return &storeCreditRepo{db: db} }

func (r *storeCreditRepo) DB() *gorm.DB { return r.db }

func (r *storeCreditRepo) Create(ctx context.Context, tx *gorm.DB, sc *model.StoreCredit) error {
	return tx.WithContext(ctx).Create(sc).Error
}

func (r *storeCreditRepo) FindByCode(ctx context.Context, tenantID uuid.UUID, code string) (*model.StoreCredit, error) {
	var sc model.StoreCredit
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND code = ?", tenantID, code).
		First(&sc).Error
	if err != nil {
		return nil, err
	}
	return &sc, nil
}

func (r *storeCreditRepo) FindByIDTx(tx *gorm.DB, id uuid.UUID) (*model.StoreCredit, error) {
	var sc model.StoreCredit
	if err := tx.First(&sc, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &sc, nil
}

func (r *storeCreditRepo) DecrementBalanceTx(tx *gorm.DB, id uuid.UUID, amount decimal.Decimal) (bool, error) {
	res := tx.Model(&model.StoreCredit{}).
		Where("id = ? AND current_balance >= ?", id, amount).
		Update("current_balance", gorm.Expr("current_balance - ?", amount))
	return res.RowsAffected == 1, res.Error
}

func (r *storeCreditRepo) UpdateStatusTx(tx *gorm.DB, id uuid.UUID, status string) error {
	return tx.Model(&model.StoreCredit{}).Where("id = ?", id).Update("status", status).Error
}

func (r *storeCreditRepo) AppendTransactionTx(tx *gorm.DB, t *model.InstrumentTransaction) error {
	return tx.Create(t).Error
}

func (r *storeCreditRepo) ListTransactions(ctx context.Context, id uuid.UUID) ([]model.InstrumentTransaction, error) {
	var txs []model.InstrumentTransaction
	err := r.db.WithContext(ctx).
		Where("store_credit_id = ?", id).
		Order("created_at ASC").
		Find(&txs).Error
	return txs, err
}
