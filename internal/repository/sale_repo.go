package repository

import (
	"context"

	"github.com/erpwoosync/cianbox-pos-sub004/internal/dto"
	"github.com/erpwoosync/cianbox-pos-sub004/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SaleRepository is the data access contract for sales. Services depend on
// this interface, not on GORM, so unit tests run against in-memory stubs.
type SaleRepository interface {
	Create(ctx context.Context, tx *gorm.DB, s *model.Sale) error
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*model.Sale, error)
	FindItemByID(ctx context.Context, tenantID, itemID uuid.UUID) (*model.SaleItem, error)
	UpdateStatusTx(tx *gorm.DB, id uuid.UUID, status string) error
	// RefundedQuantityTx sums the absolute mirror quantities already pointing
	// at an original item. Called inside the refund transaction.
	RefundedQuantityTx(tx *gorm.DB, originalItemID uuid.UUID) (int, error)
	// NextSequenceTx draws the next per-(tenant, POS, day) sale number
	// atomically.
	NextSequenceTx(ctx context.Context, tx *gorm.DB, tenantID, posID uuid.UUID, day string) (int, error)
	List(ctx context.Context, tenantID uuid.UUID, filter dto.SaleFilter) ([]model.Sale, int64, error)
	DB() *gorm.DB
}

type saleRepo struct{ db *gorm.DB }

func NewSaleRepository(db *gorm.DB) SaleRepository { return &saleRepo{db: db} }

func (r *saleRepo) DB() *gorm.DB { return r.db }

func (r *saleRepo) Create(ctx context.Context, tx *gorm.DB, s *model.Sale) error {
	return tx.WithContext(ctx).Create(s).Error
}

func (r *saleRepo) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*model.Sale, error) {
	var s model.Sale
	err := r.db.WithContext(ctx).
		Preload("Items").
		Preload("Items.RefundItems").
		Preload("Payments").
		Where("tenant_id = ?", tenantID).
		First(&s, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *saleRepo) FindItemByID(ctx context.Context, tenantID, itemID uuid.UUID) (*model.SaleItem, error) {
	var item model.SaleItem
	err := r.db.WithContext(ctx).
		Joins("JOIN sales ON sales.id = sale_items.sale_id").
		Where("sales.tenant_id = ? AND sale_items.id = ?", tenantID, itemID).
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *saleRepo) UpdateStatusTx(tx *gorm.DB, id uuid.UUID, status string) error {
	return tx.Model(&model.Sale{}).Where("id = ?", id).Update("status", status).Error
}

func (r *saleRepo) RefundedQuantityTx(tx *gorm.DB, originalItemID uuid.UUID) (int, error) {
	var total int
	err := tx.Model(&model.SaleItem{}).
		Select("COALESCE(SUM(ABS(quantity)), 0)").
		Where("original_item_id = ?", originalItemID).
		Scan(&total).Error
	return total, err
}

func (r *saleRepo) NextSequenceTx(ctx context.Context, tx *gorm.DB, tenantID, posID uuid.UUID, day string) (int, error) {
	var seq int
	err := tx.WithContext(ctx).Raw(`
		INSERT INTO sale_sequences (tenant_id, point_of_sale_id, day, last_value)
		VALUES (?, ?, ?, 1)
		ON CONFLICT (tenant_id, point_of_sale_id, day)
		DO UPDATE SET last_value = sale_sequences.last_value + 1
		RETURNING last_value`,
		tenantID, posID, day).Scan(&seq).Error
	return seq, err
}

func (r *saleRepo) List(ctx context.Context, tenantID uuid.UUID, filter dto.SaleFilter) ([]model.Sale, int64, error) {
	var sales []model.Sale
	var total int64

	q := r.db.WithContext(ctx).Model(&model.Sale{}).Where("tenant_id = ?", tenantID)

	if filter.Status != "" && filter.Status != "all" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Date != "" {
		q = q.Where("DATE(created_at) = ?", filter.Date)
	} else {
		q = q.Where("DATE(created_at) = CURRENT_DATE")
	}

	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	err := q.Preload("Items").Preload("Payments").
		Order("created_at DESC").
		Offset(offset).Limit(filter.Limit).
		Find(&sales).Error
	return sales, total, err
}
