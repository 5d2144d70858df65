package repository

import (
	"context"

	"github.com/erpwoosync/cianbox-pos-sub004/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OrderRepository stores the local mirror of provider payment orders.
type OrderRepository interface {
	Create(ctx context.Context, o *model.MercadoPagoOrder) error
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*model.MercadoPagoOrder, error)
	FindByOrderID(ctx context.Context, tenantID uuid.UUID, orderID string) (*model.MercadoPagoOrder, error)
	FindByExternalReference(ctx context.Context, tenantID uuid.UUID, ref string) (*model.MercadoPagoOrder, error)
	Update(ctx context.Context, o *model.MercadoPagoOrder) error
	// ClaimTx binds an unclaimed order to a sale with a conditional update
	// (WHERE sale_id IS NULL) so exactly one caller wins; losing is not an
	// error, the caller sees claimed=false.
	ClaimTx(tx *gorm.DB, tenantID uuid.UUID, externalRef string, saleID uuid.UUID) (bool, error)
	// ListOrphans returns PROCESSED orders with no sale attached.
	ListOrphans(ctx context.Context, tenantID uuid.UUID) ([]model.MercadoPagoOrder, error)
	// PaymentTransactionExists reports whether any payment in the tenant
	// already references the provider transaction id.
	PaymentTransactionExists(ctx context.Context, tenantID uuid.UUID, transactionID string) (bool, error)
	DB() *gorm.DB
}

type orderRepo struct{ db *gorm.DB }

func NewOrderRepository(db *gorm.DB) OrderRepository { return &orderRepo{db: db} }

func (r *orderRepo) DB() *gorm.DB { return r.db }

func (r *orderRepo) Create(ctx context.Context, o *model.MercadoPagoOrder) error {
	return r.db.WithContext(ctx).Create(o).Error
}

func (r *orderRepo) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*model.MercadoPagoOrder, error) {
	var o model.MercadoPagoOrder
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		First(&o, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *orderRepo) FindByOrderID(ctx context.Context, tenantID uuid.UUID, orderID string) (*model.MercadoPagoOrder, error) {
	var o model.MercadoPagoOrder
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND order_id = ?", tenantID, orderID).
		First(&o).Error
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *orderRepo) FindByExternalReference(ctx context.Context, tenantID uuid.UUID, ref string) (*model.MercadoPagoOrder, error) {
	var o model.MercadoPagoOrder
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND external_reference = ?", tenantID, ref).
		First(&o).Error
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *orderRepo) Update(ctx context.Context, o *model.MercadoPagoOrder) error {
	return r.db.WithContext(ctx).Save(o).Error
}

func (r *orderRepo) ClaimTx(tx *gorm.DB, tenantID uuid.UUID, externalRef string, saleID uuid.UUID) (bool, error) {
	res := tx.Model(&model.MercadoPagoOrder{}).
		Where("tenant_id = ? AND external_reference = ? AND sale_id IS NULL", tenantID, externalRef).
		Update("sale_id", saleID)
	return res.RowsAffected == 1, res.Error
}

func (r *orderRepo) ListOrphans(ctx context.Context, tenantID uuid.UUID) ([]model.MercadoPagoOrder, error) {
	var orders []model.MercadoPagoOrder
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND status = ? AND sale_id IS NULL", tenantID, model.OrderProcessed).
		Order("created_at DESC").
		Find(&orders).Error
	return orders, err
}

func (r *orderRepo) PaymentTransactionExists(ctx context.Context, tenantID uuid.UUID, transactionID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Payment{}).
		Joins("JOIN sales ON sales.id = payments.sale_id").
		Where("sales.tenant_id = ? AND payments.transaction_id = ?", tenantID, transactionID).
		Count(&count).Error
	return count > 0, err
}
