package repository

import (
	"context"

	"github.com/erpwoosync/cianbox-pos-sub004/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProductRepository covers the catalog reads and the atomic stock mutations
// the settlement engine needs. Full catalog CRUD lives in the ERP connector.
type ProductRepository interface {
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*model.Product, error)
	// AdjustStockTx moves quantity/available by delta for (product, branch)
	// with a single UPDATE, so concurrent sales never lose increments.
	AdjustStockTx(tx *gorm.DB, productID, branchID uuid.UUID, delta int) error
	StockLevel(ctx context.Context, productID, branchID uuid.UUID) (*model.StockLevel, error)
}

type productRepo struct{ db *gorm.DB }

func NewProductRepository(db *gorm.DB) ProductRepository { return &productRepo{db: db} }

func (r *productRepo) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*model.Product, error) {
	var p model.Product
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND active = true", tenantID).
		First(&p, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *productRepo) AdjustStockTx(tx *gorm.DB, productID, branchID uuid.UUID, delta int) error {
	return tx.Model(&model.StockLevel{}).
		Where("product_id = ? AND branch_id = ?", productID, branchID).
		Updates(map[string]interface{}{
			"quantity":  gorm.Expr("quantity + ?", delta),
			"available": gorm.Expr("available + ?", delta),
		}).Error
}

func (r *productRepo) StockLevel(ctx context.Context, productID, branchID uuid.UUID) (*model.StockLevel, error) {
	var sl model.StockLevel
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND branch_id = ?", productID, branchID).
		First(&sl).Error
	if err != nil {
		return nil, err
	}
	return &sl, nil
}

// BranchRepository validates that branches and registers belong to the tenant.
type BranchRepository interface {
	FindBranch(ctx context.Context, tenantID, id uuid.UUID) (*model.Branch, error)
	FindPointOfSale(ctx context.Context, tenantID, id uuid.UUID) (*model.PointOfSale, error)
}

type branchRepo struct{ db *gorm.DB }

func NewBranchRepository(db *gorm.DB) BranchRepository { return &branchRepo{db: db} }

func (r *branchRepo) FindBranch(ctx context.Context, tenantID, id uuid.UUID) (*model.Branch, error) {
	var b model.Branch
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND active = true", tenantID).
		First(&b, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *branchRepo) FindPointOfSale(ctx context.Context, tenantID, id uuid.UUID) (*model.PointOfSale, error) {
	var pos model.PointOfSale
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND active = true", tenantID).
		First(&pos, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &pos, nil
}

// UserRepository resolves users for the supervisor-authorization gates.
type UserRepository interface {
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*model.User, error)
	// ListActiveWithPIN returns active users that have a supervisor PIN set;
	// the caller bcrypt-compares the entered PIN against each hash.
	ListActiveWithPIN(ctx context.Context, tenantID uuid.UUID) ([]model.User, error)
}

type userRepo struct{ db *gorm.DB }

func NewUserRepository(db *gorm.DB) UserRepository { return &userRepo{db: db} }

func (r *userRepo) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*model.User, error) {
	var u model.User
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		First(&u, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepo) ListActiveWithPIN(ctx context.Context, tenantID uuid.UUID) ([]model.User, error) {
	var users []model.User
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND active = true AND pin_hash IS NOT NULL", tenantID).
		Find(&users).Error
	return users, err
}
