package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Branch is a physical store belonging to a tenant.
type Branch struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TenantID uuid.UUID `gorm:"type:uuid;not null;index"`
	Code     string    `gorm:"not null"`
	Name     string    `gorm:"not null"`
	Active   bool      `gorm:"not null;default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PointOfSale is a register within a branch.
type PointOfSale struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TenantID uuid.UUID `gorm:"type:uuid;not null;index"`
	BranchID uuid.UUID `gorm:"type:uuid;not null;index"`
	Code     string    `gorm:"not null"`
	Name     string    `gorm:"not null"`
	Active   bool      `gorm:"not null;default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Product carries only what the settlement engine needs from the catalog;
// full catalog management lives in the ERP connector.
type Product struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TenantID     uuid.UUID       `gorm:"type:uuid;not null;index"`
	SKU          string          `gorm:"index;not null"`
	Name         string          `gorm:"not null"`
	Price        decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	TaxRate      decimal.Decimal `gorm:"type:decimal(5,2);not null;default:21"`
	TracksStock  bool            `gorm:"not null;default:true"`
	Active       bool            `gorm:"not null;default:true"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// StockLevel holds per-branch stock for a product. Both counters move via
// atomic SQL increments inside the sale/refund transaction.
type StockLevel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ProductID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_stock_levels_product_branch"`
	BranchID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_stock_levels_product_branch"`
	Quantity  int       `gorm:"not null;default:0"`
	Available int       `gorm:"not null;default:0"`
	UpdatedAt time.Time
}

// SaleSequence is the per-(tenant, POS, day) atomic counter backing sale
// numbering. Incremented with INSERT … ON CONFLICT … RETURNING so concurrent
// sales never draw the same number.
type SaleSequence struct {
	TenantID      uuid.UUID `gorm:"type:uuid;primaryKey"`
	PointOfSaleID uuid.UUID `gorm:"type:uuid;primaryKey"`
	Day           string    `gorm:"type:varchar(8);primaryKey"` // YYYYMMDD, local time
	LastValue     int       `gorm:"not null;default:0"`
}

// User carries the role and supervisor PIN needed by the refund gates.
// Authentication itself is handled upstream; this engine only resolves
// permissions and PIN overrides.
type User struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TenantID uuid.UUID `gorm:"type:uuid;not null;index"`
	Username string    `gorm:"not null"`
	Name     string    `gorm:"not null"`
	Role     string    `gorm:"type:varchar(20);not null"` // cashier | supervisor | admin
	// PINHash is a bcrypt hash of the 4-digit supervisor PIN; nil = no PIN set.
	PINHash *string `gorm:"column:pin_hash"`
	Active  bool    `gorm:"not null;default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
