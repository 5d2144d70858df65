package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Gift card lifecycle.
const (
	GiftCardInactive  = "INACTIVE"
	GiftCardActive    = "ACTIVE"
	GiftCardDepleted  = "DEPLETED"
	GiftCardExpired   = "EXPIRED"
	GiftCardCancelled = "CANCELLED"
)

// Store credit lifecycle.
const (
	StoreCreditActive    = "ACTIVE"
	StoreCreditUsed      = "USED"
	StoreCreditExpired   = "EXPIRED"
	StoreCreditCancelled = "CANCELLED"
)

// Ledger transaction types shared by both instrument kinds.
const (
	TxIssued     = "ISSUED"
	TxActivation = "ACTIVATION"
	TxRedeemed   = "REDEEMED"
	TxExpired    = "EXPIRED"
	TxCancelled  = "CANCELLED"
)

// GiftCard is a prepaid value instrument. CurrentBalance is never negative:
// redemption is a conditional decrement guarded inside the same transaction
// that appends the ledger entry.
type GiftCard struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TenantID       uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_gift_cards_tenant_code"`
	Code           string          `gorm:"type:varchar(32);not null;uniqueIndex:idx_gift_cards_tenant_code"`
	InitialAmount  decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	CurrentBalance decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Status         string          `gorm:"type:varchar(20);not null;default:'INACTIVE'"`
	CustomerID     *uuid.UUID      `gorm:"type:uuid;index"`
	IssuedByUserID *uuid.UUID      `gorm:"type:uuid"`
	ExpiresAt      *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time

	Transactions []InstrumentTransaction `gorm:"foreignKey:GiftCardID"`
}

// StoreCredit is a voucher issued manually or by the refund engine.
type StoreCredit struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TenantID       uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_store_credits_tenant_code"`
	Code           string          `gorm:"type:varchar(32);not null;uniqueIndex:idx_store_credits_tenant_code"`
	InitialAmount  decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	CurrentBalance decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Status         string          `gorm:"type:varchar(20);not null;default:'ACTIVE'"`
	CustomerID     *uuid.UUID      `gorm:"type:uuid;index"`
	IssuedByUserID *uuid.UUID      `gorm:"type:uuid"`
	// OriginSaleID links a refund-issued credit to the refund mirror sale.
	OriginSaleID *uuid.UUID `gorm:"type:uuid;index"`
	Reason       *string
	ExpiresAt    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time

	Transactions []InstrumentTransaction `gorm:"foreignKey:StoreCreditID"`
}

// InstrumentTransaction is one append-only ledger entry. Replaying entries in
// creation order from the initial issued amount must reproduce the instrument's
// CurrentBalance exactly; BalanceAfter is never negative.
type InstrumentTransaction struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	GiftCardID    *uuid.UUID `gorm:"type:uuid;index"`
	StoreCreditID *uuid.UUID `gorm:"type:uuid;index"`
	Type          string     `gorm:"type:varchar(20);not null"`
	// Amount is signed: positive for ISSUED, negative for REDEEMED, zero for
	// status-only entries (ACTIVATION, EXPIRED, CANCELLED).
	Amount       decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	BalanceAfter decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	// SaleID references the sale a redemption paid for.
	SaleID    *uuid.UUID `gorm:"type:uuid;index"`
	Reason    *string
	CreatedAt time.Time
}

func (InstrumentTransaction) TableName() string { return "instrument_transactions" }
