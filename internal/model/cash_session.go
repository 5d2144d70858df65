package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CashSession lifecycle. Only an OPEN session accumulates sale totals.
const (
	SessionOpen      = "OPEN"
	SessionSuspended = "SUSPENDED"
	SessionCounting  = "COUNTING"
	SessionClosed    = "CLOSED"
)

// CashSession tracks per-cashier/per-POS running totals by tender type.
// Totals are mutated via atomic SQL increments, never read-modify-write.
type CashSession struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TenantID      uuid.UUID `gorm:"type:uuid;not null;index"`
	PointOfSaleID uuid.UUID `gorm:"type:uuid;not null;index"`
	UserID        uuid.UUID `gorm:"type:uuid;not null;index"`
	Status        string    `gorm:"type:varchar(20);not null;default:'OPEN'"`

	OpeningAmount decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	TotalCash     decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	TotalCard     decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	TotalDebit    decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	TotalQr       decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	TotalTransfer decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	TotalOther    decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`

	SalesCount       int             `gorm:"not null;default:0"`
	SalesTotal       decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	WithdrawalsTotal decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`

	// Close-time reconciliation: declared vs expected.
	ExpectedAmount *decimal.Decimal `gorm:"type:decimal(12,2)"`
	DeclaredAmount *decimal.Decimal `gorm:"type:decimal(12,2)"`
	Difference     *decimal.Decimal `gorm:"type:decimal(12,2)"`
	Notes          *string

	OpenedAt time.Time
	ClosedAt *time.Time

	Movements []CashMovement `gorm:"foreignKey:CashSessionID"`
}

// Cash movement types.
const (
	MovementWithdrawal = "WITHDRAWAL"
	MovementDeposit    = "DEPOSIT"
	MovementAdjustment = "ADJUSTMENT"
)

// CashMovement is an immutable ledger entry against a CashSession.
// Entries are never modified or deleted; corrections create inverse entries.
type CashMovement struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CashSessionID uuid.UUID       `gorm:"type:uuid;not null;index"`
	Type          string          `gorm:"type:varchar(20);not null"`
	Amount        decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Description   string          `gorm:"not null"`
	// ReferenceID links to the originating sale (e.g. a cash refund withdrawal).
	ReferenceID        *uuid.UUID `gorm:"type:uuid"`
	RequiresAuth       bool       `gorm:"not null;default:false"`
	AuthorizedByUserID *uuid.UUID `gorm:"type:uuid"`
	CreatedAt          time.Time
}
