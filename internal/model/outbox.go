package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Pending redemption states.
const (
	RedemptionPending = "PENDING"
	RedemptionDone    = "DONE"
	RedemptionFailed  = "FAILED"
)

// Instrument kinds referenced by the outbox.
const (
	KindGiftCard    = "GIFT_CARD"
	KindStoreCredit = "STORE_CREDIT"
)

// PendingRedemption is the durable outbox row written inside the sale
// transaction for every instrument tender. The sale commits first; the
// redemption is applied right after commit and retried by the worker until it
// succeeds or exhausts its attempts. Keyed by (sale, instrument) so a retry
// after a crash between commit and redemption is idempotent.
type PendingRedemption struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TenantID       uuid.UUID       `gorm:"type:uuid;not null;index"`
	SaleID         uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_pending_redemptions_sale_code"`
	InstrumentKind string          `gorm:"type:varchar(20);not null"`
	InstrumentCode string          `gorm:"type:varchar(32);not null;uniqueIndex:idx_pending_redemptions_sale_code"`
	Amount         decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Status         string          `gorm:"type:varchar(20);not null;default:'PENDING'"`
	Attempts       int             `gorm:"not null;default:0"`
	NextRetryAt    *time.Time      `gorm:"index"`
	LastError      *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CreditNote tracks fiscal credit-note emission for a refund sale. Emission is
// best-effort: rows stuck in PENDING/ERROR are re-attempted by the retry cron.
type CreditNote struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TenantID     uuid.UUID `gorm:"type:uuid;not null;index"`
	RefundSaleID uuid.UUID `gorm:"type:uuid;not null;index"`
	// OriginalInvoiceRef identifies the fiscal invoice being credited.
	OriginalInvoiceRef string          `gorm:"not null"`
	SalesPointRef      string          `gorm:"not null"`
	Amount             decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Status             string          `gorm:"type:varchar(20);not null;default:'PENDING'"` // PENDING | EMITTED | ERROR
	InvoiceID          *string
	CAE                *string `gorm:"type:varchar(20);column:cae"`
	VoucherNumber      *int64

	RetryCount  int        `gorm:"not null;default:0"`
	NextRetryAt *time.Time `gorm:"index"`
	LastError   *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
