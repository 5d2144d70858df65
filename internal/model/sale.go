package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Sale status values. A refund creates a mirror Sale and flips the original
// to SaleRefunded or SalePartialRefund — completed sales are never rewritten.
const (
	SaleCompleted     = "COMPLETED"
	SaleCancelled     = "CANCELLED"
	SaleRefunded      = "REFUNDED"
	SalePartialRefund = "PARTIAL_REFUND"
)

// Receipt types. FACTURA_* become NOTA_DE_CREDITO_* on refund mirrors;
// NOTA_DE_CREDITO_X is the provisional type for never-invoiced originals.
const (
	ReceiptFacturaA      = "FACTURA_A"
	ReceiptFacturaB      = "FACTURA_B"
	ReceiptFacturaC      = "FACTURA_C"
	ReceiptTicket        = "TICKET"
	ReceiptCreditNoteA   = "NOTA_DE_CREDITO_A"
	ReceiptCreditNoteB   = "NOTA_DE_CREDITO_B"
	ReceiptCreditNoteC   = "NOTA_DE_CREDITO_C"
	ReceiptCreditNoteProv = "NOTA_DE_CREDITO_X"
)

// Sale is the aggregate root of the settlement engine. Items and Payments are
// created together with the header in one transaction.
type Sale struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TenantID      uuid.UUID `gorm:"type:uuid;not null;index:idx_sales_tenant_number"`
	BranchID      uuid.UUID `gorm:"type:uuid;not null;index"`
	PointOfSaleID uuid.UUID `gorm:"type:uuid;not null;index"`
	CashierID     uuid.UUID `gorm:"type:uuid;not null"`
	CustomerID    *uuid.UUID `gorm:"type:uuid;index"`
	CashSessionID *uuid.UUID `gorm:"type:uuid;index"`
	// SaleNumber: {branchCode}-{posCode}-{YYYYMMDD}-{seq}; refund mirrors prefix "DEV-"
	SaleNumber  string          `gorm:"index:idx_sales_tenant_number;not null"`
	ReceiptType string          `gorm:"type:varchar(30);not null;default:'TICKET'"`
	Status      string          `gorm:"type:varchar(20);not null;default:'COMPLETED'"`
	Subtotal    decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Discount    decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	TaxAmount   decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	Total       decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	// OriginalSaleID links a refund mirror back to the sale it reverses.
	OriginalSaleID *uuid.UUID `gorm:"type:uuid;index"`
	Notes          *string
	CreatedAt      time.Time
	UpdatedAt      time.Time

	Items    []SaleItem `gorm:"foreignKey:SaleID"`
	Payments []Payment  `gorm:"foreignKey:SaleID"`
}

// SaleItem is one line of a sale. Quantity is signed: negative rows are
// refund mirrors (IsReturn=true) or ad-hoc returns within a regular sale.
type SaleItem struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SaleID    uuid.UUID  `gorm:"type:uuid;not null;index"`
	ProductID *uuid.UUID `gorm:"type:uuid;index"` // nil = free-text item
	Description string   `gorm:"not null"`
	Quantity    int      `gorm:"not null"`
	// UnitPrice is tax-inclusive; NetPrice and TaxAmount are derived from it.
	UnitPrice decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	NetPrice  decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Discount  decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	TaxRate   decimal.Decimal `gorm:"type:decimal(5,2);not null;default:21"`
	TaxAmount decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	Subtotal  decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	IsReturn  bool            `gorm:"not null;default:false"`
	// OriginalItemID points a refund mirror item at the item it refunds.
	OriginalItemID *uuid.UUID `gorm:"type:uuid;index"`
	CreatedAt      time.Time

	// RefundItems are the mirror items pointing back at this one; their summed
	// absolute quantities drive the over-refund check.
	RefundItems []SaleItem `gorm:"foreignKey:OriginalItemID"`
}

// Payment methods accepted at the point of sale.
const (
	PayCash       = "CASH"
	PayCard       = "CARD"
	PayDebit      = "DEBIT"
	PayQR         = "QR"
	PayTransfer   = "TRANSFER"
	PayCredit     = "CREDIT"
	PayVoucher    = "VOUCHER"
	PayGiftCard   = "GIFT_CARD"
	PayPoints     = "POINTS"
	PayOther      = "OTHER"
)

const (
	PaymentCompleted = "COMPLETED"
	PaymentCancelled = "CANCELLED"
)

// Payment is one tender line of a sale, owned exclusively by it.
type Payment struct {
	ID     uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SaleID uuid.UUID       `gorm:"type:uuid;not null;index"`
	Method string          `gorm:"type:varchar(20);not null"`
	Amount decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Status string          `gorm:"type:varchar(20);not null;default:'COMPLETED'"`
	// Instrument code for GIFT_CARD / VOUCHER tenders.
	InstrumentCode *string `gorm:"type:varchar(32)"`
	// External provider metadata (terminal / QR payments).
	TransactionID     *string `gorm:"index"`
	ExternalReference *string `gorm:"index"`
	CardBrand         *string `gorm:"type:varchar(30)"`
	CardLastFour      *string `gorm:"type:varchar(4)"`
	Installments      int     `gorm:"not null;default:1"`
	ProviderFee       *decimal.Decimal `gorm:"type:decimal(12,2)"`
	NetReceived       *decimal.Decimal `gorm:"type:decimal(12,2)"`
	CreatedAt         time.Time
}
