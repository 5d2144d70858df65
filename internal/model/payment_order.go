package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MercadoPagoOrder status state machine: PENDING → {PROCESSED, CANCELED,
// FAILED, EXPIRED}. Terminal states are final; late webhooks re-reporting a
// terminal state are ignored idempotently.
const (
	OrderPending   = "PENDING"
	OrderProcessed = "PROCESSED"
	OrderCanceled  = "CANCELED"
	OrderFailed    = "FAILED"
	OrderExpired   = "EXPIRED"
)

// MercadoPagoOrder mirrors a provider-side payment order. SaleID stays nil
// while the order is an orphan; claiming it is a conditional update so exactly
// one sale wins under concurrency.
type MercadoPagoOrder struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TenantID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_mp_orders_tenant_ref"`
	// OrderID is the provider's id; ExternalReference is our idempotency key.
	OrderID           *string `gorm:"index"`
	ExternalReference string  `gorm:"not null;uniqueIndex:idx_mp_orders_tenant_ref"`
	Status            string  `gorm:"type:varchar(20);not null;default:'PENDING'"`
	Amount            decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Description       *string

	SaleID *uuid.UUID `gorm:"type:uuid;index"`

	// Payment metadata persisted from polling / webhook confirmation.
	PaymentID    *string `gorm:"index"`
	CardBrand    *string `gorm:"type:varchar(30)"`
	CardLastFour *string `gorm:"type:varchar(4)"`
	Installments int     `gorm:"not null;default:1"`

	DeviceID  *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (MercadoPagoOrder) TableName() string { return "mercado_pago_orders" }

// TerminalOrderStatus reports whether a status admits no further transitions.
func TerminalOrderStatus(status string) bool {
	switch status {
	case OrderProcessed, OrderCanceled, OrderFailed, OrderExpired:
		return true
	}
	return false
}
