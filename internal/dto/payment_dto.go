package dto

import "github.com/shopspring/decimal"

type CreateOrderRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"required,gt=0"`
	// ExternalReference is the caller-chosen idempotency key, e.g.
	// "POS-{branch}-{pos}-{timestamp}".
	ExternalReference string `json:"external_reference" validate:"required"`
	DeviceID          string `json:"device_id"`
	Description       string `json:"description"`
}

type OrderResponse struct {
	ID                string          `json:"id"`
	OrderID           *string         `json:"order_id,omitempty"`
	ExternalReference string          `json:"external_reference"`
	Status            string          `json:"status"`
	Amount            decimal.Decimal `json:"amount"`
	SaleID            *string         `json:"sale_id,omitempty"`
	CardBrand         *string         `json:"card_brand,omitempty"`
	CardLastFour      *string         `json:"card_last_four,omitempty"`
	Installments      int             `json:"installments"`
	CreatedAt         string          `json:"created_at"`
}

// ApplyOrphanOrderRequest binds an unclaimed PROCESSED order to a new sale
// built from the caller's items.
type ApplyOrphanOrderRequest struct {
	BranchID      string            `json:"branch_id" validate:"required,uuid"`
	PointOfSaleID string            `json:"point_of_sale_id" validate:"required,uuid"`
	ReceiptType   string            `json:"receipt_type"`
	Items         []SaleItemRequest `json:"items" validate:"required,min=1,dive"`
}
