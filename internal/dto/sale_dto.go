package dto

import "github.com/shopspring/decimal"

// SaleItemRequest is one requested line. ProductID may be empty for free-text
// items, in which case Description and UnitPrice are mandatory.
type SaleItemRequest struct {
	ProductID   string          `json:"product_id"`
	Description string          `json:"description"`
	Quantity    int             `json:"quantity" validate:"required"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Discount    decimal.Decimal `json:"discount"`
	TaxRate     *decimal.Decimal `json:"tax_rate"`
}

// PaymentRequest is one tender line.
type PaymentRequest struct {
	Method string          `json:"method" validate:"required"`
	Amount decimal.Decimal `json:"amount" validate:"required"`
	// InstrumentCode identifies the gift card / store credit being redeemed.
	InstrumentCode string `json:"instrument_code"`
	// ExternalReference links the payment to a provider order created earlier.
	ExternalReference string `json:"external_reference"`
	TransactionID     string `json:"transaction_id"`
	CardBrand         string `json:"card_brand"`
	CardLastFour      string `json:"card_last_four"`
	Installments      int    `json:"installments"`
}

type CreateSaleRequest struct {
	BranchID      string           `json:"branch_id" validate:"required,uuid"`
	PointOfSaleID string           `json:"point_of_sale_id" validate:"required,uuid"`
	CustomerID    string           `json:"customer_id" validate:"omitempty,uuid"`
	ReceiptType   string           `json:"receipt_type"`
	Items         []SaleItemRequest `json:"items" validate:"required,min=1,dive"`
	Payments      []PaymentRequest  `json:"payments" validate:"dive"`
	Notes         string            `json:"notes"`
}

type SaleItemResponse struct {
	ID          string          `json:"id"`
	ProductID   *string         `json:"product_id,omitempty"`
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Discount    decimal.Decimal `json:"discount"`
	TaxRate     decimal.Decimal `json:"tax_rate"`
	TaxAmount   decimal.Decimal `json:"tax_amount"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	IsReturn    bool            `json:"is_return"`
}

type PaymentResponse struct {
	ID           string          `json:"id"`
	Method       string          `json:"method"`
	Amount       decimal.Decimal `json:"amount"`
	Status       string          `json:"status"`
	CardBrand    *string         `json:"card_brand,omitempty"`
	CardLastFour *string         `json:"card_last_four,omitempty"`
}

type SaleResponse struct {
	ID          string             `json:"id"`
	SaleNumber  string             `json:"sale_number"`
	ReceiptType string             `json:"receipt_type"`
	Status      string             `json:"status"`
	Subtotal    decimal.Decimal    `json:"subtotal"`
	Discount    decimal.Decimal    `json:"discount"`
	TaxAmount   decimal.Decimal    `json:"tax_amount"`
	Total       decimal.Decimal    `json:"total"`
	Change      decimal.Decimal    `json:"change"`
	Items       []SaleItemResponse `json:"items"`
	Payments    []PaymentResponse  `json:"payments"`
	// StoreCreditCode is set when a negative total produced a store credit.
	StoreCreditCode *string `json:"store_credit_code,omitempty"`
	// RedemptionWarnings list instrument redemptions that failed after the
	// sale committed and were queued for retry.
	RedemptionWarnings []string `json:"redemption_warnings,omitempty"`
	CreatedAt          string   `json:"created_at"`
}

type SaleFilter struct {
	Date   string `form:"date"`
	Status string `form:"status"`
	Page   int    `form:"page"`
	Limit  int    `form:"limit"`
}

type SaleListResponse struct {
	Data  []SaleResponse `json:"data"`
	Total int64          `json:"total"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
}
