package dto

import "github.com/shopspring/decimal"

// Refund types.
const (
	RefundStoreCredit = "STORE_CREDIT"
	RefundCash        = "CASH"
	RefundExchange    = "EXCHANGE"
)

type RefundItemRequest struct {
	SaleItemID string `json:"sale_item_id" validate:"required,uuid"`
	Quantity   int    `json:"quantity" validate:"required,gt=0"`
	Reason     string `json:"reason"`
}

type RefundRequest struct {
	OriginalSaleID string              `json:"original_sale_id" validate:"required,uuid"`
	Items          []RefundItemRequest `json:"items" validate:"required,min=1,dive"`
	RefundType     string              `json:"refund_type" validate:"required,oneof=STORE_CREDIT CASH EXCHANGE"`
	// SupervisorPIN authorizes the refund when the caller lacks the permission.
	SupervisorPIN string `json:"supervisor_pin" validate:"omitempty,len=4,numeric"`
	EmitCreditNote bool  `json:"emit_credit_note"`
}

// RefundResponse reports the atomic outcome plus the best-effort extensions.
// CreditNoteError / StoreCreditError carry partial-success detail: the refund
// itself is committed even when those post-commit steps failed.
type RefundResponse struct {
	RefundSale   SaleResponse    `json:"refund_sale"`
	RefundTotal  decimal.Decimal `json:"refund_total"`
	FullRefund   bool            `json:"full_refund"`
	CashReturned decimal.Decimal `json:"cash_returned"`

	StoreCreditCode  *string `json:"store_credit_code,omitempty"`
	StoreCreditError *string `json:"store_credit_error,omitempty"`
	CreditNoteID     *string `json:"credit_note_id,omitempty"`
	CreditNoteError  *string `json:"credit_note_error,omitempty"`
}
