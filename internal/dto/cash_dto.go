package dto

import "github.com/shopspring/decimal"

type OpenSessionRequest struct {
	PointOfSaleID string          `json:"point_of_sale_id" validate:"required,uuid"`
	OpeningAmount decimal.Decimal `json:"opening_amount" validate:"required"`
}

type CloseSessionRequest struct {
	DeclaredAmount decimal.Decimal `json:"declared_amount" validate:"required"`
	Notes          string          `json:"notes"`
}

type RegisterMovementRequest struct {
	Type        string          `json:"type" validate:"required,oneof=WITHDRAWAL DEPOSIT ADJUSTMENT"`
	Amount      decimal.Decimal `json:"amount" validate:"required,gt=0"`
	Description string          `json:"description" validate:"required"`
	// SupervisorPIN authorizes withdrawals above the cashier's own limit.
	SupervisorPIN string `json:"supervisor_pin" validate:"omitempty,len=4,numeric"`
}

type MovementResponse struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	CreatedAt   string          `json:"created_at"`
}

type SessionResponse struct {
	ID               string          `json:"id"`
	PointOfSaleID    string          `json:"point_of_sale_id"`
	Status           string          `json:"status"`
	OpeningAmount    decimal.Decimal `json:"opening_amount"`
	TotalCash        decimal.Decimal `json:"total_cash"`
	TotalCard        decimal.Decimal `json:"total_card"`
	TotalDebit       decimal.Decimal `json:"total_debit"`
	TotalQr          decimal.Decimal `json:"total_qr"`
	TotalTransfer    decimal.Decimal `json:"total_transfer"`
	TotalOther       decimal.Decimal `json:"total_other"`
	SalesCount       int             `json:"sales_count"`
	SalesTotal       decimal.Decimal `json:"sales_total"`
	WithdrawalsTotal decimal.Decimal `json:"withdrawals_total"`
	ExpectedAmount   *decimal.Decimal `json:"expected_amount,omitempty"`
	DeclaredAmount   *decimal.Decimal `json:"declared_amount,omitempty"`
	Difference       *decimal.Decimal `json:"difference,omitempty"`
	OpenedAt         string           `json:"opened_at"`
	ClosedAt         *string          `json:"closed_at,omitempty"`
}
