package dto

import "github.com/shopspring/decimal"

type IssueInstrumentRequest struct {
	Amount     decimal.Decimal `json:"amount" validate:"required,gt=0"`
	CustomerID string          `json:"customer_id" validate:"omitempty,uuid"`
	ExpiresAt  string          `json:"expires_at"` // RFC 3339, optional
	Reason     string          `json:"reason"`
}

type RedeemRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"required,gt=0"`
}

type CancelInstrumentRequest struct {
	Reason string `json:"reason" validate:"required"`
}

type InstrumentResponse struct {
	Code           string          `json:"code"`
	Status         string          `json:"status"`
	InitialAmount  decimal.Decimal `json:"initial_amount"`
	CurrentBalance decimal.Decimal `json:"current_balance"`
	ExpiresAt      *string         `json:"expires_at,omitempty"`
	CreatedAt      string          `json:"created_at"`
}

type BalanceResponse struct {
	Code      string          `json:"code"`
	Balance   decimal.Decimal `json:"balance"`
	Status    string          `json:"status"`
	IsExpired bool            `json:"is_expired"`
}

type RedeemResponse struct {
	Code       string          `json:"code"`
	NewBalance decimal.Decimal `json:"new_balance"`
	Status     string          `json:"status"`
}

type TransactionResponse struct {
	Type         string          `json:"type"`
	Amount       decimal.Decimal `json:"amount"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	SaleID       *string         `json:"sale_id,omitempty"`
	Reason       *string         `json:"reason,omitempty"`
	CreatedAt    string          `json:"created_at"`
}
