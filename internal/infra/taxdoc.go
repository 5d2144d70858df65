package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// CreditNoteRequest asks the tax-document collaborator to emit a credit note
// against a fiscally invoiced sale.
type CreditNoteRequest struct {
	TenantID           string  `json:"tenant_id"`
	SalesPointRef      string  `json:"sales_point"`
	OriginalInvoiceRef string  `json:"original_invoice"`
	Amount             float64 `json:"amount"`
	RefundSaleID       string  `json:"refund_sale_id"`
}

// CreditNoteResponse carries the emitted document's identifiers.
type CreditNoteResponse struct {
	Success       bool   `json:"success"`
	InvoiceID     string `json:"invoice_id"`
	CAE           string `json:"cae"`
	VoucherNumber int64  `json:"voucher_number"`
	Message       string `json:"message"`
}

// TaxDocEmitter is the collaborator contract. Emission is always best-effort
// from the refund engine's point of view: a failure is logged and retried,
// never rolled back into the refund.
type TaxDocEmitter interface {
	EmitCreditNote(ctx context.Context, req CreditNoteRequest) (*CreditNoteResponse, error)
}

// TaxDocClient delegates credit-note emission to the invoicing service over
// HTTP, keeping tax-authority failures isolated from the settlement core.
type TaxDocClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewTaxDocClient(baseURL string) *TaxDocClient {
	return &TaxDocClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *TaxDocClient) EmitCreditNote(ctx context.Context, req CreditNoteRequest) (*CreditNoteResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("taxdoc: marshal payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/credit-notes", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("taxdoc: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("taxdoc: unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("taxdoc: returned %d", resp.StatusCode)
	}

	var result CreditNoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("taxdoc: decode response: %w", err)
	}
	if !result.Success {
		return nil, fmt.Errorf("taxdoc: emission rejected: %s", result.Message)
	}
	return &result, nil
}
