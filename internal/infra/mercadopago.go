package infra

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentProvider is the narrow contract the settlement engine consumes from
// the card/QR terminal provider. The production implementation talks to the
// Mercado Pago orders API; tests substitute a stub.
type PaymentProvider interface {
	CreateOrder(ctx context.Context, req MPOrderRequest) (*MPOrder, error)
	GetOrder(ctx context.Context, orderID string) (*MPOrder, error)
	CancelOrder(ctx context.Context, orderID string) error
	GetPayment(ctx context.Context, paymentID string) (*MPPayment, error)
}

// MPOrderRequest creates a provider-side order. ExternalReference doubles as
// the idempotency key.
type MPOrderRequest struct {
	Amount            decimal.Decimal `json:"total_amount"`
	ExternalReference string          `json:"external_reference"`
	DeviceID          string          `json:"device_id,omitempty"`
	Description       string          `json:"description,omitempty"`
}

// MPOrder mirrors the provider's order resource.
type MPOrder struct {
	ID                string      `json:"id"`
	Status            string      `json:"status"`
	ExternalReference string      `json:"external_reference"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	Payments          []MPPayment `json:"payments"`
}

// MPPayment mirrors the provider's payment resource.
type MPPayment struct {
	ID                string          `json:"id"`
	Status            string          `json:"status"`
	StatusDetail      string          `json:"status_detail"`
	ExternalReference string          `json:"external_reference"`
	TransactionAmount decimal.Decimal `json:"transaction_amount"`
	FeeAmount         decimal.Decimal `json:"fee_amount"`
	NetReceivedAmount decimal.Decimal `json:"net_received_amount"`
	CardBrand         string          `json:"payment_method_id"`
	CardLastFour      string          `json:"last_four_digits"`
	Installments      int             `json:"installments"`
	CollectorID       int64           `json:"collector_id"`
}

// ErrOrderOnDevice is reported when the provider refuses to cancel an order
// that already reached the physical terminal.
var ErrOrderOnDevice = fmt.Errorf("mercadopago: order already taken by the terminal device")

// MercadoPagoClient is the HTTP implementation of PaymentProvider.
type MercadoPagoClient struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
}

func NewMercadoPagoClient(baseURL, accessToken string) *MercadoPagoClient {
	return &MercadoPagoClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		accessToken: accessToken,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *MercadoPagoClient) do(ctx context.Context, method, path string, body, out interface{}, idempotencyKey string) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("mercadopago: marshal: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("mercadopago: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	if idempotencyKey != "" {
		req.Header.Set("X-Idempotency-Key", idempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("mercadopago: unreachable: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusConflict:
		return ErrOrderOnDevice
	case resp.StatusCode >= 400:
		return fmt.Errorf("mercadopago: %s %s returned %d", method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("mercadopago: decode response: %w", err)
		}
	}
	return nil
}

func (c *MercadoPagoClient) CreateOrder(ctx context.Context, req MPOrderRequest) (*MPOrder, error) {
	var order MPOrder
	if err := c.do(ctx, http.MethodPost, "/v1/orders", req, &order, req.ExternalReference); err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *MercadoPagoClient) GetOrder(ctx context.Context, orderID string) (*MPOrder, error) {
	var order MPOrder
	if err := c.do(ctx, http.MethodGet, "/v1/orders/"+orderID, nil, &order, ""); err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *MercadoPagoClient) CancelOrder(ctx context.Context, orderID string) error {
	return c.do(ctx, http.MethodPost, "/v1/orders/"+orderID+"/cancel", nil, nil, "")
}

func (c *MercadoPagoClient) GetPayment(ctx context.Context, paymentID string) (*MPPayment, error) {
	var payment MPPayment
	if err := c.do(ctx, http.MethodGet, "/v1/payments/"+paymentID, nil, &payment, ""); err != nil {
		return nil, err
	}
	return &payment, nil
}

// ── Webhook payloads ─────────────────────────────────────────────────────────

// Webhook event topics after normalization.
const (
	WebhookTopicOrder   = "order"
	WebhookTopicPayment = "payment"
	WebhookTopicUnknown = "unknown"
)

// webhookEnvelope is the union of the payload shapes the provider has shipped
// across webhook schema versions. The event id has appeared under data.id,
// resource and a top-level id; type under type, topic and action.
type webhookEnvelope struct {
	Type   string `json:"type"`
	Topic  string `json:"topic"`
	Action string `json:"action"`
	ID     json.Number `json:"id"`
	Data   struct {
		ID json.Number `json:"id"`
	} `json:"data"`
	Resource string `json:"resource"`
	UserID   json.Number `json:"user_id"`
}

// WebhookEvent is the normalized form handed to the reconciliation service.
type WebhookEvent struct {
	Topic      string
	DataID     string
	ProviderUserID string
}

// ParseWebhookEvent decodes a provider webhook defensively: it normalizes the
// topic and extracts the event id from whichever key this schema version used.
func ParseWebhookEvent(body []byte) (WebhookEvent, error) {
	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return WebhookEvent{}, fmt.Errorf("webhook: malformed payload: %w", err)
	}

	ev := WebhookEvent{Topic: WebhookTopicUnknown, ProviderUserID: env.UserID.String()}

	rawTopic := env.Type
	if rawTopic == "" {
		rawTopic = env.Topic
	}
	if rawTopic == "" {
		rawTopic = env.Action
	}
	switch {
	case strings.Contains(rawTopic, "order"):
		ev.Topic = WebhookTopicOrder
	case strings.Contains(rawTopic, "payment"):
		ev.Topic = WebhookTopicPayment
	}

	switch {
	case env.Data.ID.String() != "":
		ev.DataID = env.Data.ID.String()
	case env.Resource != "":
		// Older schema: "resource" is a URL; the id is its last segment.
		parts := strings.Split(strings.TrimRight(env.Resource, "/"), "/")
		ev.DataID = parts[len(parts)-1]
	case env.ID.String() != "":
		ev.DataID = env.ID.String()
	}

	if ev.DataID == "" {
		return ev, fmt.Errorf("webhook: no event id in payload")
	}
	return ev, nil
}

// ── Signature validation ─────────────────────────────────────────────────────

// ValidateWebhookSignature checks the provider's HMAC signature header
// (x-signature: "ts=...,v1=..."). The signed manifest is
// "id:{dataId};request-id:{xRequestId};ts:{ts};". An empty secret means
// validation is explicitly disabled and the call reports ok.
func ValidateWebhookSignature(secret, signatureHeader, xRequestID, dataID string) bool {
	if secret == "" {
		return true
	}
	if signatureHeader == "" {
		return false
	}

	var ts, v1 string
	for _, part := range strings.Split(signatureHeader, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "ts":
			ts = kv[1]
		case "v1":
			v1 = kv[1]
		}
	}
	if ts == "" || v1 == "" {
		return false
	}

	manifest := fmt.Sprintf("id:%s;request-id:%s;ts:%s;", dataID, xRequestID, ts)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(manifest))
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(v1))
}
