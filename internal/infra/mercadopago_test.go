package infra

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWebhookEventSchemaVariants(t *testing.T) {
	cases := []struct {
		name      string
		body      string
		wantTopic string
		wantID    string
	}{
		{
			name:      "current schema with type and data.id",
			body:      `{"type":"payment","data":{"id":"12345"}}`,
			wantTopic: WebhookTopicPayment,
			wantID:    "12345",
		},
		{
			name:      "numeric data.id",
			body:      `{"type":"payment","data":{"id":12345}}`,
			wantTopic: WebhookTopicPayment,
			wantID:    "12345",
		},
		{
			name:      "action carries the topic",
			body:      `{"action":"payment.created","data":{"id":"9"}}`,
			wantTopic: WebhookTopicPayment,
			wantID:    "9",
		},
		{
			name:      "order topic",
			body:      `{"type":"order","data":{"id":"ord-1"}}`,
			wantTopic: WebhookTopicOrder,
			wantID:    "ord-1",
		},
		{
			name:      "legacy resource URL",
			body:      `{"topic":"payment","resource":"https://api.mercadopago.com/v1/payments/67890"}`,
			wantTopic: WebhookTopicPayment,
			wantID:    "67890",
		},
		{
			name:      "resource URL with trailing slash",
			body:      `{"topic":"merchant_order","resource":"https://api.mercadopago.com/merchant_orders/555/"}`,
			wantTopic: WebhookTopicOrder,
			wantID:    "555",
		},
		{
			name:      "top-level id fallback",
			body:      `{"topic":"payment","id":4242}`,
			wantTopic: WebhookTopicPayment,
			wantID:    "4242",
		},
		{
			name:      "unknown topic still yields the id",
			body:      `{"type":"test","data":{"id":"1"}}`,
			wantTopic: WebhookTopicUnknown,
			wantID:    "1",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := ParseWebhookEvent([]byte(tc.body))
			require.NoError(t, err)
			assert.Equal(t, tc.wantTopic, ev.Topic)
			assert.Equal(t, tc.wantID, ev.DataID)
		})
	}
}

func TestParseWebhookEventErrors(t *testing.T) {
	_, err := ParseWebhookEvent([]byte("{broken"))
	assert.Error(t, err)

	_, err = ParseWebhookEvent([]byte(`{"type":"payment"}`))
	assert.Error(t, err, "a payload without any event id is unusable")
}

func signManifest(secret, dataID, requestID, ts string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "id:%s;request-id:%s;ts:%s;", dataID, requestID, ts)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestValidateWebhookSignature(t *testing.T) {
	const (
		secret    = "wh-secret"
		dataID    = "12345"
		requestID = "req-abc"
		ts        = "1700000000"
	)
	v1 := signManifest(secret, dataID, requestID, ts)
	header := fmt.Sprintf("ts=%s,v1=%s", ts, v1)

	assert.True(t, ValidateWebhookSignature(secret, header, requestID, dataID))
	assert.True(t, ValidateWebhookSignature(secret, fmt.Sprintf("ts=%s, v1=%s", ts, v1), requestID, dataID),
		"whitespace between parts is tolerated")

	assert.False(t, ValidateWebhookSignature(secret, header, "other-request", dataID))
	assert.False(t, ValidateWebhookSignature(secret, header, requestID, "99999"))
	assert.False(t, ValidateWebhookSignature(secret, fmt.Sprintf("ts=%s,v1=deadbeef", ts), requestID, dataID))
	assert.False(t, ValidateWebhookSignature(secret, "", requestID, dataID))
	assert.False(t, ValidateWebhookSignature(secret, "v1="+v1, requestID, dataID), "missing ts")

	// Empty secret disables validation explicitly.
	assert.True(t, ValidateWebhookSignature("", "garbage", requestID, dataID))
}
