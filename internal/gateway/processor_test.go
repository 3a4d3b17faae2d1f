package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	customError "github.com/lendpeer/escrow-engine/pkg/errors"
)

func newTestProcessor(baseURL string) *HTTPProcessor {
	return &HTTPProcessor{
		baseURL:       baseURL,
		apiKey:        "test-key",
		webhookSecret: "test-secret",
		client:        &http.Client{Timeout: 5 * time.Second},
	}
}

func signPayload(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestCharge_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/charges", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req ChargeRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "tok_123", req.Token)

		json.NewEncoder(w).Encode(Result{ProviderRef: "ch_abc", Status: "succeeded"})
	}))
	defer server.Close()

	p := newTestProcessor(server.URL)
	result, err := p.Charge(context.Background(), &ChargeRequest{
		Token:     "tok_123",
		Amount:    decimal.NewFromInt(100),
		Currency:  "USD",
		Reference: "TXN-20260901-0000000001",
	})

	assert.NoError(t, err)
	assert.Equal(t, "ch_abc", result.ProviderRef)
	assert.Equal(t, "succeeded", result.Status)
}

func TestCharge_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "insufficient funds on card", http.StatusPaymentRequired)
	}))
	defer server.Close()

	p := newTestProcessor(server.URL)
	_, err := p.Charge(context.Background(), &ChargeRequest{
		Token:    "tok_123",
		Amount:   decimal.NewFromInt(100),
		Currency: "USD",
	})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "402")
}

func TestPayout_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payouts", r.URL.Path)
		json.NewEncoder(w).Encode(Result{ProviderRef: "po_xyz", Status: "pending"})
	}))
	defer server.Close()

	p := newTestProcessor(server.URL)
	result, err := p.Payout(context.Background(), &PayoutInstruction{
		Method:        "bank_transfer",
		Amount:        decimal.NewFromInt(198),
		Currency:      "USD",
		RecipientName: "Jane Lender",
		Reference:     "PAY-20260901-0000000001",
	})

	assert.NoError(t, err)
	assert.Equal(t, "po_xyz", result.ProviderRef)
}

func TestHealthCheck(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()

	assert.NoError(t, newTestProcessor(healthy.URL).HealthCheck(context.Background()))

	unhealthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer unhealthy.Close()

	assert.Error(t, newTestProcessor(unhealthy.URL).HealthCheck(context.Background()))
}

func TestParseWebhookEvent_ValidSignature(t *testing.T) {
	p := newTestProcessor("http://unused")

	payload := []byte(`{"id":"evt_1","type":"charge.succeeded","reference":"TXN-20260901-0000000001","provider_ref":"ch_abc","status":"succeeded"}`)
	event, err := p.ParseWebhookEvent(payload, signPayload("test-secret", payload))

	assert.NoError(t, err)
	assert.Equal(t, "evt_1", event.ID)
	assert.Equal(t, "TXN-20260901-0000000001", event.Reference)
	assert.Equal(t, "succeeded", event.Status)
}

func TestParseWebhookEvent_InvalidSignature(t *testing.T) {
	p := newTestProcessor("http://unused")

	payload := []byte(`{"id":"evt_1","status":"succeeded"}`)
	_, err := p.ParseWebhookEvent(payload, signPayload("wrong-secret", payload))

	assert.ErrorIs(t, err, customError.ErrWebhookSignature)
}

func TestParseWebhookEvent_TamperedPayload(t *testing.T) {
	p := newTestProcessor("http://unused")

	payload := []byte(`{"id":"evt_1","status":"succeeded"}`)
	signature := signPayload("test-secret", payload)

	tampered := []byte(`{"id":"evt_1","status":"failed"}`)
	_, err := p.ParseWebhookEvent(tampered, signature)

	assert.ErrorIs(t, err, customError.ErrWebhookSignature)
}
