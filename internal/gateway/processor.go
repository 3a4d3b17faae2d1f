package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/lendpeer/escrow-engine/internal/config"
	customError "github.com/lendpeer/escrow-engine/pkg/errors"
)

// ChargeRequest asks the processor to charge a tokenized instrument.
type ChargeRequest struct {
	Token       string          `json:"token"`
	CustomerID  string          `json:"customer_id,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Description string          `json:"description,omitempty"`
	Reference   string          `json:"reference"`
}

// PayoutInstruction asks the processor to push funds to a recipient.
type PayoutInstruction struct {
	Method         string          `json:"method"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	RecipientName  string          `json:"recipient_name"`
	RecipientEmail string          `json:"recipient_email"`
	PaymentDetails string          `json:"payment_details,omitempty"`
	Reference      string          `json:"reference"`
}

// Result is the processor's acknowledgement of a charge, refund or payout.
type Result struct {
	ProviderRef string            `json:"provider_ref"`
	Status      string            `json:"status"`
	Raw         map[string]string `json:"raw,omitempty"`
}

// WebhookEvent is a parsed, signature-verified processor event.
type WebhookEvent struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Reference   string `json:"reference"`
	ProviderRef string `json:"provider_ref"`
	Status      string `json:"status"`
	Reason      string `json:"reason,omitempty"`
}

// PaymentProcessor is the narrow boundary to the external payment rails.
// Implementations may be slow or unavailable; callers must never hold a
// database transaction open across these calls unless explicitly intended.
type PaymentProcessor interface {
	Charge(ctx context.Context, req *ChargeRequest) (*Result, error)
	Refund(ctx context.Context, providerRef string, amount decimal.Decimal, currency string) (*Result, error)
	Payout(ctx context.Context, inst *PayoutInstruction) (*Result, error)
	ParseWebhookEvent(payload []byte, signature string) (*WebhookEvent, error)
	HealthCheck(ctx context.Context) error
}

// HTTPProcessor talks to the processor's REST API.
type HTTPProcessor struct {
	baseURL       string
	apiKey        string
	webhookSecret string
	client        *http.Client
}

func NewHTTPProcessor(cfg *config.Config) *HTTPProcessor {
	return &HTTPProcessor{
		baseURL:       cfg.Processor.BaseURL,
		apiKey:        cfg.Processor.APIKey,
		webhookSecret: cfg.Processor.WebhookSecret,
		client: &http.Client{
			Timeout: cfg.Processor.Timeout,
		},
	}
}

func (p *HTTPProcessor) Charge(ctx context.Context, req *ChargeRequest) (*Result, error) {
	return p.post(ctx, "/v1/charges", req)
}

func (p *HTTPProcessor) Refund(ctx context.Context, providerRef string, amount decimal.Decimal, currency string) (*Result, error) {
	body := map[string]interface{}{
		"provider_ref": providerRef,
		"amount":       amount,
		"currency":     currency,
	}
	return p.post(ctx, "/v1/refunds", body)
}

func (p *HTTPProcessor) Payout(ctx context.Context, inst *PayoutInstruction) (*Result, error) {
	return p.post(ctx, "/v1/payouts", inst)
}

// ParseWebhookEvent verifies the HMAC-SHA256 signature over the raw payload
// before decoding it.
func (p *HTTPProcessor) ParseWebhookEvent(payload []byte, signature string) (*WebhookEvent, error) {
	mac := hmac.New(sha256.New, []byte(p.webhookSecret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return nil, customError.ErrWebhookSignature
	}

	var event WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("failed to decode webhook payload: %w", err)
	}

	return &event, nil
}

func (p *HTTPProcessor) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v1/health", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("processor health check returned %d", resp.StatusCode)
	}

	return nil
}

func (p *HTTPProcessor) post(ctx context.Context, path string, body interface{}) (*Result, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("processor returned %d: %s", resp.StatusCode, raw)
	}

	var result Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &result, nil
}
