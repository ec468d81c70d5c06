// File: internal/infra/adapters/payment/toss_gateway.go
package payment

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"saas-billing-core/internal/config"
	"saas-billing-core/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*TossGateway)(nil)

// TossGateway implements adapter.PaymentGateway against the Toss Payments
// v1 REST API. All endpoints authenticate with HTTP Basic using the secret
// key as username and an empty password.
type TossGateway struct {
	baseURL   string
	authBasic string
	client    *http.Client
}

func NewTossGateway(cfg *config.TossConfig) (*TossGateway, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("toss secret key empty")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid toss base url: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &TossGateway{
		baseURL:   cfg.BaseURL,
		authBasic: "Basic " + base64.StdEncoding.EncodeToString([]byte(cfg.SecretKey+":")),
		client:    &http.Client{Timeout: timeout},
	}, nil
}

func (t *TossGateway) Name() string { return "toss" }

// tossPaymentResponse is the subset of Toss's payment object the billing core
// consumes.
type tossPaymentResponse struct {
	PaymentKey  string `json:"paymentKey"`
	OrderID     string `json:"orderId"`
	Status      string `json:"status"`
	TotalAmount int64  `json:"totalAmount"`
	Method      string `json:"method"`
	ApprovedAt  string `json:"approvedAt"`
	Receipt     *struct {
		URL string `json:"url"`
	} `json:"receipt"`
	Cancels []struct {
		CancelAmount int64  `json:"cancelAmount"`
		CanceledAt   string `json:"canceledAt"`
	} `json:"cancels"`
}

type tossErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// post performs one round trip and decodes either the success body into out or
// the error body into a GatewayError. Transport errors (including timeouts)
// come back as-is so callers can treat the outcome as unknown.
func (t *TossGateway) post(ctx context.Context, path string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", t.authBasic)

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var te tossErrorResponse
		if err := json.Unmarshal(raw, &te); err != nil || te.Code == "" {
			return fmt.Errorf("toss http %d: %s", resp.StatusCode, string(raw))
		}
		return &adapter.GatewayError{Code: te.Code, Message: te.Message}
	}
	return json.Unmarshal(raw, out)
}

func (t *TossGateway) ConfirmPayment(ctx context.Context, paymentKey, orderID string, amount int64) (*adapter.Receipt, error) {
	payload := map[string]interface{}{
		"paymentKey": paymentKey,
		"orderId":    orderID,
		"amount":     amount,
	}
	var out tossPaymentResponse
	if err := t.post(ctx, "/v1/payments/confirm", payload, &out); err != nil {
		return nil, err
	}
	if out.Status != "DONE" {
		return nil, &adapter.GatewayError{Code: "UNEXPECTED_STATUS", Message: "confirm returned status " + out.Status}
	}
	return receiptFrom(&out), nil
}

func (t *TossGateway) CancelPayment(ctx context.Context, paymentKey, reason string, amount *int64) (*adapter.CancelReceipt, error) {
	payload := map[string]interface{}{
		"cancelReason": reason,
	}
	if amount != nil {
		payload["cancelAmount"] = *amount
	}
	var out tossPaymentResponse
	if err := t.post(ctx, "/v1/payments/"+url.PathEscape(paymentKey)+"/cancel", payload, &out); err != nil {
		return nil, err
	}
	if len(out.Cancels) == 0 {
		return nil, &adapter.GatewayError{Code: "UNEXPECTED_STATUS", Message: "cancel returned no cancel entries"}
	}
	// the provider appends cancels in order; the last one is ours
	last := out.Cancels[len(out.Cancels)-1]
	return &adapter.CancelReceipt{
		PaymentKey:   out.PaymentKey,
		CancelAmount: last.CancelAmount,
		CanceledAt:   parseTossTime(last.CanceledAt),
	}, nil
}

func (t *TossGateway) IssueBillingKey(ctx context.Context, authKey, customerKey string) (*adapter.BillingKeyInfo, error) {
	payload := map[string]interface{}{
		"authKey":     authKey,
		"customerKey": customerKey,
	}
	var out struct {
		BillingKey  string `json:"billingKey"`
		CustomerKey string `json:"customerKey"`
		CardCompany string `json:"cardCompany"`
		CardNumber  string `json:"cardNumber"`
		Card        *struct {
			CardType string `json:"cardType"`
		} `json:"card"`
	}
	if err := t.post(ctx, "/v1/billing/authorizations/issue", payload, &out); err != nil {
		return nil, err
	}
	if out.BillingKey == "" {
		return nil, &adapter.GatewayError{Code: "UNEXPECTED_STATUS", Message: "issue returned empty billing key"}
	}
	info := &adapter.BillingKeyInfo{
		BillingKey:  out.BillingKey,
		CustomerKey: out.CustomerKey,
		CardCompany: out.CardCompany,
		CardNumber:  out.CardNumber,
	}
	if out.Card != nil {
		info.CardType = out.Card.CardType
	}
	return info, nil
}

func (t *TossGateway) ChargeBilling(ctx context.Context, billingKey, customerKey string, amount int64, orderID, orderName string) (*adapter.Receipt, error) {
	payload := map[string]interface{}{
		"customerKey": customerKey,
		"amount":      amount,
		"orderId":     orderID,
		"orderName":   orderName,
	}
	var out tossPaymentResponse
	if err := t.post(ctx, "/v1/billing/"+url.PathEscape(billingKey), payload, &out); err != nil {
		return nil, err
	}
	if out.Status != "DONE" {
		return nil, &adapter.GatewayError{Code: "UNEXPECTED_STATUS", Message: "billing charge returned status " + out.Status}
	}
	return receiptFrom(&out), nil
}

func receiptFrom(p *tossPaymentResponse) *adapter.Receipt {
	r := &adapter.Receipt{
		PaymentKey:  p.PaymentKey,
		OrderID:     p.OrderID,
		TotalAmount: p.TotalAmount,
		Method:      p.Method,
		ApprovedAt:  parseTossTime(p.ApprovedAt),
	}
	if p.Receipt != nil {
		r.ReceiptURL = p.Receipt.URL
	}
	return r
}

// parseTossTime handles Toss's ISO8601-with-offset timestamps. A zero time on
// parse failure is acceptable; approval times are informational.
func parseTossTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}
