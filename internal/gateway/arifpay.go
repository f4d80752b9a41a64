// Package gateway is the outbound Arifpay client. The gateway is treated as
// a black box: we create checkout sessions, request Telebirr B2C transfers,
// and later receive the payment outcome on the webhook endpoint.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"tenapay/internal/config"

	"github.com/shopspring/decimal"
)

type Client struct {
	cfg        *config.GatewayConfig
	httpClient *http.Client
}

func NewClient(cfg *config.GatewayConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type CheckoutItem struct {
	Name     string          `json:"name,omitempty"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity,omitempty"`
}

type CheckoutRequest struct {
	Phone          string
	Email          string
	Nonce          string
	Items          []CheckoutItem
	Lang           string
	PaymentMethods []string
	TotalAmount    decimal.Decimal
}

type CheckoutSession struct {
	SessionID   string
	CheckoutURL string
}

// CreateCheckout opens a hosted checkout session. The gateway calls back on
// the configured notify URL once the member completes payment.
func (c *Client) CreateCheckout(ctx context.Context, req *CheckoutRequest) (*CheckoutSession, error) {
	expireDate := time.Now().Add(20 * time.Minute).UTC().Format(time.RFC3339)

	payload := map[string]interface{}{
		"merchant_id":    c.cfg.MerchantID,
		"cancelUrl":      c.cfg.CancelURL,
		"successUrl":     c.cfg.SuccessURL,
		"errorUrl":       c.cfg.ErrorURL,
		"notifyUrl":      c.cfg.NotifyURL,
		"phone":          req.Phone,
		"email":          req.Email,
		"nonce":          req.Nonce,
		"paymentMethods": req.PaymentMethods,
		"expireDate":     expireDate,
		"items":          req.Items,
		"lang":           req.Lang,
		"beneficiaries": []map[string]interface{}{
			{
				"accountNumber": c.cfg.BeneficiaryAccount,
				"bank":          c.cfg.BeneficiaryBank,
				"amount":        req.TotalAmount,
			},
		},
	}

	body, err := c.post(ctx, "/checkout/session", payload)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Data struct {
			SessionID  string `json:"sessionId"`
			Sessionid  string `json:"Sessionid"`
			PaymentURL string `json:"paymentUrl"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("invalid checkout response: %w", err)
	}

	sessionID := parsed.Data.SessionID
	if sessionID == "" {
		sessionID = parsed.Data.Sessionid
	}
	if sessionID == "" || parsed.Data.PaymentURL == "" {
		return nil, fmt.Errorf("checkout response missing sessionId or paymentUrl")
	}

	return &CheckoutSession{
		SessionID:   sessionID,
		CheckoutURL: parsed.Data.PaymentURL,
	}, nil
}

// TransferB2C requests a Telebirr business-to-customer transfer. sessionID is
// our debit transaction number; the gateway deduplicates on it, which is what
// makes retrying this call after a timeout safe.
func (c *Client) TransferB2C(ctx context.Context, sessionID, phone string) (json.RawMessage, error) {
	payload := map[string]interface{}{
		"Sessionid":   sessionID,
		"Phonenumber": phone,
	}

	body, err := c.post(ctx, "/Telebirr/b2c/transfer", payload)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

func (c *Client) post(ctx context.Context, path string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-arifpay-key", c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, string(body))
	}

	return body, nil
}
