package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"tenapay/internal/config"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewClient(&config.GatewayConfig{
		BaseURL:            server.URL,
		APIKey:             "test-key",
		MerchantID:         "merchant-1",
		BeneficiaryAccount: "01320811436100",
		BeneficiaryBank:    "AWINETAA",
		NotifyURL:          "https://api.example.com/api/v1/webhook/arifpay",
		TimeoutSeconds:     5,
	})
}

func TestCreateCheckout(t *testing.T) {
	var gotPath, gotKey string
	var gotPayload map[string]interface{}

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-arifpay-key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{
				"sessionId":  "SESSION-123",
				"paymentUrl": "https://checkout.arifpay.net/SESSION-123",
			},
		})
	})

	session, err := client.CreateCheckout(context.Background(), &CheckoutRequest{
		Phone:          "251911223344",
		Nonce:          "SES123",
		Items:          []CheckoutItem{{Name: "Premium", Price: decimal.NewFromInt(100), Quantity: 1}},
		PaymentMethods: []string{"TELEBIRR"},
		TotalAmount:    decimal.NewFromInt(100),
	})
	require.NoError(t, err)

	assert.Equal(t, "/checkout/session", gotPath)
	assert.Equal(t, "test-key", gotKey)
	assert.Equal(t, "SESSION-123", session.SessionID)
	assert.Equal(t, "https://checkout.arifpay.net/SESSION-123", session.CheckoutURL)

	assert.Equal(t, "merchant-1", gotPayload["merchant_id"])
	beneficiaries, ok := gotPayload["beneficiaries"].([]interface{})
	require.True(t, ok)
	require.Len(t, beneficiaries, 1)
}

func TestCreateCheckoutAlternateSessionField(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{
				"Sessionid":  "SESSION-ALT",
				"paymentUrl": "https://checkout.arifpay.net/SESSION-ALT",
			},
		})
	})

	session, err := client.CreateCheckout(context.Background(), &CheckoutRequest{
		Phone:       "251911223344",
		TotalAmount: decimal.NewFromInt(50),
	})
	require.NoError(t, err)
	assert.Equal(t, "SESSION-ALT", session.SessionID)
}

func TestCreateCheckoutMissingSession(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"data": map[string]interface{}{}})
	})

	_, err := client.CreateCheckout(context.Background(), &CheckoutRequest{
		Phone:       "251911223344",
		TotalAmount: decimal.NewFromInt(50),
	})
	assert.Error(t, err)
}

func TestTransferB2C(t *testing.T) {
	var gotPayload map[string]string

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Telebirr/b2c/transfer", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		w.Write([]byte(`{"status":"SUCCESS"}`))
	})

	receipt, err := client.TransferB2C(context.Background(), "TXN-1", "251911223344")
	require.NoError(t, err)

	assert.Equal(t, "TXN-1", gotPayload["Sessionid"])
	assert.Equal(t, "251911223344", gotPayload["Phonenumber"])
	assert.JSONEq(t, `{"status":"SUCCESS"}`, string(receipt))
}

func TestPostNon2xxIsError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	})

	_, err := client.TransferB2C(context.Background(), "TXN-1", "251911223344")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
