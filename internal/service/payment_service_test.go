package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"tenapay/internal/gateway"
	"tenapay/pkg/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCheckout struct {
	calls     int
	failTimes int
	lastReq   *gateway.CheckoutRequest
}

func (f *fakeCheckout) CreateCheckout(ctx context.Context, req *gateway.CheckoutRequest) (*gateway.CheckoutSession, error) {
	f.calls++
	f.lastReq = req
	if f.calls <= f.failTimes {
		return nil, errors.New("gateway unavailable")
	}
	return &gateway.CheckoutSession{
		SessionID:   "ARIF-SESSION-1",
		CheckoutURL: "https://checkout.arifpay.net/ARIF-SESSION-1",
	}, nil
}

func newPaymentFixture(failTimes int) (*PaymentService, *fakeCheckout) {
	checkout := &fakeCheckout{failTimes: failTimes}
	svc := &PaymentService{
		checkout: checkout,
		retryPolicy: retry.Policy{
			MaxRetries: 2,
			Delay:      time.Millisecond,
			Sleep:      func(ctx context.Context, d time.Duration) error { return nil },
		},
	}
	return svc, checkout
}

func TestCheckoutOpensSession(t *testing.T) {
	svc, checkout := newPaymentFixture(0)

	items := []gateway.CheckoutItem{
		{Name: "Monthly premium", Price: mustDecimal("150.00"), Quantity: 2},
	}

	session, err := svc.Checkout(context.Background(), "251911223344", "abebe@example.com", items, nil)
	require.NoError(t, err)

	assert.Equal(t, "ARIF-SESSION-1", session.SessionID)
	require.NotNil(t, checkout.lastReq)
	assert.True(t, checkout.lastReq.TotalAmount.Equal(mustDecimal("300.00")))
	assert.NotEmpty(t, checkout.lastReq.Nonce)
	assert.NotEmpty(t, checkout.lastReq.PaymentMethods)
}

func TestCheckoutValidation(t *testing.T) {
	svc, checkout := newPaymentFixture(0)

	items := []gateway.CheckoutItem{{Price: mustDecimal("150.00")}}

	_, err := svc.Checkout(context.Background(), "0911223344", "", items, nil)
	assert.ErrorIs(t, err, ErrInvalidPhone)

	_, err = svc.Checkout(context.Background(), "251911223344", "", nil, nil)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	assert.Equal(t, 0, checkout.calls)
}

func TestCheckoutRetriesGatewayFailures(t *testing.T) {
	svc, checkout := newPaymentFixture(2)

	items := []gateway.CheckoutItem{{Price: mustDecimal("150.00")}}

	_, err := svc.Checkout(context.Background(), "251911223344", "", items, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, checkout.calls)
}

func TestTotalFromItems(t *testing.T) {
	items := []gateway.CheckoutItem{
		{Price: mustDecimal("10.50"), Quantity: 3},
		{Price: mustDecimal("5.00")}, // missing quantity counts as one
	}
	assert.True(t, TotalFromItems(items).Equal(mustDecimal("36.50")))
	assert.True(t, TotalFromItems(nil).IsZero())
}
