package service

import (
	"context"
	"log"
	"time"

	"tenapay/internal/config"
	"tenapay/internal/gateway"
	"tenapay/pkg/idgen"
	"tenapay/pkg/retry"

	"github.com/shopspring/decimal"
)

type checkoutClient interface {
	CreateCheckout(ctx context.Context, req *gateway.CheckoutRequest) (*gateway.CheckoutSession, error)
}

// PaymentService opens hosted checkout sessions for premium top-ups. The
// credit itself lands later, when the gateway reports the outcome on the
// webhook endpoint.
type PaymentService struct {
	checkout    checkoutClient
	retryPolicy retry.Policy
}

func NewPaymentService(cfg *config.Config, client *gateway.Client) *PaymentService {
	return &PaymentService{
		checkout: client,
		retryPolicy: retry.Policy{
			MaxRetries: cfg.Business.MaxTransferRetries,
			Delay:      time.Duration(cfg.Business.RetryDelayMillis) * time.Millisecond,
		},
	}
}

// Checkout validates the request and opens a gateway session.
func (s *PaymentService) Checkout(ctx context.Context, phone, email string, items []gateway.CheckoutItem, paymentMethods []string) (*gateway.CheckoutSession, error) {
	if !phonePattern.MatchString(phone) {
		return nil, ErrInvalidPhone
	}

	total := TotalFromItems(items)
	if total.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}

	if len(paymentMethods) == 0 {
		paymentMethods = []string{"TELEBIRR", "AWASH", "CBE"}
	}

	req := &gateway.CheckoutRequest{
		Phone:          phone,
		Email:          email,
		Nonce:          idgen.GenerateNonce(),
		Items:          items,
		Lang:           "EN",
		PaymentMethods: paymentMethods,
		TotalAmount:    total,
	}

	session, err := retry.Do(ctx, s.retryPolicy, func() (*gateway.CheckoutSession, error) {
		return s.checkout.CreateCheckout(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[PaymentService] checkout session opened: sessionID=%s, phone=%s, total=%s",
		session.SessionID, phone, total.StringFixed(2))
	return session, nil
}

// TotalFromItems sums price * quantity across the cart; a missing quantity
// counts as one.
func TotalFromItems(items []gateway.CheckoutItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		qty := item.Quantity
		if qty <= 0 {
			qty = 1
		}
		total = total.Add(item.Price.Mul(decimal.NewFromInt(int64(qty))))
	}
	return total
}
