package service

import (
	"context"
	"sync"
	"testing"

	"tenapay/internal/model"
	"tenapay/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type webhookFixture struct {
	svc      *WebhookService
	ledger   *fakeLedger
	notifier *fakeNotifier
	audits   *fakeAudits
	sessions *fakeSessionMarker
}

func newWebhookFixture() *webhookFixture {
	ledger := newFakeLedger(map[int64]decimal.Decimal{1: mustDecimal("100.00")})
	notifier := &fakeNotifier{}
	audits := &fakeAudits{}
	sessions := newFakeSessionMarker()

	accounts := newFakeAccounts(ledger, &model.Account{
		ID:    1,
		Email: "abebe@example.com",
		Phone: "251911223344",
	})

	svc := &WebhookService{
		ledger:   ledger,
		accounts: accounts,
		audits:   audits,
		notifier: notifier,
		sessions: sessions,
	}

	return &webhookFixture{
		svc:      svc,
		ledger:   ledger,
		notifier: notifier,
		audits:   audits,
		sessions: sessions,
	}
}

func successEvent(sessionID string) *WebhookEvent {
	return &WebhookEvent{
		SessionID: sessionID,
		Phone:     "251911223344",
		Amount:    mustDecimal("250.00"),
		Status:    "SUCCESS",
	}
}

func TestIngestCreditsAccount(t *testing.T) {
	f := newWebhookFixture()

	result, err := f.svc.Ingest(context.Background(), successEvent("ARIF-001"))
	require.NoError(t, err)

	assert.True(t, result.Applied)
	assert.True(t, result.Balance.Equal(mustDecimal("350.00")))
	require.NotNil(t, result.Transaction)
	assert.Equal(t, model.TransactionTypeCredit, result.Transaction.Type)
	require.NotNil(t, result.Transaction.Reference)
	assert.Equal(t, "ARIF-001", *result.Transaction.Reference)

	assert.Equal(t, []string{model.NotificationTypePaymentCredited}, f.notifier.typesSent())
}

func TestIngestDuplicateSessionCreditsOnce(t *testing.T) {
	f := newWebhookFixture()

	first, err := f.svc.Ingest(context.Background(), successEvent("ARIF-002"))
	require.NoError(t, err)
	require.True(t, first.Applied)

	// Redelivery with the marker cleared still dedupes through the ledger.
	f.sessions = newFakeSessionMarker()
	f.svc.sessions = f.sessions

	second, err := f.svc.Ingest(context.Background(), successEvent("ARIF-002"))
	require.NoError(t, err)

	assert.False(t, second.Applied)
	assert.True(t, second.Balance.Equal(mustDecimal("350.00")))
	assert.Len(t, f.ledger.entriesOfType(model.TransactionTypeCredit), 1)

	// Only the first delivery notified.
	assert.Equal(t, []string{model.NotificationTypePaymentCredited}, f.notifier.typesSent())
}

func TestIngestDuplicateSessionFastPath(t *testing.T) {
	f := newWebhookFixture()

	_, err := f.svc.Ingest(context.Background(), successEvent("ARIF-003"))
	require.NoError(t, err)

	result, err := f.svc.Ingest(context.Background(), successEvent("ARIF-003"))
	require.NoError(t, err)

	assert.False(t, result.Applied)
	assert.Len(t, f.ledger.entriesOfType(model.TransactionTypeCredit), 1)
	assert.True(t, f.ledger.balance(1).Equal(mustDecimal("350.00")))
}

func TestIngestIgnoresNonSuccessStatus(t *testing.T) {
	f := newWebhookFixture()

	event := successEvent("ARIF-004")
	event.Status = "FAILED"

	result, err := f.svc.Ingest(context.Background(), event)
	require.NoError(t, err)

	assert.True(t, result.Ignored)
	assert.False(t, result.Applied)
	assert.True(t, f.ledger.balance(1).Equal(mustDecimal("100.00")))
	assert.Empty(t, f.notifier.typesSent())
}

func TestIngestUnknownPhoneRecordsOrphan(t *testing.T) {
	f := newWebhookFixture()

	event := successEvent("ARIF-005")
	event.Phone = "251999999999"

	_, err := f.svc.Ingest(context.Background(), event)
	require.ErrorIs(t, err, repository.ErrAccountNotFound)

	assert.Contains(t, f.audits.actions(), model.AuditActionWebhookOrphan)
	assert.True(t, f.ledger.balance(1).Equal(mustDecimal("100.00")))
}

func TestIngestMalformedPayload(t *testing.T) {
	f := newWebhookFixture()

	cases := []*WebhookEvent{
		{Phone: "251911223344", Amount: mustDecimal("10.00"), Status: "SUCCESS"},
		{SessionID: "ARIF-006", Amount: mustDecimal("10.00"), Status: "SUCCESS"},
		{SessionID: "ARIF-007", Phone: "251911223344", Amount: mustDecimal("10.00")},
		{SessionID: "ARIF-008", Phone: "251911223344", Amount: mustDecimal("-10.00"), Status: "SUCCESS"},
	}
	for _, event := range cases {
		_, err := f.svc.Ingest(context.Background(), event)
		assert.ErrorIs(t, err, ErrInvalidPayload)
	}

	assert.True(t, f.ledger.balance(1).Equal(mustDecimal("100.00")))
}

func TestIngestConcurrentDeliveriesCreditOnce(t *testing.T) {
	const deliveries = 10

	f := newWebhookFixture()

	var wg sync.WaitGroup
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Ingest(context.Background(), successEvent("ARIF-RACE"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, f.ledger.entriesOfType(model.TransactionTypeCredit), 1)
	assert.True(t, f.ledger.balance(1).Equal(mustDecimal("350.00")))
}
