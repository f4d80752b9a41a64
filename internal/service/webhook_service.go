package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"tenapay/internal/config"
	"tenapay/internal/model"
	"tenapay/internal/repository"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// WebhookEvent is the payment outcome delivered by the gateway. SessionID is
// the idempotency key: the gateway retries deliveries, and each sessionId must
// credit the member at most once.
type WebhookEvent struct {
	SessionID string          `json:"sessionId"`
	Phone     string          `json:"phone"`
	Email     string          `json:"email"`
	Amount    decimal.Decimal `json:"amount"`
	Status    string          `json:"status"`
}

// IngestResult reports what the webhook delivery did. Applied is false for
// duplicates and ignored statuses; Ignored is true when the event carried no
// successful payment at all.
type IngestResult struct {
	Applied     bool               `json:"applied"`
	Ignored     bool               `json:"ignored"`
	Balance     decimal.Decimal    `json:"balance"`
	Transaction *model.Transaction `json:"transaction,omitempty"`
}

type phoneAccountGetter interface {
	GetByPhone(ctx context.Context, phone string) (*model.Account, error)
}

// sessionMarker is the advisory fast path for duplicate deliveries. It is
// only ever consulted before the credit and written after a successful
// commit, so a crash between the two can never suppress a legitimate credit;
// the unique index on (type, reference) stays authoritative.
type sessionMarker interface {
	Seen(ctx context.Context, sessionID string) bool
	Mark(ctx context.Context, sessionID string)
}

// WebhookService turns gateway payment notifications into ledger credits.
type WebhookService struct {
	ledger   Ledger
	accounts phoneAccountGetter
	audits   auditor
	notifier notifier
	sessions sessionMarker
}

func NewWebhookService(db *gorm.DB, rdb *redis.Client, cfg *config.Config, dispatcher *NotificationService) *WebhookService {
	return &WebhookService{
		ledger:   NewLedgerService(db, cfg),
		accounts: repository.NewAccountRepository(db),
		audits:   repository.NewAuditRepository(db),
		notifier: dispatcher,
		sessions: newRedisSessionMarker(rdb),
	}
}

// Ingest processes one webhook delivery. Always safe to call again with the
// same event: the outcome converges on exactly one credit per sessionId.
func (s *WebhookService) Ingest(ctx context.Context, event *WebhookEvent) (*IngestResult, error) {
	if event.SessionID == "" || event.Phone == "" || event.Status == "" {
		return nil, ErrInvalidPayload
	}

	if event.Status != "SUCCESS" {
		// Not a payment; acknowledge so the gateway stops retrying.
		log.Printf("[WebhookService] ignoring non-success notification: sessionID=%s, status=%s",
			event.SessionID, event.Status)
		return &IngestResult{Ignored: true}, nil
	}

	if event.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidPayload
	}

	account, err := s.accounts.GetByPhone(ctx, event.Phone)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			// Money moved at the gateway with no member to credit. Record it
			// for manual follow-up and ack so retries stop.
			log.Printf("[WebhookService] orphan payment: sessionID=%s, phone=%s, amount=%s",
				event.SessionID, event.Phone, event.Amount.StringFixed(2))
			if aerr := s.audits.Create(ctx, &model.AuditLog{
				Action:   model.AuditActionWebhookOrphan,
				TargetID: event.SessionID,
				Meta: fmt.Sprintf(`{"phone":%q,"amount":%q}`,
					event.Phone, event.Amount.StringFixed(2)),
			}); aerr != nil {
				log.Printf("[WebhookService] failed to record orphan audit: sessionID=%s, err=%v", event.SessionID, aerr)
			}
		}
		return nil, err
	}

	if s.sessions.Seen(ctx, event.SessionID) {
		// Already credited and committed; skip the database entirely.
		log.Printf("[WebhookService] duplicate delivery (fast path): sessionID=%s", event.SessionID)
		return &IngestResult{}, nil
	}

	entry, applied, err := s.ledger.CreditIfAbsent(ctx, account.ID, event.Amount,
		"Premium payment received via Arifpay", event.SessionID, model.EventPaymentCredited)
	if err != nil {
		return nil, err
	}

	s.sessions.Mark(ctx, event.SessionID)

	if applied {
		log.Printf("[WebhookService] premium credited: sessionID=%s, userID=%d, amount=%s, balance=%s",
			event.SessionID, account.ID, event.Amount.StringFixed(2), entry.NewBalance.StringFixed(2))
		s.notifier.Dispatch(ctx, account, model.NotificationTypePaymentCredited, "Payment Received",
			fmt.Sprintf("Your premium payment of %s ETB has been credited to your health fund.",
				event.Amount.StringFixed(2)))
	} else {
		log.Printf("[WebhookService] duplicate delivery: sessionID=%s", event.SessionID)
	}

	return &IngestResult{
		Applied:     applied,
		Balance:     entry.NewBalance,
		Transaction: entry.Transaction,
	}, nil
}

// redisSessionMarker keeps a short-lived processed flag per sessionId so
// hot duplicate deliveries short-circuit without touching MySQL.
type redisSessionMarker struct {
	client *redis.Client
}

func newRedisSessionMarker(client *redis.Client) *redisSessionMarker {
	return &redisSessionMarker{client: client}
}

func (m *redisSessionMarker) key(sessionID string) string {
	return fmt.Sprintf("webhook:session:%s", sessionID)
}

func (m *redisSessionMarker) Seen(ctx context.Context, sessionID string) bool {
	n, err := m.client.Exists(ctx, m.key(sessionID)).Result()
	if err != nil {
		// Redis trouble never blocks a credit; the database dedupes.
		return false
	}
	return n > 0
}

func (m *redisSessionMarker) Mark(ctx context.Context, sessionID string) {
	if err := m.client.Set(ctx, m.key(sessionID), 1, 24*time.Hour).Err(); err != nil {
		log.Printf("[WebhookService] failed to mark session processed: sessionID=%s, err=%v", sessionID, err)
	}
}
