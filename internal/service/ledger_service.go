package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tenapay/internal/config"
	"tenapay/internal/model"
	"tenapay/internal/repository"
	"tenapay/pkg/idgen"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// LedgerEntry is the outcome of one committed balance mutation.
type LedgerEntry struct {
	Transaction *model.Transaction
	NewBalance  decimal.Decimal
}

// Ledger is the single write path to account balances. Every mutation is one
// database transaction containing the conditional balance update, the
// append-only trail entry and the outbox event. They commit or fail as a
// unit, so balance and trail cannot diverge.
type Ledger interface {
	Credit(ctx context.Context, userID int64, amount decimal.Decimal, description, reference, event string) (*LedgerEntry, error)
	Debit(ctx context.Context, userID int64, amount decimal.Decimal, description, reference, event string) (*LedgerEntry, error)
	// CreditIfAbsent applies a credit unless a CREDIT with the same reference
	// already exists; the bool reports whether a new entry was applied.
	CreditIfAbsent(ctx context.Context, userID int64, amount decimal.Decimal, description, reference, event string) (*LedgerEntry, bool, error)
	// Reverse is CreditIfAbsent with a reversal entry number, used to
	// compensate a debit whose payout transfer permanently failed.
	Reverse(ctx context.Context, userID int64, amount decimal.Decimal, description, reference, event string) (*LedgerEntry, bool, error)
}

type LedgerService struct {
	db              *gorm.DB
	cfg             *config.Config
	accountRepo     *repository.AccountRepository
	transactionRepo *repository.TransactionRepository
	outboxRepo      *repository.OutboxRepository
}

func NewLedgerService(db *gorm.DB, cfg *config.Config) *LedgerService {
	return &LedgerService{
		db:              db,
		cfg:             cfg,
		accountRepo:     repository.NewAccountRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
		outboxRepo:      repository.NewOutboxRepository(db),
	}
}

func (s *LedgerService) Credit(ctx context.Context, userID int64, amount decimal.Decimal, description, reference, event string) (*LedgerEntry, error) {
	return s.apply(ctx, userID, amount, model.TransactionTypeCredit, idgen.GenerateTransactionNo(), description, reference, event)
}

func (s *LedgerService) Debit(ctx context.Context, userID int64, amount decimal.Decimal, description, reference, event string) (*LedgerEntry, error) {
	return s.apply(ctx, userID, amount, model.TransactionTypeDebit, idgen.GenerateTransactionNo(), description, reference, event)
}

func (s *LedgerService) CreditIfAbsent(ctx context.Context, userID int64, amount decimal.Decimal, description, reference, event string) (*LedgerEntry, bool, error) {
	return s.creditOnce(ctx, userID, amount, idgen.GenerateTransactionNo(), description, reference, event)
}

func (s *LedgerService) Reverse(ctx context.Context, userID int64, amount decimal.Decimal, description, reference, event string) (*LedgerEntry, bool, error) {
	return s.creditOnce(ctx, userID, amount, idgen.GenerateReversalNo(), description, reference, event)
}

// apply performs one atomic balance mutation plus trail append. The balance
// update is a conditional UPDATE, never a read-modify-write: concurrent
// debits race on the `balance >= amount` guard inside MySQL, and the loser
// gets ErrInsufficientFunds with nothing recorded.
func (s *LedgerService) apply(ctx context.Context, userID int64, amount decimal.Decimal, txnType, transactionNo, description, reference, event string) (*LedgerEntry, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}

	var entry *LedgerEntry
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		if txnType == model.TransactionTypeDebit {
			err = s.accountRepo.Debit(ctx, tx, userID, amount)
		} else {
			err = s.accountRepo.Credit(ctx, tx, userID, amount)
		}
		if err != nil {
			return err
		}

		// The row lock held by the update makes this read the committed
		// outcome, so balance_before/balance_after in the trail are exact.
		account, err := s.accountRepo.GetByIDTx(ctx, tx, userID)
		if err != nil {
			return fmt.Errorf("failed to read account after mutation: %w", err)
		}

		before := account.Balance.Sub(amount)
		if txnType == model.TransactionTypeDebit {
			before = account.Balance.Add(amount)
		}

		trans := &model.Transaction{
			TransactionNo: transactionNo,
			UserID:        userID,
			Type:          txnType,
			Amount:        amount,
			Description:   description,
			Reference:     optionalString(reference),
			BalanceBefore: before,
			BalanceAfter:  account.Balance,
		}
		if err := s.transactionRepo.Create(ctx, tx, trans); err != nil {
			return fmt.Errorf("failed to record transaction: %w", err)
		}

		if err := s.writeOutboxEvent(ctx, tx, event, trans); err != nil {
			return fmt.Errorf("failed to write outbox event: %w", err)
		}

		entry = &LedgerEntry{Transaction: trans, NewBalance: account.Balance}
		return nil
	})

	if err != nil {
		return nil, err
	}
	return entry, nil
}

// creditOnce is the idempotent credit used for webhook events and payout
// reversals. The read probe inside the transaction catches ordinary
// duplicates; the unique index on (type, reference) catches two deliveries
// racing past the probe, in which case the loser's transaction rolls back and
// the existing entry is returned.
func (s *LedgerService) creditOnce(ctx context.Context, userID int64, amount decimal.Decimal, transactionNo, description, reference, event string) (*LedgerEntry, bool, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, false, ErrInvalidAmount
	}
	if reference == "" {
		return nil, false, fmt.Errorf("idempotent credit requires a reference")
	}

	var entry *LedgerEntry
	applied := false

	err := s.db.Transaction(func(tx *gorm.DB) error {
		existing, err := s.transactionRepo.GetByTypeAndReference(ctx, tx, model.TransactionTypeCredit, reference)
		if err != nil {
			return err
		}
		if existing != nil {
			account, err := s.accountRepo.GetByIDTx(ctx, tx, userID)
			if err != nil {
				return err
			}
			entry = &LedgerEntry{Transaction: existing, NewBalance: account.Balance}
			return nil
		}

		if err := s.accountRepo.Credit(ctx, tx, userID, amount); err != nil {
			return err
		}

		account, err := s.accountRepo.GetByIDTx(ctx, tx, userID)
		if err != nil {
			return err
		}

		trans := &model.Transaction{
			TransactionNo: transactionNo,
			UserID:        userID,
			Type:          model.TransactionTypeCredit,
			Amount:        amount,
			Description:   description,
			Reference:     optionalString(reference),
			BalanceBefore: account.Balance.Sub(amount),
			BalanceAfter:  account.Balance,
		}
		if err := s.transactionRepo.Create(ctx, tx, trans); err != nil {
			return err
		}

		if err := s.writeOutboxEvent(ctx, tx, event, trans); err != nil {
			return err
		}

		entry = &LedgerEntry{Transaction: trans, NewBalance: account.Balance}
		applied = true
		return nil
	})

	if err != nil {
		if errors.Is(err, repository.ErrDuplicateReference) {
			return s.existingCredit(ctx, userID, reference)
		}
		return nil, false, err
	}
	return entry, applied, nil
}

func (s *LedgerService) existingCredit(ctx context.Context, userID int64, reference string) (*LedgerEntry, bool, error) {
	existing, err := s.transactionRepo.GetByTypeAndReference(ctx, nil, model.TransactionTypeCredit, reference)
	if err != nil || existing == nil {
		return nil, false, fmt.Errorf("duplicate credit reference %s but entry not found: %w", reference, err)
	}
	account, err := s.accountRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	return &LedgerEntry{Transaction: existing, NewBalance: account.Balance}, false, nil
}

func (s *LedgerService) writeOutboxEvent(ctx context.Context, tx *gorm.DB, event string, trans *model.Transaction) error {
	if event == "" {
		return nil
	}

	payload := map[string]interface{}{
		"event":          event,
		"user_id":        trans.UserID,
		"transaction_no": trans.TransactionNo,
		"type":           trans.Type,
		"amount":         trans.Amount,
		"balance_after":  trans.BalanceAfter,
		"occurred_at":    time.Now().Format(time.RFC3339),
	}
	if trans.Reference != nil {
		payload["reference"] = *trans.Reference
	}
	payloadBytes, _ := json.Marshal(payload)

	msg := &model.OutboxMessage{
		MessageKey: trans.TransactionNo,
		Topic:      s.cfg.Kafka.Topic.LedgerEvents,
		Payload:    string(payloadBytes),
		Status:     model.OutboxStatusPending,
	}
	return s.outboxRepo.Create(ctx, tx, msg)
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
