package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"regexp"
	"time"

	"tenapay/internal/config"
	"tenapay/internal/gateway"
	"tenapay/internal/infrastructure/lock"
	"tenapay/internal/model"
	"tenapay/internal/repository"
	"tenapay/pkg/idgen"
	"tenapay/pkg/retry"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Telebirr numbering format: country code 251 followed by nine digits.
var phonePattern = regexp.MustCompile(`^251\d{9}$`)

// Narrow views of the collaborators, so the payout flow can be exercised
// against fakes.
type claimStore interface {
	Create(ctx context.Context, tx *gorm.DB, claim *model.Claim) error
	Transition(ctx context.Context, tx *gorm.DB, claimNo, fromStatus, toStatus string, extra map[string]interface{}) error
}

type accountGetter interface {
	GetByID(ctx context.Context, id int64) (*model.Account, error)
}

type transferClient interface {
	TransferB2C(ctx context.Context, sessionID, phone string) (json.RawMessage, error)
}

type claimLocker interface {
	Acquire(ctx context.Context, userID int64) (release func(), err error)
}

type notifier interface {
	Dispatch(ctx context.Context, account *model.Account, notifType, title, message string) *model.Notification
}

type auditor interface {
	Create(ctx context.Context, entry *model.AuditLog) error
}

type transactionLister interface {
	ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.Transaction, int64, error)
}

// ClaimService drives a payout request through its state machine:
//
//	RECEIVED -> FUNDS_CHECKED -> DEBITED -> TRANSFER_REQUESTED
//	                 |                            |
//	             REJECTED       TRANSFER_CONFIRMED | TRANSFER_FAILED -> REVERSED
//
// The debit and its ledger entry commit before the transfer call, so no
// database transaction is ever held open across the slow external request.
// The cost is the TRANSFER_FAILED reconciliation gap, paid for with the
// compensating reversal.
type ClaimService struct {
	ledger       Ledger
	claims       claimStore
	accounts     accountGetter
	transactions transactionLister
	transfer     transferClient
	locker       claimLocker
	notifier     notifier
	audits       auditor
	retryPolicy  retry.Policy
}

func NewClaimService(db *gorm.DB, rdb *redis.Client, cfg *config.Config, transfer *gateway.Client, dispatcher *NotificationService) *ClaimService {
	return &ClaimService{
		ledger:       NewLedgerService(db, cfg),
		claims:       repository.NewClaimRepository(db),
		accounts:     repository.NewAccountRepository(db),
		transactions: repository.NewTransactionRepository(db),
		transfer:     transfer,
		locker:       newRedisClaimLocker(rdb),
		notifier:     dispatcher,
		audits:       repository.NewAuditRepository(db),
		retryPolicy: retry.Policy{
			MaxRetries: cfg.Business.MaxTransferRetries,
			Delay:      time.Duration(cfg.Business.RetryDelayMillis) * time.Millisecond,
		},
	}
}

// ClaimResult is the success envelope for a processed payout.
type ClaimResult struct {
	Claim           *model.Claim       `json:"claim"`
	Transaction     *model.Transaction `json:"transaction"`
	NewBalance      decimal.Decimal    `json:"new_balance"`
	TransferReceipt json.RawMessage    `json:"transfer_receipt,omitempty"`
}

// RequestPayout validates, debits and pays out a claim.
func (s *ClaimService) RequestPayout(ctx context.Context, userID int64, amount decimal.Decimal, phone string) (*ClaimResult, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}
	if !phonePattern.MatchString(phone) {
		return nil, ErrInvalidPhone
	}

	// Serialise payouts per member; unrelated members stay concurrent.
	release, err := s.locker.Acquire(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire claim lock: %w", err)
	}
	defer release()

	account, err := s.accounts.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	claim := &model.Claim{
		ClaimNo: idgen.GenerateClaimNo(),
		UserID:  userID,
		Amount:  amount,
		Phone:   phone,
		Status:  model.ClaimStatusReceived,
	}
	if err := s.claims.Create(ctx, nil, claim); err != nil {
		return nil, fmt.Errorf("failed to create claim: %w", err)
	}

	// Advisory check only: the atomic debit guard below is authoritative.
	if account.Balance.LessThan(amount) {
		s.reject(ctx, claim.ClaimNo, model.ClaimStatusReceived, "insufficient funds")
		return nil, repository.ErrInsufficientFunds
	}
	if err := s.claims.Transition(ctx, nil, claim.ClaimNo, model.ClaimStatusReceived, model.ClaimStatusFundsChecked, nil); err != nil {
		return nil, err
	}

	entry, err := s.ledger.Debit(ctx, userID, amount,
		"Health claim payout", claim.ClaimNo, model.EventClaimPaid)
	if err != nil {
		if errors.Is(err, repository.ErrInsufficientFunds) {
			// Lost the race between the advisory check and the debit;
			// nothing was recorded.
			s.reject(ctx, claim.ClaimNo, model.ClaimStatusFundsChecked, "insufficient funds")
			return nil, repository.ErrInsufficientFunds
		}
		return nil, fmt.Errorf("failed to debit claim amount: %w", err)
	}

	claim.TransactionNo = entry.Transaction.TransactionNo
	if err := s.claims.Transition(ctx, nil, claim.ClaimNo, model.ClaimStatusFundsChecked, model.ClaimStatusDebited,
		map[string]interface{}{"transaction_no": claim.TransactionNo}); err != nil {
		log.Printf("[ClaimService] failed to mark claim debited: claimNo=%s, err=%v", claim.ClaimNo, err)
	}
	if err := s.claims.Transition(ctx, nil, claim.ClaimNo, model.ClaimStatusDebited, model.ClaimStatusTransferRequested, nil); err != nil {
		log.Printf("[ClaimService] failed to mark transfer requested: claimNo=%s, err=%v", claim.ClaimNo, err)
	}
	claim.Status = model.ClaimStatusTransferRequested

	// The transfer is keyed by the debit transaction number, so retries after
	// a timeout cannot duplicate a payout.
	receipt, err := retry.Do(ctx, s.retryPolicy, func() (json.RawMessage, error) {
		return s.transfer.TransferB2C(ctx, claim.TransactionNo, phone)
	})
	if err != nil {
		log.Printf("[ClaimService] transfer failed after retries: claimNo=%s, err=%v", claim.ClaimNo, err)

		if terr := s.claims.Transition(ctx, nil, claim.ClaimNo, model.ClaimStatusTransferRequested, model.ClaimStatusTransferFailed,
			map[string]interface{}{"fail_reason": err.Error()}); terr != nil {
			log.Printf("[ClaimService] failed to mark transfer failed: claimNo=%s, err=%v", claim.ClaimNo, terr)
		}
		claim.Status = model.ClaimStatusTransferFailed

		if rerr := s.ReverseClaim(ctx, claim); rerr != nil {
			// Leave the claim in TRANSFER_FAILED; the reconciliation job
			// sweeps it until the reversal lands.
			log.Printf("[ClaimService] reversal pending for reconciliation: claimNo=%s, err=%v", claim.ClaimNo, rerr)
		}
		return nil, ErrReconciliationRequired
	}

	if terr := s.claims.Transition(ctx, nil, claim.ClaimNo, model.ClaimStatusTransferRequested, model.ClaimStatusTransferConfirmed, nil); terr != nil {
		log.Printf("[ClaimService] failed to mark transfer confirmed: claimNo=%s, err=%v", claim.ClaimNo, terr)
	}
	claim.Status = model.ClaimStatusTransferConfirmed

	s.notifier.Dispatch(ctx, account, model.NotificationTypeClaimPaid, "Claim Payout",
		fmt.Sprintf("Your claim of %s ETB has been sent to %s.", amount.StringFixed(2), phone))

	log.Printf("[ClaimService] claim payout sent: claimNo=%s, userID=%d, amount=%s, phone=%s",
		claim.ClaimNo, userID, amount.StringFixed(2), phone)

	return &ClaimResult{
		Claim:           claim,
		Transaction:     entry.Transaction,
		NewBalance:      entry.NewBalance,
		TransferReceipt: receipt,
	}, nil
}

// ReverseClaim applies the compensating credit for a claim stuck in
// TRANSFER_FAILED. Idempotent: the reversal is keyed by the debit transaction
// number, so the request path and the reconciliation job can both attempt it.
func (s *ClaimService) ReverseClaim(ctx context.Context, claim *model.Claim) error {
	if claim.Status != model.ClaimStatusTransferFailed {
		return fmt.Errorf("claim %s is not awaiting reversal (status %s)", claim.ClaimNo, claim.Status)
	}
	if claim.TransactionNo == "" {
		return fmt.Errorf("claim %s has no debit transaction to reverse", claim.ClaimNo)
	}

	entry, applied, err := s.ledger.Reverse(ctx, claim.UserID, claim.Amount,
		"Claim payout reversal", claim.TransactionNo, model.EventClaimReversed)
	if err != nil {
		return fmt.Errorf("failed to apply payout reversal: %w", err)
	}

	if terr := s.claims.Transition(ctx, nil, claim.ClaimNo, model.ClaimStatusTransferFailed, model.ClaimStatusReversed,
		map[string]interface{}{"reversal_no": entry.Transaction.TransactionNo}); terr != nil {
		log.Printf("[ClaimService] failed to mark claim reversed: claimNo=%s, err=%v", claim.ClaimNo, terr)
	}
	claim.Status = model.ClaimStatusReversed
	claim.ReversalNo = entry.Transaction.TransactionNo

	if !applied {
		return nil
	}

	if aerr := s.audits.Create(ctx, &model.AuditLog{
		Action:   model.AuditActionClaimReversed,
		TargetID: claim.ClaimNo,
		Meta: fmt.Sprintf(`{"transaction_no":%q,"reversal_no":%q,"amount":%q}`,
			claim.TransactionNo, entry.Transaction.TransactionNo, claim.Amount.StringFixed(2)),
	}); aerr != nil {
		log.Printf("[ClaimService] failed to record reversal audit: claimNo=%s, err=%v", claim.ClaimNo, aerr)
	}

	if account, aerr := s.accounts.GetByID(ctx, claim.UserID); aerr == nil {
		s.notifier.Dispatch(ctx, account, model.NotificationTypeClaimReversed, "Claim Payout Reversed",
			fmt.Sprintf("Your claim of %s ETB could not be paid out and has been refunded to your health fund.",
				claim.Amount.StringFixed(2)))
	}

	log.Printf("[ClaimService] claim reversed: claimNo=%s, reversalNo=%s", claim.ClaimNo, entry.Transaction.TransactionNo)
	return nil
}

// History lists the member's ledger entries, newest first.
func (s *ClaimService) History(ctx context.Context, userID int64, page, pageSize int) ([]*model.Transaction, int64, error) {
	return s.transactions.ListByUserID(ctx, userID, page, pageSize)
}

func (s *ClaimService) reject(ctx context.Context, claimNo, fromStatus, reason string) {
	if err := s.claims.Transition(ctx, nil, claimNo, fromStatus, model.ClaimStatusRejected,
		map[string]interface{}{"fail_reason": reason}); err != nil {
		log.Printf("[ClaimService] failed to reject claim: claimNo=%s, err=%v", claimNo, err)
	}
}

// redisClaimLocker adapts the redis distributed lock to the claimLocker view.
type redisClaimLocker struct {
	client *redis.Client
}

func newRedisClaimLocker(client *redis.Client) *redisClaimLocker {
	return &redisClaimLocker{client: client}
}

func (l *redisClaimLocker) Acquire(ctx context.Context, userID int64) (func(), error) {
	claimLock := lock.NewClaimLock(l.client, userID, uuid.NewString())
	if err := claimLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
		return nil, err
	}
	return func() {
		if err := claimLock.Unlock(context.Background()); err != nil {
			log.Printf("[ClaimService] failed to release claim lock: userID=%d, err=%v", userID, err)
		}
	}, nil
}
