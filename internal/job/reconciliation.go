package job

import (
	"context"
	"fmt"
	"log"
	"time"

	"tenapay/internal/config"
	"tenapay/internal/model"
	"tenapay/internal/repository"

	"gorm.io/gorm"
)

type claimReverser interface {
	ReverseClaim(ctx context.Context, claim *model.Claim) error
}

// ReconciliationJob sweeps claims stuck in TRANSFER_FAILED and applies the
// compensating credit. The request path already attempts the reversal inline;
// this job covers the crash window between the failed transfer and that
// attempt. Both paths key the reversal by the debit transaction number, so
// running them concurrently still yields exactly one credit.
//
// On a slower cadence it also audits every account balance against the sum of
// its ledger entries, recording a LEDGER_DIVERGENCE audit entry for any
// mismatch. Divergence is never repaired automatically.
type ReconciliationJob struct {
	db              *gorm.DB
	claimRepo       *repository.ClaimRepository
	accountRepo     *repository.AccountRepository
	transactionRepo *repository.TransactionRepository
	auditRepo       *repository.AuditRepository
	reverser        claimReverser
	cfg             *config.Config
	stopCh          chan struct{}
	interval        time.Duration
	batchSize       int

	divergenceInterval time.Duration
	lastDivergenceScan time.Time
}

func NewReconciliationJob(db *gorm.DB, cfg *config.Config, reverser claimReverser) *ReconciliationJob {
	return &ReconciliationJob{
		db:                 db,
		claimRepo:          repository.NewClaimRepository(db),
		accountRepo:        repository.NewAccountRepository(db),
		transactionRepo:    repository.NewTransactionRepository(db),
		auditRepo:          repository.NewAuditRepository(db),
		reverser:           reverser,
		cfg:                cfg,
		stopCh:             make(chan struct{}),
		interval:           30 * time.Second,
		batchSize:          50,
		divergenceInterval: time.Hour,
	}
}

func (j *ReconciliationJob) Start(ctx context.Context) {
	log.Println("[ReconciliationJob] reconciliation job started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[ReconciliationJob] context cancelled, exiting")
			return
		case <-j.stopCh:
			log.Println("[ReconciliationJob] stopped")
			return
		case <-ticker.C:
			j.sweepFailedClaims(ctx)
			if time.Since(j.lastDivergenceScan) >= j.divergenceInterval {
				j.lastDivergenceScan = time.Now()
				j.scanForDivergence(ctx)
			}
		}
	}
}

func (j *ReconciliationJob) Stop() {
	close(j.stopCh)
}

func (j *ReconciliationJob) sweepFailedClaims(ctx context.Context) {
	// Leave a grace window so the inline reversal on the request path gets to
	// finish first.
	beforeTime := time.Now().Add(-1 * time.Minute)
	claims, err := j.claimRepo.GetFailedUnreversed(ctx, beforeTime, j.batchSize)
	if err != nil {
		log.Printf("[ReconciliationJob] failed to fetch failed claims: %v", err)
		return
	}

	if len(claims) == 0 {
		return
	}

	log.Printf("[ReconciliationJob] found %d claims awaiting reversal", len(claims))

	reversedCount := 0
	for _, claim := range claims {
		if err := j.reverser.ReverseClaim(ctx, claim); err != nil {
			log.Printf("[ReconciliationJob] failed to reverse claim: claimNo=%s, err=%v", claim.ClaimNo, err)
			continue
		}
		reversedCount++
		log.Printf("[ReconciliationJob] claim reversed: claimNo=%s, userID=%d, amount=%s",
			claim.ClaimNo, claim.UserID, claim.Amount.StringFixed(2))
	}

	log.Printf("[ReconciliationJob] reversed %d claims this sweep", reversedCount)
}

// scanForDivergence walks all accounts and compares each balance to the sum
// of its ledger entries.
func (j *ReconciliationJob) scanForDivergence(ctx context.Context) {
	page := 1
	divergent := 0
	for {
		accounts, _, err := j.accountRepo.List(ctx, page, 100)
		if err != nil {
			log.Printf("[ReconciliationJob] failed to list accounts: %v", err)
			return
		}
		if len(accounts) == 0 {
			break
		}

		for _, account := range accounts {
			if j.checkAccount(ctx, account) {
				divergent++
			}
		}
		page++
	}

	if divergent > 0 {
		log.Printf("[ReconciliationJob] divergence scan complete: %d accounts diverged", divergent)
	}
}

func (j *ReconciliationJob) checkAccount(ctx context.Context, account *model.Account) bool {
	credits, err := j.transactionRepo.SumByType(ctx, account.ID, model.TransactionTypeCredit)
	if err != nil {
		log.Printf("[ReconciliationJob] failed to sum credits: userID=%d, err=%v", account.ID, err)
		return false
	}
	debits, err := j.transactionRepo.SumByType(ctx, account.ID, model.TransactionTypeDebit)
	if err != nil {
		log.Printf("[ReconciliationJob] failed to sum debits: userID=%d, err=%v", account.ID, err)
		return false
	}

	expected := credits.Sub(debits)
	diff := account.Balance.Sub(expected)
	if diff.IsZero() {
		return false
	}

	log.Printf("[ReconciliationJob] ledger divergence: userID=%d, balance=%s, expected=%s",
		account.ID, account.Balance.StringFixed(2), expected.StringFixed(2))

	if err := j.auditRepo.Create(ctx, &model.AuditLog{
		Action:   model.AuditActionLedgerDivergence,
		TargetID: fmt.Sprintf("%d", account.ID),
		Meta: fmt.Sprintf(`{"balance":%q,"expected":%q,"diff":%q}`,
			account.Balance.StringFixed(2), expected.StringFixed(2), diff.StringFixed(2)),
	}); err != nil {
		log.Printf("[ReconciliationJob] failed to record divergence audit: userID=%d, err=%v", account.ID, err)
	}
	return true
}
