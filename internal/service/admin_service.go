package service

import (
	"context"
	"fmt"
	"log"

	"tenapay/internal/model"
	"tenapay/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AdminService backs the operator endpoints: platform overview, per-member
// drill-down, the audit trail and on-demand ledger reconciliation.
type AdminService struct {
	accounts     *repository.AccountRepository
	transactions *repository.TransactionRepository
	audits       *repository.AuditRepository
}

func NewAdminService(db *gorm.DB) *AdminService {
	return &AdminService{
		accounts:     repository.NewAccountRepository(db),
		transactions: repository.NewTransactionRepository(db),
		audits:       repository.NewAuditRepository(db),
	}
}

// Overview is the platform-wide financial snapshot.
type Overview struct {
	TotalUsers     int64           `json:"total_users"`
	TotalCollected decimal.Decimal `json:"total_collected"`
	TotalClaimed   decimal.Decimal `json:"total_claimed"`
	FundPool       decimal.Decimal `json:"fund_pool"`
}

func (s *AdminService) Overview(ctx context.Context) (*Overview, error) {
	totalUsers, err := s.accounts.Count(ctx)
	if err != nil {
		return nil, err
	}

	collected, err := s.transactions.SumByType(ctx, 0, model.TransactionTypeCredit)
	if err != nil {
		return nil, err
	}

	claimed, err := s.transactions.SumByType(ctx, 0, model.TransactionTypeDebit)
	if err != nil {
		return nil, err
	}

	pool, err := s.accounts.SumBalances(ctx)
	if err != nil {
		return nil, err
	}

	return &Overview{
		TotalUsers:     totalUsers,
		TotalCollected: collected,
		TotalClaimed:   claimed,
		FundPool:       pool,
	}, nil
}

// UserDetail is one member's account plus ledger aggregates.
type UserDetail struct {
	Account      *model.Account       `json:"account"`
	Transactions []*model.Transaction `json:"transactions"`
	TotalCredits decimal.Decimal      `json:"total_credits"`
	TotalDebits  decimal.Decimal      `json:"total_debits"`
	NetFlow      decimal.Decimal      `json:"net_flow"`
}

func (s *AdminService) UserDetail(ctx context.Context, userID int64, page, pageSize int) (*UserDetail, error) {
	account, err := s.accounts.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	transactions, _, err := s.transactions.ListByUserID(ctx, userID, page, pageSize)
	if err != nil {
		return nil, err
	}

	credits, err := s.transactions.SumByType(ctx, userID, model.TransactionTypeCredit)
	if err != nil {
		return nil, err
	}

	debits, err := s.transactions.SumByType(ctx, userID, model.TransactionTypeDebit)
	if err != nil {
		return nil, err
	}

	return &UserDetail{
		Account:      account,
		Transactions: transactions,
		TotalCredits: credits,
		TotalDebits:  debits,
		NetFlow:      credits.Sub(debits),
	}, nil
}

func (s *AdminService) Audits(ctx context.Context, limit int) ([]*model.AuditLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.audits.ListRecent(ctx, limit)
}

// ReconcileAccount checks the account invariant balance == sum(CREDIT) -
// sum(DEBIT). A divergence is recorded and surfaced; it is never repaired
// automatically, because either side of the mismatch could be the wrong one.
func (s *AdminService) ReconcileAccount(ctx context.Context, adminID, userID int64) (decimal.Decimal, error) {
	account, err := s.accounts.GetByID(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}

	credits, err := s.transactions.SumByType(ctx, userID, model.TransactionTypeCredit)
	if err != nil {
		return decimal.Zero, err
	}
	debits, err := s.transactions.SumByType(ctx, userID, model.TransactionTypeDebit)
	if err != nil {
		return decimal.Zero, err
	}

	expected := credits.Sub(debits)
	diff := account.Balance.Sub(expected)

	if !diff.IsZero() {
		log.Printf("[AdminService] ledger divergence: userID=%d, balance=%s, expected=%s",
			userID, account.Balance.StringFixed(2), expected.StringFixed(2))
		if aerr := s.audits.Create(ctx, &model.AuditLog{
			AdminID:  adminID,
			Action:   model.AuditActionLedgerDivergence,
			TargetID: fmt.Sprintf("%d", userID),
			Meta: fmt.Sprintf(`{"balance":%q,"expected":%q,"diff":%q}`,
				account.Balance.StringFixed(2), expected.StringFixed(2), diff.StringFixed(2)),
		}); aerr != nil {
			log.Printf("[AdminService] failed to record divergence audit: userID=%d, err=%v", userID, aerr)
		}
		return diff, ErrLedgerDivergence
	}

	if aerr := s.audits.Create(ctx, &model.AuditLog{
		AdminID:  adminID,
		Action:   model.AuditActionAccountReconciled,
		TargetID: fmt.Sprintf("%d", userID),
		Meta:     fmt.Sprintf(`{"balance":%q}`, account.Balance.StringFixed(2)),
	}); aerr != nil {
		log.Printf("[AdminService] failed to record reconcile audit: userID=%d, err=%v", userID, aerr)
	}

	return decimal.Zero, nil
}
