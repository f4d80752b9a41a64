package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TransactionTypeCredit = "CREDIT" // premium payment received, or payout reversal
	TransactionTypeDebit  = "DEBIT"  // claim payout
)

// Transaction is one immutable ledger entry.
//
// Ledger design rules:
//  1. Append only: rows are never updated or deleted; the trail is the audit record.
//  2. Every row is written in the same database transaction as the balance change
//     it describes, so balance and trail cannot diverge.
//  3. Reference carries the external correlation key (gateway session id for
//     credits, debit transaction number for payout reversals). The unique index
//     on (type, reference) is the hard backstop against applying the same
//     external event twice.
type Transaction struct {
	ID            int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionNo string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_no"`
	UserID        int64           `gorm:"index;not null" json:"user_id"`
	Type          string          `gorm:"type:varchar(16);uniqueIndex:uniq_type_reference,priority:1;not null" json:"type"`
	Amount        decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"amount"` // always positive, Type carries the sign
	Description   string          `gorm:"type:varchar(256)" json:"description"`
	Reference     *string         `gorm:"type:varchar(64);uniqueIndex:uniq_type_reference,priority:2" json:"reference,omitempty"`
	BalanceBefore decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"balance_before"`
	BalanceAfter  decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"balance_after"`
	CreatedAt     time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}

func (Transaction) TableName() string {
	return "transaction"
}
