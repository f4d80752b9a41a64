package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	ClaimStatusReceived          = "RECEIVED"
	ClaimStatusFundsChecked      = "FUNDS_CHECKED"
	ClaimStatusRejected          = "REJECTED" // insufficient funds, nothing debited
	ClaimStatusDebited           = "DEBITED"
	ClaimStatusTransferRequested = "TRANSFER_REQUESTED"
	ClaimStatusTransferConfirmed = "TRANSFER_CONFIRMED"
	ClaimStatusTransferFailed    = "TRANSFER_FAILED" // debited but payout not sent; reversal owed
	ClaimStatusReversed          = "REVERSED"        // compensating credit applied
)

var ValidClaimTransitions = map[string][]string{
	ClaimStatusReceived:          {ClaimStatusFundsChecked, ClaimStatusRejected},
	ClaimStatusFundsChecked:      {ClaimStatusDebited, ClaimStatusRejected},
	ClaimStatusDebited:           {ClaimStatusTransferRequested},
	ClaimStatusTransferRequested: {ClaimStatusTransferConfirmed, ClaimStatusTransferFailed},
	ClaimStatusTransferFailed:    {ClaimStatusReversed},
}

func CanTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidClaimTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// Claim tracks one payout request through its state machine.
// TransactionNo is set when the debit commits and doubles as the session id
// handed to the transfer gateway, so retried transfer calls stay correlated
// to exactly one ledger entry.
type Claim struct {
	ID            int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	ClaimNo       string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"claim_no"`
	UserID        int64           `gorm:"index;not null" json:"user_id"`
	Amount        decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"amount"`
	Phone         string          `gorm:"type:varchar(16);not null" json:"phone"`
	Status        string          `gorm:"type:varchar(24);index;not null" json:"status"`
	TransactionNo string          `gorm:"type:varchar(64);index" json:"transaction_no"` // debit ledger entry / transfer session id
	ReversalNo    string          `gorm:"type:varchar(64)" json:"reversal_no"`          // reversal credit ledger entry, if any
	FailReason    string          `gorm:"type:varchar(256)" json:"fail_reason"`
	CreatedAt     time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Claim) TableName() string {
	return "claim"
}
