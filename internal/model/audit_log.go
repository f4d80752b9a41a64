package model

import (
	"time"
)

const (
	AuditActionClaimReversed     = "CLAIM_REVERSED"
	AuditActionWebhookOrphan     = "WEBHOOK_ORPHAN"    // money moved externally, no matching account
	AuditActionLedgerDivergence  = "LEDGER_DIVERGENCE" // balance != sum of transactions
	AuditActionAccountReconciled = "ACCOUNT_RECONCILED"
)

// AuditLog is an append-only record of privileged and reconciliation events.
type AuditLog struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	AdminID   int64     `gorm:"index" json:"admin_id"` // zero for system-initiated entries
	Action    string    `gorm:"type:varchar(64);index;not null" json:"action"`
	TargetID  string    `gorm:"type:varchar(64)" json:"target_id"`
	Meta      string    `gorm:"type:text" json:"meta"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_log"
}
