package model

import (
	"time"
)

const (
	NotificationTypePaymentCredited = "PAYMENT_CREDITED"
	NotificationTypeClaimPaid       = "CLAIM_PAID"
	NotificationTypeClaimReversed   = "CLAIM_REVERSED"
)

// Notification is a user-facing message persisted after a ledger change
// commits. It sits outside the consistency boundary: losing one never
// corrupts the ledger.
type Notification struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64     `gorm:"index;not null" json:"user_id"`
	Type      string    `gorm:"type:varchar(32);not null" json:"type"`
	Title     string    `gorm:"type:varchar(128);not null" json:"title"`
	Message   string    `gorm:"type:varchar(512);not null" json:"message"`
	Read      bool      `gorm:"not null;default:false" json:"read"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (Notification) TableName() string {
	return "notification"
}
