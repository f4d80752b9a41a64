package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// Account holds a member's identity and health-fund balance.
// The balance is the single source of truth for available funds and is only
// ever changed through the conditional updates in AccountRepository; no code
// path may read it, compute a new value and write it back.
type Account struct {
	ID           int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	Email        string          `gorm:"type:varchar(128);uniqueIndex;not null" json:"email"`
	Phone        string          `gorm:"type:varchar(16);uniqueIndex;not null" json:"phone"` // 251XXXXXXXXX
	PasswordHash string          `gorm:"type:varchar(128);not null" json:"-"`
	Role         string          `gorm:"type:varchar(16);not null;default:USER" json:"role"`
	Balance      decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"balance"` // ETB, never negative
	Version      int             `gorm:"not null;default:0" json:"version"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Account) TableName() string {
	return "account"
}
