package repository

import (
	"context"
	"errors"

	"tenapay/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrAccountNotFound   = errors.New("account not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Create(ctx context.Context, account *model.Account) error {
	return r.db.WithContext(ctx).Create(account).Error
}

func (r *AccountRepository) GetByID(ctx context.Context, id int64) (*model.Account, error) {
	return r.getBy(ctx, r.db, "id = ?", id)
}

// GetByIDTx reads the account inside an open transaction. Used after a
// conditional update to observe the post-mutation balance: the row lock taken
// by the update guarantees the value read here is the committed outcome.
func (r *AccountRepository) GetByIDTx(ctx context.Context, tx *gorm.DB, id int64) (*model.Account, error) {
	return r.getBy(ctx, tx, "id = ?", id)
}

func (r *AccountRepository) GetByPhone(ctx context.Context, phone string) (*model.Account, error) {
	return r.getBy(ctx, r.db, "phone = ?", phone)
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	return r.getBy(ctx, r.db, "email = ?", email)
}

func (r *AccountRepository) getBy(ctx context.Context, tx *gorm.DB, query string, arg interface{}) (*model.Account, error) {
	var account model.Account
	err := tx.WithContext(ctx).Where(query, arg).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// Credit atomically increases the balance.
func (r *AccountRepository) Credit(ctx context.Context, tx *gorm.DB, userID int64, amount decimal.Decimal) error {
	result := tx.WithContext(ctx).
		Model(&model.Account{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"balance": gorm.Expr("balance + ?", amount),
			"version": gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}

	return nil
}

// Debit atomically decreases the balance, guarded so it can never go
// negative. The guard is the authoritative funds check: concurrent debits
// against the same account race here, and the loser gets
// ErrInsufficientFunds instead of driving the balance below zero.
func (r *AccountRepository) Debit(ctx context.Context, tx *gorm.DB, userID int64, amount decimal.Decimal) error {
	result := tx.WithContext(ctx).
		Model(&model.Account{}).
		Where("id = ? AND balance >= ?", userID, amount).
		Updates(map[string]interface{}{
			"balance": gorm.Expr("balance - ?", amount),
			"version": gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		if _, err := r.getBy(ctx, tx, "id = ?", userID); err != nil {
			return err
		}
		return ErrInsufficientFunds
	}

	return nil
}

func (r *AccountRepository) Count(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&model.Account{}).Count(&total).Error
	return total, err
}

func (r *AccountRepository) SumBalances(ctx context.Context) (decimal.Decimal, error) {
	var sum decimal.NullDecimal
	err := r.db.WithContext(ctx).
		Model(&model.Account{}).
		Select("SUM(balance)").
		Scan(&sum).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !sum.Valid {
		return decimal.Zero, nil
	}
	return sum.Decimal, nil
}

func (r *AccountRepository) List(ctx context.Context, page, pageSize int) ([]*model.Account, int64, error) {
	var accounts []*model.Account
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Account{})

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&accounts).Error

	return accounts, total, err
}
