package repository

import (
	"context"
	"errors"
	"strings"

	"tenapay/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ErrDuplicateReference means a ledger entry with the same (type, reference)
// already exists. The unique index raises it when two deliveries of the same
// external event race past the read-side idempotency probe.
var ErrDuplicateReference = errors.New("duplicate transaction reference")

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create appends a ledger entry. Entries are immutable: there is deliberately
// no update or delete method on this repository.
func (r *TransactionRepository) Create(ctx context.Context, tx *gorm.DB, trans *model.Transaction) error {
	if tx == nil {
		tx = r.db
	}
	err := tx.WithContext(ctx).Create(trans).Error
	if err != nil && isDuplicateKeyError(err) {
		return ErrDuplicateReference
	}
	return err
}

func (r *TransactionRepository) GetByTransactionNo(ctx context.Context, transactionNo string) (*model.Transaction, error) {
	var trans model.Transaction
	err := r.db.WithContext(ctx).Where("transaction_no = ?", transactionNo).First(&trans).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &trans, nil
}

// GetByTypeAndReference is the idempotency probe: a CREDIT carrying a gateway
// session id that is already on the ledger must not be applied again.
func (r *TransactionRepository) GetByTypeAndReference(ctx context.Context, tx *gorm.DB, txnType, reference string) (*model.Transaction, error) {
	if tx == nil {
		tx = r.db
	}
	var trans model.Transaction
	err := tx.WithContext(ctx).
		Where("type = ? AND reference = ?", txnType, reference).
		First(&trans).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &trans, nil
}

func (r *TransactionRepository) ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.Transaction, int64, error) {
	var transactions []*model.Transaction
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Transaction{}).Where("user_id = ?", userID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&transactions).Error

	return transactions, total, err
}

// SumByType totals one side of the ledger, platform-wide when userID is zero.
func (r *TransactionRepository) SumByType(ctx context.Context, userID int64, txnType string) (decimal.Decimal, error) {
	var sum decimal.NullDecimal

	query := r.db.WithContext(ctx).
		Model(&model.Transaction{}).
		Select("SUM(amount)").
		Where("type = ?", txnType)
	if userID != 0 {
		query = query.Where("user_id = ?", userID)
	}

	if err := query.Scan(&sum).Error; err != nil {
		return decimal.Zero, err
	}
	if !sum.Valid {
		return decimal.Zero, nil
	}
	return sum.Decimal, nil
}

func isDuplicateKeyError(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// MySQL error 1062; gorm does not always translate it
	return strings.Contains(err.Error(), "Duplicate entry")
}
