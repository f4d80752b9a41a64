package repository

import (
	"context"
	"errors"
	"time"

	"tenapay/internal/model"

	"gorm.io/gorm"
)

var (
	ErrClaimNotFound      = errors.New("claim not found")
	ErrClaimStatusInvalid = errors.New("invalid claim status transition")
)

type ClaimRepository struct {
	db *gorm.DB
}

func NewClaimRepository(db *gorm.DB) *ClaimRepository {
	return &ClaimRepository{db: db}
}

func (r *ClaimRepository) Create(ctx context.Context, tx *gorm.DB, claim *model.Claim) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(claim).Error
}

func (r *ClaimRepository) GetByClaimNo(ctx context.Context, claimNo string) (*model.Claim, error) {
	var claim model.Claim
	err := r.db.WithContext(ctx).Where("claim_no = ?", claimNo).First(&claim).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrClaimNotFound
		}
		return nil, err
	}
	return &claim, nil
}

// Transition moves a claim from one status to another with a conditional
// update, so a concurrent writer that already moved the claim loses cleanly.
// extra carries columns set together with the status (transaction_no,
// reversal_no, fail_reason).
func (r *ClaimRepository) Transition(ctx context.Context, tx *gorm.DB, claimNo, fromStatus, toStatus string, extra map[string]interface{}) error {
	if !model.CanTransitionTo(fromStatus, toStatus) {
		return ErrClaimStatusInvalid
	}

	if tx == nil {
		tx = r.db
	}

	updates := map[string]interface{}{
		"status": toStatus,
	}
	for k, v := range extra {
		updates[k] = v
	}

	result := tx.WithContext(ctx).
		Model(&model.Claim{}).
		Where("claim_no = ? AND status = ?", claimNo, fromStatus).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrClaimStatusInvalid
	}

	return nil
}

// GetFailedUnreversed finds claims whose transfer permanently failed and whose
// compensating credit has not been applied yet. The reconciliation job sweeps
// these so a member never stays debited with no payout and no refund.
func (r *ClaimRepository) GetFailedUnreversed(ctx context.Context, beforeTime time.Time, limit int) ([]*model.Claim, error) {
	var claims []*model.Claim
	err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", model.ClaimStatusTransferFailed, beforeTime).
		Order("updated_at ASC").
		Limit(limit).
		Find(&claims).Error
	return claims, err
}

func (r *ClaimRepository) ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.Claim, int64, error) {
	var claims []*model.Claim
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Claim{}).Where("user_id = ?", userID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&claims).Error

	return claims, total, err
}
