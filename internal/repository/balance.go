package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/rakeshpathania/crypto-exchange-BE/internal/models"
)

type BalanceRepository struct {
	db *gorm.DB
}

func NewBalanceRepository(db *gorm.DB) *BalanceRepository {
	return &BalanceRepository{db: db}
}

// WithTx binds the repository to an open transaction.
func (r *BalanceRepository) WithTx(tx *gorm.DB) *BalanceRepository {
	return &BalanceRepository{db: tx}
}

func (r *BalanceRepository) GetByUserAsset(ctx context.Context, userID, assetID string) (*models.Balance, error) {
	var balance models.Balance
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND asset_id = ?", userID, assetID).
		First(&balance).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &balance, err
}

func (r *BalanceRepository) ListByUser(ctx context.Context, userID string) ([]models.Balance, error) {
	var balances []models.Balance
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Find(&balances).Error
	return balances, err
}

// Credit adds amount to the (userID, assetID) balance, creating the row with
// a zero balance first when absent. The existing row is read under a row lock
// so concurrent credits serialize; call inside the reconciling transaction.
func (r *BalanceRepository) Credit(ctx context.Context, userID, assetID string, amount decimal.Decimal) error {
	var balance models.Balance
	err := lockForUpdate(r.db.WithContext(ctx)).
		Where("user_id = ? AND asset_id = ?", userID, assetID).
		First(&balance).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		balance = models.Balance{
			ID:      uuid.NewString(),
			UserID:  userID,
			AssetID: assetID,
			Balance: decimal.Zero,
		}
		if err := r.db.WithContext(ctx).Create(&balance).Error; err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	return r.db.WithContext(ctx).
		Model(&models.Balance{}).
		Where("id = ?", balance.ID).
		Update("balance", balance.Balance.Add(amount)).Error
}
