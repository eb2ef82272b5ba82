package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/rakeshpathania/crypto-exchange-BE/internal/models"
)

type DepositRepository struct {
	db *gorm.DB
}

func NewDepositRepository(db *gorm.DB) *DepositRepository {
	return &DepositRepository{db: db}
}

// WithTx binds the repository to an open transaction.
func (r *DepositRepository) WithTx(tx *gorm.DB) *DepositRepository {
	return &DepositRepository{db: tx}
}

func (r *DepositRepository) Create(ctx context.Context, deposit *models.Deposit) error {
	return r.db.WithContext(ctx).Create(deposit).Error
}

func (r *DepositRepository) GetByID(ctx context.Context, id string) (*models.Deposit, error) {
	var deposit models.Deposit
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&deposit).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &deposit, err
}

// GetByIDForUpdate loads the deposit under a row lock so its status can be
// re-checked before a terminal transition. Must be called inside a transaction.
func (r *DepositRepository) GetByIDForUpdate(ctx context.Context, id string) (*models.Deposit, error) {
	var deposit models.Deposit
	err := lockForUpdate(r.db.WithContext(ctx)).
		Where("id = ?", id).
		First(&deposit).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &deposit, err
}

func (r *DepositRepository) ExistsByTxHash(ctx context.Context, txHash string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Deposit{}).
		Where("tx_hash = ?", txHash).
		Count(&count).Error
	return count > 0, err
}

// FindPendingCrypto lists the pending crypto deposits the monitor scans.
func (r *DepositRepository) FindPendingCrypto(ctx context.Context) ([]models.Deposit, error) {
	var deposits []models.Deposit
	err := r.db.WithContext(ctx).
		Where("method = ? AND status = ? AND crypto_address <> ''",
			models.DepositMethodCrypto, models.DepositStatusPending).
		Find(&deposits).Error
	return deposits, err
}

// FindPendingByAddressForUpdate locates the active pending deposit bound to
// address on network, holding a row lock until the surrounding transaction
// ends. Must be called inside a transaction.
func (r *DepositRepository) FindPendingByAddressForUpdate(ctx context.Context, network, address string) (*models.Deposit, error) {
	var deposit models.Deposit
	err := lockForUpdate(r.db.WithContext(ctx)).
		Where("network = ? AND crypto_address = ? AND status = ?",
			network, address, models.DepositStatusPending).
		First(&deposit).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &deposit, err
}

// MarkConfirmed records the matched transaction and moves the deposit to its
// terminal confirmed state. The observed on-chain amount overwrites any
// estimate set at issuance.
func (r *DepositRepository) MarkConfirmed(ctx context.Context, id string, txHash *string, amount decimal.Decimal, confirmedAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Deposit{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"tx_hash":      txHash,
			"amount":       amount,
			"status":       models.DepositStatusConfirmed,
			"confirmed_at": confirmedAt,
		}).Error
}

func (r *DepositRepository) MarkFailed(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Model(&models.Deposit{}).
		Where("id = ? AND status = ?", id, models.DepositStatusPending).
		Update("status", models.DepositStatusFailed).Error
}

// AdvanceLastProcessedBlock raises the scan high-water mark; it never moves
// backwards.
func (r *DepositRepository) AdvanceLastProcessedBlock(ctx context.Context, id string, block int64) error {
	return r.db.WithContext(ctx).
		Model(&models.Deposit{}).
		Where("id = ? AND last_processed_block < ?", id, block).
		Update("last_processed_block", block).Error
}

// AppendProcessedTransaction adds txHash to the deposit's dedup set. The set
// only grows; re-appending an existing hash is a no-op.
func (r *DepositRepository) AppendProcessedTransaction(ctx context.Context, id string, txHash string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var deposit models.Deposit
		if err := lockForUpdate(tx).
			Where("id = ?", id).
			First(&deposit).Error; err != nil {
			return err
		}

		if deposit.HasProcessed(txHash) {
			return nil
		}

		processed := append(deposit.ProcessedTransactions, txHash)
		return tx.Model(&deposit).
			Update("processed_transactions", processed).Error
	})
}

func (r *DepositRepository) ListByUser(ctx context.Context, userID string) ([]models.Deposit, error) {
	var deposits []models.Deposit
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&deposits).Error
	return deposits, err
}
