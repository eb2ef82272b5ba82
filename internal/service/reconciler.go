package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/rakeshpathania/crypto-exchange-BE/internal/models"
	"github.com/rakeshpathania/crypto-exchange-BE/internal/notifier"
	"github.com/rakeshpathania/crypto-exchange-BE/internal/repository"
	"github.com/rakeshpathania/crypto-exchange-BE/pkg/errors"
	"github.com/rakeshpathania/crypto-exchange-BE/pkg/logger"
)

// ReconcileOutcome tells the calling detection driver what happened, so it
// knows whether the transaction is settled or must be retried later.
type ReconcileOutcome int

const (
	// ReconcileCredited means this call performed the one balance credit.
	ReconcileCredited ReconcileOutcome = iota
	// ReconcileDuplicate means the transaction was already recorded.
	ReconcileDuplicate
	// ReconcileNotConfirmed means verification has not passed yet; retry.
	ReconcileNotConfirmed
	// ReconcileInvalid means the transaction can never be credited.
	ReconcileInvalid
	// ReconcileNoMatch means no pending deposit is bound to the address.
	ReconcileNoMatch
)

// DepositReconciler maps observed chain transactions onto pending deposits
// and credits balances exactly once. All detection drivers converge here; the
// ledger transaction is the only coordination between them.
type DepositReconciler struct {
	db        *gorm.DB
	deposits  *repository.DepositRepository
	balances  *repository.BalanceRepository
	verifier  *TransactionVerifier
	publisher notifier.EventPublisher
}

func NewDepositReconciler(
	db *gorm.DB,
	deposits *repository.DepositRepository,
	balances *repository.BalanceRepository,
	verifier *TransactionVerifier,
	publisher notifier.EventPublisher,
) *DepositReconciler {
	if publisher == nil {
		publisher = notifier.NopPublisher{}
	}
	return &DepositReconciler{
		db:        db,
		deposits:  deposits,
		balances:  balances,
		verifier:  verifier,
		publisher: publisher,
	}
}

// Reconcile handles one observed transaction. Safe to invoke concurrently and
// redundantly for the same txHash: the unique tx-hash index plus the pending
// deposit row lock guarantee at most one credit per transaction.
func (s *DepositReconciler) Reconcile(ctx context.Context, txHash, address string, amount decimal.Decimal, network string) (ReconcileOutcome, error) {
	normalized, ok := models.NormalizeNetwork(network)
	if !ok {
		return ReconcileInvalid, errors.New(errors.ErrUnsupportedNetwork,
			"unknown network: "+network, nil)
	}

	// cheap pre-check before any chain traffic
	exists, err := s.deposits.ExistsByTxHash(ctx, txHash)
	if err != nil {
		return ReconcileNotConfirmed, errors.New(errors.ErrDepositReconcile, "failed to check transaction", err)
	}
	if exists {
		logger.WithField("tx_hash", txHash).Debug("transaction already processed")
		return ReconcileDuplicate, nil
	}

	// chain calls stay outside the ledger transaction so no row lock is held
	// across network I/O
	switch s.verifier.Verify(ctx, txHash, address, normalized) {
	case VerificationPending:
		return ReconcileNotConfirmed, nil
	case VerificationInvalid:
		logger.WithFields(map[string]interface{}{
			"tx_hash": txHash,
			"address": address,
			"network": normalized,
		}).Warn("transaction failed verification")
		return ReconcileInvalid, nil
	}

	outcome := ReconcileCredited
	var confirmed *models.Deposit

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		deposits := s.deposits.WithTx(tx)
		balances := s.balances.WithTx(tx)

		// re-check under the transaction: another driver may have won the
		// race since the pre-check
		exists, err := deposits.ExistsByTxHash(ctx, txHash)
		if err != nil {
			return err
		}
		if exists {
			outcome = ReconcileDuplicate
			return nil
		}

		deposit, err := deposits.FindPendingByAddressForUpdate(ctx, normalized, address)
		if err != nil {
			return err
		}
		if deposit == nil {
			logger.WithFields(map[string]interface{}{
				"address": address,
				"network": normalized,
				"tx_hash": txHash,
			}).Warn("no pending deposit for address")
			outcome = ReconcileNoMatch
			return nil
		}

		now := time.Now()
		if err := deposits.MarkConfirmed(ctx, deposit.ID, &txHash, amount, now); err != nil {
			return err
		}

		if err := balances.Credit(ctx, deposit.UserID, deposit.AssetID, amount); err != nil {
			return err
		}

		deposit.TxHash = &txHash
		deposit.Amount = amount
		deposit.Status = models.DepositStatusConfirmed
		deposit.ConfirmedAt = &now
		confirmed = deposit
		return nil
	})

	if err != nil {
		return ReconcileNotConfirmed, errors.New(errors.ErrDepositReconcile,
			"reconcile transaction failed", err)
	}

	if outcome != ReconcileCredited || confirmed == nil {
		return outcome, nil
	}

	logger.WithFields(map[string]interface{}{
		"deposit_id": confirmed.ID,
		"user_id":    confirmed.UserID,
		"asset_id":   confirmed.AssetID,
		"tx_hash":    txHash,
		"amount":     amount.String(),
		"network":    normalized,
	}).Info("deposit confirmed and credited")

	// post-commit, best effort: the ledger is already consistent
	event := &notifier.DepositConfirmedEvent{
		DepositID:   confirmed.ID,
		UserID:      confirmed.UserID,
		AssetID:     confirmed.AssetID,
		TxHash:      txHash,
		Network:     normalized,
		Amount:      amount.String(),
		ConfirmedAt: *confirmed.ConfirmedAt,
	}
	if err := s.publisher.PublishDepositConfirmed(ctx, event); err != nil {
		logger.WithError(err).Warn("failed to publish deposit confirmed event")
	}

	return ReconcileCredited, nil
}
