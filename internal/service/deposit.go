package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/rakeshpathania/crypto-exchange-BE/internal/models"
	"github.com/rakeshpathania/crypto-exchange-BE/internal/repository"
	"github.com/rakeshpathania/crypto-exchange-BE/pkg/errors"
	"github.com/rakeshpathania/crypto-exchange-BE/pkg/logger"
)

// PaymentIntent is the processor-side state of a card payment.
type PaymentIntent struct {
	ID           string
	Status       string
	CryptoAmount decimal.Decimal
}

// PaymentProcessor is the narrow interface to the external card payment
// provider. Its internals are out of scope here.
type PaymentProcessor interface {
	CreatePaymentIntent(ctx context.Context, userID, assetID string, amount decimal.Decimal) (*PaymentIntent, error)
	GetPaymentIntent(ctx context.Context, id string) (*PaymentIntent, error)
}

type CryptoDepositInit struct {
	DepositID string          `json:"deposit_id"`
	Address   string          `json:"address"`
	Network   string          `json:"network"`
	Fee       decimal.Decimal `json:"fee"`
}

type CardDepositInit struct {
	DepositID       string `json:"deposit_id"`
	PaymentIntentID string `json:"payment_intent_id"`
}

// DepositService fronts deposit initiation and card confirmation. Crypto
// deposits are settled by the reconciler; card deposits settle here against
// the payment processor.
type DepositService struct {
	db        *gorm.DB
	users     *repository.UserRepository
	assets    *repository.AssetRepository
	deposits  *repository.DepositRepository
	balances  *repository.BalanceRepository
	issuer    *AddressIssuer
	processor PaymentProcessor
}

func NewDepositService(
	db *gorm.DB,
	users *repository.UserRepository,
	assets *repository.AssetRepository,
	deposits *repository.DepositRepository,
	balances *repository.BalanceRepository,
	issuer *AddressIssuer,
	processor PaymentProcessor,
) *DepositService {
	return &DepositService{
		db:        db,
		users:     users,
		assets:    assets,
		deposits:  deposits,
		balances:  balances,
		issuer:    issuer,
		processor: processor,
	}
}

// InitiateCryptoDeposit issues a receive address and returns it with the
// advisory network fee.
func (s *DepositService) InitiateCryptoDeposit(ctx context.Context, userID, assetID, network string) (*CryptoDepositInit, error) {
	deposit, err := s.issuer.Issue(ctx, userID, assetID, network)
	if err != nil {
		return nil, err
	}

	return &CryptoDepositInit{
		DepositID: deposit.ID,
		Address:   deposit.CryptoAddress,
		Network:   deposit.Network,
		Fee:       s.issuer.NetworkFee(deposit.Network),
	}, nil
}

// InitiateCardDeposit creates a payment intent with the processor and a
// pending card deposit carrying the caller's amount as an estimate.
func (s *DepositService) InitiateCardDeposit(ctx context.Context, userID, assetID string, amount decimal.Decimal) (*CardDepositInit, error) {
	if s.processor == nil {
		return nil, errors.New(errors.ErrInvalidState, "card payment processor not configured", nil)
	}

	userExists, err := s.users.Exists(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !userExists {
		return nil, errors.New(errors.ErrNotFound, "user not found", nil)
	}

	asset, err := s.assets.GetByID(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if asset == nil {
		return nil, errors.New(errors.ErrNotFound, "asset not found", nil)
	}

	intent, err := s.processor.CreatePaymentIntent(ctx, userID, assetID, amount)
	if err != nil {
		return nil, errors.New(errors.ErrPaymentFailed, "failed to create payment intent", err)
	}

	deposit := &models.Deposit{
		ID:              uuid.NewString(),
		UserID:          userID,
		AssetID:         assetID,
		Method:          models.DepositMethodCard,
		PaymentIntentID: intent.ID,
		Amount:          amount,
		Status:          models.DepositStatusPending,
	}

	if err := s.deposits.Create(ctx, deposit); err != nil {
		return nil, err
	}

	return &CardDepositInit{
		DepositID:       deposit.ID,
		PaymentIntentID: intent.ID,
	}, nil
}

// ConfirmCardDeposit settles a pending card deposit against the processor:
// a succeeded payment credits the balance, anything else fails the deposit.
func (s *DepositService) ConfirmCardDeposit(ctx context.Context, depositID string) (*models.Deposit, error) {
	if s.processor == nil {
		return nil, errors.New(errors.ErrInvalidState, "card payment processor not configured", nil)
	}

	deposit, err := s.deposits.GetByID(ctx, depositID)
	if err != nil {
		return nil, err
	}
	if deposit == nil {
		return nil, errors.New(errors.ErrNotFound, "deposit not found", nil)
	}
	if deposit.Status != models.DepositStatusPending {
		return nil, errors.New(errors.ErrInvalidState, "deposit is not pending", nil)
	}
	if deposit.Method != models.DepositMethodCard {
		return nil, errors.New(errors.ErrInvalidState, "deposit is not a card deposit", nil)
	}

	intent, err := s.processor.GetPaymentIntent(ctx, deposit.PaymentIntentID)
	if err != nil {
		return nil, errors.New(errors.ErrPaymentFailed, "failed to fetch payment intent", err)
	}

	if intent.Status != "succeeded" {
		if err := s.deposits.MarkFailed(ctx, deposit.ID); err != nil {
			return nil, err
		}
		deposit.Status = models.DepositStatusFailed
		logger.WithFields(map[string]interface{}{
			"deposit_id":    deposit.ID,
			"intent_status": intent.Status,
		}).Warn("card payment failed")
		return deposit, errors.New(errors.ErrPaymentFailed, "payment did not succeed", nil)
	}

	amount := deposit.Amount
	if intent.CryptoAmount.IsPositive() {
		amount = intent.CryptoAmount
	}

	now := time.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		deposits := s.deposits.WithTx(tx)

		// the pending check above was only a fast-fail; re-check under the row
		// lock so a concurrent confirmation cannot settle the same deposit twice
		current, err := deposits.GetByIDForUpdate(ctx, deposit.ID)
		if err != nil {
			return err
		}
		if current == nil || current.Status != models.DepositStatusPending {
			return errors.New(errors.ErrInvalidState, "deposit is not pending", nil)
		}

		if err := deposits.MarkConfirmed(ctx, deposit.ID, nil, amount, now); err != nil {
			return err
		}
		return s.balances.WithTx(tx).Credit(ctx, deposit.UserID, deposit.AssetID, amount)
	})
	if err != nil {
		if errors.CodeOf(err) == errors.ErrInvalidState {
			return nil, err
		}
		return nil, errors.New(errors.ErrDepositReconcile, "failed to settle card deposit", err)
	}

	deposit.Status = models.DepositStatusConfirmed
	deposit.Amount = amount
	deposit.ConfirmedAt = &now
	return deposit, nil
}

func (s *DepositService) GetUserDeposits(ctx context.Context, userID string) ([]models.Deposit, error) {
	return s.deposits.ListByUser(ctx, userID)
}
