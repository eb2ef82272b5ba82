package service

import (
	"context"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rakeshpathania/crypto-exchange-BE/internal/models"
	"github.com/rakeshpathania/crypto-exchange-BE/internal/repository"
	"github.com/rakeshpathania/crypto-exchange-BE/pkg/errors"
	"github.com/rakeshpathania/crypto-exchange-BE/pkg/logger"
)

// AddressRegistry receives newly issued receive addresses so future scans
// include them. Registration is a notification, not a synchronous dependency.
type AddressRegistry interface {
	RegisterAddress(network, address string)
}

// AddressIssuer reserves a fresh receive address per issuance and persists it
// as a pending deposit placeholder. Addresses are never reused: at most one
// pending deposit exists per address by construction.
type AddressIssuer struct {
	users    *repository.UserRepository
	assets   *repository.AssetRepository
	deposits *repository.DepositRepository
	registry AddressRegistry
	fees     map[string]string
}

func NewAddressIssuer(
	users *repository.UserRepository,
	assets *repository.AssetRepository,
	deposits *repository.DepositRepository,
	registry AddressRegistry,
	fees map[string]string,
) *AddressIssuer {
	return &AddressIssuer{
		users:    users,
		assets:   assets,
		deposits: deposits,
		registry: registry,
		fees:     fees,
	}
}

// Issue validates the user and asset, generates a network-appropriate receive
// address and persists the pending deposit bound to it.
func (s *AddressIssuer) Issue(ctx context.Context, userID, assetID, network string) (*models.Deposit, error) {
	normalized, ok := models.NormalizeNetwork(network)
	if !ok {
		return nil, errors.New(errors.ErrUnsupportedNetwork, "unknown network: "+network, nil)
	}

	userExists, err := s.users.Exists(ctx, userID)
	if err != nil {
		return nil, errors.New(errors.ErrAddressIssue, "failed to look up user", err)
	}
	if !userExists {
		return nil, errors.New(errors.ErrNotFound, "user not found", nil)
	}

	asset, err := s.assets.GetByID(ctx, assetID)
	if err != nil {
		return nil, errors.New(errors.ErrAddressIssue, "failed to look up asset", err)
	}
	if asset == nil {
		return nil, errors.New(errors.ErrNotFound, "asset not found", nil)
	}

	address, err := s.generateAddress(normalized)
	if err != nil {
		return nil, err
	}

	deposit := &models.Deposit{
		ID:                    uuid.NewString(),
		UserID:                userID,
		AssetID:               assetID,
		Method:                models.DepositMethodCrypto,
		Network:               normalized,
		CryptoAddress:         address,
		Amount:                decimal.Zero,
		Status:                models.DepositStatusPending,
		ProcessedTransactions: models.StringArray{},
	}

	if err := s.deposits.Create(ctx, deposit); err != nil {
		return nil, errors.New(errors.ErrAddressIssue, "failed to persist deposit", err)
	}

	if s.registry != nil {
		s.registry.RegisterAddress(normalized, address)
	}

	logger.WithFields(map[string]interface{}{
		"deposit_id": deposit.ID,
		"user_id":    userID,
		"asset_id":   assetID,
		"network":    normalized,
		"address":    address,
	}).Info("deposit address issued")

	return deposit, nil
}

func (s *AddressIssuer) generateAddress(network string) (string, error) {
	switch network {
	case models.NetworkEthereum:
		// the key is handed off to the wallet/custody service out of band;
		// only the derived address is retained here
		key, err := crypto.GenerateKey()
		if err != nil {
			return "", errors.New(errors.ErrAddressIssue, "failed to generate keypair", err)
		}
		return crypto.PubkeyToAddress(key.PublicKey).Hex(), nil
	default:
		return "", errors.New(errors.ErrUnsupportedNetwork,
			"address generation not supported for network: "+network, nil)
	}
}

// NetworkFee returns the advisory network fee for display. The value comes
// from configuration and may be stale; it is not a guarantee.
func (s *AddressIssuer) NetworkFee(network string) decimal.Decimal {
	normalized, ok := models.NormalizeNetwork(network)
	if !ok {
		return decimal.Zero
	}
	fee, err := decimal.NewFromString(s.fees[normalized])
	if err != nil {
		return decimal.Zero
	}
	return fee
}
