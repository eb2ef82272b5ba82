package service

import (
	"context"
	"strings"

	"github.com/rakeshpathania/crypto-exchange-BE/internal/blockchain"
	"github.com/rakeshpathania/crypto-exchange-BE/internal/models"
	"github.com/rakeshpathania/crypto-exchange-BE/pkg/logger"
)

type VerificationResult int

const (
	// VerificationPending means not enough confirmations yet, or the chain
	// could not be queried; the caller retries on a later cycle.
	VerificationPending VerificationResult = iota
	VerificationConfirmed
	VerificationInvalid
)

func (r VerificationResult) String() string {
	switch r {
	case VerificationConfirmed:
		return "confirmed"
	case VerificationInvalid:
		return "invalid"
	}
	return "pending"
}

// TransactionVerifier decides whether an observed transaction is safe to
// credit. It is a pure decision function over chain adapter data and performs
// no ledger writes.
type TransactionVerifier struct {
	account              blockchain.AccountChain
	utxo                 blockchain.UTXOChain
	accountConfirmations int64
	utxoConfirmations    int64
}

func NewTransactionVerifier(
	account blockchain.AccountChain,
	utxo blockchain.UTXOChain,
	accountConfirmations int64,
	utxoConfirmations int64,
) *TransactionVerifier {
	return &TransactionVerifier{
		account:              account,
		utxo:                 utxo,
		accountConfirmations: accountConfirmations,
		utxoConfirmations:    utxoConfirmations,
	}
}

// Verify applies the network's confirmation policy to txHash. Upstream
// failures map to a pending result, never invalid: a transient error must not
// poison the deposit.
func (v *TransactionVerifier) Verify(ctx context.Context, txHash, address, network string) VerificationResult {
	switch network {
	case models.NetworkEthereum:
		return v.verifyAccount(ctx, txHash)
	case models.NetworkBitcoin:
		return v.verifyUTXO(ctx, txHash, address)
	}

	logger.WithFields(map[string]interface{}{
		"network": network,
		"tx_hash": txHash,
	}).Warn("no verification policy for network")
	return VerificationInvalid
}

func (v *TransactionVerifier) verifyAccount(ctx context.Context, txHash string) VerificationResult {
	if v.account == nil {
		logger.Warn("account-model chain adapter not configured")
		return VerificationPending
	}

	status, err := v.account.GetTransactionStatus(ctx, txHash)
	if err != nil {
		logger.WithError(err).WithField("tx_hash", txHash).Warn("transaction status unavailable, will retry")
		return VerificationPending
	}
	if status == nil {
		// not mined yet
		return VerificationPending
	}

	if !status.Success {
		logger.WithField("tx_hash", txHash).Warn("transaction execution failed on chain")
		return VerificationInvalid
	}

	height, err := v.account.GetCurrentHeight(ctx)
	if err != nil {
		logger.WithError(err).Warn("chain height unavailable, will retry")
		return VerificationPending
	}

	confirmations := height - status.BlockHeight
	if confirmations < v.accountConfirmations {
		logger.WithFields(map[string]interface{}{
			"tx_hash":       txHash,
			"confirmations": confirmations,
			"required":      v.accountConfirmations,
		}).Debug("waiting for confirmations")
		return VerificationPending
	}

	return VerificationConfirmed
}

func (v *TransactionVerifier) verifyUTXO(ctx context.Context, txHash, address string) VerificationResult {
	if v.utxo == nil {
		logger.Warn("utxo-model chain adapter not configured")
		return VerificationPending
	}

	outputs, err := v.utxo.GetTransactionOutputs(ctx, txHash)
	if err != nil {
		logger.WithError(err).WithField("tx_hash", txHash).Warn("transaction detail unavailable, will retry")
		return VerificationPending
	}

	for _, output := range outputs {
		if !strings.EqualFold(output.Address, address) || !output.Value.IsPositive() {
			continue
		}
		if output.Confirmations < v.utxoConfirmations {
			logger.WithFields(map[string]interface{}{
				"tx_hash":       txHash,
				"confirmations": output.Confirmations,
				"required":      v.utxoConfirmations,
			}).Debug("waiting for confirmations")
			return VerificationPending
		}
		return VerificationConfirmed
	}

	// no output pays this address, so it is not a deposit for us
	return VerificationInvalid
}
