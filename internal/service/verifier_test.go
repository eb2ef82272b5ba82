package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/rakeshpathania/crypto-exchange-BE/internal/blockchain"
	"github.com/rakeshpathania/crypto-exchange-BE/internal/models"
	"github.com/rakeshpathania/crypto-exchange-BE/pkg/errors"
)

type fakeAccountChain struct {
	transfers []blockchain.Transfer
	statuses  map[string]*blockchain.TxStatus
	height    int64
	err       error
}

func (f *fakeAccountChain) ListIncomingTransfers(ctx context.Context, address string, fromBlock int64) ([]blockchain.Transfer, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.transfers, nil
}

func (f *fakeAccountChain) GetTransactionStatus(ctx context.Context, txHash string) (*blockchain.TxStatus, error) {
	if f.err != nil {
		return nil, f.err
	}
	status, ok := f.statuses[txHash]
	if !ok {
		return nil, errors.New(errors.ErrChainUnavailable, "transaction not indexed yet", nil)
	}
	return status, nil
}

func (f *fakeAccountChain) GetCurrentHeight(ctx context.Context) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.height, nil
}

type fakeUTXOChain struct {
	txHashes []string
	outputs  map[string][]blockchain.TxOutput
	err      error
}

func (f *fakeUTXOChain) ListAddressTransactions(ctx context.Context, address string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.txHashes, nil
}

func (f *fakeUTXOChain) GetTransactionOutputs(ctx context.Context, txHash string) ([]blockchain.TxOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.outputs[txHash], nil
}

func TestVerifyAccountConfirmationThreshold(t *testing.T) {
	account := &fakeAccountChain{
		statuses: map[string]*blockchain.TxStatus{
			"0xabc": {BlockHeight: 100, Success: true},
		},
	}
	verifier := NewTransactionVerifier(account, nil, 12, 3)

	// 11 confirmations: one short of the threshold
	account.height = 111
	assert.Equal(t, VerificationPending,
		verifier.Verify(context.Background(), "0xabc", "0xaddr", models.NetworkEthereum))

	// 12 confirmations: confirmed
	account.height = 112
	assert.Equal(t, VerificationConfirmed,
		verifier.Verify(context.Background(), "0xabc", "0xaddr", models.NetworkEthereum))
}

func TestVerifyAccountExecutionFailed(t *testing.T) {
	account := &fakeAccountChain{
		statuses: map[string]*blockchain.TxStatus{
			"0xdead": {BlockHeight: 100, Success: false},
		},
		height: 200,
	}
	verifier := NewTransactionVerifier(account, nil, 12, 3)

	assert.Equal(t, VerificationInvalid,
		verifier.Verify(context.Background(), "0xdead", "0xaddr", models.NetworkEthereum))
}

func TestVerifyAccountChainErrorIsRetryable(t *testing.T) {
	account := &fakeAccountChain{
		err: errors.New(errors.ErrChainUnavailable, "rpc timeout", nil),
	}
	verifier := NewTransactionVerifier(account, nil, 12, 3)

	// upstream failure must never poison the deposit as invalid
	assert.Equal(t, VerificationPending,
		verifier.Verify(context.Background(), "0xabc", "0xaddr", models.NetworkEthereum))
}

func TestVerifyUTXOConfirmationThreshold(t *testing.T) {
	utxo := &fakeUTXOChain{
		outputs: map[string][]blockchain.TxOutput{
			"btc1": {{Address: "bc1qaddr", Value: decimal.RequireFromString("0.5"), Confirmations: 2}},
		},
	}
	verifier := NewTransactionVerifier(nil, utxo, 12, 3)

	assert.Equal(t, VerificationPending,
		verifier.Verify(context.Background(), "btc1", "bc1qaddr", models.NetworkBitcoin))

	utxo.outputs["btc1"][0].Confirmations = 3
	assert.Equal(t, VerificationConfirmed,
		verifier.Verify(context.Background(), "btc1", "bc1qaddr", models.NetworkBitcoin))
}

func TestVerifyUTXONoOutputToAddress(t *testing.T) {
	utxo := &fakeUTXOChain{
		outputs: map[string][]blockchain.TxOutput{
			"btc1": {{Address: "bc1qother", Value: decimal.RequireFromString("0.5"), Confirmations: 6}},
		},
	}
	verifier := NewTransactionVerifier(nil, utxo, 12, 3)

	assert.Equal(t, VerificationInvalid,
		verifier.Verify(context.Background(), "btc1", "bc1qaddr", models.NetworkBitcoin))
}

func TestVerifyUTXOChainErrorIsRetryable(t *testing.T) {
	utxo := &fakeUTXOChain{
		err: errors.New(errors.ErrChainUnavailable, "explorer down", nil),
	}
	verifier := NewTransactionVerifier(nil, utxo, 12, 3)

	assert.Equal(t, VerificationPending,
		verifier.Verify(context.Background(), "btc1", "bc1qaddr", models.NetworkBitcoin))
}

func TestVerifyUnknownNetwork(t *testing.T) {
	verifier := NewTransactionVerifier(nil, nil, 12, 3)

	assert.Equal(t, VerificationInvalid,
		verifier.Verify(context.Background(), "0xabc", "0xaddr", "DOGECOIN"))
}
