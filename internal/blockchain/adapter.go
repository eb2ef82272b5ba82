package blockchain

import (
	"context"

	"github.com/shopspring/decimal"
)

// Transfer is one observed incoming transfer on an account-model chain.
type Transfer struct {
	TxHash      string
	ToAddress   string
	Value       decimal.Decimal
	BlockHeight int64
}

// TxStatus is the inclusion and execution state of an account-model
// transaction.
type TxStatus struct {
	BlockHeight int64
	Success     bool
}

// TxOutput is one output of a UTXO-model transaction.
type TxOutput struct {
	Address       string
	Value         decimal.Decimal
	Confirmations int64
}

// AccountChain queries an account-model chain (Ethereum-style). A failed call
// yields no observations; callers treat errors as retryable.
type AccountChain interface {
	ListIncomingTransfers(ctx context.Context, address string, fromBlock int64) ([]Transfer, error)
	GetTransactionStatus(ctx context.Context, txHash string) (*TxStatus, error)
	GetCurrentHeight(ctx context.Context) (int64, error)
}

// UTXOChain queries a UTXO-model chain (Bitcoin-style), where confirmation is
// tracked per output rather than by height distance.
type UTXOChain interface {
	ListAddressTransactions(ctx context.Context, address string) ([]string, error)
	GetTransactionOutputs(ctx context.Context, txHash string) ([]TxOutput, error)
}
