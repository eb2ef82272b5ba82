package blockchain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	"github.com/rakeshpathania/crypto-exchange-BE/internal/config"
	"github.com/rakeshpathania/crypto-exchange-BE/pkg/errors"
	"github.com/rakeshpathania/crypto-exchange-BE/pkg/logger"
)

// EthereumClient is the account-model chain adapter. Incoming transfers are
// detected through ERC20 Transfer logs on the configured asset contracts.
type EthereumClient struct {
	chainCfg *config.ChainConfig
	client   *ethclient.Client
}

func NewEthereumClient(chainCfg *config.ChainConfig) (*EthereumClient, error) {
	client, err := ethclient.Dial(chainCfg.RPCURL)
	if err != nil {
		return nil, errors.New(errors.ErrChainUnavailable,
			fmt.Sprintf("failed to connect RPC: %s", chainCfg.RPCURL), err)
	}

	return &EthereumClient{
		chainCfg: chainCfg,
		client:   client,
	}, nil
}

func (c *EthereumClient) Close() {
	c.client.Close()
}

func (c *EthereumClient) requestCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, time.Duration(c.chainCfg.RequestTimeout)*time.Second)
}

// GetCurrentHeight returns the latest chain height.
func (c *EthereumClient) GetCurrentHeight(ctx context.Context) (int64, error) {
	ctx, cancel := c.requestCtx(ctx)
	defer cancel()

	header, err := c.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, errors.New(errors.ErrChainUnavailable, "failed to fetch latest block", err)
	}
	return header.Number.Int64(), nil
}

// GetTransactionStatus returns the inclusion height and execution success
// flag of txHash.
func (c *EthereumClient) GetTransactionStatus(ctx context.Context, txHash string) (*TxStatus, error) {
	ctx, cancel := c.requestCtx(ctx)
	defer cancel()

	receipt, err := c.client.TransactionReceipt(ctx, common.HexToHash(txHash))
	if err != nil {
		return nil, errors.New(errors.ErrChainUnavailable,
			fmt.Sprintf("failed to fetch receipt for %s", txHash), err)
	}

	return &TxStatus{
		BlockHeight: receipt.BlockNumber.Int64(),
		Success:     receipt.Status == 1,
	}, nil
}

// ListIncomingTransfers returns the Transfer events paying address on any of
// the monitored contracts, from fromBlock onwards.
func (c *EthereumClient) ListIncomingTransfers(ctx context.Context, address string, fromBlock int64) ([]Transfer, error) {
	ctx, cancel := c.requestCtx(ctx)
	defer cancel()

	contracts := make([]common.Address, 0, len(c.chainCfg.Contracts))
	decimalsByContract := make(map[common.Address]int32, len(c.chainCfg.Contracts))
	for _, contract := range c.chainCfg.Contracts {
		addr := common.HexToAddress(contract.Address)
		contracts = append(contracts, addr)
		decimalsByContract[addr] = contract.Decimals
	}

	transferSig := crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
	toTopic := common.BytesToHash(common.HexToAddress(address).Bytes())

	query := ethereum.FilterQuery{
		FromBlock: big.NewInt(fromBlock),
		Addresses: contracts,
		Topics:    [][]common.Hash{{transferSig}, nil, {toTopic}},
	}

	logs, err := c.client.FilterLogs(ctx, query)
	if err != nil {
		return nil, errors.New(errors.ErrChainUnavailable, "failed to filter transfer logs", err)
	}

	transfers := make([]Transfer, 0, len(logs))
	for _, log := range logs {
		if len(log.Topics) < 3 || len(log.Data) == 0 {
			continue
		}

		raw := new(big.Int).SetBytes(log.Data)
		decimals := decimalsByContract[log.Address]
		if decimals == 0 {
			decimals = 18
		}

		transfers = append(transfers, Transfer{
			TxHash:      log.TxHash.Hex(),
			ToAddress:   common.BytesToAddress(log.Topics[2].Bytes()).Hex(),
			Value:       decimal.NewFromBigInt(raw, -decimals),
			BlockHeight: int64(log.BlockNumber),
		})
	}

	logger.WithFields(map[string]interface{}{
		"chain_id":   c.chainCfg.ID,
		"address":    address,
		"from_block": fromBlock,
		"transfers":  len(transfers),
	}).Debug("listed incoming transfers")

	return transfers, nil
}
