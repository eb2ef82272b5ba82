package blockchain

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rakeshpathania/crypto-exchange-BE/internal/config"
	"github.com/rakeshpathania/crypto-exchange-BE/pkg/errors"
)

// BitcoinClient is the UTXO-model chain adapter, backed by a Blockchair-style
// explorer API. Output values come back in satoshis.
type BitcoinClient struct {
	chainCfg *config.ChainConfig
	http     *http.Client
}

func NewBitcoinClient(chainCfg *config.ChainConfig) *BitcoinClient {
	return &BitcoinClient{
		chainCfg: chainCfg,
		http: &http.Client{
			Timeout: time.Duration(chainCfg.RequestTimeout) * time.Second,
		},
	}
}

type addressDashboard struct {
	Data map[string]struct {
		Transactions []string `json:"transactions"`
	} `json:"data"`
}

type rawTransaction struct {
	Data map[string]struct {
		Confirmations int64 `json:"confirmations"`
		Vout          []struct {
			ScriptpubkeyAddress string `json:"scriptpubkey_address"`
			Value               int64  `json:"value"`
		} `json:"vout"`
	} `json:"data"`
}

func (c *BitcoinClient) get(ctx context.Context, path string, out interface{}) error {
	endpoint := fmt.Sprintf("%s%s", c.chainCfg.APIURL, path)
	if c.chainCfg.APIKey != "" {
		endpoint += "?key=" + url.QueryEscape(c.chainCfg.APIKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return errors.New(errors.ErrChainUnavailable, "failed to build request", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.New(errors.ErrChainUnavailable, "explorer API request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.New(errors.ErrChainUnavailable,
			fmt.Sprintf("explorer API returned status %d", resp.StatusCode), nil)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.New(errors.ErrChainUnavailable, "failed to decode explorer response", err)
	}

	return nil
}

// ListAddressTransactions returns the transaction hashes touching address.
func (c *BitcoinClient) ListAddressTransactions(ctx context.Context, address string) ([]string, error) {
	var dashboard addressDashboard
	if err := c.get(ctx, "/dashboards/address/"+address, &dashboard); err != nil {
		return nil, err
	}

	entry, ok := dashboard.Data[address]
	if !ok {
		return nil, nil
	}
	return entry.Transactions, nil
}

// GetTransactionOutputs returns the outputs of txHash with their confirmation
// counts, values converted from satoshis to whole coins.
func (c *BitcoinClient) GetTransactionOutputs(ctx context.Context, txHash string) ([]TxOutput, error) {
	var raw rawTransaction
	if err := c.get(ctx, "/raw/transaction/"+txHash, &raw); err != nil {
		return nil, err
	}

	tx, ok := raw.Data[txHash]
	if !ok {
		return nil, nil
	}

	outputs := make([]TxOutput, 0, len(tx.Vout))
	for _, vout := range tx.Vout {
		outputs = append(outputs, TxOutput{
			Address:       vout.ScriptpubkeyAddress,
			Value:         decimal.New(vout.Value, -8),
			Confirmations: tx.Confirmations,
		})
	}
	return outputs, nil
}
