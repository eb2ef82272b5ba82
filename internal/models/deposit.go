package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type DepositStatus string

const (
	DepositStatusPending   DepositStatus = "pending"
	DepositStatusConfirmed DepositStatus = "confirmed"
	DepositStatusFailed    DepositStatus = "failed"
)

type DepositMethod string

const (
	DepositMethodCard   DepositMethod = "card"
	DepositMethodCrypto DepositMethod = "crypto"
)

const (
	NetworkEthereum = "ETHEREUM"
	NetworkBitcoin  = "BITCOIN"
)

// NormalizeNetwork maps user-supplied network names onto the known chain
// identifiers. Webhook senders are not consistent about casing.
func NormalizeNetwork(network string) (string, bool) {
	switch strings.ToUpper(strings.TrimSpace(network)) {
	case NetworkEthereum:
		return NetworkEthereum, true
	case NetworkBitcoin:
		return NetworkBitcoin, true
	}
	return "", false
}

// StringArray is a JSON-backed string list column.
type StringArray []string

func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		a = StringArray{}
	}
	return json.Marshal(a)
}

func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = StringArray{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, a)
	case string:
		return json.Unmarshal([]byte(v), a)
	}
	return errors.New("type assertion to []byte failed")
}

func (a StringArray) Contains(s string) bool {
	for _, v := range a {
		if v == s {
			return true
		}
	}
	return false
}

type Deposit struct {
	ID            string        `gorm:"primaryKey;size:36" json:"id"`
	UserID        string        `gorm:"size:36;not null;index" json:"user_id"`
	AssetID       string        `gorm:"size:36;not null;index" json:"asset_id"`
	Method        DepositMethod `gorm:"size:10;not null" json:"method"`
	Network       string        `gorm:"size:20;index:idx_network_address" json:"network"`
	CryptoAddress string        `gorm:"size:64;index:idx_network_address" json:"crypto_address"`
	// TxHash stays null until a chain transaction is matched; the unique
	// index is what enforces exactly-once crediting per transaction.
	TxHash                *string         `gorm:"size:66;uniqueIndex:uk_deposit_tx" json:"tx_hash"`
	PaymentIntentID       string          `gorm:"size:64" json:"payment_intent_id,omitempty"`
	Amount                decimal.Decimal `gorm:"type:decimal(36,18);not null;default:0" json:"amount"`
	Status                DepositStatus   `gorm:"size:10;not null;default:pending;index" json:"status"`
	LastProcessedBlock    int64           `gorm:"not null;default:0" json:"last_processed_block"`
	ProcessedTransactions StringArray     `gorm:"type:json" json:"processed_transactions"`
	ConfirmedAt           *time.Time      `json:"confirmed_at"`
	CreatedAt             time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Deposit) TableName() string {
	return "deposits"
}

// HasProcessed reports whether txHash was already considered for this address.
func (d *Deposit) HasProcessed(txHash string) bool {
	return d.ProcessedTransactions.Contains(txHash)
}
