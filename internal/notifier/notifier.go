package notifier

import (
	"context"
	"time"
)

// DepositConfirmedEvent is published after a deposit credit commits.
type DepositConfirmedEvent struct {
	DepositID   string    `json:"deposit_id"`
	UserID      string    `json:"user_id"`
	AssetID     string    `json:"asset_id"`
	TxHash      string    `json:"tx_hash,omitempty"`
	Network     string    `json:"network,omitempty"`
	Amount      string    `json:"amount"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

type EventPublisher interface {
	PublishDepositConfirmed(ctx context.Context, event *DepositConfirmedEvent) error
	Close() error
}

// NopPublisher is used when event publishing is disabled.
type NopPublisher struct{}

func (NopPublisher) PublishDepositConfirmed(ctx context.Context, event *DepositConfirmedEvent) error {
	return nil
}

func (NopPublisher) Close() error {
	return nil
}
