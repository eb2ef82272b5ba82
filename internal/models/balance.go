package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Balance struct {
	ID        string          `gorm:"primaryKey;size:36" json:"id"`
	UserID    string          `gorm:"uniqueIndex:uk_user_asset;size:36;not null" json:"user_id"`
	AssetID   string          `gorm:"uniqueIndex:uk_user_asset;size:36;not null" json:"asset_id"`
	Balance   decimal.Decimal `gorm:"type:decimal(36,18);not null;default:0" json:"balance"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Balance) TableName() string {
	return "balances"
}
