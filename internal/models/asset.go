package models

import (
	"time"
)

// Asset is static reference data; the deposit pipeline only reads it.
type Asset struct {
	ID              string    `gorm:"primaryKey;size:36" json:"id"`
	Symbol          string    `gorm:"size:20;not null" json:"symbol"`
	Name            string    `gorm:"size:100;not null" json:"name"`
	Network         string    `gorm:"size:20;not null" json:"network"`
	ContractAddress string    `gorm:"size:64" json:"contract_address"`
	Decimals        int32     `gorm:"not null" json:"decimals"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Asset) TableName() string {
	return "assets"
}
