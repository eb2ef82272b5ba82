package service

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/rakeshpathania/crypto-exchange-BE/internal/models"
	"github.com/rakeshpathania/crypto-exchange-BE/pkg/logger"
)

func init() {
	logger.Init("error", "text", "stderr")
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// a single connection keeps every session on the same in-memory database
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.User{}, &models.Asset{}, &models.Deposit{}, &models.Balance{}))

	return db
}

func seedUserAsset(t *testing.T, db *gorm.DB, network string) (userID, assetID string) {
	t.Helper()

	userID = uuid.NewString()
	assetID = uuid.NewString()

	require.NoError(t, db.Create(&models.User{ID: userID, Email: userID + "@test.local"}).Error)
	require.NoError(t, db.Create(&models.Asset{
		ID:       assetID,
		Symbol:   "TST",
		Name:     "Test Asset",
		Network:  network,
		Decimals: 18,
	}).Error)
	return userID, assetID
}

func seedPendingDeposit(t *testing.T, db *gorm.DB, userID, assetID, network, address string) *models.Deposit {
	t.Helper()

	deposit := &models.Deposit{
		ID:                    uuid.NewString(),
		UserID:                userID,
		AssetID:               assetID,
		Method:                models.DepositMethodCrypto,
		Network:               network,
		CryptoAddress:         address,
		Amount:                decimal.Zero,
		Status:                models.DepositStatusPending,
		ProcessedTransactions: models.StringArray{},
	}
	require.NoError(t, db.Create(deposit).Error)
	return deposit
}
