package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/rakeshpathania/crypto-exchange-BE/internal/blockchain"
	"github.com/rakeshpathania/crypto-exchange-BE/internal/models"
	"github.com/rakeshpathania/crypto-exchange-BE/internal/notifier"
	"github.com/rakeshpathania/crypto-exchange-BE/internal/repository"
)

type capturingPublisher struct {
	events []*notifier.DepositConfirmedEvent
}

func (p *capturingPublisher) PublishDepositConfirmed(ctx context.Context, event *notifier.DepositConfirmedEvent) error {
	p.events = append(p.events, event)
	return nil
}

func (p *capturingPublisher) Close() error { return nil }

func newTestReconciler(t *testing.T, db *gorm.DB, account blockchain.AccountChain) (*DepositReconciler, *capturingPublisher) {
	t.Helper()

	publisher := &capturingPublisher{}
	verifier := NewTransactionVerifier(account, nil, 12, 3)
	reconciler := NewDepositReconciler(db,
		repository.NewDepositRepository(db),
		repository.NewBalanceRepository(db),
		verifier, publisher)
	return reconciler, publisher
}

func confirmedAccountChain(txHash string) *fakeAccountChain {
	return &fakeAccountChain{
		statuses: map[string]*blockchain.TxStatus{
			txHash: {BlockHeight: 100, Success: true},
		},
		height: 112,
	}
}

func TestReconcileCreditsExactlyOnce(t *testing.T) {
	db := newTestDB(t)
	userID, assetID := seedUserAsset(t, db, models.NetworkEthereum)
	deposit := seedPendingDeposit(t, db, userID, assetID, models.NetworkEthereum, "0xDepositAddr")

	reconciler, publisher := newTestReconciler(t, db, confirmedAccountChain("0xabc"))
	amount := decimal.RequireFromString("1.5")

	outcome, err := reconciler.Reconcile(context.Background(), "0xabc", "0xDepositAddr", amount, "ETHEREUM")
	require.NoError(t, err)
	assert.Equal(t, ReconcileCredited, outcome)

	// second delivery of the same transaction no-ops
	outcome, err = reconciler.Reconcile(context.Background(), "0xabc", "0xDepositAddr", amount, "ETHEREUM")
	require.NoError(t, err)
	assert.Equal(t, ReconcileDuplicate, outcome)

	var got models.Deposit
	require.NoError(t, db.First(&got, "id = ?", deposit.ID).Error)
	assert.Equal(t, models.DepositStatusConfirmed, got.Status)
	require.NotNil(t, got.TxHash)
	assert.Equal(t, "0xabc", *got.TxHash)
	require.NotNil(t, got.ConfirmedAt)
	assert.True(t, got.Amount.Equal(amount))

	balance, err := repository.NewBalanceRepository(db).GetByUserAsset(context.Background(), userID, assetID)
	require.NoError(t, err)
	require.NotNil(t, balance)
	assert.True(t, balance.Balance.Equal(amount), "expected 1.5, got %s", balance.Balance)

	require.Len(t, publisher.events, 1)
	assert.Equal(t, deposit.ID, publisher.events[0].DepositID)
}

func TestReconcileNoCreditWithoutVerification(t *testing.T) {
	db := newTestDB(t)
	userID, assetID := seedUserAsset(t, db, models.NetworkEthereum)
	deposit := seedPendingDeposit(t, db, userID, assetID, models.NetworkEthereum, "0xDepositAddr")

	// only 5 confirmations
	account := &fakeAccountChain{
		statuses: map[string]*blockchain.TxStatus{
			"0xabc": {BlockHeight: 100, Success: true},
		},
		height: 105,
	}
	reconciler, publisher := newTestReconciler(t, db, account)

	outcome, err := reconciler.Reconcile(context.Background(), "0xabc", "0xDepositAddr",
		decimal.RequireFromString("1.5"), "ETHEREUM")
	require.NoError(t, err)
	assert.Equal(t, ReconcileNotConfirmed, outcome)

	var got models.Deposit
	require.NoError(t, db.First(&got, "id = ?", deposit.ID).Error)
	assert.Equal(t, models.DepositStatusPending, got.Status)
	assert.Nil(t, got.TxHash)

	balance, err := repository.NewBalanceRepository(db).GetByUserAsset(context.Background(), userID, assetID)
	require.NoError(t, err)
	assert.Nil(t, balance)
	assert.Empty(t, publisher.events)
}

func TestReconcileInvalidTransactionLeavesLedgerUntouched(t *testing.T) {
	db := newTestDB(t)
	userID, assetID := seedUserAsset(t, db, models.NetworkEthereum)
	seedPendingDeposit(t, db, userID, assetID, models.NetworkEthereum, "0xDepositAddr")

	account := &fakeAccountChain{
		statuses: map[string]*blockchain.TxStatus{
			"0xdead": {BlockHeight: 100, Success: false},
		},
		height: 200,
	}
	reconciler, _ := newTestReconciler(t, db, account)

	outcome, err := reconciler.Reconcile(context.Background(), "0xdead", "0xDepositAddr",
		decimal.RequireFromString("1.5"), "ETHEREUM")
	require.NoError(t, err)
	assert.Equal(t, ReconcileInvalid, outcome)

	balance, err := repository.NewBalanceRepository(db).GetByUserAsset(context.Background(), userID, assetID)
	require.NoError(t, err)
	assert.Nil(t, balance)
}

func TestReconcileUnknownAddressDoesNotCredit(t *testing.T) {
	db := newTestDB(t)
	reconciler, publisher := newTestReconciler(t, db, confirmedAccountChain("0xabc"))

	outcome, err := reconciler.Reconcile(context.Background(), "0xabc", "0xUnknown",
		decimal.RequireFromString("1.5"), "ETHEREUM")
	require.NoError(t, err)
	assert.Equal(t, ReconcileNoMatch, outcome)

	var count int64
	require.NoError(t, db.Model(&models.Balance{}).Count(&count).Error)
	assert.Zero(t, count)
	assert.Empty(t, publisher.events)
}

func TestReconcileUnsupportedNetwork(t *testing.T) {
	db := newTestDB(t)
	reconciler, _ := newTestReconciler(t, db, confirmedAccountChain("0xabc"))

	_, err := reconciler.Reconcile(context.Background(), "0xabc", "0xAddr",
		decimal.RequireFromString("1.5"), "DOGECOIN")
	require.Error(t, err)
}

func TestReconcileRollsBackOnBalanceFailure(t *testing.T) {
	db := newTestDB(t)
	userID, assetID := seedUserAsset(t, db, models.NetworkEthereum)
	deposit := seedPendingDeposit(t, db, userID, assetID, models.NetworkEthereum, "0xDepositAddr")

	// fail the balance write after the deposit row was already mutated
	require.NoError(t, db.Callback().Create().Before("gorm:create").
		Register("fail_balance_create", func(tx *gorm.DB) {
			if tx.Statement.Table == "balances" {
				tx.AddError(fmt.Errorf("injected balance write failure"))
			}
		}))

	reconciler, publisher := newTestReconciler(t, db, confirmedAccountChain("0xabc"))

	_, err := reconciler.Reconcile(context.Background(), "0xabc", "0xDepositAddr",
		decimal.RequireFromString("1.5"), "ETHEREUM")
	require.Error(t, err)

	// all-or-nothing: the deposit mutation must have rolled back too
	var got models.Deposit
	require.NoError(t, db.First(&got, "id = ?", deposit.ID).Error)
	assert.Equal(t, models.DepositStatusPending, got.Status)
	assert.Nil(t, got.TxHash)
	assert.Nil(t, got.ConfirmedAt)

	var count int64
	require.NoError(t, db.Model(&models.Balance{}).Count(&count).Error)
	assert.Zero(t, count)
	assert.Empty(t, publisher.events)
}

func TestReconcileObservedAmountIsAuthoritative(t *testing.T) {
	db := newTestDB(t)
	userID, assetID := seedUserAsset(t, db, models.NetworkEthereum)
	deposit := seedPendingDeposit(t, db, userID, assetID, models.NetworkEthereum, "0xDepositAddr")

	// issuance recorded an estimate
	require.NoError(t, db.Model(deposit).Update("amount", decimal.RequireFromString("99")).Error)

	reconciler, _ := newTestReconciler(t, db, confirmedAccountChain("0xabc"))
	observed := decimal.RequireFromString("0.25")

	outcome, err := reconciler.Reconcile(context.Background(), "0xabc", "0xDepositAddr", observed, "ETHEREUM")
	require.NoError(t, err)
	require.Equal(t, ReconcileCredited, outcome)

	var got models.Deposit
	require.NoError(t, db.First(&got, "id = ?", deposit.ID).Error)
	assert.True(t, got.Amount.Equal(observed))

	balance, err := repository.NewBalanceRepository(db).GetByUserAsset(context.Background(), userID, assetID)
	require.NoError(t, err)
	require.NotNil(t, balance)
	assert.True(t, balance.Balance.Equal(observed))
}

func TestReconcileTxHashUniqueAcrossDeposits(t *testing.T) {
	db := newTestDB(t)
	userID, assetID := seedUserAsset(t, db, models.NetworkEthereum)
	seedPendingDeposit(t, db, userID, assetID, models.NetworkEthereum, "0xAddrOne")
	second := seedPendingDeposit(t, db, userID, assetID, models.NetworkEthereum, "0xAddrTwo")

	reconciler, _ := newTestReconciler(t, db, confirmedAccountChain("0xabc"))
	amount := decimal.RequireFromString("1.5")

	outcome, err := reconciler.Reconcile(context.Background(), "0xabc", "0xAddrOne", amount, "ETHEREUM")
	require.NoError(t, err)
	require.Equal(t, ReconcileCredited, outcome)

	// the same transaction arriving for a different address must not settle a
	// second deposit
	outcome, err = reconciler.Reconcile(context.Background(), "0xabc", "0xAddrTwo", amount, "ETHEREUM")
	require.NoError(t, err)
	assert.Equal(t, ReconcileDuplicate, outcome)

	var got models.Deposit
	require.NoError(t, db.First(&got, "id = ?", second.ID).Error)
	assert.Equal(t, models.DepositStatusPending, got.Status)

	balance, err := repository.NewBalanceRepository(db).GetByUserAsset(context.Background(), userID, assetID)
	require.NoError(t, err)
	require.NotNil(t, balance)
	assert.True(t, balance.Balance.Equal(amount))
}
