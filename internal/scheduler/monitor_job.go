package scheduler

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"

	"github.com/rakeshpathania/crypto-exchange-BE/internal/blockchain"
	"github.com/rakeshpathania/crypto-exchange-BE/internal/config"
	"github.com/rakeshpathania/crypto-exchange-BE/internal/models"
	"github.com/rakeshpathania/crypto-exchange-BE/internal/repository"
	"github.com/rakeshpathania/crypto-exchange-BE/internal/service"
	"github.com/rakeshpathania/crypto-exchange-BE/pkg/errors"
	"github.com/rakeshpathania/crypto-exchange-BE/pkg/logger"
)

// utxoScanDelay paces per-transaction explorer lookups inside one address.
const utxoScanDelay = 200 * time.Millisecond

// DepositMonitor is the scheduled detection driver: on every tick it scans
// all pending crypto deposit addresses for new chain activity and hands each
// observation to the reconciler. It is also the address registry the issuer
// notifies, which wakes an early scan.
type DepositMonitor struct {
	cron       *cron.Cron
	cfg        *config.MonitorConfig
	deposits   *repository.DepositRepository
	reconciler *service.DepositReconciler
	account    blockchain.AccountChain
	utxo       blockchain.UTXOChain

	wake       chan struct{}
	stopChan   chan struct{}
	isScanning int32

	mu          sync.Mutex
	lastScanAt  time.Time
	lastScanned int
}

func NewDepositMonitor(
	cfg *config.MonitorConfig,
	deposits *repository.DepositRepository,
	reconciler *service.DepositReconciler,
	account blockchain.AccountChain,
	utxo blockchain.UTXOChain,
) *DepositMonitor {
	return &DepositMonitor{
		cron:       cron.New(),
		cfg:        cfg,
		deposits:   deposits,
		reconciler: reconciler,
		account:    account,
		utxo:       utxo,
		wake:       make(chan struct{}, 1),
		stopChan:   make(chan struct{}),
	}
}

func (m *DepositMonitor) Start() error {
	_, err := m.cron.AddFunc(m.cfg.Cron, func() {
		m.runScan(context.Background())
	})
	if err != nil {
		return err
	}

	m.cron.Start()
	go m.wakeLoop()
	logger.WithField("cron", m.cfg.Cron).Info("deposit monitor started")
	return nil
}

func (m *DepositMonitor) Stop() {
	close(m.stopChan)
	ctx := m.cron.Stop()
	<-ctx.Done()
	logger.Info("deposit monitor stopped")
}

// RegisterAddress implements service.AddressRegistry. The signal is
// non-blocking; a scan is already queued if the channel is full.
func (m *DepositMonitor) RegisterAddress(network, address string) {
	logger.WithFields(map[string]interface{}{
		"network": network,
		"address": address,
	}).Debug("address registered for monitoring")

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *DepositMonitor) wakeLoop() {
	for {
		select {
		case <-m.stopChan:
			return
		case <-m.wake:
			m.runScan(context.Background())
		}
	}
}

type MonitorStatus struct {
	Running      bool       `json:"running"`
	Cron         string     `json:"cron"`
	LastScanAt   *time.Time `json:"last_scan_at"`
	LastScanned  int        `json:"last_scanned_addresses"`
	PendingTTLHr int        `json:"pending_ttl_hours"`
}

func (m *DepositMonitor) Status() MonitorStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := MonitorStatus{
		Running:      atomic.LoadInt32(&m.isScanning) == 1,
		Cron:         m.cfg.Cron,
		LastScanned:  m.lastScanned,
		PendingTTLHr: m.cfg.PendingTTLHours,
	}
	if !m.lastScanAt.IsZero() {
		at := m.lastScanAt
		status.LastScanAt = &at
	}
	return status
}

// TriggerManualScan runs one scan synchronously and returns the number of
// addresses scanned.
func (m *DepositMonitor) TriggerManualScan(ctx context.Context) int {
	logger.Info("manual scan triggered")
	return m.runScan(ctx)
}

// runScan lists pending crypto deposits and scans their addresses in bounded
// batches with inter-batch pacing, so upstream rate limits are respected.
// Per-address failures are logged and swallowed: one bad address never blocks
// the rest of the batch.
func (m *DepositMonitor) runScan(ctx context.Context) int {
	if !atomic.CompareAndSwapInt32(&m.isScanning, 0, 1) {
		logger.Warn("previous scan still running, skipping")
		return 0
	}
	defer atomic.StoreInt32(&m.isScanning, 0)

	pending, err := m.deposits.FindPendingCrypto(ctx)
	if err != nil {
		logger.WithError(err).Error("failed to list pending deposits")
		return 0
	}

	if len(pending) == 0 {
		logger.Debug("no addresses to monitor")
		m.recordScan(0)
		return 0
	}

	logger.WithField("addresses", len(pending)).Info("scanning deposit addresses")

	ttl := time.Duration(m.cfg.PendingTTLHours) * time.Hour
	scanned := 0

	for start := 0; start < len(pending); start += m.cfg.BatchSize {
		end := start + m.cfg.BatchSize
		if end > len(pending) {
			end = len(pending)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			deposit := pending[i]

			if ttl > 0 && time.Since(deposit.CreatedAt) > ttl {
				if err := m.deposits.MarkFailed(ctx, deposit.ID); err != nil {
					logger.WithError(err).WithField("deposit_id", deposit.ID).
						Error("failed to expire stale deposit")
				} else {
					logger.WithField("deposit_id", deposit.ID).Info("expired stale pending deposit")
				}
				continue
			}

			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := m.scanAddress(ctx, &deposit); err != nil {
					entry := logger.WithError(err).WithFields(map[string]interface{}{
						"deposit_id": deposit.ID,
						"address":    deposit.CryptoAddress,
					})
					if errors.IsRetryable(err) {
						entry.Warn("transient failure scanning address, will retry next tick")
					} else {
						entry.Error("failed to scan address")
					}
				}
			}()
			scanned++
		}
		wg.Wait()

		if end < len(pending) {
			time.Sleep(time.Duration(m.cfg.BatchDelayMs) * time.Millisecond)
		}
	}

	m.recordScan(scanned)
	logger.WithField("addresses", scanned).Info("scan completed")
	return scanned
}

func (m *DepositMonitor) recordScan(scanned int) {
	m.mu.Lock()
	m.lastScanAt = time.Now()
	m.lastScanned = scanned
	m.mu.Unlock()
}

func (m *DepositMonitor) scanAddress(ctx context.Context, deposit *models.Deposit) error {
	switch deposit.Network {
	case models.NetworkEthereum:
		return m.scanAccountAddress(ctx, deposit)
	case models.NetworkBitcoin:
		return m.scanUTXOAddress(ctx, deposit)
	}

	logger.WithFields(map[string]interface{}{
		"deposit_id": deposit.ID,
		"network":    deposit.Network,
	}).Warn("no scanner for network")
	return nil
}

// scanAccountAddress queries transfers above the deposit's high-water mark.
// The mark only advances past transfers that reached a terminal outcome, so
// a transfer awaiting confirmations stays in scope for the next scan.
func (m *DepositMonitor) scanAccountAddress(ctx context.Context, deposit *models.Deposit) error {
	if m.account == nil {
		return nil
	}

	transfers, err := m.account.ListIncomingTransfers(ctx, deposit.CryptoAddress, deposit.LastProcessedBlock+1)
	if err != nil {
		return err
	}

	watermark := deposit.LastProcessedBlock

	for _, transfer := range transfers {
		if transfer.BlockHeight <= deposit.LastProcessedBlock {
			continue
		}
		if deposit.HasProcessed(transfer.TxHash) {
			if transfer.BlockHeight > watermark {
				watermark = transfer.BlockHeight
			}
			continue
		}
		if !strings.EqualFold(transfer.ToAddress, deposit.CryptoAddress) || !transfer.Value.IsPositive() {
			if transfer.BlockHeight > watermark {
				watermark = transfer.BlockHeight
			}
			continue
		}

		outcome, err := m.reconciler.Reconcile(ctx, transfer.TxHash, deposit.CryptoAddress, transfer.Value, deposit.Network)
		if err != nil {
			logger.WithError(err).WithField("tx_hash", transfer.TxHash).Error("reconcile failed")
			break
		}
		if outcome == service.ReconcileNotConfirmed {
			// transfers come back height-ordered; everything after this one
			// is younger and cannot be confirmed either
			break
		}

		if err := m.deposits.AppendProcessedTransaction(ctx, deposit.ID, transfer.TxHash); err != nil {
			logger.WithError(err).WithField("tx_hash", transfer.TxHash).
				Error("failed to record processed transaction")
			break
		}
		if transfer.BlockHeight > watermark {
			watermark = transfer.BlockHeight
		}

		if outcome == service.ReconcileCredited {
			// deposit consumed; nothing left to scan for this address
			break
		}
	}

	if watermark > deposit.LastProcessedBlock {
		return m.deposits.AdvanceLastProcessedBlock(ctx, deposit.ID, watermark)
	}
	return nil
}

// scanUTXOAddress walks the address's transaction list, skipping hashes in
// the dedup set. Transactions still short of confirmations are left out of
// the set so they are reconsidered next scan.
func (m *DepositMonitor) scanUTXOAddress(ctx context.Context, deposit *models.Deposit) error {
	if m.utxo == nil {
		return nil
	}

	txHashes, err := m.utxo.ListAddressTransactions(ctx, deposit.CryptoAddress)
	if err != nil {
		return err
	}

	for _, txHash := range txHashes {
		if deposit.HasProcessed(txHash) {
			continue
		}

		outputs, err := m.utxo.GetTransactionOutputs(ctx, txHash)
		if err != nil {
			return err
		}

		amount := amountPaidTo(outputs, deposit.CryptoAddress)
		if !amount.IsPositive() {
			// a spend from the address, not a deposit to it
			if err := m.deposits.AppendProcessedTransaction(ctx, deposit.ID, txHash); err != nil {
				return err
			}
			continue
		}

		outcome, err := m.reconciler.Reconcile(ctx, txHash, deposit.CryptoAddress, amount, deposit.Network)
		if err != nil {
			logger.WithError(err).WithField("tx_hash", txHash).Error("reconcile failed")
			return err
		}
		if outcome == service.ReconcileNotConfirmed {
			continue
		}

		if err := m.deposits.AppendProcessedTransaction(ctx, deposit.ID, txHash); err != nil {
			return err
		}
		if outcome == service.ReconcileCredited {
			return nil
		}

		time.Sleep(utxoScanDelay)
	}
	return nil
}

func amountPaidTo(outputs []blockchain.TxOutput, address string) (total decimal.Decimal) {
	for _, output := range outputs {
		if strings.EqualFold(output.Address, address) {
			total = total.Add(output.Value)
		}
	}
	return total
}
