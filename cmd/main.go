package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/rakeshpathania/crypto-exchange-BE/internal/blockchain"
	"github.com/rakeshpathania/crypto-exchange-BE/internal/config"
	"github.com/rakeshpathania/crypto-exchange-BE/internal/handler"
	"github.com/rakeshpathania/crypto-exchange-BE/internal/models"
	"github.com/rakeshpathania/crypto-exchange-BE/internal/notifier"
	"github.com/rakeshpathania/crypto-exchange-BE/internal/repository"
	"github.com/rakeshpathania/crypto-exchange-BE/internal/scheduler"
	"github.com/rakeshpathania/crypto-exchange-BE/internal/service"
	"github.com/rakeshpathania/crypto-exchange-BE/pkg/logger"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output); err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}

	db, err := initDatabase(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database:", err)
	}
	defer closeDatabase(db)

	if err := db.AutoMigrate(&models.User{}, &models.Asset{}, &models.Deposit{}, &models.Balance{}); err != nil {
		logger.Fatal("Failed to migrate schema:", err)
	}

	userRepo := repository.NewUserRepository(db)
	assetRepo := repository.NewAssetRepository(db)
	depositRepo := repository.NewDepositRepository(db)
	balanceRepo := repository.NewBalanceRepository(db)

	account, utxo, accountConf, utxoConf := initChainAdapters(cfg)

	publisher := initPublisher(cfg.Notifier)
	defer publisher.Close()

	verifier := service.NewTransactionVerifier(account, utxo, accountConf, utxoConf)
	reconciler := service.NewDepositReconciler(db, depositRepo, balanceRepo, verifier, publisher)

	monitor := scheduler.NewDepositMonitor(&cfg.Monitor, depositRepo, reconciler, account, utxo)
	if err := monitor.Start(); err != nil {
		logger.Fatal("Failed to start deposit monitor:", err)
	}
	defer monitor.Stop()

	issuer := service.NewAddressIssuer(userRepo, assetRepo, depositRepo, monitor, cfg.Fees)
	// card payments settle through an external processor wired in separately;
	// without one the card endpoints report the flow as unavailable
	depositSvc := service.NewDepositService(db, userRepo, assetRepo, depositRepo, balanceRepo, issuer, nil)

	router := setupHTTPRouter(cfg, reconciler, depositSvc, monitor, balanceRepo)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("Server starting on port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed:", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error:", err)
	}

	logger.Info("Server stopped")
}

func initDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(cfg.DSN()), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)

	return db, nil
}

func closeDatabase(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		logger.Error("Failed to get database instance:", err)
		return
	}
	sqlDB.Close()
}

func initChainAdapters(cfg *config.Config) (blockchain.AccountChain, blockchain.UTXOChain, int64, int64) {
	var account blockchain.AccountChain
	var utxo blockchain.UTXOChain
	accountConf := int64(12)
	utxoConf := int64(3)

	for i := range cfg.GetEnabledChains() {
		chainCfg := cfg.GetEnabledChains()[i]
		switch chainCfg.Model {
		case "account":
			client, err := blockchain.NewEthereumClient(&chainCfg)
			if err != nil {
				logger.Fatal("Failed to create account-model chain client:", err)
			}
			account = client
			accountConf = chainCfg.Confirmations
		case "utxo":
			utxo = blockchain.NewBitcoinClient(&chainCfg)
			utxoConf = chainCfg.Confirmations
		default:
			logger.Warn("Unknown chain model, skipping:", chainCfg.Model)
		}
	}

	return account, utxo, accountConf, utxoConf
}

func initPublisher(cfg config.NotifierConfig) notifier.EventPublisher {
	if !cfg.Enabled {
		return notifier.NopPublisher{}
	}
	publisher, err := notifier.NewRabbitPublisher(cfg.URL, cfg.Exchange)
	if err != nil {
		logger.Error("Failed to connect event publisher, events disabled:", err)
		return notifier.NopPublisher{}
	}
	return publisher
}

func setupHTTPRouter(
	cfg *config.Config,
	reconciler *service.DepositReconciler,
	depositSvc *service.DepositService,
	monitor *scheduler.DepositMonitor,
	balanceRepo *repository.BalanceRepository,
) http.Handler {
	router := http.NewServeMux()

	webhookHandler := handler.NewWebhookHandler(reconciler, cfg.Webhook.APIKey)
	depositHandler := handler.NewDepositHandler(depositSvc)
	monitoringHandler := handler.NewMonitoringHandler(monitor, cfg.Admin.APIKey)
	balanceHandler := handler.NewBalanceHandler(balanceRepo)

	router.HandleFunc("/webhooks/blockchain/transaction", webhookHandler.HandleTransaction)
	router.HandleFunc("/api/deposits/crypto", depositHandler.InitiateCrypto)
	router.HandleFunc("/api/deposits/card", depositHandler.InitiateCard)
	router.HandleFunc("/api/deposits/card/confirm", depositHandler.ConfirmCard)
	router.HandleFunc("/api/deposits", depositHandler.ListDeposits)
	router.HandleFunc("/api/crypto/monitoring/scan", monitoringHandler.TriggerScan)
	router.HandleFunc("/api/crypto/monitoring/status", monitoringHandler.GetStatus)
	router.HandleFunc("/api/balance/", balanceHandler.GetBalance)
	router.HandleFunc("/api/balances", balanceHandler.ListBalances)
	router.HandleFunc("/health", handler.HandleHealth)

	return router
}
