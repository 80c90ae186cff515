package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"swap/apps/swap/internal/api"
	"swap/apps/swap/internal/config"
	"swap/apps/swap/internal/engine"
	"swap/apps/swap/internal/keystore"
	"swap/apps/swap/internal/ledger"
	"swap/apps/swap/internal/notifier"
	"swap/apps/swap/internal/rate"
	"swap/apps/swap/internal/repository"
	"swap/apps/swap/internal/wallet"
)

func main() {
	// Initialize zap logger
	logger, err := zap.NewProduction()
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer logger.Sync()

	// Load configuration from environment variables
	cfg := config.NewConfig()

	logger.Info("Starting swap settlement engine with configuration",
		zap.String("rpc_url", cfg.RpcURL),
		zap.String("kafka_broker", cfg.KafkaBroker),
		zap.String("kafka_topic", cfg.KafkaTopic),
		zap.String("token_contract", cfg.TokenContract),
		zap.Int("poll_interval_seconds", cfg.PollIntervalSeconds),
		zap.Int("order_timeout_minutes", cfg.OrderTimeoutMinutes),
		zap.String("rate_mode", cfg.RateMode),
		zap.Int("api_port", cfg.APIPort),
	)

	// Connect to database
	db, err := sql.Open("postgres", cfg.DbURL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}

	// Initialize database tables
	if err := repository.InitMigration(db); err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}

	orderRepository := repository.NewOrderRepository(db, logger)
	walletRepository := repository.NewWalletRepository(db, logger)
	notificationRepository := repository.NewNotificationRepository(db, logger)

	// Rate oracle with primary and fallback feeds
	manualRate, err := decimal.NewFromString(cfg.ManualRate)
	if err != nil {
		logger.Fatal("Invalid MANUAL_RATE", zap.Error(err))
	}
	markupPercent, err := decimal.NewFromString(cfg.MarkupPercent)
	if err != nil {
		logger.Fatal("Invalid MARKUP_PERCENT", zap.Error(err))
	}
	defaultRate, err := decimal.NewFromString(cfg.DefaultRate)
	if err != nil {
		logger.Fatal("Invalid DEFAULT_RATE", zap.Error(err))
	}

	oracle := rate.NewOracle(cfg.RateMode, cfg.SourceSymbol, cfg.TargetSymbol,
		manualRate, markupPercent, defaultRate,
		rate.NewBinanceFeed(cfg.PrimaryFeedURL),
		rate.NewCoingeckoFeed(cfg.SecondaryFeedURL),
		logger)

	// Wallet selection and key management
	selector := wallet.NewSelector(walletRepository, logger)
	keys, err := keystore.New(cfg.MasterKeyHex)
	if err != nil {
		logger.Fatal("Failed to initialize keystore", zap.Error(err))
	}

	// Ledger client
	ledgerClient, err := ledger.NewClient(cfg.RpcURL, cfg.ChainID, cfg.TokenDecimals,
		cfg.LookbackBlocks, time.Duration(cfg.RPCTimeoutSeconds)*time.Second, logger)
	if err != nil {
		logger.Fatal("Failed to create ledger client", zap.Error(err))
	}
	defer ledgerClient.Close()

	// Notification pipeline: outbox -> Kafka -> mailer
	outboxNotifier := notifier.NewOutboxNotifier(notificationRepository, logger)

	publisher, err := notifier.NewPublisher(cfg.KafkaBroker, cfg.KafkaTopic, logger, notificationRepository)
	if err != nil {
		logger.Fatal("Failed to create notification publisher", zap.Error(err))
	}
	defer publisher.Close()
	go publisher.StartPublishing()

	mailWorker, err := notifier.NewMailWorker(cfg.KafkaBroker, cfg.KafkaTopic, logger, notifier.NewLogMailer(logger))
	if err != nil {
		logger.Fatal("Failed to create mail worker", zap.Error(err))
	}
	defer mailWorker.Close()
	go func() {
		if err := mailWorker.Start(); err != nil {
			logger.Fatal("Mail worker failed", zap.Error(err))
		}
	}()

	// Settlement engine
	executor := engine.NewSettlementExecutor(orderRepository, selector, keys, ledgerClient, outboxNotifier, logger)
	orderService := engine.NewOrderService(orderRepository, selector, oracle,
		time.Duration(cfg.OrderTimeoutMinutes)*time.Minute, logger)

	pollInterval := time.Duration(cfg.PollIntervalSeconds) * time.Second
	matcher := engine.NewDepositMatcher(orderRepository, ledgerClient, executor,
		cfg.TokenContract, pollInterval, 4, logger)
	reaper := engine.NewExpiryReaper(orderRepository, outboxNotifier, pollInterval, logger)

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	go func() {
		if err := matcher.Start(workerCtx); err != nil && workerCtx.Err() == nil {
			logger.Fatal("Deposit matcher failed", zap.Error(err))
		}
	}()
	go func() {
		if err := reaper.Start(workerCtx); err != nil && workerCtx.Err() == nil {
			logger.Fatal("Expiry reaper failed", zap.Error(err))
		}
	}()

	// Create and start API server
	apiServer := api.NewServer(cfg.APIPort, orderService, executor, oracle, logger)
	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Fatal("API server failed", zap.Error(err))
		}
	}()

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal
	<-sigChan
	logger.Info("Received shutdown signal, starting graceful shutdown...")

	cancelWorkers()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := apiServer.Stop(ctx); err != nil {
		logger.Error("Error shutting down API server", zap.Error(err))
	}

	logger.Info("Shutdown complete")
}
