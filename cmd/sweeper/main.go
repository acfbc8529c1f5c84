package main

import (
	"context"
	"flag"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/feral-file/launch-ledger/internal/access"
	"github.com/feral-file/launch-ledger/internal/adapter"
	"github.com/feral-file/launch-ledger/internal/config"
	"github.com/feral-file/launch-ledger/internal/custody"
	"github.com/feral-file/launch-ledger/internal/domain"
	"github.com/feral-file/launch-ledger/internal/ledger"
	"github.com/feral-file/launch-ledger/internal/logger"
	"github.com/feral-file/launch-ledger/internal/providers/jetstream"
	"github.com/feral-file/launch-ledger/internal/signing"
	"github.com/feral-file/launch-ledger/internal/store"
	"github.com/feral-file/launch-ledger/internal/sweeper"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "config/", "Path to environment files")
)

func main() {
	flag.Parse()

	// Load configuration
	config.ChdirRepoRoot()
	cfg, err := config.LoadSweeperConfig(*configFile, *envPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize logger with sentry integration
	err = logger.Initialize(logger.Config{
		Debug:           cfg.Debug,
		SentryDSN:       cfg.SentryDSN,
		BreadcrumbLevel: zapcore.InfoLevel,
		Tags: map[string]string{
			"service": "sweeper",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)
	logger.InfoCtx(ctx, "Starting Refund Sweeper")

	// Connect to database
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{})
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to database", zap.Error(err))
	}

	// Configure connection pool
	if err := store.ConfigureConnectionPool(db,
		cfg.Database.MaxOpenConns,
		cfg.Database.MaxIdleConns,
		config.Seconds(cfg.Database.ConnMaxLifetime),
		config.Seconds(cfg.Database.ConnMaxIdleTime),
	); err != nil {
		logger.FatalCtx(ctx, "Failed to configure connection pool", zap.Error(err))
	}
	logger.InfoCtx(ctx, "Connected to database",
		zap.Int("max_open_conns", cfg.Database.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.Database.MaxIdleConns),
	)

	// Initialize store and access gates
	dataStore := store.NewPGStore(db)
	gate := access.NewStoreGate(dataStore)
	pauseGate := access.NewStorePauseGate(dataStore)
	verifier := signing.NewVerifier(gate)
	clock := adapter.NewClock()

	// Resolve the execution chain
	chain := domain.Chain(cfg.Ledger.ChainID)
	chainID, ok := chain.NumericChainID()
	if !ok {
		logger.FatalCtx(ctx, "Unsupported chain", zap.String("chain_id", cfg.Ledger.ChainID))
	}

	// Connect to the Ethereum RPC and set up custody
	ethClient, err := ethclient.Dial(cfg.Ethereum.RPCURL)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to Ethereum RPC", zap.Error(err), zap.String("rpc_url", cfg.Ethereum.RPCURL))
	}
	defer ethClient.Close()

	custodyKey, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.Ethereum.CustodyKey, "0x"))
	if err != nil {
		logger.FatalCtx(ctx, "Failed to parse custody key", zap.Error(err))
	}

	custodian, err := custody.NewERC20Custody(ethClient, custodyKey, new(big.Int).SetUint64(chainID), config.Seconds(cfg.Ethereum.ReceiptTimeout))
	if err != nil {
		logger.FatalCtx(ctx, "Failed to initialize custody", zap.Error(err))
	}

	// Connect to NATS JetStream
	publisher, err := jetstream.NewPublisher(jetstream.Config{
		URL:            cfg.NATS.URL,
		StreamName:     cfg.NATS.StreamName,
		MaxReconnects:  cfg.NATS.MaxReconnects,
		ReconnectWait:  config.Seconds(cfg.NATS.ReconnectWait),
		ConnectionName: cfg.NATS.ConnectionName,
	}, adapter.NewNatsJetStream(), adapter.NewJSON())
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to NATS", zap.Error(err), zap.String("url", cfg.NATS.URL))
	}
	defer publisher.Close()

	// Create the ledger
	ldgr, err := ledger.New(ledger.Config{
		LaunchID:          domain.ID32(cfg.Ledger.LaunchID),
		Chain:             chain,
		TokenDecimals:     cfg.Ledger.TokenDecimals,
		WithdrawalAddress: cfg.Ledger.WithdrawalAddress,
	}, dataStore, custodian, gate, pauseGate, verifier, publisher, clock)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to create ledger", zap.Error(err))
	}

	// Initialize refund sweeper
	sweeperConfig := &sweeper.RefundSweeperConfig{
		BatchSize:       cfg.RefundSweeper.BatchSize,
		WorkerPoolSize:  cfg.RefundSweeper.WorkerPoolSize,
		OperatorAddress: cfg.RefundSweeper.OperatorAddress,
	}
	refundSweeper := sweeper.NewRefundSweeper(sweeperConfig, dataStore, ldgr, clock)

	logger.InfoCtx(ctx, "Initialized refund sweeper (continuous mode)",
		zap.Int("batch_size", cfg.RefundSweeper.BatchSize),
		zap.Int("worker_pool_size", cfg.RefundSweeper.WorkerPoolSize),
	)

	// Start the sweeper in a goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := refundSweeper.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	// Wait for interrupt signal or error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.InfoCtx(ctx, "Received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errChan:
		logger.ErrorCtx(ctx, err)
	}

	// Cancel context to stop the sweeper
	cancel()

	// Give the sweeper time to shut down gracefully
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer shutdownCancel()

	if err := refundSweeper.Stop(shutdownCtx); err != nil {
		logger.ErrorCtx(shutdownCtx, err)
	}

	logger.InfoCtx(shutdownCtx, "Sweeper stopped")
}
