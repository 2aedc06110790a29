package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/nfturvy/market-ledger/internal/api/middleware"
	"github.com/nfturvy/market-ledger/internal/api/server"
	"github.com/nfturvy/market-ledger/internal/config"
	"github.com/nfturvy/market-ledger/internal/contentstore"
	"github.com/nfturvy/market-ledger/internal/emitter"
	"github.com/nfturvy/market-ledger/internal/fee"
	"github.com/nfturvy/market-ledger/internal/ledger"
	"github.com/nfturvy/market-ledger/internal/logger"
	"github.com/nfturvy/market-ledger/internal/providers/jetstream"
	"github.com/nfturvy/market-ledger/internal/registry"
	"github.com/nfturvy/market-ledger/internal/store"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "config/", "Path to environment files")
)

func main() {
	flag.Parse()

	// Load configuration
	config.ChdirRepoRoot()
	cfg, err := config.LoadAPIConfig(*configFile, *envPath)
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
			"service": "market-ledger-api",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)
	logger.InfoCtx(ctx, "Starting market ledger API")

	// Connect to database
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{})
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to database", zap.Error(err))
	}

	if err := store.ConfigureConnectionPool(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime, cfg.Database.ConnMaxIdleTime); err != nil {
		logger.FatalCtx(ctx, "Failed to configure connection pool", zap.Error(err))
	}

	if err := store.Migrate(db); err != nil {
		logger.FatalCtx(ctx, "Failed to run migrations", zap.Error(err))
	}
	logger.InfoCtx(ctx, "Connected to database",
		zap.Int("max_open_conns", cfg.Database.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.Database.MaxIdleConns),
	)

	dataStore := store.NewPGStore(db)

	// Connect to the token registry chain
	ethClient, err := ethclient.Dial(cfg.Ethereum.RPCURL)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to Ethereum RPC", zap.Error(err), zap.String("rpc_url", cfg.Ethereum.RPCURL))
	}
	tokenRegistry, err := registry.NewEthereumRegistry(ethClient, cfg.Ethereum.ChainID, cfg.Ethereum.EscrowPrivateKey)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to create token registry client", zap.Error(err))
	}
	defer tokenRegistry.Close()
	logger.InfoCtx(ctx, "Connected to token registry",
		zap.String("rpc_url", cfg.Ethereum.RPCURL),
		zap.Int64("chain_id", cfg.Ethereum.ChainID),
	)

	// Connect to NATS JetStream for market event fan-out. The event stream is
	// advisory, so a missing broker downgrades to no events rather than failing
	// startup.
	var marketEmitter emitter.Emitter
	if cfg.NATS.URL != "" {
		publisher, err := jetstream.NewPublisher(ctx, jetstream.Config{
			URL:            cfg.NATS.URL,
			StreamName:     cfg.NATS.StreamName,
			MaxReconnects:  cfg.NATS.MaxReconnects,
			ReconnectWait:  cfg.NATS.ReconnectWait,
			ConnectionName: cfg.NATS.ConnectionName,
		})
		if err != nil {
			logger.FatalCtx(ctx, "Failed to connect to NATS", zap.Error(err), zap.String("url", cfg.NATS.URL))
		}
		defer publisher.Close()

		marketEmitter = emitter.New(ctx, emitter.Config{
			PoolSize:  cfg.Worker.PoolSize,
			QueueSize: cfg.Worker.QueueSize,
		}, publisher)
		defer marketEmitter.Stop()
		logger.InfoCtx(ctx, "Connected to NATS", zap.String("stream", cfg.NATS.StreamName))
	} else {
		logger.WarnCtx(ctx, "NATS URL not configured, market events will not be published")
	}

	// Content store is optional as well
	var content contentstore.Store
	if cfg.Content.APIURL != "" {
		content = contentstore.NewIPFSStore(contentstore.Config{
			APIURL:      cfg.Content.APIURL,
			GatewayURL:  cfg.Content.GatewayURL,
			HTTPTimeout: cfg.Content.HTTPTimeout,
			MaxRetry:    cfg.Content.MaxRetry,
		})
	}

	feePolicy := fee.NewPolicy(dataStore, cfg.Market.OperatorAddress, cfg.Market.DefaultListingFee)
	marketLedger := ledger.New(dataStore, tokenRegistry, feePolicy, marketEmitter, cfg.Market.EscrowAddress)

	// Parse operator credentials
	auth := middleware.AuthConfig{APIKeys: cfg.Auth.APIKeys}
	if cfg.Auth.JWTPublicKey != "" {
		auth.JWTPublicKey, err = middleware.ParseJWTPublicKey(cfg.Auth.JWTPublicKey)
		if err != nil {
			logger.FatalCtx(ctx, "Failed to parse JWT public key", zap.Error(err))
		}
	}

	serverConfig := server.Config{
		Debug:        cfg.Debug,
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
		Auth:         auth,
	}

	srv := server.New(serverConfig, marketLedger, content)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errCh <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.InfoCtx(ctx, "Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	case err := <-errCh:
		logger.ErrorCtx(ctx, err, zap.String("component", "server"))
		cancel()
	}

	// Create shutdown context with timeout (don't use canceled ctx)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.FatalCtx(shutdownCtx, "Server forced to shutdown", zap.Error(err))
	}

	logger.Info("API server stopped")
}
