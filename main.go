package main

import (
	"context"
	"log" // Standard log only for fatal errors before the logger is ready

	"github.com/theHarlequins/binance-futures-bot-algotrading/config"
	"github.com/theHarlequins/binance-futures-bot-algotrading/internal/adapters/binanceclient"
	"github.com/theHarlequins/binance-futures-bot-algotrading/internal/adapters/logger"
	"github.com/theHarlequins/binance-futures-bot-algotrading/internal/adapters/sqlite"
	"github.com/theHarlequins/binance-futures-bot-algotrading/internal/adapters/statefile"
	"github.com/theHarlequins/binance-futures-bot-algotrading/internal/app"
	"github.com/theHarlequins/binance-futures-bot-algotrading/internal/strategy"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize State Store (snapshot files)
	stateStore, err := statefile.New(statefile.Config{
		IndicatorPath: cfg.IndicatorStatePath,
		OrderPath:     cfg.OrderStatePath,
		Logger:        appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize state store")
		log.Fatalf("FATAL: Failed to initialize state store: %v", err)
	}
	appLogger.Info(context.Background(), "State store initialized")

	// 4. Initialize Trade Archive (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize trade archive")
		log.Fatalf("FATAL: Failed to initialize trade archive: %v", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing trade archive")
		}
	}()
	appLogger.Info(context.Background(), "Trade archive initialized")

	// 5. Initialize Exchange Client (Binance Adapter)
	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:     cfg.APIKey,
		SecretKey:  cfg.SecretKey,
		UseTestnet: cfg.IsTestnet,
		HedgeMode:  cfg.HedgeMode,
		Logger:     appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize Binance client")
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}
	appLogger.Info(context.Background(), "Binance client initialized")

	// 6. Build Strategies
	strategies, err := strategy.Build(cfg.Strategies, appLogger)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to build strategies")
		log.Fatalf("FATAL: Failed to build strategies: %v", err)
	}
	appLogger.Info(context.Background(), "Strategies built", map[string]interface{}{"enabled": len(strategies)})

	// 7. Initialize Application Service
	tradingService, err := app.NewTradingService(
		cfg,
		appLogger,
		binanceClient,
		stateStore,
		repo,
		strategies,
	)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize trading service")
		log.Fatalf("FATAL: Failed to initialize trading service: %v", err)
	}
	appLogger.Info(context.Background(), "Trading service initialized")

	// 8. Start the Service
	if err := tradingService.Start(context.Background()); err != nil {
		appLogger.Error(context.Background(), err, "Trading service exited with error")
		log.Fatalf("FATAL: Trading service exited with error: %v", err)
	}

	appLogger.Info(context.Background(), "Application finished gracefully.")
}
