package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/theHarlequins/binance-futures-bot-algotrading/internal/adapters/logger"
	"github.com/theHarlequins/binance-futures-bot-algotrading/internal/domain"
	"github.com/theHarlequins/binance-futures-bot-algotrading/internal/strategy"
)

// Config holds all application configuration. It is assembled once at start
// and immutable for the duration of a run.
type Config struct {
	// Binance API
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Trading parameters
	Symbol         string
	Asset          string // quote asset the balance is held in, e.g. "USDT"
	Timeframe      domain.Timeframe
	Leverage       int
	HedgeMode      bool
	WalletUsagePct float64

	// Exchange precision
	QuantityPrecision int
	PricePrecision    int

	// Scheduler
	PollInterval         time.Duration
	HousekeepingInterval time.Duration
	CandleWindow         int

	// Retry policy
	MaxAPIRetries  int
	RetryBaseDelay time.Duration

	// Persistence
	IndicatorStatePath string
	OrderStatePath     string
	DBPath             string

	// Logging
	LogLevel logger.LogLevel

	// Strategy slots 0..4
	Strategies []strategy.Config
}

// strategyFile is the YAML document the presentation layer writes before a run.
type strategyFile struct {
	Strategies []strategy.Config `yaml:"strategies"`
}

// LoadConfig loads configuration from environment variables (.env file) and
// the optional strategy YAML file. All validation failures are collected and
// reported together so a bad config fails fast, before the loop starts.
func LoadConfig() (*Config, error) {
	// Load .env if present; pure env vars are fine too.
	_ = godotenv.Load()

	cfg := &Config{}
	var errs []string

	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true)
	if cfg.APIKey == "" {
		errs = append(errs, "BINANCE_API_KEY must be set")
	}
	if cfg.SecretKey == "" {
		errs = append(errs, "BINANCE_API_SECRET must be set")
	}

	cfg.Symbol = getEnv("SYMBOL", "BTCUSDT")
	cfg.Asset = getEnv("ASSET", "USDT")

	tf, err := domain.ParseTimeframe(getEnv("TIMEFRAME", "h1"))
	if err != nil {
		errs = append(errs, err.Error())
	}
	cfg.Timeframe = tf

	cfg.Leverage = getEnvAsInt("LEVERAGE", 1)
	if cfg.Leverage < 1 || cfg.Leverage > 125 {
		errs = append(errs, fmt.Sprintf("LEVERAGE must be between 1 and 125, got %d", cfg.Leverage))
	}

	cfg.HedgeMode = getEnvAsBool("HEDGE_MODE", true)

	cfg.WalletUsagePct = getEnvAsFloat("WALLET_USAGE_PERCENT", 50.0)
	if cfg.WalletUsagePct <= 0 || cfg.WalletUsagePct > 100 {
		errs = append(errs, fmt.Sprintf("WALLET_USAGE_PERCENT must be in (0, 100], got %v", cfg.WalletUsagePct))
	}

	cfg.QuantityPrecision = getEnvAsInt("QUANTITY_DECIMAL_DIGITS", 3)
	cfg.PricePrecision = getEnvAsInt("PRICE_DECIMAL_DIGITS", 2)
	if cfg.QuantityPrecision < 0 || cfg.PricePrecision < 0 {
		errs = append(errs, "precision digits cannot be negative")
	}

	pollMs := getEnvAsInt("POLL_INTERVAL_MS", 250)
	if pollMs <= 0 {
		errs = append(errs, "POLL_INTERVAL_MS must be positive")
	}
	cfg.PollInterval = time.Duration(pollMs) * time.Millisecond

	housekeepingSec := getEnvAsInt("HOUSEKEEPING_INTERVAL_SECONDS", 10)
	if housekeepingSec <= 0 {
		errs = append(errs, "HOUSEKEEPING_INTERVAL_SECONDS must be positive")
	}
	cfg.HousekeepingInterval = time.Duration(housekeepingSec) * time.Second

	cfg.CandleWindow = getEnvAsInt("CANDLE_WINDOW", 100)
	if cfg.CandleWindow <= 0 {
		errs = append(errs, "CANDLE_WINDOW must be positive")
	}

	cfg.MaxAPIRetries = getEnvAsInt("MAX_API_RETRIES", 5)
	if cfg.MaxAPIRetries < 1 {
		errs = append(errs, "MAX_API_RETRIES must be at least 1")
	}
	retryBaseMs := getEnvAsInt("RETRY_BASE_DELAY_MS", 200)
	if retryBaseMs <= 0 {
		errs = append(errs, "RETRY_BASE_DELAY_MS must be positive")
	}
	cfg.RetryBaseDelay = time.Duration(retryBaseMs) * time.Millisecond

	cfg.IndicatorStatePath = getEnv("INDICATOR_STATE_PATH", "./data/indicator_state.json")
	cfg.OrderStatePath = getEnv("ORDER_STATE_PATH", "./data/order_state.json")
	cfg.DBPath = getEnv("DB_PATH", "./data/trading_bot.db")

	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))

	cfg.Strategies = strategy.DefaultConfigs()
	if path := getEnv("STRATEGIES_FILE", ""); path != "" {
		strategies, err := loadStrategyFile(path)
		if err != nil {
			errs = append(errs, fmt.Sprintf("STRATEGIES_FILE: %v", err))
		} else {
			cfg.Strategies = strategies
		}
	}
	if err := validateStrategySlots(cfg.Strategies); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

func loadStrategyFile(path string) ([]strategy.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var doc strategyFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return doc.Strategies, nil
}

// validateStrategySlots checks the slot layout: at most one config per slot
// 0..4 and at least one enabled.
func validateStrategySlots(configs []strategy.Config) error {
	seen := map[int]bool{}
	anyEnabled := false
	for _, c := range configs {
		if c.ID < 0 || c.ID >= strategy.NumSlots {
			return fmt.Errorf("strategy slot %d out of range 0..%d", c.ID, strategy.NumSlots-1)
		}
		if seen[c.ID] {
			return fmt.Errorf("duplicate strategy slot %d", c.ID)
		}
		seen[c.ID] = true
		if c.Enabled {
			anyEnabled = true
		}
	}
	if !anyEnabled {
		return fmt.Errorf("at least one strategy must be enabled")
	}
	return nil
}

// --- Env var helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
