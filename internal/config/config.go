// Package config handles loading and validating configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the bot. It is constructed once at
// startup and passed through constructors; nothing re-reads the
// environment after Load returns.
type Config struct {
	// Polymarket endpoints
	ClobURL  string
	GammaURL string
	DataURL  string
	WSURL    string

	// Signer identity
	PrivateKey    string
	APIKey        string
	APISecret     string
	APIPassphrase string
	ChainID       int

	// Trading
	MaxPositionSize  float64
	MinProfitMargin  float64
	CheckInterval    time.Duration
	MarketFetchLimit int

	// Risk breakers
	MaxDailyLoss float64
	MaxPositions int

	// Copy trading
	EnableCopyTrading          bool
	EnableCopyTradingExecution bool
	DryRun                     bool
	EnableLargeTrades          bool
	EnableSmartMoney           bool
	UseEnhancedSmartMoney      bool
	EnableSmartMoneyStream     bool
	SmartMoneyCheckInterval    time.Duration
	CopyTradeSizeMultiplier    float64
	CopyTradeFetchLimit        int
	SmartMoneyAddresses        []string
	MinSignalStrength          float64
	MinLargeTradeSize          float64

	// Facade
	ServerPort int

	// Logging
	LogLevel string
}

// Load reads configuration from environment variables with fallback to .env file.
// Priority order: Environment variables > .env file > hardcoded defaults
func Load() (*Config, error) {
	// Attempt to load .env file (ignore error if not found)
	_ = godotenv.Load()

	executionEnabled := getEnvBool("ENABLE_COPY_TRADING_EXECUTION", false)

	cfg := &Config{
		// Endpoints
		ClobURL:  getEnv("POLYMARKET_CLOB_URL", "https://clob.polymarket.com"),
		GammaURL: getEnv("POLYMARKET_GAMMA_URL", "https://gamma-api.polymarket.com"),
		DataURL:  getEnv("POLYMARKET_DATA_URL", "https://data-api.polymarket.com"),
		WSURL:    getEnv("POLYMARKET_WS_URL", "wss://ws-subscriptions-clob.polymarket.com/ws/"),

		// Signer
		PrivateKey:    getEnv("PRIVATE_KEY", ""),
		APIKey:        getEnv("POLYMARKET_API_KEY", ""),
		APISecret:     getEnv("POLYMARKET_API_SECRET", ""),
		APIPassphrase: getEnv("POLYMARKET_API_PASSPHRASE", ""),
		ChainID:       getEnvInt("CHAIN_ID", 137),

		// Trading
		MaxPositionSize:  getEnvFloat("MAX_POSITION_SIZE", 100),
		MinProfitMargin:  getEnvFloat("MIN_PROFIT_MARGIN", 0.02),
		CheckInterval:    time.Duration(getEnvInt("CHECK_INTERVAL_SECONDS", 30)) * time.Second,
		MarketFetchLimit: getEnvInt("MARKET_FETCH_LIMIT", 100),

		// Risk
		MaxDailyLoss: getEnvFloat("MAX_DAILY_LOSS", 1000),
		MaxPositions: getEnvInt("MAX_POSITIONS", 10),

		// Copy trading
		EnableCopyTrading:          getEnvBool("ENABLE_COPY_TRADING", true),
		EnableCopyTradingExecution: executionEnabled,
		DryRun:                     getEnvBool("DRY_RUN", true) && !executionEnabled,
		EnableLargeTrades:          getEnvBool("ENABLE_COPY_LARGE_TRADES", true),
		EnableSmartMoney:           getEnvBool("ENABLE_SMART_MONEY", true),
		UseEnhancedSmartMoney:      getEnvBool("USE_ENHANCED_SMART_MONEY", false),
		EnableSmartMoneyStream:     getEnvBool("ENABLE_SMART_MONEY_STREAM", false),
		SmartMoneyCheckInterval:    time.Duration(getEnvInt("SMART_MONEY_CHECK_INTERVAL_SECONDS", 10)) * time.Second,
		CopyTradeSizeMultiplier:    getEnvFloat("COPY_TRADE_SIZE_MULTIPLIER", 0.1),
		CopyTradeFetchLimit:        getEnvInt("COPY_TRADE_FETCH_LIMIT", 50),
		SmartMoneyAddresses:        getEnvList("SMART_MONEY_ADDRESSES"),
		MinSignalStrength:          getEnvFloat("MIN_SIGNAL_STRENGTH", 0.7),
		MinLargeTradeSize:          getEnvFloat("MIN_LARGE_TRADE_SIZE", 1000),

		// Facade
		ServerPort: getEnvInt("SERVER_PORT", 8080),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "INFO"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set and valid.
func (c *Config) Validate() error {
	if c.ClobURL == "" {
		return fmt.Errorf("POLYMARKET_CLOB_URL is required")
	}

	if c.MaxPositionSize <= 0 {
		return fmt.Errorf("MAX_POSITION_SIZE must be positive")
	}

	if c.MinProfitMargin < 0 {
		return fmt.Errorf("MIN_PROFIT_MARGIN must not be negative")
	}

	if c.MaxDailyLoss <= 0 {
		return fmt.Errorf("MAX_DAILY_LOSS must be positive")
	}

	if c.MaxPositions < 1 {
		return fmt.Errorf("MAX_POSITIONS must be at least 1")
	}

	if c.CheckInterval < time.Second {
		return fmt.Errorf("CHECK_INTERVAL_SECONDS must be at least 1")
	}

	if c.CopyTradeSizeMultiplier <= 0 || c.CopyTradeSizeMultiplier > 1 {
		return fmt.Errorf("COPY_TRADE_SIZE_MULTIPLIER must be in (0, 1]")
	}

	if c.MinSignalStrength < 0 || c.MinSignalStrength > 1 {
		return fmt.Errorf("MIN_SIGNAL_STRENGTH must be between 0 and 1")
	}

	if c.ServerPort < 0 || c.ServerPort > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 0 and 65535")
	}

	return nil
}

// MaskedPrivateKey returns the signing key with most characters hidden for logging.
func (c *Config) MaskedPrivateKey() string {
	return maskSecret(c.PrivateKey)
}

// MaskedAPIKey returns the API key with most characters hidden for logging.
func (c *Config) MaskedAPIKey() string {
	return maskSecret(c.APIKey)
}

// maskSecret hides all but the first and last 4 characters of a secret.
func maskSecret(s string) string {
	if len(s) <= 8 {
		if len(s) == 0 {
			return "(not set)"
		}
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an environment variable as an integer or returns a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat retrieves an environment variable as a float64 or returns a default.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// getEnvBool retrieves an environment variable as a boolean or returns a default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvList retrieves a comma-separated environment variable as a slice.
func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}

	var items []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
