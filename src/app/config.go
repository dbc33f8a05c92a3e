package app

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/ethaccount/sponsorop/erc4337"
	"github.com/ethereum/go-ethereum/common"
)

type AppConfig struct {
	// =========================== REQUIRED ===========================

	// Database configuration (required)
	DSN *string
	// Redis configuration (required)
	RedisAddr *string
	// Private key for signing user operations (required)
	PrivateKey *string
	// API secret guarding the sign and submit endpoints (required)
	APISecret *string

	// =========================== OPTIONAL ===========================

	// Environment name, "dev" enables local defaults
	Environment *string
	// Host used in the swagger documentation
	Host *string

	// Logging configuration
	LogLevel *string

	// HTTP server configuration
	Port *string

	// CORS configuration
	AllowOrigins *[]string

	// Receipt polling interval in seconds
	PollingInterval *int

	// Migration configuration
	MigrationPath *string

	// Signing target used when a request names none
	ChainID    *int64
	EntryPoint *common.Address

	// YAML file overriding the built-in defaults table
	DefaultsPath *string

	// Relay configuration
	RelayQueue       *string
	RelayMaxAttempts *int

	// Blockchain RPC URLs (all have defaults). Each endpoint must also serve
	// the bundler namespace.
	SepoliaRPCURL         *string
	ArbitrumSepoliaRPCURL *string
	BaseSepoliaRPCURL     *string
	OptimismSepoliaRPCURL *string
	PolygonAmoyRPCURL     *string
}

// NewAppConfig loads the configuration from the environment and exits if it is
// incomplete.
func NewAppConfig() *AppConfig {
	config, err := LoadAppConfig()
	if err != nil {
		log.Fatalf("%v", err)
	}
	return config
}

// LoadAppConfig loads the configuration from the environment
func LoadAppConfig() (*AppConfig, error) {
	config := &AppConfig{}

	// Load optional configuration with defaults
	if err := loadOptionalConfig(config); err != nil {
		return nil, err
	}

	// Load required configuration
	if err := loadRequiredConfig(config); err != nil {
		return nil, err
	}

	return config, nil
}

// loadRequiredConfig loads all required configuration values and fails fast if any are missing
func loadRequiredConfig(config *AppConfig) error {
	// Database URL (required)
	dsn := os.Getenv("DB_URL")
	if dsn == "" {
		return errors.New("REQUIRED: DB_URL not set in environment")
	}
	config.DSN = &dsn

	// Redis URL (required)
	redisAddr := os.Getenv("REDIS_URL")
	if redisAddr == "" {
		return errors.New("REQUIRED: REDIS_URL not set in environment")
	}
	config.RedisAddr = &redisAddr

	// Private key for signing operations (required)
	privateKey := os.Getenv("PRIVATE_KEY")
	if privateKey == "" {
		return errors.New("REQUIRED: PRIVATE_KEY not set in environment")
	}
	// Remove 0x prefix if it exists
	privateKey = strings.TrimPrefix(privateKey, "0x")
	config.PrivateKey = &privateKey

	apiSecret := os.Getenv("API_SECRET")
	if apiSecret == "" {
		return errors.New("REQUIRED: API_SECRET not set in environment")
	}
	config.APISecret = &apiSecret

	// CORS origins (required in production, optional in development)
	return loadCORSConfig(config)
}

// loadOptionalConfig loads all optional configuration values with sensible defaults
func loadOptionalConfig(config *AppConfig) error {
	environment := getEnvWithDefault("ENVIRONMENT", "production")
	config.Environment = &environment

	// HTTP server port (default: 8080)
	port := getEnvWithDefault("PORT", "8080")
	config.Port = &port

	host := getEnvWithDefault("HOST", "localhost:"+port)
	config.Host = &host

	// Log level (default: debug)
	// Available levels: "trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled"
	logLevel := getEnvWithDefault("LOG_LEVEL", "debug")
	config.LogLevel = &logLevel

	// Polling interval in seconds (default: 15)
	pollingInterval := getIntWithDefault("POLLING_INTERVAL", 15)
	config.PollingInterval = &pollingInterval

	// Migration path (default: file://migrations)
	migrationPath := getEnvWithDefault("MIGRATION_PATH", "file://migrations")
	config.MigrationPath = &migrationPath

	chainIDStr := getEnvWithDefault("CHAIN_ID", "11155111")
	chainID, err := strconv.ParseInt(chainIDStr, 10, 64)
	if err != nil || chainID <= 0 {
		return fmt.Errorf("invalid CHAIN_ID %q", chainIDStr)
	}
	config.ChainID = &chainID

	entryPointStr := getEnvWithDefault("ENTRY_POINT_ADDRESS", erc4337.EntryPointV07.Hex())
	if !common.IsHexAddress(entryPointStr) {
		return fmt.Errorf("invalid ENTRY_POINT_ADDRESS %q", entryPointStr)
	}
	entryPoint := common.HexToAddress(entryPointStr)
	config.EntryPoint = &entryPoint

	// Empty means the built-in table
	defaultsPath := os.Getenv("DEFAULTS_PATH")
	config.DefaultsPath = &defaultsPath

	relayQueue := getEnvWithDefault("RELAY_QUEUE", "userop_queue")
	config.RelayQueue = &relayQueue

	relayMaxAttempts := getIntWithDefault("RELAY_MAX_ATTEMPTS", 3)
	config.RelayMaxAttempts = &relayMaxAttempts

	// Load blockchain RPC URLs with defaults
	loadRPCConfig(config)

	return nil
}

// loadCORSConfig handles CORS origins configuration with environment-specific behavior
func loadCORSConfig(config *AppConfig) error {
	allowOriginsStr := os.Getenv("ALLOW_ORIGINS")
	var allowOrigins []string

	if allowOriginsStr != "" {
		// Parse comma-separated origins
		origins := strings.Split(allowOriginsStr, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowOrigins = append(allowOrigins, origin)
			}
		}
	} else {
		// Handle missing ALLOW_ORIGINS based on environment
		if *config.Environment == "development" || *config.Environment == "dev" {
			// Default to localhost in development
			allowOrigins = []string{"http://localhost:5173"}
		} else {
			return errors.New("REQUIRED: ALLOW_ORIGINS not set in environment (required in production)")
		}
	}

	config.AllowOrigins = &allowOrigins
	return nil
}

// loadRPCConfig loads blockchain RPC URLs with public node defaults
func loadRPCConfig(config *AppConfig) {
	sepoliaRPCURL := getEnvWithDefault("SEPOLIA_RPC_URL", "https://ethereum-sepolia-rpc.publicnode.com")
	config.SepoliaRPCURL = &sepoliaRPCURL

	arbitrumSepoliaRPCURL := getEnvWithDefault("ARBITRUM_SEPOLIA_RPC_URL", "https://arbitrum-sepolia-rpc.publicnode.com")
	config.ArbitrumSepoliaRPCURL = &arbitrumSepoliaRPCURL

	baseSepoliaRPCURL := getEnvWithDefault("BASE_SEPOLIA_RPC_URL", "https://base-sepolia-rpc.publicnode.com")
	config.BaseSepoliaRPCURL = &baseSepoliaRPCURL

	optimismSepoliaRPCURL := getEnvWithDefault("OPTIMISM_SEPOLIA_RPC_URL", "https://optimism-sepolia-rpc.publicnode.com")
	config.OptimismSepoliaRPCURL = &optimismSepoliaRPCURL

	polygonAmoyRPCURL := getEnvWithDefault("POLYGON_AMOY_RPC_URL", "https://polygon-amoy-rpc.publicnode.com")
	config.PolygonAmoyRPCURL = &polygonAmoyRPCURL
}

// getIntWithDefault parses an integer from environment with default fallback
func getIntWithDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	if parsed, err := strconv.Atoi(valueStr); err == nil && parsed > 0 {
		return parsed
	}

	log.Printf("Warning: Invalid %s value '%s', using default %d", key, valueStr, defaultValue)
	return defaultValue
}

// getEnvWithDefault returns environment variable value or default if not set
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
