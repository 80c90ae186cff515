package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	RpcURL              string
	DbURL               string
	KafkaBroker         string
	KafkaTopic          string
	APIPort             int
	ChainID             int64
	TokenContract       string
	TokenDecimals       int
	MasterKeyHex        string
	PollIntervalSeconds int
	OrderTimeoutMinutes int
	LookbackBlocks      uint64
	RPCTimeoutSeconds   int
	RateMode            string // "realtime" or "manual"
	ManualRate          string
	MarkupPercent       string
	DefaultRate         string
	PrimaryFeedURL      string
	SecondaryFeedURL    string
	SourceSymbol        string
	TargetSymbol        string
}

// NewConfig loads configuration from environment variables
func NewConfig() *Config {
	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	return &Config{
		RpcURL:              getEnvOrFatal("RPC_URL"),
		DbURL:               getEnvOrFatal("DB_URL"),
		KafkaBroker:         getEnvOrFatal("KAFKA_BROKER"),
		KafkaTopic:          getEnvOrFatal("KAFKA_TOPIC"),
		APIPort:             getEnvInt("API_PORT", 8080),
		ChainID:             int64(getEnvInt("CHAIN_ID", 1)),
		TokenContract:       getEnvOrFatal("TOKEN_CONTRACT"),
		TokenDecimals:       getEnvInt("TOKEN_DECIMALS", 6),
		MasterKeyHex:        getEnvOrFatal("MASTER_KEY"),
		PollIntervalSeconds: getEnvInt("POLL_INTERVAL_SECONDS", 15),
		OrderTimeoutMinutes: getEnvInt("ORDER_TIMEOUT_MINUTES", 30),
		LookbackBlocks:      getEnvUint64("LOOKBACK_BLOCKS", 5000),
		RPCTimeoutSeconds:   getEnvInt("RPC_TIMEOUT_SECONDS", 10),
		RateMode:            getEnv("RATE_MODE", "realtime"),
		ManualRate:          getEnv("MANUAL_RATE", "0"),
		MarkupPercent:       getEnv("MARKUP_PERCENT", "1"),
		DefaultRate:         getEnv("DEFAULT_RATE", "1"),
		PrimaryFeedURL:      getEnv("PRIMARY_FEED_URL", "https://api.binance.com/api/v3/ticker/price"),
		SecondaryFeedURL:    getEnv("SECONDARY_FEED_URL", "https://api.coingecko.com/api/v3/simple/price"),
		SourceSymbol:        getEnv("SOURCE_SYMBOL", "USDT"),
		TargetSymbol:        getEnv("TARGET_SYMBOL", "TRX"),
	}
}

func getEnvOrFatal(key string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	log.Fatalf("Warning: environment variable %s not set", key)

	return ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvUint64(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseUint(value, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
