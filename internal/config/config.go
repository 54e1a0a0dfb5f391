package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type Config struct {
	// Database
	PostgresDSN string
	RedisURL    string

	// Mint / wallet
	MintURL    string
	Unit       string
	MaxBalance int64
	MaxSend    int64
	MaxPay     int64

	// Rate oracle
	RateOracleURL        string
	RateOracleTimeoutMS  int

	// Rate limiting
	RateLimitMax             int
	RateLimitCreateWalletMax int
	RateLimitWindow          time.Duration

	// GET /info
	ServiceStatus string
	ServiceHelp   string
	ServiceTerms  string

	// Server
	APIPort string
}

func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		PostgresDSN: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379/0"),

		MintURL:    getEnv("MINT_URL", ""),
		Unit:       getEnv("UNIT", "sat"),
		MaxBalance: getEnvInt64("MAX_BALANCE", 100_000),
		MaxSend:    getEnvInt64("MAX_SEND", 50_000),
		MaxPay:     getEnvInt64("MAX_PAY", 50_000),

		RateOracleURL:       getEnv("RATE_ORACLE_URL", "https://api.coingecko.com/api/v3/simple/price?ids=bitcoin&vs_currencies=usd,eur,cad,gbp"),
		RateOracleTimeoutMS: getEnvInt("RATE_ORACLE_TIMEOUT_MS", 5000),

		RateLimitMax:             getEnvInt("RATE_LIMIT_MAX", 60),
		RateLimitCreateWalletMax: getEnvInt("RATE_LIMIT_CREATE_WALLET_MAX", 5),
		RateLimitWindow:          time.Duration(getEnvInt("RATE_LIMIT_WINDOW", 60)) * time.Second,

		ServiceStatus: getEnv("SERVICE_STATUS", "READY"),
		ServiceHelp:   getEnv("SERVICE_HELP", ""),
		ServiceTerms:  getEnv("SERVICE_TERMS", ""),

		APIPort: getEnv("PORT", "3000"),
	}

	return cfg
}

func (c *Config) Validate(log *zap.Logger) {
	if c.MintURL == "" {
		log.Fatal("MINT_URL is required")
	}
	if c.PostgresDSN == "" {
		log.Fatal("DATABASE_URL is required")
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return v
}

func getEnvInt64(key string, fallback int64) int64 {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fallback
	}
	return v
}
