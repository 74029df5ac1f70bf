package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds all configuration for the snaglog client.
type Config struct {
	// Remote API
	APIBaseURL string
	APIToken   string

	// Payment return listener (loopback server the success URL redirects to)
	ReturnListenAddr string

	// One-time report price, GBP
	ReportPrice decimal.Decimal

	// Generation polling
	PollInterval    time.Duration
	PollMaxAttempts int

	// Photo intake
	MaxPhotoBytes int64

	LogLevel string
}

// Load loads configuration from environment variables, with a .env file
// applied first if one exists.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		APIBaseURL:       getEnv("SNAGLOG_API_URL", "http://localhost:3001"),
		APIToken:         os.Getenv("SNAGLOG_API_TOKEN"),
		ReturnListenAddr: getEnv("SNAGLOG_RETURN_ADDR", "localhost:8734"),
		ReportPrice:      getDecimalEnv("SNAGLOG_REPORT_PRICE", "19.99"),
		PollInterval:     getDurationEnv("SNAGLOG_POLL_INTERVAL", 2*time.Second),
		PollMaxAttempts:  getIntEnv("SNAGLOG_POLL_MAX_ATTEMPTS", 30),
		MaxPhotoBytes:    int64(getIntEnv("SNAGLOG_MAX_PHOTO_BYTES", 10*1024*1024)),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
	}
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}

func getDecimalEnv(key, defaultValue string) decimal.Decimal {
	if v := os.Getenv(key); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			return d
		}
	}
	d, _ := decimal.NewFromString(defaultValue)
	return d
}
