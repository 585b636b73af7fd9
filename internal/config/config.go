// Package config loads the engine's configuration from environment
// variables (plus an optional .env file), following the teacher's
// internal/config.Load shape: getEnv/getEnvAsInt/getEnvAsBool helpers
// resolving into a validated Config struct, failing fast on bad input
// (spec §7, Configuration error class) before a session ever starts.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the CLI needs to wire the engine's components.
type Config struct {
	DataDir      string
	DatabasePath string

	FilingsAPIBaseURL string
	FilingsUserAgent  string

	BrokerageAPIBaseURL string
	BrokerageAPIToken   string

	LogLevel string

	FilingsWorkerCount int
	PriceWorkerCount   int
	FilingsBatchSize   int
	PriceBatchSize     int

	FilingsRateRPS    float64
	FilingsRateBurst  int
	BrokerageRateRPS   float64
	BrokerageRateBurst int

	DefaultHistoryStart time.Time

	// R2BackupBucket, R2BackupEndpoint, R2BackupAccessKey, R2BackupSecretKey
	// configure the optional post-session Store backup sidecar
	// (internal/storebackup). Backups are skipped entirely when
	// R2BackupBucket is empty.
	R2BackupBucket    string
	R2BackupEndpoint  string
	R2BackupRegion    string
	R2BackupAccessKey string
	R2BackupSecretKey string

	// StatusAddr, when non-empty, starts the optional read-only local
	// status HTTP surface (internal/statusserver).
	StatusAddr string
}

const defaultHistoryStartLayout = "2006-01-02"

// Load reads configuration from the environment, defaulting DataDir to
// "./data" when TRADER_DATA_DIR-equivalent ENGINE_DATA_DIR is unset, and
// validates the result eagerly.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dataDir := getEnv("ENGINE_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("config: resolve data dir: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0o755); err != nil {
		return nil, fmt.Errorf("config: create data dir: %w", err)
	}

	dbPath := getEnv("ENGINE_DATABASE_PATH", "")
	if dbPath == "" {
		dbPath = filepath.Join(absDataDir, "equityrefresh.db")
	}

	historyStart, err := time.Parse(defaultHistoryStartLayout, getEnv("ENGINE_DEFAULT_HISTORY_START", "2015-01-01"))
	if err != nil {
		return nil, fmt.Errorf("config: parse ENGINE_DEFAULT_HISTORY_START: %w", err)
	}

	cfg := &Config{
		DataDir:      absDataDir,
		DatabasePath: dbPath,

		FilingsAPIBaseURL: getEnv("ENGINE_FILINGS_BASE_URL", "https://data.sec.gov"),
		FilingsUserAgent:  getEnv("ENGINE_FILINGS_USER_AGENT", "equityrefresh/1.0 (ops@example.com)"),

		BrokerageAPIBaseURL: getEnv("ENGINE_BROKERAGE_BASE_URL", "https://www.alphavantage.co"),
		BrokerageAPIToken:   getEnv("ENGINE_BROKERAGE_TOKEN", ""),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		FilingsWorkerCount: getEnvAsInt("ENGINE_FILINGS_WORKERS", 8),
		PriceWorkerCount:   getEnvAsInt("ENGINE_PRICE_WORKERS", 3),
		FilingsBatchSize:   getEnvAsInt("ENGINE_FILINGS_BATCH_SIZE", 50),
		PriceBatchSize:     getEnvAsInt("ENGINE_PRICE_BATCH_SIZE", 25),

		FilingsRateRPS:     getEnvAsFloat("ENGINE_FILINGS_RATE_RPS", 10),
		FilingsRateBurst:   getEnvAsInt("ENGINE_FILINGS_RATE_BURST", 10),
		BrokerageRateRPS:   getEnvAsFloat("ENGINE_BROKERAGE_RATE_RPS", 2),
		BrokerageRateBurst: getEnvAsInt("ENGINE_BROKERAGE_RATE_BURST", 3),

		DefaultHistoryStart: historyStart,

		R2BackupBucket:    getEnv("ENGINE_R2_BACKUP_BUCKET", ""),
		R2BackupEndpoint:  getEnv("ENGINE_R2_BACKUP_ENDPOINT", ""),
		R2BackupRegion:    getEnv("ENGINE_R2_BACKUP_REGION", "auto"),
		R2BackupAccessKey: getEnv("ENGINE_R2_ACCESS_KEY", ""),
		R2BackupSecretKey: getEnv("ENGINE_R2_SECRET_KEY", ""),

		StatusAddr: getEnv("ENGINE_STATUS_ADDR", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks for configuration combinations that must fail before a
// session starts (spec §7, Configuration error class).
func (c *Config) Validate() error {
	if c.FilingsWorkerCount <= 0 || c.PriceWorkerCount <= 0 {
		return fmt.Errorf("config: worker counts must be positive")
	}
	if c.FilingsBatchSize <= 0 || c.PriceBatchSize <= 0 {
		return fmt.Errorf("config: batch sizes must be positive")
	}
	if c.R2BackupBucket != "" && (c.R2BackupAccessKey == "" || c.R2BackupSecretKey == "") {
		return fmt.Errorf("config: R2 backup bucket configured without credentials")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
