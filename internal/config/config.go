package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port               string
	DBConnectionString string
	DrainInterval      time.Duration
	Sync               *SyncConfig
	Ledger             *LedgerConfig
	Breaker            *BreakerConfig
	Journal            *JournalConfig
	Metrics            *MetricsConfig
}

func Load() (*Config, error) {
	port := getEnv("PORT", "8080")
	dbConnStr := getEnv("DB_CONNECTION_STRING", "")

	drainInterval, err := strconv.Atoi(getEnv("DRAIN_INTERVAL_SECONDS", "60"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:               port,
		DBConnectionString: dbConnStr,
		DrainInterval:      time.Duration(drainInterval) * time.Second,
		Sync:               DefaultSyncConfig(),
		Ledger:             DefaultLedgerConfig(),
		Breaker:            DefaultBreakerConfig(),
		Journal:            DefaultJournalConfig(),
		Metrics:            DefaultMetricsConfig(),
	}

	if base := os.Getenv("LEDGER_API_BASE_URL"); base != "" {
		cfg.Ledger.BaseURL = base
	}
	cfg.Ledger.TokenURL = getEnv("LEDGER_TOKEN_URL", cfg.Ledger.TokenURL)
	cfg.Ledger.ClientID = os.Getenv("LEDGER_CLIENT_ID")
	cfg.Ledger.ClientSecret = os.Getenv("LEDGER_CLIENT_SECRET")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
