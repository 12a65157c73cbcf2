package config

import "time"

// SyncConfig holds sync processing configuration
type SyncConfig struct {
	// DrainLimit bounds how many pending operations one drain pass picks up.
	DrainLimit int
	// Concurrency is the number of operations in flight at once.
	Concurrency int
	// MaxRetries bounds how often a failed operation may be re-enqueued.
	MaxRetries int
	// DefaultBatchSize applies when an entity config has none.
	DefaultBatchSize int
	// DriftThreshold separates "still pending" from "drifted" during
	// reconciliation.
	DriftThreshold time.Duration
	// ReconcileSampleSize is the default per-entity-type sample.
	ReconcileSampleSize int
}

// DefaultSyncConfig returns the default sync configuration
func DefaultSyncConfig() *SyncConfig {
	return &SyncConfig{
		DrainLimit:          50,
		Concurrency:         3,
		MaxRetries:          3,
		DefaultBatchSize:    30,
		DriftThreshold:      time.Hour,
		ReconcileSampleSize: 50,
	}
}

// BreakerConfig holds circuit breaker configuration
type BreakerConfig struct {
	FailureThreshold int
	ResetTimeout     time.Duration
	HalfOpenMax      int
}

// DefaultBreakerConfig returns the default breaker configuration
func DefaultBreakerConfig() *BreakerConfig {
	return &BreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
		HalfOpenMax:      2,
	}
}

// JournalConfig holds change journal flush configuration
type JournalConfig struct {
	FlushSize     int
	FlushInterval time.Duration
}

// DefaultJournalConfig returns the default journal configuration
func DefaultJournalConfig() *JournalConfig {
	return &JournalConfig{
		FlushSize:     20,
		FlushInterval: 10 * time.Second,
	}
}

// MetricsConfig holds metrics collector flush configuration
type MetricsConfig struct {
	FlushSize     int
	FlushInterval time.Duration
}

// DefaultMetricsConfig returns the default metrics configuration
func DefaultMetricsConfig() *MetricsConfig {
	return &MetricsConfig{
		FlushSize:     50,
		FlushInterval: 15 * time.Second,
	}
}
