package config

import "time"

// LedgerConfig holds remote ledger API configuration
type LedgerConfig struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	// RefreshMargin triggers a proactive token refresh this long before
	// expiry, rather than waiting for a 401.
	RefreshMargin time.Duration
	Timeout       time.Duration
	// RateLimitMax requests per RateLimitWindow; exceeding it delays the
	// next call instead of failing it.
	RateLimitMax    int
	RateLimitWindow time.Duration
}

// DefaultLedgerConfig returns the default ledger configuration
func DefaultLedgerConfig() *LedgerConfig {
	return &LedgerConfig{
		BaseURL:         "https://quickbooks.api.intuit.com",
		TokenURL:        "https://oauth.platform.intuit.com/oauth2/v1/tokens/bearer",
		RefreshMargin:   10 * time.Minute,
		Timeout:         120 * time.Second,
		RateLimitMax:    450,
		RateLimitWindow: time.Minute,
	}
}
