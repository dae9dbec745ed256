package nmi

import "time"

// Config contains configuration for the NMI customer vault adapter
type Config struct {
	// Direct post endpoint, e.g. https://secure.nmi.com/api/transact.php
	BaseURL string

	// Merchant security key, resolved from the secrets provider at startup
	SecurityKey string

	// HTTP client timeout for a single request
	Timeout time.Duration

	// Retries for unstore only. Purchases are never retried.
	MaxRetries int

	// Circuit breaker: consecutive transport failures before opening,
	// how long it stays open and how many trial requests pass while half-open.
	BreakerFailures    uint32
	BreakerOpenTimeout time.Duration
	BreakerMaxRequests uint32

	InsecureSkipVerify bool
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		BaseURL:            "https://secure.nmi.com/api/transact.php",
		Timeout:            30 * time.Second,
		MaxRetries:         2,
		BreakerFailures:    5,
		BreakerOpenTimeout: 30 * time.Second,
		BreakerMaxRequests: 1,
	}
}
