package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultBaseURL              = "https://api.marketfeed.io"
	DefaultIndex                = "sp500"
	DefaultAPITimeout           = 30 * time.Second
	DefaultDBPort               = 5432
	DefaultDBSSLMode            = "prefer"
	DefaultMaxConns             = 10
	DefaultMinConns             = 2
	DefaultChunkSize            = 80
	DefaultMaxWorkers           = 4
	DefaultMaxRetries           = 3
	DefaultBaseDelay            = 500 * time.Millisecond
	DefaultCallsPerSecond       = 4.0
	DefaultBurst                = 1
	DefaultDividendLookbackDays = 400
)

func (c *Config) applyDefaults() {
	// API defaults
	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultBaseURL
	}
	if c.API.Index == "" {
		c.API.Index = DefaultIndex
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}

	// Database defaults
	applyDBDefaults(&c.Database.Postgres)

	// Fetch defaults
	if c.Fetch.ChunkSize == 0 {
		c.Fetch.ChunkSize = DefaultChunkSize
	}
	if c.Fetch.MaxWorkers == 0 {
		c.Fetch.MaxWorkers = DefaultMaxWorkers
	}
	if c.Fetch.MaxRetries == 0 {
		c.Fetch.MaxRetries = DefaultMaxRetries
	}
	if c.Fetch.BaseDelay == 0 {
		c.Fetch.BaseDelay = DefaultBaseDelay
	}
	if c.Fetch.CallsPerSecond == 0 {
		c.Fetch.CallsPerSecond = DefaultCallsPerSecond
	}
	if c.Fetch.Burst == 0 {
		c.Fetch.Burst = DefaultBurst
	}

	// Backfill defaults
	if len(c.Backfill.Layers) == 0 {
		c.Backfill.Layers = []string{"prices", "dividends", "metrics"}
	}
	if c.Backfill.DividendLookbackDays == 0 {
		c.Backfill.DividendLookbackDays = DefaultDividendLookbackDays
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
