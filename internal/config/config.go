package config

import "time"

// Config is the root configuration shared by the backfill and collector
// binaries.
type Config struct {
	Instance InstanceConfig `yaml:"instance"`
	API      APIConfig      `yaml:"api"`
	Database DatabaseConfig `yaml:"database"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Backfill BackfillConfig `yaml:"backfill"`
}

// InstanceConfig identifies this deployment.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// APIConfig holds upstream market-data API settings.
type APIConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Index   string        `yaml:"index"` // index whose membership is tracked
	Timeout time.Duration `yaml:"timeout"`
}

// DatabaseConfig holds the Postgres connection for all layers.
type DatabaseConfig struct {
	Postgres DBConfig `yaml:"postgres"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// FetchConfig holds batch fetcher settings.
type FetchConfig struct {
	ChunkSize      int           `yaml:"chunk_size"`
	MaxWorkers     int           `yaml:"max_workers"`
	MaxRetries     int           `yaml:"max_retries"`
	BaseDelay      time.Duration `yaml:"base_delay"`
	CallsPerSecond float64       `yaml:"calls_per_second"`
	Burst          int           `yaml:"burst"`
}

// BackfillConfig holds orchestrator settings.
type BackfillConfig struct {
	Layers               []string `yaml:"layers"`
	IncludeWeekends      bool     `yaml:"include_weekends"`
	DividendLookbackDays int      `yaml:"dividend_lookback_days"`
}
