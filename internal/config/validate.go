package config

import (
	"errors"
	"fmt"
)

var validLayers = map[string]struct{}{
	"prices":    {},
	"dividends": {},
	"metrics":   {},
}

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.API.APIKey == "" {
		return errors.New("api.api_key is required")
	}

	if err := c.Database.Postgres.validate("database.postgres"); err != nil {
		return err
	}

	if c.Fetch.ChunkSize < 1 {
		return errors.New("fetch.chunk_size must be >= 1")
	}
	if c.Fetch.MaxWorkers < 1 {
		return errors.New("fetch.max_workers must be >= 1")
	}
	if c.Fetch.MaxRetries < 1 {
		return errors.New("fetch.max_retries must be >= 1")
	}
	if c.Fetch.CallsPerSecond <= 0 {
		return errors.New("fetch.calls_per_second must be > 0")
	}

	for _, layer := range c.Backfill.Layers {
		if _, ok := validLayers[layer]; !ok {
			return fmt.Errorf("backfill.layers contains unknown layer %q", layer)
		}
	}
	if c.Backfill.DividendLookbackDays < 1 {
		return errors.New("backfill.dividend_lookback_days must be >= 1")
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
