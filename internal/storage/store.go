package storage

import (
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Table names owned by the pipeline.
const (
	TablePrices    = "price_daily"
	TableDividends = "dividend_events"
	TableMetrics   = "dividend_metrics_daily"
	TableEvents    = "membership_events"
	TableProgress  = "backfill_progress"
)

// Stats counts write outcomes since the store was created.
type Stats struct {
	Inserts   int64
	Conflicts int64
	Upserts   int64
	Errors    int64
}

// Store reads and writes the pipeline's tables. Bronze tables are
// append-only with conflicts silently skipped; Silver metrics are upserted
// by key.
type Store struct {
	db     *pgxpool.Pool
	logger *slog.Logger

	mu    sync.Mutex
	stats Stats
}

// New creates a Store backed by the given pool.
func New(db *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// Stats returns a snapshot of the write counters.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Store) recordInserts(inserted, conflicts int) {
	s.mu.Lock()
	s.stats.Inserts += int64(inserted)
	s.stats.Conflicts += int64(conflicts)
	s.mu.Unlock()
}

func (s *Store) recordUpserts(n int) {
	s.mu.Lock()
	s.stats.Upserts += int64(n)
	s.mu.Unlock()
}

func (s *Store) recordError() {
	s.mu.Lock()
	s.stats.Errors++
	s.mu.Unlock()
}
