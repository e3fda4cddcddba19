package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/dkwon/stocklake/internal/model"
)

// AppendPrices inserts price observations into the Bronze price table.
// Rows whose full natural key (symbol, date, ingest_at) already exists are
// skipped; re-running a collection never produces duplicate rows with
// identical ingest_at. Returns inserted and skipped counts.
func (s *Store) AppendPrices(ctx context.Context, rows []model.PriceObservation) (int, int, error) {
	if len(rows) == 0 {
		return 0, 0, nil
	}

	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO price_daily (symbol, date, open, high, low, close, adj_close, volume, ingest_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (symbol, date, ingest_at) DO NOTHING
		`, string(r.Symbol), r.Date, r.Open, r.High, r.Low, r.Close, r.AdjClose, r.Volume, r.IngestAt)
	}

	conflicts, err := s.execBatch(ctx, batch, len(rows))
	if err != nil {
		s.recordError()
		return 0, 0, err
	}
	s.recordInserts(len(rows)-conflicts, conflicts)

	s.logger.Debug("appended prices",
		"rows", len(rows),
		"conflicts", conflicts,
	)
	return len(rows) - conflicts, conflicts, nil
}

// LatestPriceAt returns the most recent closing price for a symbol with
// date <= asOf, resolving corrected rows by max ingest_at per (symbol,
// date). found is false when no observation exists at or before asOf.
func (s *Store) LatestPriceAt(ctx context.Context, sym model.Symbol, asOf time.Time) (price decimal.Decimal, found bool, err error) {
	row := s.db.QueryRow(ctx, `
		SELECT close
		FROM price_daily
		WHERE symbol = $1 AND date <= $2
		ORDER BY date DESC, ingest_at DESC
		LIMIT 1
	`, string(sym), model.Day(asOf))

	if err := row.Scan(&price); err != nil {
		if err == pgx.ErrNoRows {
			return decimal.Decimal{}, false, nil
		}
		return decimal.Decimal{}, false, err
	}
	return price, true, nil
}

// execBatch sends a batch and counts statements that affected zero rows
// (conflict skips).
func (s *Store) execBatch(ctx context.Context, batch *pgx.Batch, n int) (conflicts int, err error) {
	results := s.db.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < n; i++ {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}
	return conflicts, nil
}
