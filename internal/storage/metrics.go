package storage

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/dkwon/stocklake/internal/model"
)

// UpsertMetrics writes Silver dividend metrics with overwrite-by-key
// semantics: each recomputation replaces the prior row for its
// (symbol, date).
func (s *Store) UpsertMetrics(ctx context.Context, rows []model.DividendMetric) error {
	if len(rows) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO dividend_metrics_daily
				(symbol, date, last_price, dividend_ttm, dividend_yield_ttm, div_count_1y, last_div_date, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (symbol, date) DO UPDATE SET
				last_price = EXCLUDED.last_price,
				dividend_ttm = EXCLUDED.dividend_ttm,
				dividend_yield_ttm = EXCLUDED.dividend_yield_ttm,
				div_count_1y = EXCLUDED.div_count_1y,
				last_div_date = EXCLUDED.last_div_date,
				updated_at = EXCLUDED.updated_at
		`, string(r.Symbol), r.Date, r.LastPrice, r.DividendTTM, r.DividendYieldTTM, r.DivCount1Y, r.LastDivDate, r.UpdatedAt)
	}

	if _, err := s.execBatch(ctx, batch, len(rows)); err != nil {
		s.recordError()
		return err
	}
	s.recordUpserts(len(rows))

	s.logger.Debug("upserted dividend metrics", "rows", len(rows))
	return nil
}
