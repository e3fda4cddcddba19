package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dkwon/stocklake/internal/model"
)

// AppendDividends inserts dividend events into the Bronze dividend table.
// The natural key is (symbol, ex_date, collection_date): the same ex-date
// event re-observed on a later collection run inserts a new row, while
// re-running the same collection is a no-op.
func (s *Store) AppendDividends(ctx context.Context, rows []model.DividendEvent) (int, int, error) {
	if len(rows) == 0 {
		return 0, 0, nil
	}

	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO dividend_events (symbol, ex_date, amount, collection_date, ingest_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (symbol, ex_date, collection_date) DO NOTHING
		`, string(r.Symbol), r.ExDate, r.Amount, r.CollectionDate, r.IngestAt)
	}

	conflicts, err := s.execBatch(ctx, batch, len(rows))
	if err != nil {
		s.recordError()
		return 0, 0, err
	}
	s.recordInserts(len(rows)-conflicts, conflicts)

	s.logger.Debug("appended dividend events",
		"rows", len(rows),
		"conflicts", conflicts,
	)
	return len(rows) - conflicts, conflicts, nil
}

// DividendEventsInWindow returns one event per ex-date for the symbol with
// after < ex_date <= until, resolving repeated observations of the same
// ex-date by latest ingest_at so trailing sums never double count.
func (s *Store) DividendEventsInWindow(ctx context.Context, sym model.Symbol, after, until time.Time) ([]model.DividendEvent, error) {
	rows, err := s.db.Query(ctx, `
		SELECT DISTINCT ON (ex_date) symbol, ex_date, amount, collection_date, ingest_at
		FROM dividend_events
		WHERE symbol = $1 AND ex_date > $2 AND ex_date <= $3
		ORDER BY ex_date, ingest_at DESC
	`, string(sym), model.Day(after), model.Day(until))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.DividendEvent
	for rows.Next() {
		var ev model.DividendEvent
		var symStr string
		if err := rows.Scan(&symStr, &ev.ExDate, &ev.Amount, &ev.CollectionDate, &ev.IngestAt); err != nil {
			return nil, err
		}
		ev.Symbol = model.Symbol(symStr)
		ev.ExDate = model.Day(ev.ExDate)
		ev.CollectionDate = model.Day(ev.CollectionDate)
		out = append(out, ev)
	}
	return out, rows.Err()
}
