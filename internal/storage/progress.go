package storage

import (
	"context"

	"github.com/dkwon/stocklake/internal/model"
)

// LoadProgress returns every persisted (date, layer) unit in the range,
// ordered by date then layer.
func (s *Store) LoadProgress(ctx context.Context, r model.DateRange) ([]model.BackfillProgress, error) {
	rows, err := s.db.Query(ctx, `
		SELECT date, layer, status, attempted_symbols, failed_symbols, run_id, updated_at
		FROM backfill_progress
		WHERE date >= $1 AND date <= $2
		ORDER BY date, layer
	`, model.Day(r.Start), model.Day(r.End))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.BackfillProgress
	for rows.Next() {
		var p model.BackfillProgress
		var layer, status string
		var failed []string
		if err := rows.Scan(&p.Date, &layer, &status, &p.AttemptedSymbols, &failed, &p.RunID, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.Date = model.Day(p.Date)
		p.Layer = model.Layer(layer)
		p.Status = model.UnitStatus(status)
		p.FailedSymbols = toSymbols(failed)
		out = append(out, p)
	}
	return out, rows.Err()
}

// SaveProgress upserts one unit's state. Only the orchestrator calls this;
// fetch workers never touch progress rows.
func (s *Store) SaveProgress(ctx context.Context, p model.BackfillProgress) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO backfill_progress
			(date, layer, status, attempted_symbols, failed_symbols, run_id, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (date, layer) DO UPDATE SET
			status = EXCLUDED.status,
			attempted_symbols = EXCLUDED.attempted_symbols,
			failed_symbols = EXCLUDED.failed_symbols,
			run_id = EXCLUDED.run_id,
			updated_at = EXCLUDED.updated_at
	`, p.Date, string(p.Layer), string(p.Status), p.AttemptedSymbols, toStrings(p.FailedSymbols), p.RunID, p.UpdatedAt)
	if err != nil {
		s.recordError()
	}
	return err
}

func toStrings(syms []model.Symbol) []string {
	out := make([]string, len(syms))
	for i, s := range syms {
		out[i] = string(s)
	}
	return out
}

func toSymbols(strs []string) []model.Symbol {
	if len(strs) == 0 {
		return nil
	}
	out := make([]model.Symbol, len(strs))
	for i, s := range strs {
		out[i] = model.Symbol(s)
	}
	return out
}
