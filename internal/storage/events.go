package storage

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/dkwon/stocklake/internal/model"
)

// InsertEvents appends membership change events to the durable change log.
// The log is append-only; an event already present (same symbol and
// effective date) is skipped.
func (s *Store) InsertEvents(ctx context.Context, events []model.MembershipEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, ev := range events {
		batch.Queue(`
			INSERT INTO membership_events (symbol, effective_date, action)
			VALUES ($1, $2, $3)
			ON CONFLICT (symbol, effective_date) DO NOTHING
		`, string(ev.Symbol), ev.EffectiveDate, string(ev.Action))
	}

	conflicts, err := s.execBatch(ctx, batch, len(events))
	if err != nil {
		s.recordError()
		return 0, err
	}
	s.recordInserts(len(events)-conflicts, conflicts)
	return len(events) - conflicts, nil
}

// LoadEvents returns the full membership change log ordered by
// (effective_date, symbol), ready to feed a ledger.
func (s *Store) LoadEvents(ctx context.Context) ([]model.MembershipEvent, error) {
	rows, err := s.db.Query(ctx, `
		SELECT symbol, effective_date, action
		FROM membership_events
		ORDER BY effective_date, symbol
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.MembershipEvent
	for rows.Next() {
		var ev model.MembershipEvent
		var sym, action string
		if err := rows.Scan(&sym, &ev.EffectiveDate, &action); err != nil {
			return nil, err
		}
		ev.Symbol = model.Symbol(sym)
		ev.EffectiveDate = model.Day(ev.EffectiveDate)
		ev.Action = model.MembershipAction(action)
		out = append(out, ev)
	}
	return out, rows.Err()
}
