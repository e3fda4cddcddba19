// Package storage implements the persistent table layer.
//
// Write discipline per table:
//   - price_daily, dividend_events (Bronze): append-only, pgx.Batch inserts
//     with ON CONFLICT DO NOTHING on the natural key; corrections are new
//     rows resolved by latest ingest_at at read time
//   - dividend_metrics_daily (Silver): upsert by (symbol, date)
//   - membership_events: append-only change log
//   - backfill_progress: mutable bookkeeping, one row per (date, layer)
package storage
