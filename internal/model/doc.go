// Package model defines the core domain types shared across the pipeline.
//
// Three storage disciplines apply:
//   - Bronze tables (PriceObservation, DividendEvent) are append-only; a
//     corrected value is a new row and "latest" is resolved by ingest time.
//   - Silver tables (DividendMetric) are upserted by natural key.
//   - BackfillProgress is mutable bookkeeping owned by the orchestrator.
//
// All dates are UTC midnights produced by Day/Date so they compare equal
// as map keys.
package model
