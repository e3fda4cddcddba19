// Package membership implements the index membership ledger.
//
// The ledger:
//   - Records add/remove change events (append-only, strictly alternating
//     per symbol)
//   - Derives the exact member set for any historical date, avoiding
//     survivorship bias in backfills
//   - Caches per-date snapshots with invalidation on new events; the
//     from-scratch replay stays the source of truth
//   - Synthesizes events by diffing an upstream member list against its
//     own derived snapshot
package membership
