// Package backfill drives a resumable, membership-aware backfill over a
// date range.
//
// Work is tracked per (date, layer) unit. Dates are processed in strictly
// ascending order and layers within a date run prices, dividends, metrics,
// so the Silver metric for a date only ever reads Bronze rows that were
// written first. Units that a previous run marked Done are skipped, which
// makes an interrupted run safe to re-invoke over the same range.
package backfill
