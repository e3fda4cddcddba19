// Package database provides the PostgreSQL connection pool and embedded
// schema migrations for the pipeline's tables (Bronze observations, Silver
// metrics, membership change log, backfill progress).
package database
