package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Symbol is a canonical ticker in upstream form (class-share dot replaced
// by hyphen, e.g. "BRK-B"). Produced by the symbol package; unique key
// across all tables.
type Symbol string

// MembershipAction is the direction of an index membership change.
type MembershipAction string

const (
	Added   MembershipAction = "added"
	Removed MembershipAction = "removed"
)

// MembershipEvent records one index membership change. Events for a symbol
// strictly alternate Added/Removed starting with Added, and no two events
// for the same symbol share an effective date.
type MembershipEvent struct {
	Symbol        Symbol
	EffectiveDate time.Time // UTC midnight
	Action        MembershipAction
}

// -----------------------------------------------------------------------------
// Bronze (append-only) types
// -----------------------------------------------------------------------------

// PriceObservation is one daily bar for one symbol. Natural key
// (symbol, date); never overwritten. A correction is a new row with a later
// IngestAt, and "latest" means max IngestAt per key.
type PriceObservation struct {
	Symbol   Symbol
	Date     time.Time // UTC midnight
	Open     decimal.Decimal
	High     decimal.Decimal
	Low      decimal.Decimal
	Close    decimal.Decimal
	AdjClose decimal.Decimal
	Volume   int64
	IngestAt time.Time
}

// DividendEvent is one observed ex-dividend event. The same event may be
// re-observed on multiple collection runs, so the natural key is
// (symbol, ex_date, collection_date).
type DividendEvent struct {
	Symbol         Symbol
	ExDate         time.Time // UTC midnight
	Amount         decimal.Decimal
	CollectionDate time.Time // UTC midnight
	IngestAt       time.Time
}

// Series is the payload fetched for one symbol over one date range.
type Series struct {
	Symbol    Symbol
	Prices    []PriceObservation
	Dividends []DividendEvent
}

// -----------------------------------------------------------------------------
// Silver (upsert) types
// -----------------------------------------------------------------------------

// DividendMetric is the derived trailing-twelve-month dividend aggregate for
// one (symbol, date). The only entity with true update semantics: each
// recomputation replaces the prior row for its key.
type DividendMetric struct {
	Symbol           Symbol
	Date             time.Time // UTC midnight
	LastPrice        decimal.Decimal
	DividendTTM      decimal.Decimal
	DividendYieldTTM *decimal.Decimal // nil when last price is not positive
	DivCount1Y       int
	LastDivDate      *time.Time // nil when no dividend in the window
	UpdatedAt        time.Time
}

// -----------------------------------------------------------------------------
// Backfill bookkeeping
// -----------------------------------------------------------------------------

// Layer identifies one collection layer of a backfill date.
type Layer string

const (
	LayerPrices    Layer = "prices"
	LayerDividends Layer = "dividends"
	LayerMetrics   Layer = "metrics"
)

// UnitStatus is the state of one (date, layer) unit of backfill work.
type UnitStatus string

const (
	UnitPending    UnitStatus = "pending"
	UnitInProgress UnitStatus = "in_progress"
	UnitDone       UnitStatus = "done"
	UnitFailed     UnitStatus = "failed"
)

// BackfillProgress is the persisted state of one (date, layer) unit. A
// re-run selects Pending/InProgress/Failed units and skips Done ones.
type BackfillProgress struct {
	Date             time.Time // UTC midnight
	Layer            Layer
	Status           UnitStatus
	AttemptedSymbols int
	FailedSymbols    []Symbol
	RunID            uuid.UUID
	UpdatedAt        time.Time
}

// DateRange is an inclusive range of UTC-midnight dates.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Day returns t truncated to UTC midnight. All date keys in the module go
// through this so time.Time equality holds for same-day values.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Date constructs a UTC-midnight date.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Dates expands the range into ascending days. Weekends are skipped unless
// includeWeekends is set; upstream publishes no bars for them.
func (r DateRange) Dates(includeWeekends bool) []time.Time {
	var days []time.Time
	for d := Day(r.Start); !d.After(Day(r.End)); d = d.AddDate(0, 0, 1) {
		if !includeWeekends && (d.Weekday() == time.Saturday || d.Weekday() == time.Sunday) {
			continue
		}
		days = append(days, d)
	}
	return days
}
