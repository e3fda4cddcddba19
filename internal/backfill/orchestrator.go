package backfill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/dkwon/stocklake/internal/dividend"
	"github.com/dkwon/stocklake/internal/fetch"
	"github.com/dkwon/stocklake/internal/model"
)

// MembershipSource resolves the tracked index's member set for a date.
type MembershipSource interface {
	MembersAt(date time.Time) (map[model.Symbol]struct{}, error)
}

// MembershipFunc adapts a function to MembershipSource.
type MembershipFunc func(date time.Time) (map[model.Symbol]struct{}, error)

func (f MembershipFunc) MembersAt(date time.Time) (map[model.Symbol]struct{}, error) {
	return f(date)
}

// Collector is the batch fetcher boundary.
type Collector interface {
	Collect(ctx context.Context, symbols []model.Symbol, r model.DateRange) (map[model.Symbol]fetch.Outcome, error)
}

// Store is the storage-writer boundary the orchestrator drives.
type Store interface {
	AppendPrices(ctx context.Context, rows []model.PriceObservation) (inserted, conflicts int, err error)
	AppendDividends(ctx context.Context, rows []model.DividendEvent) (inserted, conflicts int, err error)
	UpsertMetrics(ctx context.Context, rows []model.DividendMetric) error
	LoadProgress(ctx context.Context, r model.DateRange) ([]model.BackfillProgress, error)
	SaveProgress(ctx context.Context, p model.BackfillProgress) error
}

// MetricComputer derives one symbol's dividend metric for a date.
type MetricComputer interface {
	Compute(ctx context.Context, sym model.Symbol, asOf time.Time) (model.DividendMetric, error)
}

// Config holds orchestrator configuration.
type Config struct {
	Layers               []model.Layer // Layers to process (default: all three)
	IncludeWeekends      bool          // Process weekend dates (default: false)
	DividendLookbackDays int           // Dividend collection window per date (default: 400)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Layers:               []model.Layer{model.LayerPrices, model.LayerDividends, model.LayerMetrics},
		IncludeWeekends:      false,
		DividendLookbackDays: 400,
	}
}

// layerOrder fixes processing order within a date: metrics read what the
// Bronze layers of the same date wrote.
var layerOrder = map[model.Layer]int{
	model.LayerPrices:    0,
	model.LayerDividends: 1,
	model.LayerMetrics:   2,
}

// Orchestrator drives a membership-aware backfill over a date range. Dates
// run strictly ascending because the trailing-window metric for date d
// depends only on observations with date <= d. Progress rows are mutated
// only here, never by fetch workers.
type Orchestrator struct {
	cfg     Config
	members MembershipSource
	fetcher Collector
	store   Store
	calc    MetricComputer
	logger  *slog.Logger
	runID   uuid.UUID
}

// New creates an Orchestrator. calc may be nil when the metrics layer is
// not selected.
func New(cfg Config, members MembershipSource, fetcher Collector, store Store, calc MetricComputer, logger *slog.Logger) *Orchestrator {
	if len(cfg.Layers) == 0 {
		cfg.Layers = DefaultConfig().Layers
	}
	if cfg.DividendLookbackDays <= 0 {
		cfg.DividendLookbackDays = DefaultConfig().DividendLookbackDays
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		cfg:     cfg,
		members: members,
		fetcher: fetcher,
		store:   store,
		calc:    calc,
		logger:  logger,
		runID:   uuid.New(),
	}
}

// Run processes every (date, layer) unit in the range, skipping units a
// prior run already finished. Returns the report of everything touched;
// the error is non-nil only for context cancellation or a progress-store
// failure — per-symbol and per-unit failures are recorded, not raised.
func (o *Orchestrator) Run(ctx context.Context, r model.DateRange) (*Report, error) {
	dates := r.Dates(o.cfg.IncludeWeekends)
	layers := o.orderedLayers()
	report := &Report{RunID: o.runID}

	done, err := o.loadCompleted(ctx, r)
	if err != nil {
		return report, fmt.Errorf("load progress: %w", err)
	}

	o.logger.Info("backfill starting",
		"run_id", o.runID,
		"start", model.Day(r.Start).Format("2006-01-02"),
		"end", model.Day(r.End).Format("2006-01-02"),
		"dates", len(dates),
		"layers", layers,
		"already_done", len(done),
	)
	start := time.Now()

	for _, d := range dates {
		for _, layer := range layers {
			if err := ctx.Err(); err != nil {
				// Interrupted units stay Pending/InProgress and are
				// re-selected by the next invocation.
				o.logSummary(report, time.Since(start), true)
				return report, err
			}

			if _, ok := done[unitKey{d, layer}]; ok {
				report.Skipped++
				continue
			}

			result, err := o.runUnit(ctx, d, layer)
			if err != nil {
				o.logSummary(report, time.Since(start), true)
				return report, err
			}
			report.Units = append(report.Units, result)
		}
	}

	o.logSummary(report, time.Since(start), false)
	return report, nil
}

type unitKey struct {
	date  time.Time
	layer model.Layer
}

func (o *Orchestrator) loadCompleted(ctx context.Context, r model.DateRange) (map[unitKey]struct{}, error) {
	existing, err := o.store.LoadProgress(ctx, r)
	if err != nil {
		return nil, err
	}
	done := make(map[unitKey]struct{})
	for _, p := range existing {
		if p.Status == model.UnitDone {
			done[unitKey{p.Date, p.Layer}] = struct{}{}
		}
	}
	return done, nil
}

// runUnit processes one (date, layer) unit. The returned error is non-nil
// only for cancellation or a progress-store failure; everything else is
// captured in the unit result.
func (o *Orchestrator) runUnit(ctx context.Context, d time.Time, layer model.Layer) (UnitResult, error) {
	result := UnitResult{Date: d, Layer: layer}

	if err := o.saveProgress(ctx, d, layer, model.UnitInProgress, 0, nil); err != nil {
		return result, err
	}

	memberSet, err := o.members.MembersAt(d)
	if err != nil {
		// Unable to resolve the point-in-time member set: the unit fails
		// as a whole and is retried by a later invocation.
		o.logger.Error("membership resolution failed",
			"date", d.Format("2006-01-02"),
			"layer", layer,
			"error", err,
		)
		result.Status = model.UnitFailed
		if err := o.saveProgress(ctx, d, layer, model.UnitFailed, 0, nil); err != nil {
			return result, err
		}
		return result, nil
	}

	symbols := sortedSymbols(memberSet)
	result.Attempted = len(symbols)

	switch layer {
	case model.LayerMetrics:
		result.FailedSymbols, err = o.runMetrics(ctx, symbols, d)
	default:
		result.FailedSymbols, err = o.runCollection(ctx, symbols, d, layer)
	}
	if err != nil {
		return result, err
	}

	// Partial failure is still Done: the gaps are recorded per symbol for
	// auditability instead of blocking the unit forever.
	result.Status = model.UnitDone
	if err := o.saveProgress(ctx, d, layer, model.UnitDone, len(symbols), result.FailedSymbols); err != nil {
		return result, err
	}

	o.logger.Info("unit complete",
		"date", d.Format("2006-01-02"),
		"layer", layer,
		"symbols", len(symbols),
		"failed", len(result.FailedSymbols),
	)
	return result, nil
}

// runCollection fetches a Bronze layer for one date and hands successes to
// the storage writer. Writes happen only after every symbol was attempted,
// so an interrupted unit leaves no partial batch behind.
func (o *Orchestrator) runCollection(ctx context.Context, symbols []model.Symbol, d time.Time, layer model.Layer) ([]model.Symbol, error) {
	fetchRange := model.DateRange{Start: d, End: d}
	if layer == model.LayerDividends {
		// Dividend events are collected over a trailing window so ex-dates
		// announced before the backfill date are captured.
		fetchRange.Start = d.AddDate(0, 0, -o.cfg.DividendLookbackDays)
	}

	outcomes, err := o.fetcher.Collect(ctx, symbols, fetchRange)
	if err != nil {
		return nil, err
	}

	var failed []model.Symbol
	var prices []model.PriceObservation
	var dividends []model.DividendEvent
	for _, sym := range symbols {
		out := outcomes[sym]
		if out.Err != nil {
			failed = append(failed, sym)
			continue
		}
		if layer == model.LayerPrices {
			prices = append(prices, out.Series.Prices...)
		} else {
			dividends = append(dividends, out.Series.Dividends...)
		}
	}

	if layer == model.LayerPrices {
		if _, _, err := o.store.AppendPrices(ctx, prices); err != nil {
			return nil, fmt.Errorf("append prices for %s: %w", d.Format("2006-01-02"), err)
		}
	} else {
		if _, _, err := o.store.AppendDividends(ctx, dividends); err != nil {
			return nil, fmt.Errorf("append dividends for %s: %w", d.Format("2006-01-02"), err)
		}
	}
	return failed, nil
}

// runMetrics computes the Silver metric for every member with data
// available up to d and upserts the batch. A symbol without price data yet
// is skipped silently; it becomes computable on a later run.
func (o *Orchestrator) runMetrics(ctx context.Context, symbols []model.Symbol, d time.Time) ([]model.Symbol, error) {
	var failed []model.Symbol
	var metrics []model.DividendMetric

	for _, sym := range symbols {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m, err := o.calc.Compute(ctx, sym, d)
		if err != nil {
			if errors.Is(err, dividend.ErrMissingPriceData) {
				continue
			}
			o.logger.Warn("metric computation failed",
				"symbol", sym,
				"date", d.Format("2006-01-02"),
				"error", err,
			)
			failed = append(failed, sym)
			continue
		}
		metrics = append(metrics, m)
	}

	if err := o.store.UpsertMetrics(ctx, metrics); err != nil {
		return nil, fmt.Errorf("upsert metrics for %s: %w", d.Format("2006-01-02"), err)
	}
	return failed, nil
}

func (o *Orchestrator) saveProgress(ctx context.Context, d time.Time, layer model.Layer, status model.UnitStatus, attempted int, failed []model.Symbol) error {
	return o.store.SaveProgress(ctx, model.BackfillProgress{
		Date:             d,
		Layer:            layer,
		Status:           status,
		AttemptedSymbols: attempted,
		FailedSymbols:    failed,
		RunID:            o.runID,
		UpdatedAt:        time.Now().UTC(),
	})
}

func (o *Orchestrator) orderedLayers() []model.Layer {
	layers := make([]model.Layer, len(o.cfg.Layers))
	copy(layers, o.cfg.Layers)
	sort.Slice(layers, func(i, j int) bool { return layerOrder[layers[i]] < layerOrder[layers[j]] })
	return layers
}

func (o *Orchestrator) logSummary(r *Report, elapsed time.Duration, interrupted bool) {
	o.logger.Info("backfill finished",
		"run_id", o.runID,
		"done", r.Done(),
		"failed", r.Failed(),
		"skipped", r.Skipped,
		"interrupted", interrupted,
		"duration", elapsed,
	)
	for _, u := range r.Units {
		if len(u.FailedSymbols) > 0 {
			o.logger.Warn("unit has unresolved symbols",
				"date", u.Date.Format("2006-01-02"),
				"layer", u.Layer,
				"symbols", u.FailedSymbols,
			)
		}
	}
}

func sortedSymbols(set map[model.Symbol]struct{}) []model.Symbol {
	out := make([]model.Symbol, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
