package backfill

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dkwon/stocklake/internal/dividend"
	"github.com/dkwon/stocklake/internal/fetch"
	"github.com/dkwon/stocklake/internal/model"
)

type fakeMembers struct {
	set      map[model.Symbol]struct{}
	errDates map[time.Time]error
}

func (f *fakeMembers) MembersAt(d time.Time) (map[model.Symbol]struct{}, error) {
	if err, ok := f.errDates[model.Day(d)]; ok {
		return nil, err
	}
	return f.set, nil
}

type collectCall struct {
	symbols []model.Symbol
	r       model.DateRange
}

type fakeCollector struct {
	calls    []collectCall
	failSyms map[model.Symbol]*fetch.FetchError
	onCall   func(n int)
}

func (f *fakeCollector) Collect(ctx context.Context, symbols []model.Symbol, r model.DateRange) (map[model.Symbol]fetch.Outcome, error) {
	f.calls = append(f.calls, collectCall{symbols: symbols, r: r})
	if f.onCall != nil {
		f.onCall(len(f.calls))
	}
	out := make(map[model.Symbol]fetch.Outcome, len(symbols))
	for _, sym := range symbols {
		if err, ok := f.failSyms[sym]; ok {
			out[sym] = fetch.Outcome{Err: err}
			continue
		}
		out[sym] = fetch.Outcome{Series: &model.Series{
			Symbol: sym,
			Prices: []model.PriceObservation{{
				Symbol:   sym,
				Date:     model.Day(r.End),
				Close:    decimal.NewFromInt(100),
				IngestAt: time.Now().UTC(),
			}},
			Dividends: []model.DividendEvent{{
				Symbol:         sym,
				ExDate:         model.Day(r.End),
				Amount:         decimal.NewFromFloat(0.5),
				CollectionDate: model.Day(r.End),
				IngestAt:       time.Now().UTC(),
			}},
		}}
	}
	return out, nil
}

type priceKey struct {
	sym  model.Symbol
	date time.Time
}

type fakeStore struct {
	prices    map[priceKey]int
	dividends int
	metrics   []model.DividendMetric
	progress  map[unitKey]model.BackfillProgress
	saveErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		prices:   make(map[priceKey]int),
		progress: make(map[unitKey]model.BackfillProgress),
	}
}

func (f *fakeStore) AppendPrices(ctx context.Context, rows []model.PriceObservation) (int, int, error) {
	inserted, conflicts := 0, 0
	for _, row := range rows {
		k := priceKey{row.Symbol, model.Day(row.Date)}
		if f.prices[k] > 0 {
			conflicts++
		} else {
			inserted++
		}
		f.prices[k]++
	}
	return inserted, conflicts, nil
}

func (f *fakeStore) AppendDividends(ctx context.Context, rows []model.DividendEvent) (int, int, error) {
	f.dividends += len(rows)
	return len(rows), 0, nil
}

func (f *fakeStore) UpsertMetrics(ctx context.Context, rows []model.DividendMetric) error {
	f.metrics = append(f.metrics, rows...)
	return nil
}

func (f *fakeStore) LoadProgress(ctx context.Context, r model.DateRange) ([]model.BackfillProgress, error) {
	var out []model.BackfillProgress
	for _, p := range f.progress {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeStore) SaveProgress(ctx context.Context, p model.BackfillProgress) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.progress[unitKey{model.Day(p.Date), p.Layer}] = p
	return nil
}

type fakeCalc struct {
	errSyms map[model.Symbol]error
	calls   int
}

func (f *fakeCalc) Compute(ctx context.Context, sym model.Symbol, asOf time.Time) (model.DividendMetric, error) {
	f.calls++
	if err, ok := f.errSyms[sym]; ok {
		return model.DividendMetric{}, err
	}
	return model.DividendMetric{
		Symbol:      sym,
		Date:        model.Day(asOf),
		LastPrice:   decimal.NewFromInt(100),
		DividendTTM: decimal.NewFromInt(2),
	}, nil
}

func members(syms ...model.Symbol) map[model.Symbol]struct{} {
	set := make(map[model.Symbol]struct{}, len(syms))
	for _, s := range syms {
		set[s] = struct{}{}
	}
	return set
}

// Monday and Tuesday.
var (
	day1 = model.Date(2024, time.March, 4)
	day2 = model.Date(2024, time.March, 5)
)

func newTestOrchestrator(src MembershipSource, col Collector, store Store, calc MetricComputer) *Orchestrator {
	return New(DefaultConfig(), src, col, store, calc, nil)
}

func TestRunProcessesAllUnits(t *testing.T) {
	src := &fakeMembers{set: members("AAPL", "MSFT")}
	col := &fakeCollector{}
	store := newFakeStore()
	calc := &fakeCalc{}
	o := newTestOrchestrator(src, col, store, calc)

	report, err := o.Run(context.Background(), model.DateRange{Start: day1, End: day2})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// 2 dates x 3 layers, prices and dividends each hit the collector.
	if got := report.Done(); got != 6 {
		t.Errorf("done units = %d, want 6", got)
	}
	if report.Failed() != 0 || report.Skipped != 0 {
		t.Errorf("failed=%d skipped=%d, want 0/0", report.Failed(), report.Skipped)
	}
	if len(col.calls) != 4 {
		t.Errorf("collector calls = %d, want 4", len(col.calls))
	}
	if len(store.prices) != 4 {
		t.Errorf("distinct price rows = %d, want 4", len(store.prices))
	}
	if len(store.metrics) != 4 {
		t.Errorf("metrics upserted = %d, want 4", len(store.metrics))
	}
	for k, p := range store.progress {
		if p.Status != model.UnitDone {
			t.Errorf("unit %s/%s status = %s, want done", k.date.Format("2006-01-02"), k.layer, p.Status)
		}
	}
}

func TestRunOrderIsAscendingWithLayeredDates(t *testing.T) {
	src := &fakeMembers{set: members("AAPL")}
	col := &fakeCollector{}
	store := newFakeStore()
	o := newTestOrchestrator(src, col, store, &fakeCalc{})

	if _, err := o.Run(context.Background(), model.DateRange{Start: day1, End: day2}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Collector sees prices then dividends for day1, then the same for day2.
	wantEnds := []time.Time{day1, day1, day2, day2}
	if len(col.calls) != len(wantEnds) {
		t.Fatalf("collector calls = %d, want %d", len(col.calls), len(wantEnds))
	}
	for i, call := range col.calls {
		if !model.Day(call.r.End).Equal(wantEnds[i]) {
			t.Errorf("call %d end = %s, want %s", i, call.r.End.Format("2006-01-02"), wantEnds[i].Format("2006-01-02"))
		}
	}
	// Dividend calls carry the trailing lookback window.
	if got := col.calls[1].r.Start; !got.Before(day1) {
		t.Errorf("dividend call start = %s, want before %s", got, day1)
	}
}

func TestResumeSkipsDoneUnits(t *testing.T) {
	src := &fakeMembers{set: members("AAPL")}
	col := &fakeCollector{}
	store := newFakeStore()
	for _, layer := range DefaultConfig().Layers {
		store.progress[unitKey{day1, layer}] = model.BackfillProgress{
			Date: day1, Layer: layer, Status: model.UnitDone,
		}
	}
	o := newTestOrchestrator(src, col, store, &fakeCalc{})

	report, err := o.Run(context.Background(), model.DateRange{Start: day1, End: day1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(col.calls) != 0 {
		t.Errorf("collector calls = %d, want 0 on fully-done range", len(col.calls))
	}
	if report.Skipped != 3 {
		t.Errorf("skipped = %d, want 3", report.Skipped)
	}
	if len(report.Units) != 0 {
		t.Errorf("processed units = %d, want 0", len(report.Units))
	}
}

func TestPartialFetchFailureStillCompletesUnit(t *testing.T) {
	src := &fakeMembers{set: members("AAPL", "ZZZZ")}
	col := &fakeCollector{failSyms: map[model.Symbol]*fetch.FetchError{
		"ZZZZ": {Symbol: "ZZZZ", Kind: fetch.KindNotFound, Attempts: 1, Err: errors.New("no data")},
	}}
	store := newFakeStore()
	o := newTestOrchestrator(src, col, store, &fakeCalc{})

	report, err := o.Run(context.Background(), model.DateRange{Start: day1, End: day1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Failed() != 0 {
		t.Errorf("failed units = %d, want 0", report.Failed())
	}

	p := store.progress[unitKey{day1, model.LayerPrices}]
	if p.Status != model.UnitDone {
		t.Errorf("prices unit status = %s, want done", p.Status)
	}
	if p.AttemptedSymbols != 2 {
		t.Errorf("attempted = %d, want 2", p.AttemptedSymbols)
	}
	if len(p.FailedSymbols) != 1 || p.FailedSymbols[0] != "ZZZZ" {
		t.Errorf("failed symbols = %v, want [ZZZZ]", p.FailedSymbols)
	}
	// The healthy symbol's rows still landed.
	if _, ok := store.prices[priceKey{"AAPL", day1}]; !ok {
		t.Error("expected AAPL price row despite ZZZZ failure")
	}
}

func TestMembershipErrorFailsUnitButContinues(t *testing.T) {
	src := &fakeMembers{
		set:      members("AAPL"),
		errDates: map[time.Time]error{day1: errors.New("ledger gap")},
	}
	col := &fakeCollector{}
	store := newFakeStore()
	o := newTestOrchestrator(src, col, store, &fakeCalc{})

	report, err := o.Run(context.Background(), model.DateRange{Start: day1, End: day2})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Failed() != 3 {
		t.Errorf("failed units = %d, want 3 (all day1 layers)", report.Failed())
	}
	if report.Done() != 3 {
		t.Errorf("done units = %d, want 3 (all day2 layers)", report.Done())
	}
	if p := store.progress[unitKey{day1, model.LayerPrices}]; p.Status != model.UnitFailed {
		t.Errorf("day1 prices status = %s, want failed", p.Status)
	}
}

func TestMetricsMissingPriceDataSkipsSymbol(t *testing.T) {
	src := &fakeMembers{set: members("AAPL", "NEWCO")}
	col := &fakeCollector{}
	store := newFakeStore()
	calc := &fakeCalc{errSyms: map[model.Symbol]error{
		"NEWCO": dividend.ErrMissingPriceData,
	}}
	o := newTestOrchestrator(src, col, store, calc)

	_, err := o.Run(context.Background(), model.DateRange{Start: day1, End: day1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	p := store.progress[unitKey{day1, model.LayerMetrics}]
	if p.Status != model.UnitDone {
		t.Errorf("metrics unit status = %s, want done", p.Status)
	}
	if len(p.FailedSymbols) != 0 {
		t.Errorf("failed symbols = %v, want none for missing price data", p.FailedSymbols)
	}
	if len(store.metrics) != 1 || store.metrics[0].Symbol != "AAPL" {
		t.Errorf("metrics = %v, want only AAPL", store.metrics)
	}
}

func TestMetricsComputeErrorRecordsSymbol(t *testing.T) {
	src := &fakeMembers{set: members("AAPL", "MSFT")}
	store := newFakeStore()
	calc := &fakeCalc{errSyms: map[model.Symbol]error{
		"MSFT": errors.New("reader unavailable"),
	}}
	o := New(Config{Layers: []model.Layer{model.LayerMetrics}}, src, &fakeCollector{}, store, calc, nil)

	_, err := o.Run(context.Background(), model.DateRange{Start: day1, End: day1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	p := store.progress[unitKey{day1, model.LayerMetrics}]
	if len(p.FailedSymbols) != 1 || p.FailedSymbols[0] != "MSFT" {
		t.Errorf("failed symbols = %v, want [MSFT]", p.FailedSymbols)
	}
}

func TestCancellationThenResumeCompletesWithoutDuplicates(t *testing.T) {
	src := &fakeMembers{set: members("AAPL")}
	store := newFakeStore()

	ctx, cancel := context.WithCancel(context.Background())
	col := &fakeCollector{}
	col.onCall = func(n int) {
		if n == 2 {
			cancel()
		}
	}
	o := newTestOrchestrator(src, col, store, &fakeCalc{})

	r := model.DateRange{Start: day1, End: day2}
	_, err := o.Run(ctx, r)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("first run err = %v, want context.Canceled", err)
	}

	// A fresh invocation over the same range finishes the remainder.
	col2 := &fakeCollector{}
	o2 := newTestOrchestrator(src, col2, store, &fakeCalc{})
	report, err := o2.Run(context.Background(), r)
	if err != nil {
		t.Fatalf("resume run: %v", err)
	}
	if !report.Complete() {
		t.Error("resume run not complete")
	}
	for _, layer := range DefaultConfig().Layers {
		for _, d := range []time.Time{day1, day2} {
			if p := store.progress[unitKey{d, layer}]; p.Status != model.UnitDone {
				t.Errorf("unit %s/%s status = %s, want done", d.Format("2006-01-02"), layer, p.Status)
			}
		}
	}
	// Re-appended rows from the interrupted unit hit the natural key, so
	// each (symbol, date) has exactly one distinct row.
	if len(store.prices) != 2 {
		t.Errorf("distinct price rows = %d, want 2", len(store.prices))
	}
}

func TestLayerSelectionSkipsOthers(t *testing.T) {
	src := &fakeMembers{set: members("AAPL")}
	col := &fakeCollector{}
	store := newFakeStore()
	o := New(Config{Layers: []model.Layer{model.LayerPrices}}, src, col, store, nil, nil)

	report, err := o.Run(context.Background(), model.DateRange{Start: day1, End: day1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Units) != 1 || report.Units[0].Layer != model.LayerPrices {
		t.Errorf("units = %+v, want single prices unit", report.Units)
	}
	if store.dividends != 0 || len(store.metrics) != 0 {
		t.Error("unexpected writes outside the selected layer")
	}
}

func TestWeekendsExcludedByDefault(t *testing.T) {
	src := &fakeMembers{set: members("AAPL")}
	col := &fakeCollector{}
	store := newFakeStore()
	o := New(Config{Layers: []model.Layer{model.LayerPrices}}, src, col, store, nil, nil)

	// Friday through Monday: only Friday and Monday are processed.
	fri := model.Date(2024, time.March, 1)
	mon := model.Date(2024, time.March, 4)
	report, err := o.Run(context.Background(), model.DateRange{Start: fri, End: mon})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Units) != 2 {
		t.Errorf("units = %d, want 2 weekdays", len(report.Units))
	}
}
