package fetch

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/dkwon/stocklake/internal/api"
	"github.com/dkwon/stocklake/internal/model"
)

// scriptedSource fails configured symbols and records per-symbol attempts.
type scriptedSource struct {
	mu       sync.Mutex
	failWith map[model.Symbol]error
	attempts map[model.Symbol]int
}

func newScriptedSource() *scriptedSource {
	return &scriptedSource{
		failWith: make(map[model.Symbol]error),
		attempts: make(map[model.Symbol]int),
	}
}

func (s *scriptedSource) GetDailySeries(_ context.Context, sym model.Symbol, _, _ time.Time) (*model.Series, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[sym]++
	if err, ok := s.failWith[sym]; ok {
		return nil, err
	}
	return &model.Series{Symbol: sym}, nil
}

func (s *scriptedSource) attemptCount(sym model.Symbol) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts[sym]
}

func fastConfig() Config {
	return Config{
		ChunkSize:      2,
		MaxWorkers:     2,
		MaxRetries:     3,
		BaseDelay:      time.Millisecond,
		CallsPerSecond: 10000,
		Burst:          100,
	}
}

func TestFetcher_Collect_PartialFailure(t *testing.T) {
	src := newScriptedSource()
	src.failWith["B"] = &api.APIError{StatusCode: http.StatusInternalServerError}

	f := New(fastConfig(), src, nil)
	results, err := f.Collect(context.Background(), []model.Symbol{"A", "B", "C"},
		model.DateRange{Start: model.Date(2024, time.January, 15), End: model.Date(2024, time.January, 15)})
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	if len(results) != 3 {
		t.Fatalf("got %d outcomes, want 3", len(results))
	}
	for _, sym := range []model.Symbol{"A", "C"} {
		out := results[sym]
		if out.Err != nil {
			t.Errorf("%s: unexpected error %v", sym, out.Err)
		}
		if out.Series == nil || out.Series.Symbol != sym {
			t.Errorf("%s: missing series", sym)
		}
	}

	b := results["B"]
	if b.Err == nil {
		t.Fatal("B: expected terminal FetchError")
	}
	if b.Err.Kind != KindTransient {
		t.Errorf("B: kind = %s, want transient", b.Err.Kind)
	}
	if b.Err.Attempts != 3 {
		t.Errorf("B: attempts = %d, want 3", b.Err.Attempts)
	}
	if got := src.attemptCount("B"); got != 3 {
		t.Errorf("B: source saw %d calls, want 3", got)
	}
}

func TestFetcher_Collect_NotFoundIsTerminal(t *testing.T) {
	src := newScriptedSource()
	src.failWith["GONE"] = &api.APIError{StatusCode: http.StatusNotFound}

	f := New(fastConfig(), src, nil)
	results, err := f.Collect(context.Background(), []model.Symbol{"GONE"},
		model.DateRange{Start: model.Date(2024, time.January, 15), End: model.Date(2024, time.January, 15)})
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	out := results["GONE"]
	if out.Err == nil || out.Err.Kind != KindNotFound {
		t.Fatalf("outcome = %+v, want not_found error", out)
	}
	if out.Err.Attempts != 1 {
		t.Errorf("attempts = %d, want 1 (no retry on not found)", out.Err.Attempts)
	}
	if got := src.attemptCount("GONE"); got != 1 {
		t.Errorf("source saw %d calls, want 1", got)
	}
}

func TestFetcher_Collect_RateLimitedIsRetried(t *testing.T) {
	src := newScriptedSource()
	src.failWith["HOT"] = &api.APIError{StatusCode: http.StatusTooManyRequests}

	f := New(fastConfig(), src, nil)
	results, err := f.Collect(context.Background(), []model.Symbol{"HOT"},
		model.DateRange{Start: model.Date(2024, time.January, 15), End: model.Date(2024, time.January, 15)})
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	out := results["HOT"]
	if out.Err == nil || out.Err.Kind != KindRateLimited {
		t.Fatalf("outcome = %+v, want rate_limited error", out)
	}
	if got := src.attemptCount("HOT"); got != 3 {
		t.Errorf("source saw %d calls, want 3", got)
	}
}

func TestFetcher_Collect_NoSymbolDropped(t *testing.T) {
	src := newScriptedSource()
	syms := []model.Symbol{"E", "A", "C", "B", "D", "A", "C"} // duplicates included

	f := New(fastConfig(), src, nil)
	results, err := f.Collect(context.Background(), syms,
		model.DateRange{Start: model.Date(2024, time.January, 15), End: model.Date(2024, time.January, 15)})
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	if len(results) != 5 {
		t.Fatalf("got %d outcomes, want 5 distinct symbols", len(results))
	}
	for _, sym := range []model.Symbol{"A", "B", "C", "D", "E"} {
		if _, ok := results[sym]; !ok {
			t.Errorf("symbol %s missing from results", sym)
		}
		if got := src.attemptCount(sym); got != 1 {
			t.Errorf("%s: source saw %d calls, want 1", sym, got)
		}
	}
}

func TestFetcher_Collect_EmptyInput(t *testing.T) {
	src := newScriptedSource()
	f := New(fastConfig(), src, nil)

	results, err := f.Collect(context.Background(), nil,
		model.DateRange{Start: model.Date(2024, time.January, 15), End: model.Date(2024, time.January, 15)})
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d outcomes, want 0", len(results))
	}
}

func TestFetcher_Collect_Cancellation(t *testing.T) {
	src := newScriptedSource()
	src.failWith["SLOW"] = &api.APIError{StatusCode: http.StatusInternalServerError}

	cfg := fastConfig()
	cfg.BaseDelay = time.Hour // retry sleep would block forever

	ctx, cancel := context.WithCancel(context.Background())
	f := New(cfg, src, nil)

	done := make(chan error, 1)
	go func() {
		_, err := f.Collect(ctx, []model.Symbol{"SLOW"},
			model.DateRange{Start: model.Date(2024, time.January, 15), End: model.Date(2024, time.January, 15)})
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Error("Collect() returned nil error after cancellation")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Collect() did not return after cancellation")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.ChunkSize != 80 {
		t.Errorf("ChunkSize = %d, want 80", cfg.ChunkSize)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.MaxRetries)
	}
}
