package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/dkwon/stocklake/internal/api"
	"github.com/dkwon/stocklake/internal/model"
)

// ErrorKind classifies a terminal per-symbol fetch failure.
type ErrorKind string

const (
	KindRateLimited ErrorKind = "rate_limited"
	KindTransient   ErrorKind = "transient"
	KindNotFound    ErrorKind = "not_found"
)

// FetchError is the terminal outcome for a symbol whose fetch could not be
// completed. Attempts counts every call made for the symbol.
type FetchError struct {
	Symbol   model.Symbol
	Kind     ErrorKind
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %s after %d attempt(s): %v", e.Symbol, e.Kind, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Outcome is the per-symbol result of a Collect call: exactly one of Series
// and Err is set.
type Outcome struct {
	Series *model.Series
	Err    *FetchError
}

// SeriesSource fetches one symbol's daily series. Implemented by the api
// client.
type SeriesSource interface {
	GetDailySeries(ctx context.Context, sym model.Symbol, start, end time.Time) (*model.Series, error)
}

// Config holds batch fetcher configuration.
type Config struct {
	ChunkSize      int           // Symbols per chunk (default: 80)
	MaxWorkers     int           // Max concurrent chunks (default: 4)
	MaxRetries     int           // Total attempts per symbol (default: 3)
	BaseDelay      time.Duration // Backoff unit; sleep = BaseDelay * attempt (default: 500ms)
	CallsPerSecond float64       // Shared rate limit across all workers (default: 4)
	Burst          int           // Rate-limiter burst (default: 1)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ChunkSize:      80,
		MaxWorkers:     4,
		MaxRetries:     3,
		BaseDelay:      500 * time.Millisecond,
		CallsPerSecond: 4,
		Burst:          1,
	}
}

// Fetcher collects per-symbol daily series in rate-limited, retry-safe
// batches. The rate limiter is shared across the worker pool, so the total
// external call rate stays bounded regardless of parallelism.
type Fetcher struct {
	cfg     Config
	source  SeriesSource
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New creates a Fetcher. Zero-valued config fields fall back to defaults.
func New(cfg Config, source SeriesSource, logger *slog.Logger) *Fetcher {
	def := DefaultConfig()
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = def.ChunkSize
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = def.MaxWorkers
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.CallsPerSecond <= 0 {
		cfg.CallsPerSecond = def.CallsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		cfg:     cfg,
		source:  source,
		limiter: rate.NewLimiter(rate.Limit(cfg.CallsPerSecond), cfg.Burst),
		logger:  logger,
	}
}

// Collect fetches the date range for every symbol and returns one Outcome
// per input symbol: a series, or a terminal FetchError. Partial failure
// never aborts the batch; only context cancellation does, in which case the
// returned map is incomplete and the error is non-nil.
func (f *Fetcher) Collect(ctx context.Context, symbols []model.Symbol, r model.DateRange) (map[model.Symbol]Outcome, error) {
	ordered := dedupe(symbols)
	results := make(map[model.Symbol]Outcome, len(ordered))
	if len(ordered) == 0 {
		return results, nil
	}

	start := time.Now()
	chunks := chunk(ordered, f.cfg.ChunkSize)

	workers := f.cfg.MaxWorkers
	if len(chunks) < workers {
		workers = len(chunks)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, ch := range chunks {
		g.Go(func() error {
			for _, sym := range ch {
				out, err := f.fetchOne(gctx, sym, r)
				if err != nil {
					return err // context cancellation only
				}
				mu.Lock()
				results[sym] = out
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}

	var failed int
	for _, out := range results {
		if out.Err != nil {
			failed++
		}
	}
	f.logger.Info("batch collection complete",
		"symbols", len(ordered),
		"chunks", len(chunks),
		"failed", failed,
		"duration", time.Since(start),
	)
	return results, nil
}

// fetchOne runs the retry loop for a single symbol. A non-nil error is
// returned only for context cancellation; every data-source failure ends up
// inside the Outcome.
func (f *Fetcher) fetchOne(ctx context.Context, sym model.Symbol, r model.DateRange) (Outcome, error) {
	var lastErr error
	var lastKind ErrorKind

	for attempt := 1; attempt <= f.cfg.MaxRetries; attempt++ {
		if err := f.limiter.Wait(ctx); err != nil {
			return Outcome{}, err
		}

		series, err := f.source.GetDailySeries(ctx, sym, r.Start, r.End)
		if err == nil {
			return Outcome{Series: series}, nil
		}
		if ctx.Err() != nil {
			return Outcome{}, ctx.Err()
		}

		lastErr = err
		lastKind = classify(err)

		if lastKind == KindNotFound {
			// Terminal for this symbol on this call; no point retrying.
			return Outcome{Err: &FetchError{Symbol: sym, Kind: lastKind, Attempts: attempt, Err: err}}, nil
		}

		if attempt < f.cfg.MaxRetries {
			backoff := f.cfg.BaseDelay * time.Duration(attempt)
			f.logger.Debug("retrying symbol fetch",
				"symbol", sym,
				"attempt", attempt,
				"backoff", backoff,
				"kind", lastKind,
			)
			select {
			case <-ctx.Done():
				return Outcome{}, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return Outcome{Err: &FetchError{Symbol: sym, Kind: lastKind, Attempts: f.cfg.MaxRetries, Err: lastErr}}, nil
}

// classify maps a data-source error onto the retry taxonomy.
func classify(err error) ErrorKind {
	switch {
	case api.IsNotFound(err):
		return KindNotFound
	case api.IsRateLimited(err):
		return KindRateLimited
	default:
		var apiErr *api.APIError
		if errors.As(err, &apiErr) && !apiErr.IsRetryable() {
			// 4xx other than 429/404: upstream rejects the request as
			// malformed for this symbol, treat like not found.
			return KindNotFound
		}
		return KindTransient
	}
}

// dedupe sorts the input and removes duplicates so chunking and the result
// map are order-independent by symbol key.
func dedupe(symbols []model.Symbol) []model.Symbol {
	seen := make(map[model.Symbol]struct{}, len(symbols))
	out := make([]model.Symbol, 0, len(symbols))
	for _, s := range symbols {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// chunk partitions symbols into fixed-size pieces.
func chunk(symbols []model.Symbol, size int) [][]model.Symbol {
	var chunks [][]model.Symbol
	for i := 0; i < len(symbols); i += size {
		end := i + size
		if end > len(symbols) {
			end = len(symbols)
		}
		chunks = append(chunks, symbols[i:end])
	}
	return chunks
}
