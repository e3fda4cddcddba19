package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/dkwon/stocklake/internal/api"
	"github.com/dkwon/stocklake/internal/backfill"
	"github.com/dkwon/stocklake/internal/config"
	"github.com/dkwon/stocklake/internal/database"
	"github.com/dkwon/stocklake/internal/dividend"
	"github.com/dkwon/stocklake/internal/fetch"
	"github.com/dkwon/stocklake/internal/membership"
	"github.com/dkwon/stocklake/internal/model"
	"github.com/dkwon/stocklake/internal/storage"
	"github.com/dkwon/stocklake/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/backfill.local.yaml", "path to config file")
	startStr := flag.String("start", "", "backfill start date (YYYY-MM-DD)")
	endStr := flag.String("end", "", "backfill end date (YYYY-MM-DD)")
	daysBack := flag.Int("days-back", 0, "incremental mode: backfill the last N days ending yesterday (overrides -start/-end)")
	layersStr := flag.String("layers", "", "comma-separated layers to run (overrides config)")
	seed := flag.Bool("seed", false, "seed the membership ledger with bootstrap changes if empty")
	flag.Parse()

	// .env is optional; explicit environment always wins
	_ = godotenv.Load()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting backfill",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	var start, end time.Time
	if *daysBack > 0 {
		end = model.Day(time.Now().UTC()).AddDate(0, 0, -1)
		start = end.AddDate(0, 0, -(*daysBack - 1))
	} else {
		var err error
		start, err = parseDate(*startStr)
		if err != nil {
			logger.Error("invalid -start date", "error", err)
			os.Exit(1)
		}
		end, err = parseDate(*endStr)
		if err != nil {
			logger.Error("invalid -end date", "error", err)
			os.Exit(1)
		}
		if end.Before(start) {
			logger.Error("end date precedes start date", "start", *startStr, "end", *endStr)
			os.Exit(1)
		}
	}

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	layerNames := cfg.Backfill.Layers
	if *layersStr != "" {
		layerNames = strings.Split(*layersStr, ",")
	}
	layers, err := parseLayers(layerNames)
	if err != nil {
		logger.Error("invalid layers", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"api_url", cfg.API.BaseURL,
		"index", cfg.API.Index,
		"layers", layerNames,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Connect to database and apply migrations
	logger.Info("connecting to database",
		"host", cfg.Database.Postgres.Host,
		"port", cfg.Database.Postgres.Port,
		"database", cfg.Database.Postgres.Name,
	)

	pool, err := database.Connect(ctx, cfg.Database.Postgres)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Error("failed to apply migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database connected")

	store := storage.New(pool, logger)

	ledger, err := loadLedger(ctx, store, *seed, logger)
	if err != nil {
		logger.Error("failed to load membership ledger", "error", err)
		os.Exit(1)
	}
	logger.Info("membership ledger loaded", "events", ledger.Len())

	// Create API client and batch fetcher
	apiClient := api.NewClient(
		cfg.API.BaseURL,
		cfg.API.APIKey,
		api.WithIndex(cfg.API.Index),
		api.WithTimeout(cfg.API.Timeout),
		api.WithLogger(logger),
	)
	fetcher := fetch.New(fetch.Config{
		ChunkSize:      cfg.Fetch.ChunkSize,
		MaxWorkers:     cfg.Fetch.MaxWorkers,
		MaxRetries:     cfg.Fetch.MaxRetries,
		BaseDelay:      cfg.Fetch.BaseDelay,
		CallsPerSecond: cfg.Fetch.CallsPerSecond,
		Burst:          cfg.Fetch.Burst,
	}, apiClient, logger)

	calc := dividend.NewCalculator(store, logger)

	orch := backfill.New(backfill.Config{
		Layers:               layers,
		IncludeWeekends:      cfg.Backfill.IncludeWeekends,
		DividendLookbackDays: cfg.Backfill.DividendLookbackDays,
	}, ledgerSource(ledger), fetcher, store, calc, logger)

	report, err := orch.Run(ctx, model.DateRange{Start: start, End: end})
	if err != nil {
		logger.Error("backfill interrupted", "error", err, "done", report.Done())
		os.Exit(1)
	}

	stats := store.Stats()
	logger.Info("backfill complete",
		"run_id", report.RunID,
		"done", report.Done(),
		"failed", report.Failed(),
		"skipped", report.Skipped,
		"rows_inserted", stats.Inserts,
		"rows_skipped_as_duplicates", stats.Conflicts,
		"metrics_upserted", stats.Upserts,
	)
	if !report.Complete() {
		os.Exit(1)
	}
}

// ledgerSource adapts the in-memory ledger to the orchestrator boundary. A
// date before the first recorded change has no members and cannot be
// backfilled meaningfully, so it surfaces as a resolution error.
func ledgerSource(l *membership.Ledger) backfill.MembershipSource {
	return backfill.MembershipFunc(func(d time.Time) (map[model.Symbol]struct{}, error) {
		set := l.MembersAt(d)
		if len(set) == 0 {
			return nil, fmt.Errorf("no membership data on or before %s", d.Format("2006-01-02"))
		}
		return set, nil
	})
}

func loadLedger(ctx context.Context, store *storage.Store, seed bool, logger *slog.Logger) (*membership.Ledger, error) {
	events, err := store.LoadEvents(ctx)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 && seed {
		inserted, err := store.InsertEvents(ctx, membership.SeedChanges())
		if err != nil {
			return nil, fmt.Errorf("seed membership events: %w", err)
		}
		logger.Info("seeded membership ledger", "events", inserted)
		events, err = store.LoadEvents(ctx)
		if err != nil {
			return nil, err
		}
	}

	ledger := membership.NewLedger()
	if err := ledger.Load(events); err != nil {
		return nil, err
	}
	return ledger, nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("date is required")
	}
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, err
	}
	return model.Day(d), nil
}

func parseLayers(names []string) ([]model.Layer, error) {
	out := make([]model.Layer, 0, len(names))
	for _, name := range names {
		switch model.Layer(strings.TrimSpace(name)) {
		case model.LayerPrices:
			out = append(out, model.LayerPrices)
		case model.LayerDividends:
			out = append(out, model.LayerDividends)
		case model.LayerMetrics:
			out = append(out, model.LayerMetrics)
		default:
			return nil, fmt.Errorf("unknown layer %q", name)
		}
	}
	return out, nil
}
