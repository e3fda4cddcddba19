package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
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

// The collector is the daily entrypoint: it reconciles the membership
// ledger against the upstream index, persists any changes, then runs all
// layers for a single collection date.
func main() {
	configPath := flag.String("config", "configs/collector.local.yaml", "path to config file")
	dateStr := flag.String("date", "", "collection date (YYYY-MM-DD, defaults to yesterday)")
	flag.Parse()

	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting collector",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Daily cron runs after close, so the default target is the previous day.
	collectionDate := model.Day(time.Now().UTC()).AddDate(0, 0, -1)
	if *dateStr != "" {
		d, err := time.Parse("2006-01-02", *dateStr)
		if err != nil {
			logger.Error("invalid -date", "error", err)
			os.Exit(1)
		}
		collectionDate = model.Day(d)
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"api_url", cfg.API.BaseURL,
		"index", cfg.API.Index,
		"date", collectionDate.Format("2006-01-02"),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

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

	events, err := store.LoadEvents(ctx)
	if err != nil {
		logger.Error("failed to load membership events", "error", err)
		os.Exit(1)
	}
	ledger := membership.NewLedger()
	if err := ledger.Load(events); err != nil {
		logger.Error("membership ledger is inconsistent", "error", err)
		os.Exit(1)
	}

	apiClient := api.NewClient(
		cfg.API.BaseURL,
		cfg.API.APIKey,
		api.WithIndex(cfg.API.Index),
		api.WithTimeout(cfg.API.Timeout),
		api.WithLogger(logger),
	)

	// Reconcile the ledger against the live index before collecting, so
	// today's member set reflects additions and removals effective today.
	changed, err := ledger.SyncFromSource(ctx, apiClient, collectionDate, logger)
	if err != nil {
		logger.Error("membership sync failed", "error", err)
		os.Exit(1)
	}
	if len(changed) > 0 {
		inserted, err := store.InsertEvents(ctx, changed)
		if err != nil {
			logger.Error("failed to persist membership changes", "error", err)
			os.Exit(1)
		}
		logger.Info("membership changes recorded", "events", inserted)
	}

	fetcher := fetch.New(fetch.Config{
		ChunkSize:      cfg.Fetch.ChunkSize,
		MaxWorkers:     cfg.Fetch.MaxWorkers,
		MaxRetries:     cfg.Fetch.MaxRetries,
		BaseDelay:      cfg.Fetch.BaseDelay,
		CallsPerSecond: cfg.Fetch.CallsPerSecond,
		Burst:          cfg.Fetch.Burst,
	}, apiClient, logger)

	orch := backfill.New(backfill.Config{
		IncludeWeekends:      true, // a single explicit date always runs
		DividendLookbackDays: cfg.Backfill.DividendLookbackDays,
	}, membersSource(ledger), fetcher, store, dividend.NewCalculator(store, logger), logger)

	report, err := orch.Run(ctx, model.DateRange{Start: collectionDate, End: collectionDate})
	if err != nil {
		logger.Error("collection interrupted", "error", err)
		os.Exit(1)
	}

	stats := store.Stats()
	logger.Info("collection complete",
		"run_id", report.RunID,
		"date", collectionDate.Format("2006-01-02"),
		"done", report.Done(),
		"failed", report.Failed(),
		"rows_inserted", stats.Inserts,
		"rows_skipped_as_duplicates", stats.Conflicts,
		"metrics_upserted", stats.Upserts,
	)
	if !report.Complete() {
		os.Exit(1)
	}
}

func membersSource(l *membership.Ledger) backfill.MembershipSource {
	return backfill.MembershipFunc(func(d time.Time) (map[model.Symbol]struct{}, error) {
		set := l.MembersAt(d)
		if len(set) == 0 {
			return nil, fmt.Errorf("no membership data on or before %s", d.Format("2006-01-02"))
		}
		return set, nil
	})
}
