package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"scamwatch/internal/ai"
	"scamwatch/internal/config"
	"scamwatch/internal/detection"
	"scamwatch/internal/domain/models"
	"scamwatch/internal/infrastructure/cache"
	"scamwatch/internal/infrastructure/database"
	"scamwatch/internal/infrastructure/database/repository"
	"scamwatch/internal/jobs"
	"scamwatch/internal/sources/portal"
	"scamwatch/pkg/logger"
)

const (
	scanLockTTL    = 10 * time.Minute
	nightlyLockTTL = 30 * time.Minute
	lockRefresh    = 1 * time.Minute

	// Cap on how far back a catch-up scan may reach after downtime
	maxCatchUpWindow = 24 * time.Hour
)

func main() {
	// Load configuration
	cfg, err := config.LoadDefault()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	var log *logger.Logger
	if cfg.App.Environment == "production" {
		log = logger.NewProduction()
	} else {
		log = logger.NewDevelopment()
	}
	log = log.WithComponent("scan-worker")
	logger.SetGlobal(log)

	log.Info().
		Str("app", cfg.App.Name).
		Str("env", cfg.App.Environment).
		Str("version", cfg.App.Version).
		Msg("starting ScamWatch worker")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize infrastructure
	db, err := database.NewPostgres(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to PostgreSQL")
	}
	defer db.Close()

	if err := db.InitSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database schema")
	}

	redisCache, err := cache.NewRedis(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer redisCache.Close()

	repos := repository.NewRepositories(db.Pool())

	worker := NewScanWorker(cfg, repos, redisCache, log)

	// Handle shutdown signals
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Start worker
	go func() {
		if err := worker.Run(ctx); err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("worker stopped with error")
			cancel()
		}
	}()

	// Wait for shutdown signal
	<-quit
	log.Info().Msg("shutting down scan worker...")
	cancel()

	// Give time for graceful shutdown
	time.Sleep(2 * time.Second)
	log.Info().Msg("shutdown complete")
}

// ScanWorker drives the periodic scan and the nightly summary job
type ScanWorker struct {
	config     *config.Config
	cache      *cache.RedisCache
	scanner    *jobs.Scanner
	aggregator *jobs.Aggregator
	logger     *logger.Logger
}

// NewScanWorker wires the detection pipeline and jobs
func NewScanWorker(
	cfg *config.Config,
	repos *repository.Repositories,
	redisCache *cache.RedisCache,
	log *logger.Logger,
) *ScanWorker {
	rules := detection.NewRuleLibrary(log)
	reputation := cache.NewSenderReputationStore(redisCache)
	behavioral := detection.NewBehavioralScorer(reputation, log)
	detector := detection.NewDetector(rules, behavioral, cfg.Detection, log)

	source := portal.NewClient(cfg.Portal, log)
	scanner := jobs.NewScanner(source, detector, repos.Flags, repos.Runs, log)

	reviewer := ai.NewReviewer(cfg.Anthropic, log)
	aggregator := jobs.NewAggregator(repos.Flags, repos.Reports, reviewer, redisCache, cfg.Detection, log)

	return &ScanWorker{
		config:     cfg,
		cache:      redisCache,
		scanner:    scanner,
		aggregator: aggregator,
		logger:     log,
	}
}

// Run starts the worker loops and blocks until the context is cancelled
func (w *ScanWorker) Run(ctx context.Context) error {
	interval := w.config.Jobs.ScanInterval()
	cronSpec := w.config.Jobs.NightlyCronSpec()

	w.logger.Info().
		Dur("scan_interval", interval).
		Str("nightly_cron", cronSpec).
		Msg("starting worker loops")

	// Nightly summary on a cron schedule
	nightly := cron.New()
	if _, err := nightly.AddFunc(cronSpec, func() {
		w.runNightlyWithLock(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule nightly job: %w", err)
	}
	nightly.Start()
	defer func() {
		stopCtx := nightly.Stop()
		<-stopCtx.Done()
	}()

	// Run a scan immediately on start, then on the ticker
	w.runScanWithLock(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("scan worker stopped")
			return ctx.Err()
		case <-ticker.C:
			w.runScanWithLock(ctx)
		}
	}
}

// runScanWithLock runs one periodic scan under the distributed scan lock
func (w *ScanWorker) runScanWithLock(ctx context.Context) {
	acquired, err := w.cache.AcquireLock(ctx, cache.KeyScanJob, scanLockTTL)
	if err != nil {
		w.logger.Error().Err(err).Msg("failed to acquire scan lock")
		return
	}
	if !acquired {
		w.logger.Debug().Msg("another worker holds the scan lock, skipping")
		return
	}
	defer func() {
		if err := w.cache.ReleaseLock(ctx, cache.KeyScanJob); err != nil {
			w.logger.Warn().Err(err).Msg("failed to release scan lock")
		}
	}()

	lockCtx, lockCancel := context.WithCancel(ctx)
	defer lockCancel()
	go w.refreshLock(lockCtx, cache.KeyScanJob, scanLockTTL)

	end := time.Now().UTC()
	start := w.scanWindowStart(ctx, end)

	run, err := w.scanner.Run(ctx, models.RunTypePeriodic, start, end)
	if err != nil {
		w.logger.Error().Err(err).Msg("periodic scan failed")
		return
	}

	// Advance the window cursor only after a successful run so a failed
	// window is retried next tick
	if err := w.cache.Set(ctx, cache.KeyLastScanRun, end.Format(time.RFC3339), 0); err != nil {
		w.logger.Warn().Err(err).Msg("failed to record scan cursor")
	}

	w.logger.Info().
		Str("run_id", run.ID.String()).
		Int("messages_scanned", run.MessagesScanned).
		Int("scams_detected", run.ScamsDetected).
		Msg("periodic scan finished")
}

// scanWindowStart resolves where the next scan window begins: just after
// the last successful scan, bounded so extended downtime does not turn
// into an unbounded catch-up fetch.
func (w *ScanWorker) scanWindowStart(ctx context.Context, end time.Time) time.Time {
	fallback := end.Add(-w.config.Jobs.ScanInterval())

	raw, err := w.cache.Get(ctx, cache.KeyLastScanRun)
	if err != nil || raw == "" {
		return fallback
	}

	last, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		w.logger.Warn().Err(err).Str("value", raw).Msg("invalid scan cursor, using fallback window")
		return fallback
	}
	if end.Sub(last) > maxCatchUpWindow {
		w.logger.Warn().
			Time("last_scan", last).
			Msg("scan cursor too old, capping catch-up window")
		return end.Add(-maxCatchUpWindow)
	}
	return last
}

// runNightlyWithLock generates the previous day's report under the
// nightly lock. A catch-up scan over the full report day runs first so
// the report covers messages missed by periodic scan downtime.
func (w *ScanWorker) runNightlyWithLock(ctx context.Context) {
	acquired, err := w.cache.AcquireLock(ctx, cache.KeyNightlyJob, nightlyLockTTL)
	if err != nil {
		w.logger.Error().Err(err).Msg("failed to acquire nightly lock")
		return
	}
	if !acquired {
		w.logger.Debug().Msg("another worker holds the nightly lock, skipping")
		return
	}
	defer func() {
		if err := w.cache.ReleaseLock(ctx, cache.KeyNightlyJob); err != nil {
			w.logger.Warn().Err(err).Msg("failed to release nightly lock")
		}
	}()

	lockCtx, lockCancel := context.WithCancel(ctx)
	defer lockCancel()
	go w.refreshLock(lockCtx, cache.KeyNightlyJob, nightlyLockTTL)

	reportDay := time.Now().UTC().AddDate(0, 0, -1)
	dayStart := time.Date(reportDay.Year(), reportDay.Month(), reportDay.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	if _, err := w.scanner.Run(ctx, models.RunTypeNightly, dayStart, dayEnd); err != nil {
		// The report still runs over whatever flags exist for the day
		w.logger.Error().Err(err).Msg("nightly catch-up scan failed")
	}

	report, err := w.aggregator.Run(ctx, dayStart)
	if err != nil {
		w.logger.Error().Err(err).Msg("nightly summary failed")
		return
	}

	w.logger.Info().
		Str("report_date", report.ReportDate.Format("2006-01-02")).
		Int("total_scams", report.TotalScamsDetected).
		Msg("nightly summary finished")
}

// refreshLock periodically extends a held job lock
func (w *ScanWorker) refreshLock(ctx context.Context, lockKey string, ttl time.Duration) {
	ticker := time.NewTicker(lockRefresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.cache.RefreshLock(ctx, lockKey, ttl); err != nil {
				w.logger.Warn().Err(err).Str("lock", lockKey).Msg("failed to refresh lock")
			}
		}
	}
}
