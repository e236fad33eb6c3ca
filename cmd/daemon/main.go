package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/dgnsrekt/options-positioning/internal/analysis"
	"github.com/dgnsrekt/options-positioning/internal/config"
	"github.com/dgnsrekt/options-positioning/internal/notify"
)

func main() {
	os.Exit(run())
}

func run() int {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to read .env: %v\n", err)
		return 1
	}

	// Setup logger
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	// Load daemon config
	daemonCfg := LoadDaemonConfig()

	logger.Info("daemon configuration loaded",
		zap.Int("scheduleHour", daemonCfg.ScheduleHour),
		zap.Int("scheduleMinute", daemonCfg.ScheduleMinute),
		zap.String("timezone", daemonCfg.Timezone),
		zap.String("configPath", daemonCfg.ConfigPath),
		zap.String("stateFile", daemonCfg.StateFile),
		zap.Bool("runOnStartup", daemonCfg.RunOnStartup),
		zap.Bool("recordSnapshots", daemonCfg.RecordSnapshots),
	)

	// Load analysis config
	cfg, err := config.Load(daemonCfg.ConfigPath)
	if err != nil {
		logger.Error("failed to load analysis config", zap.Error(err))
		return 1
	}

	logger.Info("analysis configuration loaded",
		zap.String("provider", cfg.Provider),
		zap.Int("workers", cfg.Analysis.Workers),
		zap.Strings("tickers", cfg.Tickers),
	)

	// Load notification config
	ntfyCfg := notify.LoadConfig()
	if err := ntfyCfg.Validate(); err != nil {
		logger.Error("invalid notification config", zap.Error(err))
		return 1
	}
	notifier := notify.New(ntfyCfg, logger)

	svc, closer, err := analysis.Open(cfg, logger)
	if err != nil {
		logger.Error("failed to open provider", zap.Error(err))
		return 1
	}
	defer closer.Close()

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Create scheduler and tracker
	scheduler := NewScheduler(daemonCfg.ScheduleHour, daemonCfg.ScheduleMinute, daemonCfg.Timezone)
	tracker := NewDigestTracker(daemonCfg.StateFile)

	d := &daemon{
		cfg:       cfg,
		daemonCfg: daemonCfg,
		analyzer:  svc,
		notifier:  notifier,
		scheduler: scheduler,
		tracker:   tracker,
		logger:    logger,
	}

	logger.Info("daemon started",
		zap.String("schedule", fmt.Sprintf("%02d:%02d %s", daemonCfg.ScheduleHour, daemonCfg.ScheduleMinute, daemonCfg.Timezone)),
	)

	// Catch up on startup if enabled
	if daemonCfg.RunOnStartup {
		logger.Info("checking for missed digest on startup")
		if d.missedToday() {
			d.runDigest(ctx)
		}
	}

	// Main loop - check every minute
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", zap.String("signal", sig.String()))
			cancel()
			return 0

		case <-ticker.C:
			if d.shouldRun() {
				d.runDigest(ctx)
			}

		case <-ctx.Done():
			logger.Info("context cancelled, shutting down")
			return 0
		}
	}
}

type daemon struct {
	cfg       *config.Config
	daemonCfg *DaemonConfig
	analyzer  Analyzer
	notifier  notify.Notifier
	scheduler *Scheduler
	tracker   *DigestTracker
	logger    *zap.Logger
}

// due checks the conditions shared by the scheduled and catch-up runs
func (d *daemon) due(today string) bool {
	// Check if already sent today
	if d.tracker.AlreadySent(today) {
		return false
	}

	// Check if it's a market day
	if !d.scheduler.IsMarketDay(today) {
		d.logger.Debug("not a market day", zap.String("date", today))
		return false
	}
	return true
}

// shouldRun checks if conditions are met for the scheduled digest
func (d *daemon) shouldRun() bool {
	today := d.scheduler.TodayDate()
	if !d.due(today) || !d.scheduler.IsScheduledTime() {
		return false
	}

	d.logger.Info("digest conditions met",
		zap.String("date", today),
		zap.String("time", time.Now().In(d.scheduler.Location()).Format("15:04:05")),
	)
	return true
}

// missedToday reports whether today's digest time passed without a digest
func (d *daemon) missedToday() bool {
	today := d.scheduler.TodayDate()
	return d.due(today) && d.scheduler.IsPastScheduledTime()
}

// runDigest analyzes the watchlist, notifies and updates the tracker
func (d *daemon) runDigest(ctx context.Context) {
	today := d.scheduler.TodayDate()

	d.logger.Info("starting scheduled digest", zap.String("date", today))
	start := time.Now()

	if d.daemonCfg.RecordSnapshots {
		recordSnapshots(ctx, d.cfg, d.cfg.Tickers, today, d.logger)
	}

	digest := executeDigest(ctx, d.analyzer, d.cfg.Tickers, d.cfg.Analysis.Workers, today, d.logger)

	if len(digest.Entries) > 0 && digest.Failed() == len(digest.Entries) {
		err := fmt.Errorf("all %d tickers failed", len(digest.Entries))
		if firstErr := digest.Entries[0].Err; firstErr != nil {
			err = fmt.Errorf("%w: %w", err, firstErr)
		}
		d.logger.Error("digest failed", zap.Error(err), zap.String("date", today))
		if notifyErr := d.notifier.SendFailure(ctx, today, time.Since(start), err); notifyErr != nil {
			d.logger.Error("failed to send failure notification", zap.Error(notifyErr))
		}
		return
	}

	if err := d.notifier.SendDigest(ctx, digest); err != nil {
		d.logger.Error("failed to send digest", zap.Error(err), zap.String("date", today))
		return
	}

	d.logger.Info("digest sent",
		zap.String("date", today),
		zap.Int("tickers", len(digest.Entries)),
		zap.Int("setups", len(digest.Actionable())),
		zap.Int("failed", digest.Failed()),
		zap.Duration("duration", time.Since(start)),
	)

	// Update tracker to prevent a second digest today
	if err := d.tracker.SetLastDigestDate(today); err != nil {
		d.logger.Error("failed to update tracker", zap.Error(err))
	}
}
