package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dgnsrekt/options-positioning/internal/analysis"
	polygon "github.com/dgnsrekt/options-positioning/internal/api"
	"github.com/dgnsrekt/options-positioning/internal/chain"
	"github.com/dgnsrekt/options-positioning/internal/config"
	"github.com/dgnsrekt/options-positioning/internal/data"
	"github.com/dgnsrekt/options-positioning/internal/download"
	"github.com/dgnsrekt/options-positioning/internal/notify"
)

// DigestTracker tracks the last date a digest was sent
type DigestTracker struct {
	stateFile string
}

// NewDigestTracker creates a new tracker with the given state file path
func NewDigestTracker(stateFile string) *DigestTracker {
	return &DigestTracker{stateFile: stateFile}
}

// GetLastDigestDate reads the last digest date from the state file
func (t *DigestTracker) GetLastDigestDate() string {
	data, err := os.ReadFile(t.stateFile)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// SetLastDigestDate writes the date to the state file
func (t *DigestTracker) SetLastDigestDate(date string) error {
	// Ensure directory exists
	dir := filepath.Dir(t.stateFile)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return err
	}
	return os.WriteFile(t.stateFile, []byte(date+"\n"), 0600)
}

// AlreadySent checks if a digest was already sent for the given date
func (t *DigestTracker) AlreadySent(date string) bool {
	return t.GetLastDigestDate() == date
}

// Analyzer runs the per-ticker decision. *analysis.Service satisfies it.
type Analyzer interface {
	Decide(ctx context.Context, symbol string, price *float64) (*analysis.Report, error)
}

// executeDigest analyzes every ticker with at most workers in flight. Entries
// keep the ticker order; a failed ticker is recorded on its entry.
func executeDigest(ctx context.Context, analyzer Analyzer, tickers []string, workers int, date string, logger *zap.Logger) *notify.Digest {
	start := time.Now()
	entries := make([]notify.Entry, len(tickers))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for i, ticker := range tickers {
		g.Go(func() error {
			report, err := analyzer.Decide(ctx, ticker, nil)
			if err != nil {
				logger.Warn("analysis failed", zap.String("symbol", ticker), zap.Error(err))
			} else {
				logger.Debug("analysis complete",
					zap.String("symbol", ticker),
					zap.String("setup", string(report.Decision.Setup)),
					zap.String("confidence", string(report.Decision.Confidence)))
			}
			entries[i] = notify.Entry{Symbol: ticker, Report: report, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return &notify.Digest{Date: date, Entries: entries, Duration: time.Since(start)}
}

// recordSnapshots stores the day's live chains so the fixture provider can
// replay them. Only the polygon provider has anything to record.
func recordSnapshots(ctx context.Context, cfg *config.Config, tickers []string, date string, logger *zap.Logger) {
	if cfg.Provider != config.ProviderPolygon {
		return
	}

	client := polygon.NewClient(
		cfg.API.BaseURL,
		cfg.API.APIKey,
		cfg.API.RatePerSecond,
		time.Duration(cfg.API.TimeoutSec)*time.Second,
		time.Duration(cfg.API.RetryDelay)*time.Second,
		cfg.API.RetryCount,
		logger,
	)
	window := &chain.Window{MinDays: cfg.Analysis.MinExpiryDays, MaxDays: cfg.Analysis.MaxExpiryDays}
	mgr := download.NewManager(client, data.NewWriter(cfg.Data.Directory), window, cfg.Analysis.Workers, logger)

	result, err := mgr.Execute(ctx, download.Tasks([]string{date}, tickers))
	if err != nil {
		logger.Warn("snapshot recording interrupted", zap.Error(err))
		return
	}
	logger.Info("snapshots recorded",
		zap.Int("total", result.Total),
		zap.Int("success", result.Success),
		zap.Int("skipped", result.Skipped),
		zap.Int("not_found", result.NotFound),
		zap.Int("failed", result.Failed),
	)
	for _, e := range result.Errors {
		logger.Warn("snapshot error", zap.String("error", e))
	}
}
