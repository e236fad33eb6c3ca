package main

import (
	"fmt"
	"os"
	"time"

	"github.com/scmhub/calendar"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/dgnsrekt/options-positioning/internal/config"
	"github.com/dgnsrekt/options-positioning/internal/greeks"
)

// positionsFile is the YAML layout accepted by greeks --positions.
type positionsFile struct {
	Positions []greeks.Position `yaml:"positions"`
}

// loadPositions reads a positions file. Unknown contract types are kept and
// reported as skipped by the aggregator.
func loadPositions(path string) ([]greeks.Position, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading positions: %w", err)
	}

	var f positionsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parsing positions %s: %w", path, err)
	}
	if len(f.Positions) == 0 {
		return nil, fmt.Errorf("no positions in %s", path)
	}
	return f.Positions, nil
}

// resolveTickers picks the command line tickers over the configured list.
func resolveTickers(override []string) ([]string, error) {
	tickers := cfg.Tickers
	if len(override) > 0 {
		tickers = override
	}
	if len(tickers) == 0 {
		tickers = config.DefaultTickers
	}
	return config.ValidateTickers(tickers)
}

func newYork(logger *zap.Logger) *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		logger.Warn("failed to load America/New_York timezone, using UTC", zap.Error(err))
		return time.UTC
	}
	return loc
}

// isMarketDay reports whether date (YYYY-MM-DD) is an NYSE business day.
func isMarketDay(date string, logger *zap.Logger) (bool, error) {
	// Parse as noon in NYC timezone to ensure correct date matching
	t, err := time.ParseInLocation("2006-01-02 15:04:05", date+" 12:00:00", newYork(logger))
	if err != nil {
		return false, fmt.Errorf("invalid date format (use YYYY-MM-DD): %w", err)
	}
	return calendar.XNYS(t.Year()-1, t.Year()+1).IsBusinessDay(t), nil
}
