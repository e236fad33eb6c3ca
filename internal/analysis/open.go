package analysis

import (
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	polygon "github.com/dgnsrekt/options-positioning/internal/api"
	"github.com/dgnsrekt/options-positioning/internal/chain"
	"github.com/dgnsrekt/options-positioning/internal/config"
	"github.com/dgnsrekt/options-positioning/internal/data"
	"github.com/dgnsrekt/options-positioning/internal/marketdata"
)

// SettingsFrom reads the analysis defaults out of cfg.
func SettingsFrom(cfg *config.Config) Settings {
	return Settings{
		MinOI:    cfg.Analysis.MinOI,
		Window:   chain.Window{MinDays: cfg.Analysis.MinExpiryDays, MaxDays: cfg.Analysis.MaxExpiryDays},
		Lookback: cfg.Analysis.Lookback,
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open builds a Service over the configured provider. The fixture provider
// pins the clock to the snapshot date; the polygon provider is cached for
// cfg.Analysis.CacheTTLSec. The returned Closer releases the provider.
func Open(cfg *config.Config, logger *zap.Logger) (*Service, io.Closer, error) {
	var provider marketdata.Provider
	var closer io.Closer = nopCloser{}
	var clock func() time.Time

	switch cfg.Provider {
	case config.ProviderFixture:
		date := cfg.Data.Date
		if date == "" || date == "latest" {
			latest, err := config.DetectLatestDate(cfg.Data.Directory)
			if err != nil {
				return nil, nil, fmt.Errorf("detecting latest snapshot in %s: %w", cfg.Data.Directory, err)
			}
			date = latest
		}
		loader, err := data.NewMemoryLoader(cfg.Data.Directory, date, logger)
		if err != nil {
			return nil, nil, err
		}
		provider, closer, clock = loader, loader, loader.AsOf

	case config.ProviderPolygon:
		client := polygon.NewClient(
			cfg.API.BaseURL,
			cfg.API.APIKey,
			cfg.API.RatePerSecond,
			time.Duration(cfg.API.TimeoutSec)*time.Second,
			time.Duration(cfg.API.RetryDelay)*time.Second,
			cfg.API.RetryCount,
			logger,
		)
		provider = marketdata.NewCachingProvider(client, time.Duration(cfg.Analysis.CacheTTLSec)*time.Second)

	default:
		return nil, nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}

	resolver := marketdata.NewResolver(provider, cfg.Analysis.Workers, logger)
	svc := NewService(provider, resolver, SettingsFrom(cfg), logger)
	if clock != nil {
		svc.SetClock(clock)
	}

	logger.Info("analysis service ready",
		zap.String("provider", provider.Name()),
		zap.Int("workers", cfg.Analysis.Workers))
	return svc, closer, nil
}
