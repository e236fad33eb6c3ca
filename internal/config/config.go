package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/dgnsrekt/options-positioning/internal/flow"
)

const (
	ProviderPolygon = "polygon"
	ProviderFixture = "fixture"
)

// DefaultTickers is the watchlist used when none is configured.
var DefaultTickers = []string{"SPY", "QQQ", "IWM", "AAPL", "NVDA", "TSLA"}

type Config struct {
	Provider string         `mapstructure:"provider"`
	API      APIConfig      `mapstructure:"api"`
	Data     DataConfig     `mapstructure:"data"`
	Analysis AnalysisConfig `mapstructure:"analysis"`
	Tickers  []string       `mapstructure:"tickers"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type APIConfig struct {
	BaseURL       string `mapstructure:"base_url"`
	APIKey        string `mapstructure:"api_key"`
	TimeoutSec    int    `mapstructure:"timeout_sec"`
	RetryCount    int    `mapstructure:"retry_count"`
	RetryDelay    int    `mapstructure:"retry_delay_sec"`
	RatePerSecond int    `mapstructure:"rate_per_second"`
}

// DataConfig locates recorded snapshots for the fixture provider and the
// snapshot command.
type DataConfig struct {
	Directory string `mapstructure:"directory"`
	Date      string `mapstructure:"date"`
}

type AnalysisConfig struct {
	MinOI         int64 `mapstructure:"min_oi"`
	MinExpiryDays int   `mapstructure:"min_expiry_days"`
	MaxExpiryDays int   `mapstructure:"max_expiry_days"`
	Lookback      int   `mapstructure:"lookback"`
	Workers       int   `mapstructure:"workers"`
	CacheTTLSec   int   `mapstructure:"cache_ttl_sec"`
}

type LoggingConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Directory  string `mapstructure:"directory"`
	Level      string `mapstructure:"level"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("provider", ProviderPolygon)
	v.SetDefault("api.base_url", "https://api.polygon.io")
	v.SetDefault("api.timeout_sec", 30)
	v.SetDefault("api.retry_count", 3)
	v.SetDefault("api.retry_delay_sec", 1)
	v.SetDefault("api.rate_per_second", 5)
	v.SetDefault("data.directory", "data")
	v.SetDefault("data.date", "latest")
	v.SetDefault("analysis.min_oi", 100)
	v.SetDefault("analysis.min_expiry_days", 0)
	v.SetDefault("analysis.max_expiry_days", 60)
	v.SetDefault("analysis.lookback", flow.DefaultLookback)
	v.SetDefault("analysis.workers", 4)
	v.SetDefault("analysis.cache_ttl_sec", 60)
	v.SetDefault("tickers", DefaultTickers)
	v.SetDefault("logging.enabled", false)
	v.SetDefault("logging.directory", "logs")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 28)

	// Environment variable support
	v.SetEnvPrefix("POSITIONING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Explicitly bind nested keys to env vars
	_ = v.BindEnv("api.api_key", "POSITIONING_API_KEY", "POLYGON_API_KEY")

	// Load config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("default")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Validate checks every setting and reports all problems at once. Tickers
// are upper-cased in place.
func (c *Config) Validate() error {
	errs := &ValidationErrors{}

	switch c.Provider {
	case ProviderPolygon:
		if c.API.APIKey == "" {
			errs.add("api_key is required for the polygon provider (set POLYGON_API_KEY env var)")
		}
		if c.API.RatePerSecond < 1 {
			errs.add("rate_per_second must be >= 1")
		}
	case ProviderFixture:
		if c.Data.Directory == "" {
			errs.add("data.directory is required for the fixture provider")
		}
	default:
		errs.add(fmt.Sprintf("invalid provider: %s (must be '%s' or '%s')", c.Provider, ProviderPolygon, ProviderFixture))
	}

	if c.Analysis.Workers < 1 {
		errs.add("workers must be >= 1")
	}
	if c.Analysis.MinOI < 0 {
		errs.add("min_oi must be >= 0")
	}
	if c.Analysis.MinExpiryDays < 0 || c.Analysis.MaxExpiryDays < c.Analysis.MinExpiryDays {
		errs.add(fmt.Sprintf("invalid expiry window %d-%d days", c.Analysis.MinExpiryDays, c.Analysis.MaxExpiryDays))
	}
	if err := flow.ValidateLookback(c.Analysis.Lookback); err != nil {
		errs.add(err.Error())
	}

	c.Tickers = validateTickers(errs, c.Tickers)

	if errs.HasErrors() {
		return errs
	}
	return nil
}
