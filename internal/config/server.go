package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"
)

type ServerConfig struct {
	Port      string
	Provider  string // "polygon" or "fixture"
	LogFormat string // "console" or "json"
	// Polygon provider
	PolygonAPIKey  string
	PolygonBaseURL string
	PolygonRate    int
	CacheTTL       time.Duration
	Workers        int
	// Fixture provider
	DataDir  string
	DataDate string
	// WebSocket configuration
	WSEnabled        bool
	WSStreamInterval time.Duration
}

func LoadServerConfig() (*ServerConfig, error) {
	provider := getEnvOrDefault("PROVIDER", ProviderPolygon)
	dataDir := getEnvOrDefault("DATA_DIR", "./data")
	dataDate := getEnvOrDefault("DATA_DATE", "")

	// Auto-detect latest date if DATA_DATE is empty or "latest"
	if provider == ProviderFixture && (dataDate == "" || dataDate == "latest") {
		detected, err := DetectLatestDate(dataDir)
		if err != nil {
			return nil, fmt.Errorf("failed to detect latest date in %s: %w", dataDir, err)
		}
		dataDate = detected
	}

	// Parse WebSocket stream interval
	wsInterval, err := time.ParseDuration(getEnvOrDefault("WS_STREAM_INTERVAL", "30s"))
	if err != nil || wsInterval <= 0 {
		wsInterval = 30 * time.Second // Default on parse error
	}

	cacheTTL, err := time.ParseDuration(getEnvOrDefault("CACHE_TTL", "60s"))
	if err != nil {
		return nil, fmt.Errorf("invalid CACHE_TTL: %w", err)
	}

	cfg := &ServerConfig{
		Port:             getEnvOrDefault("PORT", "8080"),
		Provider:         provider,
		LogFormat:        getEnvOrDefault("LOG_FORMAT", "console"),
		PolygonAPIKey:    getEnvOrDefault("POLYGON_API_KEY", ""),
		PolygonBaseURL:   getEnvOrDefault("POLYGON_BASE_URL", "https://api.polygon.io"),
		PolygonRate:      getEnvIntOrDefault("POLYGON_RATE_PER_SECOND", 5),
		CacheTTL:         cacheTTL,
		Workers:          getEnvIntOrDefault("RESOLVER_WORKERS", 4),
		DataDir:          dataDir,
		DataDate:         dataDate,
		WSEnabled:        getEnvOrDefault("WS_ENABLED", "true") == "true",
		WSStreamInterval: wsInterval,
	}

	// Validate
	switch cfg.Provider {
	case ProviderPolygon:
		if cfg.PolygonAPIKey == "" {
			return nil, fmt.Errorf("POLYGON_API_KEY is required when PROVIDER=%s", ProviderPolygon)
		}
	case ProviderFixture:
	default:
		return nil, fmt.Errorf("invalid PROVIDER: %s (must be '%s' or '%s')", cfg.Provider, ProviderPolygon, ProviderFixture)
	}
	if cfg.LogFormat != "console" && cfg.LogFormat != "json" {
		return nil, fmt.Errorf("invalid LOG_FORMAT: %s (must be 'console' or 'json')", cfg.LogFormat)
	}
	if cfg.Workers < 1 {
		return nil, fmt.Errorf("invalid RESOLVER_WORKERS: %d (must be >= 1)", cfg.Workers)
	}

	return cfg, nil
}

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// IsDate reports whether s looks like a YYYY-MM-DD folder name.
func IsDate(s string) bool {
	return datePattern.MatchString(s)
}

// DetectLatestDate scans the data directory for date folders and returns the most recent one
func DetectLatestDate(dataDir string) (string, error) {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return "", fmt.Errorf("reading data directory: %w", err)
	}

	var dates []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if IsDate(name) {
			// Verify it's not empty (has at least one file/folder inside)
			subPath := filepath.Join(dataDir, name)
			subEntries, err := os.ReadDir(subPath)
			if err == nil && len(subEntries) > 0 {
				dates = append(dates, name)
			}
		}
	}

	if len(dates) == 0 {
		return "", fmt.Errorf("no date folders found in %s", dataDir)
	}

	// Sort descending (newest first) - YYYY-MM-DD format sorts lexicographically
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))

	return dates[0], nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
