package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/options-positioning/internal/config"
	"github.com/dgnsrekt/options-positioning/internal/data"
)

var (
	ErrReloadInProgress = errors.New("reload already in progress")
	ErrInvalidDate      = errors.New("invalid date")
	ErrDateNotFound     = errors.New("date not found")
)

// ReloadManager swaps the recorded snapshot date served by the fixture
// provider without restarting the server.
type ReloadManager struct {
	loader  *data.ReloadableLoader
	dataDir string
	logger  *zap.Logger

	// Reload state
	isReloading atomic.Bool
	reloadMu    sync.Mutex // prevents concurrent reloads

	// Current state
	loadedAt time.Time
	stateMu  sync.RWMutex
}

// NewReloadManager creates a new ReloadManager.
func NewReloadManager(loader *data.ReloadableLoader, dataDir string, logger *zap.Logger) *ReloadManager {
	return &ReloadManager{
		loader:   loader,
		dataDir:  dataDir,
		logger:   logger,
		loadedAt: time.Now(),
	}
}

// IsReloading returns true if a reload is currently in progress.
// WebSocket streamers should check this and skip broadcasts during reload.
func (rm *ReloadManager) IsReloading() bool {
	return rm.isReloading.Load()
}

// CurrentDate returns the currently loaded data date.
func (rm *ReloadManager) CurrentDate() string {
	return rm.loader.Date()
}

// LoadedAt returns the timestamp when the current data was loaded.
func (rm *ReloadManager) LoadedAt() time.Time {
	rm.stateMu.RLock()
	defer rm.stateMu.RUnlock()
	return rm.loadedAt
}

// ReloadResult contains the result of a successful reload operation.
type ReloadResult struct {
	PreviousDate  string
	NewDate       string
	LoadedAt      time.Time
	TickersLoaded int
}

// Reload loads newDate and swaps it in. An empty date picks the latest one
// on disk. On failure the current data stays in place.
func (rm *ReloadManager) Reload(ctx context.Context, newDate string) (*ReloadResult, error) {
	// Prevent concurrent reloads
	if !rm.reloadMu.TryLock() {
		return nil, ErrReloadInProgress
	}
	defer rm.reloadMu.Unlock()

	if newDate == "" || newDate == "latest" {
		latest, err := config.DetectLatestDate(rm.dataDir)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDateNotFound, err)
		}
		newDate = latest
	}

	previousDate := rm.CurrentDate()

	rm.logger.Info("starting hot reload",
		zap.String("previousDate", previousDate),
		zap.String("newDate", newDate),
	)

	// Validate date format
	if !config.IsDate(newDate) {
		return nil, fmt.Errorf("%w: %s (expected YYYY-MM-DD)", ErrInvalidDate, newDate)
	}

	// Check if date directory exists
	datePath := filepath.Join(rm.dataDir, newDate)
	info, err := os.Stat(datePath)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrDateNotFound, newDate)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check date directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrDateNotFound, newDate)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	newLoader, err := data.NewMemoryLoader(rm.dataDir, newDate, rm.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load data for %s: %w", newDate, err)
	}
	tickers := newLoader.Tickers()

	// Signal streamers to pause
	rm.isReloading.Store(true)

	// Swap the loader atomically
	oldLoader := rm.loader.Swap(newLoader)

	// Update current state
	rm.stateMu.Lock()
	rm.loadedAt = time.Now()
	loadedAt := rm.loadedAt
	rm.stateMu.Unlock()

	// Resume streamers
	rm.isReloading.Store(false)

	// Close old loader (release resources)
	if err := oldLoader.Close(); err != nil {
		rm.logger.Warn("failed to close old loader", zap.Error(err))
	}

	rm.logger.Info("hot reload complete",
		zap.String("previousDate", previousDate),
		zap.String("newDate", newDate),
		zap.Time("loadedAt", loadedAt),
		zap.Int("tickersLoaded", len(tickers)),
	)

	return &ReloadResult{
		PreviousDate:  previousDate,
		NewDate:       newDate,
		LoadedAt:      loadedAt,
		TickersLoaded: len(tickers),
	}, nil
}
