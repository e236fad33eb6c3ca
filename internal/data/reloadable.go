package data

import (
	"context"
	"sync"
	"time"

	"github.com/dgnsrekt/options-positioning/internal/chain"
	"github.com/dgnsrekt/options-positioning/internal/marketdata"
)

// ReloadableLoader wraps a DataLoader and allows atomic replacement.
// All DataLoader methods delegate to the current underlying loader.
type ReloadableLoader struct {
	mu      sync.RWMutex
	current DataLoader
}

// NewReloadableLoader creates a new ReloadableLoader with the given initial loader.
func NewReloadableLoader(initial DataLoader) *ReloadableLoader {
	return &ReloadableLoader{
		current: initial,
	}
}

// Swap atomically replaces the underlying loader and returns the old one.
// Caller is responsible for closing the old loader after swap.
func (r *ReloadableLoader) Swap(newLoader DataLoader) DataLoader {
	r.mu.Lock()
	defer r.mu.Unlock()
	old := r.current
	r.current = newLoader
	return old
}

func (r *ReloadableLoader) Name() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current.Name()
}

func (r *ReloadableLoader) Date() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current.Date()
}

func (r *ReloadableLoader) AsOf() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current.AsOf()
}

func (r *ReloadableLoader) GetQuote(ctx context.Context, symbol string) (chain.Quote, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current.GetQuote(ctx, symbol)
}

func (r *ReloadableLoader) GetChain(ctx context.Context, q marketdata.ChainQuery) ([]chain.Contract, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current.GetChain(ctx, q)
}

func (r *ReloadableLoader) Tickers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current.Tickers()
}

// Close releases any resources held by the current loader.
func (r *ReloadableLoader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current.Close()
}

// Compile-time interface verification
var _ DataLoader = (*ReloadableLoader)(nil)
