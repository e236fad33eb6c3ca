package data

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/options-positioning/internal/chain"
	"github.com/dgnsrekt/options-positioning/internal/marketdata"
)

// marketClose is the time of day fixtures are evaluated at.
const marketClose = 16 * time.Hour

type snapshot struct {
	quote     *chain.Quote
	contracts []chain.Contract
}

// MemoryLoader holds every snapshot of a date directory in memory.
type MemoryLoader struct {
	date   string
	asOf   time.Time
	data   map[string]*snapshot // key: ticker
	logger *zap.Logger
}

var _ DataLoader = (*MemoryLoader)(nil)

// NewMemoryLoader loads {dataDir}/{date}/{TICKER}/chain.jsonl and the optional
// quote.json next to it.
func NewMemoryLoader(dataDir, date string, logger *zap.Logger) (*MemoryLoader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	day, err := time.ParseInLocation(chain.DateLayout, date, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", date, err)
	}

	loader := &MemoryLoader{
		date:   date,
		asOf:   day.Add(marketClose),
		data:   make(map[string]*snapshot),
		logger: logger,
	}

	dateDir := filepath.Join(dataDir, date)
	entries, err := os.ReadDir(dateDir)
	if err != nil {
		return nil, fmt.Errorf("reading data directory: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		ticker := strings.ToUpper(entry.Name())
		dir := filepath.Join(dateDir, entry.Name())

		contracts, skipped, err := loader.loadChain(filepath.Join(dir, chainFile))
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				logger.Warn("failed to load chain", zap.String("ticker", ticker), zap.Error(err))
			}
			continue
		}

		snap := &snapshot{contracts: contracts}
		quote, err := loadQuote(filepath.Join(dir, quoteFile))
		switch {
		case err == nil:
			snap.quote = quote
		case !errors.Is(err, os.ErrNotExist):
			logger.Warn("failed to load quote", zap.String("ticker", ticker), zap.Error(err))
		}

		loader.data[ticker] = snap
		logger.Info("loaded data",
			zap.String("ticker", ticker),
			zap.Int("contracts", len(contracts)),
			zap.Int("skipped", skipped),
			zap.Bool("quote", snap.quote != nil),
		)
	}

	if len(loader.data) == 0 {
		return nil, fmt.Errorf("no %s files found in %s", chainFile, dateDir)
	}

	return loader, nil
}

func (m *MemoryLoader) loadChain(path string) ([]chain.Contract, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer file.Close()

	var raws []chain.RawContract
	scanner := bufio.NewScanner(file)

	// Increase buffer size for large lines
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var raw chain.RawContract
		if err := json.Unmarshal(line, &raw); err != nil {
			return nil, 0, fmt.Errorf("line %d: %w", lineNum, err)
		}
		raws = append(raws, raw)
	}

	if err := scanner.Err(); err != nil {
		return nil, 0, err
	}

	contracts, skipped := chain.NormalizeAll(raws, m.logger)
	return contracts, skipped, nil
}

func loadQuote(path string) (*chain.Quote, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rec QuoteRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, err
	}
	if rec.SpotPrice <= 0 {
		return nil, fmt.Errorf("non-positive spot price %v", rec.SpotPrice)
	}
	return &chain.Quote{Symbol: strings.ToUpper(rec.Symbol), SpotPrice: rec.SpotPrice}, nil
}

func (m *MemoryLoader) Name() string { return "fixture" }

func (m *MemoryLoader) Date() string { return m.date }

func (m *MemoryLoader) AsOf() time.Time { return m.asOf }

func (m *MemoryLoader) GetQuote(ctx context.Context, symbol string) (chain.Quote, error) {
	snap, ok := m.data[strings.ToUpper(symbol)]
	if !ok || snap.quote == nil {
		return chain.Quote{}, fmt.Errorf("%w: no quote for %s on %s", chain.ErrNotFound, symbol, m.date)
	}
	q := *snap.quote
	if q.Symbol == "" {
		q.Symbol = strings.ToUpper(symbol)
	}
	return q, nil
}

// GetChain returns the recorded chain filtered by the query.
func (m *MemoryLoader) GetChain(ctx context.Context, q marketdata.ChainQuery) ([]chain.Contract, error) {
	symbol := strings.ToUpper(q.Symbol)
	snap, ok := m.data[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: no chain for %s on %s", chain.ErrNotFound, symbol, m.date)
	}
	if q.AsOf.IsZero() {
		q.AsOf = m.asOf
	}

	contracts := q.Filter(snap.contracts)
	if len(contracts) == 0 {
		return nil, fmt.Errorf("%w: no usable contracts for %s", chain.ErrInsufficientData, symbol)
	}
	return contracts, nil
}

func (m *MemoryLoader) Tickers() []string {
	tickers := make([]string, 0, len(m.data))
	for k := range m.data {
		tickers = append(tickers, k)
	}
	sort.Strings(tickers)
	return tickers
}

func (m *MemoryLoader) Close() error {
	m.data = nil
	return nil
}
