// Package analysis wires the market data collaborator to the analytics
// engines. A Service holds no per-request state and is safe for concurrent
// use.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/options-positioning/internal/chain"
	"github.com/dgnsrekt/options-positioning/internal/decision"
	"github.com/dgnsrekt/options-positioning/internal/flow"
	"github.com/dgnsrekt/options-positioning/internal/gex"
	"github.com/dgnsrekt/options-positioning/internal/greeks"
	"github.com/dgnsrekt/options-positioning/internal/marketdata"
	"github.com/dgnsrekt/options-positioning/internal/maxpain"
)

// ErrInvalidRequest marks caller input the engines cannot accept.
var ErrInvalidRequest = errors.New("invalid request")

// Settings are the defaults applied when a request leaves a knob unset.
type Settings struct {
	MinOI    int64
	Window   chain.Window
	Lookback int
}

// DefaultSettings mirrors the engine defaults.
func DefaultSettings() Settings {
	return Settings{
		MinOI:    gex.DefaultMinOI,
		Window:   chain.Window{MinDays: 0, MaxDays: 60},
		Lookback: flow.DefaultLookback,
	}
}

type Service struct {
	provider marketdata.Provider
	resolver marketdata.ContractResolver
	settings Settings
	now      func() time.Time
	logger   *zap.Logger
}

// NewService creates a Service. A nil resolver batches through the provider
// with a single worker.
func NewService(provider marketdata.Provider, resolver marketdata.ContractResolver, settings Settings, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if resolver == nil {
		resolver = marketdata.NewResolver(provider, 1, logger)
	}
	return &Service{
		provider: provider,
		resolver: resolver,
		settings: settings,
		now:      time.Now,
		logger:   logger,
	}
}

// SetClock overrides the analysis clock, e.g. to the date of recorded
// snapshots.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Service) Settings() Settings { return s.settings }

func (s *Service) ProviderName() string { return s.provider.Name() }

// Now returns the analysis clock reading.
func (s *Service) Now() time.Time { return s.now() }

// Spot returns price when positive, otherwise the provider's quote.
func (s *Service) Spot(ctx context.Context, symbol string, price *float64) (float64, error) {
	if price != nil && *price > 0 {
		return *price, nil
	}
	q, err := s.provider.GetQuote(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return q.SpotPrice, nil
}

type GEXRequest struct {
	Symbol string
	Spot   *float64
	MinOI  *int64
	Window *chain.Window
}

// GEX computes the gamma exposure profile of one underlying.
func (s *Service) GEX(ctx context.Context, req GEXRequest) (*gex.Profile, error) {
	symbol, err := normalizeSymbol(req.Symbol)
	if err != nil {
		return nil, err
	}
	minOI := s.settings.MinOI
	if req.MinOI != nil {
		minOI = *req.MinOI
	}
	if minOI < 0 {
		return nil, fmt.Errorf("%w: min_oi must be >= 0", ErrInvalidRequest)
	}
	window := s.settings.Window
	if req.Window != nil {
		window = *req.Window
	}
	if window.MinDays < 0 || window.MaxDays < window.MinDays {
		return nil, fmt.Errorf("%w: invalid expiry window %d-%d", ErrInvalidRequest, window.MinDays, window.MaxDays)
	}

	asOf := s.now()
	spot, err := s.Spot(ctx, symbol, req.Spot)
	if err != nil {
		return nil, err
	}
	contracts, err := s.provider.GetChain(ctx, marketdata.ChainQuery{Symbol: symbol, Window: &window, AsOf: asOf})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("analyzing gex",
		zap.String("symbol", symbol),
		zap.Float64("spot", spot),
		zap.Int("contracts", len(contracts)))

	return gex.Calculate(gex.Input{
		Symbol:    symbol,
		Spot:      spot,
		Contracts: contracts,
		MinOI:     minOI,
		Window:    &window,
		AsOf:      asOf,
	})
}

type MaxPainRequest struct {
	Symbol string
	Price  *float64
	// Expiration defaults to the nearest weekly expiration.
	Expiration time.Time
}

// MaxPain computes max pain for one expiration.
func (s *Service) MaxPain(ctx context.Context, req MaxPainRequest) (*maxpain.Result, error) {
	symbol, err := normalizeSymbol(req.Symbol)
	if err != nil {
		return nil, err
	}

	asOf := s.now()
	exp := req.Expiration
	if exp.IsZero() {
		exp = maxpain.NearestExpiration(asOf)
	}

	price, err := s.Spot(ctx, symbol, req.Price)
	if err != nil {
		return nil, err
	}
	contracts, err := s.provider.GetChain(ctx, marketdata.ChainQuery{Symbol: symbol, Expiration: exp, AsOf: asOf})
	if err != nil {
		return nil, err
	}

	return maxpain.Calculate(maxpain.Input{
		Symbol:       symbol,
		CurrentPrice: price,
		Expiration:   exp,
		Contracts:    contracts,
		AsOf:         asOf,
	})
}

type FlowRequest struct {
	Symbol string
	// Lookback of 0 uses the configured default.
	Lookback int
}

// Flow analyzes options flow. A chain too thin to analyze yields the
// unavailable result, not an error.
func (s *Service) Flow(ctx context.Context, req FlowRequest) (*flow.Result, error) {
	symbol, err := normalizeSymbol(req.Symbol)
	if err != nil {
		return nil, err
	}
	lookback := req.Lookback
	if lookback == 0 {
		lookback = s.settings.Lookback
	}
	if err := flow.ValidateLookback(lookback); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	asOf := s.now()
	window := s.settings.Window
	contracts, err := s.provider.GetChain(ctx, marketdata.ChainQuery{Symbol: symbol, Window: &window, AsOf: asOf})
	switch {
	case errors.Is(err, chain.ErrInsufficientData):
		return flow.Unavailable(symbol, asOf), nil
	case err != nil:
		return nil, err
	}

	return flow.Analyze(flow.Input{
		Symbol:    symbol,
		Contracts: contracts,
		Lookback:  lookback,
		AsOf:      asOf,
	}), nil
}

// ATM returns the at-the-money call and put Greeks.
func (s *Service) ATM(ctx context.Context, symbol string, price *float64) (*greeks.ATM, error) {
	symbol, err := normalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}

	asOf := s.now()
	spot, err := s.Spot(ctx, symbol, price)
	if err != nil {
		return nil, err
	}
	window := s.settings.Window
	contracts, err := s.provider.GetChain(ctx, marketdata.ChainQuery{Symbol: symbol, Window: &window, AsOf: asOf})
	if err != nil {
		return nil, err
	}

	return greeks.FindATM(symbol, spot, contracts, asOf)
}

// Portfolio resolves every position in one batch and aggregates their
// Greeks. Positions with an unknown type or an unlisted contract are skipped.
func (s *Service) Portfolio(ctx context.Context, positions []greeks.Position) (*greeks.Portfolio, error) {
	if len(positions) == 0 {
		return nil, fmt.Errorf("%w: at least one position is required", ErrInvalidRequest)
	}

	asOf := s.now()
	normalized := make([]greeks.Position, len(positions))
	keys := make([]marketdata.ContractKey, 0, len(positions))
	index := make([]int, 0, len(positions))
	for i, p := range positions {
		n, ok := p.Normalized()
		normalized[i] = n
		if !ok || n.Symbol == "" || n.Strike <= 0 {
			continue
		}
		keys = append(keys, marketdata.ContractKey{
			Symbol:     n.Symbol,
			Strike:     n.Strike,
			Type:       n.Type,
			Expiration: n.Expiration,
		})
		index = append(index, i)
	}

	resolved, err := s.resolver.ResolveContracts(ctx, keys, asOf)
	if err != nil {
		return nil, err
	}

	contracts := make([]*chain.Contract, len(positions))
	for j, i := range index {
		contracts[i] = resolved[j]
	}

	return greeks.Aggregate(normalized, contracts, asOf, s.logger), nil
}

// Report bundles a decision with the readings behind it. A reading is nil
// when its engine could not run.
type Report struct {
	Decision *decision.Decision
	GEX      *gex.Profile
	MaxPain  *maxpain.Result
	Flow     *flow.Result
}

// Decide runs GEX, Max Pain and Flow over one chain fetch and fuses them.
func (s *Service) Decide(ctx context.Context, symbol string, price *float64) (*Report, error) {
	symbol, err := normalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}

	asOf := s.now()
	spot, err := s.Spot(ctx, symbol, price)
	if err != nil {
		return nil, err
	}
	window := s.settings.Window
	contracts, err := s.provider.GetChain(ctx, marketdata.ChainQuery{Symbol: symbol, Window: &window, AsOf: asOf})
	if err != nil {
		return nil, err
	}

	report := &Report{}

	profile, err := gex.Calculate(gex.Input{
		Symbol:    symbol,
		Spot:      spot,
		Contracts: contracts,
		MinOI:     s.settings.MinOI,
		Window:    &window,
		AsOf:      asOf,
	})
	if err != nil {
		s.logger.Info("gex reading unavailable", zap.String("symbol", symbol), zap.Error(err))
	} else {
		report.GEX = profile
	}

	mp, err := maxpain.Calculate(maxpain.Input{
		Symbol:       symbol,
		CurrentPrice: spot,
		Expiration:   maxpain.NearestExpiration(asOf),
		Contracts:    contracts,
		AsOf:         asOf,
	})
	if err != nil {
		s.logger.Info("max pain reading unavailable", zap.String("symbol", symbol), zap.Error(err))
	} else {
		report.MaxPain = mp
	}

	report.Flow = flow.Analyze(flow.Input{
		Symbol:    symbol,
		Contracts: contracts,
		Lookback:  s.settings.Lookback,
		AsOf:      asOf,
	})

	report.Decision = decision.Decide(decision.Input{
		Symbol:  symbol,
		Price:   spot,
		GEX:     report.GEX,
		MaxPain: report.MaxPain,
		Flow:    report.Flow,
		AsOf:    asOf,
	})
	return report, nil
}

func normalizeSymbol(symbol string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if s == "" {
		return "", fmt.Errorf("%w: symbol is required", ErrInvalidRequest)
	}
	return s, nil
}
