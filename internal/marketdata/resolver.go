package marketdata

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/options-positioning/internal/chain"
)

const strikeTolerance = 1e-6

// Resolver resolves contract keys by fetching each underlying's chain once
// on a bounded pool of workers.
type Resolver struct {
	provider Provider
	workers  int
	logger   *zap.Logger
}

// NewResolver creates a resolver. workers below 1 is treated as 1.
func NewResolver(provider Provider, workers int, logger *zap.Logger) *Resolver {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		provider: provider,
		workers:  workers,
		logger:   logger,
	}
}

type fetchJob struct {
	symbol string
}

type fetchResult struct {
	symbol    string
	contracts []chain.Contract
	err       error
}

// ResolveContracts implements ContractResolver. A symbol whose chain cannot
// be fetched leaves its keys unresolved; only cancellation is an error.
func (r *Resolver) ResolveContracts(ctx context.Context, keys []ContractKey, asOf time.Time) ([]*chain.Contract, error) {
	out := make([]*chain.Contract, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	var symbols []string
	seen := make(map[string]struct{})
	for _, k := range keys {
		if _, ok := seen[k.Symbol]; ok {
			continue
		}
		seen[k.Symbol] = struct{}{}
		symbols = append(symbols, k.Symbol)
	}

	chains, err := r.fetchAll(ctx, symbols, asOf)
	if err != nil {
		return nil, err
	}

	for i, k := range keys {
		c, ok := match(chains[k.Symbol], k, asOf)
		if !ok {
			r.logger.Debug("contract not listed", zap.String("contract", k.String()))
			continue
		}
		out[i] = &c
	}
	return out, nil
}

func (r *Resolver) fetchAll(ctx context.Context, symbols []string, asOf time.Time) (map[string][]chain.Contract, error) {
	jobs := make(chan fetchJob, len(symbols))
	results := make(chan fetchResult, len(symbols))

	var wg sync.WaitGroup
	for i := 0; i < r.workers && i < len(symbols); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.worker(ctx, asOf, jobs, results)
		}()
	}

	go func() {
		defer close(jobs)
		for _, s := range symbols {
			select {
			case <-ctx.Done():
				return
			case jobs <- fetchJob{symbol: s}:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	chains := make(map[string][]chain.Contract, len(symbols))
	for res := range results {
		if res.err != nil {
			level := r.logger.Warn
			if errors.Is(res.err, chain.ErrNotFound) {
				level = r.logger.Info
			}
			level("chain fetch failed", zap.String("symbol", res.symbol), zap.Error(res.err))
			continue
		}
		chains[res.symbol] = res.contracts
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return chains, nil
}

func (r *Resolver) worker(ctx context.Context, asOf time.Time, jobs <-chan fetchJob, results chan<- fetchResult) {
	for job := range jobs {
		select {
		case <-ctx.Done():
			return
		default:
		}

		contracts, err := r.provider.GetChain(ctx, ChainQuery{Symbol: job.symbol, AsOf: asOf})
		res := fetchResult{symbol: job.symbol, contracts: contracts, err: err}

		select {
		case <-ctx.Done():
			return
		case results <- res:
		}
	}
}

// match finds the listing for k. Without an expiration the nearest listing
// expiring on or after asOf wins.
func match(contracts []chain.Contract, k ContractKey, asOf time.Time) (chain.Contract, bool) {
	var best chain.Contract
	found := false
	for _, c := range contracts {
		if c.Type != k.Type || math.Abs(c.Strike-k.Strike) > strikeTolerance {
			continue
		}
		if k.Expiration != "" {
			if c.ExpirationDate() == k.Expiration {
				return c, true
			}
			continue
		}
		if chain.DaysUntil(asOf, c.Expiration) < 0 {
			continue
		}
		if !found || c.Expiration.Before(best.Expiration) {
			best = c
			found = true
		}
	}
	return best, found
}
