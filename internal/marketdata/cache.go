package marketdata

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dgnsrekt/options-positioning/internal/chain"
)

type cacheEntry[T any] struct {
	value   T
	expires time.Time
}

// CachingProvider wraps a Provider with a TTL cache. Concurrent misses for
// the same key share one upstream call.
type CachingProvider struct {
	inner Provider
	ttl   time.Duration
	now   func() time.Time

	mu     sync.Mutex
	chains map[string]cacheEntry[[]chain.Contract]
	quotes map[string]cacheEntry[chain.Quote]
	group  singleflight.Group
}

// NewCachingProvider creates a caching wrapper. A zero ttl disables caching.
func NewCachingProvider(inner Provider, ttl time.Duration) *CachingProvider {
	return &CachingProvider{
		inner:  inner,
		ttl:    ttl,
		now:    time.Now,
		chains: make(map[string]cacheEntry[[]chain.Contract]),
		quotes: make(map[string]cacheEntry[chain.Quote]),
	}
}

func (p *CachingProvider) Name() string { return p.inner.Name() }

func (p *CachingProvider) GetQuote(ctx context.Context, symbol string) (chain.Quote, error) {
	if p.ttl <= 0 {
		return p.inner.GetQuote(ctx, symbol)
	}
	key := strings.ToUpper(symbol)

	p.mu.Lock()
	if e, ok := p.quotes[key]; ok && p.now().Before(e.expires) {
		p.mu.Unlock()
		return e.value, nil
	}
	p.mu.Unlock()

	v, err, _ := p.group.Do("quote|"+key, func() (any, error) {
		q, err := p.inner.GetQuote(ctx, symbol)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.quotes[key] = cacheEntry[chain.Quote]{value: q, expires: p.now().Add(p.ttl)}
		p.mu.Unlock()
		return q, nil
	})
	if err != nil {
		return chain.Quote{}, err
	}
	return v.(chain.Quote), nil
}

func (p *CachingProvider) GetChain(ctx context.Context, q ChainQuery) ([]chain.Contract, error) {
	if p.ttl <= 0 {
		return p.inner.GetChain(ctx, q)
	}
	key := q.Key()

	p.mu.Lock()
	if e, ok := p.chains[key]; ok && p.now().Before(e.expires) {
		p.mu.Unlock()
		return e.value, nil
	}
	p.mu.Unlock()

	v, err, _ := p.group.Do("chain|"+key, func() (any, error) {
		contracts, err := p.inner.GetChain(ctx, q)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.chains[key] = cacheEntry[[]chain.Contract]{value: contracts, expires: p.now().Add(p.ttl)}
		p.mu.Unlock()
		return contracts, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]chain.Contract), nil
}

// Purge drops every cached entry and returns how many were removed.
func (p *CachingProvider) Purge() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.chains) + len(p.quotes)
	p.chains = make(map[string]cacheEntry[[]chain.Contract])
	p.quotes = make(map[string]cacheEntry[chain.Quote])
	return n
}
