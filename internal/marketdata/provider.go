// Package marketdata defines the market data collaborator the analytics
// engines consume, plus decorators that batch and cache its calls.
package marketdata

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dgnsrekt/options-positioning/internal/chain"
)

// Provider supplies option chains and spot prices. Implementations translate
// their own failures to chain.ErrNotFound or chain.ErrInsufficientData.
type Provider interface {
	Name() string
	GetQuote(ctx context.Context, symbol string) (chain.Quote, error)
	GetChain(ctx context.Context, q ChainQuery) ([]chain.Contract, error)
}

// ChainQuery selects the contracts of one underlying.
type ChainQuery struct {
	Symbol string
	// Expiration pins a single date and takes precedence over Window.
	Expiration time.Time
	// Window bounds expirations relative to AsOf; nil means no bound.
	Window *chain.Window
	AsOf   time.Time
}

// Key identifies the query for caching.
func (q ChainQuery) Key() string {
	var b strings.Builder
	b.WriteString(strings.ToUpper(q.Symbol))
	switch {
	case !q.Expiration.IsZero():
		b.WriteString("|exp=" + q.Expiration.Format(chain.DateLayout))
	case q.Window != nil:
		fmt.Fprintf(&b, "|%s|%d-%d", q.asOf().Format(chain.DateLayout), q.Window.MinDays, q.Window.MaxDays)
	}
	return b.String()
}

// Matches reports whether c satisfies the query's expiration filter.
func (q ChainQuery) Matches(c chain.Contract) bool {
	switch {
	case !q.Expiration.IsZero():
		return c.ExpirationDate() == q.Expiration.Format(chain.DateLayout)
	case q.Window != nil:
		return q.Window.Contains(q.asOf(), c.Expiration)
	default:
		return true
	}
}

// Filter returns the contracts that match the query.
func (q ChainQuery) Filter(contracts []chain.Contract) []chain.Contract {
	out := make([]chain.Contract, 0, len(contracts))
	for _, c := range contracts {
		if q.Matches(c) {
			out = append(out, c)
		}
	}
	return out
}

func (q ChainQuery) asOf() time.Time {
	if q.AsOf.IsZero() {
		return time.Now()
	}
	return q.AsOf
}

// ContractKey identifies one listed contract for batch resolution.
type ContractKey struct {
	Symbol string
	Strike float64
	Type   chain.ContractType
	// Expiration is YYYY-MM-DD; empty selects the nearest unexpired listing.
	Expiration string
}

func (k ContractKey) String() string {
	s := fmt.Sprintf("%s %.2f %s", k.Symbol, k.Strike, k.Type)
	if k.Expiration != "" {
		s += " " + k.Expiration
	}
	return s
}

// ContractResolver resolves many contract keys in one call. The result is
// index aligned with keys; nil marks a key that could not be resolved.
type ContractResolver interface {
	ResolveContracts(ctx context.Context, keys []ContractKey, asOf time.Time) ([]*chain.Contract, error)
}
