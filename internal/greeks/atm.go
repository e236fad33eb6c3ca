package greeks

import (
	"fmt"
	"math"
	"time"

	"github.com/dgnsrekt/options-positioning/internal/chain"
)

// ATM holds the Greeks of the call and put nearest the spot price.
type ATM struct {
	Symbol       string
	AnalysisTime time.Time
	CurrentPrice float64
	Call         chain.Contract
	Put          chain.Contract
}

// Strike is the ATM strike, taken from the call side.
func (a *ATM) Strike() float64 { return a.Call.Strike }

// DailyDecay is |call theta| + |put theta|, nil when either is unknown.
func (a *ATM) DailyDecay() *float64 {
	if a.Call.Greeks.Theta == nil || a.Put.Greeks.Theta == nil {
		return nil
	}
	v := math.Abs(*a.Call.Greeks.Theta) + math.Abs(*a.Put.Greeks.Theta)
	return &v
}

// FindATM picks the call and the put closest to spot, independently. Ties go
// to the contract seen first.
func FindATM(symbol string, spot float64, contracts []chain.Contract, asOf time.Time) (*ATM, error) {
	if asOf.IsZero() {
		asOf = time.Now()
	}

	calls, puts := chain.Split(contracts)
	call, okCall := nearest(calls, spot)
	put, okPut := nearest(puts, spot)
	if !okCall || !okPut {
		return nil, fmt.Errorf("%w: no ATM contracts for %s", chain.ErrInsufficientData, symbol)
	}

	return &ATM{
		Symbol:       symbol,
		AnalysisTime: asOf,
		CurrentPrice: spot,
		Call:         call,
		Put:          put,
	}, nil
}

func nearest(contracts []chain.Contract, spot float64) (chain.Contract, bool) {
	if len(contracts) == 0 {
		return chain.Contract{}, false
	}
	best := contracts[0]
	for _, c := range contracts[1:] {
		if math.Abs(c.Strike-spot) < math.Abs(best.Strike-spot) {
			best = c
		}
	}
	return best, true
}
