package maxpain

import (
	"fmt"
	"sort"
	"time"

	"github.com/dgnsrekt/options-positioning/internal/chain"
)

// Bias is the expected drift toward the max pain strike.
type Bias string

const (
	BiasBullish Bias = "BULLISH"
	BiasBearish Bias = "BEARISH"
	BiasNeutral Bias = "NEUTRAL"
)

// Signal is the option side favored by the bias.
type Signal string

const (
	SignalCalls Signal = "CALLS"
	SignalPuts  Signal = "PUTS"
	SignalWait  Signal = "WAIT"
)

// Pain is the writer loss avoided if price settled at one strike.
type Pain struct {
	CallPain  float64 `json:"call_pain"`
	PutPain   float64 `json:"put_pain"`
	TotalPain float64 `json:"total_pain"`
}

// StrikePain pairs a strike with its pain for ordered iteration.
type StrikePain struct {
	Strike float64
	Pain
}

// Input is one Max Pain computation request.
type Input struct {
	Symbol       string
	CurrentPrice float64
	// Expiration restricts the chain; zero uses every contract given.
	Expiration time.Time
	Contracts  []chain.Contract
	AsOf       time.Time
}

// Result is the Max Pain analysis of one expiration.
type Result struct {
	Symbol            string
	AnalysisTime      time.Time
	Expiration        time.Time
	CurrentPrice      float64
	MaxPainStrike     float64
	DistanceToMaxPain float64
	DistancePct       float64
	MaxPainValue      float64
	Bias              Bias
	Signal            Signal
	TotalCallOI       int64
	TotalPutOI        int64
	// PutCallOIRatio is nil when there is no call open interest.
	PutCallOIRatio *float64
	PainByStrike   map[float64]Pain
	// Strikes lists PainByStrike in ascending strike order.
	Strikes []StrikePain
}

// StrikesAnalyzed is the number of distinct strikes evaluated.
func (r *Result) StrikesAnalyzed() int { return len(r.Strikes) }

// Calculate finds the strike that maximizes aggregate writer pain.
//
// Every distinct strike in the chain is a candidate. Ties keep the lowest
// strike. Returns chain.ErrInsufficientData when either side is empty.
func Calculate(in Input) (*Result, error) {
	asOf := in.AsOf
	if asOf.IsZero() {
		asOf = time.Now()
	}

	contracts := in.Contracts
	if !in.Expiration.IsZero() {
		contracts = forExpiration(contracts, in.Expiration)
	}

	calls, puts := chain.Split(contracts)
	if len(calls) == 0 || len(puts) == 0 {
		return nil, fmt.Errorf("%w: incomplete options chain for %s", chain.ErrInsufficientData, in.Symbol)
	}

	r := &Result{
		Symbol:       in.Symbol,
		AnalysisTime: asOf,
		Expiration:   in.Expiration,
		CurrentPrice: in.CurrentPrice,
		PainByStrike: make(map[float64]Pain),
	}

	for i, strike := range distinctStrikes(contracts) {
		p := painAt(strike, calls, puts)
		r.PainByStrike[strike] = p
		r.Strikes = append(r.Strikes, StrikePain{Strike: strike, Pain: p})
		if i == 0 || p.TotalPain > r.MaxPainValue {
			r.MaxPainStrike = strike
			r.MaxPainValue = p.TotalPain
		}
	}

	r.DistanceToMaxPain = in.CurrentPrice - r.MaxPainStrike
	if in.CurrentPrice != 0 {
		r.DistancePct = r.DistanceToMaxPain / in.CurrentPrice * 100
	}
	r.Bias, r.Signal = classify(r.DistanceToMaxPain)

	for _, c := range calls {
		r.TotalCallOI += c.OpenInterest
	}
	for _, p := range puts {
		r.TotalPutOI += p.OpenInterest
	}
	if r.TotalCallOI > 0 {
		ratio := float64(r.TotalPutOI) / float64(r.TotalCallOI)
		r.PutCallOIRatio = &ratio
	}

	return r, nil
}

func painAt(strike float64, calls, puts []chain.Contract) Pain {
	var p Pain
	for _, c := range calls {
		if c.Strike < strike {
			p.CallPain += (strike - c.Strike) * float64(c.OpenInterest) * chain.SharesPerContract
		}
	}
	for _, c := range puts {
		if c.Strike > strike {
			p.PutPain += (c.Strike - strike) * float64(c.OpenInterest) * chain.SharesPerContract
		}
	}
	p.TotalPain = p.CallPain + p.PutPain
	return p
}

func classify(distance float64) (Bias, Signal) {
	switch {
	case distance > 0:
		return BiasBearish, SignalPuts
	case distance < 0:
		return BiasBullish, SignalCalls
	default:
		return BiasNeutral, SignalWait
	}
}

func distinctStrikes(contracts []chain.Contract) []float64 {
	seen := make(map[float64]struct{})
	var strikes []float64
	for _, c := range contracts {
		if _, ok := seen[c.Strike]; ok {
			continue
		}
		seen[c.Strike] = struct{}{}
		strikes = append(strikes, c.Strike)
	}
	sort.Float64s(strikes)
	return strikes
}

func forExpiration(contracts []chain.Contract, exp time.Time) []chain.Contract {
	y, m, d := exp.Date()
	var out []chain.Contract
	for _, c := range contracts {
		cy, cm, cd := c.Expiration.Date()
		if cy == y && cm == m && cd == d {
			out = append(out, c)
		}
	}
	return out
}
