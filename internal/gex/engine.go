package gex

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/dgnsrekt/options-positioning/internal/chain"
)

// DefaultMinOI is the open interest a strike needs on at least one side.
const DefaultMinOI = 100

// regimeThreshold is expressed in millions of dollars, the unit of NetGEX.
const regimeThreshold = 1000

// wallCount is the number of resistance and support strikes reported.
const wallCount = 3

// Regime classifies aggregate dealer gamma.
type Regime string

const (
	RegimePositive Regime = "POSITIVE"
	RegimeNegative Regime = "NEGATIVE"
	RegimeNeutral  Regime = "NEUTRAL"
)

// Label returns the human readable regime name.
func (r Regime) Label() string {
	switch r {
	case RegimePositive:
		return "Positive Gamma"
	case RegimeNegative:
		return "Negative Gamma"
	default:
		return "Neutral Gamma"
	}
}

// Input is one GEX computation request.
type Input struct {
	Symbol    string
	Spot      float64
	Contracts []chain.Contract
	MinOI     int64
	// Window filters by expiration; nil keeps every expiration.
	Window *chain.Window
	// AsOf anchors the window and the profile timestamp; zero means now.
	AsOf time.Time
}

// Level is the gamma exposure of one (strike, expiration) pair, in $M.
type Level struct {
	Strike     float64   `json:"strike"`
	Expiration time.Time `json:"expiration"`
	CallOI     int64     `json:"call_oi"`
	PutOI      int64     `json:"put_oi"`
	CallGamma  float64   `json:"call_gamma"`
	PutGamma   float64   `json:"put_gamma"`
	CallGEX    float64   `json:"call_gex"`
	PutGEX     float64   `json:"put_gex"`
	NetGEX     float64   `json:"net_gex"`
}

// Profile is the complete GEX analysis of one underlying.
type Profile struct {
	Ticker            string
	SpotPrice         float64
	AnalysisTime      time.Time
	LargestCallWall   Level
	LargestPutWall    Level
	ZeroGammaLevel    float64
	ResistanceLevels  []float64
	SupportLevels     []float64
	TotalCallGEX      float64
	TotalPutGEX       float64
	NetGEX            float64
	Regime            Regime
	DealerPositioning string
	// Levels is sorted by descending |NetGEX|.
	Levels      []Level
	Expirations []string
}

// StrikesAnalyzed is the number of levels that survived filtering.
func (p *Profile) StrikesAnalyzed() int { return len(p.Levels) }

type groupKey struct {
	strike     float64
	expiration time.Time
}

type group struct {
	call *chain.Contract
	put  *chain.Contract
}

// Calculate builds the gamma exposure profile for a chain.
//
// Returns chain.ErrInsufficientData when no (strike, expiration) pair has
// both sides present with at least one side clearing MinOI.
func Calculate(in Input) (*Profile, error) {
	asOf := in.AsOf
	if asOf.IsZero() {
		asOf = time.Now()
	}

	levels := buildLevels(in, asOf)
	if len(levels) == 0 {
		return nil, fmt.Errorf("%w: no GEX levels for %s", chain.ErrInsufficientData, in.Symbol)
	}

	p := &Profile{
		Ticker:       in.Symbol,
		SpotPrice:    in.Spot,
		AnalysisTime: asOf,
	}

	// levels is in ascending (strike, expiration) order here.
	p.ZeroGammaLevel = zeroGamma(levels, in.Spot)

	expSeen := make(map[string]struct{})
	for _, l := range levels {
		p.TotalCallGEX += l.CallGEX
		p.TotalPutGEX += l.PutGEX
		d := l.Expiration.Format(chain.DateLayout)
		if _, ok := expSeen[d]; !ok {
			expSeen[d] = struct{}{}
			p.Expirations = append(p.Expirations, d)
		}
	}
	sort.Strings(p.Expirations)
	p.NetGEX = p.TotalCallGEX + p.TotalPutGEX

	byCall := sortedCopy(levels, func(a, b Level) bool { return a.CallGEX > b.CallGEX })
	byPut := sortedCopy(levels, func(a, b Level) bool { return math.Abs(a.PutGEX) > math.Abs(b.PutGEX) })

	p.LargestCallWall = byCall[0]
	p.LargestPutWall = byPut[0]
	p.ResistanceLevels = topStrikes(byCall, wallCount)
	p.SupportLevels = topStrikes(byPut, wallCount)

	p.Regime, p.DealerPositioning = classify(p.NetGEX)

	p.Levels = sortedCopy(levels, func(a, b Level) bool { return math.Abs(a.NetGEX) > math.Abs(b.NetGEX) })
	return p, nil
}

func buildLevels(in Input, asOf time.Time) []Level {
	groups := make(map[groupKey]*group)
	var keys []groupKey

	for i := range in.Contracts {
		c := &in.Contracts[i]
		if in.Window != nil && !in.Window.Contains(asOf, c.Expiration) {
			continue
		}
		k := groupKey{strike: c.Strike, expiration: c.Expiration}
		g, ok := groups[k]
		if !ok {
			g = &group{}
			groups[k] = g
			keys = append(keys, k)
		}
		// first row per side wins
		switch {
		case c.IsCall() && g.call == nil:
			g.call = c
		case c.IsPut() && g.put == nil:
			g.put = c
		}
	}

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].strike != keys[j].strike {
			return keys[i].strike < keys[j].strike
		}
		return keys[i].expiration.Before(keys[j].expiration)
	})

	levels := make([]Level, 0, len(keys))
	for _, k := range keys {
		g := groups[k]
		if g.call == nil || g.put == nil {
			continue
		}
		if g.call.OpenInterest < in.MinOI && g.put.OpenInterest < in.MinOI {
			continue
		}
		levels = append(levels, newLevel(k, g, in.Spot))
	}
	return levels
}

func newLevel(k groupKey, g *group, spot float64) Level {
	l := Level{
		Strike:     k.strike,
		Expiration: k.expiration,
		CallOI:     g.call.OpenInterest,
		PutOI:      g.put.OpenInterest,
		CallGamma:  chain.Value(g.call.Greeks.Gamma),
		PutGamma:   chain.Value(g.put.Greeks.Gamma),
	}
	l.CallGEX = exposure(l.CallOI, l.CallGamma, spot)
	l.PutGEX = -exposure(l.PutOI, l.PutGamma, spot)
	l.NetGEX = l.CallGEX + l.PutGEX
	return l
}

// exposure is notional gamma in millions of dollars.
func exposure(oi int64, gamma, spot float64) float64 {
	return float64(oi) * gamma * chain.SharesPerContract * spot / 1_000_000
}

// zeroGamma returns the midpoint of the first adjacent pair whose NetGEX
// changes sign, or spot when there is none. levels must be sorted by strike.
func zeroGamma(levels []Level, spot float64) float64 {
	for i := 0; i+1 < len(levels); i++ {
		if levels[i].NetGEX*levels[i+1].NetGEX < 0 {
			return (levels[i].Strike + levels[i+1].Strike) / 2
		}
	}
	return spot
}

func classify(net float64) (Regime, string) {
	switch {
	case net > regimeThreshold:
		return RegimePositive, "Long Gamma (Stabilizing)"
	case net < -regimeThreshold:
		return RegimeNegative, "Short Gamma (Volatility Amplifier)"
	default:
		return RegimeNeutral, "Balanced"
	}
}

func sortedCopy(levels []Level, less func(a, b Level) bool) []Level {
	out := make([]Level, len(levels))
	copy(out, levels)
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

// topStrikes returns up to n distinct strikes in ranking order.
func topStrikes(ranked []Level, n int) []float64 {
	out := make([]float64, 0, n)
	seen := make(map[float64]struct{}, n)
	for _, l := range ranked {
		if len(out) == n {
			break
		}
		if _, ok := seen[l.Strike]; ok {
			continue
		}
		seen[l.Strike] = struct{}{}
		out = append(out, l.Strike)
	}
	return out
}
