package flow

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dgnsrekt/options-positioning/internal/chain"
)

const (
	// DefaultLookback is the unusual-activity window in days.
	DefaultLookback = 20
	MinLookback     = 5
	MaxLookback     = 60

	minActiveContracts = 5
	unusualTop         = 5
	// volume above this share of open interest is unusual
	unusualVolumeOIRatio = 0.5
)

// UnavailableInterpretation is reported when the chain is too thin.
const UnavailableInterpretation = "Options flow data not available"

// ErrInvalidLookback rejects a lookback outside [MinLookback, MaxLookback].
var ErrInvalidLookback = errors.New("lookback out of range")

// ValidateLookback checks a caller supplied lookback.
func ValidateLookback(days int) error {
	if days < MinLookback || days > MaxLookback {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrInvalidLookback, days, MinLookback, MaxLookback)
	}
	return nil
}

// Input is one flow analysis request.
type Input struct {
	Symbol    string
	Contracts []chain.Contract
	// Lookback bounds unusual-activity evaluation; zero means DefaultLookback.
	Lookback int
	AsOf     time.Time
}

// PCR is the put/call volume ratio group. All fields are nil together when
// the flow is unavailable; Ratio and Signal are nil when call volume is 0.
type PCR struct {
	Ratio      *float64
	CallVolume *int64
	PutVolume  *int64
	Signal     *PCRSignal
}

// Premium is the premium flow group, nil throughout when no premium traded.
// Ratio is calls over puts and stays nil when put premium is 0.
type Premium struct {
	CallPremium *float64
	PutPremium  *float64
	CallPct     *float64
	PutPct      *float64
	Ratio       *float64
	Signal      *PremiumSignal
}

// UnusualContract is one contract trading above its open interest threshold.
type UnusualContract struct {
	Ticker        string             `json:"ticker"`
	Type          chain.ContractType `json:"type"`
	Strike        float64            `json:"strike"`
	Expiration    time.Time          `json:"expiration"`
	Volume        int64              `json:"volume"`
	OpenInterest  int64              `json:"oi"`
	VolumeOIRatio float64            `json:"volume_oi_ratio"`
}

// Unusual is the unusual-activity group. Calls and Puts hold the top
// contracts by volume; the counts cover every unusual contract.
type Unusual struct {
	Calls     []UnusualContract
	Puts      []UnusualContract
	CallCount *int
	PutCount  *int
	Detected  bool
	Signal    *UnusualSignal
}

// Result is the complete flow analysis. When Available is false every group
// is empty and only Interpretation is set.
type Result struct {
	Symbol         string
	AnalysisTime   time.Time
	Available      bool
	PCR            PCR
	Premium        Premium
	Unusual        Unusual
	OverallSignal  *Direction
	SignalStrength *Strength
	Interpretation string
}

// Analyze computes the flow signal. Contracts without volume are ignored.
// A chain with fewer than five active contracts or a missing side yields the
// unavailable result rather than an error.
func Analyze(in Input) *Result {
	asOf := in.AsOf
	if asOf.IsZero() {
		asOf = time.Now()
	}
	lookback := in.Lookback
	if lookback == 0 {
		lookback = DefaultLookback
	}

	active := make([]chain.Contract, 0, len(in.Contracts))
	for _, c := range in.Contracts {
		if c.Volume > 0 {
			active = append(active, c)
		}
	}

	calls, puts := chain.Split(active)
	if len(active) < minActiveContracts || len(calls) == 0 || len(puts) == 0 {
		return Unavailable(in.Symbol, asOf)
	}

	r := &Result{
		Symbol:       in.Symbol,
		AnalysisTime: asOf,
		Available:    true,
		PCR:          putCallRatio(calls, puts),
		Premium:      premiumFlow(calls, puts),
		Unusual:      unusualActivity(active, asOf, lookback),
	}

	dir, str := Fuse(r.PCR.Signal, r.Premium.Signal, r.Unusual.Signal)
	r.OverallSignal = &dir
	r.SignalStrength = &str
	r.Interpretation = interpret(dir, r.Premium, r.Unusual)
	return r
}

// Unavailable is the defined result for a chain too thin to analyze.
func Unavailable(symbol string, asOf time.Time) *Result {
	return &Result{
		Symbol:         symbol,
		AnalysisTime:   asOf,
		Interpretation: UnavailableInterpretation,
	}
}

func putCallRatio(calls, puts []chain.Contract) PCR {
	callVol := sumVolume(calls)
	putVol := sumVolume(puts)

	p := PCR{CallVolume: &callVol, PutVolume: &putVol}
	if callVol == 0 {
		return p
	}

	ratio := float64(putVol) / float64(callVol)
	sig := classifyPCR(ratio)
	p.Ratio = &ratio
	p.Signal = &sig
	return p
}

func premiumFlow(calls, puts []chain.Contract) Premium {
	callPrem := sumPremium(calls)
	putPrem := sumPremium(puts)
	total := callPrem + putPrem
	if total == 0 {
		return Premium{}
	}

	callPct := callPrem / total * 100
	putPct := putPrem / total * 100
	sig := classifyPremium(callPct, putPct)

	p := Premium{
		CallPremium: &callPrem,
		PutPremium:  &putPrem,
		CallPct:     &callPct,
		PutPct:      &putPct,
		Signal:      &sig,
	}
	// Only the ratio is undefined without put premium; the rest of the
	// group stays populated.
	if putPrem > 0 {
		ratio := callPrem / putPrem
		p.Ratio = &ratio
	}
	return p
}

func unusualActivity(active []chain.Contract, asOf time.Time, lookback int) Unusual {
	var calls, puts []UnusualContract
	for _, c := range active {
		if days := chain.DaysUntil(asOf, c.Expiration); days < 0 || days > lookback {
			continue
		}
		if c.OpenInterest <= 0 || float64(c.Volume) <= float64(c.OpenInterest)*unusualVolumeOIRatio {
			continue
		}
		u := UnusualContract{
			Ticker:        c.Ticker,
			Type:          c.Type,
			Strike:        c.Strike,
			Expiration:    c.Expiration,
			Volume:        c.Volume,
			OpenInterest:  c.OpenInterest,
			VolumeOIRatio: float64(c.Volume) / float64(c.OpenInterest),
		}
		if c.IsCall() {
			calls = append(calls, u)
		} else {
			puts = append(puts, u)
		}
	}

	byVolume := func(s []UnusualContract) {
		sort.SliceStable(s, func(i, j int) bool { return s[i].Volume > s[j].Volume })
	}
	byVolume(calls)
	byVolume(puts)

	callCount, putCount := len(calls), len(puts)
	sig := classifyUnusual(callCount, putCount)
	return Unusual{
		Calls:     top(calls, unusualTop),
		Puts:      top(puts, unusualTop),
		CallCount: &callCount,
		PutCount:  &putCount,
		Detected:  callCount > 0 || putCount > 0,
		Signal:    &sig,
	}
}

func interpret(dir Direction, prem Premium, unusual Unusual) string {
	parts := make([]string, 0, 3)
	switch dir {
	case Bullish:
		parts = append(parts, "Bullish options flow detected")
	case Bearish:
		parts = append(parts, "Bearish options flow detected")
	default:
		parts = append(parts, "Neutral options flow")
	}

	switch {
	case prem.CallPct != nil && *prem.CallPct > 60:
		parts = append(parts, fmt.Sprintf("%.0f%% of premium in calls", *prem.CallPct))
	case prem.PutPct != nil && *prem.PutPct > 60:
		parts = append(parts, fmt.Sprintf("%.0f%% of premium in puts", *prem.PutPct))
	}

	if unusual.Detected && unusual.Signal != nil {
		switch *unusual.Signal {
		case UnusualBullishSweep:
			parts = append(parts, "Unusual call buying detected")
		case UnusualBearishSweep:
			parts = append(parts, "Unusual put buying detected")
		}
	}
	return strings.Join(parts, " - ")
}

func sumVolume(contracts []chain.Contract) int64 {
	var total int64
	for _, c := range contracts {
		total += c.Volume
	}
	return total
}

func sumPremium(contracts []chain.Contract) float64 {
	var total float64
	for _, c := range contracts {
		total += float64(c.Volume) * c.LastPrice * chain.SharesPerContract
	}
	return total
}

func top(s []UnusualContract, n int) []UnusualContract {
	if len(s) > n {
		return s[:n]
	}
	return s
}
