// Package decision fuses the GEX, Max Pain and Options Flow readings of one
// underlying into a single trade setup.
package decision

import (
	"fmt"
	"time"

	"github.com/dgnsrekt/options-positioning/internal/flow"
	"github.com/dgnsrekt/options-positioning/internal/gex"
	"github.com/dgnsrekt/options-positioning/internal/maxpain"
)

// Setup is the recommended stance.
type Setup string

const (
	BullishSetup Setup = "BULLISH_SETUP"
	BearishSetup Setup = "BEARISH_SETUP"
	NoEdge       Setup = "NO_EDGE"
)

// Confidence grades a setup by how many readings back it.
type Confidence string

const (
	High   Confidence = "HIGH"
	Medium Confidence = "MEDIUM"
	Low    Confidence = "LOW"
)

var strategies = map[Setup]string{
	BullishSetup: "BUY CALL DEBIT SPREADS",
	BearishSetup: "BUY PUT DEBIT SPREADS",
	NoEdge:       "WAIT FOR BETTER SETUP",
}

// Input carries the engine results. Any of them may be nil when that
// engine could not run; a nil reading casts no vote.
type Input struct {
	Symbol  string
	Price   float64
	GEX     *gex.Profile
	MaxPain *maxpain.Result
	Flow    *flow.Result
	AsOf    time.Time
}

// Decision is the fused outcome.
type Decision struct {
	Symbol       string
	AnalysisTime time.Time
	Price        float64
	Setup        Setup
	Strategy     string
	Confidence   Confidence
	Reasons      []string
}

type votes struct {
	flowBullish     bool
	flowBearish     bool
	gexPositive     bool
	gexNegative     bool
	belowMaxPain    bool
	aboveMaxPain    bool
	notAboveMaxPain bool
}

// Decide applies the setup rules.
//
// A bullish setup needs bullish flow, positive net GEX and price not above
// max pain. A bearish setup needs bearish flow and either a negative GEX
// regime or price above max pain. Anything else has no edge.
func Decide(in Input) *Decision {
	asOf := in.AsOf
	if asOf.IsZero() {
		asOf = time.Now()
	}

	d := &Decision{Symbol: in.Symbol, AnalysisTime: asOf, Price: in.Price}
	v := collect(in)

	switch {
	case v.flowBullish && v.gexPositive && v.notAboveMaxPain:
		d.Setup = BullishSetup
		d.Confidence = grade(1 + 1 + btoi(v.belowMaxPain))
	case v.flowBearish && (v.gexNegative || v.aboveMaxPain):
		d.Setup = BearishSetup
		d.Confidence = grade(1 + btoi(v.gexNegative) + btoi(v.aboveMaxPain))
	default:
		d.Setup = NoEdge
		d.Confidence = Low
	}
	d.Strategy = strategies[d.Setup]
	d.Reasons = reasons(in)
	return d
}

func collect(in Input) votes {
	var v votes
	if in.Flow != nil && in.Flow.OverallSignal != nil {
		v.flowBullish = *in.Flow.OverallSignal == flow.Bullish
		v.flowBearish = *in.Flow.OverallSignal == flow.Bearish
	}
	if in.GEX != nil {
		v.gexPositive = in.GEX.NetGEX > 0
		v.gexNegative = in.GEX.Regime == gex.RegimeNegative
	}
	if in.MaxPain != nil {
		v.belowMaxPain = in.Price < in.MaxPain.MaxPainStrike
		v.aboveMaxPain = in.Price > in.MaxPain.MaxPainStrike
		v.notAboveMaxPain = !v.aboveMaxPain
	}
	return v
}

func grade(agreeing int) Confidence {
	if agreeing >= 3 {
		return High
	}
	return Medium
}

func reasons(in Input) []string {
	var out []string

	if in.Flow == nil || !in.Flow.Available {
		out = append(out, "Options flow unavailable")
	} else {
		out = append(out, fmt.Sprintf("Options flow %s (%s)", *in.Flow.OverallSignal, *in.Flow.SignalStrength))
		if in.Flow.Premium.CallPct != nil {
			out = append(out, fmt.Sprintf("%.0f%% of premium in calls", *in.Flow.Premium.CallPct))
		}
	}

	if in.GEX == nil {
		out = append(out, "Gamma exposure unavailable")
	} else {
		out = append(out, fmt.Sprintf("Net GEX $%.2fM, %s", in.GEX.NetGEX, in.GEX.DealerPositioning))
	}

	if in.MaxPain == nil {
		out = append(out, "Max pain unavailable")
	} else {
		out = append(out, fmt.Sprintf("Price $%.2f vs max pain $%.2f (%s)", in.Price, in.MaxPain.MaxPainStrike, in.MaxPain.Bias))
	}
	return out
}

func btoi(b bool) int {
	if b {
		return 1
	}
	return 0
}
