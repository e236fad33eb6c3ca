package gex

import (
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/dgnsrekt/options-positioning/internal/chain"
)

var (
	asOf = time.Date(2025, 11, 3, 15, 0, 0, 0, time.UTC)
	exp1 = time.Date(2025, 11, 21, 0, 0, 0, 0, time.UTC)
	exp2 = time.Date(2025, 12, 19, 0, 0, 0, 0, time.UTC)
)

func contract(typ chain.ContractType, strike float64, exp time.Time, oi int64, gamma float64) chain.Contract {
	g := gamma
	return chain.Contract{
		Underlying:   "SPY",
		Strike:       strike,
		Expiration:   exp,
		Type:         typ,
		OpenInterest: oi,
		Greeks:       chain.Greeks{Gamma: &g},
	}
}

// With spot 100 a level's GEX is oi*gamma/100, so OI 1000 makes GEX = 10*gamma.
func crossingChain() []chain.Contract {
	return []chain.Contract{
		contract(chain.Call, 100, exp1, 1000, 0.5),
		contract(chain.Put, 100, exp1, 1000, 0),
		contract(chain.Call, 105, exp1, 1000, 0),
		contract(chain.Put, 105, exp1, 1000, 0.3),
		contract(chain.Call, 110, exp1, 1000, 0),
		contract(chain.Put, 110, exp1, 1000, 0.8),
	}
}

func TestCalculate_ZeroGammaMidpoint(t *testing.T) {
	p, err := Calculate(Input{Symbol: "SPY", Spot: 100, Contracts: crossingChain(), MinOI: DefaultMinOI, AsOf: asOf})
	if err != nil {
		t.Fatalf("Calculate() error = %v", err)
	}

	if p.ZeroGammaLevel != 102.5 {
		t.Errorf("expected zero gamma 102.5, got %f", p.ZeroGammaLevel)
	}
	if p.LargestCallWall.Strike != 100 {
		t.Errorf("expected call wall at 100, got %f", p.LargestCallWall.Strike)
	}
	if p.LargestPutWall.Strike != 110 {
		t.Errorf("expected put wall at 110, got %f", p.LargestPutWall.Strike)
	}
	if !reflect.DeepEqual(p.SupportLevels, []float64{110, 105, 100}) {
		t.Errorf("unexpected support levels: %v", p.SupportLevels)
	}
	if p.ResistanceLevels[0] != 100 {
		t.Errorf("expected strongest resistance at 100, got %v", p.ResistanceLevels)
	}

	wantOrder := []float64{110, 100, 105}
	for i, l := range p.Levels {
		if l.Strike != wantOrder[i] {
			t.Errorf("level %d: expected strike %f, got %f", i, wantOrder[i], l.Strike)
		}
	}
	if p.Regime != RegimeNeutral || p.DealerPositioning != "Balanced" {
		t.Errorf("expected neutral regime, got %s/%s", p.Regime, p.DealerPositioning)
	}
}

func TestCalculate_NoCrossingFallsBackToSpot(t *testing.T) {
	contracts := []chain.Contract{
		contract(chain.Call, 100, exp1, 1000, 0.5),
		contract(chain.Put, 100, exp1, 1000, 0.1),
		contract(chain.Call, 105, exp1, 1000, 0.4),
		contract(chain.Put, 105, exp1, 1000, 0.1),
	}

	p, err := Calculate(Input{Symbol: "SPY", Spot: 101.3, Contracts: contracts, MinOI: DefaultMinOI, AsOf: asOf})
	if err != nil {
		t.Fatalf("Calculate() error = %v", err)
	}
	if p.ZeroGammaLevel != 101.3 {
		t.Errorf("expected zero gamma to default to spot, got %f", p.ZeroGammaLevel)
	}
}

func TestCalculate_SignAndConservation(t *testing.T) {
	contracts := append(crossingChain(),
		contract(chain.Call, 100, exp2, 5000, 0.02),
		contract(chain.Put, 100, exp2, 7000, 0.03),
		contract(chain.Call, 95, exp2, 300, 0.01),
		contract(chain.Put, 95, exp2, 200, 0.04),
	)

	p, err := Calculate(Input{Symbol: "SPY", Spot: 587.25, Contracts: contracts, MinOI: DefaultMinOI, AsOf: asOf})
	if err != nil {
		t.Fatalf("Calculate() error = %v", err)
	}

	var sum float64
	for _, l := range p.Levels {
		if l.CallGamma >= 0 && l.CallGEX < 0 {
			t.Errorf("strike %f: call GEX negative: %f", l.Strike, l.CallGEX)
		}
		if l.PutGamma >= 0 && l.PutGEX > 0 {
			t.Errorf("strike %f: put GEX positive: %f", l.Strike, l.PutGEX)
		}
		if l.NetGEX != l.CallGEX+l.PutGEX {
			t.Errorf("strike %f: net GEX mismatch", l.Strike)
		}
		sum += l.NetGEX
	}

	if math.Abs(sum-p.NetGEX) > 1e-9 {
		t.Errorf("sum of levels %f != net GEX %f", sum, p.NetGEX)
	}
	if math.Abs(p.TotalCallGEX+p.TotalPutGEX-p.NetGEX) > 1e-9 {
		t.Errorf("totals do not add up to net GEX")
	}
	if !reflect.DeepEqual(p.Expirations, []string{"2025-11-21", "2025-12-19"}) {
		t.Errorf("unexpected expirations: %v", p.Expirations)
	}
}

func TestCalculate_Filters(t *testing.T) {
	contracts := []chain.Contract{
		// both sides below min OI
		contract(chain.Call, 90, exp1, 50, 0.1),
		contract(chain.Put, 90, exp1, 99, 0.1),
		// call side missing
		contract(chain.Put, 95, exp1, 5000, 0.1),
		// one side clears
		contract(chain.Call, 100, exp1, 100, 0.1),
		contract(chain.Put, 100, exp1, 10, 0.1),
		// outside the window
		contract(chain.Call, 105, exp2, 5000, 0.1),
		contract(chain.Put, 105, exp2, 5000, 0.1),
	}

	p, err := Calculate(Input{
		Symbol:    "SPY",
		Spot:      100,
		Contracts: contracts,
		MinOI:     DefaultMinOI,
		Window:    &chain.Window{MinDays: 0, MaxDays: 30},
		AsOf:      asOf,
	})
	if err != nil {
		t.Fatalf("Calculate() error = %v", err)
	}
	if p.StrikesAnalyzed() != 1 || p.Levels[0].Strike != 100 {
		t.Errorf("expected only strike 100 to survive, got %+v", p.Levels)
	}
}

func TestCalculate_DistinctStrikes(t *testing.T) {
	contracts := []chain.Contract{
		contract(chain.Call, 100, exp1, 1000, 0.9),
		contract(chain.Put, 100, exp1, 1000, 0.1),
		contract(chain.Call, 100, exp2, 1000, 0.8),
		contract(chain.Put, 100, exp2, 1000, 0.1),
		contract(chain.Call, 105, exp1, 1000, 0.2),
		contract(chain.Put, 105, exp1, 1000, 0.1),
	}

	p, err := Calculate(Input{Symbol: "SPY", Spot: 100, Contracts: contracts, MinOI: DefaultMinOI, AsOf: asOf})
	if err != nil {
		t.Fatalf("Calculate() error = %v", err)
	}
	if !reflect.DeepEqual(p.ResistanceLevels, []float64{100, 105}) {
		t.Errorf("expected distinct resistance strikes [100 105], got %v", p.ResistanceLevels)
	}
}

func TestCalculate_NoLevels(t *testing.T) {
	contracts := []chain.Contract{contract(chain.Call, 100, exp1, 1000, 0.5)}

	_, err := Calculate(Input{Symbol: "SPY", Spot: 100, Contracts: contracts, MinOI: DefaultMinOI, AsOf: asOf})
	if !errors.Is(err, chain.ErrInsufficientData) {
		t.Errorf("expected ErrInsufficientData, got %v", err)
	}
}

func TestCalculate_MissingGammaIsZero(t *testing.T) {
	call := contract(chain.Call, 100, exp1, 1000, 0)
	call.Greeks.Gamma = nil
	put := contract(chain.Put, 100, exp1, 1000, 0.2)

	p, err := Calculate(Input{Symbol: "SPY", Spot: 100, Contracts: []chain.Contract{call, put}, MinOI: DefaultMinOI, AsOf: asOf})
	if err != nil {
		t.Fatalf("Calculate() error = %v", err)
	}
	if p.TotalCallGEX != 0 {
		t.Errorf("expected zero call GEX, got %f", p.TotalCallGEX)
	}
}

func TestCalculate_Regimes(t *testing.T) {
	tests := []struct {
		name      string
		callGamma float64
		putGamma  float64
		want      Regime
	}{
		{"positive", 0.5, 0, RegimePositive},
		{"negative", 0, 0.5, RegimeNegative},
		{"neutral", 0.001, 0.001, RegimeNeutral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// 100k OI at spot 500 puts 0.5 gamma at 2500 $M
			contracts := []chain.Contract{
				contract(chain.Call, 500, exp1, 100000, tt.callGamma),
				contract(chain.Put, 500, exp1, 100000, tt.putGamma),
			}
			p, err := Calculate(Input{Symbol: "SPY", Spot: 500, Contracts: contracts, MinOI: DefaultMinOI, AsOf: asOf})
			if err != nil {
				t.Fatalf("Calculate() error = %v", err)
			}
			if p.Regime != tt.want {
				t.Errorf("expected %s, got %s (net %f)", tt.want, p.Regime, p.NetGEX)
			}
		})
	}
}

func TestCalculate_Idempotent(t *testing.T) {
	in := Input{Symbol: "SPY", Spot: 100, Contracts: crossingChain(), MinOI: DefaultMinOI, AsOf: asOf}

	a, err := Calculate(in)
	if err != nil {
		t.Fatalf("Calculate() error = %v", err)
	}
	b, err := Calculate(in)
	if err != nil {
		t.Fatalf("Calculate() error = %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Error("expected identical profiles for identical input")
	}
}

func TestPosition(t *testing.T) {
	p := &Profile{
		LargestCallWall: Level{Strike: 110},
		LargestPutWall:  Level{Strike: 90},
		ZeroGammaLevel:  100,
		Regime:          RegimePositive,
	}

	tests := []struct {
		price     float64
		position  PricePosition
		direction string
	}{
		{85, BelowSupport, "BULLISH"},
		{115, AboveResistance, "BEARISH"},
		{95, BelowZeroGamma, "NEUTRAL_BEARISH"},
		{105, AboveZeroGamma, "NEUTRAL_BULLISH"},
		{100, AtZeroGamma, "NEUTRAL"},
	}

	for _, tt := range tests {
		s := p.Position(tt.price)
		if s.Position != tt.position || s.Direction != tt.direction {
			t.Errorf("price %f: got %s/%s, want %s/%s", tt.price, s.Position, s.Direction, tt.position, tt.direction)
		}
		if s.RegimeSignal != "STABILIZING" {
			t.Errorf("expected STABILIZING, got %s", s.RegimeSignal)
		}
	}
}

func TestSummary(t *testing.T) {
	p, err := Calculate(Input{Symbol: "SPY", Spot: 100, Contracts: crossingChain(), MinOI: DefaultMinOI, AsOf: asOf})
	if err != nil {
		t.Fatalf("Calculate() error = %v", err)
	}

	s := p.Summary()
	for _, want := range []string{"GAMMA EXPOSURE ANALYSIS - SPY", "Zero Gamma Level: $102.50", "Strikes Analyzed: 3", "Neutral Gamma"} {
		if !strings.Contains(s, want) {
			t.Errorf("summary missing %q", want)
		}
	}

	if got := len(p.TopLevels(10)); got != 3 {
		t.Errorf("expected 3 top levels, got %d", got)
	}
	if p.Levels[0].WallType() != "PUT WALL" {
		t.Errorf("expected strongest level to be a put wall")
	}
}
