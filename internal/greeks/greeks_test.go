package greeks

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/dgnsrekt/options-positioning/internal/chain"
)

var asOf = time.Date(2025, 11, 3, 15, 0, 0, 0, time.UTC)

func ptr(v float64) *float64 { return &v }

func TestAggregate_LongCall(t *testing.T) {
	positions := []Position{{Symbol: "SPY", Strike: 580, Type: chain.Call, Quantity: 10}}
	contracts := []*chain.Contract{{
		Strike: 580,
		Type:   chain.Call,
		Greeks: chain.Greeks{Delta: ptr(0.5), Gamma: ptr(0.01), Theta: ptr(-0.2), Vega: ptr(0.3), Rho: ptr(0.05)},
	}}

	p := Aggregate(positions, contracts, asOf, nil)

	if p.Greeks.Delta != 500 {
		t.Errorf("expected delta 500, got %f", p.Greeks.Delta)
	}
	if math.Abs(p.Greeks.Gamma-10) > 1e-9 {
		t.Errorf("expected gamma 10, got %f", p.Greeks.Gamma)
	}
	if math.Abs(p.Greeks.Theta+2) > 1e-9 {
		t.Errorf("expected theta -2, got %f", p.Greeks.Theta)
	}
	if math.Abs(p.Greeks.Vega-3) > 1e-9 {
		t.Errorf("expected vega 3, got %f", p.Greeks.Vega)
	}
	if p.Regime.Delta != "LONG_BIASED" {
		t.Errorf("expected LONG_BIASED, got %s", p.Regime.Delta)
	}
	if p.Regime.Gamma != "POSITIVE_GAMMA" {
		t.Errorf("expected POSITIVE_GAMMA, got %s", p.Regime.Gamma)
	}
	if p.Regime.Theta != "THETA_NEUTRAL" {
		t.Errorf("expected THETA_NEUTRAL, got %s", p.Regime.Theta)
	}
	if len(p.Positions) != 1 || p.Positions[0].Delta != 500 {
		t.Errorf("unexpected breakdown: %+v", p.Positions)
	}
}

func TestAggregate_SkipsUnresolved(t *testing.T) {
	positions := []Position{
		{Symbol: "SPY", Strike: 580, Type: chain.Call, Quantity: 10},
		{Symbol: "SPY", Strike: 575, Type: chain.Put, Quantity: -5},
	}
	contracts := []*chain.Contract{
		nil,
		{Strike: 575, Type: chain.Put, Greeks: chain.Greeks{Delta: ptr(-0.4), Theta: ptr(-15)}},
	}

	p := Aggregate(positions, contracts, asOf, nil)

	if len(p.Skipped) != 1 || p.Skipped[0].Strike != 580 {
		t.Errorf("expected the 580 call to be skipped, got %+v", p.Skipped)
	}
	// short puts: -0.4 * -5 * 100
	if math.Abs(p.Greeks.Delta-200) > 1e-9 {
		t.Errorf("expected delta 200, got %f", p.Greeks.Delta)
	}
	if p.Greeks.Theta != 75 || p.Regime.Theta != "POSITIVE_THETA" {
		t.Errorf("expected theta 75 POSITIVE_THETA, got %f %s", p.Greeks.Theta, p.Regime.Theta)
	}
	if p.Greeks.Gamma != 0 || p.Regime.Gamma != "GAMMA_NEUTRAL" {
		t.Errorf("missing gamma should count as 0, got %f %s", p.Greeks.Gamma, p.Regime.Gamma)
	}
}

func TestAggregate_Empty(t *testing.T) {
	p := Aggregate(nil, nil, asOf, nil)
	if p.Regime.Delta != "DELTA_NEUTRAL" || p.Regime.Gamma != "GAMMA_NEUTRAL" || p.Regime.Theta != "THETA_NEUTRAL" {
		t.Errorf("unexpected regime for empty portfolio: %+v", p.Regime)
	}
}

func TestClassify(t *testing.T) {
	if got := classifyDelta(-150); got != "SHORT_BIASED" {
		t.Errorf("classifyDelta(-150) = %s", got)
	}
	if got := classifyDelta(100); got != "DELTA_NEUTRAL" {
		t.Errorf("classifyDelta(100) = %s", got)
	}
	if got := classifyGamma(-0.6); got != "NEGATIVE_GAMMA" {
		t.Errorf("classifyGamma(-0.6) = %s", got)
	}
	if got := classifyTheta(-51); got != "NEGATIVE_THETA" {
		t.Errorf("classifyTheta(-51) = %s", got)
	}
}

func TestPosition_Normalized(t *testing.T) {
	p, ok := Position{Symbol: " spy ", Type: "CALL"}.Normalized()
	if !ok || p.Type != chain.Call || p.Symbol != "SPY" {
		t.Errorf("unexpected normalized position: %+v ok=%v", p, ok)
	}
	if _, ok := (Position{Type: "straddle"}).Normalized(); ok {
		t.Error("expected unknown type to fail")
	}
}

func TestFindATM(t *testing.T) {
	contracts := []chain.Contract{
		{Strike: 575, Type: chain.Call, Greeks: chain.Greeks{Theta: ptr(-0.3)}},
		{Strike: 580, Type: chain.Call, Greeks: chain.Greeks{Theta: ptr(-0.4)}},
		{Strike: 570, Type: chain.Put, Greeks: chain.Greeks{Theta: ptr(-0.25)}},
		{Strike: 585, Type: chain.Put, Greeks: chain.Greeks{Theta: ptr(-0.35)}},
	}

	atm, err := FindATM("SPY", 579, contracts, asOf)
	if err != nil {
		t.Fatalf("FindATM() error = %v", err)
	}
	if atm.Strike() != 580 {
		t.Errorf("expected ATM call at 580, got %f", atm.Strike())
	}
	if atm.Put.Strike != 585 {
		t.Errorf("expected ATM put at 585, got %f", atm.Put.Strike)
	}
	decay := atm.DailyDecay()
	if decay == nil || math.Abs(*decay-0.75) > 1e-9 {
		t.Errorf("expected daily decay 0.75, got %v", decay)
	}
}

func TestFindATM_MissingTheta(t *testing.T) {
	contracts := []chain.Contract{
		{Strike: 580, Type: chain.Call, Greeks: chain.Greeks{Theta: ptr(-0.4)}},
		{Strike: 580, Type: chain.Put},
	}

	atm, err := FindATM("SPY", 580, contracts, asOf)
	if err != nil {
		t.Fatalf("FindATM() error = %v", err)
	}
	if atm.DailyDecay() != nil {
		t.Error("expected unknown decay when put theta is missing")
	}
}

func TestFindATM_MissingSide(t *testing.T) {
	contracts := []chain.Contract{{Strike: 580, Type: chain.Call}}

	_, err := FindATM("SPY", 580, contracts, asOf)
	if !errors.Is(err, chain.ErrInsufficientData) {
		t.Errorf("expected ErrInsufficientData, got %v", err)
	}
}
