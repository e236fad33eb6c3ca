package flow

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/dgnsrekt/options-positioning/internal/chain"
)

var (
	asOf    = time.Date(2025, 11, 3, 15, 0, 0, 0, time.UTC)
	nearExp = time.Date(2025, 11, 21, 0, 0, 0, 0, time.UTC)
	farExp  = time.Date(2025, 12, 19, 0, 0, 0, 0, time.UTC)
)

func contract(typ chain.ContractType, strike float64, exp time.Time, vol, oi int64, price float64) chain.Contract {
	return chain.Contract{
		Strike:       strike,
		Expiration:   exp,
		Type:         typ,
		Volume:       vol,
		OpenInterest: oi,
		LastPrice:    price,
	}
}

func bullishChain() []chain.Contract {
	return []chain.Contract{
		contract(chain.Call, 100, nearExp, 1000, 500, 2),
		contract(chain.Call, 105, nearExp, 1200, 500, 2),
		contract(chain.Call, 110, nearExp, 900, 500, 2),
		contract(chain.Call, 115, nearExp, 900, 500, 2),
		contract(chain.Put, 95, nearExp, 500, 5000, 1),
		contract(chain.Put, 90, nearExp, 500, 5000, 1),
	}
}

func TestAnalyze_Bullish(t *testing.T) {
	r := Analyze(Input{Symbol: "SPY", Contracts: bullishChain(), AsOf: asOf})

	if !r.Available {
		t.Fatal("expected available result")
	}
	if *r.PCR.CallVolume != 4000 || *r.PCR.PutVolume != 1000 {
		t.Errorf("unexpected volumes %d/%d", *r.PCR.CallVolume, *r.PCR.PutVolume)
	}
	if *r.PCR.Ratio != 0.25 || *r.PCR.Signal != PCRExtremeGreedSell {
		t.Errorf("unexpected PCR %f/%s", *r.PCR.Ratio, *r.PCR.Signal)
	}
	if *r.Premium.CallPremium != 800000 || *r.Premium.PutPremium != 100000 {
		t.Errorf("unexpected premium %f/%f", *r.Premium.CallPremium, *r.Premium.PutPremium)
	}
	if *r.Premium.Signal != PremiumStrongBullish {
		t.Errorf("expected STRONG_BULLISH premium, got %s", *r.Premium.Signal)
	}
	if *r.Premium.Ratio != 8 {
		t.Errorf("expected premium ratio 8, got %f", *r.Premium.Ratio)
	}
	if *r.Unusual.Signal != UnusualBullishSweep || *r.Unusual.CallCount != 4 || *r.Unusual.PutCount != 0 {
		t.Errorf("unexpected unusual activity: %+v", r.Unusual)
	}
	if r.Unusual.Calls[0].Strike != 105 {
		t.Errorf("expected largest unusual call first, got strike %f", r.Unusual.Calls[0].Strike)
	}

	if *r.OverallSignal != Bullish || *r.SignalStrength != Strong {
		t.Errorf("expected BULLISH/STRONG, got %s/%s", *r.OverallSignal, *r.SignalStrength)
	}
	want := "Bullish options flow detected - 89% of premium in calls - Unusual call buying detected"
	if r.Interpretation != want {
		t.Errorf("interpretation = %q, want %q", r.Interpretation, want)
	}
}

func TestAnalyze_Unavailable(t *testing.T) {
	tests := []struct {
		name      string
		contracts []chain.Contract
	}{
		{"too few", bullishChain()[:4]},
		{"calls only", []chain.Contract{
			contract(chain.Call, 100, nearExp, 10, 10, 1),
			contract(chain.Call, 101, nearExp, 10, 10, 1),
			contract(chain.Call, 102, nearExp, 10, 10, 1),
			contract(chain.Call, 103, nearExp, 10, 10, 1),
			contract(chain.Call, 104, nearExp, 10, 10, 1),
		}},
		{"no volume", append(bullishChain()[:4], contract(chain.Put, 95, nearExp, 0, 10, 1))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Analyze(Input{Symbol: "SPY", Contracts: tt.contracts, AsOf: asOf})
			if r.Available {
				t.Fatal("expected unavailable result")
			}
			if r.PCR.Ratio != nil || r.PCR.CallVolume != nil || r.Premium.CallPremium != nil || r.Unusual.Signal != nil {
				t.Error("expected every group to be empty")
			}
			if r.OverallSignal != nil || r.SignalStrength != nil {
				t.Error("expected no overall signal")
			}
			if r.Unusual.Detected {
				t.Error("expected unusual activity not detected")
			}
			if r.Interpretation != UnavailableInterpretation {
				t.Errorf("unexpected interpretation %q", r.Interpretation)
			}
		})
	}
}

func TestPutCallRatio_ZeroCallVolume(t *testing.T) {
	calls := []chain.Contract{contract(chain.Call, 100, nearExp, 0, 10, 1)}
	puts := []chain.Contract{contract(chain.Put, 100, nearExp, 500, 10, 1)}

	p := putCallRatio(calls, puts)
	if p.Ratio != nil || p.Signal != nil {
		t.Error("expected undefined ratio and signal when call volume is 0")
	}
	if *p.PutVolume != 500 {
		t.Errorf("expected put volume 500, got %d", *p.PutVolume)
	}
}

func TestPremiumFlow_ZeroPutPremium(t *testing.T) {
	calls := []chain.Contract{contract(chain.Call, 100, nearExp, 100, 10, 2)}
	puts := []chain.Contract{contract(chain.Put, 100, nearExp, 500, 10, 0)}

	p := premiumFlow(calls, puts)
	if p.Ratio != nil {
		t.Errorf("expected an undefined ratio, got %f", *p.Ratio)
	}
	if p.CallPremium == nil || p.PutPremium == nil || p.CallPct == nil || p.Signal == nil {
		t.Fatal("expected the rest of the premium group to be populated")
	}
	if *p.PutPremium != 0 || *p.CallPct != 100 {
		t.Errorf("unexpected premium split %f / %f%%", *p.PutPremium, *p.CallPct)
	}
}

func TestClassifyPCR_Boundaries(t *testing.T) {
	tests := []struct {
		ratio float64
		want  PCRSignal
	}{
		{1.6, PCRExtremeFearBuy},
		{1.5, PCRBearish},
		{1.0, PCRNeutral},
		{0.7, PCRNeutral},
		{0.6, PCRBullish},
		{0.5, PCRBullish},
		{0.4, PCRExtremeGreedSell},
	}

	for _, tt := range tests {
		if got := classifyPCR(tt.ratio); got != tt.want {
			t.Errorf("classifyPCR(%v) = %s, want %s", tt.ratio, got, tt.want)
		}
	}
}

func TestPremiumFlow_NoPremium(t *testing.T) {
	contracts := bullishChain()
	for i := range contracts {
		contracts[i].LastPrice = 0
	}

	r := Analyze(Input{Symbol: "SPY", Contracts: contracts, AsOf: asOf})
	if !reflect.DeepEqual(r.Premium, Premium{}) {
		t.Errorf("expected empty premium group, got %+v", r.Premium)
	}
	if r.PCR.Ratio == nil {
		t.Error("PCR should still be populated")
	}
}

func TestUnusualActivity_Lookback(t *testing.T) {
	contracts := bullishChain()
	for i := range contracts {
		if contracts[i].IsCall() {
			contracts[i].Expiration = farExp
		}
	}

	r := Analyze(Input{Symbol: "SPY", Contracts: contracts, Lookback: 20, AsOf: asOf})
	if *r.Unusual.CallCount != 0 || r.Unusual.Detected {
		t.Errorf("expected calls past the lookback to be ignored, got %+v", r.Unusual)
	}

	r = Analyze(Input{Symbol: "SPY", Contracts: contracts, Lookback: 60, AsOf: asOf})
	if *r.Unusual.CallCount != 4 {
		t.Errorf("expected 4 unusual calls with a 60 day lookback, got %d", *r.Unusual.CallCount)
	}
}

func TestClassifyUnusual(t *testing.T) {
	tests := []struct {
		calls, puts int
		want        UnusualSignal
	}{
		{3, 1, UnusualBullishSweep},
		{1, 3, UnusualBearishSweep},
		{6, 4, UnusualHighActivity},
		{2, 1, UnusualNormal},
		{0, 0, UnusualNormal},
	}

	for _, tt := range tests {
		if got := classifyUnusual(tt.calls, tt.puts); got != tt.want {
			t.Errorf("classifyUnusual(%d, %d) = %s, want %s", tt.calls, tt.puts, got, tt.want)
		}
	}
}

func TestFuse(t *testing.T) {
	pcr := func(s PCRSignal) *PCRSignal { return &s }
	prem := func(s PremiumSignal) *PremiumSignal { return &s }
	unusual := func(s UnusualSignal) *UnusualSignal { return &s }

	tests := []struct {
		name     string
		pcr      *PCRSignal
		premium  *PremiumSignal
		unusual  *UnusualSignal
		dir      Direction
		strength Strength
	}{
		{"margin tie-break", pcr(PCRBullish), prem(PremiumBearish), nil, Neutral, Weak},
		{"premium alone", nil, prem(PremiumBullish), nil, Bullish, Moderate},
		{"premium and sweep", nil, prem(PremiumStrongBearish), unusual(UnusualBearishSweep), Bearish, Strong},
		{"pcr alone", pcr(PCRExtremeFearBuy), nil, nil, Neutral, Weak},
		{"nothing", nil, nil, nil, Neutral, Weak},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir, str := Fuse(tt.pcr, tt.premium, tt.unusual)
			if dir != tt.dir || str != tt.strength {
				t.Errorf("Fuse() = %s/%s, want %s/%s", dir, str, tt.dir, tt.strength)
			}
		})
	}
}

func TestValidateLookback(t *testing.T) {
	for _, days := range []int{5, 20, 60} {
		if err := ValidateLookback(days); err != nil {
			t.Errorf("ValidateLookback(%d) unexpected error: %v", days, err)
		}
	}
	for _, days := range []int{4, 61} {
		if err := ValidateLookback(days); !errors.Is(err, ErrInvalidLookback) {
			t.Errorf("ValidateLookback(%d) expected ErrInvalidLookback, got %v", days, err)
		}
	}
}

func TestAnalyze_Idempotent(t *testing.T) {
	in := Input{Symbol: "SPY", Contracts: bullishChain(), AsOf: asOf}
	if !reflect.DeepEqual(Analyze(in), Analyze(in)) {
		t.Error("expected identical results for identical input")
	}
}
