package server

import (
	"math"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dgnsrekt/options-positioning/internal/analysis"
	"github.com/dgnsrekt/options-positioning/internal/chain"
	"github.com/dgnsrekt/options-positioning/internal/flow"
	"github.com/dgnsrekt/options-positioning/internal/gex"
	"github.com/dgnsrekt/options-positioning/internal/greeks"
	"github.com/dgnsrekt/options-positioning/internal/maxpain"
)

// Decimal places applied at the response boundary.
const (
	pricePlaces  = 2
	gexPlaces    = 4
	ratioPlaces  = 3
	pctPlaces    = 2
	greekPlaces  = 4
	topLevelsMax = 10
)

// round returns nil for NaN and Inf so an unknown value is never reported
// as a number.
func round(v float64, places int32) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	r := decimal.NewFromFloat(v).Round(places).InexactFloat64()
	return &r
}

func roundPtr(v *float64, places int32) *float64 {
	if v == nil {
		return nil
	}
	return round(*v, places)
}

func roundAll(vs []float64, places int32) []*float64 {
	out := make([]*float64, len(vs))
	for i, v := range vs {
		out[i] = round(v, places)
	}
	return out
}

func timestamp(t time.Time) string {
	return t.Format(time.RFC3339)
}

func stringPtr[T ~string](v *T) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

type errorResponse struct {
	Error string `json:"error"`
}

type healthResponse struct {
	Status    string         `json:"status"`
	Provider  string         `json:"provider"`
	DataDate  *string        `json:"data_date"`
	Uptime    string         `json:"uptime"`
	WSClients *int           `json:"ws_clients"`
	WSGroups  map[string]int `json:"ws_groups,omitempty"`
}

// GEX

type GEXLevelResponse struct {
	Strike     *float64 `json:"strike"`
	Expiration string   `json:"expiration"`
	CallOI     int64    `json:"call_oi"`
	PutOI      int64    `json:"put_oi"`
	CallGamma  *float64 `json:"call_gamma"`
	PutGamma   *float64 `json:"put_gamma"`
	CallGEX    *float64 `json:"call_gex"`
	PutGEX     *float64 `json:"put_gex"`
	NetGEX     *float64 `json:"net_gex"`
	WallType   string   `json:"wall_type"`
}

func newGEXLevelResponse(l gex.Level) GEXLevelResponse {
	return GEXLevelResponse{
		Strike:     round(l.Strike, pricePlaces),
		Expiration: l.Expiration.Format(chain.DateLayout),
		CallOI:     l.CallOI,
		PutOI:      l.PutOI,
		CallGamma:  round(l.CallGamma, greekPlaces),
		PutGamma:   round(l.PutGamma, greekPlaces),
		CallGEX:    round(l.CallGEX, gexPlaces),
		PutGEX:     round(l.PutGEX, gexPlaces),
		NetGEX:     round(l.NetGEX, gexPlaces),
		WallType:   l.WallType(),
	}
}

func newGEXLevels(in []gex.Level) []GEXLevelResponse {
	out := make([]GEXLevelResponse, len(in))
	for i, l := range in {
		out[i] = newGEXLevelResponse(l)
	}
	return out
}

type GEXResponse struct {
	Ticker              string             `json:"ticker"`
	CurrentPrice        *float64           `json:"current_price"`
	Timestamp           string             `json:"timestamp"`
	NetGEX              *float64           `json:"net_gex"`
	Regime              string             `json:"regime"`
	DealerPositioning   string             `json:"dealer_positioning"`
	ZeroGammaLevel      *float64           `json:"zero_gamma_level"`
	LargestCallWall     GEXLevelResponse   `json:"largest_call_wall"`
	LargestPutWall      GEXLevelResponse   `json:"largest_put_wall"`
	ResistanceLevels    []*float64         `json:"resistance_levels"`
	SupportLevels       []*float64         `json:"support_levels"`
	TotalCallGEX        *float64           `json:"total_call_gex"`
	TotalPutGEX         *float64           `json:"total_put_gex"`
	StrikesAnalyzed     int                `json:"strikes_analyzed"`
	ExpirationsIncluded []string           `json:"expirations_included"`
	PricePosition       string             `json:"price_position"`
	Direction           string             `json:"direction"`
	RegimeSignal        string             `json:"regime_signal"`
	TopLevels           []GEXLevelResponse `json:"top_10_levels"`
	AllLevels           []GEXLevelResponse `json:"all_levels"`
}

func newGEXResponse(p *gex.Profile) GEXResponse {
	signal := p.Position(p.SpotPrice)
	return GEXResponse{
		Ticker:              p.Ticker,
		CurrentPrice:        round(p.SpotPrice, pricePlaces),
		Timestamp:           timestamp(p.AnalysisTime),
		NetGEX:              round(p.NetGEX, gexPlaces),
		Regime:              string(p.Regime),
		DealerPositioning:   p.DealerPositioning,
		ZeroGammaLevel:      round(p.ZeroGammaLevel, pricePlaces),
		LargestCallWall:     newGEXLevelResponse(p.LargestCallWall),
		LargestPutWall:      newGEXLevelResponse(p.LargestPutWall),
		ResistanceLevels:    roundAll(p.ResistanceLevels, pricePlaces),
		SupportLevels:       roundAll(p.SupportLevels, pricePlaces),
		TotalCallGEX:        round(p.TotalCallGEX, gexPlaces),
		TotalPutGEX:         round(p.TotalPutGEX, gexPlaces),
		StrikesAnalyzed:     p.StrikesAnalyzed(),
		ExpirationsIncluded: p.Expirations,
		PricePosition:       string(signal.Position),
		Direction:           signal.Direction,
		RegimeSignal:        signal.RegimeSignal,
		TopLevels:           newGEXLevels(p.TopLevels(topLevelsMax)),
		AllLevels:           newGEXLevels(p.Levels),
	}
}

type gexSummaryResponse struct {
	Ticker  string `json:"ticker"`
	Summary string `json:"summary"`
}

// Max Pain

type painResponse struct {
	CallPain  *float64 `json:"call_pain"`
	PutPain   *float64 `json:"put_pain"`
	TotalPain *float64 `json:"total_pain"`
}

// newPainByStrike keys the breakdown by the strike's shortest decimal form.
func newPainByStrike(r *maxpain.Result) map[string]painResponse {
	pains := make(map[string]painResponse, len(r.PainByStrike))
	for strike, p := range r.PainByStrike {
		pains[strconv.FormatFloat(strike, 'f', -1, 64)] = painResponse{
			CallPain:  round(p.CallPain, pricePlaces),
			PutPain:   round(p.PutPain, pricePlaces),
			TotalPain: round(p.TotalPain, pricePlaces),
		}
	}
	return pains
}

type MaxPainResponse struct {
	Symbol            string                  `json:"symbol"`
	Timestamp         string                  `json:"timestamp"`
	Expiration        string                  `json:"expiration"`
	CurrentPrice      *float64                `json:"current_price"`
	MaxPainStrike     *float64                `json:"max_pain_strike"`
	DistanceToMaxPain *float64                `json:"distance_to_max_pain"`
	DistancePct       *float64                `json:"distance_pct"`
	MaxPainValue      *float64                `json:"max_pain_value"`
	Bias              string                  `json:"bias"`
	Signal            string                  `json:"signal"`
	TotalCallOI       int64                   `json:"total_call_oi"`
	TotalPutOI        int64                   `json:"total_put_oi"`
	PutCallOIRatio    *float64                `json:"put_call_oi_ratio"`
	StrikesAnalyzed   int                     `json:"strikes_analyzed"`
	PainByStrike      map[string]painResponse `json:"pain_by_strike"`
}

func newMaxPainResponse(r *maxpain.Result) MaxPainResponse {
	return MaxPainResponse{
		Symbol:            r.Symbol,
		Timestamp:         timestamp(r.AnalysisTime),
		Expiration:        r.Expiration.Format(chain.DateLayout),
		CurrentPrice:      round(r.CurrentPrice, pricePlaces),
		MaxPainStrike:     round(r.MaxPainStrike, pricePlaces),
		DistanceToMaxPain: round(r.DistanceToMaxPain, pricePlaces),
		DistancePct:       round(r.DistancePct, pctPlaces),
		MaxPainValue:      round(r.MaxPainValue, pricePlaces),
		Bias:              string(r.Bias),
		Signal:            string(r.Signal),
		TotalCallOI:       r.TotalCallOI,
		TotalPutOI:        r.TotalPutOI,
		PutCallOIRatio:    roundPtr(r.PutCallOIRatio, pctPlaces),
		StrikesAnalyzed:   r.StrikesAnalyzed(),
		PainByStrike:      newPainByStrike(r),
	}
}

type maxPainBiasResponse struct {
	Symbol            string   `json:"symbol"`
	Bias              string   `json:"bias"`
	Signal            string   `json:"signal"`
	DistanceToMaxPain *float64 `json:"distance_to_max_pain"`
	DistancePct       *float64 `json:"distance_pct"`
	MaxPainStrike     *float64 `json:"max_pain_strike"`
	CurrentPrice      *float64 `json:"current_price"`
}

func newMaxPainBiasResponse(r *maxpain.Result) maxPainBiasResponse {
	return maxPainBiasResponse{
		Symbol:            r.Symbol,
		Bias:              string(r.Bias),
		Signal:            string(r.Signal),
		DistanceToMaxPain: round(r.DistanceToMaxPain, pricePlaces),
		DistancePct:       round(r.DistancePct, pctPlaces),
		MaxPainStrike:     round(r.MaxPainStrike, pricePlaces),
		CurrentPrice:      round(r.CurrentPrice, pricePlaces),
	}
}

type maxPainStrikesResponse struct {
	Symbol        string                  `json:"symbol"`
	Expiration    string                  `json:"expiration"`
	MaxPainStrike *float64                `json:"max_pain_strike"`
	PainByStrike  map[string]painResponse `json:"pain_by_strike"`
}

func newMaxPainStrikesResponse(r *maxpain.Result) maxPainStrikesResponse {
	return maxPainStrikesResponse{
		Symbol:        r.Symbol,
		Expiration:    r.Expiration.Format(chain.DateLayout),
		MaxPainStrike: round(r.MaxPainStrike, pricePlaces),
		PainByStrike:  newPainByStrike(r),
	}
}

// Options Flow

type unusualContractResponse struct {
	Ticker        string   `json:"ticker"`
	Type          string   `json:"type"`
	Strike        *float64 `json:"strike"`
	Expiration    string   `json:"expiration"`
	Volume        int64    `json:"volume"`
	OI            int64    `json:"oi"`
	VolumeOIRatio *float64 `json:"volume_oi_ratio"`
}

func newUnusualContracts(in []flow.UnusualContract) []unusualContractResponse {
	out := make([]unusualContractResponse, len(in))
	for i, c := range in {
		out[i] = unusualContractResponse{
			Ticker:        c.Ticker,
			Type:          string(c.Type),
			Strike:        round(c.Strike, pricePlaces),
			Expiration:    c.Expiration.Format(chain.DateLayout),
			Volume:        c.Volume,
			OI:            c.OpenInterest,
			VolumeOIRatio: round(c.VolumeOIRatio, pctPlaces),
		}
	}
	return out
}

// FlowResponse carries the top unusual contracts of each side; the counts
// cover every unusual contract found.
type FlowResponse struct {
	Symbol                  string                    `json:"symbol"`
	Timestamp               string                    `json:"timestamp"`
	PutCallRatio            *float64                  `json:"put_call_ratio"`
	PutVolume               *int64                    `json:"put_volume"`
	CallVolume              *int64                    `json:"call_volume"`
	PCRSignal               *string                   `json:"pcr_signal"`
	CallPremium             *float64                  `json:"call_premium"`
	PutPremium              *float64                  `json:"put_premium"`
	CallPremiumPct          *float64                  `json:"call_premium_pct"`
	PutPremiumPct           *float64                  `json:"put_premium_pct"`
	PremiumRatio            *float64                  `json:"premium_ratio"`
	PremiumSignal           *string                   `json:"premium_signal"`
	UnusualCallContracts    []unusualContractResponse `json:"unusual_call_contracts"`
	UnusualPutContracts     []unusualContractResponse `json:"unusual_put_contracts"`
	UnusualCallCount        *int                      `json:"unusual_call_count"`
	UnusualPutCount         *int                      `json:"unusual_put_count"`
	UnusualActivityDetected bool                      `json:"unusual_activity_detected"`
	UnusualSignal           *string                   `json:"unusual_signal"`
	OverallSignal           *string                   `json:"overall_signal"`
	SignalStrength          *string                   `json:"signal_strength"`
	Interpretation          string                    `json:"interpretation"`
}

func newFlowResponse(r *flow.Result) FlowResponse {
	return FlowResponse{
		Symbol:                  r.Symbol,
		Timestamp:               timestamp(r.AnalysisTime),
		PutCallRatio:            roundPtr(r.PCR.Ratio, ratioPlaces),
		PutVolume:               r.PCR.PutVolume,
		CallVolume:              r.PCR.CallVolume,
		PCRSignal:               stringPtr(r.PCR.Signal),
		CallPremium:             roundPtr(r.Premium.CallPremium, pricePlaces),
		PutPremium:              roundPtr(r.Premium.PutPremium, pricePlaces),
		CallPremiumPct:          roundPtr(r.Premium.CallPct, pctPlaces),
		PutPremiumPct:           roundPtr(r.Premium.PutPct, pctPlaces),
		PremiumRatio:            roundPtr(r.Premium.Ratio, ratioPlaces),
		PremiumSignal:           stringPtr(r.Premium.Signal),
		UnusualCallContracts:    newUnusualContracts(r.Unusual.Calls),
		UnusualPutContracts:     newUnusualContracts(r.Unusual.Puts),
		UnusualCallCount:        r.Unusual.CallCount,
		UnusualPutCount:         r.Unusual.PutCount,
		UnusualActivityDetected: r.Unusual.Detected,
		UnusualSignal:           stringPtr(r.Unusual.Signal),
		OverallSignal:           stringPtr(r.OverallSignal),
		SignalStrength:          stringPtr(r.SignalStrength),
		Interpretation:          r.Interpretation,
	}
}

type pcrResponse struct {
	Symbol       string   `json:"symbol"`
	PutCallRatio *float64 `json:"put_call_ratio"`
	CallVolume   *int64   `json:"call_volume"`
	PutVolume    *int64   `json:"put_volume"`
	Signal       *string  `json:"signal"`
	Timestamp    string   `json:"timestamp"`
}

func newPCRResponse(r *flow.Result) pcrResponse {
	return pcrResponse{
		Symbol:       r.Symbol,
		PutCallRatio: roundPtr(r.PCR.Ratio, ratioPlaces),
		CallVolume:   r.PCR.CallVolume,
		PutVolume:    r.PCR.PutVolume,
		Signal:       stringPtr(r.PCR.Signal),
		Timestamp:    timestamp(r.AnalysisTime),
	}
}

type premiumResponse struct {
	Symbol         string   `json:"symbol"`
	CallPremium    *float64 `json:"call_premium"`
	PutPremium     *float64 `json:"put_premium"`
	CallPremiumPct *float64 `json:"call_premium_pct"`
	PutPremiumPct  *float64 `json:"put_premium_pct"`
	PremiumRatio   *float64 `json:"premium_ratio"`
	Signal         *string  `json:"signal"`
	Timestamp      string   `json:"timestamp"`
}

func newPremiumResponse(r *flow.Result) premiumResponse {
	return premiumResponse{
		Symbol:         r.Symbol,
		CallPremium:    roundPtr(r.Premium.CallPremium, pricePlaces),
		PutPremium:     roundPtr(r.Premium.PutPremium, pricePlaces),
		CallPremiumPct: roundPtr(r.Premium.CallPct, pctPlaces),
		PutPremiumPct:  roundPtr(r.Premium.PutPct, pctPlaces),
		PremiumRatio:   roundPtr(r.Premium.Ratio, ratioPlaces),
		Signal:         stringPtr(r.Premium.Signal),
		Timestamp:      timestamp(r.AnalysisTime),
	}
}

type unusualResponse struct {
	Symbol               string                    `json:"symbol"`
	Detected             bool                      `json:"detected"`
	UnusualCallContracts *int                      `json:"unusual_call_contracts"`
	UnusualPutContracts  *int                      `json:"unusual_put_contracts"`
	TopCalls             []unusualContractResponse `json:"top_calls"`
	TopPuts              []unusualContractResponse `json:"top_puts"`
	Signal               *string                   `json:"signal"`
	Timestamp            string                    `json:"timestamp"`
}

func newUnusualResponse(r *flow.Result) unusualResponse {
	return unusualResponse{
		Symbol:               r.Symbol,
		Detected:             r.Unusual.Detected,
		UnusualCallContracts: r.Unusual.CallCount,
		UnusualPutContracts:  r.Unusual.PutCount,
		TopCalls:             newUnusualContracts(r.Unusual.Calls),
		TopPuts:              newUnusualContracts(r.Unusual.Puts),
		Signal:               stringPtr(r.Unusual.Signal),
		Timestamp:            timestamp(r.AnalysisTime),
	}
}

// Greeks

type greeksResponse struct {
	Delta *float64 `json:"delta"`
	Gamma *float64 `json:"gamma"`
	Theta *float64 `json:"theta"`
	Vega  *float64 `json:"vega"`
	Rho   *float64 `json:"rho"`
}

func newGreeksResponse(g chain.Greeks) greeksResponse {
	return greeksResponse{
		Delta: roundPtr(g.Delta, greekPlaces),
		Gamma: roundPtr(g.Gamma, greekPlaces),
		Theta: roundPtr(g.Theta, greekPlaces),
		Vega:  roundPtr(g.Vega, greekPlaces),
		Rho:   roundPtr(g.Rho, greekPlaces),
	}
}

type atmResponse struct {
	Symbol       string         `json:"symbol"`
	Timestamp    string         `json:"timestamp"`
	CurrentPrice *float64       `json:"current_price"`
	ATMStrike    *float64       `json:"atm_strike"`
	Expiration   string         `json:"expiration"`
	CallGreeks   greeksResponse `json:"call_greeks"`
	PutGreeks    greeksResponse `json:"put_greeks"`
	CallIV       *float64       `json:"call_iv"`
	PutIV        *float64       `json:"put_iv"`
}

func newATMResponse(a *greeks.ATM) atmResponse {
	return atmResponse{
		Symbol:       a.Symbol,
		Timestamp:    timestamp(a.AnalysisTime),
		CurrentPrice: round(a.CurrentPrice, pricePlaces),
		ATMStrike:    round(a.Strike(), pricePlaces),
		Expiration:   a.Call.ExpirationDate(),
		CallGreeks:   newGreeksResponse(a.Call.Greeks),
		PutGreeks:    newGreeksResponse(a.Put.Greeks),
		CallIV:       roundPtr(a.Call.ImpliedVolatility, greekPlaces),
		PutIV:        roundPtr(a.Put.ImpliedVolatility, greekPlaces),
	}
}

// newATMGreekResponse renders the single-Greek quick views.
func newATMGreekResponse(a *greeks.ATM, greek string) map[string]any {
	out := map[string]any{
		"symbol":     a.Symbol,
		"atm_strike": round(a.Strike(), pricePlaces),
	}
	switch greek {
	case "delta":
		out["call_delta"] = roundPtr(a.Call.Greeks.Delta, greekPlaces)
		out["put_delta"] = roundPtr(a.Put.Greeks.Delta, greekPlaces)
	case "gamma":
		out["call_gamma"] = roundPtr(a.Call.Greeks.Gamma, greekPlaces)
		out["put_gamma"] = roundPtr(a.Put.Greeks.Gamma, greekPlaces)
	case "theta":
		out["call_theta"] = roundPtr(a.Call.Greeks.Theta, greekPlaces)
		out["put_theta"] = roundPtr(a.Put.Greeks.Theta, greekPlaces)
		out["daily_decay"] = roundPtr(a.DailyDecay(), greekPlaces)
	}
	return out
}

type portfolioRequest struct {
	Positions []greeks.Position `json:"positions"`
}

type totalsResponse struct {
	Delta *float64 `json:"delta"`
	Gamma *float64 `json:"gamma"`
	Theta *float64 `json:"theta"`
	Vega  *float64 `json:"vega"`
	Rho   *float64 `json:"rho"`
}

func newTotalsResponse(t greeks.Totals) totalsResponse {
	return totalsResponse{
		Delta: round(t.Delta, 2),
		Gamma: round(t.Gamma, 4),
		Theta: round(t.Theta, 2),
		Vega:  round(t.Vega, 2),
		Rho:   round(t.Rho, 2),
	}
}

type positionResponse struct {
	Symbol     string   `json:"symbol"`
	Strike     *float64 `json:"strike"`
	Type       string   `json:"type"`
	Quantity   int      `json:"quantity"`
	Expiration string   `json:"expiration,omitempty"`
	totalsResponse
}

type portfolioResponse struct {
	Timestamp       string             `json:"timestamp"`
	PortfolioGreeks totalsResponse     `json:"portfolio_greeks"`
	Regime          greeks.Regime      `json:"regime"`
	Positions       []positionResponse `json:"positions"`
	Skipped         []greeks.Position  `json:"skipped"`
}

func newPortfolioResponse(p *greeks.Portfolio) portfolioResponse {
	positions := make([]positionResponse, len(p.Positions))
	for i, pg := range p.Positions {
		positions[i] = positionResponse{
			Symbol:         pg.Symbol,
			Strike:         round(pg.Strike, pricePlaces),
			Type:           string(pg.Type),
			Quantity:       pg.Quantity,
			Expiration:     pg.Expiration,
			totalsResponse: newTotalsResponse(pg.Totals),
		}
	}
	skipped := p.Skipped
	if skipped == nil {
		skipped = []greeks.Position{}
	}
	return portfolioResponse{
		Timestamp:       timestamp(p.AnalysisTime),
		PortfolioGreeks: newTotalsResponse(p.Greeks),
		Regime:          p.Regime,
		Positions:       positions,
		Skipped:         skipped,
	}
}

// Decision

type decisionResponse struct {
	Symbol       string           `json:"symbol"`
	Timestamp    string           `json:"timestamp"`
	CurrentPrice *float64         `json:"current_price"`
	Setup        string           `json:"setup"`
	Strategy     string           `json:"strategy"`
	Confidence   string           `json:"confidence"`
	Reasons      []string         `json:"reasons"`
	GEX          *GEXResponse     `json:"gex"`
	MaxPain      *MaxPainResponse `json:"max_pain"`
	Flow         *FlowResponse    `json:"flow"`
}

func newDecisionResponse(r *analysis.Report) decisionResponse {
	d := r.Decision
	out := decisionResponse{
		Symbol:       d.Symbol,
		Timestamp:    timestamp(d.AnalysisTime),
		CurrentPrice: round(d.Price, pricePlaces),
		Setup:        string(d.Setup),
		Strategy:     d.Strategy,
		Confidence:   string(d.Confidence),
		Reasons:      d.Reasons,
	}
	if r.GEX != nil {
		g := newGEXResponse(r.GEX)
		out.GEX = &g
	}
	if r.MaxPain != nil {
		m := newMaxPainResponse(r.MaxPain)
		out.MaxPain = &m
	}
	if r.Flow != nil {
		f := newFlowResponse(r.Flow)
		out.Flow = &f
	}
	return out
}

type reloadResponse struct {
	PreviousDate       string `json:"previous_date"`
	NewDate            string `json:"new_date"`
	LoadedAt           string `json:"loaded_at"`
	TickersLoaded      int    `json:"tickers_loaded"`
	CacheEntriesPurged int    `json:"cache_entries_purged"`
}

// Present converts an analysis result to the rounded shape the API serves.
// Other values are returned unchanged.
func Present(v any) any {
	switch r := v.(type) {
	case *gex.Profile:
		return newGEXResponse(r)
	case *maxpain.Result:
		return newMaxPainResponse(r)
	case *flow.Result:
		return newFlowResponse(r)
	case *greeks.ATM:
		return newATMResponse(r)
	case *greeks.Portfolio:
		return newPortfolioResponse(r)
	case *analysis.Report:
		return newDecisionResponse(r)
	default:
		return v
	}
}
