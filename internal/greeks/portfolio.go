package greeks

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/options-positioning/internal/chain"
)

const (
	deltaThreshold = 100
	gammaThreshold = 0.5
	thetaThreshold = 50
)

// Position is one holding. Negative quantity is short.
type Position struct {
	Symbol   string             `json:"symbol" yaml:"symbol"`
	Strike   float64            `json:"strike" yaml:"strike"`
	Type     chain.ContractType `json:"type" yaml:"type"`
	Quantity int                `json:"quantity" yaml:"quantity"`
	// Expiration pins the contract; empty matches the nearest listed one.
	Expiration string `json:"expiration,omitempty" yaml:"expiration,omitempty"`
}

// Normalized returns the position with its symbol upper-cased and the type
// parsed. ok is false for an unknown type.
func (p Position) Normalized() (Position, bool) {
	typ, ok := chain.ParseContractType(string(p.Type))
	p.Type = typ
	p.Symbol = strings.ToUpper(strings.TrimSpace(p.Symbol))
	return p, ok
}

// Totals is a set of aggregated sensitivities.
type Totals struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
	Rho   float64 `json:"rho"`
}

func (t *Totals) add(o Totals) {
	t.Delta += o.Delta
	t.Gamma += o.Gamma
	t.Theta += o.Theta
	t.Vega += o.Vega
	t.Rho += o.Rho
}

// PositionGreeks is one position's scaled contribution.
type PositionGreeks struct {
	Position
	Totals
}

// Regime classifies portfolio delta, gamma and theta.
type Regime struct {
	Delta string `json:"delta"`
	Gamma string `json:"gamma"`
	Theta string `json:"theta"`
}

// Portfolio is the aggregated result.
type Portfolio struct {
	AnalysisTime time.Time
	Greeks       Totals
	Regime       Regime
	Positions    []PositionGreeks
	// Skipped lists positions whose contract could not be resolved.
	Skipped []Position
}

// Scale returns a position's contribution. Delta and gamma are per share and
// get the contract multiplier; theta, vega and rho are already per contract.
// Unknown Greeks count as 0.
func Scale(g chain.Greeks, quantity int) Totals {
	q := float64(quantity)
	return Totals{
		Delta: chain.Value(g.Delta) * q * chain.SharesPerContract,
		Gamma: chain.Value(g.Gamma) * q * chain.SharesPerContract,
		Theta: chain.Value(g.Theta) * q,
		Vega:  chain.Value(g.Vega) * q,
		Rho:   chain.Value(g.Rho) * q,
	}
}

// Aggregate sums position Greeks. contracts[i] is the contract resolved for
// positions[i]; a nil entry skips that position with a warning.
func Aggregate(positions []Position, contracts []*chain.Contract, asOf time.Time, logger *zap.Logger) *Portfolio {
	if logger == nil {
		logger = zap.NewNop()
	}
	if asOf.IsZero() {
		asOf = time.Now()
	}

	p := &Portfolio{AnalysisTime: asOf, Positions: []PositionGreeks{}}
	for i, pos := range positions {
		var c *chain.Contract
		if i < len(contracts) {
			c = contracts[i]
		}
		if c == nil {
			logger.Warn("could not resolve contract",
				zap.String("symbol", pos.Symbol),
				zap.Float64("strike", pos.Strike),
				zap.String("type", string(pos.Type)))
			p.Skipped = append(p.Skipped, pos)
			continue
		}

		t := Scale(c.Greeks, pos.Quantity)
		p.Greeks.add(t)
		p.Positions = append(p.Positions, PositionGreeks{Position: pos, Totals: t})
	}

	p.Regime = Regime{
		Delta: classifyDelta(p.Greeks.Delta),
		Gamma: classifyGamma(p.Greeks.Gamma),
		Theta: classifyTheta(p.Greeks.Theta),
	}
	return p
}

func classifyDelta(v float64) string {
	switch {
	case v > deltaThreshold:
		return "LONG_BIASED"
	case v < -deltaThreshold:
		return "SHORT_BIASED"
	default:
		return "DELTA_NEUTRAL"
	}
}

func classifyGamma(v float64) string {
	switch {
	case v > gammaThreshold:
		return "POSITIVE_GAMMA"
	case v < -gammaThreshold:
		return "NEGATIVE_GAMMA"
	default:
		return "GAMMA_NEUTRAL"
	}
}

func classifyTheta(v float64) string {
	switch {
	case v > thetaThreshold:
		return "POSITIVE_THETA"
	case v < -thetaThreshold:
		return "NEGATIVE_THETA"
	default:
		return "THETA_NEUTRAL"
	}
}
