package gex

// PricePosition locates the current price against the gamma walls.
type PricePosition string

const (
	BelowSupport    PricePosition = "BELOW_SUPPORT"
	AboveResistance PricePosition = "ABOVE_RESISTANCE"
	BelowZeroGamma  PricePosition = "BELOW_ZERO_GAMMA"
	AboveZeroGamma  PricePosition = "ABOVE_ZERO_GAMMA"
	AtZeroGamma     PricePosition = "AT_ZERO_GAMMA"
)

// Signal is the trading read of a profile.
type Signal struct {
	Position     PricePosition `json:"price_position"`
	Direction    string        `json:"signal"`
	RegimeSignal string        `json:"regime_signal"`
}

// Position derives the signal for price against the profile. The put wall is
// checked before the call wall, so a price under both reads as support.
func (p *Profile) Position(price float64) Signal {
	var s Signal
	switch {
	case price < p.LargestPutWall.Strike:
		s.Position, s.Direction = BelowSupport, "BULLISH"
	case price > p.LargestCallWall.Strike:
		s.Position, s.Direction = AboveResistance, "BEARISH"
	case price < p.ZeroGammaLevel:
		s.Position, s.Direction = BelowZeroGamma, "NEUTRAL_BEARISH"
	case price > p.ZeroGammaLevel:
		s.Position, s.Direction = AboveZeroGamma, "NEUTRAL_BULLISH"
	default:
		s.Position, s.Direction = AtZeroGamma, "NEUTRAL"
	}

	switch p.Regime {
	case RegimePositive:
		s.RegimeSignal = "STABILIZING"
	case RegimeNegative:
		s.RegimeSignal = "VOLATILE"
	default:
		s.RegimeSignal = "NEUTRAL"
	}
	return s
}
