package flow

// PCRSignal classifies the put/call volume ratio. It is read contrarian:
// extreme fear is a buy and extreme greed is a sell.
type PCRSignal string

const (
	PCRExtremeFearBuy   PCRSignal = "EXTREME_FEAR_BUY"
	PCRBearish          PCRSignal = "BEARISH"
	PCRExtremeGreedSell PCRSignal = "EXTREME_GREED_SELL"
	PCRBullish          PCRSignal = "BULLISH"
	PCRNeutral          PCRSignal = "NEUTRAL"
)

// PremiumSignal classifies where premium dollars went.
type PremiumSignal string

const (
	PremiumStrongBullish PremiumSignal = "STRONG_BULLISH"
	PremiumBullish       PremiumSignal = "BULLISH"
	PremiumStrongBearish PremiumSignal = "STRONG_BEARISH"
	PremiumBearish       PremiumSignal = "BEARISH"
	PremiumNeutral       PremiumSignal = "NEUTRAL"
)

// UnusualSignal classifies the balance of unusual contracts.
type UnusualSignal string

const (
	UnusualBullishSweep UnusualSignal = "BULLISH_SWEEP"
	UnusualBearishSweep UnusualSignal = "BEARISH_SWEEP"
	UnusualHighActivity UnusualSignal = "HIGH_ACTIVITY"
	UnusualNormal       UnusualSignal = "NORMAL"
)

// Direction is the fused flow call.
type Direction string

const (
	Bullish Direction = "BULLISH"
	Bearish Direction = "BEARISH"
	Neutral Direction = "NEUTRAL"
)

// Strength grades a fused direction.
type Strength string

const (
	Strong   Strength = "STRONG"
	Moderate Strength = "MODERATE"
	Weak     Strength = "WEAK"
)

const (
	pcrWeight     = 1
	premiumWeight = 2
	unusualWeight = 2
	// a direction must beat the other by more than this
	fusionMargin = 1
	strongWeight = 4
)

func classifyPCR(ratio float64) PCRSignal {
	switch {
	case ratio > 1.5:
		return PCRExtremeFearBuy
	case ratio > 1.0:
		return PCRBearish
	case ratio < 0.5:
		return PCRExtremeGreedSell
	case ratio < 0.7:
		return PCRBullish
	default:
		return PCRNeutral
	}
}

func classifyPremium(callPct, putPct float64) PremiumSignal {
	switch {
	case callPct > 70:
		return PremiumStrongBullish
	case callPct > 60:
		return PremiumBullish
	case putPct > 70:
		return PremiumStrongBearish
	case putPct > 60:
		return PremiumBearish
	default:
		return PremiumNeutral
	}
}

func classifyUnusual(calls, puts int) UnusualSignal {
	switch {
	case calls > puts*2:
		return UnusualBullishSweep
	case puts > calls*2:
		return UnusualBearishSweep
	case calls > 5 || puts > 5:
		return UnusualHighActivity
	default:
		return UnusualNormal
	}
}

// Fuse combines the three component signals into one weighted direction.
// Nil components cast no vote.
func Fuse(pcr *PCRSignal, premium *PremiumSignal, unusual *UnusualSignal) (Direction, Strength) {
	var bull, bear int

	if pcr != nil {
		switch *pcr {
		case PCRExtremeFearBuy, PCRBullish:
			bull += pcrWeight
		case PCRExtremeGreedSell, PCRBearish:
			bear += pcrWeight
		}
	}
	if premium != nil {
		switch *premium {
		case PremiumStrongBullish, PremiumBullish:
			bull += premiumWeight
		case PremiumStrongBearish, PremiumBearish:
			bear += premiumWeight
		}
	}
	if unusual != nil {
		switch *unusual {
		case UnusualBullishSweep:
			bull += unusualWeight
		case UnusualBearishSweep:
			bear += unusualWeight
		}
	}

	switch {
	case bull > bear+fusionMargin:
		return Bullish, strength(bull)
	case bear > bull+fusionMargin:
		return Bearish, strength(bear)
	default:
		return Neutral, Weak
	}
}

func strength(weight int) Strength {
	if weight >= strongWeight {
		return Strong
	}
	return Moderate
}
