package chain

import (
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"
)

// RawGreeks is the provider's Greeks object; any member may be absent.
type RawGreeks struct {
	Delta *float64 `json:"delta,omitempty"`
	Gamma *float64 `json:"gamma,omitempty"`
	Theta *float64 `json:"theta,omitempty"`
	Vega  *float64 `json:"vega,omitempty"`
	Rho   *float64 `json:"rho,omitempty"`
}

// RawContract is a provider record before validation. Numeric fields are
// pointers so that a missing field can be told apart from a zero.
type RawContract struct {
	Ticker            string     `json:"ticker"`
	Underlying        string     `json:"underlying_ticker"`
	ContractType      string     `json:"contract_type"`
	StrikePrice       *float64   `json:"strike_price"`
	ExpirationDate    string     `json:"expiration_date"`
	OpenInterest      *float64   `json:"open_interest,omitempty"`
	Volume            *float64   `json:"volume,omitempty"`
	LastPrice         *float64   `json:"last_price,omitempty"`
	ImpliedVolatility *float64   `json:"implied_volatility,omitempty"`
	Greeks            *RawGreeks `json:"greeks,omitempty"`
}

// Normalize validates a raw record and coerces it into a Contract.
//
// Strike, type and expiration are required. Missing open interest, volume and
// last price default to 0; negative or non-finite values are clamped to 0.
// Missing Greeks stay nil.
func Normalize(raw RawContract) (Contract, error) {
	if raw.StrikePrice == nil || !finite(*raw.StrikePrice) || *raw.StrikePrice <= 0 {
		return Contract{}, fmt.Errorf("%w: %s: strike must be positive", ErrInvalidContract, raw.Ticker)
	}

	typ, ok := ParseContractType(raw.ContractType)
	if !ok {
		return Contract{}, fmt.Errorf("%w: %s: unknown contract type %q", ErrInvalidContract, raw.Ticker, raw.ContractType)
	}

	exp, err := time.Parse(DateLayout, strings.TrimSpace(raw.ExpirationDate))
	if err != nil {
		return Contract{}, fmt.Errorf("%w: %s: expiration %q", ErrInvalidContract, raw.Ticker, raw.ExpirationDate)
	}

	c := Contract{
		Ticker:       raw.Ticker,
		Underlying:   strings.ToUpper(raw.Underlying),
		Strike:       *raw.StrikePrice,
		Expiration:   exp,
		Type:         typ,
		OpenInterest: nonNegativeInt(raw.OpenInterest),
		Volume:       nonNegativeInt(raw.Volume),
		LastPrice:    nonNegative(raw.LastPrice),
	}
	if raw.ImpliedVolatility != nil && finite(*raw.ImpliedVolatility) {
		iv := *raw.ImpliedVolatility
		c.ImpliedVolatility = &iv
	}
	if raw.Greeks != nil {
		c.Greeks = Greeks{
			Delta: finiteCopy(raw.Greeks.Delta),
			Gamma: finiteCopy(raw.Greeks.Gamma),
			Theta: finiteCopy(raw.Greeks.Theta),
			Vega:  finiteCopy(raw.Greeks.Vega),
			Rho:   finiteCopy(raw.Greeks.Rho),
		}
	}
	return c, nil
}

// NormalizeAll normalizes every record, dropping invalid ones with a warning.
// It returns the kept contracts and the number skipped.
func NormalizeAll(raws []RawContract, logger *zap.Logger) ([]Contract, int) {
	if logger == nil {
		logger = zap.NewNop()
	}

	out := make([]Contract, 0, len(raws))
	skipped := 0
	for _, raw := range raws {
		c, err := Normalize(raw)
		if err != nil {
			skipped++
			logger.Warn("skipping contract", zap.String("ticker", raw.Ticker), zap.Error(err))
			continue
		}
		out = append(out, c)
	}
	return out, skipped
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func finiteCopy(v *float64) *float64 {
	if v == nil || !finite(*v) {
		return nil
	}
	out := *v
	return &out
}

func nonNegative(v *float64) float64 {
	if v == nil || !finite(*v) || *v < 0 {
		return 0
	}
	return *v
}

func nonNegativeInt(v *float64) int64 {
	return int64(math.Round(nonNegative(v)))
}

// Raw converts a contract back into its provider record form.
func (c Contract) Raw() RawContract {
	strike := c.Strike
	oi := float64(c.OpenInterest)
	vol := float64(c.Volume)
	last := c.LastPrice
	return RawContract{
		Ticker:            c.Ticker,
		Underlying:        c.Underlying,
		ContractType:      string(c.Type),
		StrikePrice:       &strike,
		ExpirationDate:    c.ExpirationDate(),
		OpenInterest:      &oi,
		Volume:            &vol,
		LastPrice:         &last,
		ImpliedVolatility: finiteCopy(c.ImpliedVolatility),
		Greeks: &RawGreeks{
			Delta: finiteCopy(c.Greeks.Delta),
			Gamma: finiteCopy(c.Greeks.Gamma),
			Theta: finiteCopy(c.Greeks.Theta),
			Vega:  finiteCopy(c.Greeks.Vega),
			Rho:   finiteCopy(c.Greeks.Rho),
		},
	}
}
