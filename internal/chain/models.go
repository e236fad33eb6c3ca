package chain

import (
	"strings"
	"time"
)

// ContractType is the option right.
type ContractType string

const (
	Call ContractType = "call"
	Put  ContractType = "put"
)

// ParseContractType accepts "call"/"put" in any case, plus the "C"/"P" shorthand.
func ParseContractType(s string) (ContractType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "call", "c":
		return Call, true
	case "put", "p":
		return Put, true
	default:
		return "", false
	}
}

// SharesPerContract is the equity option contract multiplier.
const SharesPerContract = 100

// DateLayout is the wire format for expiration dates.
const DateLayout = "2006-01-02"

// Greeks holds provider-computed sensitivities. A nil field means the provider
// did not report it, which is distinct from a reported zero.
type Greeks struct {
	Delta *float64 `json:"delta"`
	Gamma *float64 `json:"gamma"`
	Theta *float64 `json:"theta"`
	Vega  *float64 `json:"vega"`
	Rho   *float64 `json:"rho"`
}

// Value returns the dereferenced Greek or 0 when unknown.
func Value(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

// Contract is a normalized, per-contract snapshot. Treat as immutable.
type Contract struct {
	Ticker            string       `json:"ticker"`
	Underlying        string       `json:"underlying"`
	Strike            float64      `json:"strike"`
	Expiration        time.Time    `json:"expiration"`
	Type              ContractType `json:"type"`
	OpenInterest      int64        `json:"open_interest"`
	Volume            int64        `json:"volume"`
	LastPrice         float64      `json:"last_price"`
	ImpliedVolatility *float64     `json:"implied_volatility"`
	Greeks            Greeks       `json:"greeks"`
}

// IsCall reports whether the contract is a call.
func (c Contract) IsCall() bool { return c.Type == Call }

// IsPut reports whether the contract is a put.
func (c Contract) IsPut() bool { return c.Type == Put }

// ExpirationDate formats the expiration as YYYY-MM-DD.
func (c Contract) ExpirationDate() string { return c.Expiration.Format(DateLayout) }

// Quote is the underlying's spot price at analysis time.
type Quote struct {
	Symbol    string  `json:"symbol"`
	SpotPrice float64 `json:"spot_price"`
}

// Split partitions contracts into calls and puts, preserving order.
func Split(contracts []Contract) (calls, puts []Contract) {
	for _, c := range contracts {
		switch c.Type {
		case Call:
			calls = append(calls, c)
		case Put:
			puts = append(puts, c)
		}
	}
	return calls, puts
}

// DaysUntil returns whole calendar days from asOf to the contract's expiration,
// comparing dates only.
func DaysUntil(asOf, expiration time.Time) int {
	a := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, time.UTC)
	e := time.Date(expiration.Year(), expiration.Month(), expiration.Day(), 0, 0, 0, 0, time.UTC)
	return int(e.Sub(a).Hours() / 24)
}

// Window bounds expirations in whole days from an analysis date, inclusive.
type Window struct {
	MinDays int `json:"min_days"`
	MaxDays int `json:"max_days"`
}

// Contains reports whether exp falls in the window as seen from asOf.
func (w Window) Contains(asOf, exp time.Time) bool {
	days := DaysUntil(asOf, exp)
	return days >= w.MinDays && days <= w.MaxDays
}
