package data

import (
	"time"

	"github.com/dgnsrekt/options-positioning/internal/marketdata"
)

const (
	chainFile = "chain.jsonl"
	quoteFile = "quote.json"
)

// DataLoader serves chain snapshots recorded for one trading date.
type DataLoader interface {
	marketdata.Provider

	// Date is the trading date the snapshots were recorded on.
	Date() string

	// AsOf is the analysis clock for the loaded date.
	AsOf() time.Time

	// Tickers returns the loaded underlyings, sorted.
	Tickers() []string

	// Close releases any resources
	Close() error
}

// QuoteRecord is the on-disk layout of quote.json.
type QuoteRecord struct {
	Symbol    string  `json:"symbol"`
	SpotPrice float64 `json:"spot_price"`
}
