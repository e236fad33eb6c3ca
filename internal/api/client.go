package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dgnsrekt/options-positioning/internal/chain"
	"github.com/dgnsrekt/options-positioning/internal/marketdata"
)

const (
	DefaultBaseURL = "https://api.polygon.io"
	// snapshotPageLimit is the largest page the options snapshot serves.
	snapshotPageLimit = 250
	maxPages          = 100
)

// HTTPClient is the Polygon.io market data collaborator.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	limiter    *rate.Limiter
	retryCount int
	retryDelay time.Duration
	logger     *zap.Logger
}

var _ marketdata.Provider = (*HTTPClient)(nil)

// NewClient creates a Polygon client limited to ratePerSec requests.
func NewClient(baseURL, apiKey string, ratePerSec int, timeout, retryDelay time.Duration, retryCount int, logger *zap.Logger) *HTTPClient {
	transport := &http.Transport{
		MaxIdleConns:       100,
		MaxConnsPerHost:    10,
		IdleConnTimeout:    90 * time.Second,
		DisableCompression: false,
	}
	if ratePerSec < 1 {
		ratePerSec = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &HTTPClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		limiter:    rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec*2),
		retryCount: retryCount,
		retryDelay: retryDelay,
		logger:     logger,
	}
}

func (c *HTTPClient) Name() string { return "polygon" }

type prevCloseResponse struct {
	Status  string `json:"status"`
	Results []struct {
		Close float64 `json:"c"`
	} `json:"results"`
}

// GetQuote returns the previous session close as the spot price.
func (c *HTTPClient) GetQuote(ctx context.Context, symbol string) (chain.Quote, error) {
	symbol = strings.ToUpper(symbol)
	u := fmt.Sprintf("%s/v2/aggs/ticker/%s/prev", c.baseURL, url.PathEscape(symbol))

	var resp prevCloseResponse
	if err := c.getJSON(ctx, u, &resp); err != nil {
		return chain.Quote{}, fmt.Errorf("quote %s: %w", symbol, err)
	}
	if len(resp.Results) == 0 || resp.Results[0].Close <= 0 {
		return chain.Quote{}, fmt.Errorf("%w: no price for %s", chain.ErrNotFound, symbol)
	}
	return chain.Quote{Symbol: symbol, SpotPrice: resp.Results[0].Close}, nil
}

type snapshotResponse struct {
	Status  string            `json:"status"`
	Results []optionsSnapshot `json:"results"`
	NextURL string            `json:"next_url"`
}

type optionsSnapshot struct {
	Details struct {
		Ticker         string   `json:"ticker"`
		ContractType   string   `json:"contract_type"`
		StrikePrice    *float64 `json:"strike_price"`
		ExpirationDate string   `json:"expiration_date"`
	} `json:"details"`
	Greeks            *chain.RawGreeks `json:"greeks"`
	ImpliedVolatility *float64         `json:"implied_volatility"`
	OpenInterest      *float64         `json:"open_interest"`
	Day               *struct {
		Volume *float64 `json:"volume"`
		Close  *float64 `json:"close"`
	} `json:"day"`
	UnderlyingAsset struct {
		Ticker string `json:"ticker"`
	} `json:"underlying_asset"`
}

func (s optionsSnapshot) raw(symbol string) chain.RawContract {
	r := chain.RawContract{
		Ticker:            s.Details.Ticker,
		Underlying:        s.UnderlyingAsset.Ticker,
		ContractType:      s.Details.ContractType,
		StrikePrice:       s.Details.StrikePrice,
		ExpirationDate:    s.Details.ExpirationDate,
		OpenInterest:      s.OpenInterest,
		ImpliedVolatility: s.ImpliedVolatility,
		Greeks:            s.Greeks,
	}
	if r.Underlying == "" {
		r.Underlying = symbol
	}
	if s.Day != nil {
		r.Volume = s.Day.Volume
		r.LastPrice = s.Day.Close
	}
	return r
}

// GetChain pages through the options chain snapshot of an underlying.
func (c *HTTPClient) GetChain(ctx context.Context, q marketdata.ChainQuery) ([]chain.Contract, error) {
	symbol := strings.ToUpper(q.Symbol)
	next := c.snapshotURL(symbol, q)

	var raws []chain.RawContract
	for page := 0; next != "" && page < maxPages; page++ {
		var resp snapshotResponse
		if err := c.getJSON(ctx, next, &resp); err != nil {
			return nil, fmt.Errorf("chain %s page %d: %w", symbol, page, err)
		}
		for _, s := range resp.Results {
			raws = append(raws, s.raw(symbol))
		}
		next = resp.NextURL
	}
	if next != "" {
		c.logger.Warn("chain truncated", zap.String("symbol", symbol), zap.Int("pages", maxPages))
	}

	if len(raws) == 0 {
		return nil, fmt.Errorf("%w: no options contracts for %s", chain.ErrNotFound, symbol)
	}

	contracts, skipped := chain.NormalizeAll(raws, c.logger)
	c.logger.Debug("fetched chain",
		zap.String("symbol", symbol),
		zap.Int("contracts", len(contracts)),
		zap.Int("skipped", skipped))

	// the upstream filter is by date string; re-apply against the caller's clock
	contracts = q.Filter(contracts)
	if len(contracts) == 0 {
		return nil, fmt.Errorf("%w: no usable contracts for %s", chain.ErrInsufficientData, symbol)
	}
	return contracts, nil
}

func (c *HTTPClient) snapshotURL(symbol string, q marketdata.ChainQuery) string {
	params := url.Values{}
	params.Set("limit", fmt.Sprint(snapshotPageLimit))

	switch {
	case !q.Expiration.IsZero():
		params.Set("expiration_date", q.Expiration.Format(chain.DateLayout))
	case q.Window != nil:
		asOf := q.AsOf
		if asOf.IsZero() {
			asOf = time.Now()
		}
		params.Set("expiration_date.gte", asOf.AddDate(0, 0, q.Window.MinDays).Format(chain.DateLayout))
		params.Set("expiration_date.lte", asOf.AddDate(0, 0, q.Window.MaxDays).Format(chain.DateLayout))
	}

	return fmt.Sprintf("%s/v3/snapshot/options/%s?%s", c.baseURL, url.PathEscape(symbol), params.Encode())
}

// getJSON performs a rate limited GET, retrying transport failures, 429s and
// 5xx responses with exponential backoff.
func (c *HTTPClient) getJSON(ctx context.Context, u string, out any) error {
	var lastErr error
	for attempt := 0; attempt <= c.retryCount; attempt++ {
		if attempt > 0 {
			delay := c.retryDelay * time.Duration(1<<(attempt-1)) // Exponential backoff
			c.logger.Debug("retrying request", zap.Int("attempt", attempt), zap.Duration("delay", delay))

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Accept", "application/json")

		c.logger.Debug("requesting", zap.String("url", u))
		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		// Read body before closing for error messages
		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()

		if readErr != nil {
			lastErr = readErr
			continue
		}

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return chain.ErrNotFound
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return ErrAuthFailed
		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = ErrRateLimited
			continue
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			continue
		case resp.StatusCode != http.StatusOK:
			return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
		}

		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// MaskKey hides all but the last four characters of an API key.
func MaskKey(key string) string {
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", len(key)-4) + key[len(key)-4:]
}
