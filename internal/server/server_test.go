package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/options-positioning/internal/analysis"
	polygon "github.com/dgnsrekt/options-positioning/internal/api"
	"github.com/dgnsrekt/options-positioning/internal/chain"
	"github.com/dgnsrekt/options-positioning/internal/data"
	"github.com/dgnsrekt/options-positioning/internal/maxpain"
	"github.com/dgnsrekt/options-positioning/internal/ws"
)

const (
	fixtureDate = "2025-11-03"
	nextDate    = "2025-11-04"
)

func ptr(v float64) *float64 { return &v }

func contract(typ chain.ContractType, strike float64, oi, volume int64, last, gamma, delta, theta float64) chain.Contract {
	return chain.Contract{
		Ticker:       fmt.Sprintf("O:SPY251107%s%08.0f", strings.ToUpper(string(typ[:1])), strike*1000),
		Underlying:   "SPY",
		Strike:       strike,
		Expiration:   time.Date(2025, 11, 7, 0, 0, 0, 0, time.UTC),
		Type:         typ,
		OpenInterest: oi,
		Volume:       volume,
		LastPrice:    last,
		Greeks:       chain.Greeks{Gamma: ptr(gamma), Delta: ptr(delta), Theta: ptr(theta)},
	}
}

func spyChain() []chain.Contract {
	return []chain.Contract{
		contract(chain.Call, 95, 500, 300, 6.0, 0.05, 0.8, -0.10),
		contract(chain.Call, 100, 1000, 900, 2.5, 0.05, 0.5, -0.20),
		contract(chain.Call, 105, 800, 600, 0.8, 0.05, 0.2, -0.10),
		contract(chain.Put, 95, 700, 200, 0.7, 0.04, -0.2, -0.10),
		contract(chain.Put, 100, 900, 400, 2.2, 0.04, -0.5, -0.20),
		contract(chain.Put, 105, 300, 100, 5.5, 0.04, -0.8, -0.10),
	}
}

type testEnv struct {
	server   *httptest.Server
	reloader *ReloadManager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	w := data.NewWriter(dir)
	if _, err := w.WriteSnapshot(fixtureDate, chain.Quote{Symbol: "SPY", SpotPrice: 100}, spyChain()); err != nil {
		t.Fatal(err)
	}

	// LATE only lists an expiration outside the default window
	late := contract(chain.Call, 10, 100, 5, 1, 0.1, 0.5, -0.1)
	late.Underlying = "LATE"
	late.Expiration = time.Date(2026, 6, 19, 0, 0, 0, 0, time.UTC)
	if _, err := w.WriteSnapshot(fixtureDate, chain.Quote{Symbol: "LATE", SpotPrice: 10}, []chain.Contract{late}); err != nil {
		t.Fatal(err)
	}
	if _, err := w.WriteSnapshot(nextDate, chain.Quote{Symbol: "SPY", SpotPrice: 101}, spyChain()); err != nil {
		t.Fatal(err)
	}

	logger := zap.NewNop()
	mem, err := data.NewMemoryLoader(dir, fixtureDate, logger)
	if err != nil {
		t.Fatalf("NewMemoryLoader() error = %v", err)
	}
	loader := data.NewReloadableLoader(mem)
	reloader := NewReloadManager(loader, dir, logger)

	svc := analysis.NewService(loader, nil, analysis.DefaultSettings(), logger)
	svc.SetClock(loader.AsOf)

	router, err := NewRouter(NewServer(svc, reloader, nil, logger), nil, logger)
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}
	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)
	return &testEnv{server: ts, reloader: reloader}
}

func (e *testEnv) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()
	var req *http.Request
	var err error
	if body != "" {
		req, err = http.NewRequest(method, e.server.URL+path, strings.NewReader(body))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
		}
	} else {
		req, err = http.NewRequest(method, e.server.URL+path, nil)
	}
	if err != nil {
		t.Fatal(err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("%s %s: decoding response: %v", method, path, err)
	}
	return resp.StatusCode, out
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.do(t, http.MethodGet, "/health", "")
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if body["provider"] != "fixture" || body["data_date"] != fixtureDate {
		t.Errorf("unexpected health body %v", body)
	}
	if v, ok := body["ws_clients"]; !ok || v != nil {
		t.Errorf("expected ws_clients null without a hub, got %v", v)
	}
}

func TestStatusMapping(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"gex", http.MethodGet, "/gex/SPY", "", http.StatusOK},
		{"gex lower case", http.MethodGet, "/gex/spy?spot=101&min_oi=0", "", http.StatusOK},
		{"gex summary", http.MethodGet, "/gex/SPY/summary", "", http.StatusOK},
		{"gex unknown ticker", http.MethodGet, "/gex/NOPE", "", http.StatusNotFound},
		{"gex outside window", http.MethodGet, "/gex/LATE", "", http.StatusUnprocessableEntity},
		{"gex inverted window", http.MethodGet, "/gex/SPY?min_expiry_days=10&max_expiry_days=5", "", http.StatusBadRequest},
		{"gex bad spot", http.MethodGet, "/gex/SPY?spot=-1", "", http.StatusBadRequest},
		{"gex bad ticker", http.MethodGet, "/gex/1BAD", "", http.StatusBadRequest},
		{"gex analyze", http.MethodPost, "/gex/analyze", `{"ticker":"SPY","min_oi":0}`, http.StatusOK},
		{"gex analyze unknown field", http.MethodPost, "/gex/analyze", `{"ticker":"SPY","foo":1}`, http.StatusBadRequest},
		{"gex analyze missing ticker", http.MethodPost, "/gex/analyze", `{"spot":100}`, http.StatusBadRequest},
		{"max pain", http.MethodGet, "/max-pain/SPY", "", http.StatusOK},
		{"max pain bias", http.MethodGet, "/max-pain/SPY/bias?current_price=100", "", http.StatusOK},
		{"max pain strikes", http.MethodGet, "/max-pain/SPY/strikes?expiration_date=2025-11-07", "", http.StatusOK},
		{"max pain no expiration", http.MethodGet, "/max-pain/SPY?expiration_date=2025-11-14", "", http.StatusUnprocessableEntity},
		{"max pain bad date", http.MethodGet, "/max-pain/SPY?expiration_date=11/07/2025", "", http.StatusBadRequest},
		{"flow", http.MethodGet, "/indicators/flow/SPY", "", http.StatusOK},
		{"flow pcr", http.MethodGet, "/indicators/flow/SPY/pcr", "", http.StatusOK},
		{"flow premium", http.MethodGet, "/indicators/flow/SPY/premium", "", http.StatusOK},
		{"flow unusual", http.MethodGet, "/indicators/flow/SPY/unusual?lookback=30", "", http.StatusOK},
		{"flow lookback too small", http.MethodGet, "/indicators/flow/SPY?lookback=2", "", http.StatusBadRequest},
		{"flow unknown", http.MethodGet, "/indicators/flow/NOPE", "", http.StatusNotFound},
		{"atm greeks", http.MethodGet, "/greeks/SPY?current_price=101", "", http.StatusOK},
		{"atm theta", http.MethodGet, "/greeks/SPY/theta", "", http.StatusOK},
		{"atm vega", http.MethodGet, "/greeks/SPY/vega", "", http.StatusBadRequest},
		{"portfolio empty", http.MethodPost, "/greeks/portfolio", `{"positions":[]}`, http.StatusBadRequest},
		{"decision", http.MethodGet, "/decision/SPY", "", http.StatusOK},
		{"decision unknown", http.MethodGet, "/decision/NOPE", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := env.do(t, tt.method, tt.path, tt.body)
			if status != tt.want {
				t.Errorf("expected %d, got %d (%v)", tt.want, status, body)
			}
			if status >= 400 {
				if _, ok := body["error"].(string); !ok {
					t.Errorf("expected an error message, got %v", body)
				}
			}
		})
	}
}

func TestGEXResponse(t *testing.T) {
	env := newTestEnv(t)

	_, body := env.do(t, http.MethodGet, "/gex/SPY", "")
	if body["ticker"] != "SPY" || body["current_price"] != 100.0 {
		t.Errorf("unexpected header fields %v", body)
	}
	if body["zero_gamma_level"] != 97.5 {
		t.Errorf("expected zero gamma 97.5, got %v", body["zero_gamma_level"])
	}
	if body["regime_signal"] == "" || body["price_position"] == "" {
		t.Errorf("expected the price position signal, got %v", body)
	}
	levels, ok := body["top_10_levels"].([]any)
	if !ok || len(levels) != 3 {
		t.Errorf("expected 3 top levels, got %v", body["top_10_levels"])
	}
	if all, ok := body["all_levels"].([]any); !ok || len(all) != 3 {
		t.Errorf("expected every level, got %v", body["all_levels"])
	}

	// 1000 OI * 0.05 gamma * 100 * $100 = $0.5M, the largest call exposure
	wall, ok := body["largest_call_wall"].(map[string]any)
	if !ok {
		t.Fatalf("expected the call wall level, got %v", body["largest_call_wall"])
	}
	if wall["strike"] != 100.0 || wall["call_gamma"] != 0.05 || wall["call_gex"] != 0.5 {
		t.Errorf("unexpected call wall %v", wall)
	}
	putWall, ok := body["largest_put_wall"].(map[string]any)
	if !ok || putWall["strike"] != 100.0 || putWall["put_gamma"] != 0.04 || putWall["put_gex"] != -0.36 {
		t.Errorf("unexpected put wall %v", body["largest_put_wall"])
	}
}

func TestGEXSummaryResponse(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.do(t, http.MethodGet, "/gex/spy/summary", "")
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d (%v)", status, body)
	}
	if body["ticker"] != "SPY" {
		t.Errorf("expected ticker SPY, got %v", body["ticker"])
	}
	summary, _ := body["summary"].(string)
	for _, want := range []string{"GAMMA EXPOSURE ANALYSIS - SPY", "Current Price: $100.00", "Largest Call Wall: $100.00"} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary missing %q:\n%s", want, summary)
		}
	}
}

func TestMaxPainResponse(t *testing.T) {
	env := newTestEnv(t)

	_, body := env.do(t, http.MethodGet, "/max-pain/SPY", "")
	if body["expiration"] != "2025-11-07" {
		t.Errorf("expected nearest expiration 2025-11-07, got %v", body["expiration"])
	}
	if body["max_pain_strike"] != 105.0 || body["bias"] != "BULLISH" {
		t.Errorf("unexpected max pain %v / %v", body["max_pain_strike"], body["bias"])
	}

	if pains, ok := body["pain_by_strike"].(map[string]any); !ok || len(pains) != 3 {
		t.Errorf("expected pain for every strike, got %v", body["pain_by_strike"])
	}

	_, strikes := env.do(t, http.MethodGet, "/max-pain/SPY/strikes", "")
	pains, ok := strikes["pain_by_strike"].(map[string]any)
	if !ok || len(pains) != 3 {
		t.Fatalf("expected pain for 3 strikes, got %v", strikes["pain_by_strike"])
	}
	if _, ok := pains["105"]; !ok {
		t.Errorf("expected strike keys without decimals, got %v", pains)
	}
}

func TestFlowUnavailableSerializesNulls(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.do(t, http.MethodGet, "/indicators/flow/LATE", "")
	if status != http.StatusOK {
		t.Fatalf("expected 200 for thin flow, got %d", status)
	}
	for _, field := range []string{"put_call_ratio", "call_premium", "overall_signal", "signal_strength"} {
		v, present := body[field]
		if !present || v != nil {
			t.Errorf("expected %s to be null, got %v (present=%v)", field, v, present)
		}
	}
	if body["unusual_activity_detected"] != false {
		t.Errorf("expected no unusual activity, got %v", body["unusual_activity_detected"])
	}
	for _, field := range []string{"unusual_call_contracts", "unusual_put_contracts"} {
		if list, ok := body[field].([]any); !ok || len(list) != 0 {
			t.Errorf("expected an empty %s list, got %v", field, body[field])
		}
	}
}

func TestFlowResponse(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.do(t, http.MethodGet, "/indicators/flow/SPY", "")
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	// every call trades above half its open interest, no put does
	calls, ok := body["unusual_call_contracts"].([]any)
	if !ok || len(calls) != 3 {
		t.Fatalf("expected 3 unusual calls, got %v", body["unusual_call_contracts"])
	}
	if top := calls[0].(map[string]any); top["strike"] != 100.0 || top["volume"] != 900.0 {
		t.Errorf("expected the busiest call first, got %v", top)
	}
	if puts, ok := body["unusual_put_contracts"].([]any); !ok || len(puts) != 0 {
		t.Errorf("expected an empty put list, got %v", body["unusual_put_contracts"])
	}
	if body["unusual_call_count"] != 3.0 || body["unusual_put_count"] != 0.0 {
		t.Errorf("unexpected unusual counts %v / %v", body["unusual_call_count"], body["unusual_put_count"])
	}
	if body["put_call_ratio"] == nil || body["premium_ratio"] == nil {
		t.Errorf("expected populated ratios, got %v", body)
	}
}

func TestProviderErrorStatus(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/DENY/") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer upstream.Close()

	logger := zap.NewNop()
	client := polygon.NewClient(upstream.URL, "test-key", 100, 5*time.Second, time.Millisecond, 1, logger)
	svc := analysis.NewService(client, nil, analysis.DefaultSettings(), logger)
	router, err := NewRouter(NewServer(svc, nil, nil, logger), nil, logger)
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}
	ts := httptest.NewServer(router)
	defer ts.Close()
	env := &testEnv{server: ts}

	tests := []struct {
		path string
		want int
	}{
		{"/gex/SPY", http.StatusServiceUnavailable},
		{"/max-pain/SPY", http.StatusServiceUnavailable},
		{"/decision/SPY", http.StatusServiceUnavailable},
		{"/gex/DENY", http.StatusBadGateway},
	}
	for _, tt := range tests {
		if status, body := env.do(t, http.MethodGet, tt.path, ""); status != tt.want {
			t.Errorf("GET %s: expected %d, got %d (%v)", tt.path, tt.want, status, body)
		}
	}
}

func TestPortfolio(t *testing.T) {
	env := newTestEnv(t)

	body := `{"positions":[
		{"symbol":"spy","strike":100,"type":"call","quantity":10},
		{"symbol":"SPY","strike":100,"type":"P","quantity":-5},
		{"symbol":"SPY","strike":100,"type":"straddle","quantity":1},
		{"symbol":"SPY","strike":250,"type":"call","quantity":1}
	]}`
	status, resp := env.do(t, http.MethodPost, "/greeks/portfolio", body)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d (%v)", status, resp)
	}

	totals := resp["portfolio_greeks"].(map[string]any)
	// 10 * 0.5 * 100 + -5 * -0.5 * 100
	if totals["delta"] != 750.0 {
		t.Errorf("expected delta 750, got %v", totals["delta"])
	}
	if skipped := resp["skipped"].([]any); len(skipped) != 2 {
		t.Errorf("expected 2 skipped positions, got %v", skipped)
	}
	if positions := resp["positions"].([]any); len(positions) != 2 {
		t.Errorf("expected 2 resolved positions, got %d", len(positions))
	}
}

func TestDecisionResponse(t *testing.T) {
	env := newTestEnv(t)

	_, body := env.do(t, http.MethodGet, "/decision/SPY", "")
	if body["setup"] != "BULLISH_SETUP" || body["confidence"] != "HIGH" {
		t.Errorf("unexpected decision %v / %v", body["setup"], body["confidence"])
	}
	for _, part := range []string{"gex", "max_pain", "flow"} {
		if body[part] == nil {
			t.Errorf("expected %s reading", part)
		}
	}
}

func TestReload(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.do(t, http.MethodPost, "/admin/reload?date="+nextDate, "")
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d (%v)", status, body)
	}
	if body["previous_date"] != fixtureDate || body["new_date"] != nextDate || body["tickers_loaded"] != 1.0 {
		t.Errorf("unexpected reload result %v", body)
	}

	// the clock follows the swapped snapshot
	_, gexBody := env.do(t, http.MethodGet, "/gex/SPY", "")
	if gexBody["current_price"] != 101.0 {
		t.Errorf("expected spot from the new snapshot, got %v", gexBody["current_price"])
	}
	if status, _ := env.do(t, http.MethodGet, "/gex/LATE", ""); status != http.StatusNotFound {
		t.Errorf("expected LATE to be gone after reload, got %d", status)
	}

	if status, _ := env.do(t, http.MethodPost, "/admin/reload?date=2020-01-01", ""); status != http.StatusNotFound {
		t.Errorf("expected 404 for a missing date, got %d", status)
	}
	if status, _ := env.do(t, http.MethodPost, "/admin/reload?date=yesterday", ""); status != http.StatusBadRequest {
		t.Errorf("expected 400 for a malformed date, got %d", status)
	}
	if env.reloader.CurrentDate() != nextDate {
		t.Errorf("failed reloads must keep the current date, got %s", env.reloader.CurrentDate())
	}
}

func TestReload_NothingToReload(t *testing.T) {
	logger := zap.NewNop()
	dir := t.TempDir()
	if _, err := data.NewWriter(dir).WriteSnapshot(fixtureDate, chain.Quote{Symbol: "SPY", SpotPrice: 100}, spyChain()); err != nil {
		t.Fatal(err)
	}
	mem, err := data.NewMemoryLoader(dir, fixtureDate, logger)
	if err != nil {
		t.Fatal(err)
	}

	svc := analysis.NewService(mem, nil, analysis.DefaultSettings(), logger)
	router, err := NewRouter(NewServer(svc, nil, nil, logger), nil, logger)
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/admin/reload", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 without a reloadable provider, got %d", rec.Code)
	}
}

func TestOpenAPIAndDocs(t *testing.T) {
	env := newTestEnv(t)

	for path, contentType := range map[string]string{
		"/openapi.yaml": "application/yaml",
		"/docs":         "text/html",
	} {
		resp, err := http.Get(env.server.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != contentType {
			t.Errorf("%s: status %d content type %q", path, resp.StatusCode, resp.Header.Get("Content-Type"))
		}
	}
}

func TestMaskQueryKey(t *testing.T) {
	if got := maskQueryKey("apiKey=abcdefgh&symbol=SPY"); !strings.Contains(got, "apiKey=%2A%2A%2A%2Aefgh") {
		t.Errorf("maskQueryKey() = %s", got)
	}
	if got := maskQueryKey(""); got != "" {
		t.Errorf("maskQueryKey() = %s", got)
	}
}

func TestSnapshot(t *testing.T) {
	logger := zap.NewNop()
	dir := t.TempDir()
	if _, err := data.NewWriter(dir).WriteSnapshot(fixtureDate, chain.Quote{Symbol: "SPY", SpotPrice: 100}, spyChain()); err != nil {
		t.Fatal(err)
	}
	mem, err := data.NewMemoryLoader(dir, fixtureDate, logger)
	if err != nil {
		t.Fatal(err)
	}
	svc := analysis.NewService(mem, nil, analysis.DefaultSettings(), logger)
	svc.SetClock(mem.AsOf)
	srv := NewServer(svc, nil, nil, logger)

	ctx := context.Background()
	for _, topic := range []ws.Topic{ws.TopicGEX, ws.TopicFlow, ws.TopicMaxPain} {
		payload, err := srv.Snapshot(ctx, "SPY", topic)
		if err != nil {
			t.Errorf("Snapshot(%s) error = %v", topic, err)
			continue
		}
		if payload == nil {
			t.Errorf("Snapshot(%s) returned nothing", topic)
		}
	}
	if mp, _ := srv.Snapshot(ctx, "SPY", ws.TopicMaxPain); *mp.(MaxPainResponse).MaxPainStrike != 105 {
		t.Errorf("unexpected max pain payload %+v", mp)
	}
	if _, err := srv.Snapshot(ctx, "SPY", ws.Topic("greeks")); err == nil {
		t.Error("expected an error for an unknown topic")
	}
	if _, err := srv.Snapshot(ctx, "NOPE", ws.TopicGEX); !errors.Is(err, chain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPresent(t *testing.T) {
	p := &maxpain.Result{Symbol: "SPY", MaxPainStrike: 105.004, CurrentPrice: 100.126}
	out, ok := Present(p).(MaxPainResponse)
	if !ok {
		t.Fatalf("expected MaxPainResponse, got %T", Present(p))
	}
	if *out.MaxPainStrike != 105 || *out.CurrentPrice != 100.13 {
		t.Errorf("expected rounded values, got %+v", out)
	}
	if out.DistancePct == nil || *out.DistancePct != 0 {
		t.Errorf("expected a zero distance, got %v", out.DistancePct)
	}

	unknown := &maxpain.Result{Symbol: "SPY", MaxPainStrike: 105, CurrentPrice: 100, DistancePct: math.NaN(), MaxPainValue: math.Inf(1)}
	out = Present(unknown).(MaxPainResponse)
	if out.DistancePct != nil || out.MaxPainValue != nil {
		t.Errorf("expected non-finite values to be null, got %v / %v", out.DistancePct, out.MaxPainValue)
	}
	encoded, err := json.Marshal(out)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.Contains(string(encoded), `"distance_pct":null`) {
		t.Errorf("expected distance_pct null, got %s", encoded)
	}
	if got := Present("as is"); got != "as is" {
		t.Errorf("expected passthrough, got %v", got)
	}
}
