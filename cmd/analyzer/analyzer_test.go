package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/options-positioning/internal/analysis"
	"github.com/dgnsrekt/options-positioning/internal/chain"
	"github.com/dgnsrekt/options-positioning/internal/data"
	"github.com/dgnsrekt/options-positioning/internal/decision"
	"github.com/dgnsrekt/options-positioning/internal/maxpain"
)

func TestLoadPositions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portfolio.yaml")
	body := `positions:
  - symbol: spy
    strike: 580
    type: call
    quantity: 10
    expiration: "2025-11-21"
  - symbol: QQQ
    strike: 500.5
    type: straddle
    quantity: -2
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	positions, err := loadPositions(path)
	if err != nil {
		t.Fatalf("loadPositions() error = %v", err)
	}
	if len(positions) != 2 {
		t.Fatalf("expected 2 positions, got %d", len(positions))
	}
	if p := positions[0]; p.Symbol != "spy" || p.Strike != 580 || p.Quantity != 10 || p.Expiration != "2025-11-21" {
		t.Errorf("unexpected first position %+v", p)
	}
	if positions[1].Type != "straddle" || positions[1].Quantity != -2 {
		t.Errorf("unexpected second position %+v", positions[1])
	}

	empty := filepath.Join(t.TempDir(), "empty.yaml")
	if err := os.WriteFile(empty, []byte("positions: []\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadPositions(empty); err == nil {
		t.Error("expected an error for an empty positions file")
	}
	if _, err := loadPositions(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestIsMarketDay(t *testing.T) {
	logger := zap.NewNop()
	tests := []struct {
		date string
		want bool
	}{
		{"2025-11-14", true},  // Friday
		{"2025-11-15", false}, // Saturday
		{"2025-11-27", false}, // Thanksgiving
		{"2025-12-25", false}, // Christmas
		{"2012-04-06", false}, // Good Friday, outside the default calendar range
		{"2012-04-05", true},
	}
	for _, tt := range tests {
		got, err := isMarketDay(tt.date, logger)
		if err != nil {
			t.Fatalf("isMarketDay(%s) error = %v", tt.date, err)
		}
		if got != tt.want {
			t.Errorf("isMarketDay(%s) = %v, want %v", tt.date, got, tt.want)
		}
	}
	if _, err := isMarketDay("11/14/2025", logger); err == nil {
		t.Error("expected an error for a malformed date")
	}
}

func report(symbol string, setup decision.Setup, conf decision.Confidence) *analysis.Report {
	return &analysis.Report{Decision: &decision.Decision{Symbol: symbol, Setup: setup, Confidence: conf}}
}

func TestSortRows(t *testing.T) {
	rows := []scanRow{
		{Symbol: "ERR", Err: errors.New("boom")},
		{Symbol: "WAIT", Report: report("WAIT", decision.NoEdge, decision.Low)},
		{Symbol: "MED", Report: report("MED", decision.BearishSetup, decision.Medium)},
		{Symbol: "HIGH", Report: report("HIGH", decision.BullishSetup, decision.High)},
		{Symbol: "AAA", Report: report("AAA", decision.NoEdge, decision.Low)},
	}
	sortRows(rows)

	var got []string
	for _, r := range rows {
		got = append(got, r.Symbol)
	}
	if want := "HIGH,MED,AAA,WAIT,ERR"; strings.Join(got, ",") != want {
		t.Errorf("sortRows() = %s, want %s", strings.Join(got, ","), want)
	}

	if err := failedAll(rows); err != nil {
		t.Errorf("failedAll() = %v with successful rows", err)
	}
	if err := failedAll(rows[4:]); err == nil {
		t.Error("expected failedAll() to report when every ticker failed")
	}
}

func fixtureService(t *testing.T) *analysis.Service {
	t.Helper()
	exp := time.Date(2025, 11, 7, 0, 0, 0, 0, time.UTC)
	mk := func(typ chain.ContractType, strike float64, oi, vol int64) chain.Contract {
		g := 0.05
		return chain.Contract{
			Underlying: "SPY", Strike: strike, Expiration: exp, Type: typ,
			OpenInterest: oi, Volume: vol, LastPrice: 1,
			Greeks: chain.Greeks{Gamma: &g},
		}
	}
	contracts := []chain.Contract{
		mk(chain.Call, 95, 500, 300), mk(chain.Call, 100, 1000, 900), mk(chain.Call, 105, 800, 600),
		mk(chain.Put, 95, 700, 200), mk(chain.Put, 100, 900, 400), mk(chain.Put, 105, 300, 100),
	}

	dir := t.TempDir()
	if _, err := data.NewWriter(dir).WriteSnapshot("2025-11-03", chain.Quote{Symbol: "SPY", SpotPrice: 100}, contracts); err != nil {
		t.Fatal(err)
	}
	mem, err := data.NewMemoryLoader(dir, "2025-11-03", zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	svc := analysis.NewService(mem, nil, analysis.DefaultSettings(), zap.NewNop())
	svc.SetClock(mem.AsOf)
	return svc
}

func TestScan(t *testing.T) {
	logger = zap.NewNop()
	svc := fixtureService(t)

	calls := 0
	rows := scan(context.Background(), svc, []string{"SPY", "NOPE"}, 2, func() { calls++ })
	if calls != 2 {
		t.Errorf("expected 2 progress ticks, got %d", calls)
	}
	if len(rows) != 2 || rows[0].Symbol != "SPY" || rows[1].Symbol != "NOPE" {
		t.Fatalf("unexpected rows %+v", rows)
	}
	if rows[0].Err != nil || rows[0].Report == nil {
		t.Fatalf("expected SPY to be analyzed, got %v", rows[0].Err)
	}
	if !errors.Is(rows[1].Err, chain.ErrNotFound) {
		t.Errorf("expected ErrNotFound for NOPE, got %v", rows[1].Err)
	}

	var buf bytes.Buffer
	renderScan(&buf, rows)
	if !strings.Contains(buf.String(), "SPY") || !strings.Contains(buf.String(), "ERROR") {
		t.Errorf("unexpected table:\n%s", buf.String())
	}

	out, err := json.Marshal(rows)
	if err != nil {
		t.Fatal(err)
	}
	var decoded []map[string]any
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded[0]["symbol"] != "SPY" || decoded[0]["setup"] == nil {
		t.Errorf("unexpected JSON row %v", decoded[0])
	}
	if decoded[1]["error"] == nil {
		t.Errorf("expected an error field, got %v", decoded[1])
	}
}

func TestEmit(t *testing.T) {
	var buf bytes.Buffer
	stdout = &buf
	t.Cleanup(func() {
		stdout = os.Stdout
		format = formatTable
	})

	result := &maxpain.Result{Symbol: "SPY", MaxPainStrike: 105, CurrentPrice: 100.126}

	format = formatJSON
	if err := emit(result, func(io.Writer) { t.Error("table renderer called for json") }); err != nil {
		t.Fatal(err)
	}
	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("decoding %s: %v", buf.String(), err)
	}
	if out["current_price"] != 100.13 || out["max_pain_strike"] != 105.0 {
		t.Errorf("unexpected JSON %v", out)
	}

	buf.Reset()
	format = formatTable
	if err := emit(result, func(w io.Writer) { renderMaxPain(w, result, false) }); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "105.00") {
		t.Errorf("unexpected table:\n%s", buf.String())
	}
}
