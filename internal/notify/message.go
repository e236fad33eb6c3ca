package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/dgnsrekt/options-positioning/internal/analysis"
	"github.com/dgnsrekt/options-positioning/internal/decision"
)

// Entry is the outcome of analyzing one ticker.
type Entry struct {
	Symbol string
	Report *analysis.Report
	Err    error
}

// Digest collects one scheduled run over the watchlist.
type Digest struct {
	Date     string
	Entries  []Entry
	Duration time.Duration
}

// Failed returns the number of tickers that could not be analyzed.
func (d *Digest) Failed() int {
	n := 0
	for _, e := range d.Entries {
		if e.Err != nil || e.Report == nil {
			n++
		}
	}
	return n
}

// Actionable returns the entries with a bullish or bearish setup.
func (d *Digest) Actionable() []Entry {
	var out []Entry
	for _, e := range d.Entries {
		if e.Err == nil && e.Report != nil && e.Report.Decision.Setup != decision.NoEdge {
			out = append(out, e)
		}
	}
	return out
}

// HasHighConfidence reports whether any setup is graded HIGH.
func (d *Digest) HasHighConfidence() bool {
	for _, e := range d.Actionable() {
		if e.Report.Decision.Confidence == decision.High {
			return true
		}
	}
	return false
}

// FormatDigestMessage creates the digest notification body: actionable
// setups first, then tickers without an edge, then failures.
func FormatDigestMessage(d *Digest) string {
	var sb strings.Builder

	actionable := d.Actionable()
	sb.WriteString(fmt.Sprintf("Tickers: %d\n", len(d.Entries)))
	sb.WriteString(fmt.Sprintf("Setups: %d\n", len(actionable)))
	if failed := d.Failed(); failed > 0 {
		sb.WriteString(fmt.Sprintf("Failed: %d\n", failed))
	}
	sb.WriteString(fmt.Sprintf("Duration: %s", d.Duration.Round(time.Second)))

	if len(actionable) > 0 {
		sb.WriteString("\n")
		for _, e := range actionable {
			dec := e.Report.Decision
			sb.WriteString(fmt.Sprintf("\n%s %.2f: %s (%s)\n  %s", dec.Symbol, dec.Price, dec.Setup, dec.Confidence, dec.Strategy))
		}
	}

	var quiet, failures []string
	for _, e := range d.Entries {
		switch {
		case e.Err != nil:
			failures = append(failures, fmt.Sprintf("- %s: %v", e.Symbol, e.Err))
		case e.Report == nil:
			failures = append(failures, fmt.Sprintf("- %s: no report", e.Symbol))
		case e.Report.Decision.Setup == decision.NoEdge:
			quiet = append(quiet, e.Symbol)
		}
	}
	if len(quiet) > 0 {
		sb.WriteString("\n\nNo edge: " + strings.Join(quiet, ", "))
	}
	if len(failures) > 0 {
		sb.WriteString("\n\nErrors:\n")
		limit := min(len(failures), 3)
		sb.WriteString(strings.Join(failures[:limit], "\n"))
		if len(failures) > 3 {
			sb.WriteString(fmt.Sprintf("\n... and %d more errors", len(failures)-3))
		}
	}

	return sb.String()
}

// FormatFailureMessage creates a failure notification body.
func FormatFailureMessage(duration time.Duration, err error) string {
	return fmt.Sprintf("Duration: %s\n\nError: %v", duration.Round(time.Second), err)
}
