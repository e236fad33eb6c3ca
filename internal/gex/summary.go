package gex

import (
	"fmt"
	"math"
	"strings"
)

// TopLevels returns the n strongest levels by |NetGEX|.
func (p *Profile) TopLevels(n int) []Level {
	if n > len(p.Levels) {
		n = len(p.Levels)
	}
	return p.Levels[:n]
}

// WallType labels a level by its dominant side.
func (l Level) WallType() string {
	if l.CallGEX > math.Abs(l.PutGEX) {
		return "CALL WALL"
	}
	return "PUT WALL"
}

// Summary renders the profile as a plain text report.
func (p *Profile) Summary() string {
	var b strings.Builder

	fmt.Fprintf(&b, "GAMMA EXPOSURE ANALYSIS - %s\n\n", p.Ticker)

	b.WriteString("MARKET DATA:\n")
	fmt.Fprintf(&b, "   Current Price: $%.2f\n", p.SpotPrice)
	fmt.Fprintf(&b, "   Analysis Date: %s\n", p.AnalysisTime.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "   Strikes Analyzed: %d\n\n", p.StrikesAnalyzed())

	b.WriteString("GAMMA EXPOSURE TOTALS:\n")
	fmt.Fprintf(&b, "   Total Call GEX: $%.2fM\n", p.TotalCallGEX)
	fmt.Fprintf(&b, "   Total Put GEX:  $%.2fM\n", p.TotalPutGEX)
	fmt.Fprintf(&b, "   Net GEX:        $%.2fM\n\n", p.NetGEX)

	b.WriteString("MARKET REGIME:\n")
	fmt.Fprintf(&b, "   Regime: %s\n", p.Regime.Label())
	fmt.Fprintf(&b, "   Dealer Position: %s\n\n", p.DealerPositioning)

	b.WriteString("GAMMA WALLS:\n")
	fmt.Fprintf(&b, "   Largest Call Wall: $%.2f ($%.2fM)\n", p.LargestCallWall.Strike, p.LargestCallWall.CallGEX)
	fmt.Fprintf(&b, "   Largest Put Wall:  $%.2f ($%.2fM)\n\n", p.LargestPutWall.Strike, math.Abs(p.LargestPutWall.PutGEX))

	b.WriteString("KEY LEVELS:\n")
	fmt.Fprintf(&b, "   Zero Gamma Level: $%.2f\n\n", p.ZeroGammaLevel)
	b.WriteString("   Resistance (Call Walls):\n")
	for _, s := range p.ResistanceLevels {
		fmt.Fprintf(&b, "   - $%.2f\n", s)
	}
	b.WriteString("\n   Support (Put Walls):\n")
	for _, s := range p.SupportLevels {
		fmt.Fprintf(&b, "   - $%.2f\n", s)
	}
	return b.String()
}
