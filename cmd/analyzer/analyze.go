package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dgnsrekt/options-positioning/internal/analysis"
	"github.com/dgnsrekt/options-positioning/internal/chain"
	"github.com/dgnsrekt/options-positioning/internal/flow"
	"github.com/dgnsrekt/options-positioning/internal/gex"
	"github.com/dgnsrekt/options-positioning/internal/greeks"
	"github.com/dgnsrekt/options-positioning/internal/maxpain"
)

// withService opens the configured provider for the duration of fn.
func withService(fn func(svc *analysis.Service) error) error {
	svc, closer, err := analysis.Open(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closer.Close(); err != nil {
			logger.Warn("closing provider", zap.Error(err))
		}
	}()
	return fn(svc)
}

// priceFlag returns the --price override, or nil to use the live quote.
func priceFlag(cmd *cobra.Command) *float64 {
	if !cmd.Flags().Changed("price") {
		return nil
	}
	v, _ := cmd.Flags().GetFloat64("price")
	return &v
}

func gexCmd() *cobra.Command {
	var (
		minOI   int64
		minDays int
		maxDays int
		summary bool
	)

	cmd := &cobra.Command{
		Use:   "gex TICKER",
		Short: "Gamma exposure profile: walls, zero gamma and regime",
		Example: `  positioning gex SPY
  positioning gex SPY --min-oi 500 --max-days 14
  positioning gex SPY --summary`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(func(svc *analysis.Service) error {
				req := analysis.GEXRequest{Symbol: args[0], Spot: priceFlag(cmd)}
				if cmd.Flags().Changed("min-oi") {
					req.MinOI = &minOI
				}
				if cmd.Flags().Changed("min-days") || cmd.Flags().Changed("max-days") {
					w := svc.Settings().Window
					if cmd.Flags().Changed("min-days") {
						w.MinDays = minDays
					}
					if cmd.Flags().Changed("max-days") {
						w.MaxDays = maxDays
					}
					req.Window = &w
				}

				profile, err := svc.GEX(cmd.Context(), req)
				if err != nil {
					return err
				}
				if summary && format == formatTable {
					fmt.Fprintln(stdout, profile.Summary())
					return nil
				}
				return emit(profile, func(w io.Writer) { renderGEX(w, profile) })
			})
		},
	}

	cmd.Flags().Float64("price", 0, "override the spot price")
	cmd.Flags().Int64Var(&minOI, "min-oi", 0, "minimum open interest per contract")
	cmd.Flags().IntVar(&minDays, "min-days", 0, "minimum days to expiration")
	cmd.Flags().IntVar(&maxDays, "max-days", 0, "maximum days to expiration")
	cmd.Flags().BoolVar(&summary, "summary", false, "print the text summary only")

	return cmd
}

func renderGEX(w io.Writer, p *gex.Profile) {
	sig := p.Position(p.SpotPrice)
	keyValues(w, [][2]string{
		{"Ticker", p.Ticker},
		{"Spot", money(p.SpotPrice)},
		{"Regime", string(p.Regime)},
		{"Dealer positioning", p.DealerPositioning},
		{"Net GEX", num(p.NetGEX, 4)},
		{"Call wall", money(p.LargestCallWall.Strike)},
		{"Put wall", money(p.LargestPutWall.Strike)},
		{"Zero gamma", money(p.ZeroGammaLevel)},
		{"Resistance", strikes(p.ResistanceLevels)},
		{"Support", strikes(p.SupportLevels)},
		{"Price position", string(sig.Position)},
		{"Signal", sig.Direction + " / " + sig.RegimeSignal},
		{"Strikes analyzed", fmt.Sprint(p.StrikesAnalyzed())},
	})

	fmt.Fprintln(w)
	table := tablewriter.NewTable(w,
		tablewriter.WithHeader([]string{"Strike", "Expiration", "Call OI", "Put OI", "Net GEX", "Wall"}),
	)
	for _, l := range p.TopLevels(10) {
		table.Append([]string{
			money(l.Strike),
			l.Expiration.Format(chain.DateLayout),
			fmt.Sprint(l.CallOI),
			fmt.Sprint(l.PutOI),
			num(l.NetGEX, 4),
			l.WallType(),
		})
	}
	table.Render()
}

func maxPainCmd() *cobra.Command {
	var (
		expiration string
		showPain   bool
	)

	cmd := &cobra.Command{
		Use:   "maxpain SYMBOL",
		Short: "Max pain strike for an expiration (default: nearest weekly)",
		Example: `  positioning maxpain SPY
  positioning maxpain SPY --expiration 2025-11-21 --strikes`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := analysis.MaxPainRequest{Symbol: args[0], Price: priceFlag(cmd)}
			if expiration != "" {
				exp, err := time.Parse(chain.DateLayout, expiration)
				if err != nil {
					return fmt.Errorf("invalid expiration (use YYYY-MM-DD): %w", err)
				}
				req.Expiration = exp
			}

			return withService(func(svc *analysis.Service) error {
				result, err := svc.MaxPain(cmd.Context(), req)
				if err != nil {
					return err
				}
				return emit(result, func(w io.Writer) { renderMaxPain(w, result, showPain) })
			})
		},
	}

	cmd.Flags().Float64("price", 0, "override the spot price")
	cmd.Flags().StringVar(&expiration, "expiration", "", "expiration date (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&showPain, "strikes", false, "list pain by strike")

	return cmd
}

func renderMaxPain(w io.Writer, r *maxpain.Result, showPain bool) {
	keyValues(w, [][2]string{
		{"Symbol", r.Symbol},
		{"Expiration", r.Expiration.Format(chain.DateLayout)},
		{"Price", money(r.CurrentPrice)},
		{"Max pain", money(r.MaxPainStrike)},
		{"Distance", fmt.Sprintf("%s (%s%%)", money(r.DistanceToMaxPain), num(r.DistancePct, 2))},
		{"Bias", string(r.Bias)},
		{"Signal", string(r.Signal)},
		{"Call OI", fmt.Sprint(r.TotalCallOI)},
		{"Put OI", fmt.Sprint(r.TotalPutOI)},
		{"Put/call OI", opt(r.PutCallOIRatio, 2)},
	})
	if !showPain {
		return
	}

	fmt.Fprintln(w)
	table := tablewriter.NewTable(w,
		tablewriter.WithHeader([]string{"Strike", "Call pain", "Put pain", "Total pain"}),
	)
	for _, s := range r.Strikes {
		table.Append([]string{money(s.Strike), money(s.CallPain), money(s.PutPain), money(s.TotalPain)})
	}
	table.Render()
}

func flowCmd() *cobra.Command {
	var lookback int

	cmd := &cobra.Command{
		Use:   "flow SYMBOL",
		Short: "Options flow: put/call ratio, premium split and unusual activity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(func(svc *analysis.Service) error {
				result, err := svc.Flow(cmd.Context(), analysis.FlowRequest{Symbol: args[0], Lookback: lookback})
				if err != nil {
					return err
				}
				return emit(result, func(w io.Writer) { renderFlow(w, result) })
			})
		},
	}

	cmd.Flags().IntVar(&lookback, "lookback", 0,
		fmt.Sprintf("unusual activity window in days [%d-%d] (default from config)", flow.MinLookback, flow.MaxLookback))

	return cmd
}

func renderFlow(w io.Writer, r *flow.Result) {
	if !r.Available {
		fmt.Fprintf(w, "%s: %s\n", r.Symbol, r.Interpretation)
		return
	}
	keyValues(w, [][2]string{
		{"Symbol", r.Symbol},
		{"Signal", optString(r.OverallSignal) + " (" + optString(r.SignalStrength) + ")"},
		{"Put/call ratio", opt(r.PCR.Ratio, 3) + " " + optString(r.PCR.Signal)},
		{"Call volume", optInt(r.PCR.CallVolume)},
		{"Put volume", optInt(r.PCR.PutVolume)},
		{"Call premium", opt(r.Premium.CallPremium, 2) + " (" + opt(r.Premium.CallPct, 1) + "%)"},
		{"Put premium", opt(r.Premium.PutPremium, 2) + " (" + opt(r.Premium.PutPct, 1) + "%)"},
		{"Premium signal", optString(r.Premium.Signal)},
		{"Unusual calls", count(r.Unusual.CallCount)},
		{"Unusual puts", count(r.Unusual.PutCount)},
		{"Unusual signal", optString(r.Unusual.Signal)},
		{"Interpretation", r.Interpretation},
	})
}

func greeksCmd() *cobra.Command {
	var positionsFile string

	cmd := &cobra.Command{
		Use:   "greeks [SYMBOL]",
		Short: "ATM Greeks for a symbol, or aggregated Greeks for a portfolio file",
		Example: `  positioning greeks SPY
  positioning greeks --positions portfolio.yaml`,
		Args: func(cmd *cobra.Command, args []string) error {
			if positionsFile == "" && len(args) != 1 {
				return fmt.Errorf("requires a SYMBOL or --positions")
			}
			return cobra.MaximumNArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if positionsFile != "" {
				positions, err := loadPositions(positionsFile)
				if err != nil {
					return err
				}
				return withService(func(svc *analysis.Service) error {
					p, err := svc.Portfolio(cmd.Context(), positions)
					if err != nil {
						return err
					}
					return emit(p, func(w io.Writer) { renderPortfolio(w, p) })
				})
			}

			return withService(func(svc *analysis.Service) error {
				atm, err := svc.ATM(cmd.Context(), args[0], priceFlag(cmd))
				if err != nil {
					return err
				}
				return emit(atm, func(w io.Writer) { renderATM(w, atm) })
			})
		},
	}

	cmd.Flags().Float64("price", 0, "override the spot price")
	cmd.Flags().StringVarP(&positionsFile, "positions", "p", "", "YAML file of positions to aggregate")

	return cmd
}

func renderATM(w io.Writer, a *greeks.ATM) {
	fmt.Fprintf(w, "%s @ %s, ATM strike %s\n\n", a.Symbol, money(a.CurrentPrice), money(a.Strike()))
	table := tablewriter.NewTable(w,
		tablewriter.WithHeader([]string{"Side", "Strike", "Expiration", "IV", "Delta", "Gamma", "Theta", "Vega"}),
	)
	for _, c := range []chain.Contract{a.Call, a.Put} {
		table.Append([]string{
			string(c.Type),
			money(c.Strike),
			c.ExpirationDate(),
			opt(c.ImpliedVolatility, 4),
			opt(c.Greeks.Delta, 4),
			opt(c.Greeks.Gamma, 4),
			opt(c.Greeks.Theta, 4),
			opt(c.Greeks.Vega, 4),
		})
	}
	table.Render()
	fmt.Fprintf(w, "Daily decay: %s\n", opt(a.DailyDecay(), 4))
}

func renderPortfolio(w io.Writer, p *greeks.Portfolio) {
	table := tablewriter.NewTable(w,
		tablewriter.WithHeader([]string{"Position", "Qty", "Delta", "Gamma", "Theta", "Vega", "Rho"}),
	)
	for _, pos := range p.Positions {
		table.Append([]string{
			fmt.Sprintf("%s %s %s", pos.Symbol, money(pos.Strike), pos.Type),
			fmt.Sprint(pos.Quantity),
			num(pos.Delta, 2), num(pos.Gamma, 4), num(pos.Theta, 2), num(pos.Vega, 2), num(pos.Rho, 2),
		})
	}
	g := p.Greeks
	table.Append([]string{"TOTAL", "", num(g.Delta, 2), num(g.Gamma, 4), num(g.Theta, 2), num(g.Vega, 2), num(g.Rho, 2)})
	table.Render()

	fmt.Fprintf(w, "Regime: delta %s, gamma %s, theta %s\n", p.Regime.Delta, p.Regime.Gamma, p.Regime.Theta)
	if len(p.Skipped) > 0 {
		skipped := make([]string, 0, len(p.Skipped))
		for _, s := range p.Skipped {
			skipped = append(skipped, fmt.Sprintf("%s %s %s", s.Symbol, money(s.Strike), s.Type))
		}
		fmt.Fprintf(w, "Skipped (unresolved): %s\n", strings.Join(skipped, "; "))
	}
}

func decideCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decide SYMBOL",
		Short: "Fuse GEX, max pain and flow into one trading decision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(func(svc *analysis.Service) error {
				report, err := svc.Decide(cmd.Context(), args[0], priceFlag(cmd))
				if err != nil {
					return err
				}
				return emit(report, func(w io.Writer) { renderDecision(w, report) })
			})
		},
	}

	cmd.Flags().Float64("price", 0, "override the spot price")

	return cmd
}

func renderDecision(w io.Writer, r *analysis.Report) {
	d := r.Decision
	fmt.Fprintf(w, "%s @ %s\n%s (%s): %s\n", d.Symbol, money(d.Price), d.Setup, d.Confidence, d.Strategy)
	for _, reason := range d.Reasons {
		fmt.Fprintf(w, "  - %s\n", reason)
	}
}
