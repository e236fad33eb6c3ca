package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dgnsrekt/options-positioning/internal/analysis"
	"github.com/dgnsrekt/options-positioning/internal/decision"
	"github.com/dgnsrekt/options-positioning/internal/server"
)

// scanRow is one ticker's outcome. Exactly one of Report and Err is set.
type scanRow struct {
	Symbol string
	Report *analysis.Report
	Err    error
}

func (r scanRow) MarshalJSON() ([]byte, error) {
	if r.Err != nil {
		return json.Marshal(map[string]string{"symbol": r.Symbol, "error": r.Err.Error()})
	}
	return json.Marshal(server.Present(r.Report))
}

// scan runs Decide for every ticker with at most workers in flight. A failed
// ticker is recorded, not fatal.
func scan(ctx context.Context, svc *analysis.Service, tickers []string, workers int, progress func()) []scanRow {
	rows := make([]scanRow, len(tickers))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, ticker := range tickers {
		g.Go(func() error {
			report, err := svc.Decide(ctx, ticker, nil)
			rows[i] = scanRow{Symbol: ticker, Report: report, Err: err}
			if err != nil {
				logger.Debug("scan failed", zap.String("symbol", ticker), zap.Error(err))
			}
			mu.Lock()
			progress()
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sortRows(rows)
	return rows
}

var confidenceRank = map[decision.Confidence]int{
	decision.High:   0,
	decision.Medium: 1,
	decision.Low:    2,
}

// sortRows orders setups before no-edge results and failures, higher
// confidence first, then by symbol.
func sortRows(rows []scanRow) {
	rank := func(r scanRow) int {
		switch {
		case r.Err != nil:
			return 10
		case r.Report.Decision.Setup == decision.NoEdge:
			return 5
		default:
			return confidenceRank[r.Report.Decision.Confidence]
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		ri, rj := rank(rows[i]), rank(rows[j])
		if ri != rj {
			return ri < rj
		}
		return rows[i].Symbol < rows[j].Symbol
	})
}

func scanCmd() *cobra.Command {
	var tickers []string

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run the trading decision across the watchlist",
		Example: `  positioning scan
  positioning scan --tickers SPY,QQQ,NVDA`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			symbols, err := resolveTickers(tickers)
			if err != nil {
				return err
			}

			return withService(func(svc *analysis.Service) error {
				bar := progressbar.NewOptions(len(symbols),
					progressbar.OptionSetWriter(cmd.ErrOrStderr()),
					progressbar.OptionEnableColorCodes(true),
					progressbar.OptionShowCount(),
					progressbar.OptionSetWidth(40),
					progressbar.OptionSetDescription("Scanning"),
					progressbar.OptionSetTheme(progressbar.Theme{
						Saucer:        "[green]█[reset]",
						SaucerHead:    "[green]█[reset]",
						SaucerPadding: "░",
						BarStart:      "[",
						BarEnd:        "]",
					}),
				)

				start := time.Now()
				rows := scan(cmd.Context(), svc, symbols, cfg.Analysis.Workers, func() { _ = bar.Add(1) })
				_ = bar.Finish()
				fmt.Fprintln(cmd.ErrOrStderr())

				if err := cmd.Context().Err(); err != nil {
					return err
				}
				logger.Info("scan complete",
					zap.Int("tickers", len(rows)),
					zap.Duration("duration", time.Since(start)))

				if format == formatJSON {
					enc := json.NewEncoder(stdout)
					enc.SetIndent("", "  ")
					return enc.Encode(rows)
				}
				renderScan(stdout, rows)
				return failedAll(rows)
			})
		},
	}

	cmd.Flags().StringSliceVarP(&tickers, "tickers", "t", nil, "tickers to scan (default from config)")

	return cmd
}

// failedAll reports an error only when no ticker could be analyzed.
func failedAll(rows []scanRow) error {
	for _, r := range rows {
		if r.Err == nil {
			return nil
		}
	}
	if len(rows) == 0 {
		return nil
	}
	return errors.New("every ticker failed")
}

func renderScan(w io.Writer, rows []scanRow) {
	table := tablewriter.NewTable(w,
		tablewriter.WithHeader([]string{"Symbol", "Price", "Setup", "Confidence", "Strategy", "Net GEX", "Max Pain", "Flow"}),
	)
	for _, r := range rows {
		if r.Err != nil {
			table.Append([]string{r.Symbol, "", "ERROR", "", r.Err.Error(), "", "", ""})
			continue
		}
		d := r.Report.Decision
		row := []string{r.Symbol, money(d.Price), string(d.Setup), string(d.Confidence), d.Strategy, "-", "-", "-"}
		if g := r.Report.GEX; g != nil {
			row[5] = num(g.NetGEX, 2)
		}
		if m := r.Report.MaxPain; m != nil {
			row[6] = money(m.MaxPainStrike)
		}
		if f := r.Report.Flow; f != nil {
			row[7] = optString(f.OverallSignal)
		}
		table.Append(row)
	}
	table.Render()
}
