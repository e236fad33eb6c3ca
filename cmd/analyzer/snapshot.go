package main

import (
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	polygon "github.com/dgnsrekt/options-positioning/internal/api"
	"github.com/dgnsrekt/options-positioning/internal/chain"
	"github.com/dgnsrekt/options-positioning/internal/data"
	"github.com/dgnsrekt/options-positioning/internal/download"
)

func snapshotCmd() *cobra.Command {
	var (
		date    string
		tickers []string
		dryRun  bool
		force   bool
	)

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Record live Polygon chains for offline analysis",
		Long: `Record the current option chain and spot price of each ticker from Polygon.io
into {data.directory}/{date}/{TICKER}/. The fixture provider and the server's
reload endpoint serve these snapshots.

Existing snapshots are skipped, so an interrupted run can be resumed.`,
		Example: `  # Record today's chains for the configured tickers
  positioning snapshot

  # Record a subset under an explicit date folder
  positioning snapshot --tickers SPY,QQQ --date 2025-11-14`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if date == "" {
				date = time.Now().In(newYork(logger)).Format(chain.DateLayout)
			}
			open, err := isMarketDay(date, logger)
			if err != nil {
				return err
			}
			if !open && !force {
				return fmt.Errorf("%s is not an NYSE business day (use --force to record anyway)", date)
			}

			symbols, err := resolveTickers(tickers)
			if err != nil {
				return err
			}
			tasks := download.Tasks([]string{date}, symbols)

			logger.Info("generated tasks", zap.Int("count", len(tasks)))

			if dryRun {
				for _, t := range tasks {
					fmt.Fprintf(stdout, "Would record: %s\n", t)
				}
				return nil
			}

			if cfg.API.APIKey == "" {
				return fmt.Errorf("api.api_key (or POLYGON_API_KEY) is required to record snapshots")
			}

			client := polygon.NewClient(
				cfg.API.BaseURL,
				cfg.API.APIKey,
				cfg.API.RatePerSecond,
				time.Duration(cfg.API.TimeoutSec)*time.Second,
				time.Duration(cfg.API.RetryDelay)*time.Second,
				cfg.API.RetryCount,
				logger,
			)

			window := &chain.Window{MinDays: cfg.Analysis.MinExpiryDays, MaxDays: cfg.Analysis.MaxExpiryDays}
			mgr := download.NewManager(client, data.NewWriter(cfg.Data.Directory), window, cfg.Analysis.Workers, logger)

			bar := progressbar.NewOptions(len(tasks),
				progressbar.OptionSetWriter(cmd.ErrOrStderr()),
				progressbar.OptionShowCount(),
				progressbar.OptionSetWidth(40),
				progressbar.OptionSetDescription("Recording"),
			)
			mgr.OnProgress = func(done, total int) { _ = bar.Set(done) }

			result, err := mgr.Execute(ctx, tasks)
			_ = bar.Finish()
			fmt.Fprintln(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			fmt.Fprintf(stdout, "\nSnapshot complete:\n")
			fmt.Fprintf(stdout, "  Total:     %d\n", result.Total)
			fmt.Fprintf(stdout, "  Success:   %d\n", result.Success)
			fmt.Fprintf(stdout, "  Skipped:   %d\n", result.Skipped)
			fmt.Fprintf(stdout, "  Not Found: %d\n", result.NotFound)
			fmt.Fprintf(stdout, "  Failed:    %d\n", result.Failed)

			if len(result.Errors) > 0 {
				fmt.Fprintf(stdout, "\nErrors:\n")
				for _, e := range result.Errors {
					fmt.Fprintf(stdout, "  - %s\n", e)
				}
				return fmt.Errorf("%d snapshots failed", result.Failed)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "snapshot folder date, YYYY-MM-DD (default: today in New York)")
	cmd.Flags().StringSliceVarP(&tickers, "tickers", "t", nil, "tickers to record (default from config)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list what would be recorded")
	cmd.Flags().BoolVar(&force, "force", false, "record on a non-market day")

	return cmd
}
