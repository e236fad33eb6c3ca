// Package download records live option chains from a market data provider
// into the snapshot layout the fixture provider serves.
package download

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/dgnsrekt/options-positioning/internal/chain"
	"github.com/dgnsrekt/options-positioning/internal/data"
	"github.com/dgnsrekt/options-positioning/internal/marketdata"
)

type Manager struct {
	provider marketdata.Provider
	writer   *data.Writer
	window   *chain.Window
	workers  int
	logger   *zap.Logger

	// OnProgress, when set, is called after each finished task.
	OnProgress func(done, total int)
}

type BatchResult struct {
	Total    int
	Success  int
	Skipped  int
	NotFound int
	Failed   int
	Errors   []string
}

// NewManager creates a Manager. window bounds the recorded expirations; nil
// records the whole chain.
func NewManager(provider marketdata.Provider, writer *data.Writer, window *chain.Window, workers int, logger *zap.Logger) *Manager {
	if workers < 1 {
		workers = 1
	}
	return &Manager{
		provider: provider,
		writer:   writer,
		window:   window,
		workers:  workers,
		logger:   logger,
	}
}

func (m *Manager) Execute(ctx context.Context, tasks []Task) (*BatchResult, error) {
	result := &BatchResult{Total: len(tasks)}

	if len(tasks) == 0 {
		return result, nil
	}

	jobs := make(chan Task, len(tasks))
	results := make(chan TaskResult, len(tasks))

	// Start workers
	var wg sync.WaitGroup
	for i := 0; i < m.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.worker(ctx, jobs, results)
		}()
	}

	// Send jobs
	go func() {
		defer close(jobs)
		for _, task := range tasks {
			select {
			case <-ctx.Done():
				return
			case jobs <- task:
			}
		}
	}()

	// Wait for workers and close results
	go func() {
		wg.Wait()
		close(results)
	}()

	// Collect results
	done := 0
	for r := range results {
		switch {
		case r.Skipped:
			result.Skipped++
		case r.NotFound:
			result.NotFound++
		case r.Success:
			result.Success++
		default:
			result.Failed++
			if r.Error != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", r.Task, r.Error))
			}
		}
		done++
		if m.OnProgress != nil {
			m.OnProgress(done, len(tasks))
		}
	}

	return result, ctx.Err()
}

func (m *Manager) worker(ctx context.Context, jobs <-chan Task, results chan<- TaskResult) {
	for task := range jobs {
		select {
		case <-ctx.Done():
			return
		default:
		}

		result := m.processTask(ctx, task)

		select {
		case <-ctx.Done():
			return
		case results <- result:
		}
	}
}

func (m *Manager) processTask(ctx context.Context, task Task) TaskResult {
	result := TaskResult{Task: task}

	// Resume
	if m.writer.Exists(task.Date, task.Ticker) {
		m.logger.Debug("skipping existing snapshot", zap.String("task", task.String()))
		result.Skipped = true
		result.Success = true
		return result
	}

	m.logger.Info("recording", zap.String("task", task.String()))

	n, err := m.record(ctx, task)
	if err != nil {
		if errors.Is(err, chain.ErrNotFound) || errors.Is(err, chain.ErrInsufficientData) {
			m.logger.Debug("not found", zap.String("task", task.String()), zap.Error(err))
			result.NotFound = true
			return result
		}
		result.Error = err
		return result
	}

	result.Success = true
	result.Contracts = n
	m.logger.Info("recorded", zap.String("task", task.String()), zap.Int("contracts", n))

	return result
}

func (m *Manager) record(ctx context.Context, task Task) (int, error) {
	quote, err := m.provider.GetQuote(ctx, task.Ticker)
	if err != nil {
		return 0, err
	}
	contracts, err := m.provider.GetChain(ctx, marketdata.ChainQuery{Symbol: task.Ticker, Window: m.window})
	if err != nil {
		return 0, err
	}
	if _, err := m.writer.WriteSnapshot(task.Date, quote, contracts); err != nil {
		return 0, err
	}
	return len(contracts), nil
}
