package download

import (
	"fmt"
)

// Task records one ticker's chain for a snapshot date.
type Task struct {
	Ticker string
	Date   string
}

func (t Task) String() string {
	return fmt.Sprintf("%s/%s", t.Date, t.Ticker)
}

// Tasks builds one task per ticker and date.
func Tasks(dates, tickers []string) []Task {
	tasks := make([]Task, 0, len(dates)*len(tickers))
	for _, date := range dates {
		for _, ticker := range tickers {
			tasks = append(tasks, Task{Ticker: ticker, Date: date})
		}
	}
	return tasks
}

type TaskResult struct {
	Task      Task
	Success   bool
	Skipped   bool
	NotFound  bool
	Contracts int
	Error     error
}
