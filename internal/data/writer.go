package data

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dgnsrekt/options-positioning/internal/chain"
)

// Writer records live snapshots into the layout MemoryLoader reads.
type Writer struct {
	baseDir string
}

func NewWriter(baseDir string) *Writer {
	return &Writer{baseDir: baseDir}
}

// Dir returns the snapshot directory for a ticker on a date.
func (w *Writer) Dir(date, ticker string) string {
	return filepath.Join(w.baseDir, date, strings.ToUpper(ticker))
}

// Exists reports whether a complete snapshot is already recorded. quote.json
// is written last, so its presence implies the chain is there too.
func (w *Writer) Exists(date, ticker string) bool {
	_, err := os.Stat(filepath.Join(w.Dir(date, ticker), quoteFile))
	return err == nil
}

// WriteSnapshot writes chain.jsonl and quote.json for one ticker. Files are
// written to a temp path and renamed so readers never see a partial file.
func (w *Writer) WriteSnapshot(date string, quote chain.Quote, contracts []chain.Contract) (string, error) {
	dir := w.Dir(date, quote.Symbol)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("creating directories: %w", err)
	}

	err := writeAtomic(filepath.Join(dir, chainFile), func(bw *bufio.Writer) error {
		enc := json.NewEncoder(bw)
		for _, c := range contracts {
			if err := enc.Encode(c.Raw()); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("writing chain: %w", err)
	}

	err = writeAtomic(filepath.Join(dir, quoteFile), func(bw *bufio.Writer) error {
		return json.NewEncoder(bw).Encode(QuoteRecord{Symbol: strings.ToUpper(quote.Symbol), SpotPrice: quote.SpotPrice})
	})
	if err != nil {
		return "", fmt.Errorf("writing quote: %w", err)
	}

	return dir, nil
}

func writeAtomic(destPath string, write func(*bufio.Writer) error) error {
	tmpPath := destPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	bw := bufio.NewWriter(f)
	err = write(bw)
	if err == nil {
		err = bw.Flush()
	}
	if closeErr := f.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	// Atomic rename
	if err := os.Rename(tmpPath, destPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
