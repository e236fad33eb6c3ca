package config

import (
	"fmt"
	"regexp"
	"strings"
)

var tickerPattern = regexp.MustCompile(`^[A-Z][A-Z0-9.]{0,9}$`)

// ValidationErrors collects all validation errors
type ValidationErrors struct {
	InvalidTickers []string
	Problems       []string
}

func (e *ValidationErrors) add(problem string) {
	e.Problems = append(e.Problems, problem)
}

// HasErrors returns true if any validation errors exist
func (e *ValidationErrors) HasErrors() bool {
	return len(e.InvalidTickers) > 0 || len(e.Problems) > 0
}

// Error formats all validation errors into a clear message
func (e *ValidationErrors) Error() string {
	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")

	if len(e.Problems) > 0 {
		sb.WriteString("\nInvalid settings:\n")
		for _, p := range e.Problems {
			sb.WriteString(fmt.Sprintf("  - %s\n", p))
		}
	}

	if len(e.InvalidTickers) > 0 {
		sb.WriteString("\nInvalid tickers:\n")
		for _, t := range e.InvalidTickers {
			sb.WriteString(fmt.Sprintf("  - %q\n", t))
		}
		sb.WriteString("\nTickers are 1-10 characters: letters, digits and '.', starting with a letter\n")
	}

	return sb.String()
}

// ValidateTickers upper-cases tickers and rejects malformed symbols.
func ValidateTickers(tickers []string) ([]string, error) {
	errs := &ValidationErrors{}
	out := validateTickers(errs, tickers)
	if errs.HasErrors() {
		return nil, errs
	}
	return out, nil
}

func validateTickers(errs *ValidationErrors, tickers []string) []string {
	seen := make(map[string]bool, len(tickers))
	out := make([]string, 0, len(tickers))
	for _, t := range tickers {
		sym := strings.ToUpper(strings.TrimSpace(t))
		if !tickerPattern.MatchString(sym) {
			errs.InvalidTickers = append(errs.InvalidTickers, t)
			continue
		}
		if seen[sym] {
			continue
		}
		seen[sym] = true
		out = append(out, sym)
	}
	return out
}
