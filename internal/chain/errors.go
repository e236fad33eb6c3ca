package chain

import "errors"

var (
	// ErrNotFound means no chain or price could be obtained from the provider.
	ErrNotFound = errors.New("options data not found")
	// ErrInsufficientData means a chain exists but is too thin to compute on.
	ErrInsufficientData = errors.New("insufficient options data")
	// ErrInvalidContract is returned by the normalizer for records it cannot coerce.
	ErrInvalidContract = errors.New("invalid contract record")
)
