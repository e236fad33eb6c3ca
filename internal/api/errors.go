package api

import "errors"

// Failures the caller can act on. Not-found and empty chains are reported
// with the chain package sentinels.
var (
	ErrRateLimited = errors.New("polygon: rate limited")
	ErrAuthFailed  = errors.New("polygon: authentication failed")
)
