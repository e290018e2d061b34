package shared

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authentication errors
	ErrAuthFailed       = fmt.Errorf("authentication failed")
	ErrNotAuthenticated = fmt.Errorf("not authenticated")

	// Catalog and network errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrNotFound           = fmt.Errorf("not found")
	ErrRateLimited        = fmt.Errorf("quota limit exceeded")
	ErrNetworkFailure     = fmt.Errorf("network failure")
	ErrUnsupported        = fmt.Errorf("operation not supported by source")

	// Download and conversion errors, terminal for a single attempt only
	ErrAlreadyExists      = fmt.Errorf("file already exists")
	ErrUnsupportedFormat  = fmt.Errorf("unsupported format")
	ErrQualityRestricted  = fmt.Errorf("requested quality is restricted")
	ErrNoDownloader       = fmt.Errorf("no downloader for source")
	ErrCollectionFrozen   = fmt.Errorf("collection is frozen while a run is active")
	ErrUnrecognizedSource = fmt.Errorf("unrecognized source")
	ErrLocked             = fmt.Errorf("locked by another process")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)

// IsCancelled reports whether err stems from context cancellation or deadline expiry.
//
// Cancelled work is never a failure and must not be reported with [models.Error] severity.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// IsTransient reports whether err is worth retrying at a later point.
func IsTransient(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrNetworkFailure)
}
