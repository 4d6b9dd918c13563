package publish

import (
	"errors"
	"fmt"
)

// Error taxonomy. Every failure inside the pipeline is classified into one
// of these so the aggregated per-target results can tell a caller whether
// the input, the media, the storage, or the platform was at fault.
var (
	// ErrValidation marks bad input: unsupported media, truncated files,
	// missing payload fields. Never retried; surfaces as 4xx at the edge.
	ErrValidation = errors.New("validation failed")

	// ErrDuplicate marks a submission already seen inside the dedup
	// window. Not a failure; reported as skipped.
	ErrDuplicate = errors.New("duplicate submission")

	// ErrConversion marks media that could not be normalized for the
	// target platform. Terminal for that asset.
	ErrConversion = errors.New("media conversion failed")

	// ErrLocator marks failure to obtain a reachable public URL for the
	// media. Terminal.
	ErrLocator = errors.New("durable media URL unavailable")

	// ErrConfiguration marks an unknown store identifier or other broken
	// routing configuration. Terminal, never silently defaulted.
	ErrConfiguration = errors.New("configuration error")
)

// APIError is a platform API failure. Transient errors (5xx, timeouts)
// are retried once with backoff by the publishers; permanent errors
// (4xx: bad token, missing permission) surface immediately.
type APIError struct {
	Platform   Platform
	StatusCode int
	Message    string
	Transient  bool
}

func (e *APIError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("%s API error (%s, status %d): %s", e.Platform, kind, e.StatusCode, e.Message)
}

// IsTransient reports whether err wraps a transient platform API error.
func IsTransient(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Transient
}
