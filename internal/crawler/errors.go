package crawler

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors returned across the crawl pipeline. Callers match them with
// errors.Is; the concrete errors below carry detail.
var (
	ErrRequestFailed     = errors.New("request failed")
	ErrInvalidCursor     = errors.New("invalid cursor")
	ErrAccessRestricted  = errors.New("access restricted")
	ErrNoImageFound      = errors.New("no image found")
	ErrMissingField      = errors.New("missing field")
	ErrUnparseableDate   = errors.New("unparseable date")
	ErrRecordNotFound    = errors.New("record not found")
	ErrForeignOrigin     = errors.New("url outside the api origin")
	ErrInvalidPagination = errors.New("invalid pagination")
)

// RequestFailure reports a fetch that ended without a 2xx response. Status is
// zero when the request never produced a response.
type RequestFailure struct {
	Status int
	URL    string
	Err    error
}

func (e *RequestFailure) Error() string {
	switch {
	case e.Status == 0 && e.Err != nil:
		return fmt.Sprintf("request failed for %s: %v", e.URL, e.Err)
	case e.Status == 0:
		return fmt.Sprintf("request failed for %s", e.URL)
	default:
		return fmt.Sprintf("request failed for %s: status %d", e.URL, e.Status)
	}
}

// Is lets errors.Is(err, ErrRequestFailed) match any RequestFailure.
func (e *RequestFailure) Is(target error) bool {
	return target == ErrRequestFailed
}

func (e *RequestFailure) Unwrap() error {
	return e.Err
}

// Transient reports whether the status is one the client retries after a
// cooldown (429 Too Many Requests, 503 Service Unavailable).
func (e *RequestFailure) Transient() bool {
	return IsTransientStatus(e.Status)
}

// IsTransientStatus reports whether the status code warrants a retry.
func IsTransientStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusServiceUnavailable
}

// UnparseableDateError is returned when no format matches a raw date string.
type UnparseableDateError struct {
	Raw string
}

func (e *UnparseableDateError) Error() string {
	return fmt.Sprintf("could not parse %q as a date", e.Raw)
}

// Is lets errors.Is(err, ErrUnparseableDate) match.
func (e *UnparseableDateError) Is(target error) bool {
	return target == ErrUnparseableDate
}

// MissingField wraps ErrMissingField with the JSON path that was absent.
func MissingField(path string) error {
	return fmt.Errorf("%w: %s", ErrMissingField, path)
}
