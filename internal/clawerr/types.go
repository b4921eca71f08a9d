// Package clawerr defines the error taxonomy shared by every subsystem.
//
// Library code never swallows unknown errors; it translates known
// provider and database conditions into one of the types below so that
// callers (the router's fallback chain, the CLI, background jobs) can
// classify without string matching at every call site.
package clawerr

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// ValidationError reports a rejected state transition or invalid enum.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// NewValidation creates a ValidationError with a formatted message.
func NewValidation(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// MissingCredentialError reports an unresolvable credential name.
type MissingCredentialError struct {
	Name string
}

func (e *MissingCredentialError) Error() string {
	return fmt.Sprintf("missing credential: %s", e.Name)
}

// ProviderHTTPError reports a non-2xx response from an LLM or embedding
// provider. Body is truncated at the call site.
type ProviderHTTPError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *ProviderHTTPError) Error() string {
	return fmt.Sprintf("provider %s returned HTTP %d: %s", e.Provider, e.StatusCode, e.Body)
}

// TimeoutError reports a cancelled or deadline-exceeded provider call.
type TimeoutError struct {
	Provider string
	Err      error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("provider %s timed out: %v", e.Provider, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// ParseError reports a malformed transcript line. Skipped lines count
// against the per-file quarantine threshold.
type ParseError struct {
	File string
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error in %s line %d: %v", e.File, e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// StorageError reports a database constraint violation or I/O failure.
// The enclosing transaction has been rolled back when this is returned.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// NotFoundError reports a lookup by id that matched no row.
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// retryableMarkers are substrings in provider error bodies that indicate a
// quota or rate-limit condition worth falling through to the next provider.
var retryableMarkers = []string{"quota", "rate limit", "rate_limit", "overloaded"}

// IsRetryable reports whether an error should advance the provider
// fallback chain: HTTP 429/503, quota/rate-limit markers, and timeouts.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var httpErr *ProviderHTTPError
	if errors.As(err, &httpErr) {
		if httpErr.StatusCode == 429 || httpErr.StatusCode == 503 {
			return true
		}
		body := strings.ToLower(httpErr.Body)
		for _, marker := range retryableMarkers {
			if strings.Contains(body, marker) {
				return true
			}
		}
		return false
	}

	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}

// CLI exit codes.
const (
	ExitOK                = 0
	ExitValidation        = 1
	ExitMissingCredential = 2
	ExitProviderFailure   = 3
)

// ExitCode maps an error to the CLI exit code contract.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var missing *MissingCredentialError
	if errors.As(err, &missing) {
		return ExitMissingCredential
	}
	var httpErr *ProviderHTTPError
	var timeout *TimeoutError
	if errors.As(err, &httpErr) || errors.As(err, &timeout) {
		return ExitProviderFailure
	}
	return ExitValidation
}
