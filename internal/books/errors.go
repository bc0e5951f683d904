package books

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

var (
	// Configuration errors
	ErrNotConfigured   = errors.New("platform is not configured")
	ErrPlatformUnknown = errors.New("unknown platform")
	ErrInvalidConfig   = errors.New("invalid configuration")

	// Authentication errors
	ErrAuthRequired = errors.New("platform requires authentication")
	ErrAuthRejected = errors.New("credentials rejected")

	// Network errors
	ErrNetwork = errors.New("network failure")

	// Download errors
	ErrDownloadFailed       = errors.New("download failed")
	ErrDownloadNotSupported = errors.New("platform does not support direct download")
	ErrBadDescriptor        = errors.New("malformed download descriptor")

	// Search errors
	ErrEmptyQuery    = errors.New("search query cannot be empty")
	ErrNoPlatforms   = errors.New("no platforms available for search")
	ErrSearchTimeout = errors.New("search timed out")
)

// SourceError wraps an error with the platform and operation it came from.
type SourceError struct {
	Platform Platform
	Op       string // "search", "download", "resolve", "info", "test"
	Err      error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Platform, e.Op, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// WrapSourceError attaches platform and operation context to err.
func WrapSourceError(platform Platform, op string, err error) error {
	if err == nil {
		return nil
	}
	return &SourceError{Platform: platform, Op: op, Err: err}
}

// AggregateSearchError is returned only when every targeted platform
// failed. It keeps each constituent failure for diagnosis.
type AggregateSearchError struct {
	Failures map[Platform]error
}

func (e *AggregateSearchError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for platform, err := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", platform, err))
	}
	return "all platforms failed: " + strings.Join(parts, "; ")
}

// Unwrap exposes the constituent failures to errors.Is/errors.As.
func (e *AggregateSearchError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, err := range e.Failures {
		errs = append(errs, err)
	}
	return errs
}

// IsConfigurationError reports whether err is a fail-fast configuration
// problem that no retry can fix.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrNotConfigured) ||
		errors.Is(err, ErrPlatformUnknown) ||
		errors.Is(err, ErrInvalidConfig)
}

// IsAuthError reports whether err is an authentication failure. Auth
// failures are surfaced to the caller and never retried.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrAuthRequired) || errors.Is(err, ErrAuthRejected)
}

// IsNetworkError reports whether err looks like a transient network
// failure worth retrying.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNetwork) {
		return true
	}

	var netErr net.Error
	var dnsErr *net.DNSError
	if errors.As(err, &netErr) || errors.As(err, &dnsErr) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	indicators := []string{
		"connection refused",
		"no such host",
		"timeout",
		"network is unreachable",
		"no route to host",
		"dial tcp",
		"i/o timeout",
		"connection reset",
		"temporary failure in name resolution",
		"unexpected eof",
	}
	for _, indicator := range indicators {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}
	return false
}

// IsDownloadError reports whether err is a non-auth, non-network download
// failure (content removed, malformed descriptor, link-only source).
func IsDownloadError(err error) bool {
	return errors.Is(err, ErrDownloadFailed) ||
		errors.Is(err, ErrDownloadNotSupported) ||
		errors.Is(err, ErrBadDescriptor)
}
