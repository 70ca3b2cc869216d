package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// ThrottleError wraps a rate-limit signal from an external provider
// (e.g. the inference endpoint returning 429). Throttled operations are
// retried through the fixed backoff ladder; other errors are not.
type ThrottleError struct {
	Err error
}

func (e *ThrottleError) Error() string {
	return e.Err.Error()
}

func (e *ThrottleError) Unwrap() error {
	return e.Err
}

// NewThrottleError wraps err as a throttle signal.
func NewThrottleError(err error) *ThrottleError {
	return &ThrottleError{Err: err}
}

// IsThrottle returns true if the error chain contains a ThrottleError.
func IsThrottle(err error) bool {
	var te *ThrottleError
	return errors.As(err, &te)
}

// TransientError wraps an error that is safe to retry (e.g., 5xx,
// network timeout) for store and transport operations.
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps an error as transient with an optional HTTP status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// IsTransient returns true if the error (or any error in its chain) is a
// TransientError, or if it matches common transient error patterns
// (network timeouts, connection resets, DNS failures).
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// String-based heuristics for wrapped errors from HTTP clients.
	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
		"transport connection broken",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}
