package api

import (
	"errors"
	"fmt"
)

// ErrDailyLimit marks the server's daily usage cap. It is routed to an
// upgrade prompt rather than a generic failure, and is never retried.
var ErrDailyLimit = errors.New("daily usage limit reached")

// APIError carries the HTTP status and server error code for a failed request
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// Retryable reports whether the failure is transient: server errors and
// rate limiting other than the daily cap are worth retrying
func (e *APIError) Retryable() bool {
	if e.Code == codeLimitReached {
		return false
	}
	return e.StatusCode >= 500 || e.StatusCode == 429
}

// server error codes
const (
	codeLimitReached = "limit_reached"
)

// IsRetryable reports whether an error is worth retrying: transient network
// failures and retryable API errors qualify, the daily cap and other client
// errors do not
func IsRetryable(err error) bool {
	if errors.Is(err, ErrDailyLimit) {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}

	// Anything that never produced an HTTP status is a transport failure.
	return true
}
