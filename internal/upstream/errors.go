package upstream

import (
	"errors"
	"fmt"
)

// ErrNoScript is returned when a script authority is built from empty source.
var ErrNoScript = errors.New("release script is empty")

// HTTPError is a non-200 reply from the upstream endpoint.
type HTTPError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// IsRetryable reports whether the status is worth retrying (5xx or 429).
func (e *HTTPError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

// ResponseError is an upstream reply carrying a non-zero responseCode.
type ResponseError struct {
	Code    int
	Message string
}

// Error implements the error interface.
func (e *ResponseError) Error() string {
	return fmt.Sprintf("upstream rejected query: [%d] %s", e.Code, e.Message)
}

// IsRetryable reports whether err is likely transient.
func IsRetryable(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.IsRetryable()
	}
	return false
}
