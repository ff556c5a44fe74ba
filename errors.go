// SPDX-License-Identifier: GPL-3.0-or-later

package ipquery

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidInput indicates a bad format token, a bad IP address
	// literal or a batch containing too many addresses.
	//
	// It is always returned before any network activity.
	ErrInvalidInput = errors.New("invalid input")

	// ErrRateLimitExceeded indicates that the rate limiter would have
	// needed to wait longer than the configured maximum wait.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrReserveNotSupported indicates that a [Limiter] cannot reserve
	// tokens ahead of their use.
	ErrReserveNotSupported = errors.New("limiter does not support reserving tokens")

	// ErrInvalidConfiguration indicates an invalid throttle configuration
	// or a request for more tokens than the limiter burst size.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// HTTPStatusError is returned by [*ErrorStage] when the server
// responds with a 4xx or 5xx status code.
type HTTPStatusError struct {
	// StatusCode is the HTTP status code (e.g., 404).
	StatusCode int

	// Reason is the reason phrase (e.g., "Not Found").
	Reason string
}

var _ error = &HTTPStatusError{}

// newHTTPStatusError builds an [*HTTPStatusError] from the response.
func newHTTPStatusError(resp *http.Response) *HTTPStatusError {
	return &HTTPStatusError{
		StatusCode: resp.StatusCode,
		Reason:     reasonPhrase(resp),
	}
}

// Error implements error.
func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("http status %d: %s", e.StatusCode, e.Reason)
}

// reasonPhrase extracts the reason phrase from resp.Status ("404 Not Found")
// falling back to [http.StatusText] when the status line carries none.
func reasonPhrase(resp *http.Response) string {
	reason := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if reason == "" {
		reason = http.StatusText(resp.StatusCode)
	}
	return reason
}

// MaxWaitError is returned by a [Limiter] when granting the tokens would
// require waiting longer than the maximum wait. It wraps [ErrRateLimitExceeded].
type MaxWaitError struct {
	// ID is the throttle configuration ID.
	ID string

	// Wait is the time the caller would have needed to wait.
	Wait time.Duration

	// MaxWait is the maximum accepted wait.
	MaxWait time.Duration
}

var _ error = &MaxWaitError{}

// Error implements error.
func (e *MaxWaitError) Error() string {
	return fmt.Sprintf("%s: %s: need to wait %s, max wait is %s",
		ErrRateLimitExceeded.Error(), e.ID, e.Wait, e.MaxWait)
}

// Unwrap allows errors.Is to match [ErrRateLimitExceeded].
func (e *MaxWaitError) Unwrap() error {
	return ErrRateLimitExceeded
}
