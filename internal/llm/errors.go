package llm

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrUnavailable is returned when no provider produced text within the retry budget
	ErrUnavailable = errors.New("completion service unavailable")

	// ErrEmptyCompletion is returned by providers that answered with no text
	ErrEmptyCompletion = errors.New("empty completion")

	// ErrNotConfigured is returned by providers missing credentials
	ErrNotConfigured = errors.New("provider not configured")
)

// StatusError is a non-2xx answer from a provider's HTTP API
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.StatusCode, body)
}

// HTTPStatusCode returns the response status
func (e *StatusError) HTTPStatusCode() int {
	return e.StatusCode
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

// IsRetryable reports whether another attempt could succeed. Timeouts,
// throttling, 5xx answers, empty output and network errors are retryable;
// a cancelled caller, missing credentials and 4xx client errors are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrNotConfigured) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrEmptyCompletion) {
		return true
	}
	var sc httpStatusCoder
	if errors.As(err, &sc) {
		code := sc.HTTPStatusCode()
		return code == 408 || code == 429 || code >= 500
	}
	return true
}
