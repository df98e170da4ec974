package reliability

import (
	"context"
	"errors"
	"net"

	"github.com/openai/openai-go"
)

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// statusCoder is implemented by upstream errors that carry an HTTP status.
type statusCoder interface {
	HTTPStatus() int
}

// IsRetryable reports whether repeating the failed action may succeed.
// Cancellation by the caller is never retryable.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return IsRetryableHTTPStatus(apiErr.StatusCode)
	}
	var sc statusCoder
	if errors.As(err, &sc) {
		return IsRetryableHTTPStatus(sc.HTTPStatus())
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}
