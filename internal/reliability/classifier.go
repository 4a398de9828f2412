package reliability

import (
	"context"
	"errors"
	"net"
)

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// IsRetryableStreamMessageType classifies retryable errors reported inside a TTS stream.
func IsRetryableStreamMessageType(messageType string) bool {
	switch messageType {
	case "rate_limited", "resource_exhausted", "queue_overflow", "error":
		return true
	default:
		return false
	}
}

// ErrorClass buckets an outbound failure into a low-cardinality metrics label.
func ErrorClass(statusCode int, err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded) || isNetTimeout(err):
		return "timeout"
	case statusCode == 429:
		return "rate_limited"
	case statusCode == 401 || statusCode == 403:
		return "auth"
	case statusCode >= 500:
		return "upstream_5xx"
	case statusCode >= 400:
		return "client_4xx"
	case err != nil:
		return "transport"
	default:
		return "none"
	}
}

func isNetTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
