package chain

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
)

// JSON-RPC codes providers use when an eth_getLogs result set or
// time budget is exceeded.
var rangeLimitCodes = map[int]struct{}{
	-32005: {},
	-32000: {},
	-32603: {},
}

var rangeLimitPatterns = []string{
	"query returned more than",
	"block range",
	"too many results",
	"response size exceeded",
	"log limit exceeded",
	"query timeout exceeded",
	"log response size",
}

var rateLimitPatterns = []string{
	"rate limit",
	"too many requests",
	"request limit",
}

// IsRateLimitError reports whether the provider throttled the request.
// Throttling shares codes and wording with size limits on some providers.
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusTooManyRequests {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range rateLimitPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// IsRangeLimitError reports whether a log query was rejected because the
// requested window was too large. Such errors are resolved by narrowing the
// window, never by retrying it unchanged.
func IsRangeLimitError(err error) bool {
	if err == nil || IsRateLimitError(err) {
		return false
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		if _, ok := rangeLimitCodes[rpcErr.ErrorCode()]; ok {
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range rangeLimitPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

var retryablePatterns = []string{
	"connection reset",
	"connection refused",
	"broken pipe",
	"eof",
	"timeout",
	"temporary failure",
	"service unavailable",
}

// IsRetryable reports whether err is a transient transport failure.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if IsRateLimitError(err) {
		return true
	}
	if IsRangeLimitError(err) {
		return false
	}

	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.StatusCode {
		case http.StatusTooManyRequests,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range retryablePatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
