package translate

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Category maps a backend failure to one of the user-facing buckets.
type Category string

const (
	CategoryAuthInvalid        Category = "auth_invalid"
	CategoryRateLimited        Category = "rate_limited"
	CategoryQuotaExceeded      Category = "quota_exceeded"
	CategoryTimeout            Category = "timeout"
	CategoryNetworkUnavailable Category = "network_unavailable"
	CategoryServerUnavailable  Category = "server_unavailable"
	CategoryModelNotFound      Category = "model_not_found"
	CategoryPermissionDenied   Category = "permission_denied"
	CategoryUnknown            Category = "unknown"
)

const maxRawMessage = 200

// Error is a categorized backend failure.
type Error struct {
	Category Category
	Message  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("translate: %s: %s", e.Category, e.Message)
}

// NewError builds a categorized error with the raw message truncated.
func NewError(cat Category, message string) *Error {
	message = strings.TrimSpace(message)
	if len(message) > maxRawMessage {
		message = message[:maxRawMessage] + "..."
	}
	return &Error{Category: cat, Message: message}
}

// Retryable reports whether the dispatch layer should retry locally
// with backoff. Only rate limiting is retried; every other category
// surfaces immediately.
func Retryable(err error) bool {
	return Categorize(err) == CategoryRateLimited
}

// Categorize inspects an arbitrary failure and maps it onto the
// taxonomy. Already-categorized errors pass through; the rest are
// matched by status signal and message text, falling back to Unknown.
func Categorize(err error) Category {
	if err == nil {
		return ""
	}
	var te *Error
	if errors.As(err, &te) {
		return te.Category
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return CategoryTimeout
		}
		return CategoryNetworkUnavailable
	}
	return categorizeMessage(err.Error())
}

// FromStatus maps an HTTP status plus response message onto the
// taxonomy.
func FromStatus(status int, message string) *Error {
	switch status {
	case http.StatusUnauthorized:
		return NewError(CategoryAuthInvalid, message)
	case http.StatusForbidden:
		return NewError(CategoryPermissionDenied, message)
	case http.StatusNotFound:
		if strings.Contains(strings.ToLower(message), "model") {
			return NewError(CategoryModelNotFound, message)
		}
		return NewError(CategoryUnknown, message)
	case http.StatusTooManyRequests:
		if strings.Contains(strings.ToLower(message), "quota") {
			return NewError(CategoryQuotaExceeded, message)
		}
		return NewError(CategoryRateLimited, message)
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return NewError(CategoryTimeout, message)
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusInternalServerError:
		return NewError(CategoryServerUnavailable, message)
	default:
		return NewError(categorizeMessage(message), message)
	}
}

func categorizeMessage(message string) Category {
	lower := strings.ToLower(message)
	switch {
	case containsAny(lower, "invalid api key", "incorrect api key", "invalid authentication", "unauthorized"):
		return CategoryAuthInvalid
	case containsAny(lower, "insufficient_quota", "quota exceeded", "billing"):
		return CategoryQuotaExceeded
	case containsAny(lower, "rate limit", "too many requests", "429"):
		return CategoryRateLimited
	case containsAny(lower, "timeout", "deadline exceeded", "timed out"):
		return CategoryTimeout
	case containsAny(lower, "connection refused", "no such host", "network is unreachable", "connection reset"):
		return CategoryNetworkUnavailable
	case containsAny(lower, "model_not_found", "does not exist", "unknown model"):
		return CategoryModelNotFound
	case containsAny(lower, "permission", "forbidden"):
		return CategoryPermissionDenied
	case containsAny(lower, "bad gateway", "service unavailable", "server error", "overloaded"):
		return CategoryServerUnavailable
	default:
		return CategoryUnknown
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
