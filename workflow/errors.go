package workflow

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// Canonical error taxonomy surfaced to clients as opaque strings. Raw
// transport errors never leave the server.
const (
	ErrCodeRateLimited            = "RATE_LIMITED"
	ErrCodeServiceUnavailable     = "SERVICE_UNAVAILABLE"
	ErrCodeNotConfigured          = "NOT_CONFIGURED"
	ErrCodeNetworkError           = "NETWORK_ERROR"
	ErrCodeInsufficientCredits    = "INSUFFICIENT_CREDITS"
	ErrCodeTimeout                = "TIMEOUT"
	ErrCodeValidationMissingField = "VALIDATION_MISSING_FIELD"
	ErrCodeUnknown                = "UNKNOWN"
)

// MapProviderError maps a raw provider/transport failure onto the taxonomy
// by status code first, then by keyword. statusCode is zero when the error
// never reached HTTP.
func MapProviderError(err error, statusCode int) string {
	if err == nil && statusCode == 0 {
		return ErrCodeUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrCodeTimeout
	}

	switch statusCode {
	case http.StatusTooManyRequests:
		return ErrCodeRateLimited
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return ErrCodeServiceUnavailable
	case http.StatusPaymentRequired:
		return ErrCodeInsufficientCredits
	}

	message := ""
	if err != nil {
		message = strings.ToLower(err.Error())
	}
	switch {
	case strings.Contains(message, "rate limit") || strings.Contains(message, "quota exceed") || strings.Contains(message, "resource_exhausted") || strings.Contains(message, "429"):
		return ErrCodeRateLimited
	case strings.Contains(message, "deadline exceeded") || strings.Contains(message, "timeout") || strings.Contains(message, "timed out"):
		return ErrCodeTimeout
	case strings.Contains(message, "api key") || strings.Contains(message, "not configured") || strings.Contains(message, "unauthenticated") || strings.Contains(message, "credential"):
		return ErrCodeNotConfigured
	case strings.Contains(message, "unavailable") || strings.Contains(message, "overloaded") || strings.Contains(message, "503"):
		return ErrCodeServiceUnavailable
	case strings.Contains(message, "connection") || strings.Contains(message, "no such host") || strings.Contains(message, "network") || strings.Contains(message, "broken pipe") || strings.Contains(message, "eof"):
		return ErrCodeNetworkError
	case strings.Contains(message, "insufficient credit"):
		return ErrCodeInsufficientCredits
	case strings.Contains(message, "missing") && strings.Contains(message, "field"):
		return ErrCodeValidationMissingField
	}
	return ErrCodeUnknown
}

// IsUpgradeNudge reports whether the code should surface the upgrade
// prompt, which separates it from the purely transient failures.
func IsUpgradeNudge(code string) bool {
	return code == ErrCodeInsufficientCredits
}
