package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrRateLimited marks failures caused by upstream throttling. Retryable.
	ErrRateLimited = errors.New("rate limited")
	// ErrUnavailable marks server-side failures (5xx and friends). Retryable.
	ErrUnavailable = errors.New("service unavailable")
	// ErrTransient marks other failures that are expected to clear on retry.
	ErrTransient = errors.New("transient failure")
	// ErrContentUnavailable marks content the source will never serve
	// (removed, region-locked, private). Never retried.
	ErrContentUnavailable = errors.New("content unavailable")
	// ErrValidation marks caller mistakes (bad URL, unsupported format).
	ErrValidation = errors.New("validation error")
	// ErrConfiguration marks broken or missing configuration.
	ErrConfiguration = errors.New("configuration error")
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one of
// the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsRetryable reports whether an error carries one of the retryable markers.
// Unmarked errors are treated as fatal: retrying work we cannot classify hides
// bugs behind backoff delays.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrRateLimited), errors.Is(err, ErrUnavailable), errors.Is(err, ErrTransient):
		return true
	default:
		return false
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
