package services_test

import (
	"errors"
	"strings"
	"testing"

	"cadence/internal/services"
)

func TestWrapPreservesMarkerAndCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := services.Wrap(services.ErrUnavailable, "extractor", "resolve", "request content", cause)

	if !errors.Is(err, services.ErrUnavailable) {
		t.Fatal("wrapped error must match its marker")
	}
	if !errors.Is(err, cause) {
		t.Fatal("wrapped error must match its cause")
	}
	text := err.Error()
	for _, fragment := range []string{"extractor", "resolve", "request content", "connection reset"} {
		if !strings.Contains(text, fragment) {
			t.Fatalf("error text %q missing %q", text, fragment)
		}
	}
}

func TestWrapWithoutCause(t *testing.T) {
	err := services.Wrap(services.ErrRateLimited, "extractor", "resolve", "throttled", nil)
	if !errors.Is(err, services.ErrRateLimited) {
		t.Fatal("marker must survive without a cause")
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		marker error
		want   bool
	}{
		{services.ErrRateLimited, true},
		{services.ErrUnavailable, true},
		{services.ErrTransient, true},
		{services.ErrContentUnavailable, false},
		{services.ErrValidation, false},
		{services.ErrConfiguration, false},
	}
	for _, tc := range cases {
		err := services.Wrap(tc.marker, "test", "op", "detail", nil)
		if got := services.IsRetryable(err); got != tc.want {
			t.Fatalf("IsRetryable(%v) = %v, want %v", tc.marker, got, tc.want)
		}
	}
	if services.IsRetryable(nil) {
		t.Fatal("nil is not retryable")
	}
	if services.IsRetryable(errors.New("plain")) {
		t.Fatal("untagged errors are fatal")
	}
}
