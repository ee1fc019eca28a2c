package llm

import (
	"context"
	"errors"
	"strings"
)

// Sentinel errors classifying generation failures. The pipeline uses the
// class to decide whether a retry is worthwhile.
var (
	// ErrRateLimited indicates the provider rejected the call for quota
	// reasons. Retryable after backoff.
	ErrRateLimited = errors.New("generation rate limited")

	// ErrTimeout indicates the call exceeded its deadline. Retryable once.
	ErrTimeout = errors.New("generation timeout")

	// ErrGenerationFailed covers everything else. Not retryable.
	ErrGenerationFailed = errors.New("generation failed")
)

// classifyError maps a raw provider error onto one of the sentinel classes.
// Provider SDKs do not expose stable error types for these cases, so
// classification is by message content.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}

	msg := err.Error()
	switch {
	case containsAny(msg, "rate limit", "quota exceeded", "resource exhausted", "429"):
		return ErrRateLimited
	case containsAny(msg, "deadline exceeded", "timeout"):
		return ErrTimeout
	default:
		return ErrGenerationFailed
	}
}

// containsAny checks if s contains any of the substrings (case-insensitive).
func containsAny(s string, substrs ...string) bool {
	lower := strings.ToLower(s)
	for _, sub := range substrs {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}
