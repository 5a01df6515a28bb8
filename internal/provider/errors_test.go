package provider

import (
	"errors"
	"fmt"
	"testing"
)

func allSentinels() []error {
	return []error{
		ErrRateLimit,
		ErrContextLength,
		ErrProviderDown,
		ErrAuthentication,
		ErrEmptyResponse,
		ErrNoProvider,
	}
}

func TestSentinelErrorsAreDistinct(t *testing.T) {
	t.Parallel()

	sentinels := allSentinels()
	for i, a := range sentinels {
		if a.Error() == "" {
			t.Fatalf("sentinel error %d has an empty message", i)
		}
		for j, b := range sentinels {
			if i != j && errors.Is(a, b) {
				t.Fatalf("sentinel errors must be distinct: %v and %v", a, b)
			}
		}
	}
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limit", ErrRateLimit, true},
		{"provider down", ErrProviderDown, true},
		{"wrapped rate limit", fmt.Errorf("gemini: %w", ErrRateLimit), true},
		{"context length", ErrContextLength, false},
		{"authentication", ErrAuthentication, false},
		{"unrelated", errors.New("boom"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
