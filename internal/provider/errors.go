package provider

import "errors"

// Sentinel errors for provider operations. Callers treat every provider
// failure alike and degrade the reply; the sentinels exist for logging
// and retry decisions.
var (
	// ErrRateLimit indicates the provider returned a rate limit response.
	ErrRateLimit = errors.New("provider rate limited")

	// ErrContextLength indicates the request exceeded the model's context window.
	ErrContextLength = errors.New("context length exceeded")

	// ErrProviderDown indicates the provider is temporarily unavailable.
	ErrProviderDown = errors.New("provider unavailable")

	// ErrAuthentication indicates the credentials were rejected.
	ErrAuthentication = errors.New("provider authentication failed")

	// ErrEmptyResponse indicates the provider answered without any content.
	ErrEmptyResponse = errors.New("provider returned an empty response")

	// ErrNoProvider indicates no provider is configured.
	ErrNoProvider = errors.New("no provider configured")
)

// IsRetryable reports whether the error is transient and the request
// can be retried after a delay.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrProviderDown)
}
