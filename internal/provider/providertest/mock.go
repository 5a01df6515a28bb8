// Package providertest provides test helpers for the provider package.
package providertest

import (
	"context"
	"sync"

	"github.com/nudgeme/nudgeme/internal/provider"
)

// MockProvider is a configurable test double for provider.Provider.
// Set the Func fields to control behavior. An unset CompleteFunc panics.
// All methods are safe for concurrent use.
type MockProvider struct {
	CompleteFunc  func(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error)
	ModelNameFunc func() string

	mu       sync.Mutex
	requests []provider.CompletionRequest
}

// Replying returns a mock that answers every request with content.
func Replying(content string) *MockProvider {
	return &MockProvider{
		CompleteFunc: func(context.Context, provider.CompletionRequest) (provider.CompletionResponse, error) {
			return provider.CompletionResponse{Content: content, FinishReason: provider.FinishReasonStop}, nil
		},
	}
}

// Failing returns a mock that fails every request with err.
func Failing(err error) *MockProvider {
	return &MockProvider{
		CompleteFunc: func(context.Context, provider.CompletionRequest) (provider.CompletionResponse, error) {
			return provider.CompletionResponse{}, err
		},
	}
}

// Complete records req and delegates to CompleteFunc.
func (m *MockProvider) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	return m.CompleteFunc(ctx, req)
}

// ModelName delegates to ModelNameFunc, defaulting to "mock".
func (m *MockProvider) ModelName() string {
	if m.ModelNameFunc == nil {
		return "mock"
	}
	return m.ModelNameFunc()
}

// Requests returns a copy of every request received so far.
func (m *MockProvider) Requests() []provider.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]provider.CompletionRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

var _ provider.Provider = (*MockProvider)(nil)
