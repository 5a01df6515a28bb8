// Package provider defines the contract between the assistant and the
// hosted language model that writes its replies.
package provider

import "context"

// ServiceName is the AppContext service key of the configured Provider.
const ServiceName = "provider"

// Provider is the interface for communicating with an LLM.
// Concrete implementations live in separate packages (e.g., provider.gemini)
// and typically also implement core.Module for lifecycle management.
type Provider interface {
	// Complete sends a completion request and returns the full response.
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)

	// ModelName returns the identifier of the underlying model.
	ModelName() string
}
