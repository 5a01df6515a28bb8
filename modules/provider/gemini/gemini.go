// Package gemini provides the chat provider module backed by Google's
// generative-language API through its OpenAI-compatible endpoint.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/nudgeme/nudgeme/internal/core"
	"github.com/nudgeme/nudgeme/internal/provider"
	"gopkg.in/yaml.v3"
)

// ServiceName is the AppContext service key under which the provider is registered.
const ServiceName = provider.ServiceName

func init() {
	core.RegisterModule(&Provider{})
}

// Provider is a Gemini chat provider.
type Provider struct {
	config Config
	client *http.Client
	logger *slog.Logger
}

// ModuleInfo implements core.Module.
func (p *Provider) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "provider.gemini",
		New: func() core.Module { return &Provider{} },
	}
}

// Configure implements core.Configurable.
func (p *Provider) Configure(node *yaml.Node) error {
	if err := node.Decode(&p.config); err != nil {
		return err
	}
	p.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (p *Provider) Provision(ctx *core.AppContext) error {
	p.logger = ctx.Logger
	p.client = &http.Client{
		Transport: &http.Transport{
			ResponseHeaderTimeout: p.config.Timeout,
		},
	}
	ctx.RegisterService(ServiceName, provider.Provider(p))
	return nil
}

// Validate implements core.Validator.
func (p *Provider) Validate() error {
	return p.config.validate()
}

// Complete implements provider.Provider.
func (p *Provider) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	body := buildRequest(p.config, req)

	resp, err := p.doRequest(ctx, body)
	if err != nil {
		return provider.CompletionResponse{}, err
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close

	if resp.StatusCode != http.StatusOK {
		return provider.CompletionResponse{}, handleErrorResponse(resp)
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return provider.CompletionResponse{}, fmt.Errorf("%w: decode response: %w", provider.ErrProviderDown, err)
	}

	out := parseResponse(decoded)
	if p.logger != nil {
		p.logger.Debug("gemini completion",
			"model", p.config.Model,
			"finish_reason", out.FinishReason,
			"total_tokens", out.Usage.TotalTokens,
		)
	}
	return out, nil
}

// ModelName implements provider.Provider.
func (p *Provider) ModelName() string {
	return p.config.Model
}

// Compile-time interface assertions.
var (
	_ core.Module       = (*Provider)(nil)
	_ core.Configurable = (*Provider)(nil)
	_ core.Provisioner  = (*Provider)(nil)
	_ core.Validator    = (*Provider)(nil)
	_ provider.Provider = (*Provider)(nil)
)
