package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/nudgeme/nudgeme/internal/provider"
)

// Wire types of the chat completions endpoint.

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// buildRequest converts a provider.CompletionRequest into the wire request.
// Request-level settings take precedence over the configured defaults.
func buildRequest(cfg Config, req provider.CompletionRequest) chatRequest {
	messages := make([]chatMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = chatMessage{Role: string(m.Role), Content: m.Content}
	}

	out := chatRequest{
		Model:       cfg.Model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if out.MaxTokens == 0 {
		out.MaxTokens = cfg.MaxTokens
	}
	if out.Temperature == nil {
		out.Temperature = cfg.Temperature
	}
	return out
}

// parseResponse converts the wire response into a provider.CompletionResponse.
func parseResponse(resp chatResponse) provider.CompletionResponse {
	cr := provider.CompletionResponse{
		Usage: provider.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	if len(resp.Choices) == 0 {
		return cr
	}
	choice := resp.Choices[0]
	cr.Content = choice.Message.Content
	cr.FinishReason = mapFinishReason(choice.FinishReason)
	return cr
}

// mapFinishReason converts a wire finish_reason to a provider.FinishReason.
func mapFinishReason(reason string) provider.FinishReason {
	switch strings.ToLower(reason) {
	case "stop":
		return provider.FinishReasonStop
	case "length", "max_tokens":
		return provider.FinishReasonLength
	case "content_filter", "safety":
		return provider.FinishReasonFiltering
	default:
		return provider.FinishReason(reason)
	}
}

// doRequest executes an HTTP POST to the chat completions endpoint.
func (p *Provider) doRequest(ctx context.Context, body chatRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := p.config.BaseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.config.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", provider.ErrProviderDown, err)
	}
	return resp, nil
}

// maxErrorBodySize caps how much of an error response body is read.
const maxErrorBodySize = 4096

// handleErrorResponse maps HTTP error status codes to provider sentinel errors.
func handleErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", provider.ErrRateLimit, body)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: HTTP %d: %s", provider.ErrProviderDown, resp.StatusCode, body)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d: %s", provider.ErrAuthentication, resp.StatusCode, body)
	case resp.StatusCode == http.StatusBadRequest && isContextLengthError(body):
		return fmt.Errorf("%w: %s", provider.ErrContextLength, body)
	default:
		return fmt.Errorf("gemini: unexpected status %d: %s", resp.StatusCode, body)
	}
}

func isContextLengthError(body []byte) bool {
	lower := strings.ToLower(string(body))
	return strings.Contains(lower, "context length") ||
		strings.Contains(lower, "token limit") ||
		strings.Contains(lower, "exceeds the maximum number of tokens")
}
