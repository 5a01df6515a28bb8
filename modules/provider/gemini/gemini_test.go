package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nudgeme/nudgeme/internal/core"
	"github.com/nudgeme/nudgeme/internal/provider"
	"gopkg.in/yaml.v3"
)

func newTestProvider(baseURL string) *Provider {
	return &Provider{
		config: Config{
			BaseURL: baseURL,
			APIKey:  "test-key",
			Model:   DefaultModel,
			Timeout: 5 * time.Second,
		},
		client: &http.Client{Timeout: 5 * time.Second},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func configure(t *testing.T, doc string) *Provider {
	t.Helper()
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(doc), &node); err != nil {
		t.Fatalf("unmarshal yaml: %v", err)
	}
	p := &Provider{}
	if err := p.Configure(node.Content[0]); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	return p
}

func TestConfigure_Defaults(t *testing.T) {
	t.Setenv("NUDGEME_TEST_GEMINI_KEY", "from-env")

	p := configure(t, `api_key_env: NUDGEME_TEST_GEMINI_KEY`)

	if p.config.BaseURL != DefaultBaseURL {
		t.Errorf("BaseURL = %q", p.config.BaseURL)
	}
	if p.config.Model != DefaultModel {
		t.Errorf("Model = %q", p.config.Model)
	}
	if p.config.APIKey != "from-env" {
		t.Errorf("APIKey = %q, want value from env", p.config.APIKey)
	}
	if p.config.Timeout != 60*time.Second {
		t.Errorf("Timeout = %v", p.config.Timeout)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestConfigure_ExplicitValues(t *testing.T) {
	p := configure(t, `
base_url: "http://localhost:9999/v1/"
api_key: "k"
model: "gemini-1.5-pro"
max_tokens: 512
temperature: 0.4
timeout: 10s
`)
	if p.config.BaseURL != "http://localhost:9999/v1" {
		t.Errorf("BaseURL = %q, want trailing slash trimmed", p.config.BaseURL)
	}
	if p.config.Model != "gemini-1.5-pro" || p.config.MaxTokens != 512 {
		t.Errorf("config = %+v", p.config)
	}
	if p.config.Temperature == nil || *p.config.Temperature != 0.4 {
		t.Errorf("Temperature = %v", p.config.Temperature)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	hot := 3.0
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "valid", cfg: Config{BaseURL: DefaultBaseURL, APIKey: "k"}},
		{name: "missing key", cfg: Config{BaseURL: DefaultBaseURL, APIKeyEnv: "X"}, wantErr: "api_key is empty"},
		{name: "bad scheme", cfg: Config{BaseURL: "ftp://x", APIKey: "k"}, wantErr: "scheme"},
		{name: "negative tokens", cfg: Config{BaseURL: DefaultBaseURL, APIKey: "k", MaxTokens: -1}, wantErr: "max_tokens"},
		{name: "temperature", cfg: Config{BaseURL: DefaultBaseURL, APIKey: "k", Temperature: &hot}, wantErr: "temperature"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestComplete(t *testing.T) {
	t.Parallel()

	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		writeJSON(w, map[string]any{
			"choices": []map[string]any{{
				"message":       map[string]any{"role": "assistant", "content": "Good morning!"},
				"finish_reason": "stop",
			}},
			"usage": map[string]any{"prompt_tokens": 12, "completion_tokens": 3, "total_tokens": 15},
		})
	}))
	defer srv.Close()

	p := newTestProvider(srv.URL)
	p.config.MaxTokens = 256

	resp, err := p.Complete(context.Background(), provider.CompletionRequest{
		Messages: []provider.LLMMessage{
			{Role: provider.MessageRoleSystem, Content: "You are a helpful assistant."},
			{Role: provider.MessageRoleUser, Content: "hi"},
		},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if resp.Content != "Good morning!" || resp.FinishReason != provider.FinishReasonStop {
		t.Errorf("resp = %+v", resp)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("total tokens = %d", resp.Usage.TotalTokens)
	}
	if got.Model != DefaultModel || got.MaxTokens != 256 {
		t.Errorf("request = %+v", got)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "hi" {
		t.Errorf("messages = %+v", got.Messages)
	}
}

func TestComplete_ErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		body   string
		want   error
	}{
		{status: http.StatusTooManyRequests, body: "quota", want: provider.ErrRateLimit},
		{status: http.StatusServiceUnavailable, body: "down", want: provider.ErrProviderDown},
		{status: http.StatusUnauthorized, body: "API key not valid", want: provider.ErrAuthentication},
		{status: http.StatusBadRequest, body: "input token limit exceeded", want: provider.ErrContextLength},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, tt.body, tt.status)
			}))
			defer srv.Close()

			_, err := newTestProvider(srv.URL).Complete(context.Background(), provider.CompletionRequest{})
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestComplete_ConnectionRefused(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newTestProvider(url).Complete(context.Background(), provider.CompletionRequest{})
	if !errors.Is(err, provider.ErrProviderDown) {
		t.Fatalf("err = %v, want ErrProviderDown", err)
	}
}

func TestComplete_CanceledContext(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestProvider(srv.URL).Complete(ctx, provider.CompletionRequest{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestMapFinishReason(t *testing.T) {
	t.Parallel()

	cases := map[string]provider.FinishReason{
		"stop":       provider.FinishReasonStop,
		"STOP":       provider.FinishReasonStop,
		"max_tokens": provider.FinishReasonLength,
		"SAFETY":     provider.FinishReasonFiltering,
		"recitation": provider.FinishReason("recitation"),
	}
	for in, want := range cases {
		if got := mapFinishReason(in); got != want {
			t.Errorf("mapFinishReason(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestProvision_RegistersService(t *testing.T) {
	t.Parallel()

	appCtx := core.NewAppContext(slog.New(slog.NewTextHandler(io.Discard, nil)), t.TempDir())
	p := &Provider{config: Config{Timeout: time.Second}}
	if err := p.Provision(appCtx); err != nil {
		t.Fatalf("Provision: %v", err)
	}

	svc, ok := appCtx.Service(ServiceName)
	if !ok {
		t.Fatal("provider service not registered")
	}
	if _, ok := svc.(provider.Provider); !ok {
		t.Fatalf("service type = %T", svc)
	}
}
