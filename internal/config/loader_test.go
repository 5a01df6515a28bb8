package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleConfig = `
version: "1"
assistant:
  user_name: ${NUDGEME_TEST_USER:-friend}
  timezone: UTC
  quiet_hours: "23:00-07:00"
  nudges:
    morning: "06:30"
    window: 3m
    disabled: [midday]
  memory:
    max_records: 200
    log_turns: true
  conversation:
    max_sessions: 10
  telemetry:
    otlp_endpoint: ${NUDGEME_TEST_OTLP:-}
modules:
  provider.gemini:
    api_key: ${NUDGEME_TEST_KEY}
security:
  rate_limits:
    chat_per_min: 5
`

func TestLoad(t *testing.T) {
	t.Setenv("NUDGEME_TEST_KEY", "k-123")

	path := filepath.Join(t.TempDir(), "nudgeme.yaml")
	if err := os.WriteFile(path, []byte(sampleConfig), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	a := cfg.Assistant
	if a.UserName != "friend" {
		t.Errorf("user_name = %q, want default", a.UserName)
	}
	if a.Nudges.Window != 3*time.Minute || a.Nudges.Morning != "06:30" {
		t.Errorf("nudges = %+v", a.Nudges)
	}
	if a.Memory.MaxRecords != 200 || !a.Memory.LogTurns {
		t.Errorf("memory = %+v", a.Memory)
	}
	if a.Conversation.MaxSessions != 10 {
		t.Errorf("conversation = %+v", a.Conversation)
	}
	if a.Telemetry.Endpoint != "" {
		t.Errorf("otlp_endpoint = %q, want empty default", a.Telemetry.Endpoint)
	}
	if cfg.Security.RateLimits.ChatPerMin != 5 {
		t.Errorf("chat_per_min = %d", cfg.Security.RateLimits.ChatPerMin)
	}

	node, ok := cfg.Modules["provider.gemini"]
	if !ok {
		t.Fatal("provider.gemini missing")
	}
	var mod struct {
		APIKey string `yaml:"api_key"`
	}
	if err := node.Decode(&mod); err != nil {
		t.Fatal(err)
	}
	if mod.APIKey != "k-123" {
		t.Errorf("api_key = %q, want env value", mod.APIKey)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil || !strings.Contains(err.Error(), "reading") {
		t.Fatalf("err = %v", err)
	}
}

func TestParse_UnknownField(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte("version: \"1\"\nassistant:\n  user_nmae: Ada\n"))
	if err == nil || !strings.Contains(err.Error(), "user_nmae") {
		t.Fatalf("err = %v, want unknown field error", err)
	}
}

func TestParse_Empty(t *testing.T) {
	t.Parallel()

	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Version != "" || len(cfg.Modules) != 0 {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("NUDGEME_SET", "value")

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr string
	}{
		{name: "plain", input: "a: b", want: "a: b"},
		{name: "set", input: "a: ${NUDGEME_SET}", want: "a: value"},
		{name: "set ignores default", input: "a: ${NUDGEME_SET:-other}", want: "a: value"},
		{name: "default", input: "a: ${NUDGEME_UNSET_X:-fallback}", want: "a: fallback"},
		{name: "empty default", input: "a: '${NUDGEME_UNSET_X:-}'", want: "a: ''"},
		{name: "unresolved", input: "a: ${NUDGEME_UNSET_Y}", wantErr: "NUDGEME_UNSET_Y"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := expandEnv([]byte(tt.input))
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolve_Sorted(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte("version: \"1\"\nmodules:\n  storage.sqlite: {}\n  provider.gemini: {}\n  gateway.http: {}\n"))
	if err != nil {
		t.Fatal(err)
	}
	got := strings.Join(Resolve(cfg), ",")
	if got != "gateway.http,provider.gemini,storage.sqlite" {
		t.Errorf("Resolve = %s", got)
	}
}
