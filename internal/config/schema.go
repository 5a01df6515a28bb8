// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for nudgeme.
package config

import (
	"time"

	"github.com/nudgeme/nudgeme/internal/security"
	"github.com/nudgeme/nudgeme/internal/telemetry"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	// Assistant holds the user-facing behaviour: who is addressed, when
	// nudges fire, and how much is remembered.
	Assistant AssistantConfig `yaml:"assistant"`

	// Modules maps module IDs to their raw YAML configuration.
	// Keys must match registered module IDs (e.g. "provider.gemini").
	Modules map[string]yaml.Node `yaml:"modules"`

	// Security holds gateway rate limits and audit settings.
	Security SecurityConfig `yaml:"security"`
}

// AssistantConfig configures the assistant core.
type AssistantConfig struct {
	// UserName is how prompts and nudges address the user.
	UserName string `yaml:"user_name"`

	// Persona replaces the default system prompt opening.
	Persona string `yaml:"persona"`

	// Timezone is an IANA zone name. Empty means the host's local zone.
	Timezone string `yaml:"timezone"`

	// QuietHours ("HH:MM-HH:MM") suppresses scheduled nudges.
	QuietHours string `yaml:"quiet_hours"`

	Nudges       NudgeConfig             `yaml:"nudges"`
	Memory       MemoryConfig            `yaml:"memory"`
	Conversation ConversationConfig      `yaml:"conversation"`
	Telemetry    telemetry.TracingConfig `yaml:"telemetry"`
}

// NudgeConfig configures the built-in rules and the notification surface.
type NudgeConfig struct {
	Morning string `yaml:"morning"`
	Midday  string `yaml:"midday"`
	Evening string `yaml:"evening"`

	// Window is how long after each time of day the rule may still fire.
	Window time.Duration `yaml:"window"`

	// InactivityThreshold is the silence after which the reminder fires.
	InactivityThreshold time.Duration `yaml:"inactivity_threshold"`

	// WakingHours ("HH:MM-HH:MM") bounds the reminder.
	WakingHours string `yaml:"waking_hours"`

	// Disabled lists built-in rule IDs that start disabled.
	Disabled []string `yaml:"disabled"`

	// Expiry is how long a notification stays pending.
	Expiry time.Duration `yaml:"expiry"`
}

// MemoryConfig configures the memory store.
type MemoryConfig struct {
	MaxRecords int `yaml:"max_records"`

	// LogTurns stores every user message as a memory record.
	LogTurns bool `yaml:"log_turns"`

	// Extract asks the provider to pull durable facts out of each exchange.
	Extract bool `yaml:"extract"`

	// RemoteTimeout bounds each call to the remote memory tier.
	RemoteTimeout time.Duration `yaml:"remote_timeout"`

	// ContextRecords is how many memories are injected into each prompt.
	ContextRecords int `yaml:"context_records"`
}

// ConversationConfig configures the conversation store.
type ConversationConfig struct {
	MaxSessions int `yaml:"max_sessions"`

	// HistoryWindow is how many prior messages are sent with each turn.
	HistoryWindow int `yaml:"history_window"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	RateLimits security.RateLimitConfig `yaml:"rate_limits"`

	// Audit writes gateway mutations to audit.jsonl in the data directory.
	Audit *bool `yaml:"audit"`
}

// AuditEnabled reports whether the audit log is on. It defaults to true.
func (s SecurityConfig) AuditEnabled() bool {
	return s.Audit == nil || *s.Audit
}
