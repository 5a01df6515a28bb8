package config

import (
	"errors"
	"fmt"
	"slices"

	"github.com/nudgeme/nudgeme/internal/core"
	"github.com/nudgeme/nudgeme/internal/nudge"
)

// singletonNamespaces may hold at most one configured module each.
var singletonNamespaces = []string{"provider", "storage", "memory"}

var builtinRuleIDs = []string{nudge.RuleMorning, nudge.RuleMidday, nudge.RuleEvening, nudge.RuleReminder}

// Validate checks the structural validity of a Config.
// It verifies the version field, checks that all referenced module IDs
// exist in the registry, and validates the assistant section.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	perNamespace := make(map[string][]string)
	for _, id := range Resolve(cfg) {
		if _, ok := core.GetModule(id); !ok {
			errs = append(errs, fmt.Errorf("config: unknown module %q", id))
			continue
		}
		ns := core.ModuleID(id).Namespace()
		perNamespace[ns] = append(perNamespace[ns], id)
	}
	for _, ns := range singletonNamespaces {
		if ids := perNamespace[ns]; len(ids) > 1 {
			errs = append(errs, fmt.Errorf("config: only one %s module may be configured, got %v", ns, ids))
		}
	}

	errs = append(errs, validateAssistant(cfg.Assistant)...)
	errs = append(errs, validateSecurity(cfg.Security)...)

	return errors.Join(errs...)
}

func validateAssistant(a AssistantConfig) []error {
	var errs []error

	if _, err := a.Location(); err != nil {
		errs = append(errs, err)
	}
	if _, err := a.Quiet(); err != nil {
		errs = append(errs, err)
	}
	if _, err := a.BuiltinOptions(); err != nil {
		errs = append(errs, err)
	}

	n := a.Nudges
	if n.Window < 0 {
		errs = append(errs, errors.New("config: assistant.nudges.window must not be negative"))
	}
	if n.InactivityThreshold < 0 {
		errs = append(errs, errors.New("config: assistant.nudges.inactivity_threshold must not be negative"))
	}
	if n.Expiry < 0 {
		errs = append(errs, errors.New("config: assistant.nudges.expiry must not be negative"))
	}
	for _, id := range n.Disabled {
		if !slices.Contains(builtinRuleIDs, id) {
			errs = append(errs, fmt.Errorf("config: assistant.nudges.disabled: unknown rule %q (known: %v)", id, builtinRuleIDs))
		}
	}

	if a.Memory.MaxRecords < 0 {
		errs = append(errs, errors.New("config: assistant.memory.max_records must not be negative"))
	}
	if a.Memory.RemoteTimeout < 0 {
		errs = append(errs, errors.New("config: assistant.memory.remote_timeout must not be negative"))
	}
	if a.Memory.ContextRecords < 0 {
		errs = append(errs, errors.New("config: assistant.memory.context_records must not be negative"))
	}
	if a.Conversation.MaxSessions < 0 {
		errs = append(errs, errors.New("config: assistant.conversation.max_sessions must not be negative"))
	}
	if a.Conversation.HistoryWindow < 0 {
		errs = append(errs, errors.New("config: assistant.conversation.history_window must not be negative"))
	}

	if r := a.Telemetry.SampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("config: assistant.telemetry.sample_ratio must be within [0, 1], got %v", r))
	}
	return errs
}

func validateSecurity(sec SecurityConfig) []error {
	var errs []error
	if sec.RateLimits.ChatPerMin < 0 {
		errs = append(errs, errors.New("config: security.rate_limits.chat_per_min must not be negative"))
	}
	if sec.RateLimits.TriggerPerMin < 0 {
		errs = append(errs, errors.New("config: security.rate_limits.trigger_per_min must not be negative"))
	}
	return errs
}
