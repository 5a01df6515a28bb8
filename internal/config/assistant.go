package config

import (
	"fmt"
	"time"

	"github.com/nudgeme/nudgeme/internal/nudge"
)

// Location resolves Timezone. An empty value yields time.Local.
func (a AssistantConfig) Location() (*time.Location, error) {
	if a.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: assistant.timezone: %w", err)
	}
	return loc, nil
}

// Quiet parses QuietHours. It returns nil when quiet hours are not set.
func (a AssistantConfig) Quiet() (*nudge.DailyWindow, error) {
	if a.QuietHours == "" {
		return nil, nil
	}
	w, err := nudge.ParseDailyWindow(a.QuietHours)
	if err != nil {
		return nil, fmt.Errorf("config: assistant.quiet_hours: %w", err)
	}
	return &w, nil
}

// BuiltinOptions converts the nudge settings into rule options, starting
// from nudge.DefaultBuiltinOptions. Activity is left for the caller to set.
func (a AssistantConfig) BuiltinOptions() (nudge.BuiltinOptions, error) {
	o := nudge.DefaultBuiltinOptions()
	o.UserName = a.UserName
	n := a.Nudges

	times := []struct {
		field string
		value string
		dst   *nudge.TimeOfDay
	}{
		{"morning", n.Morning, &o.Morning},
		{"midday", n.Midday, &o.Midday},
		{"evening", n.Evening, &o.Evening},
	}
	for _, tt := range times {
		if tt.value == "" {
			continue
		}
		t, err := nudge.ParseTimeOfDay(tt.value)
		if err != nil {
			return o, fmt.Errorf("config: assistant.nudges.%s: %w", tt.field, err)
		}
		*tt.dst = t
	}

	if n.Window > 0 {
		o.Window = n.Window
	}
	if n.InactivityThreshold > 0 {
		o.InactivityThreshold = n.InactivityThreshold
	}
	if n.WakingHours != "" {
		w, err := nudge.ParseDailyWindow(n.WakingHours)
		if err != nil {
			return o, fmt.Errorf("config: assistant.nudges.waking_hours: %w", err)
		}
		o.WakingHours = w
	}
	o.Disabled = n.Disabled
	return o, nil
}
