package nudge

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"
)

// Condition reports whether a rule should trigger at now. It must be fast
// and free of side effects. now is already in the engine's timezone.
type Condition func(ctx context.Context, now time.Time) (bool, error)

// Action runs when a rule triggers and returns the message it would show.
// Only the highest-priority triggered rule of a tick is surfaced.
type Action func(ctx context.Context, now time.Time) (Message, error)

// Rule is a named trigger. Its mutable state (enabled, last triggered)
// is owned by the Engine.
type Rule struct {
	ID          string
	Name        string
	Description string
	Family      Family
	Priority    Priority
	// Cooldown is the minimum spacing between two firings.
	Cooldown time.Duration
	// Daily rules fire at most once per calendar day regardless of Cooldown.
	Daily bool
	// Disabled is the initial state used when nothing has been persisted.
	Disabled bool

	Condition Condition
	Action    Action
}

// ErrInvalidRule is returned when a rule definition is incomplete.
var ErrInvalidRule = errors.New("nudge: invalid rule")

func (r Rule) validate() error {
	var errs []error
	if r.ID == "" {
		errs = append(errs, errors.New("id is required"))
	}
	if r.Family != FamilyTimed && r.Family != FamilyContextual {
		errs = append(errs, fmt.Errorf("unknown family %q", r.Family))
	}
	if r.Priority < PriorityLow || r.Priority > PriorityHigh {
		errs = append(errs, fmt.Errorf("unknown priority %d", r.Priority))
	}
	if r.Cooldown < 0 {
		errs = append(errs, errors.New("cooldown must not be negative"))
	}
	if r.Condition == nil {
		errs = append(errs, errors.New("condition is required"))
	}
	if r.Action == nil {
		errs = append(errs, errors.New("action is required"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w %q: %w", ErrInvalidRule, r.ID, errors.Join(errs...))
	}
	return nil
}

// DailyAt matches when now is within window after hour:minute. A window
// that starts late in the evening carries over past midnight. Pair it with a
// Daily rule so it fires once per day.
func DailyAt(at TimeOfDay, window time.Duration) Condition {
	return func(_ context.Context, now time.Time) (bool, error) {
		for _, day := range []int{0, -1} {
			target := time.Date(now.Year(), now.Month(), now.Day()+day, at.Hour, at.Minute, 0, 0, now.Location())
			if d := now.Sub(target); d >= 0 && d < window {
				return true, nil
			}
		}
		return false, nil
	}
}

// Show returns an action that surfaces the built message for t.
func Show(t Type, userName string) Action {
	msg := Build(t, userName)
	return func(context.Context, time.Time) (Message, error) {
		return msg, nil
	}
}

// ActivitySource reports when the user last talked to the assistant.
type ActivitySource interface {
	LastActivity() (time.Time, bool)
}

// Inactive matches when the user has been quiet for at least threshold
// while inside waking. A user who never talked counts as inactive.
func Inactive(src ActivitySource, threshold time.Duration, waking DailyWindow) Condition {
	return func(_ context.Context, now time.Time) (bool, error) {
		if !waking.Contains(now) {
			return false, nil
		}
		last, ok := src.LastActivity()
		if !ok {
			return true, nil
		}
		return now.Sub(last) >= threshold, nil
	}
}

// Built-in rule identifiers.
const (
	RuleMorning  = "morning"
	RuleMidday   = "midday"
	RuleEvening  = "evening"
	RuleReminder = "reminder"
)

// BuiltinOptions configures the default rule set.
type BuiltinOptions struct {
	UserName string

	Morning TimeOfDay
	Midday  TimeOfDay
	Evening TimeOfDay
	// Window is the matching tolerance after each time of day.
	Window time.Duration

	// Activity feeds the reminder rule. The rule is omitted when nil.
	Activity            ActivitySource
	InactivityThreshold time.Duration
	WakingHours         DailyWindow

	// Disabled lists rule ids that start disabled.
	Disabled []string
}

// DefaultBuiltinOptions returns the stock schedule.
func DefaultBuiltinOptions() BuiltinOptions {
	return BuiltinOptions{
		Morning:             TimeOfDay{Hour: 7},
		Midday:              TimeOfDay{Hour: 12, Minute: 30},
		Evening:             TimeOfDay{Hour: 21},
		Window:              2 * time.Minute,
		InactivityThreshold: 4 * time.Hour,
		WakingHours:         DailyWindow{Start: 8 * time.Hour, End: 22 * time.Hour},
	}
}

// BuiltinRules returns the morning, midday, evening and reminder rules.
func BuiltinRules(o BuiltinOptions) []Rule {
	if o.Window <= 0 {
		o.Window = 2 * time.Minute
	}
	if o.InactivityThreshold <= 0 {
		o.InactivityThreshold = 4 * time.Hour
	}

	timed := func(id, name, desc string, t Type, at TimeOfDay) Rule {
		return Rule{
			ID:          id,
			Name:        name,
			Description: fmt.Sprintf(desc, at),
			Family:      FamilyTimed,
			Priority:    Build(t, o.UserName).Priority,
			Cooldown:    time.Hour,
			Daily:       true,
			Disabled:    slices.Contains(o.Disabled, id),
			Condition:   DailyAt(at, o.Window),
			Action:      Show(t, o.UserName),
		}
	}

	rules := []Rule{
		timed(RuleMorning, "Morning greeting", "Starts the day at %s.", TypeMorning, o.Morning),
		timed(RuleMidday, "Midday check-in", "Checks in at %s.", TypeMidday, o.Midday),
		timed(RuleEvening, "Evening reflection", "Winds the day down at %s.", TypeEvening, o.Evening),
	}

	if o.Activity != nil {
		rules = append(rules, Rule{
			ID:          RuleReminder,
			Name:        "Inactivity reminder",
			Description: fmt.Sprintf("Checks in after %s without conversation during waking hours.", o.InactivityThreshold),
			Family:      FamilyContextual,
			Priority:    PriorityLow,
			Cooldown:    o.InactivityThreshold,
			Disabled:    slices.Contains(o.Disabled, RuleReminder),
			Condition:   Inactive(o.Activity, o.InactivityThreshold, o.WakingHours),
			Action:      Show(TypeReminder, o.UserName),
		})
	}
	return rules
}
