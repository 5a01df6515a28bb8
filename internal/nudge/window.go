package nudge

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidWindow is returned for malformed "HH:MM" or "HH:MM-HH:MM" values.
var ErrInvalidWindow = errors.New("nudge: invalid time window")

// TimeOfDay is a wall-clock time without a date.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM" (24-hour).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	off, err := parseTimeOffset(strings.TrimSpace(s))
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("%w: %w", ErrInvalidWindow, err)
	}
	return TimeOfDay{Hour: int(off / time.Hour), Minute: int(off % time.Hour / time.Minute)}, nil
}

// String formats t as "HH:MM".
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// DailyWindow is a recurring span of the day. Start > End wraps past
// midnight (e.g. "23:00-07:00").
type DailyWindow struct {
	Start time.Duration // offset from midnight
	End   time.Duration
}

// ParseDailyWindow parses a "HH:MM-HH:MM" string.
func ParseDailyWindow(s string) (DailyWindow, error) {
	startStr, endStr, ok := strings.Cut(s, "-")
	if !ok {
		return DailyWindow{}, fmt.Errorf("%w: expected HH:MM-HH:MM, got %q", ErrInvalidWindow, s)
	}

	start, err := parseTimeOffset(strings.TrimSpace(startStr))
	if err != nil {
		return DailyWindow{}, fmt.Errorf("%w: start: %w", ErrInvalidWindow, err)
	}
	end, err := parseTimeOffset(strings.TrimSpace(endStr))
	if err != nil {
		return DailyWindow{}, fmt.Errorf("%w: end: %w", ErrInvalidWindow, err)
	}
	return DailyWindow{Start: start, End: end}, nil
}

// Contains reports whether t's wall-clock time falls inside the window.
// The caller converts t to the desired timezone.
func (w DailyWindow) Contains(t time.Time) bool {
	offset := time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second

	if w.Start <= w.End {
		return offset >= w.Start && offset < w.End
	}
	return offset >= w.Start || offset < w.End
}

// parseTimeOffset parses "HH:MM" into a Duration from midnight.
func parseTimeOffset(s string) (time.Duration, error) {
	hs, ms, ok := strings.Cut(s, ":")
	if !ok {
		return 0, fmt.Errorf("expected HH:MM, got %q", s)
	}

	var h, m int
	if _, err := fmt.Sscanf(hs, "%d", &h); err != nil {
		return 0, fmt.Errorf("invalid hour: %q", hs)
	}
	if _, err := fmt.Sscanf(ms, "%d", &m); err != nil {
		return 0, fmt.Errorf("invalid minute: %q", ms)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("out of range: %02d:%02d", h, m)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, nil
}

// sameDay reports whether a and b fall on the same calendar day in loc.
func sameDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}
