package nudge

import (
	"errors"
	"testing"
	"time"
)

func TestParseDailyWindow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		want    DailyWindow
		wantErr bool
	}{
		{"22:00-07:00", DailyWindow{Start: 22 * time.Hour, End: 7 * time.Hour}, false},
		{"08:30 - 12:15", DailyWindow{Start: 8*time.Hour + 30*time.Minute, End: 12*time.Hour + 15*time.Minute}, false},
		{"0800-1200", DailyWindow{}, true},
		{"25:00-07:00", DailyWindow{}, true},
		{"08:00", DailyWindow{}, true},
		{"", DailyWindow{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			got, err := ParseDailyWindow(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidWindow) {
					t.Fatalf("err = %v, want ErrInvalidWindow", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDailyWindow_Contains(t *testing.T) {
	t.Parallel()

	at := func(h, m int) time.Time { return time.Date(2025, 3, 10, h, m, 0, 0, time.UTC) }
	night := DailyWindow{Start: 22 * time.Hour, End: 7 * time.Hour}
	day := DailyWindow{Start: 8 * time.Hour, End: 22 * time.Hour}

	tests := []struct {
		name string
		w    DailyWindow
		t    time.Time
		want bool
	}{
		{"wrap late evening", night, at(23, 30), true},
		{"wrap early morning", night, at(6, 59), true},
		{"wrap end exclusive", night, at(7, 0), false},
		{"wrap midday", night, at(12, 0), false},
		{"plain start inclusive", day, at(8, 0), true},
		{"plain end exclusive", day, at(22, 0), false},
		{"plain before", day, at(7, 59), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.w.Contains(tt.t); got != tt.want {
				t.Errorf("Contains(%s) = %v, want %v", tt.t.Format("15:04"), got, tt.want)
			}
		})
	}
}

func TestParseTimeOfDay(t *testing.T) {
	t.Parallel()

	got, err := ParseTimeOfDay("12:30")
	if err != nil || got != (TimeOfDay{Hour: 12, Minute: 30}) {
		t.Fatalf("ParseTimeOfDay = %+v, %v", got, err)
	}
	if got.String() != "12:30" {
		t.Errorf("String() = %q", got.String())
	}
	if _, err := ParseTimeOfDay("7"); !errors.Is(err, ErrInvalidWindow) {
		t.Errorf("err = %v, want ErrInvalidWindow", err)
	}
}

func TestSameDay(t *testing.T) {
	t.Parallel()

	paris, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// 23:30 UTC on the 10th is 00:30 on the 11th in Paris.
	a := time.Date(2025, 3, 10, 23, 30, 0, 0, time.UTC)
	b := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	if !sameDay(a, b, time.UTC) {
		t.Error("same UTC day")
	}
	if sameDay(a, b, paris) {
		t.Error("different Paris days")
	}
}
