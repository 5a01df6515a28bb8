package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/nudgeme/nudgeme/internal/provider"
	"github.com/nudgeme/nudgeme/internal/provider/providertest"
)

func testExchange() Exchange {
	return Exchange{
		User:      "I prefer dark mode and my sister Ana visits on Sundays",
		Assistant: "Noted! Enjoy your Sundays with Ana.",
	}
}

func TestLLMExtractor_Extract_ReturnsDrafts(t *testing.T) {
	t.Parallel()

	mp := providertest.Replying("- preferences: prefers dark mode\n- family: sister Ana visits on Sundays")
	drafts, err := NewLLMExtractor(mp).Extract(context.Background(), testExchange())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []Draft{
		{Content: "prefers dark mode", Category: CategoryPreferences},
		{Content: "sister Ana visits on Sundays", Category: CategoryFamily},
	}
	if len(drafts) != len(want) {
		t.Fatalf("got %d drafts, want %d: %+v", len(drafts), len(want), drafts)
	}
	for i := range want {
		if drafts[i] != want[i] {
			t.Errorf("drafts[%d] = %+v, want %+v", i, drafts[i], want[i])
		}
	}

	reqs := mp.Requests()
	if len(reqs) != 1 || reqs[0].Messages[0].Role != provider.MessageRoleUser {
		t.Errorf("unexpected provider requests: %+v", reqs)
	}
}

func TestLLMExtractor_Extract_ProviderError(t *testing.T) {
	t.Parallel()

	drafts, err := NewLLMExtractor(providertest.Failing(provider.ErrProviderDown)).
		Extract(context.Background(), testExchange())
	if !errors.Is(err, provider.ErrProviderDown) {
		t.Fatalf("err = %v, want wrapping ErrProviderDown", err)
	}
	if drafts != nil {
		t.Fatalf("expected nil drafts, got %v", drafts)
	}
}

func TestNopExtractor_Extract(t *testing.T) {
	t.Parallel()

	drafts, err := NopExtractor{}.Extract(context.Background(), testExchange())
	if err != nil || drafts != nil {
		t.Fatalf("got (%v, %v), want (nil, nil)", drafts, err)
	}
}

func TestParseDrafts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		response string
		want     []Draft
	}{
		{name: "empty", response: "", want: nil},
		{name: "none", response: "NONE", want: nil},
		{
			name:     "numbered with categories",
			response: "1. work: started a new job at Acme\n2. health: allergic to peanuts",
			want: []Draft{
				{Content: "started a new job at Acme", Category: CategoryWork},
				{Content: "allergic to peanuts", Category: CategoryHealth},
			},
		},
		{
			name:     "unknown prefix kept whole",
			response: "* note: likes tea",
			want:     []Draft{{Content: "note: likes tea", Category: CategoryGeneral}},
		},
		{
			name:     "explicit general",
			response: "General: lives in Lyon",
			want:     []Draft{{Content: "lives in Lyon", Category: CategoryGeneral}},
		},
		{
			name:     "plain line",
			response: "likes Go\n\n",
			want:     []Draft{{Content: "likes Go", Category: CategoryGeneral}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := parseDrafts(tt.response)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d drafts, want %d: %+v", len(got), len(tt.want), got)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("drafts[%d] = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestTrimBullet(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  string
	}{
		{"- hello", "hello"},
		{"* hello", "hello"},
		{"1. hello", "hello"},
		{"12. hello", "hello"},
		{"hello", "hello"},
		{"", ""},
		{"-- double dash", "-- double dash"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			if got := trimBullet(tt.input); got != tt.want {
				t.Errorf("trimBullet(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
