// Package memory stores the user's long-term notes and facts: a capped,
// timestamped, flat list persisted as one JSON document, optionally mirrored
// to a remote document store.
package memory

import (
	"slices"
	"strings"
	"time"
)

// Category groups records for display and filtering.
type Category string

// Category values. The set is closed; anything else is stored as general.
const (
	CategoryHealth      Category = "health"
	CategoryWork        Category = "work"
	CategoryFamily      Category = "family"
	CategoryPreferences Category = "preferences"
	CategoryEvents      Category = "events"
	CategoryGeneral     Category = "general"
)

// Categories lists every valid category.
var Categories = []Category{
	CategoryHealth,
	CategoryWork,
	CategoryFamily,
	CategoryPreferences,
	CategoryEvents,
	CategoryGeneral,
}

// ParseCategory maps s onto the closed set, case-insensitively.
// Unknown or empty values become CategoryGeneral.
func ParseCategory(s string) Category {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if slices.Contains(Categories, c) {
		return c
	}
	return CategoryGeneral
}

// Record is one remembered fact or logged chat turn.
type Record struct {
	ID        string     `json:"id"`
	Content   string     `json:"content"`
	Category  Category   `json:"category"`
	Tags      []string   `json:"tags,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// Filter narrows List results. Zero fields match everything.
type Filter struct {
	Category Category
	// Tag matches records carrying this tag, case-insensitively.
	Tag string
	// Query is a case-insensitive substring matched against content and tags.
	Query string
	// Limit caps the number of results; zero means no limit.
	Limit int
}

// Match reports whether r satisfies every set field of f. Limit is ignored.
func (f Filter) Match(r Record) bool {
	if f.Category != "" && r.Category != f.Category {
		return false
	}
	if f.Tag != "" && !slices.ContainsFunc(r.Tags, func(t string) bool {
		return strings.EqualFold(t, f.Tag)
	}) {
		return false
	}
	if f.Query != "" {
		q := strings.ToLower(f.Query)
		if strings.Contains(strings.ToLower(r.Content), q) {
			return true
		}
		return slices.ContainsFunc(r.Tags, func(t string) bool {
			return strings.Contains(strings.ToLower(t), q)
		})
	}
	return true
}

// normalizeTags trims, drops empties, and removes case-insensitive duplicates.
func normalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		key := strings.ToLower(t)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
