package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/nudgeme/nudgeme/internal/provider"
)

// Exchange is one user message and the assistant's reply to it.
type Exchange struct {
	User      string
	Assistant string
}

// Draft is a fact proposed by an extractor, not yet stored.
type Draft struct {
	Content  string
	Category Category
}

// FactExtractor analyzes exchanges to find facts worth remembering.
type FactExtractor interface {
	Extract(ctx context.Context, exchange Exchange) ([]Draft, error)
}

// LLMExtractor asks a provider which facts an exchange reveals.
type LLMExtractor struct {
	provider provider.Provider
}

// NewLLMExtractor creates an extractor backed by p.
func NewLLMExtractor(p provider.Provider) *LLMExtractor {
	return &LLMExtractor{provider: p}
}

var _ FactExtractor = (*LLMExtractor)(nil)

const extractionPrompt = `Analyze the following exchange and extract durable facts about the user.
Return one fact per line in the form "category: fact", where category is one of
health, work, family, preferences, events, general.
If there are no facts worth remembering, return "NONE".

User: %s
Assistant: %s

Facts:`

// Extract returns the facts found in exchange.
// Returns nil (not an error) if nothing worth remembering is found.
func (e *LLMExtractor) Extract(ctx context.Context, exchange Exchange) ([]Draft, error) {
	resp, err := e.provider.Complete(ctx, provider.CompletionRequest{
		Messages: []provider.LLMMessage{{
			Role:    provider.MessageRoleUser,
			Content: fmt.Sprintf(extractionPrompt, exchange.User, exchange.Assistant),
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("memory: extraction failed: %w", err)
	}
	return parseDrafts(resp.Content), nil
}

// parseDrafts reads one "category: fact" per line. Lines without a known
// category prefix are kept whole under general.
func parseDrafts(response string) []Draft {
	response = strings.TrimSpace(response)
	if response == "" || response == "NONE" {
		return nil
	}

	var drafts []Draft
	for _, line := range splitLines(response) {
		line = trimBullet(line)
		if line == "" || line == "NONE" {
			continue
		}
		d := Draft{Content: line, Category: CategoryGeneral}
		if prefix, rest, ok := strings.Cut(line, ":"); ok {
			if c := ParseCategory(prefix); c != CategoryGeneral || strings.EqualFold(strings.TrimSpace(prefix), string(CategoryGeneral)) {
				d = Draft{Content: strings.TrimSpace(rest), Category: c}
			}
		}
		if d.Content != "" {
			drafts = append(drafts, d)
		}
	}
	return drafts
}

// splitLines splits text by newlines, trimming whitespace and filtering blanks.
func splitLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	return lines
}

// trimBullet removes leading bullet markers ("- ", "* ", "1. ", etc.).
func trimBullet(s string) string {
	if len(s) >= 2 && (s[0] == '-' || s[0] == '*') && s[1] == ' ' {
		return s[2:]
	}
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i > 0 && i+1 < len(s) && s[i] == '.' && s[i+1] == ' ' {
		return s[i+2:]
	}
	return s
}

// NopExtractor is used when fact extraction is disabled.
type NopExtractor struct{}

var _ FactExtractor = NopExtractor{}

// Extract always returns nil.
func (NopExtractor) Extract(context.Context, Exchange) ([]Draft, error) {
	return nil, nil
}
