package mcpserver

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/nudgeme/nudgeme/internal/conversation"
	"github.com/nudgeme/nudgeme/internal/memory"
)

// Result size defaults.
const (
	defaultSearchLimit  = 20
	defaultRecentLimit  = 10
	defaultMessageLimit = 20
	maxLimit            = 200
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	deps Deps
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(deps Deps) *Handlers {
	return &Handlers{deps: deps}
}

// MemoryAddRequest represents the arguments for memory_add.
type MemoryAddRequest struct {
	Content  string   `json:"content"`
	Category string   `json:"category,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// MemorySearchRequest represents the arguments for memory_search.
type MemorySearchRequest struct {
	Query    string `json:"query,omitempty"`
	Category string `json:"category,omitempty"`
	Tag      string `json:"tag,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// LimitRequest represents the arguments for memory_recent.
type LimitRequest struct {
	Limit int `json:"limit,omitempty"`
}

// IDRequest represents the arguments for memory_delete.
type IDRequest struct {
	ID string `json:"id"`
}

// SessionReadRequest represents the arguments for session_read.
type SessionReadRequest struct {
	ID    string `json:"id"`
	Limit int    `json:"limit,omitempty"`
}

// SessionSummary is one entry of session_list.
type SessionSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  int       `json:"messages"`
	Active    bool      `json:"active"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HandleMemoryAdd handles the memory_add tool call.
func (h *Handlers) HandleMemoryAdd(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	in, err := decode[MemoryAddRequest](req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if strings.TrimSpace(in.Content) == "" {
		return mcp.NewToolResultError("content is required"), nil
	}
	rec := h.deps.Memory.Append(ctx, in.Content, memory.ParseCategory(in.Category), in.Tags)
	return mcp.NewToolResultJSON(rec)
}

// HandleMemorySearch handles the memory_search tool call.
func (h *Handlers) HandleMemorySearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	in, err := decode[MemorySearchRequest](req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	f := memory.Filter{
		Query: in.Query,
		Tag:   in.Tag,
		Limit: clampLimit(in.Limit, defaultSearchLimit),
	}
	if in.Category != "" {
		f.Category = memory.ParseCategory(in.Category)
	}
	return recordsResult(h.deps.Memory.List(ctx, f))
}

// HandleMemoryRecent handles the memory_recent tool call.
func (h *Handlers) HandleMemoryRecent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	in, err := decode[LimitRequest](req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return recordsResult(h.deps.Memory.Recent(ctx, clampLimit(in.Limit, defaultRecentLimit)))
}

// HandleMemoryDelete handles the memory_delete tool call.
func (h *Handlers) HandleMemoryDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	in, err := decode[IDRequest](req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := h.deps.Memory.Delete(ctx, in.ID); err != nil {
		if errors.Is(err, memory.ErrNotFound) {
			return mcp.NewToolResultError("no memory with id " + in.ID), nil
		}
		return nil, err
	}
	return mcp.NewToolResultText("deleted " + in.ID), nil
}

// HandleSessionList handles the session_list tool call.
func (h *Handlers) HandleSessionList(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	active, _ := h.deps.Conversations.Active()
	sessions := h.deps.Conversations.ListSessions()
	out := make([]SessionSummary, len(sessions))
	for i, s := range sessions {
		out[i] = SessionSummary{
			ID:        s.ID,
			Title:     s.Title,
			Messages:  len(s.Messages),
			Active:    s.ID == active.ID,
			UpdatedAt: s.UpdatedAt,
		}
	}
	return mcp.NewToolResultJSON(map[string]any{"sessions": out})
}

// HandleSessionRead handles the session_read tool call.
func (h *Handlers) HandleSessionRead(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	in, err := decode[SessionReadRequest](req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	msgs, err := h.deps.Conversations.Recent(in.ID, clampLimit(in.Limit, defaultMessageLimit))
	if err != nil {
		if errors.Is(err, conversation.ErrNotFound) {
			return mcp.NewToolResultError("no session with id " + in.ID), nil
		}
		return nil, err
	}
	if msgs == nil {
		msgs = []conversation.Message{}
	}
	return mcp.NewToolResultJSON(map[string]any{"messages": msgs})
}

// HandleNudgeCurrent handles the nudge_current tool call.
func (h *Handlers) HandleNudgeCurrent(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n, ok := h.deps.Engine.Current()
	if !ok {
		return mcp.NewToolResultText("no pending nudge"), nil
	}
	return mcp.NewToolResultJSON(n)
}

// recordsResult wraps records in an object; structured tool output must
// be a JSON object.
func recordsResult(recs []memory.Record) (*mcp.CallToolResult, error) {
	if recs == nil {
		recs = []memory.Record{}
	}
	return mcp.NewToolResultJSON(map[string]any{"records": recs})
}

func clampLimit(n, def int) int {
	if n <= 0 {
		return def
	}
	return min(n, maxLimit)
}
