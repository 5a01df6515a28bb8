// Package mcpserver exposes the assistant's memory and conversations as
// Model Context Protocol tools.
package mcpserver

import (
	"context"
	"io"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/nudgeme/nudgeme/internal/conversation"
	"github.com/nudgeme/nudgeme/internal/memory"
	"github.com/nudgeme/nudgeme/internal/nudge"
)

// Deps are the stores backing the tools. Tools whose store is nil are not
// registered.
type Deps struct {
	Memory        *memory.Store
	Conversations *conversation.Store
	Engine        *nudge.Engine
}

type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
	needs   func(Deps) bool
}

var (
	needsMemory        = func(d Deps) bool { return d.Memory != nil }
	needsConversations = func(d Deps) bool { return d.Conversations != nil }
	needsEngine        = func(d Deps) bool { return d.Engine != nil }
)

// toolRegistry lists every tool in registration order.
var toolRegistry = []toolEntry{
	{def: memoryAddTool, handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleMemoryAdd }, needs: needsMemory},
	{def: memorySearchTool, handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleMemorySearch }, needs: needsMemory},
	{def: memoryRecentTool, handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleMemoryRecent }, needs: needsMemory},
	{def: memoryDeleteTool, handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleMemoryDelete }, needs: needsMemory},
	{def: sessionListTool, handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSessionList }, needs: needsConversations},
	{def: sessionReadTool, handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSessionRead }, needs: needsConversations},
	{def: nudgeCurrentTool, handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleNudgeCurrent }, needs: needsEngine},
}

// ToolNames returns the names of the tools New registers for deps.
func ToolNames(deps Deps) []string {
	var names []string
	for _, e := range toolRegistry {
		if e.needs(deps) {
			names = append(names, e.def.Name)
		}
	}
	return names
}

// New creates an MCP server with a tool set matching deps.
func New(deps Deps, version string) *server.MCPServer {
	s := server.NewMCPServer("nudgeme", version, server.WithToolCapabilities(true))
	h := NewHandlers(deps)
	for _, e := range toolRegistry {
		if e.needs(deps) {
			s.AddTool(e.def, e.handler(h))
		}
	}
	return s
}

// ServeStdio runs s over the given streams until ctx is canceled or in
// reaches EOF.
func ServeStdio(ctx context.Context, s *server.MCPServer, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s).Listen(ctx, in, out)
}

// HTTPHandler serves s over the streamable HTTP transport.
func HTTPHandler(s *server.MCPServer) http.Handler {
	return server.NewStreamableHTTPServer(s)
}
