package mcpserver

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/nudgeme/nudgeme/internal/memory"
)

func categoryNames() []string {
	out := make([]string, len(memory.Categories))
	for i, c := range memory.Categories {
		out[i] = string(c)
	}
	return out
}

var memoryAddTool = mcp.NewTool("memory_add",
	mcp.WithDescription("Remember a fact about the user."),
	mcp.WithString("content", mcp.Required(), mcp.Description("The fact, in one sentence.")),
	mcp.WithString("category", mcp.Enum(categoryNames()...), mcp.Description("Defaults to general.")),
	mcp.WithArray("tags", mcp.WithStringItems(), mcp.Description("Free-form labels.")),
)

var memorySearchTool = mcp.NewTool("memory_search",
	mcp.WithDescription("Find remembered facts, newest first. Every argument narrows the result."),
	mcp.WithString("query", mcp.Description("Case-insensitive text matched against content and tags.")),
	mcp.WithString("category", mcp.Enum(categoryNames()...)),
	mcp.WithString("tag"),
	mcp.WithNumber("limit", mcp.Description("Maximum number of records. Defaults to 20.")),
)

var memoryRecentTool = mcp.NewTool("memory_recent",
	mcp.WithDescription("List the most recently remembered facts."),
	mcp.WithNumber("limit", mcp.Description("Maximum number of records. Defaults to 10.")),
)

var memoryDeleteTool = mcp.NewTool("memory_delete",
	mcp.WithDescription("Forget one remembered fact."),
	mcp.WithString("id", mcp.Required()),
)

var sessionListTool = mcp.NewTool("session_list",
	mcp.WithDescription("List conversation sessions, most recently updated first, without their messages."),
)

var sessionReadTool = mcp.NewTool("session_read",
	mcp.WithDescription("Read the last messages of a conversation session."),
	mcp.WithString("id", mcp.Required()),
	mcp.WithNumber("limit", mcp.Description("Maximum number of messages. Defaults to 20.")),
)

var nudgeCurrentTool = mcp.NewTool("nudge_current",
	mcp.WithDescription("Show the pending nudge notification, if any."),
)
