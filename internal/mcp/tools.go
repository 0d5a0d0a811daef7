package mcp

import (
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// NewServer creates an MCP server exposing the relay inspection tools
func NewServer(h *Handler, version string) *mcpsdk.Server {
	server := mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    "relay-tools",
		Version: version,
	}, nil)
	RegisterTools(server, h)
	return server
}

// RegisterTools registers all relay inspection tools on server
func RegisterTools(server *mcpsdk.Server, h *Handler) {
	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "relay_get_context",
		Description: "Get the role-tagged context window the relay would send to the model for a conversation: the persona first, then recent messages oldest first.",
	}, h.GetContext)

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "relay_get_history",
		Description: "Get recent stored messages of a conversation, oldest first, including the assistant's own replies.",
	}, h.GetHistory)

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "relay_get_buffer",
		Description: "Get the messages still waiting in a conversation's pending buffer. Does not drain the buffer.",
	}, h.GetBuffer)
}
