package adapter

import (
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// MCPHandler returns a stateless streamable HTTP handler for the given MCP
// server. Stateless mode lets clients call tools without a session handshake.
func MCPHandler(server *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return server
	}, &mcp.StreamableHTTPOptions{Stateless: true})
}
