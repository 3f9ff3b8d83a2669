// Package server provides the MCP front-end for the Memphora adapter.
package server

// ToolServer is an MCP server that exposes the Memphora tools, resources
// and prompts to an MCP host.
type ToolServer interface {
	// Initialize registers every capability on the underlying MCP server.
	Initialize() error

	// HandleMessage answers one JSON-RPC message. It returns nil for
	// notifications and responses.
	HandleMessage(message []byte) ([]byte, error)

	// Start serves MCP over stdio until the host disconnects.
	Start() error

	// Stop cancels in-flight calls and ends Start.
	Stop() error
}

var _ ToolServer = (*MemphoraServer)(nil)
