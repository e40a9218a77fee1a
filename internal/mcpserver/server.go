// Package mcpserver exposes the SSH executor over the Model Context
// Protocol. Agents call the registered tools; the transport is stdio.
package mcpserver

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/mkvold/shellbridge/internal/history"
	"github.com/mkvold/shellbridge/internal/logging"
	"github.com/mkvold/shellbridge/internal/registry"
	"github.com/mkvold/shellbridge/internal/sshexec"
)

// Server wraps the MCP server with the shellbridge tool set.
type Server struct {
	mcpServer *mcp.Server
	reg       *registry.Registry
	executor  *sshexec.Executor
	hist      *history.Store
	log       zerolog.Logger
}

// Config holds configuration for the MCP server.
type Config struct {
	Version  string
	Registry *registry.Registry
	Executor *sshexec.Executor

	// History enables the command_history tool when non-nil.
	History *history.Store
}

// New creates an MCP server with all tools registered.
func New(cfg Config) *Server {
	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    "shellbridge",
		Version: cfg.Version,
	}, nil)

	s := &Server{
		mcpServer: mcpServer,
		reg:       cfg.Registry,
		executor:  cfg.Executor,
		hist:      cfg.History,
		log:       logging.Component("mcp"),
	}
	s.registerTools()
	return s
}

// Run serves MCP over stdio until the context is canceled or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.log.Info().Int("servers", s.reg.Len()).Msg("mcp server starting on stdio")
	return s.mcpServer.Run(ctx, &mcp.StdioTransport{})
}
