package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ListServersInput represents input for the list_servers tool.
type ListServersInput struct{}

// ServerInfo is one configured server in a list_servers result.
type ServerInfo struct {
	Slug    string `json:"slug"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
	User    string `json:"user"`
	Default bool   `json:"default"`
}

// ExecuteCommandInput represents input for the execute_command tool.
type ExecuteCommandInput struct {
	Command string `json:"command" jsonschema:"required" jsonschema_description:"Shell command to execute on the remote server"`
	Server  string `json:"server,omitempty" jsonschema_description:"Slug of the target server; omit to use the default server"`
}

// ExecuteCommandResult is the structured result of execute_command.
type ExecuteCommandResult struct {
	Server   string `json:"server"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exitCode"`
}

// CommandHistoryInput represents input for the command_history tool.
type CommandHistoryInput struct {
	Server string `json:"server,omitempty" jsonschema_description:"Only show executions against this server slug"`
	Limit  int    `json:"limit,omitempty" jsonschema_description:"Maximum number of entries to return (default 20)"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer,
		&mcp.Tool{
			Name:        "list_servers",
			Description: "List the configured SSH servers. The default server is used when execute_command omits an explicit server.",
		},
		func(ctx context.Context, req *mcp.CallToolRequest, args ListServersInput) (*mcp.CallToolResult, any, error) {
			return s.handleListServers(ctx)
		},
	)

	mcp.AddTool(s.mcpServer,
		&mcp.Tool{
			Name:        "execute_command",
			Description: "Execute a shell command on a configured SSH server and return its stdout, stderr, and exit code.",
		},
		func(ctx context.Context, req *mcp.CallToolRequest, args ExecuteCommandInput) (*mcp.CallToolResult, any, error) {
			return s.handleExecuteCommand(ctx, args)
		},
	)

	if s.hist != nil {
		mcp.AddTool(s.mcpServer,
			&mcp.Tool{
				Name:        "command_history",
				Description: "Show recently executed commands with their exit codes.",
			},
			func(ctx context.Context, req *mcp.CallToolRequest, args CommandHistoryInput) (*mcp.CallToolResult, any, error) {
				return s.handleCommandHistory(ctx, args)
			},
		)
	}
}

func (s *Server) handleListServers(ctx context.Context) (*mcp.CallToolResult, any, error) {
	defaultSlug := s.reg.DefaultSlug()

	var b strings.Builder
	infos := make([]ServerInfo, 0, s.reg.Len())
	for _, slug := range s.reg.Slugs() {
		desc, err := s.reg.Get(slug)
		if err != nil {
			return toolError(err.Error())
		}
		host, port := desc.Addr()
		info := ServerInfo{
			Slug:    slug,
			Host:    host,
			Port:    port,
			User:    desc.User,
			Default: slug == defaultSlug,
		}
		infos = append(infos, info)

		marker := ""
		if info.Default {
			marker = " (default)"
		}
		fmt.Fprintf(&b, "%s%s - %s@%s:%d\n", slug, marker, desc.User, host, port)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: b.String()}},
	}, infos, nil
}

func (s *Server) handleExecuteCommand(ctx context.Context, args ExecuteCommandInput) (*mcp.CallToolResult, any, error) {
	if args.Command == "" {
		return toolError("command is required")
	}

	result, err := s.executor.Execute(ctx, args.Command, args.Server)
	if err != nil {
		// SSHError already carries the slug (or "unknown") in its message.
		return toolError(err.Error())
	}

	var b strings.Builder
	b.WriteString("stdout:\n")
	b.WriteString(result.Stdout)
	if !strings.HasSuffix(result.Stdout, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("\nstderr:\n")
	b.WriteString(result.Stderr)
	if !strings.HasSuffix(result.Stderr, "\n") {
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nexit code: %d\n", result.ExitCode)

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: b.String()}},
	}, ExecuteCommandResult{
		Server:   result.Slug,
		Stdout:   result.Stdout,
		Stderr:   result.Stderr,
		ExitCode: result.ExitCode,
	}, nil
}

func (s *Server) handleCommandHistory(ctx context.Context, args CommandHistoryInput) (*mcp.CallToolResult, any, error) {
	limit := args.Limit
	if limit <= 0 {
		limit = 20
	}
	entries, err := s.hist.Recent(ctx, args.Server, limit)
	if err != nil {
		return toolError(fmt.Sprintf("query history: %v", err))
	}

	if len(entries) == 0 {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: "no executions recorded\n"}},
		}, entries, nil
	}

	var b strings.Builder
	for _, e := range entries {
		status := fmt.Sprintf("exit %d", e.ExitCode)
		if e.Error != "" {
			status = e.Error
		}
		fmt.Fprintf(&b, "%s  [%s]  %s  (%s, %s)\n",
			e.StartedAt.Local().Format("2006-01-02 15:04:05"),
			e.Slug, e.Command, status, e.Duration)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: b.String()}},
	}, entries, nil
}

// toolError returns an error result for a tool call.
func toolError(message string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: message},
		},
		IsError: true,
	}, nil, nil
}
