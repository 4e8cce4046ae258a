package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ashureev/goalcoach/internal/agent"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
)

func newMCPCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the coach tools over MCP stdio",
		Long: `Serve create_goal, update_goal, add_progress and list_goals as MCP
(Model Context Protocol) tools over stdio, scoped to --user.

Any MCP capable LLM client can then manage the same goals the coach sees.`,
		Example: `  # claude_desktop_config.json
  # {
  #   "mcpServers": {
  #     "goalcoach": {"command": "coachctl", "args": ["mcp", "--user", "me"]}
  #   }
  # }`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			repo, err := opts.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = repo.Close() }()

			server := newMCPServer(repo, opts.userID, opts.version)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			opts.logger().Info("MCP server starting on stdio", "user_id", opts.userID)
			serverErr := make(chan error, 1)
			go func() { serverErr <- mcpserver.ServeStdio(server) }()

			select {
			case <-ctx.Done():
				return nil
			case err := <-serverErr:
				if err != nil {
					return fmt.Errorf("mcp server: %w", err)
				}
				return nil
			}
		},
	}
}

// newMCPServer registers every coach tool bound to repo for userID.
func newMCPServer(repo agent.GoalRepository, userID, version string) *mcpserver.MCPServer {
	server := mcpserver.NewMCPServer("goalcoach", version, mcpserver.WithToolCapabilities(false))

	registry := agent.NewRegistry(agent.RepositoryCallbacks(repo, userID))
	for _, def := range registry.Definitions() {
		server.AddTool(mcp.NewToolWithRawSchema(def.Name, def.Description, def.Parameters), toolHandler(registry, def.Name))
	}
	return server
}

// toolHandler runs one registry tool. Tool failures are returned as error
// results so the client model can see and correct them.
func toolHandler(registry *agent.Registry, name string) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		if args == nil {
			args = map[string]any{}
		}
		raw, err := json.Marshal(args)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("encode arguments: %v", err)), nil
		}
		result, err := registry.Execute(ctx, name, raw)
		if err != nil {
			return mcp.NewToolResultError(result), nil
		}
		return mcp.NewToolResultText(result), nil
	}
}
