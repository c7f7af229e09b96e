package mcp

import (
	"context"
	"fmt"
	"net/url"

	gomcp "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// RegisterTools registers all cycle bot tools on the MCP server.
func RegisterTools(s *server.MCPServer, client *Client) {
	s.AddTool(gomcp.NewTool("cyclebot_status",
		gomcp.WithDescription("Get the current cycle bot status: run state, active wallet, cycle progress, adapter table, balances, recent operations and latency."),
	), statusHandler(client))

	s.AddTool(gomcp.NewTool("cyclebot_health",
		gomcp.WithDescription("Quick health check for the cycle bot API."),
	), healthHandler(client))

	s.AddTool(gomcp.NewTool("cyclebot_history",
		gomcp.WithDescription("List the recent cycle history (time and amount) of the active wallet."),
	), historyHandler(client))

	s.AddTool(gomcp.NewTool("cyclebot_runs",
		gomcp.WithDescription("List recorded wallet runs with summary counts (paginated, newest first)."),
		gomcp.WithNumber("limit",
			gomcp.Description("Max results to return (default: 10, max: 100)"),
		),
		gomcp.WithNumber("offset",
			gomcp.Description("Results offset for pagination (default: 0)"),
		),
	), runsHandler(client))

	s.AddTool(gomcp.NewTool("cyclebot_run_detail",
		gomcp.WithDescription("Get a recorded wallet run by ID."),
		gomcp.WithString("id",
			gomcp.Required(),
			gomcp.Description("Wallet run ID"),
		),
	), runDetailHandler(client))

	s.AddTool(gomcp.NewTool("cyclebot_run_operations",
		gomcp.WithDescription("Get the adapter operations of a recorded wallet run (paginated)."),
		gomcp.WithString("id",
			gomcp.Required(),
			gomcp.Description("Wallet run ID"),
		),
		gomcp.WithNumber("limit",
			gomcp.Description("Max operations to return (default: 50, max: 100)"),
		),
		gomcp.WithNumber("offset",
			gomcp.Description("Offset for pagination (default: 0)"),
		),
	), runOperationsHandler(client))

	s.AddTool(gomcp.NewTool("cyclebot_delete_run",
		gomcp.WithDescription("Delete a recorded wallet run and its operations. This is a MUTATING operation."),
		gomcp.WithString("id",
			gomcp.Required(),
			gomcp.Description("Wallet run ID to delete"),
		),
	), deleteRunHandler(client))
}

func statusHandler(client *Client) server.ToolHandlerFunc {
	return func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		raw, err := client.Get(ctx, "/v1/status")
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Cycle bot unreachable: %v\n\nIs it running with -listen set?", err)), nil
		}
		return gomcp.NewToolResultText(formatStatus(raw)), nil
	}
}

func healthHandler(client *Client) server.ToolHandlerFunc {
	return func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		raw, err := client.Get(ctx, "/health")
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Cycle bot unhealthy: %v", err)), nil
		}
		return gomcp.NewToolResultText(formatHealth(raw)), nil
	}
}

func historyHandler(client *Client) server.ToolHandlerFunc {
	return func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		raw, err := client.Get(ctx, "/v1/history")
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("History failed: %v", err)), nil
		}
		return gomcp.NewToolResultText(formatHistory(raw)), nil
	}
}

func runsHandler(client *Client) server.ToolHandlerFunc {
	return func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		limit := req.GetInt("limit", 10)
		offset := req.GetInt("offset", 0)

		raw, err := client.Get(ctx, fmt.Sprintf("/v1/runs?limit=%d&offset=%d", limit, offset))
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Runs failed: %v", err)), nil
		}
		return gomcp.NewToolResultText(formatRuns(raw)), nil
	}
}

func runDetailHandler(client *Client) server.ToolHandlerFunc {
	return func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return gomcp.NewToolResultError("id is required"), nil
		}
		raw, err := client.Get(ctx, "/v1/runs/"+url.PathEscape(id))
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Run detail failed: %v", err)), nil
		}
		return gomcp.NewToolResultText(formatRun(raw)), nil
	}
}

func runOperationsHandler(client *Client) server.ToolHandlerFunc {
	return func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return gomcp.NewToolResultError("id is required"), nil
		}
		limit := req.GetInt("limit", 50)
		offset := req.GetInt("offset", 0)

		path := fmt.Sprintf("/v1/runs/%s/operations?limit=%d&offset=%d", url.PathEscape(id), limit, offset)
		raw, err := client.Get(ctx, path)
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Run operations failed: %v", err)), nil
		}
		return gomcp.NewToolResultText(formatOperations(raw)), nil
	}
}

func deleteRunHandler(client *Client) server.ToolHandlerFunc {
	return func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return gomcp.NewToolResultError("id is required"), nil
		}
		if _, err := client.Delete(ctx, "/v1/runs/"+url.PathEscape(id)); err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Delete failed: %v", err)), nil
		}
		return gomcp.NewToolResultText(joinLines(
			section("Wallet Run Deleted"),
			kv("ID", id),
		)), nil
	}
}
