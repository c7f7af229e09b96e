// Cycle bot MCP server.
// Exposes the cycle bot's HTTP API as MCP tools over stdio.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	mcptools "github.com/gateway-fm/cyclebot/internal/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const defaultURL = "http://localhost:8080"

func main() {
	def := os.Getenv("CYCLEBOT_URL")
	if def == "" {
		def = defaultURL
	}
	baseURL := flag.String("url", def, "Cycle bot HTTP API base URL")
	flag.Parse()

	s := server.NewMCPServer(
		"cyclebot",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)
	mcptools.RegisterTools(s, mcptools.NewClient(strings.TrimRight(*baseURL, "/")))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
		os.Exit(1)
	}
}
