// SocialBets MCP Server - exposes bet tools to LLM agents over stdio
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/betdapp/socialbets-smartcontracts/internal/mcpserver"
)

var Version = "dev"

func main() {
	cfg := mcpserver.Config{
		APIURL:     envOrDefault("SOCIALBETS_API_URL", "http://localhost:8080"),
		PrivateKey: os.Getenv("SOCIALBETS_PRIVATE_KEY"),
	}
	if cfg.PrivateKey == "" {
		fmt.Fprintln(os.Stderr, "SOCIALBETS_PRIVATE_KEY not set, write tools will fail")
	}

	s, err := mcpserver.NewMCPServer(cfg, Version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid SOCIALBETS_PRIVATE_KEY: %v\n", err)
		os.Exit(1)
	}
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
		os.Exit(1)
	}
}

func envOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
