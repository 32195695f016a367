package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/betdapp/socialbets-smartcontracts/pkg/socialbets"
)

// Config holds the configuration for connecting to the SocialBets API.
type Config struct {
	APIURL string // Base URL, e.g. "http://localhost:8080"
	// PrivateKey signs votes, joins and cranks. Empty means read-only tools.
	PrivateKey string
}

// NewMCPServer creates a configured MCP server with all SocialBets tools registered.
func NewMCPServer(cfg Config, version string) (*server.MCPServer, error) {
	opts := []socialbets.Option{}
	if cfg.PrivateKey != "" {
		key, err := socialbets.KeyFromHex(cfg.PrivateKey)
		if err != nil {
			return nil, err
		}
		opts = append(opts, socialbets.WithKey(key))
	}
	client := socialbets.NewClient(cfg.APIURL, opts...)
	return newServer(NewHandlers(client, client.Address()), version), nil
}

func newServer(h *Handlers, version string) *server.MCPServer {
	s := server.NewMCPServer("socialbets", version)

	s.AddTool(ToolGetBet, h.HandleGetBet)
	s.AddTool(ToolListActiveBets, h.HandleListActiveBets)
	s.AddTool(ToolListDueBets, h.HandleListDueBets)
	s.AddTool(ToolQuoteFee, h.HandleQuoteFee)
	s.AddTool(ToolCheckBalance, h.HandleCheckBalance)
	s.AddTool(ToolCalculateBetID, h.HandleCalculateBetID)
	s.AddTool(ToolJoinBet, h.HandleJoinBet)
	s.AddTool(ToolVote, h.HandleVote)
	s.AddTool(ToolMediate, h.HandleMediate)
	s.AddTool(ToolCrankBet, h.HandleCrankBet)

	return s
}
