// Package mcpserver exposes a workspace's attached actions (pkg/action) as
// MCP tools, so an external agent/assistant can discover and call them the
// same way it would call any other MCP tool.
//
// Grounded on kasuganosora-sqlexec/server/mcp/server.go + tools.go:
// mcpserver.NewMCPServer + mcp.NewTool + AddTool(tool, handler) registration
// shape, and the handler-reads-request.GetString-then-calls-into-the-
//-domain-layer pattern HandleQuery/HandleListTables use.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpsrv "github.com/mark3labs/mcp-go/server"

	"github.com/Leftium/epicenter/pkg/action"
	"github.com/Leftium/epicenter/pkg/workspace"
)

// Config names the MCP server's identity.
type Config struct {
	Name    string
	Version string
}

// Provider wraps an *mcpsrv.MCPServer exposing every action in a registry
// as a tool named after the action, taking one JSON-encoded "input" string
// argument (actions are typed as (ctx, any) -> (any, error); MCP tool
// arguments are flat string/number/bool fields, so the input is passed as
// an opaque JSON blob the action's Fn is responsible for decoding).
type Provider struct {
	workspace.NoOpExtension

	cfg Config
	mcp *mcpsrv.MCPServer
}

// New returns a factory suitable for workspace.Client.WithExtension. It
// registers every action already present in registry at construction time;
// actions attached later are not retroactively exposed (matches the
// teacher's "tools are registered once, at Start").
func New(cfg Config, registry *action.Registry) workspace.Factory {
	return func(c *workspace.Client) (workspace.Extension, error) {
		srv := mcpsrv.NewMCPServer(cfg.Name, cfg.Version, mcpsrv.WithToolCapabilities(true), mcpsrv.WithRecovery())
		p := &Provider{cfg: cfg, mcp: srv}
		for _, def := range registry.IterateAttachedActions() {
			p.registerTool(def)
		}
		return p, nil
	}
}

func (p *Provider) registerTool(a *action.Attached) {
	tool := mcp.NewTool(a.Name,
		mcp.WithDescription(a.Description),
		mcp.WithString("input", mcp.Description("JSON-encoded action input")),
	)
	p.mcp.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw := req.GetString("input", "{}")
		var input any
		if err := json.Unmarshal([]byte(raw), &input); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid input: %v", err)), nil
		}
		out, err := a.Call(ctx, input)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		encoded, err := json.Marshal(out)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("could not encode result: %v", err)), nil
		}
		return mcp.NewToolResultText(string(encoded)), nil
	})
}

// Handler returns an HTTP handler exposing the registered tools over the
// streamable-HTTP MCP transport, the same transport the teacher's
// server.go wires up via mcpserver.NewStreamableHTTPServer.
func (p *Provider) Handler() *mcpsrv.StreamableHTTPServer {
	return mcpsrv.NewStreamableHTTPServer(p.mcp, mcpsrv.WithEndpointPath("/mcp"))
}
