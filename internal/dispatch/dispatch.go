// Package dispatch registers the engine's named operations (start, submit,
// state, halt, end, read) as MCP tools over stdio, decodes each tool's
// short-name JSON arguments into canonical domain types, and serializes
// results back as camelCase JSON. Each operation has its own typed decoder;
// the short-name layer lives only at this transport boundary.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/coderefine/engine/internal/audit"
	"github.com/coderefine/engine/internal/candidate"
	"github.com/coderefine/engine/internal/config"
	"github.com/coderefine/engine/internal/pipeline"
	"github.com/coderefine/engine/internal/preflight"
	"github.com/coderefine/engine/internal/redact"
	"github.com/coderefine/engine/internal/registry"
)

// ProbeRunner is the subset of runner.Runner needed for preflight checks
// (submit's evaluation runs through the pipeline instead).
type ProbeRunner interface {
	preflight.CmdRunner
}

// Server holds the engine's live state and wires it to MCP tool calls.
type Server struct {
	Registry *registry.Registry
	Pipeline *pipeline.Pipeline
	Runner   ProbeRunner
	Applier  candidate.Applier
	Audit    *audit.Store // optional; nil disables the audit trail
	Redactor *redact.Filter
	Defaults config.Config
	Version  string
}

// New builds a dispatch Server. audit may be nil. defaults carries the
// process-wide settings applied to sessions that omit the matching start
// argument.
func New(reg *registry.Registry, pl *pipeline.Pipeline, r ProbeRunner, applier candidate.Applier, auditStore *audit.Store, redactor *redact.Filter, defaults config.Config, version string) *Server {
	return &Server{
		Registry: reg,
		Pipeline: pl,
		Runner:   r,
		Applier:  applier,
		Audit:    auditStore,
		Redactor: redactor,
		Defaults: defaults,
		Version:  version,
	}
}

// Tools returns the MCP tool set for this dispatcher, ready to be added to
// an *server.MCPServer via AddTools.
func (s *Server) Tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: startTool(), Handler: s.wrap("start", s.handleStart)},
		{Tool: submitTool(), Handler: s.wrap("submit", s.handleSubmit)},
		{Tool: stateTool(), Handler: s.wrap("state", s.handleState)},
		{Tool: haltTool(), Handler: s.wrap("halt", s.handleHalt)},
		{Tool: endTool(), Handler: s.wrap("end", s.handleEnd)},
		{Tool: readTool(), Handler: s.wrap("read", s.handleRead)},
	}
}

// Serve builds an MCP server named "coderefine", registers every operation,
// and blocks serving stdio JSON-RPC until ctx is cancelled or stdin closes.
func (s *Server) Serve(ctx context.Context) error {
	mcpServer := server.NewMCPServer("coderefine", s.Version, server.WithToolCapabilities(false))
	mcpServer.AddTools(s.Tools()...)

	stdio := server.NewStdioServer(mcpServer)
	stdio.SetErrorLogger(log.New(os.Stderr, "[mcp] ", log.LstdFlags))
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// resultJSON marshals v to JSON and wraps it as a successful tool result.
// Handler panics are caught by wrap before this is ever reached, so
// failures here can only be marshal errors -- themselves reported as tool
// errors rather than crashing the process.
func resultJSON(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// errResult builds a {error: message} tool result.
func errResult(format string, args ...any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultError(fmt.Sprintf(format, args...)), nil
}

// sessionNotFound is the canonical lookup-miss response.
func sessionNotFound() (*mcp.CallToolResult, error) {
	return mcp.NewToolResultError("Session not found"), nil
}

// toolHandler matches the signature mcp-go expects for server.ServerTool's
// Handler field (kept as a local alias so this file doesn't need to name
// the library's handler type directly).
type toolHandler = func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)

// wrap converts a panic anywhere inside a handler into a tool error instead
// of crashing the stdio server, and traces each operation to stderr when
// verbose logging is enabled.
func (s *Server) wrap(name string, h toolHandler) toolHandler {
	return func(ctx context.Context, req mcp.CallToolRequest) (res *mcp.CallToolResult, err error) {
		defer func() {
			if r := recover(); r != nil {
				res, err = errResult("internal error: %v", r)
			}
		}()
		if s.Defaults.LogVerbose {
			log.Printf("[op] %s", name)
		}
		return h(ctx, req)
	}
}
