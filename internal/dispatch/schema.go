package dispatch

import (
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
)

func startTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"start",
		"Create a refinement session for a repository, with optional probe commands, weights, halt thresholds, and an optional one-shot preflight check.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"repo": {"type": "string", "description": "Absolute path to the repository working tree"},
				"dataQual": {"type": "string", "description": "Shell command that checks data quality"},
				"test": {"type": "string", "description": "Shell command that runs the test suite"},
				"lint": {"type": "string", "description": "Shell command that runs the linter"},
				"bench": {"type": "string", "description": "Shell command that runs a performance benchmark"},
				"timeout": {"type": "integer", "description": "Per-probe wall-clock timeout in seconds (default 120)"},
				"weights": {
					"type": "object",
					"description": "Relative contribution of each probe to the aggregate score (defaults: dataQual 0.3, test 0.4, lint 0.1, perf 0.2)",
					"properties": {
						"dataQual": {"type": "number"},
						"test": {"type": "number"},
						"lint": {"type": "number"},
						"perf": {"type": "number"}
					}
				},
				"halt": {
					"type": "object",
					"description": "Halting thresholds",
					"properties": {
						"max": {"type": "integer", "description": "Maximum steps before a limit halt"},
						"threshold": {"type": "number", "description": "Pass threshold in [0,1] for a success halt"},
						"patience": {"type": "integer", "description": "Consecutive non-improving steps before a plateau halt"},
						"min": {"type": "integer", "description": "Minimum steps before any success halt (default 1)"}
					},
					"required": ["max", "threshold", "patience"]
				},
				"ema": {"type": "number", "description": "EMA smoothing factor in [0,1] (default 0.9)"},
				"notes": {"type": "string", "description": "Free-form agent-supplied reasoning, stored as z_notes"},
				"preflight": {"type": "boolean", "description": "Run preflight validation before returning"}
			},
			"required": ["repo", "halt"]
		}`),
	)
}

func submitTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"submit",
		"Apply a candidate change to the session's repository and run one evaluation iteration.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"sid": {"type": "string", "description": "Session id returned by start"},
				"candidate": {
					"type": "object",
					"description": "Tagged-union candidate payload: {mode: diff|patch|files, ...}"
				},
				"reason": {"type": "string", "description": "Agent's rationale for this candidate, stored as z_notes"}
			},
			"required": ["sid", "candidate"]
		}`),
	)
}

func stateTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"state",
		"Return a session's current iteration counters and most recent evaluation.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"sid": {"type": "string", "description": "Session id"}
			},
			"required": ["sid"]
		}`),
	)
}

func haltTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"halt",
		"Return the halt decision and reasons from the session's last recorded evaluation.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"sid": {"type": "string", "description": "Session id"}
			},
			"required": ["sid"]
		}`),
	)
}

func endTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"end",
		"Delete a session, releasing its iteration state.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"sid": {"type": "string", "description": "Session id"}
			},
			"required": ["sid"]
		}`),
	)
}

func readTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"read",
		"Read one or more files from a session's repository, restricted to paths under repo_path.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"sid": {"type": "string", "description": "Session id"},
				"paths": {
					"type": "array",
					"description": "Paths relative to repo_path",
					"items": {"type": "string"}
				}
			},
			"required": ["sid", "paths"]
		}`),
	)
}
