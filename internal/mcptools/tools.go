// Package mcptools exposes the assistant as Model Context Protocol tools.
package mcptools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"text2sql/internal/assistant"
	"text2sql/internal/logger"
	"text2sql/internal/metrics"
)

// ServerName is reported to MCP clients during initialization
const ServerName = "text2sql"

// NewServer creates an MCP server with every tool registered
func NewServer(a *assistant.Assistant, version string) *server.MCPServer {
	s := server.NewMCPServer(ServerName, version, server.WithToolCapabilities(true))
	Register(s, a, version)
	return s
}

// Register adds every tool to s
func Register(s *server.MCPServer, a *assistant.Assistant, version string) {
	registerHealthTool(s, a, version)
	registerSchemaTool(s, a)
	registerCheckTool(s, a)
	registerVerifyTool(s, a)
	registerScoreTool(s, a)
	registerGenerateTool(s, a)
}

type healthResult struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Model   string `json:"model,omitempty"`
}

func registerHealthTool(s *server.MCPServer, a *assistant.Assistant, version string) {
	tool := mcp.NewTool(
		"health",
		mcp.WithDescription("Returns server health status, version and configured model"),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(healthResult{Status: "ok", Version: version, Model: a.ModelName()})
	})
}

type schemaResult struct {
	Tables  []string            `json:"tables"`
	Columns map[string][]string `json:"columns"`
	Compact string              `json:"compact"`
}

func registerSchemaTool(s *server.MCPServer, a *assistant.Assistant) {
	tool := mcp.NewTool(
		"get_schema",
		mcp.WithDescription("Lists the tables and columns of the connected database in the compact form used for prompting"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		schema, err := a.Schema(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read schema: %w", err)
		}
		return jsonResult(schemaResult{
			Tables:  schema.Tables,
			Columns: schema.Columns,
			Compact: schema.Compact(),
		})
	})
}

func registerCheckTool(s *server.MCPServer, a *assistant.Assistant) {
	tool := mcp.NewTool(
		"check_sql",
		mcp.WithDescription(
			"Checks that a statement is a single read-only SELECT and returns it with a row cap applied. "+
				"Nothing is executed."),
		mcp.WithString(
			"sql",
			mcp.Required(),
			mcp.Description("The SQL statement to check"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sql, err := req.RequireString("sql")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		if strings.TrimSpace(sql) == "" {
			return NewErrorResult("invalid_parameters", "sql must not be empty"), nil
		}
		return jsonResult(a.Validate(sql))
	})
}

func registerVerifyTool(s *server.MCPServer, a *assistant.Assistant) {
	tool := mcp.NewTool(
		"verify_sql",
		mcp.WithDescription(
			"Verifies SQL before it is used as a final answer: static checks, the safety gate, "+
				"a database dry run and a capped execution. Warns about empty or duplicate results."),
		mcp.WithString(
			"sql",
			mcp.Required(),
			mcp.Description("The SQL statement to verify"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sql, err := req.RequireString("sql")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		v := a.Verify(ctx, sql)
		if !v.Valid {
			return NewErrorResultWithDetails("invalid_sql", v.Error, v), nil
		}
		return jsonResult(v)
	})
}

type scoreResult struct {
	SQL        metrics.SQLMetrics       `json:"sql_metrics"`
	Components map[string]metrics.Score `json:"component_scores"`
}

func registerScoreTool(s *server.MCPServer, a *assistant.Assistant) {
	tool := mcp.NewTool(
		"score_sql",
		mcp.WithDescription("Scores predicted SQL against ground-truth SQL with exact match and clause-level precision, recall and F1"),
		mcp.WithString(
			"predicted_sql",
			mcp.Required(),
			mcp.Description("The SQL to score"),
		),
		mcp.WithString(
			"ground_truth_sql",
			mcp.Required(),
			mcp.Description("The reference SQL"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		predicted, err := req.RequireString("predicted_sql")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		truth, err := req.RequireString("ground_truth_sql")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		m, cm := a.Score(predicted, truth)
		return jsonResult(scoreResult{SQL: m, Components: cm.Scores()})
	})
}

func registerGenerateTool(s *server.MCPServer, a *assistant.Assistant) {
	tool := mcp.NewTool(
		"generate_sql",
		mcp.WithDescription(
			"Translates a natural-language question into SQL for the connected database. "+
				"The SQL always passes the safety gate before it can run."),
		mcp.WithString(
			"question",
			mcp.Required(),
			mcp.Description("The question to answer"),
		),
		mcp.WithBoolean(
			"execute",
			mcp.Description("Run the generated SQL and return rows (default: false)"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		execute := getOptionalBoolWithDefault(req, "execute", false)

		ans, err := a.Ask(ctx, question, execute)
		if err != nil {
			return NewErrorResult(errorCode(err), logger.SanitizeError(err)), nil
		}
		if ans.Error == assistant.UnsafeMessage {
			return NewErrorResultWithDetails("unsafe_sql", ans.Error, safetyDetails(ans)), nil
		}
		return jsonResult(ans)
	})
}

func safetyDetails(ans *assistant.Answer) map[string]any {
	details := map[string]any{"sql": ans.SQL}
	if ans.Safety != nil {
		details["reason"] = ans.Safety.Reason
		if ans.Safety.Keyword != "" {
			details["keyword"] = ans.Safety.Keyword
		}
	}
	return details
}

func getOptionalBoolWithDefault(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	if args, ok := req.Params.Arguments.(map[string]any); ok {
		if val, ok := args[key].(bool); ok {
			return val
		}
	}
	return defaultVal
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(body)), nil
}
