package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/olaflaitinen/Rhenium/internal/core/port"
	"github.com/olaflaitinen/Rhenium/internal/core/service"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server metadata
const serverName = "rhenium"

// Tool descriptions
const (
	descValidateQuery = "Validate a SQL statement against the safety policy without executing it. " +
		"Returns a structured verdict: whether the statement passed, its classified kind, the tables it touches, " +
		"and — on rejection — the error kind, the offending term, and a human-readable explanation. " +
		"Use this to check a query before running it, or to understand why a query was rejected."

	descValidateQuerySQL  = "SQL statement to validate"
	descValidateQueryRole = "Role to validate as (optional, defaults to the configured default role)"

	descQuery = "Validate and execute a SQL query, returning results as a JSON array of objects. " +
		"The statement must pass all safety checks for the requesting role first; rejected statements " +
		"return the validation verdict instead of data. A server-side row limit and query timeout are enforced, " +
		"and columns masked by the role's policy come back redacted. " +
		"Always use specific column names instead of SELECT *."

	descQuerySQL  = "SQL query to execute"
	descQueryRole = "Role to execute as (optional, defaults to the configured default role)"

	descExplainQuery = "Show the PostgreSQL execution plan for a SQL query without touching table data. " +
		"The statement is validated first, then run under EXPLAIN so only the planner sees it. " +
		"Returns scan types, join methods, and cost estimates. " +
		"Supports ANALYZE to include actual execution statistics (the query WILL be executed)."

	descExplainQuerySQL  = "The query to explain (without the EXPLAIN keyword)"
	descExplainQueryRole = "Role to validate as (optional, defaults to the configured default role)"

	descListTables = "List the tables known to the safety engine's schema snapshot, with their columns. " +
		"Statements referencing tables outside this list produce unknown-table warnings; " +
		"use this to see what the engine can resolve before writing queries."
)

func RegisterTools(s *server.MCPServer, validation *service.ValidationService, query *service.QueryService, schema port.SchemaSource) {
	s.AddTool(
		mcp.NewTool("validate_query",
			mcp.WithDescription(descValidateQuery),
			mcp.WithString("sql",
				mcp.Required(),
				mcp.Description(descValidateQuerySQL),
			),
			mcp.WithString("role",
				mcp.Description(descValidateQueryRole),
			),
		),
		validateQueryHandler(validation),
	)

	if query != nil {
		s.AddTool(
			mcp.NewTool("query",
				mcp.WithDescription(descQuery),
				mcp.WithString("sql",
					mcp.Required(),
					mcp.Description(descQuerySQL),
				),
				mcp.WithString("role",
					mcp.Description(descQueryRole),
				),
			),
			queryHandler(query),
		)
	}

	if query != nil {
		s.AddTool(
			mcp.NewTool("explain_query",
				mcp.WithDescription(descExplainQuery),
				mcp.WithString("sql",
					mcp.Required(),
					mcp.Description(descExplainQuerySQL),
				),
				mcp.WithString("role",
					mcp.Description(descExplainQueryRole),
				),
				mcp.WithBoolean("analyze",
					mcp.Description("Include actual execution statistics (executes the query). Defaults to false."),
				),
			),
			explainQueryHandler(query),
		)
	}

	if schema != nil {
		s.AddTool(
			mcp.NewTool("list_tables",
				mcp.WithDescription(descListTables),
			),
			listTablesHandler(schema),
		)
	}
}

func validateQueryHandler(validation *service.ValidationService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sql, ok := request.GetArguments()["sql"].(string)
		if !ok || sql == "" {
			return mcp.NewToolResultError("sql is required"), nil
		}

		role, _ := request.GetArguments()["role"].(string)

		ctx = service.WithToolName(ctx, "validate_query")
		result, err := validation.Validate(ctx, sql, role)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("validation failed: %v", err)), nil
		}

		data, err := json.Marshal(result)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to marshal verdict: %v", err)), nil
		}

		return mcp.NewToolResultText(string(data)), nil
	}
}

func queryHandler(query *service.QueryService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sql, ok := request.GetArguments()["sql"].(string)
		if !ok || sql == "" {
			return mcp.NewToolResultError("sql is required"), nil
		}

		role, _ := request.GetArguments()["role"].(string)

		ctx = service.WithToolName(ctx, "query")
		rows, verdict, err := query.Execute(ctx, sql, role)
		if err != nil {
			// A rejected statement is a verdict, not a transport error; hand
			// the full explanation back to the caller.
			if !verdict.Valid {
				data, merr := json.Marshal(verdict)
				if merr != nil {
					return mcp.NewToolResultError(fmt.Sprintf("failed to marshal verdict: %v", merr)), nil
				}
				return mcp.NewToolResultError(string(data)), nil
			}
			return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
		}

		data, err := json.Marshal(rows)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}

		return mcp.NewToolResultText(string(data)), nil
	}
}

func explainQueryHandler(query *service.QueryService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sql, ok := request.GetArguments()["sql"].(string)
		if !ok || sql == "" {
			return mcp.NewToolResultError("sql is required"), nil
		}

		role, _ := request.GetArguments()["role"].(string)
		analyze, _ := request.GetArguments()["analyze"].(bool)

		// Validation sees the bare statement; the EXPLAIN prefix is an
		// execution concern added after the verdict.
		prefix := "EXPLAIN "
		if analyze {
			prefix = "EXPLAIN ANALYZE "
		}

		ctx = service.WithToolName(ctx, "explain_query")
		rows, verdict, err := query.ExecuteExplained(ctx, prefix, sql, role)
		if err != nil {
			if !verdict.Valid {
				data, merr := json.Marshal(verdict)
				if merr != nil {
					return mcp.NewToolResultError(fmt.Sprintf("failed to marshal verdict: %v", merr)), nil
				}
				return mcp.NewToolResultError(string(data)), nil
			}
			return mcp.NewToolResultError(fmt.Sprintf("explain failed: %v", err)), nil
		}

		data, err := json.Marshal(rows)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}

		return mcp.NewToolResultText(string(data)), nil
	}
}

func listTablesHandler(schema port.SchemaSource) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		view, err := schema.Snapshot(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to fetch schema: %v", err)), nil
		}

		type tableInfo struct {
			Name    string   `json:"name"`
			Columns []string `json:"columns,omitempty"`
		}

		tables := make([]tableInfo, 0, len(view.Tables))
		for name := range view.Tables {
			cols := append([]string(nil), view.ColumnsByTable[name]...)
			sort.Strings(cols)
			tables = append(tables, tableInfo{Name: name, Columns: cols})
		}
		sort.Slice(tables, func(i, j int) bool { return tables[i].Name < tables[j].Name })

		data, err := json.Marshal(tables)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}

		return mcp.NewToolResultText(string(data)), nil
	}
}
