package dbctx

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/dbctx/dbctx/internal/untrusted"
)

// RegisterMCPTools registers the engine's operations as MCP tools. Every
// payload derived from store contents is wrapped in untrusted-data boundary
// markers before it reaches the model.
func RegisterMCPTools(mcpServer *server.MCPServer, d *DBContext) {
	runQueryTool := mcp.NewTool("run_query",
		mcp.WithDescription("Execute a single SQL statement. Read statements return up to max_rows rows; write statements are rejected in read-only mode."),
		mcp.WithString("sql",
			mcp.Required(),
			mcp.Description("The SQL statement to execute"),
		),
		mcp.WithNumber("max_rows",
			mcp.Description("Maximum number of rows to return for read statements"),
		),
	)
	mcpServer.AddTool(runQueryTool, d.loggedToolHandler("run_query", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sql, err := req.RequireString("sql")
		if err != nil {
			return mcp.NewToolResultError("sql parameter is required"), nil
		}
		maxRows := req.GetInt("max_rows", 0)
		result, err := d.Execute(ctx, ExecuteInput{SQL: sql, MaxRows: maxRows})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return wrappedJSONResult(result)
	}))

	explainTool := mcp.NewTool("explain_query",
		mcp.WithDescription("Produce the execution plan for a read statement with heuristic optimization suggestions."),
		mcp.WithString("sql",
			mcp.Required(),
			mcp.Description("The read statement to explain"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	mcpServer.AddTool(explainTool, d.loggedToolHandler("explain_query", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sql, err := req.RequireString("sql")
		if err != nil {
			return mcp.NewToolResultError("sql parameter is required"), nil
		}
		result, err := d.Explain(ctx, sql)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return wrappedJSONResult(result)
	}))

	describeTool := mcp.NewTool("get_table_schema",
		mcp.WithDescription("Describe one table: columns with types and nullability, plus foreign-key relationships in both directions."),
		mcp.WithString("table",
			mcp.Required(),
			mcp.Description("The table name to describe"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	mcpServer.AddTool(describeTool, d.loggedToolHandler("get_table_schema", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		table, err := req.RequireString("table")
		if err != nil {
			return mcp.NewToolResultError("table parameter is required"), nil
		}
		detail, err := d.GetEntityDetail(ctx, table)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return wrappedJSONResult(detail)
	}))

	listTablesTool := mcp.NewTool("list_tables",
		mcp.WithDescription("List all indexed table names in the target schema."),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	mcpServer.AddTool(listTablesTool, d.loggedToolHandler("list_tables", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		names, err := d.EntityNames(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return wrappedJSONResult(names)
	}))

	searchTablesTool := mcp.NewTool("search_tables",
		mcp.WithDescription("Find tables whose name contains a substring, case-insensitively."),
		mcp.WithString("search_term",
			mcp.Required(),
			mcp.Description("Substring to look for in table names"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of tables to return"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	mcpServer.AddTool(searchTablesTool, d.loggedToolHandler("search_tables", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		term, err := req.RequireString("search_term")
		if err != nil {
			return mcp.NewToolResultError("search_term parameter is required"), nil
		}
		names, err := d.SearchEntityNames(ctx, term, req.GetInt("limit", 20))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return wrappedJSONResult(names)
	}))

	searchColumnsTool := mcp.NewTool("search_columns",
		mcp.WithDescription("Find tables having a column whose name contains a substring. Tables not yet described are consulted from a bounded random sample, so results may be incomplete over a cold cache."),
		mcp.WithString("search_term",
			mcp.Required(),
			mcp.Description("Substring to look for in column names"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of tables to return"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	mcpServer.AddTool(searchColumnsTool, d.loggedToolHandler("search_columns", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		term, err := req.RequireString("search_term")
		if err != nil {
			return mcp.NewToolResultError("search_term parameter is required"), nil
		}
		matches, err := d.SearchAttributes(ctx, term, req.GetInt("limit", 20))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return wrappedJSONResult(matches)
	}))

	constraintsTool := mcp.NewTool("get_table_constraints",
		mcp.WithDescription("List the constraints of one table with their definitions."),
		mcp.WithString("table",
			mcp.Required(),
			mcp.Description("The table name"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	mcpServer.AddTool(constraintsTool, d.loggedToolHandler("get_table_constraints", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		table, err := req.RequireString("table")
		if err != nil {
			return mcp.NewToolResultError("table parameter is required"), nil
		}
		constraints, err := d.EntityConstraints(ctx, table)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return wrappedJSONResult(constraints)
	}))

	indexesTool := mcp.NewTool("get_table_indexes",
		mcp.WithDescription("List the indexes of one table with their definitions."),
		mcp.WithString("table",
			mcp.Required(),
			mcp.Description("The table name"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	mcpServer.AddTool(indexesTool, d.loggedToolHandler("get_table_indexes", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		table, err := req.RequireString("table")
		if err != nil {
			return mcp.NewToolResultError("table parameter is required"), nil
		}
		indexes, err := d.EntityIndexes(ctx, table)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return wrappedJSONResult(indexes)
	}))

	routinesTool := mcp.NewTool("get_routines",
		mcp.WithDescription("List stored routines, optionally filtered by kind and a SQL LIKE pattern on the name."),
		mcp.WithString("kind",
			mcp.Description("Routine kind filter: function or procedure"),
		),
		mcp.WithString("name_pattern",
			mcp.Description("SQL LIKE pattern on the routine name, e.g. get_%"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	mcpServer.AddTool(routinesTool, d.loggedToolHandler("get_routines", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		routines, err := d.Routines(ctx, req.GetString("kind", ""), req.GetString("name_pattern", ""))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return wrappedJSONResult(routines)
	}))

	routineSourceTool := mcp.NewTool("get_routine_source",
		mcp.WithDescription("Return the full source of one stored routine."),
		mcp.WithString("routine",
			mcp.Required(),
			mcp.Description("The routine name"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	mcpServer.AddTool(routineSourceTool, d.loggedToolHandler("get_routine_source", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := req.RequireString("routine")
		if err != nil {
			return mcp.NewToolResultError("routine parameter is required"), nil
		}
		src, err := d.RoutineSource(ctx, name)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(untrusted.Wrap(src)), nil
	}))

	typesTool := mcp.NewTool("get_user_defined_types",
		mcp.WithDescription("List user-defined types (composite, enum, domain, range), optionally filtered by a SQL LIKE pattern."),
		mcp.WithString("type_pattern",
			mcp.Description("SQL LIKE pattern on the type name"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	mcpServer.AddTool(typesTool, d.loggedToolHandler("get_user_defined_types", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		types, err := d.UserTypes(ctx, req.GetString("type_pattern", ""))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return wrappedJSONResult(types)
	}))

	dependentsTool := mcp.NewTool("get_dependent_objects",
		mcp.WithDescription("List views and other objects that depend on a table."),
		mcp.WithString("table",
			mcp.Required(),
			mcp.Description("The table name"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	mcpServer.AddTool(dependentsTool, d.loggedToolHandler("get_dependent_objects", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		table, err := req.RequireString("table")
		if err != nil {
			return mcp.NewToolResultError("table parameter is required"), nil
		}
		dependents, err := d.DependentObjects(ctx, table)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return wrappedJSONResult(dependents)
	}))

	relatedTool := mcp.NewTool("get_related_tables",
		mcp.WithDescription("List the foreign-key neighborhood of one table: tables it references and tables referencing it."),
		mcp.WithString("table",
			mcp.Required(),
			mcp.Description("The table name"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	mcpServer.AddTool(relatedTool, d.loggedToolHandler("get_related_tables", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		table, err := req.RequireString("table")
		if err != nil {
			return mcp.NewToolResultError("table parameter is required"), nil
		}
		related, err := d.RelatedEntities(ctx, table)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return wrappedJSONResult(related)
	}))

	infoTool := mcp.NewTool("get_database_info",
		mcp.WithDescription("Return vendor, version, and target schema of the backing database."),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	mcpServer.AddTool(infoTool, d.loggedToolHandler("get_database_info", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		info, err := d.DatabaseInfo(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return wrappedJSONResult(info)
	}))

	rebuildTool := mcp.NewTool("rebuild_schema_cache",
		mcp.WithDescription("Discard the schema cache and re-enumerate the database. Use after DDL changes."),
	)
	mcpServer.AddTool(rebuildTool, d.loggedToolHandler("rebuild_schema_cache", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if err := d.RebuildIndex(ctx); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText("schema cache rebuilt"), nil
	}))
}

// wrappedJSONResult marshals v and wraps it in untrusted-data boundary
// markers.
func wrappedJSONResult(v any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError("failed to marshal result"), nil
	}
	return mcp.NewToolResultText(untrusted.Wrap(string(jsonBytes))), nil
}

// loggedToolHandler wraps a tool handler to log request and response lengths.
func (d *DBContext) loggedToolHandler(tool string, handler server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		reqLen := requestLength(req)
		result, err := handler(ctx, req)
		d.logger.Info().
			Str("tool", tool).
			Int("request_bytes", reqLen).
			Int("response_bytes", resultLength(result)).
			Msg("tool call")
		return result, err
	}
}

func requestLength(req mcp.CallToolRequest) int {
	args := req.GetArguments()
	if len(args) == 0 {
		return 0
	}
	b, err := json.Marshal(args)
	if err != nil {
		return 0
	}
	return len(b)
}

func resultLength(result *mcp.CallToolResult) int {
	if result == nil {
		return 0
	}
	total := 0
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			total += len(tc.Text)
		}
	}
	return total
}
