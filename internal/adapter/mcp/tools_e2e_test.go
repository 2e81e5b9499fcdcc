package mcp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/olaflaitinen/Rhenium/internal/adapter/policy"
	"github.com/olaflaitinen/Rhenium/internal/adapter/postgres"
	"github.com/olaflaitinen/Rhenium/internal/audit"
	"github.com/olaflaitinen/Rhenium/internal/core/domain"
	"github.com/olaflaitinen/Rhenium/internal/core/service"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const e2eSchema = `
	CREATE TABLE sales (
		id     SERIAL PRIMARY KEY,
		amount NUMERIC(10,2) NOT NULL,
		region TEXT NOT NULL
	);

	CREATE TABLE customers (
		id    SERIAL PRIMARY KEY,
		name  TEXT NOT NULL,
		email TEXT NOT NULL
	);

	INSERT INTO sales (amount, region)
	SELECT (random() * 1000)::numeric(10,2),
	       CASE (i % 3) WHEN 0 THEN 'EU' WHEN 1 THEN 'US' ELSE 'APAC' END
	FROM generate_series(1, 500) AS i;

	INSERT INTO customers (name, email)
	SELECT 'Customer ' || i, 'customer' || i || '@example.com'
	FROM generate_series(1, 50) AS i;
`

// setupE2E starts a Postgres testcontainer, applies the schema and returns
// an MCP server backed by real adapters and the built-in policy extended
// with an email mask.
func setupE2E(t *testing.T) *server.MCPServer {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping E2E test in short mode")
	}

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	_, err = pool.Exec(ctx, e2eSchema)
	require.NoError(t, err)

	// Real adapters.
	schemaSource := postgres.NewSchemaFetcher(pool, nil, time.Minute)
	executor := postgres.NewExecutor(pool, true, 100, 10*time.Second)

	// Built-in policy plus an analyst email mask for the masking path.
	pol := policy.Default()
	analyst := pol.Roles["analyst"]
	analyst.Masks = map[string]domain.MaskType{"email": domain.MaskRedact}
	pol.Roles["analyst"] = analyst
	store := policy.NewStore(pol, "")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	validationSvc := service.NewValidationService(
		domain.NewEngine(), store, schemaSource, audit.NoopAuditor{}, logger, nil, nil)
	querySvc := service.NewQueryService(validationSvc, executor, audit.NoopAuditor{}, logger, nil, nil)

	s := server.NewMCPServer("test-e2e", "0.0.1", server.WithToolCapabilities(true))
	RegisterTools(s, validationSvc, querySvc, schemaSource)
	return s
}

func TestE2E_MCPTools(t *testing.T) {
	s := setupE2E(t)

	t.Run("list_tables", func(t *testing.T) {
		result := callTool(t, s, "list_tables", nil)
		require.False(t, result.IsError, "unexpected error: %s", toolText(result))

		var tables []struct {
			Name    string   `json:"name"`
			Columns []string `json:"columns"`
		}
		require.NoError(t, json.Unmarshal([]byte(toolText(result)), &tables))

		names := make(map[string][]string)
		for _, tbl := range tables {
			names[tbl.Name] = tbl.Columns
		}
		assert.Contains(t, names, "sales")
		assert.Contains(t, names, "customers")
		assert.ElementsMatch(t, []string{"id", "amount", "region"}, names["sales"])
	})

	t.Run("validate_query against live schema", func(t *testing.T) {
		result := callTool(t, s, "validate_query", map[string]any{
			"sql":  "SELECT amount FROM sales",
			"role": "analyst",
		})
		require.False(t, result.IsError)

		var verdict domain.ValidationResult
		require.NoError(t, json.Unmarshal([]byte(toolText(result)), &verdict))
		assert.True(t, verdict.Valid)
		assert.Empty(t, verdict.UnknownTables)
	})

	t.Run("validate_query flags unknown table", func(t *testing.T) {
		result := callTool(t, s, "validate_query", map[string]any{
			"sql":  "SELECT * FROM warehouse_stock",
			"role": "admin",
		})
		require.False(t, result.IsError)

		var verdict domain.ValidationResult
		require.NoError(t, json.Unmarshal([]byte(toolText(result)), &verdict))
		assert.True(t, verdict.Valid)
		assert.Equal(t, []string{"warehouse_stock"}, verdict.UnknownTables)
		assert.Contains(t, verdict.Explanation, "not present in the known schema")
	})

	t.Run("query enforces row limit", func(t *testing.T) {
		result := callTool(t, s, "query", map[string]any{
			"sql":  "SELECT id, amount FROM sales",
			"role": "analyst",
		})
		require.False(t, result.IsError, "unexpected error: %s", toolText(result))

		var rows []map[string]any
		require.NoError(t, json.Unmarshal([]byte(toolText(result)), &rows))
		assert.Len(t, rows, 100, "server-side row cap")
	})

	t.Run("query applies masks", func(t *testing.T) {
		result := callTool(t, s, "query", map[string]any{
			"sql":  "SELECT name, email FROM customers LIMIT 5",
			"role": "analyst",
		})
		require.False(t, result.IsError, "unexpected error: %s", toolText(result))

		var rows []map[string]any
		require.NoError(t, json.Unmarshal([]byte(toolText(result)), &rows))
		require.NotEmpty(t, rows)
		for _, row := range rows {
			assert.Equal(t, "***", row["email"])
			assert.NotEqual(t, "***", row["name"])
		}
	})

	t.Run("query rejects disallowed table for viewer", func(t *testing.T) {
		result := callTool(t, s, "query", map[string]any{
			"sql":  "SELECT email FROM customers",
			"role": "viewer",
		})
		assert.True(t, result.IsError)

		var verdict domain.ValidationResult
		require.NoError(t, json.Unmarshal([]byte(toolText(result)), &verdict))
		assert.Equal(t, domain.ErrForbiddenTable, verdict.ErrorKind)
	})

	t.Run("query blocks drop", func(t *testing.T) {
		result := callTool(t, s, "query", map[string]any{
			"sql":  "DROP TABLE sales",
			"role": "admin",
		})
		assert.True(t, result.IsError)

		var verdict domain.ValidationResult
		require.NoError(t, json.Unmarshal([]byte(toolText(result)), &verdict))
		assert.Equal(t, domain.ErrForbiddenKeyword, verdict.ErrorKind)

		// The table is still there.
		check := callTool(t, s, "query", map[string]any{
			"sql":  "SELECT COUNT(*) AS n FROM sales",
			"role": "analyst",
		})
		require.False(t, check.IsError)
	})

	t.Run("explain_query returns a plan", func(t *testing.T) {
		result := callTool(t, s, "explain_query", map[string]any{
			"sql":  "SELECT amount FROM sales WHERE region = 'EU'",
			"role": "analyst",
		})
		require.False(t, result.IsError, "unexpected error: %s", toolText(result))

		var rows []map[string]any
		require.NoError(t, json.Unmarshal([]byte(toolText(result)), &rows))
		assert.NotEmpty(t, rows)
	})
}
