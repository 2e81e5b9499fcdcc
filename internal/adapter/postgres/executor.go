package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/olaflaitinen/Rhenium/internal/core/port"
)

// Executor runs statements the safety engine has already approved. It adds
// the execution-side guard rails the engine cannot: a server-side row cap,
// a transaction-scoped statement timeout, and a read-only transaction mode
// unless writes were explicitly enabled.
type Executor struct {
	pool         *pgxpool.Pool
	readOnly     bool
	maxRows      int
	queryTimeout time.Duration
}

func NewExecutor(pool *pgxpool.Pool, readOnly bool, maxRows int, queryTimeout time.Duration) *Executor {
	return &Executor{
		pool:         pool,
		readOnly:     readOnly,
		maxRows:      maxRows,
		queryTimeout: queryTimeout,
	}
}

func (e *Executor) Execute(ctx context.Context, sql string) ([]map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, e.queryTimeout)
	defer cancel()

	// Only read statements can live inside a subquery, so the server-side
	// row cap applies to SELECT and WITH. EXPLAIN output and DML run as
	// given; wrapping an INSERT would be a syntax error.
	wrappedSQL := sql
	if isRowCappable(sql) {
		wrappedSQL = fmt.Sprintf("SELECT * FROM (%s) AS _limited LIMIT %d", strings.TrimRight(strings.TrimSpace(sql), ";"), e.maxRows)
	}

	tx, err := e.pool.BeginTx(ctx, pgx.TxOptions{
		AccessMode: e.accessMode(),
	})
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// SET LOCAL scopes the timeout to this transaction, so PostgreSQL
	// cancels the query server-side even if the Go context dies first.
	timeoutMS := e.queryTimeout.Milliseconds()
	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = '%d'", timeoutMS)); err != nil {
		return nil, fmt.Errorf("setting statement timeout: %w", err)
	}

	rows, err := tx.Query(ctx, wrappedSQL)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	defer rows.Close()

	results, err := collectRows(rows)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}

	return results, nil
}

func isExplain(sql string) bool {
	return leadingKeyword(sql) == "EXPLAIN"
}

// isRowCappable reports whether the statement returns rows that may be
// limited by wrapping it in a subquery.
func isRowCappable(sql string) bool {
	switch leadingKeyword(sql) {
	case "SELECT", "WITH":
		return true
	}
	return false
}

func leadingKeyword(sql string) string {
	fields := strings.Fields(strings.TrimSpace(sql))
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}

func (e *Executor) accessMode() pgx.TxAccessMode {
	if e.readOnly {
		return pgx.ReadOnly
	}
	return pgx.ReadWrite
}

// collectRows drains the result set into column-name keyed maps, the shape
// the masking layer and the MCP tools pass around. pgx.CollectRows does not
// fit here: the column set is only known at runtime.
func collectRows(rows pgx.Rows) ([]map[string]any, error) {
	var out []map[string]any
	names := make([]string, len(rows.FieldDescriptions()))
	for i, fd := range rows.FieldDescriptions() {
		names[i] = fd.Name
	}

	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("scanning result row %d: %w", len(out), err)
		}
		row := make(map[string]any, len(names))
		for i, name := range names {
			row[name] = vals[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("draining result rows: %w", err)
	}
	return out, nil
}

// ExplainOnlyExecutor forces every statement through EXPLAIN: the planner
// sees it, the data never does. Used for dry-run mode.
type ExplainOnlyExecutor struct {
	inner port.QueryExecutor
}

func NewExplainOnlyExecutor(inner port.QueryExecutor) *ExplainOnlyExecutor {
	return &ExplainOnlyExecutor{inner: inner}
}

func (e *ExplainOnlyExecutor) Execute(ctx context.Context, sql string) ([]map[string]any, error) {
	if !isExplain(sql) {
		sql = "EXPLAIN " + strings.TrimRight(strings.TrimSpace(sql), ";")
	}
	return e.inner.Execute(ctx, sql)
}
