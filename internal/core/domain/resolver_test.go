package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resolve(t *testing.T, sql string, schema SchemaView) ResolvedStatement {
	t.Helper()
	stmts, err := NewParser(0).Parse(sql)
	require.NoError(t, err)
	require.Len(t, stmts, 1)
	return NewResolver().Resolve(stmts[0], schema)
}

func testSchema() SchemaView {
	return NewSchemaView(map[string][]string{
		"sales":     {"id", "amount", "region"},
		"customers": {"id", "name", "email"},
		"orders":    {"id", "customer_id", "total"},
	})
}

func TestResolveSimpleSelect(t *testing.T) {
	resolved := resolve(t, "SELECT amount FROM sales", testSchema())

	assert.Equal(t, []string{"sales"}, resolved.Tables)
	assert.Empty(t, resolved.UnknownTables)
}

func TestResolveJoin(t *testing.T) {
	resolved := resolve(t,
		"SELECT s.amount, c.name FROM sales s JOIN customers c ON s.id = c.id",
		testSchema())

	assert.ElementsMatch(t, []string{"sales", "customers"}, resolved.Tables)
	assert.Empty(t, resolved.UnknownTables)
}

func TestResolveNestedSubqueryTables(t *testing.T) {
	// Tables referenced only inside a nested sub-select count the same as
	// outer FROM references.
	resolved := resolve(t,
		"SELECT * FROM (SELECT * FROM customers) AS sub",
		testSchema())

	assert.Contains(t, resolved.Tables, "customers")
}

func TestResolveWhereSubquery(t *testing.T) {
	resolved := resolve(t,
		"SELECT id FROM sales WHERE id IN (SELECT customer_id FROM orders)",
		testSchema())

	assert.ElementsMatch(t, []string{"sales", "orders"}, resolved.Tables)
}

func TestResolveUnknownTable(t *testing.T) {
	resolved := resolve(t, "SELECT * FROM mystery_table", testSchema())

	assert.Equal(t, []string{"mystery_table"}, resolved.Tables)
	assert.Equal(t, []string{"mystery_table"}, resolved.UnknownTables)
}

func TestResolveEmptySchemaViewClaimsEveryTable(t *testing.T) {
	resolved := resolve(t, "SELECT * FROM anything_at_all", SchemaView{})

	assert.Equal(t, []string{"anything_at_all"}, resolved.Tables)
	assert.Empty(t, resolved.UnknownTables)
}

func TestResolveSchemaQualifiedName(t *testing.T) {
	resolved := resolve(t, "SELECT * FROM public.sales", testSchema())

	assert.Equal(t, []string{"sales"}, resolved.Tables)
	assert.Empty(t, resolved.UnknownTables)
}

func TestResolveCTENamesAreNotRelations(t *testing.T) {
	resolved := resolve(t,
		"WITH recent AS (SELECT * FROM orders) SELECT * FROM recent",
		testSchema())

	assert.Equal(t, []string{"orders"}, resolved.Tables)
	assert.Empty(t, resolved.UnknownTables)
}

func TestResolveColumnsQualifiedByAlias(t *testing.T) {
	// Alias qualifiers are remapped back to the relation they stand for.
	resolved := resolve(t,
		"SELECT s.amount FROM sales s WHERE s.region = 'EU'",
		testSchema())

	assert.Contains(t, resolved.Columns, ColumnRef{Table: "sales", Name: "amount"})
	assert.Contains(t, resolved.Columns, ColumnRef{Table: "sales", Name: "region"})
}

func TestResolveFallsBackWhenGrammarRejects(t *testing.T) {
	// Not valid PostgreSQL, so only the lightweight scan contributes.
	resolved := resolve(t, "PRAGMA table_info(sales)", testSchema())

	assert.Empty(t, resolved.Tables)
}

func TestResolveSetOperations(t *testing.T) {
	resolved := resolve(t,
		"SELECT id FROM sales UNION SELECT id FROM customers",
		testSchema())

	assert.ElementsMatch(t, []string{"sales", "customers"}, resolved.Tables)
}

func TestNormalizeIdent(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"sales", "sales"},
		{"SALES", "sales"},
		{`"Sales"`, "sales"},
		{"public.sales", "sales"},
		{`public."Sales"`, "sales"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeIdent(tt.in))
	}
}
