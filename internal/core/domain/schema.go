package domain

import "strings"

// SchemaView is a point-in-time snapshot of the database schema, pre-fetched
// by the caller. The engine only does set membership checks against it.
type SchemaView struct {
	Tables         map[string]struct{}
	ColumnsByTable map[string][]string
}

// NewSchemaView builds a view from table names and their columns. Names are
// case-folded so membership checks match normalized identifiers.
func NewSchemaView(columnsByTable map[string][]string) SchemaView {
	v := SchemaView{
		Tables:         make(map[string]struct{}, len(columnsByTable)),
		ColumnsByTable: make(map[string][]string, len(columnsByTable)),
	}
	for table, cols := range columnsByTable {
		key := strings.ToLower(table)
		v.Tables[key] = struct{}{}
		lowered := make([]string, len(cols))
		for i, c := range cols {
			lowered[i] = strings.ToLower(c)
		}
		v.ColumnsByTable[key] = lowered
	}
	return v
}

// HasTable reports whether the normalized table name exists in the view.
// An empty view (no schema snapshot supplied) claims every table, so that
// missing schema data degrades to a warning-free pass rather than flooding
// results with unknown-table noise.
func (v SchemaView) HasTable(table string) bool {
	if len(v.Tables) == 0 {
		return true
	}
	_, ok := v.Tables[strings.ToLower(table)]
	return ok
}
