package domain

import "strings"

// ResolvedStatement is the set of relations (and best-effort columns) a
// statement touches, normalized for policy checks.
type ResolvedStatement struct {
	Tables        []string
	Columns       []ColumnRef
	UnknownTables []string
}

// StatementResolver extracts referenced relations from a parsed statement.
// It sits behind an interface so alternate SQL-dialect front ends can be
// substituted without touching the rule chain.
type StatementResolver interface {
	Resolve(stmt ParsedStatement, schema SchemaView) ResolvedStatement
}

// Resolver is the default resolver. It unions two sources: the lightweight
// scanner output already on the ParsedStatement, and — when the statement
// parses under the PostgreSQL grammar — a precise walk of the parse tree
// that reaches sub-selects and CTE bodies at any depth. Tables referenced
// only inside nested sub-selects are treated identically to outer FROM
// references; resolution never narrows scope.
type Resolver struct{}

func NewResolver() *Resolver {
	return &Resolver{}
}

func (r *Resolver) Resolve(stmt ParsedStatement, schema SchemaView) ResolvedStatement {
	seen := make(map[string]bool)
	var resolved ResolvedStatement

	addTable := func(name string) {
		name = normalizeIdent(name)
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		resolved.Tables = append(resolved.Tables, name)
	}

	for _, t := range stmt.Tables {
		addTable(t)
	}

	ext, ok := pgExtract(stmt.Raw.Text)
	if ok {
		for _, t := range ext.tables {
			addTable(t)
		}
		// The grammar-backed column pass is strictly better than the
		// scanner's; use it when available.
		resolved.Columns = ext.columns
	} else {
		resolved.Columns = stmt.Columns
	}

	for _, t := range resolved.Tables {
		if !schema.HasTable(t) {
			resolved.UnknownTables = append(resolved.UnknownTables, t)
		}
	}
	return resolved
}

// normalizeIdent case-folds an identifier and strips schema and quote
// decoration, keeping only the relation's own name.
func normalizeIdent(name string) string {
	name = strings.TrimSpace(strings.Trim(name, `"`))
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	return strings.ToLower(strings.Trim(name, `"`))
}
