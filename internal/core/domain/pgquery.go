package domain

import (
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// pgExtraction accumulates relations and column references while walking a
// PostgreSQL parse tree.
type pgExtraction struct {
	tables  []string
	columns []ColumnRef
	ctes    map[string]bool   // CTE names are not real relations
	aliases map[string]string // range-var alias -> relation name
	seen    map[string]bool
}

// pgExtract parses sql with the PostgreSQL grammar and walks the tree,
// unioning every referenced relation at any nesting depth plus best-effort
// column references from the top-level SELECT list and WHERE clause.
// Returns ok=false when the statement does not parse; callers fall back to
// the lightweight scanner output (fail-open on extraction, the rule chain
// stays conservative either way).
func pgExtract(sql string) (pgExtraction, bool) {
	ext := pgExtraction{
		ctes:    make(map[string]bool),
		aliases: make(map[string]string),
		seen:    make(map[string]bool),
	}

	tree, err := pg_query.Parse(sql)
	if err != nil || len(tree.Stmts) == 0 {
		return ext, false
	}

	for _, raw := range tree.Stmts {
		if raw.Stmt != nil {
			ext.walk(raw.Stmt, true)
		}
	}

	// Column qualifiers may be aliases; map them back to relation names.
	for i, col := range ext.columns {
		if rel, ok := ext.aliases[col.Table]; ok {
			ext.columns[i].Table = rel
		}
	}
	return ext, true
}

func (x *pgExtraction) addTable(rv *pg_query.RangeVar) {
	if rv == nil {
		return
	}
	name := strings.ToLower(rv.Relname)
	if rv.Alias != nil && rv.Alias.Aliasname != "" {
		x.aliases[strings.ToLower(rv.Alias.Aliasname)] = name
	}
	if name == "" || x.ctes[name] || x.seen[name] {
		return
	}
	x.seen[name] = true
	x.tables = append(x.tables, name)
}

func (x *pgExtraction) addColumn(cr *pg_query.ColumnRef) {
	if cr == nil || len(cr.Fields) == 0 {
		return
	}
	var parts []string
	for _, f := range cr.Fields {
		switch n := f.Node.(type) {
		case *pg_query.Node_String_:
			parts = append(parts, strings.ToLower(n.String_.Sval))
		case *pg_query.Node_AStar:
			return // SELECT * resolves to no individual columns
		}
	}
	if len(parts) == 0 {
		return
	}
	col := ColumnRef{Name: parts[len(parts)-1]}
	if len(parts) > 1 {
		col.Table = parts[len(parts)-2]
	}
	x.columns = append(x.columns, col)
}

func (x *pgExtraction) walkWith(w *pg_query.WithClause) {
	if w == nil {
		return
	}
	for _, item := range w.Ctes {
		cte, ok := item.Node.(*pg_query.Node_CommonTableExpr)
		if !ok || cte.CommonTableExpr == nil {
			continue
		}
		x.ctes[strings.ToLower(cte.CommonTableExpr.Ctename)] = true
		x.walk(cte.CommonTableExpr.Ctequery, false)
	}
}

// walk recurses through the statement tree. topLevel gates column
// collection: only the outermost SELECT contributes to column checks,
// while tables are unioned from every depth.
func (x *pgExtraction) walk(node *pg_query.Node, topLevel bool) {
	if node == nil {
		return
	}

	switch n := node.Node.(type) {
	case *pg_query.Node_SelectStmt:
		x.walkSelect(n.SelectStmt, topLevel)

	case *pg_query.Node_InsertStmt:
		ins := n.InsertStmt
		x.walkWith(ins.WithClause)
		x.addTable(ins.Relation)
		x.walk(ins.SelectStmt, false)

	case *pg_query.Node_UpdateStmt:
		upd := n.UpdateStmt
		x.walkWith(upd.WithClause)
		x.addTable(upd.Relation)
		for _, f := range upd.FromClause {
			x.walkFromItem(f)
		}
		x.walkExpr(upd.WhereClause, false)

	case *pg_query.Node_DeleteStmt:
		del := n.DeleteStmt
		x.walkWith(del.WithClause)
		x.addTable(del.Relation)
		for _, u := range del.UsingClause {
			x.walkFromItem(u)
		}
		x.walkExpr(del.WhereClause, false)
	}
}

func (x *pgExtraction) walkSelect(sel *pg_query.SelectStmt, topLevel bool) {
	if sel == nil {
		return
	}
	x.walkWith(sel.WithClause)

	// Set operations (UNION/EXCEPT/INTERSECT) nest the real selects.
	if sel.Larg != nil || sel.Rarg != nil {
		x.walkSelect(sel.Larg, false)
		x.walkSelect(sel.Rarg, false)
		return
	}

	for _, f := range sel.FromClause {
		x.walkFromItem(f)
	}
	x.walkExpr(sel.WhereClause, topLevel)

	if topLevel {
		for _, target := range sel.TargetList {
			rt, ok := target.Node.(*pg_query.Node_ResTarget)
			if !ok || rt.ResTarget == nil {
				continue
			}
			x.walkExpr(rt.ResTarget.Val, true)
		}
	}
}

func (x *pgExtraction) walkFromItem(node *pg_query.Node) {
	if node == nil {
		return
	}
	switch n := node.Node.(type) {
	case *pg_query.Node_RangeVar:
		x.addTable(n.RangeVar)
	case *pg_query.Node_JoinExpr:
		x.walkFromItem(n.JoinExpr.Larg)
		x.walkFromItem(n.JoinExpr.Rarg)
		x.walkExpr(n.JoinExpr.Quals, false)
	case *pg_query.Node_RangeSubselect:
		x.walk(n.RangeSubselect.Subquery, false)
	}
}

// walkExpr descends into expressions, collecting columns when asked and
// always following sub-links so nested sub-select tables are never missed.
func (x *pgExtraction) walkExpr(node *pg_query.Node, collect bool) {
	if node == nil {
		return
	}
	switch n := node.Node.(type) {
	case *pg_query.Node_ColumnRef:
		if collect {
			x.addColumn(n.ColumnRef)
		}
	case *pg_query.Node_AExpr:
		x.walkExpr(n.AExpr.Lexpr, collect)
		x.walkExpr(n.AExpr.Rexpr, collect)
	case *pg_query.Node_BoolExpr:
		for _, arg := range n.BoolExpr.Args {
			x.walkExpr(arg, collect)
		}
	case *pg_query.Node_NullTest:
		x.walkExpr(n.NullTest.Arg, collect)
	case *pg_query.Node_SubLink:
		x.walk(n.SubLink.Subselect, false)
	case *pg_query.Node_FuncCall:
		for _, arg := range n.FuncCall.Args {
			x.walkExpr(arg, collect)
		}
	case *pg_query.Node_TypeCast:
		x.walkExpr(n.TypeCast.Arg, collect)
	case *pg_query.Node_CaseExpr:
		x.walkExpr(n.CaseExpr.Arg, collect)
		for _, when := range n.CaseExpr.Args {
			x.walkExpr(when, collect)
		}
		x.walkExpr(n.CaseExpr.Defresult, collect)
	case *pg_query.Node_CaseWhen:
		x.walkExpr(n.CaseWhen.Expr, collect)
		x.walkExpr(n.CaseWhen.Result, collect)
	}
}
