package domain

import (
	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// ExtractAliasMap returns original column name -> alias for every simple
// column reference carrying an AS clause in the statement's SELECT list
// (e.g. "Email" AS email, c."Email" AS email). Expressions are skipped —
// they can never match a mask key anyway. Returns an empty map when the
// statement does not parse or is not a SELECT; masking then falls back to
// original column names.
func ExtractAliasMap(sql string) map[string]string {
	aliases := make(map[string]string)

	tree, err := pg_query.Parse(sql)
	if err != nil || len(tree.Stmts) == 0 || tree.Stmts[0].Stmt == nil {
		return aliases
	}

	sel, ok := tree.Stmts[0].Stmt.Node.(*pg_query.Node_SelectStmt)
	if !ok {
		return aliases
	}

	for _, target := range sel.SelectStmt.TargetList {
		rt, ok := target.Node.(*pg_query.Node_ResTarget)
		if !ok || rt.ResTarget == nil || rt.ResTarget.Name == "" || rt.ResTarget.Val == nil {
			continue
		}

		cr, ok := rt.ResTarget.Val.Node.(*pg_query.Node_ColumnRef)
		if !ok || cr.ColumnRef == nil || len(cr.ColumnRef.Fields) == 0 {
			continue
		}

		// The last field is the bare column name; earlier fields are
		// table or alias qualifiers.
		last := cr.ColumnRef.Fields[len(cr.ColumnRef.Fields)-1]
		str, ok := last.Node.(*pg_query.Node_String_)
		if !ok || str.String_ == nil {
			continue
		}

		col := str.String_.Sval
		if col != "" && col != rt.ResTarget.Name {
			aliases[col] = rt.ResTarget.Name
		}
	}

	return aliases
}
