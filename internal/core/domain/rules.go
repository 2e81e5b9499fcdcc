package domain

import "strings"

// Evaluation bundles everything a rule may inspect for one statement. Rules
// read it, never mutate it.
type Evaluation struct {
	Statements []ParsedStatement // every parsed segment, in input order
	Stmt       ParsedStatement   // the statement under evaluation
	Kind       StatementKind
	Resolved   ResolvedStatement
	Role       Role
	Config     PolicyConfig
}

// Violation is a terminal rule outcome.
type Violation struct {
	Kind ErrorKind
	Term string
}

// Rule is one evaluator in the fixed-precedence chain. Returning nil means
// pass; the first non-nil violation wins and evaluation stops.
type Rule struct {
	Name     string
	Evaluate func(ev *Evaluation) *Violation
}

// PolicyRules returns the rule chain in its contractual order. The ordering
// is deliberate and externally visible: identical input and configuration
// must always surface the same first violation.
func PolicyRules() []Rule {
	return []Rule{
		{Name: "multi_statement", Evaluate: checkMultiStatement},
		{Name: "forbidden_keyword", Evaluate: checkForbiddenKeywords},
		{Name: "table_access", Evaluate: checkTableAccess},
		{Name: "statement_kind", Evaluate: checkStatementKind},
		{Name: "column_access", Evaluate: checkColumnAccess},
	}
}

// checkMultiStatement rejects smuggled statements. No mode ever relaxes
// this: neither a second top-level segment nor DML hidden inside a CTE body
// is negotiable.
func checkMultiStatement(ev *Evaluation) *Violation {
	if len(ev.Statements) > 1 {
		term := ev.Statements[1].LeadingKeyword
		if term == "" {
			term = "second statement"
		}
		return &Violation{Kind: ErrMultiStatement, Term: term}
	}
	if len(ev.Stmt.EmbeddedDML) > 0 {
		return &Violation{Kind: ErrMultiStatement, Term: ev.Stmt.EmbeddedDML[0]}
	}
	return nil
}

// checkForbiddenKeywords scans the statement's words (string literals are
// already excluded) for whole-word block-list matches. The statement's own
// verb is exempt only under AllowDangerousQueries — a SELECT carrying
// "DROP" in its body stays rejected even then. This runs even though
// classification already determined the kind; it is deliberate
// defense-in-depth.
func checkForbiddenKeywords(ev *Evaluation) *Violation {
	if len(ev.Config.ForbiddenKeywords) == 0 {
		return nil
	}
	blocked := make(map[string]bool, len(ev.Config.ForbiddenKeywords))
	for _, kw := range ev.Config.ForbiddenKeywords {
		blocked[strings.ToUpper(kw)] = true
	}

	ownVerb := ""
	if ev.Config.AllowDangerousQueries {
		ownVerb = statementVerb(ev.Kind)
	}

	for _, word := range ev.Stmt.Words {
		if !blocked[word] {
			continue
		}
		if word == ownVerb {
			continue
		}
		return &Violation{Kind: ErrForbiddenKeyword, Term: word}
	}
	return nil
}

// statementVerb maps a DML kind to the single keyword it is allowed to
// contain under relaxed configuration. DDL never gets an exemption.
func statementVerb(k StatementKind) string {
	switch k {
	case KindInsert:
		return "INSERT"
	case KindUpdate:
		return "UPDATE"
	case KindDelete:
		return "DELETE"
	}
	return ""
}

// checkTableAccess enforces the role's table whitelist. Superusers and
// roles with unrestricted tables skip this rule only — never the keyword or
// kind rules.
func checkTableAccess(ev *Evaluation) *Violation {
	if ev.Role.Superuser || ev.Role.AllowedTables == nil {
		return nil
	}
	for _, table := range ev.Resolved.Tables {
		if !ev.Role.TableAllowed(table) {
			return &Violation{Kind: ErrForbiddenTable, Term: table}
		}
	}
	return nil
}

// checkStatementKind requires the classified kind to be permitted by both
// the active mode and the role. UNKNOWN and DDL never pass.
func checkStatementKind(ev *Evaluation) *Violation {
	if !ev.Config.Permits(ev.Kind) || !ev.Role.KindAllowed(ev.Kind) {
		return &Violation{Kind: ErrKindNotAllowed, Term: ev.Kind.String()}
	}
	return nil
}

// checkColumnAccess applies column-level RBAC where configured. Columns the
// resolver could not attribute to a table are treated as passing: the
// engine cannot penalize what was not resolved.
func checkColumnAccess(ev *Evaluation) *Violation {
	if !ev.Role.HasColumnPolicy() {
		return nil
	}
	for _, col := range ev.Resolved.Columns {
		table := col.Table
		if table == "" {
			if len(ev.Resolved.Tables) != 1 {
				continue // ambiguous attribution, resolver omitted it
			}
			table = ev.Resolved.Tables[0]
		}
		if !ev.Role.ColumnAllowed(table, col.Name) {
			return &Violation{Kind: ErrColumnNotAllowed, Term: table + "." + col.Name}
		}
	}
	return nil
}
