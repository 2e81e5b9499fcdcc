package domain

// ddlKeywords map straight to KindDDL. EXPLAIN is deliberately included:
// it is a server-side utility command, not a result-producing query.
var ddlKeywords = map[string]bool{
	"CREATE": true, "ALTER": true, "DROP": true, "TRUNCATE": true,
	"ATTACH": true, "PRAGMA": true, "SET": true, "EXPLAIN": true,
}

// Classify assigns a statement kind from the leading keyword.
//
// A WITH statement is classified by its terminal statement, except that any
// CTE body performing INSERT/UPDATE/DELETE reclassifies the whole statement
// to that kind: the most dangerous embedded operation always wins.
func Classify(stmt ParsedStatement) StatementKind {
	switch stmt.LeadingKeyword {
	case "SELECT":
		return KindSelect
	case "INSERT":
		return KindInsert
	case "UPDATE":
		return KindUpdate
	case "DELETE":
		return KindDelete
	case "WITH":
		return classifyCTE(stmt)
	}
	if ddlKeywords[stmt.LeadingKeyword] {
		return KindDDL
	}
	return KindUnknown
}

func classifyCTE(stmt ParsedStatement) StatementKind {
	if worst := worstEmbedded(stmt.EmbeddedDML); worst != KindUnknown {
		return worst
	}
	switch stmt.TerminalKeyword {
	case "SELECT":
		return KindWith
	case "INSERT":
		return KindInsert
	case "UPDATE":
		return KindUpdate
	case "DELETE":
		return KindDelete
	}
	return KindUnknown
}

// worstEmbedded picks the most dangerous DML kind among CTE bodies.
func worstEmbedded(embedded []string) StatementKind {
	rank := func(k StatementKind) int {
		switch k {
		case KindDelete:
			return 3
		case KindUpdate:
			return 2
		case KindInsert:
			return 1
		}
		return 0
	}
	worst := KindUnknown
	for _, kw := range embedded {
		var k StatementKind
		switch kw {
		case "INSERT":
			k = KindInsert
		case "UPDATE":
			k = KindUpdate
		case "DELETE":
			k = KindDelete
		default:
			continue
		}
		if rank(k) > rank(worst) {
			worst = k
		}
	}
	return worst
}
