package domain

// StatementKind is the coarse classification of a SQL statement's effect.
type StatementKind int

const (
	KindUnknown StatementKind = iota
	KindSelect
	KindWith
	KindInsert
	KindUpdate
	KindDelete
	KindDDL
)

func (k StatementKind) String() string {
	switch k {
	case KindSelect:
		return "SELECT"
	case KindWith:
		return "WITH"
	case KindInsert:
		return "INSERT"
	case KindUpdate:
		return "UPDATE"
	case KindDelete:
		return "DELETE"
	case KindDDL:
		return "DDL"
	default:
		return "UNKNOWN"
	}
}

// ReadOnly reports whether the kind never modifies data.
func (k StatementKind) ReadOnly() bool {
	return k == KindSelect || k == KindWith
}

// RawStatement is one text segment produced by splitting the input on
// top-level semicolons. Normalized holds the comment-stripped,
// whitespace-collapsed, case-folded form used for keyword scanning.
type RawStatement struct {
	Text       string
	Normalized string
}

// ParsedStatement is the minimal structural record the rule chain operates
// on. It is derived from a RawStatement and never persisted.
type ParsedStatement struct {
	Raw RawStatement

	// LeadingKeyword is the first significant keyword, upper-cased.
	LeadingKeyword string

	// Tables holds normalized identifiers found after FROM, JOIN, INTO and
	// UPDATE at any nesting depth. CTE names are excluded.
	Tables []string

	// Columns holds best-effort column references from the top-level SELECT
	// list and simple WHERE predicates. Table is empty when the reference
	// is unqualified.
	Columns []ColumnRef

	// TerminalKeyword is the leading keyword of the statement that follows
	// all CTE definitions. Empty unless IsCTE.
	TerminalKeyword string

	// CTENames holds the names introduced by WITH definitions; these are
	// not real relations and must not be subject to table checks.
	CTENames []string

	// EmbeddedDML holds the leading keywords of any INSERT/UPDATE/DELETE
	// found inside CTE bodies. Non-empty means DML was smuggled into an
	// otherwise read-only statement.
	EmbeddedDML []string

	// Words holds every upper-cased bare word found outside string
	// literals and quoted identifiers, in order. The keyword scan runs
	// against this list so payloads hidden in literals never match.
	Words []string

	// Depth is the deepest parenthetical/CTE nesting level observed.
	Depth int

	HasSubquery bool
	IsCTE       bool
}

// ColumnRef is a possibly table-qualified column reference.
type ColumnRef struct {
	Table string
	Name  string
}
