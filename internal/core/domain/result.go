package domain

// ErrorKind identifies the rule that blocked a statement. The zero value
// means no rule fired.
type ErrorKind string

const (
	ErrSyntax            ErrorKind = "syntax_error"
	ErrMultiStatement    ErrorKind = "multi_statement_injection"
	ErrForbiddenKeyword  ErrorKind = "forbidden_keyword"
	ErrForbiddenTable    ErrorKind = "forbidden_table"
	ErrKindNotAllowed    ErrorKind = "statement_kind_not_allowed"
	ErrColumnNotAllowed  ErrorKind = "column_not_allowed"
	ErrComplexityLimit   ErrorKind = "complexity_limit_exceeded"
)

// ValidationResult is the single, immutable verdict produced by one
// Validate call. Exactly one result exists per call; Valid is true iff no
// rule fired. UnknownTables is a non-blocking warning, never a failure.
type ValidationResult struct {
	Valid         bool          `json:"valid"`
	NormalizedSQL string        `json:"normalized_sql"`
	Kind          StatementKind `json:"-"`
	KindName      string        `json:"statement_kind"`
	Tables        []string      `json:"tables,omitempty"`
	UnknownTables []string      `json:"unknown_tables,omitempty"`
	ErrorKind     ErrorKind     `json:"error_kind,omitempty"`
	OffendingTerm string        `json:"offending_term,omitempty"`
	Explanation   string        `json:"safety_explanation"`
}
