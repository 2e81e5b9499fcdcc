package domain

import (
	"fmt"
	"strings"
)

// ExplanationAllPassed is the fixed success explanation.
const ExplanationAllPassed = "Query passed all safety checks."

// explainers renders one human-readable sentence per error kind. The text
// names the semantic reason and mode context only — never the matching
// machinery behind a rule.
var explainers = map[ErrorKind]func(term string, cfg PolicyConfig) string{
	ErrSyntax: func(term string, _ PolicyConfig) string {
		return fmt.Sprintf("The query could not be parsed: %s.", term)
	},
	ErrComplexityLimit: func(_ string, cfg PolicyConfig) string {
		return fmt.Sprintf(
			"The query exceeds the maximum nesting depth of %d allowed by the safety policy.",
			cfg.MaxParseDepth)
	},
	ErrMultiStatement: func(_ string, _ PolicyConfig) string {
		return "Executing multiple SQL statements in a single request is blocked to prevent SQL injection attacks."
	},
	ErrForbiddenKeyword: func(term string, cfg PolicyConfig) string {
		return fmt.Sprintf("Forbidden command '%s'. Allowed: %s.", term, kindList(cfg))
	},
	ErrForbiddenTable: func(term string, _ PolicyConfig) string {
		return fmt.Sprintf(
			"Access to table '%s' is denied. Check your role's table permissions.", term)
	},
	ErrKindNotAllowed: func(term string, cfg PolicyConfig) string {
		return fmt.Sprintf(
			"%s statements are not permitted in '%s' mode. Allowed: %s.",
			term, cfg.Mode, kindList(cfg))
	},
	ErrColumnNotAllowed: func(term string, _ PolicyConfig) string {
		return fmt.Sprintf(
			"Access to column '%s' is denied. Check your role's column permissions.", term)
	},
}

// Explain renders the safety explanation for a verdict, appending the
// non-blocking unknown-table warning when present.
func Explain(errKind ErrorKind, term string, unknownTables []string, cfg PolicyConfig) string {
	var sb strings.Builder

	if errKind == "" {
		sb.WriteString(ExplanationAllPassed)
	} else if render, ok := explainers[errKind]; ok {
		sb.WriteString(render(term, cfg))
	} else {
		sb.WriteString(fmt.Sprintf("The query was blocked by the safety engine (%s).", errKind))
	}

	if len(unknownTables) > 0 {
		sb.WriteString(fmt.Sprintf(
			" Warning: table(s) not present in the known schema: %s.",
			strings.Join(unknownTables, ", ")))
	}
	return sb.String()
}

func kindList(cfg PolicyConfig) string {
	kinds := cfg.PermittedKinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.String()
	}
	return "[" + strings.Join(names, " ") + "]"
}
