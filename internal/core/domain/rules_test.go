package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicyRulesOrder(t *testing.T) {
	rules := PolicyRules()
	names := make([]string, len(rules))
	for i, r := range rules {
		names[i] = r.Name
	}
	assert.Equal(t, []string{
		"multi_statement",
		"forbidden_keyword",
		"table_access",
		"statement_kind",
		"column_access",
	}, names)
}

func TestCheckForbiddenKeywordsOwnVerbExemption(t *testing.T) {
	cfg := DefaultPolicyConfig()
	cfg.AllowDangerousQueries = true

	ev := &Evaluation{
		Stmt:   ParsedStatement{Words: []string{"DELETE", "FROM", "SALES"}},
		Kind:   KindDelete,
		Config: cfg,
	}
	assert.Nil(t, checkForbiddenKeywords(ev))

	// The exemption covers the statement's own verb only: a DELETE whose
	// body mentions UPDATE stays blocked.
	ev.Stmt.Words = []string{"DELETE", "FROM", "SALES", "WHERE", "UPDATE"}
	v := checkForbiddenKeywords(ev)
	require.NotNil(t, v)
	assert.Equal(t, ErrForbiddenKeyword, v.Kind)
	assert.Equal(t, "UPDATE", v.Term)
}

func TestCheckForbiddenKeywordsNoExemptionForDDL(t *testing.T) {
	cfg := DefaultPolicyConfig()
	cfg.AllowDangerousQueries = true

	ev := &Evaluation{
		Stmt:   ParsedStatement{Words: []string{"DROP", "TABLE", "SALES"}},
		Kind:   KindDDL,
		Config: cfg,
	}
	v := checkForbiddenKeywords(ev)
	require.NotNil(t, v)
	assert.Equal(t, "DROP", v.Term)
}

func TestCheckForbiddenKeywordsCaseInsensitiveBlocklist(t *testing.T) {
	cfg := DefaultPolicyConfig()
	cfg.ForbiddenKeywords = []string{"vacuum"}

	ev := &Evaluation{
		Stmt:   ParsedStatement{Words: []string{"VACUUM", "SALES"}},
		Kind:   KindUnknown,
		Config: cfg,
	}
	v := checkForbiddenKeywords(ev)
	require.NotNil(t, v)
	assert.Equal(t, "VACUUM", v.Term)
}

func TestCheckTableAccessEmptyWhitelistDeniesAll(t *testing.T) {
	ev := &Evaluation{
		Resolved: ResolvedStatement{Tables: []string{"sales"}},
		Role:     Role{Name: "nobody", AllowedTables: []string{}},
	}
	v := checkTableAccess(ev)
	require.NotNil(t, v)
	assert.Equal(t, ErrForbiddenTable, v.Kind)
	assert.Equal(t, "sales", v.Term)
}

func TestCheckTableAccessNilWhitelistAllowsAll(t *testing.T) {
	ev := &Evaluation{
		Resolved: ResolvedStatement{Tables: []string{"anything"}},
		Role:     Role{Name: "open"},
	}
	assert.Nil(t, checkTableAccess(ev))
}

func TestCheckColumnAccessAmbiguousAttributionPasses(t *testing.T) {
	// An unqualified column over two tables cannot be attributed; the rule
	// must not guess.
	ev := &Evaluation{
		Resolved: ResolvedStatement{
			Tables:  []string{"sales", "customers"},
			Columns: []ColumnRef{{Name: "email"}},
		},
		Role: Role{
			Name:           "limited",
			AllowedColumns: map[string][]string{"customers": {"id"}},
		},
	}
	assert.Nil(t, checkColumnAccess(ev))
}

func TestCheckColumnAccessWildcardEntry(t *testing.T) {
	ev := &Evaluation{
		Resolved: ResolvedStatement{
			Tables:  []string{"customers"},
			Columns: []ColumnRef{{Table: "customers", Name: "email"}},
		},
		Role: Role{
			Name:           "wild",
			AllowedColumns: map[string][]string{"customers": {"*"}},
		},
	}
	assert.Nil(t, checkColumnAccess(ev))
}

func TestCheckMultiStatementTermFallback(t *testing.T) {
	ev := &Evaluation{
		Statements: []ParsedStatement{{LeadingKeyword: "SELECT"}, {}},
	}
	v := checkMultiStatement(ev)
	require.NotNil(t, v)
	assert.Equal(t, "second statement", v.Term)
}
