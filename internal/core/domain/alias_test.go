package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractAliasMap(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want map[string]string
	}{
		{
			"simple alias",
			"SELECT email AS contact FROM customers",
			map[string]string{"email": "contact"},
		},
		{
			"table qualified",
			"SELECT c.email AS contact FROM customers c",
			map[string]string{"email": "contact"},
		},
		{
			"mixed aliased and plain",
			"SELECT id, email AS contact, name AS full_name FROM customers",
			map[string]string{"email": "contact", "name": "full_name"},
		},
		{
			"quoted identifier preserves case",
			`SELECT "Email" AS email FROM customers`,
			map[string]string{"Email": "email"},
		},
		{
			"no aliases",
			"SELECT id, email FROM customers",
			map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractAliasMap(tt.sql))
		})
	}
}

func TestExtractAliasMapSkipsExpressions(t *testing.T) {
	// Expressions never match a mask key, so they produce no entries.
	aliases := ExtractAliasMap("SELECT first_name || ' ' || last_name AS full_name FROM customers")
	assert.Empty(t, aliases)
}

func TestExtractAliasMapIdentityAlias(t *testing.T) {
	aliases := ExtractAliasMap("SELECT email AS email FROM customers")
	assert.Empty(t, aliases)
}

func TestExtractAliasMapNonSelect(t *testing.T) {
	assert.Empty(t, ExtractAliasMap("INSERT INTO customers (email) VALUES ('a@b.c')"))
	assert.Empty(t, ExtractAliasMap("garbage that does not parse"))
	assert.Empty(t, ExtractAliasMap(""))
}
