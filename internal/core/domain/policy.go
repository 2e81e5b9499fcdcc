package domain

// Mode is a named bundle of permitted statement kinds.
type Mode string

const (
	ModeStrict     Mode = "strict"
	ModeModerate   Mode = "moderate"
	ModePermissive Mode = "permissive"
)

// Valid reports whether m is a recognised safety mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeStrict, ModeModerate, ModePermissive:
		return true
	}
	return false
}

// PolicyConfig is the immutable policy snapshot a single validation runs
// against. Reload replaces the whole value; it is never mutated in place.
type PolicyConfig struct {
	Mode                  Mode
	AllowDangerousQueries bool
	ForbiddenKeywords     []string
	MaxParseDepth         int
}

// DefaultForbiddenKeywords is the keyword block list applied when the
// policy file does not override it.
var DefaultForbiddenKeywords = []string{
	"DROP", "DELETE", "UPDATE", "TRUNCATE", "ATTACH", "PRAGMA", "GRANT", "REVOKE",
}

// DefaultPolicyConfig returns the strict baseline policy.
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		Mode:              ModeStrict,
		ForbiddenKeywords: append([]string(nil), DefaultForbiddenKeywords...),
		MaxParseDepth:     12,
	}
}

// PermittedKinds returns the statement kinds the snapshot's mode allows.
// DDL and UNKNOWN are never permitted under any mode.
func (c PolicyConfig) PermittedKinds() []StatementKind {
	kinds := []StatementKind{KindSelect, KindWith}
	switch c.Mode {
	case ModeModerate:
		kinds = append(kinds, KindInsert)
	case ModePermissive:
		kinds = append(kinds, KindInsert)
		if c.AllowDangerousQueries {
			kinds = append(kinds, KindUpdate, KindDelete)
		}
	}
	return kinds
}

// Permits reports whether the mode allows statements of kind k.
func (c PolicyConfig) Permits(k StatementKind) bool {
	for _, allowed := range c.PermittedKinds() {
		if allowed == k {
			return true
		}
	}
	return false
}
