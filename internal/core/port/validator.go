package port

import "github.com/olaflaitinen/Rhenium/internal/core/domain"

// QueryValidator produces a safety verdict for a SQL statement. The call
// is total: malformed input yields an invalid result, never an error.
type QueryValidator interface {
	Validate(sql string, role domain.Role, cfg domain.PolicyConfig, schema domain.SchemaView) domain.ValidationResult
}

// PolicyProvider hands out the current policy snapshot and role
// definitions. Implementations must return immutable values so in-flight
// validations never observe a partial reload.
type PolicyProvider interface {
	Config() domain.PolicyConfig
	Role(name string) (domain.Role, bool)
	DefaultRole() string
}
