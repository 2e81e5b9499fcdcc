package policy

import (
	"fmt"
	"os"

	"github.com/olaflaitinen/Rhenium/internal/core/domain"
	"gopkg.in/yaml.v3"
)

// LoadFromFile reads a YAML policy file and returns a validated Policy.
func LoadFromFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy file: %w", err)
	}

	var pol Policy
	if err := yaml.Unmarshal(data, &pol); err != nil {
		return nil, fmt.Errorf("parsing policy YAML: %w", err)
	}

	if err := validate(&pol); err != nil {
		return nil, fmt.Errorf("validating policy: %w", err)
	}

	return &pol, nil
}

func validate(pol *Policy) error {
	if pol.Mode != "" && !domain.Mode(pol.Mode).Valid() {
		return fmt.Errorf("mode: invalid value %q (allowed: strict, moderate, permissive)", pol.Mode)
	}
	if pol.MaxParseDepth < 0 {
		return fmt.Errorf("max_parse_depth: must not be negative")
	}
	if len(pol.Roles) == 0 {
		return fmt.Errorf("roles: at least one role is required")
	}
	if pol.DefaultRole != "" {
		if _, ok := pol.Roles[pol.DefaultRole]; !ok {
			return fmt.Errorf("default_role: role %q is not defined", pol.DefaultRole)
		}
	}

	for name, spec := range pol.Roles {
		if name == "" {
			return fmt.Errorf("roles contains an empty key")
		}
		for _, stmt := range spec.Statements {
			if _, ok := parseKind(stmt); !ok {
				return fmt.Errorf("roles[%q].statements: invalid statement kind %q", name, stmt)
			}
		}
		for col, mask := range spec.Masks {
			if col == "" {
				return fmt.Errorf("roles[%q].masks contains an empty column key", name)
			}
			if !mask.Valid() {
				return fmt.Errorf("roles[%q].masks[%q]: invalid value %q (allowed: redact, hash, partial, null)", name, col, mask)
			}
		}
		for table := range spec.Columns {
			if table == "" {
				return fmt.Errorf("roles[%q].columns contains an empty table key", name)
			}
		}
	}
	return nil
}
