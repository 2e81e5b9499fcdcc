package policy

import (
	"fmt"
	"strings"

	"github.com/olaflaitinen/Rhenium/internal/core/domain"
	"gopkg.in/yaml.v3"
)

// Policy is the operator-controlled safety configuration loaded from a YAML
// file: the global mode plus per-role table, statement and column
// restrictions.
type Policy struct {
	Mode                  string              `yaml:"mode"`
	AllowDangerousQueries bool                `yaml:"allow_dangerous_queries"`
	ForbiddenKeywords     []string            `yaml:"forbidden_keywords"`
	MaxParseDepth         int                 `yaml:"max_parse_depth"`
	DefaultRole           string              `yaml:"default_role"`
	Roles                 map[string]RoleSpec `yaml:"roles"`
}

// RoleSpec declares one role's access rights.
type RoleSpec struct {
	Superuser  bool                       `yaml:"superuser"`
	Tables     TableList                  `yaml:"tables"`
	Statements []string                   `yaml:"statements"`
	Columns    map[string][]string        `yaml:"columns"`
	Masks      map[string]domain.MaskType `yaml:"masks"`
}

// TableList is a role's table whitelist. Unrestricted holds when the YAML
// value is the scalar "*":
//
//	tables: "*"                 # every table
//	tables: [sales, customers]  # whitelist
type TableList struct {
	Unrestricted bool
	Names        []string
}

func (t *TableList) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		if value.Value != "*" {
			return fmt.Errorf("tables: scalar value must be \"*\", got %q", value.Value)
		}
		t.Unrestricted = true
		return nil
	}
	if err := value.Decode(&t.Names); err != nil {
		return fmt.Errorf("decoding table list: %w", err)
	}
	for _, n := range t.Names {
		if n == "*" {
			t.Unrestricted = true
			t.Names = nil
			return nil
		}
	}
	return nil
}

// Config converts the file-level settings to the immutable engine snapshot.
func (p *Policy) Config() domain.PolicyConfig {
	cfg := domain.DefaultPolicyConfig()
	if p.Mode != "" {
		cfg.Mode = domain.Mode(strings.ToLower(p.Mode))
	}
	cfg.AllowDangerousQueries = p.AllowDangerousQueries
	if p.ForbiddenKeywords != nil {
		cfg.ForbiddenKeywords = append([]string(nil), p.ForbiddenKeywords...)
	}
	if p.MaxParseDepth > 0 {
		cfg.MaxParseDepth = p.MaxParseDepth
	}
	return cfg
}

// DomainRoles converts every RoleSpec into its engine value.
func (p *Policy) DomainRoles() map[string]domain.Role {
	roles := make(map[string]domain.Role, len(p.Roles))
	for name, spec := range p.Roles {
		roles[name] = spec.toDomain(name)
	}
	return roles
}

func (s RoleSpec) toDomain(name string) domain.Role {
	role := domain.Role{
		Name:      name,
		Superuser: s.Superuser,
		Masks:     s.Masks,
	}
	if !s.Superuser && !s.Tables.Unrestricted {
		role.AllowedTables = append([]string{}, s.Tables.Names...)
	}
	for _, stmt := range s.Statements {
		if kind, ok := parseKind(stmt); ok {
			role.AllowedKinds = append(role.AllowedKinds, kind)
		}
	}
	if len(s.Columns) > 0 {
		role.AllowedColumns = make(map[string][]string, len(s.Columns))
		for table, cols := range s.Columns {
			role.AllowedColumns[strings.ToLower(table)] = cols
		}
	}
	return role
}

func parseKind(name string) (domain.StatementKind, bool) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "SELECT":
		return domain.KindSelect, true
	case "WITH":
		return domain.KindWith, true
	case "INSERT":
		return domain.KindInsert, true
	case "UPDATE":
		return domain.KindUpdate, true
	case "DELETE":
		return domain.KindDelete, true
	}
	return domain.KindUnknown, false
}

// Default returns the built-in policy used when no file is supplied: strict
// mode with the stock admin/analyst/viewer roles.
func Default() *Policy {
	return &Policy{
		Mode:        string(domain.ModeStrict),
		DefaultRole: "viewer",
		Roles: map[string]RoleSpec{
			"admin": {Superuser: true},
			"analyst": {
				Tables:     TableList{Names: []string{"sales", "customers", "products", "orders"}},
				Statements: []string{"SELECT", "WITH"},
			},
			"viewer": {
				Tables:     TableList{Names: []string{"sales"}},
				Statements: []string{"SELECT", "WITH"},
			},
		},
	}
}
