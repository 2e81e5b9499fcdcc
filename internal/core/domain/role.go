package domain

import "strings"

// Role carries the access rights of the requesting user. It is supplied by
// the caller on every validation and is read-only here.
//
// AllowedTables nil means unrestricted table access (superuser scope); an
// empty non-nil set means no table access at all. Unrestricted tables never
// bypass statement-kind or keyword checks.
type Role struct {
	Name           string
	Superuser      bool
	AllowedTables  []string
	AllowedKinds   []StatementKind
	AllowedColumns map[string][]string // table -> column whitelist; nil = no column-level RBAC
	Masks          map[string]MaskType // column name -> mask applied to executed results
}

// TableAllowed reports whether the role may touch the given normalized
// table name.
func (r Role) TableAllowed(table string) bool {
	if r.Superuser || r.AllowedTables == nil {
		return true
	}
	for _, t := range r.AllowedTables {
		if strings.EqualFold(t, table) {
			return true
		}
	}
	return false
}

// ColumnAllowed reports whether the role may read column col of table.
// Roles without column-level RBAC allow every column, as does a "*" entry
// in the table's whitelist.
func (r Role) ColumnAllowed(table, col string) bool {
	if r.Superuser || r.AllowedColumns == nil {
		return true
	}
	allowed, ok := r.AllowedColumns[strings.ToLower(table)]
	if !ok {
		return true
	}
	for _, c := range allowed {
		if c == "*" || strings.EqualFold(c, col) {
			return true
		}
	}
	return false
}

// HasColumnPolicy reports whether column-level RBAC is configured for the
// role at all.
func (r Role) HasColumnPolicy() bool {
	return !r.Superuser && len(r.AllowedColumns) > 0
}

// KindAllowed reports whether the role itself permits statements of kind k.
// An empty AllowedKinds set leaves kind filtering to the mode policy alone.
func (r Role) KindAllowed(k StatementKind) bool {
	if len(r.AllowedKinds) == 0 {
		return true
	}
	for _, allowed := range r.AllowedKinds {
		if allowed == k {
			return true
		}
	}
	return false
}
