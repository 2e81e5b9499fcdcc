package policy

import (
	"fmt"
	"sync/atomic"

	"github.com/olaflaitinen/Rhenium/internal/core/domain"
)

// snapshot is one immutable, fully-converted policy generation.
type snapshot struct {
	config      domain.PolicyConfig
	roles       map[string]domain.Role
	defaultRole string
}

// Store hands out immutable policy snapshots and supports atomic reload:
// Reload builds a complete new snapshot and swaps the pointer, so
// validations that already captured the old one are never affected
// mid-flight.
type Store struct {
	path    string // empty when running on the built-in policy
	current atomic.Pointer[snapshot]
}

// NewStore builds a store from an already-loaded policy. path is kept for
// later Reload calls and may be empty.
func NewStore(pol *Policy, path string) *Store {
	s := &Store{path: path}
	s.current.Store(newSnapshot(pol))
	return s
}

func newSnapshot(pol *Policy) *snapshot {
	defaultRole := pol.DefaultRole
	if defaultRole == "" {
		defaultRole = "viewer"
	}
	return &snapshot{
		config:      pol.Config(),
		roles:       pol.DomainRoles(),
		defaultRole: defaultRole,
	}
}

// Reload re-reads the policy file and swaps in the new snapshot. On any
// error the previous snapshot stays active.
func (s *Store) Reload() error {
	if s.path == "" {
		return fmt.Errorf("no policy file configured")
	}
	pol, err := LoadFromFile(s.path)
	if err != nil {
		return err
	}
	s.current.Store(newSnapshot(pol))
	return nil
}

// Config returns the active immutable policy configuration.
func (s *Store) Config() domain.PolicyConfig {
	return s.current.Load().config
}

// Role looks up a role definition in the active snapshot.
func (s *Store) Role(name string) (domain.Role, bool) {
	role, ok := s.current.Load().roles[name]
	return role, ok
}

// DefaultRole returns the role applied when a caller names none.
func (s *Store) DefaultRole() string {
	return s.current.Load().defaultRole
}
