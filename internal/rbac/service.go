package rbac

import (
	"errors"
	"sort"
	"strings"

	"github.com/innkeep/innkeep/internal/shared"
)

// ErrNotFound indicates that the requested role does not exist.
var ErrNotFound = errors.New("rbac: not found")

// Service resolves role policies. Roles are issued by the upstream identity
// provider, so the policy is static configuration rather than stored rows.
type Service struct {
	policy map[string][]string
}

// NewService constructs a Service over the given role -> permissions policy.
func NewService(policy map[string][]string) *Service {
	normalized := make(map[string][]string, len(policy))
	for role, perms := range policy {
		normalized[strings.ToLower(strings.TrimSpace(role))] = normalizePermissions(perms)
	}
	return &Service{policy: normalized}
}

// NewDefaultService uses the built-in booking policy.
func NewDefaultService() *Service {
	return NewService(shared.RoleScopes())
}

// ListRoles returns all roles ordered by name.
func (s *Service) ListRoles() []Role {
	roles := make([]Role, 0, len(s.policy))
	for name, perms := range s.policy {
		sorted := append([]string(nil), perms...)
		sort.Strings(sorted)
		roles = append(roles, Role{Name: name, Permissions: sorted})
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].Name < roles[j].Name })
	return roles
}

// EffectivePermissions returns permission names granted to a role.
func (s *Service) EffectivePermissions(role string) ([]string, error) {
	perms, ok := s.policy[strings.ToLower(strings.TrimSpace(role))]
	if !ok {
		return nil, ErrNotFound
	}
	return perms, nil
}
