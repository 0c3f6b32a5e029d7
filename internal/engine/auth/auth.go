// Package auth matches an authenticated principal against the roles an
// operation accepts. There is no finer-grained permission model.
package auth

import (
	"fmt"
	"strings"

	"fieldline/internal/domain"
)

// Principal is the caller as established by a token or an API key.
type Principal struct {
	ActorID string
	Role    domain.Role
	Source  string
}

// ForbiddenError indicates a role that may not perform the operation.
type ForbiddenError struct {
	Role    domain.Role
	Allowed []domain.Role
}

func (e ForbiddenError) Error() string {
	allowed := make([]string, 0, len(e.Allowed))
	for _, r := range e.Allowed {
		allowed = append(allowed, string(r))
	}
	if e.Role == "" {
		return fmt.Sprintf("role %s required", strings.Join(allowed, " or "))
	}
	return fmt.Sprintf("role %s may not do this; requires %s", e.Role, strings.Join(allowed, " or "))
}

// Require accepts p when it holds one of allowed. An empty allowed list
// accepts any known role.
func Require(p Principal, allowed ...domain.Role) error {
	if _, err := domain.ParseRole(string(p.Role)); err != nil {
		return ForbiddenError{Role: p.Role, Allowed: allRoles(allowed)}
	}
	if len(allowed) == 0 {
		return nil
	}
	for _, r := range allowed {
		if p.Role == r {
			return nil
		}
	}
	return ForbiddenError{Role: p.Role, Allowed: allowed}
}

func allRoles(allowed []domain.Role) []domain.Role {
	if len(allowed) > 0 {
		return allowed
	}
	return []domain.Role{domain.RoleSection, domain.RoleBrigade}
}
