package auth

import (
	"fmt"
	"strings"

	"portico.dev/internal/store"
)

// Role is an organization-level role. There is no implied ordering between
// roles: each operation declares its allowed set explicitly.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// ParseRole validates a raw role string.
func ParseRole(raw string) (Role, error) {
	switch Role(strings.TrimSpace(strings.ToLower(raw))) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleEditor:
		return RoleEditor, nil
	case RoleViewer:
		return RoleViewer, nil
	default:
		return "", fmt.Errorf("%w: unsupported role %q", store.ErrInvalidInput, raw)
	}
}

// Guard is a reusable role predicate built from an explicit allow set.
type Guard struct {
	allowed map[Role]struct{}
}

// RequireRole builds a Guard permitting exactly the listed roles. Adding a new
// role to the system means revisiting every RequireRole call site; nothing is
// inferred from role names.
func RequireRole(roles ...Role) Guard {
	allowed := make(map[Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return Guard{allowed: allowed}
}

// Check returns ErrForbidden unless the principal's role is in the allow set.
func (g Guard) Check(p Principal) error {
	if _, ok := g.allowed[p.Role]; !ok {
		return ErrForbidden
	}
	return nil
}
