// Package policy declares authorization requirements and enforces them
// against live role and permission data.
package policy

import (
	"strings"

	"github.com/nemisolv/englearn-auth/internal/domain"
)

type kind int

const (
	kindPermission kind = iota + 1
	kindAnyPermission
	kindRole
	kindAnyRole
	kindAllRoles
)

// Requirement is a declarative authorization rule attached to a route.
// A requirement naming nothing is never satisfied.
type Requirement struct {
	kind  kind
	names []string
}

// Permission requires the named permission.
func Permission(name string) Requirement {
	return Requirement{kind: kindPermission, names: nonEmpty(name)}
}

// ResourcePermission requires the permission derived from resourceType and
// action, e.g. ("user", "read") requires USER_READ.
func ResourcePermission(resourceType, action string) Requirement {
	if resourceType == "" || action == "" {
		return Requirement{kind: kindPermission}
	}
	return Permission(domain.PermissionName(resourceType, action))
}

// AnyPermission requires at least one of names.
func AnyPermission(names ...string) Requirement {
	return Requirement{kind: kindAnyPermission, names: nonEmpty(names...)}
}

// Role requires the named role.
func Role(name string) Requirement {
	return Requirement{kind: kindRole, names: nonEmpty(name)}
}

// AnyRole requires at least one of names.
func AnyRole(names ...string) Requirement {
	return Requirement{kind: kindAnyRole, names: nonEmpty(names...)}
}

// AllRoles requires every one of names.
func AllRoles(names ...string) Requirement {
	return Requirement{kind: kindAllRoles, names: nonEmpty(names...)}
}

// SatisfiedBy evaluates the requirement against resolved scopes.
func (r Requirement) SatisfiedBy(scopes domain.Scopes) bool {
	if len(r.names) == 0 {
		return false
	}
	switch r.kind {
	case kindPermission, kindAnyPermission:
		for _, n := range r.names {
			if scopes.HasPermission(n) {
				return true
			}
		}
		return false
	case kindRole, kindAnyRole:
		for _, n := range r.names {
			if scopes.HasRole(n) {
				return true
			}
		}
		return false
	case kindAllRoles:
		for _, n := range r.names {
			if !scopes.HasRole(n) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// String renders the requirement for logs, e.g. any_permission(USER_UPDATE,ADMIN_ALL).
func (r Requirement) String() string {
	var prefix string
	switch r.kind {
	case kindPermission:
		prefix = "permission"
	case kindAnyPermission:
		prefix = "any_permission"
	case kindRole:
		prefix = "role"
	case kindAnyRole:
		prefix = "any_role"
	case kindAllRoles:
		prefix = "all_roles"
	default:
		prefix = "invalid"
	}
	return prefix + "(" + strings.Join(r.names, ",") + ")"
}

func nonEmpty(names ...string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n != "" {
			out = append(out, n)
		}
	}
	return out
}
