package domain

import (
	"sort"
	"strings"
)

// Role is a named bundle of permissions. Names are unique and uppercase.
type Role struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Permission grants one action on one resource type. Name is always
// PermissionName(ResourceType, Action).
type Permission struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	ResourceType string `json:"resource_type"`
	Action       string `json:"action"`
	Description  string `json:"description,omitempty"`
}

// RolePermission links a role to a permission.
type RolePermission struct {
	RoleID       int64
	PermissionID int64
}

// Scopes maps each role a user holds to the names of that role's
// permissions. A role without permissions maps to an empty slice.
type Scopes map[string][]string

// HasPermission reports whether any role carries the named permission.
func (s Scopes) HasPermission(name string) bool {
	for _, perms := range s {
		for _, p := range perms {
			if p == name {
				return true
			}
		}
	}
	return false
}

// HasRole reports whether the role is present. Matching is case-sensitive.
func (s Scopes) HasRole(role string) bool {
	_, ok := s[role]
	return ok
}

// Roles returns the role names in sorted order.
func (s Scopes) Roles() []string {
	roles := make([]string, 0, len(s))
	for r := range s {
		roles = append(roles, r)
	}
	sort.Strings(roles)
	return roles
}

// PermissionName derives the canonical permission name for a resource and
// action, e.g. ("lesson", "create") -> "LESSON_CREATE".
func PermissionName(resourceType, action string) string {
	return strings.ToUpper(resourceType) + "_" + strings.ToUpper(action)
}

// Built-in role names.
const (
	RoleAdmin   = "ADMIN"
	RoleTeacher = "TEACHER"
	RoleStudent = "STUDENT"
)

// Built-in permission names.
const (
	PermUserCreate     = "USER_CREATE"
	PermUserRead       = "USER_READ"
	PermUserUpdate     = "USER_UPDATE"
	PermUserDelete     = "USER_DELETE"
	PermLessonCreate   = "LESSON_CREATE"
	PermLessonRead     = "LESSON_READ"
	PermLessonUpdate   = "LESSON_UPDATE"
	PermLessonDelete   = "LESSON_DELETE"
	PermQuizCreate     = "QUIZ_CREATE"
	PermQuizRead       = "QUIZ_READ"
	PermQuizUpdate     = "QUIZ_UPDATE"
	PermQuizDelete     = "QUIZ_DELETE"
	PermProgressRead   = "PROGRESS_READ"
	PermProgressUpdate = "PROGRESS_UPDATE"
	PermStreakUpdate   = "STREAK_UPDATE"
	PermAdminAll       = "ADMIN_ALL"
)

func perm(resource, action, description string) Permission {
	return Permission{
		Name:         PermissionName(resource, action),
		ResourceType: strings.ToUpper(resource),
		Action:       strings.ToUpper(action),
		Description:  description,
	}
}

// DefaultPermissions is the seeded permission catalogue, keyed by name. It
// mirrors migrations/000002_seed_rbac.up.sql.
var DefaultPermissions = map[string]Permission{
	PermUserCreate:     perm("user", "create", "Create user accounts"),
	PermUserRead:       perm("user", "read", "View user accounts"),
	PermUserUpdate:     perm("user", "update", "Modify user accounts and sessions"),
	PermUserDelete:     perm("user", "delete", "Delete user accounts"),
	PermLessonCreate:   perm("lesson", "create", "Create lessons"),
	PermLessonRead:     perm("lesson", "read", "View lessons"),
	PermLessonUpdate:   perm("lesson", "update", "Edit lessons"),
	PermLessonDelete:   perm("lesson", "delete", "Delete lessons"),
	PermQuizCreate:     perm("quiz", "create", "Create quizzes"),
	PermQuizRead:       perm("quiz", "read", "View quizzes"),
	PermQuizUpdate:     perm("quiz", "update", "Edit quizzes"),
	PermQuizDelete:     perm("quiz", "delete", "Delete quizzes"),
	PermProgressRead:   perm("progress", "read", "View learning progress"),
	PermProgressUpdate: perm("progress", "update", "Record learning progress"),
	PermStreakUpdate:   perm("streak", "update", "Update study streaks"),
	PermAdminAll:       perm("admin", "all", "Unrestricted administrative access"),
}

// DefaultRoles is the seeded role catalogue with each role's permissions.
var DefaultRoles = map[string][]string{
	RoleAdmin: {
		PermAdminAll,
		PermUserCreate, PermUserRead, PermUserUpdate, PermUserDelete,
		PermLessonCreate, PermLessonRead, PermLessonUpdate, PermLessonDelete,
		PermQuizCreate, PermQuizRead, PermQuizUpdate, PermQuizDelete,
		PermProgressRead, PermProgressUpdate, PermStreakUpdate,
	},
	RoleTeacher: {
		PermUserRead,
		PermLessonCreate, PermLessonRead, PermLessonUpdate, PermLessonDelete,
		PermQuizCreate, PermQuizRead, PermQuizUpdate, PermQuizDelete,
		PermProgressRead,
	},
	RoleStudent: {
		PermLessonRead, PermQuizRead,
		PermProgressRead, PermProgressUpdate, PermStreakUpdate,
	},
}

// LookupPermission returns the built-in permission with the given name.
func LookupPermission(name string) (Permission, bool) {
	p, ok := DefaultPermissions[name]
	return p, ok
}

// LookupRole returns the built-in role with the given name and its
// permission names.
func LookupRole(name string) (Role, []string, bool) {
	perms, ok := DefaultRoles[name]
	if !ok {
		return Role{}, nil, false
	}
	return Role{Name: name}, perms, true
}
