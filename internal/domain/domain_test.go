package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Permission naming
// ============================================================================

func TestPermissionName(t *testing.T) {
	assert.Equal(t, "LESSON_CREATE", PermissionName("lesson", "create"))
	assert.Equal(t, "LESSON_CREATE", PermissionName("LESSON", "Create"))
	assert.Equal(t, "ADMIN_ALL", PermissionName("Admin", "all"))
}

func TestDefaultPermissions_NamesAreDerived(t *testing.T) {
	for name, p := range DefaultPermissions {
		assert.Equal(t, name, p.Name)
		assert.Equal(t, name, PermissionName(p.ResourceType, p.Action))
	}
}

func TestDefaultRoles_ReferenceKnownPermissions(t *testing.T) {
	for role, perms := range DefaultRoles {
		for _, p := range perms {
			_, ok := LookupPermission(p)
			assert.True(t, ok, "role %s references unknown permission %s", role, p)
		}
	}
}

func TestLookupRole(t *testing.T) {
	r, perms, ok := LookupRole(RoleTeacher)
	require.True(t, ok)
	assert.Equal(t, RoleTeacher, r.Name)
	assert.Contains(t, perms, PermLessonCreate)
	assert.NotContains(t, perms, PermUserDelete)

	_, _, ok = LookupRole("teacher")
	assert.False(t, ok, "role lookup is case-sensitive")
}

// ============================================================================
// Scopes
// ============================================================================

func TestScopes(t *testing.T) {
	s := Scopes{
		RoleTeacher: {PermLessonCreate, PermLessonUpdate},
		"EMPTY":     {},
	}

	assert.True(t, s.HasPermission(PermLessonCreate))
	assert.False(t, s.HasPermission(PermUserDelete))
	assert.True(t, s.HasRole(RoleTeacher))
	assert.True(t, s.HasRole("EMPTY"))
	assert.False(t, s.HasRole(RoleAdmin))
	assert.False(t, s.HasRole("teacher"))
	assert.Equal(t, []string{"EMPTY", RoleTeacher}, s.Roles())
}

func TestScopes_EmptyRoleMarshalsAsArray(t *testing.T) {
	b, err := json.Marshal(Scopes{"EMPTY": {}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"EMPTY":[]}`, string(b))
}

// ============================================================================
// Refresh token state
// ============================================================================

func TestRefreshToken_IsValid(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		tok   RefreshToken
		valid bool
		state TokenState
	}{
		{"active", RefreshToken{ExpiresAt: now.Add(time.Second)}, true, TokenStateActive},
		{"expires exactly now", RefreshToken{ExpiresAt: now}, false, TokenStateExpired},
		{"expired", RefreshToken{ExpiresAt: now.Add(-time.Hour)}, false, TokenStateExpired},
		{"revoked", RefreshToken{ExpiresAt: now.Add(time.Hour), Revoked: true}, false, TokenStateRevoked},
		{"rotated", RefreshToken{ExpiresAt: now.Add(time.Hour), Revoked: true, ReplacedBy: ptr(int64(2))}, false, TokenStateRotated},
		{"rotated and expired", RefreshToken{ExpiresAt: now.Add(-time.Hour), Revoked: true, ReplacedBy: ptr(int64(2))}, false, TokenStateRotated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.tok.IsValid(now))
			assert.Equal(t, tt.state, tt.tok.State(now))
		})
	}
}

func TestSessionFromToken(t *testing.T) {
	now := time.Now()
	s := SessionFromToken(&RefreshToken{
		ID: 3, TokenHash: "h", DeviceInfo: "Mobile", IPAddress: "1.2.3.4",
		UserAgent: "ua", CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	})
	assert.Equal(t, int64(3), s.ID)
	assert.Equal(t, "Mobile", s.DeviceInfo)

	b, err := json.Marshal(s)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "token_hash")
}

func TestUser_IsActive(t *testing.T) {
	assert.True(t, (&User{Status: UserStatusActive}).IsActive())
	assert.False(t, (&User{Status: UserStatusSuspended}).IsActive())
	assert.False(t, (&User{}).IsActive())
}

func ptr[T any](v T) *T { return &v }
