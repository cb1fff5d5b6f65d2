package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nemisolv/englearn-auth/internal/domain"
	"github.com/nemisolv/englearn-auth/pkg/database"
	apperrors "github.com/nemisolv/englearn-auth/pkg/errors"
)

func strPtr(s string) *string { return &s }

var testNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

func userRow(u *domain.User) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "email", "password_hash", "status", "auth_provider",
		"email_verified", "last_login_at", "created_at", "updated_at",
	}).AddRow(
		u.ID, u.Email, u.PasswordHash, u.Status, u.AuthProvider,
		u.EmailVerified, u.LastLoginAt, u.CreatedAt, u.UpdatedAt,
	)
}

func TestUserRepository_GetByEmail(t *testing.T) {
	mock := database.NewMockPool(t)
	repo := NewUserRepository(mock)

	want := &domain.User{
		ID: 7, Email: "alice@example.com", PasswordHash: "hash",
		Status: domain.UserStatusActive, AuthProvider: domain.AuthProviderLocal,
		EmailVerified: true, LastLoginAt: (*time.Time)(nil), CreatedAt: testNow, UpdatedAt: testNow,
	}
	mock.ExpectQuery("FROM users WHERE lower\\(email\\) = lower\\(\\$1\\)").
		WithArgs("Alice@Example.com").
		WillReturnRows(userRow(want))

	got, err := repo.GetByEmail(context.Background(), "Alice@Example.com")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestUserRepository_GetByID_NotFound(t *testing.T) {
	mock := database.NewMockPool(t)
	repo := NewUserRepository(mock)

	mock.ExpectQuery("FROM users WHERE id = \\$1").
		WithArgs(int64(404)).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetByID(context.Background(), 404)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestUserRepository_UpdateLastLogin(t *testing.T) {
	mock := database.NewMockPool(t)
	repo := NewUserRepository(mock)

	mock.ExpectExec("UPDATE users SET last_login_at").
		WithArgs(testNow, int64(7)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE users SET last_login_at").
		WithArgs(testNow, int64(8)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, repo.UpdateLastLogin(context.Background(), 7, testNow))
	assert.ErrorIs(t, repo.UpdateLastLogin(context.Background(), 8, testNow), apperrors.ErrNotFound)
}

// ---------------------------------------------------------------------------
// RBAC
// ---------------------------------------------------------------------------

func TestRBACRepository_GetUserScopes(t *testing.T) {
	mock := database.NewMockPool(t)
	repo := NewRBACRepository(mock)

	mock.ExpectQuery("FROM users u\\s+LEFT JOIN user_roles").
		WithArgs(int64(1)).
		WillReturnRows(pgxmock.NewRows([]string{"role", "permission"}).
			AddRow(strPtr("TEACHER"), strPtr("LESSON_CREATE")).
			AddRow(strPtr("TEACHER"), strPtr("LESSON_UPDATE")).
			AddRow(strPtr("REVIEWER"), (*string)(nil)))

	scopes, err := repo.GetUserScopes(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, domain.Scopes{
		"TEACHER":  {"LESSON_CREATE", "LESSON_UPDATE"},
		"REVIEWER": {},
	}, scopes)
}

func TestRBACRepository_GetUserScopes_NoRoles(t *testing.T) {
	mock := database.NewMockPool(t)
	repo := NewRBACRepository(mock)

	mock.ExpectQuery("FROM users u").
		WithArgs(int64(2)).
		WillReturnRows(pgxmock.NewRows([]string{"role", "permission"}).
			AddRow((*string)(nil), (*string)(nil)))

	scopes, err := repo.GetUserScopes(context.Background(), 2)
	require.NoError(t, err)
	assert.NotNil(t, scopes)
	assert.Empty(t, scopes)
}

func TestRBACRepository_GetUserScopes_UnknownUser(t *testing.T) {
	mock := database.NewMockPool(t)
	repo := NewRBACRepository(mock)

	mock.ExpectQuery("FROM users u").
		WithArgs(int64(3)).
		WillReturnRows(pgxmock.NewRows([]string{"role", "permission"}))

	_, err := repo.GetUserScopes(context.Background(), 3)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestRBACRepository_UserHasPermission(t *testing.T) {
	tests := []struct {
		name       string
		userExists bool
		has        bool
		want       bool
		wantErr    error
	}{
		{"granted", true, true, true, nil},
		{"not granted", true, false, false, nil},
		{"unknown user", false, false, false, apperrors.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := database.NewMockPool(t)
			repo := NewRBACRepository(mock)

			mock.ExpectQuery("JOIN permissions p ON p.id = rp.permission_id").
				WithArgs(int64(5), "LESSON_CREATE").
				WillReturnRows(pgxmock.NewRows([]string{"user_exists", "has"}).AddRow(tt.userExists, tt.has))

			got, err := repo.UserHasPermission(context.Background(), 5, "LESSON_CREATE")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRBACRepository_UserHasRole(t *testing.T) {
	mock := database.NewMockPool(t)
	repo := NewRBACRepository(mock)

	mock.ExpectQuery("JOIN roles r ON r.id = ur.role_id").
		WithArgs(int64(5), "ADMIN").
		WillReturnRows(pgxmock.NewRows([]string{"user_exists", "has"}).AddRow(true, false))

	got, err := repo.UserHasRole(context.Background(), 5, "ADMIN")
	require.NoError(t, err)
	assert.False(t, got)
}

func TestRBACRepository_ListRoles_GroupsPermissions(t *testing.T) {
	mock := database.NewMockPool(t)
	repo := NewRBACRepository(mock)

	mock.ExpectQuery("FROM roles r").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "description", "permission"}).
			AddRow(int64(1), "ADMIN", "all", strPtr("ADMIN_ALL")).
			AddRow(int64(1), "ADMIN", "all", strPtr("USER_READ")).
			AddRow(int64(4), "EMPTY", "", (*string)(nil)).
			AddRow(int64(2), "STUDENT", "learner", strPtr("LESSON_READ")))

	roles, err := repo.ListRoles(context.Background())
	require.NoError(t, err)
	require.Len(t, roles, 3)
	assert.Equal(t, []string{"ADMIN_ALL", "USER_READ"}, roles[0].Permissions)
	assert.Equal(t, "EMPTY", roles[1].Name)
	assert.Empty(t, roles[1].Permissions)
	assert.Equal(t, []string{"LESSON_READ"}, roles[2].Permissions)
}

func TestRBACRepository_ListPermissions(t *testing.T) {
	mock := database.NewMockPool(t)
	repo := NewRBACRepository(mock)

	mock.ExpectQuery("FROM permissions ORDER BY name").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "resource_type", "action", "description"}).
			AddRow(int64(1), "LESSON_READ", "LESSON", "READ", "View lessons"))

	perms, err := repo.ListPermissions(context.Background())
	require.NoError(t, err)
	require.Len(t, perms, 1)
	assert.Equal(t, "LESSON", perms[0].ResourceType)
}

func TestRBACRepository_AssignRole(t *testing.T) {
	t.Run("granted", func(t *testing.T) {
		mock := database.NewMockPool(t)
		repo := NewRBACRepository(mock)

		mock.ExpectExec("INSERT INTO user_roles").
			WithArgs(int64(5), "TEACHER").
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, repo.AssignRole(context.Background(), 5, "TEACHER"))
	})

	t.Run("already held", func(t *testing.T) {
		mock := database.NewMockPool(t)
		repo := NewRBACRepository(mock)

		mock.ExpectExec("INSERT INTO user_roles").
			WithArgs(int64(5), "TEACHER").
			WillReturnResult(pgxmock.NewResult("INSERT", 0))
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs(int64(5), "TEACHER").
			WillReturnRows(pgxmock.NewRows([]string{"u", "r"}).AddRow(true, true))

		require.NoError(t, repo.AssignRole(context.Background(), 5, "TEACHER"))
	})

	t.Run("unknown role", func(t *testing.T) {
		mock := database.NewMockPool(t)
		repo := NewRBACRepository(mock)

		mock.ExpectExec("INSERT INTO user_roles").
			WithArgs(int64(5), "NOPE").
			WillReturnResult(pgxmock.NewResult("INSERT", 0))
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs(int64(5), "NOPE").
			WillReturnRows(pgxmock.NewRows([]string{"u", "r"}).AddRow(true, false))

		err := repo.AssignRole(context.Background(), 5, "NOPE")
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})
}

func TestRBACRepository_RemoveRole_UnknownUser(t *testing.T) {
	mock := database.NewMockPool(t)
	repo := NewRBACRepository(mock)

	mock.ExpectExec("DELETE FROM user_roles").
		WithArgs(int64(9), "TEACHER").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(int64(9), "TEACHER").
		WillReturnRows(pgxmock.NewRows([]string{"u", "r"}).AddRow(false, true))

	err := repo.RemoveRole(context.Background(), 9, "TEACHER")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

// ---------------------------------------------------------------------------
// Refresh tokens
// ---------------------------------------------------------------------------

func refreshTokenRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "user_id", "token_hash", "access_token_jti", "expires_at", "revoked", "revoked_at",
		"device_info", "ip_address", "user_agent", "created_at", "last_used_at", "replaced_by", "version",
	})
}

func addTokenRow(rows *pgxmock.Rows, tok *domain.RefreshToken) *pgxmock.Rows {
	return rows.AddRow(
		tok.ID, tok.UserID, tok.TokenHash, tok.AccessTokenJTI, tok.ExpiresAt, tok.Revoked, tok.RevokedAt,
		tok.DeviceInfo, tok.IPAddress, tok.UserAgent, tok.CreatedAt, tok.LastUsedAt, tok.ReplacedBy, tok.Version,
	)
}

func sampleToken() *domain.RefreshToken {
	return &domain.RefreshToken{
		ID:             10,
		UserID:         1,
		TokenHash:      "hash-10",
		AccessTokenJTI: "jti-10",
		ExpiresAt:      testNow.Add(24 * time.Hour),
		RevokedAt:      (*time.Time)(nil),
		DeviceInfo:     "Desktop",
		IPAddress:      "203.0.113.1",
		UserAgent:      "test-agent",
		CreatedAt:      testNow.Add(-time.Hour),
		LastUsedAt:     (*time.Time)(nil),
		ReplacedBy:     (*int64)(nil),
		Version:        1,
	}
}

func expectInsert(mock pgxmock.PgxPoolIface, tok *domain.RefreshToken, id int64) {
	mock.ExpectQuery("INSERT INTO refresh_tokens").
		WithArgs(tok.UserID, tok.TokenHash, tok.AccessTokenJTI, tok.ExpiresAt,
			tok.DeviceInfo, tok.IPAddress, tok.UserAgent, tok.CreatedAt).
		WillReturnRows(pgxmock.NewRows([]string{"id", "version"}).AddRow(id, int64(1)))
}

func expectUserLock(mock pgxmock.PgxPoolIface, userID int64) {
	mock.ExpectExec("SELECT id FROM users WHERE id = \\$1 FOR UPDATE").
		WithArgs(userID).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
}

func revokedRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{"id", "access_token_jti", "created_at"})
}

func TestRefreshTokenRepository_Create(t *testing.T) {
	mock := database.NewMockPool(t)
	repo := NewRefreshTokenRepository(mock)

	tok := sampleToken()
	tok.ID, tok.Version = 0, 0
	expectInsert(mock, tok, 55)

	require.NoError(t, repo.Create(context.Background(), tok))
	assert.Equal(t, int64(55), tok.ID)
	assert.Equal(t, int64(1), tok.Version)
}

func TestRefreshTokenRepository_Create_HashCollision(t *testing.T) {
	mock := database.NewMockPool(t)
	repo := NewRefreshTokenRepository(mock)

	tok := sampleToken()
	mock.ExpectQuery("INSERT INTO refresh_tokens").
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := repo.Create(context.Background(), tok)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestRefreshTokenRepository_CreateWithCap_RevokesOldestUnderLock(t *testing.T) {
	mock := database.NewMockPool(t)
	repo := NewRefreshTokenRepository(mock)

	tok := sampleToken()
	tok.ID, tok.Version = 0, 0

	mock.ExpectBegin()
	expectUserLock(mock, tok.UserID)
	mock.ExpectQuery("WITH active AS").
		WithArgs(testNow, int64(1), 3).
		WillReturnRows(revokedRows().AddRow(int64(4), "jti-4", testNow.Add(-time.Hour)))
	expectInsert(mock, tok, 20)
	mock.ExpectCommit()

	revoked, err := repo.CreateWithCap(context.Background(), tok, 3, testNow)
	require.NoError(t, err)
	require.Len(t, revoked, 1)
	assert.Equal(t, int64(4), revoked[0].ID)
	assert.Equal(t, "jti-4", revoked[0].AccessTokenJTI)
	assert.Equal(t, int64(20), tok.ID)
}

func TestRefreshTokenRepository_CreateWithCap_NoCapSkipsRevocation(t *testing.T) {
	mock := database.NewMockPool(t)
	repo := NewRefreshTokenRepository(mock)

	tok := sampleToken()
	mock.ExpectBegin()
	expectUserLock(mock, tok.UserID)
	expectInsert(mock, tok, 21)
	mock.ExpectCommit()

	revoked, err := repo.CreateWithCap(context.Background(), tok, 0, testNow)
	require.NoError(t, err)
	assert.Empty(t, revoked)
}

func TestRefreshTokenRepository_CreateWithCap_InsertFailureRollsBackRevocations(t *testing.T) {
	mock := database.NewMockPool(t)
	repo := NewRefreshTokenRepository(mock)

	tok := sampleToken()
	mock.ExpectBegin()
	expectUserLock(mock, tok.UserID)
	mock.ExpectQuery("WITH active AS").
		WithArgs(testNow, int64(1), 2).
		WillReturnRows(revokedRows().AddRow(int64(4), "jti-4", testNow))
	mock.ExpectQuery("INSERT INTO refresh_tokens").
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	revoked, err := repo.CreateWithCap(context.Background(), tok, 2, testNow)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.Nil(t, revoked)
}

func TestRefreshTokenRepository_GetByHash(t *testing.T) {
	mock := database.NewMockPool(t)
	repo := NewRefreshTokenRepository(mock)

	want := sampleToken()
	mock.ExpectQuery("FROM refresh_tokens WHERE token_hash = \\$1").
		WithArgs("hash-10").
		WillReturnRows(addTokenRow(refreshTokenRows(), want))

	got, err := repo.GetByHash(context.Background(), "hash-10")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRefreshTokenRepository_GetByHash_NotFound(t *testing.T) {
	mock := database.NewMockPool(t)
	repo := NewRefreshTokenRepository(mock)

	mock.ExpectQuery("FROM refresh_tokens WHERE token_hash").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetByHash(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestRefreshTokenRepository_ListActiveByUserID(t *testing.T) {
	mock := database.NewMockPool(t)
	repo := NewRefreshTokenRepository(mock)

	a, b := sampleToken(), sampleToken()
	b.ID, b.TokenHash = 11, "hash-11"
	mock.ExpectQuery("WHERE user_id = \\$1 AND NOT revoked AND expires_at > \\$2").
		WithArgs(int64(1), testNow).
		WillReturnRows(addTokenRow(addTokenRow(refreshTokenRows(), a), b))

	tokens, err := repo.ListActiveByUserID(context.Background(), 1, testNow)
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	assert.Equal(t, int64(10), tokens[0].ID)
	assert.Equal(t, int64(11), tokens[1].ID)
}

func TestRefreshTokenRepository_Rotate_Success(t *testing.T) {
	mock := database.NewMockPool(t)
	repo := NewRefreshTokenRepository(mock)

	current := sampleToken()
	successor := sampleToken()
	successor.ID, successor.Version, successor.TokenHash, successor.AccessTokenJTI = 0, 0, "hash-new", "jti-new"

	mock.ExpectBegin()
	expectUserLock(mock, current.UserID)
	expectInsert(mock, successor, 11)
	mock.ExpectExec("UPDATE refresh_tokens").
		WithArgs(testNow, int64(11), int64(10), int64(1)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Rotate(context.Background(), current, successor, testNow))
	assert.Equal(t, int64(11), successor.ID)
	assert.True(t, current.Revoked)
	require.NotNil(t, current.ReplacedBy)
	assert.Equal(t, int64(11), *current.ReplacedBy)
	assert.Equal(t, int64(2), current.Version)
	assert.Equal(t, testNow, *current.LastUsedAt)
}

func TestRefreshTokenRepository_Rotate_LostRaceRollsBack(t *testing.T) {
	mock := database.NewMockPool(t)
	repo := NewRefreshTokenRepository(mock)

	current := sampleToken()
	successor := sampleToken()
	successor.TokenHash = "hash-new"

	mock.ExpectBegin()
	expectUserLock(mock, current.UserID)
	expectInsert(mock, successor, 12)
	mock.ExpectExec("UPDATE refresh_tokens").
		WithArgs(testNow, int64(12), int64(10), int64(1)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err := repo.Rotate(context.Background(), current, successor, testNow)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.True(t, apperrors.IsRetryable(err))
	assert.False(t, current.Revoked)
	assert.Nil(t, current.ReplacedBy)
}

func TestRefreshTokenRepository_Rotate_InsertFailureRollsBack(t *testing.T) {
	mock := database.NewMockPool(t)
	repo := NewRefreshTokenRepository(mock)

	mock.ExpectBegin()
	expectUserLock(mock, 1)
	mock.ExpectQuery("INSERT INTO refresh_tokens").WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := repo.Rotate(context.Background(), sampleToken(), sampleToken(), testNow)
	require.Error(t, err)
	assert.False(t, apperrors.IsRetryable(err))
}

func TestRefreshTokenRepository_Rotate_LockFailureWritesNothing(t *testing.T) {
	mock := database.NewMockPool(t)
	repo := NewRefreshTokenRepository(mock)

	current := sampleToken()
	mock.ExpectBegin()
	mock.ExpectExec("FROM users WHERE id = \\$1 FOR UPDATE").
		WithArgs(int64(1)).
		WillReturnError(&pgconn.PgError{Code: "55P03"})
	mock.ExpectRollback()

	err := repo.Rotate(context.Background(), current, sampleToken(), testNow)
	require.Error(t, err)
	assert.False(t, current.Revoked)
}

func TestRefreshTokenRepository_Revoke(t *testing.T) {
	mock := database.NewMockPool(t)
	repo := NewRefreshTokenRepository(mock)

	created := testNow.Add(-time.Minute)
	mock.ExpectQuery("WHERE id = \\$2 AND NOT revoked").
		WithArgs(testNow, int64(10)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "access_token_jti", "created_at"}).AddRow(int64(10), "jti-10", created))
	mock.ExpectQuery("WHERE id = \\$2 AND NOT revoked").
		WithArgs(testNow, int64(10)).
		WillReturnError(pgx.ErrNoRows)

	rt, changed, err := repo.Revoke(context.Background(), 10, testNow)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "jti-10", rt.AccessTokenJTI)
	assert.Equal(t, created, rt.CreatedAt)

	_, changed, err = repo.Revoke(context.Background(), 10, testNow)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestRefreshTokenRepository_RevokeAllByUserID(t *testing.T) {
	mock := database.NewMockPool(t)
	repo := NewRefreshTokenRepository(mock)

	mock.ExpectBegin()
	expectUserLock(mock, 1)
	mock.ExpectQuery("WHERE user_id = \\$2 AND NOT revoked").
		WithArgs(testNow, int64(1)).
		WillReturnRows(revokedRows().
			AddRow(int64(10), "jti-10", testNow).
			AddRow(int64(11), "jti-11", testNow))
	mock.ExpectCommit()

	revoked, err := repo.RevokeAllByUserID(context.Background(), 1, testNow)
	require.NoError(t, err)
	require.Len(t, revoked, 2)
	assert.Equal(t, "jti-11", revoked[1].AccessTokenJTI)
}

func TestRefreshTokenRepository_RevokeFamily(t *testing.T) {
	mock := database.NewMockPool(t)
	repo := NewRefreshTokenRepository(mock)

	mock.ExpectBegin()
	mock.ExpectExec("JOIN refresh_tokens t ON t.user_id = u.id\\s+WHERE t.id = \\$1\\s+FOR UPDATE OF u").
		WithArgs(int64(10)).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery("WITH RECURSIVE chain").
		WithArgs(testNow, int64(10)).
		WillReturnRows(revokedRows().AddRow(int64(12), "jti-12", testNow))
	mock.ExpectCommit()

	revoked, err := repo.RevokeFamily(context.Background(), 10, testNow)
	require.NoError(t, err)
	require.Len(t, revoked, 1)
	assert.Equal(t, int64(12), revoked[0].ID)
}

func TestRefreshTokenRepository_RevokeAllByUserID_QueryFailureRollsBack(t *testing.T) {
	mock := database.NewMockPool(t)
	repo := NewRefreshTokenRepository(mock)

	mock.ExpectBegin()
	expectUserLock(mock, 1)
	mock.ExpectQuery("WHERE user_id = \\$2 AND NOT revoked").
		WithArgs(testNow, int64(1)).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := repo.RevokeAllByUserID(context.Background(), 1, testNow)
	require.Error(t, err)
}

func TestRefreshTokenRepository_DeleteExpiredBefore(t *testing.T) {
	mock := database.NewMockPool(t)
	repo := NewRefreshTokenRepository(mock)

	mock.ExpectExec("DELETE FROM refresh_tokens t\\s+WHERE t.expires_at < \\$1\\s+AND NOT EXISTS \\(\\s+SELECT 1 FROM refresh_tokens p\\s+WHERE p.replaced_by = t.id AND p.expires_at >= \\$1").
		WithArgs(testNow).
		WillReturnResult(pgxmock.NewResult("DELETE", 4))

	n, err := repo.DeleteExpiredBefore(context.Background(), testNow)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}
