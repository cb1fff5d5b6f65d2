package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/nemisolv/englearn-auth/internal/domain"
	"github.com/nemisolv/englearn-auth/internal/event"
	apperrors "github.com/nemisolv/englearn-auth/pkg/errors"
)

func loginInput(email, password string) LoginInput {
	return LoginInput{
		Email:      email,
		Password:   password,
		DeviceInfo: "Mobile",
		IPAddress:  "198.51.100.7",
		UserAgent:  "Mozilla/5.0 (iPhone)",
	}
}

// --- Login Tests ---

func TestLogin_Success(t *testing.T) {
	env := newTestEnv(t, SessionConfig{})
	ctx := context.Background()
	user := env.addStudent("student@example.com")

	pair, err := env.auth.Login(ctx, loginInput("Student@Example.com", "SecurePass123"))

	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.True(t, pair.Scopes.HasRole(domain.RoleStudent))

	stored, err := env.store.Users().GetByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastLoginAt)
	assert.Equal(t, env.clock.Now(), *stored.LastLoginAt)

	row := env.row(t, pair.SessionID)
	assert.Equal(t, "Mobile", row.DeviceInfo)
	assert.Equal(t, "198.51.100.7", row.IPAddress)

	env.events.AssertCalled(t, "PublishUserLoggedIn", mock.Anything, mock.MatchedBy(func(d event.UserLoggedInData) bool {
		return d.UserID == user.ID && d.SessionID == pair.SessionID && d.DeviceInfo == "Mobile"
	}))
}

func TestLogin_PublishFailureDoesNotFailLogin(t *testing.T) {
	env := newTestEnv(t, SessionConfig{})
	env.addStudent("student@example.com")
	env.events.ExpectedCalls = nil
	env.events.On("PublishUserLoggedIn", mock.Anything, mock.Anything).Return(errors.New("broker down"))

	pair, err := env.auth.Login(context.Background(), loginInput("student@example.com", "SecurePass123"))

	require.NoError(t, err)
	assert.NotNil(t, pair)
	env.events.AssertExpectations(t)
}

func TestLogin_WrongPassword(t *testing.T) {
	env := newTestEnv(t, SessionConfig{})
	env.addStudent("student@example.com")

	pair, err := env.auth.Login(context.Background(), loginInput("student@example.com", "WrongPass"))

	assert.Nil(t, pair)
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
}

func TestLogin_UnknownEmail(t *testing.T) {
	env := newTestEnv(t, SessionConfig{})

	pair, err := env.auth.Login(context.Background(), loginInput("nobody@example.com", "SecurePass123"))

	assert.Nil(t, pair)
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
}

func TestLogin_NoLocalPassword(t *testing.T) {
	env := newTestEnv(t, SessionConfig{})
	env.store.AddUser(domain.User{
		Email:         "oauth@example.com",
		Status:        domain.UserStatusActive,
		AuthProvider:  domain.AuthProviderGoogle,
		EmailVerified: true,
	}, domain.RoleStudent)

	_, err := env.auth.Login(context.Background(), loginInput("oauth@example.com", ""))

	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
}

func TestLogin_InactiveAccount(t *testing.T) {
	env := newTestEnv(t, SessionConfig{})
	user := env.addStudent("student@example.com")
	env.store.SetUserStatus(user.ID, domain.UserStatusInactive)

	_, err := env.auth.Login(context.Background(), loginInput("student@example.com", "SecurePass123"))

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "ACCOUNT_INACTIVE", appErr.Code)
	assert.Equal(t, 403, appErr.Status)
}

func TestLogin_EmailNotVerified(t *testing.T) {
	env := newTestEnv(t, SessionConfig{})
	env.store.AddUser(domain.User{
		Email:        "fresh@example.com",
		PasswordHash: hashForTest("SecurePass123"),
		Status:       domain.UserStatusActive,
	}, domain.RoleStudent)

	_, err := env.auth.Login(context.Background(), loginInput("fresh@example.com", "SecurePass123"))

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "EMAIL_NOT_VERIFIED", appErr.Code)
}

// --- Refresh Tests ---

func TestRefresh_DelegatesToRotate(t *testing.T) {
	env := newTestEnv(t, SessionConfig{})
	ctx := context.Background()
	env.addStudent("student@example.com")
	pair, err := env.auth.Login(ctx, loginInput("student@example.com", "SecurePass123"))
	require.NoError(t, err)

	next, err := env.auth.Refresh(ctx, RotateInput{Token: pair.RefreshToken})

	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, next.RefreshToken)
}

// --- Logout Tests ---

func TestLogout_RevokesSession(t *testing.T) {
	env := newTestEnv(t, SessionConfig{})
	ctx := context.Background()
	env.addStudent("student@example.com")
	pair, err := env.auth.Login(ctx, loginInput("student@example.com", "SecurePass123"))
	require.NoError(t, err)

	require.NoError(t, env.auth.Logout(ctx, pair.RefreshToken))

	row := env.row(t, pair.SessionID)
	assert.True(t, row.Revoked)
	assert.Nil(t, row.ReplacedBy)

	_, err = env.auth.Refresh(ctx, RotateInput{Token: pair.RefreshToken})
	assert.ErrorIs(t, err, apperrors.ErrTokenRevoked)

	_, err = env.sessions.Authenticate(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, apperrors.ErrUnauthenticated)
}

func TestLogout_Idempotent(t *testing.T) {
	env := newTestEnv(t, SessionConfig{})
	ctx := context.Background()
	env.addStudent("student@example.com")
	pair, err := env.auth.Login(ctx, loginInput("student@example.com", "SecurePass123"))
	require.NoError(t, err)

	require.NoError(t, env.auth.Logout(ctx, pair.RefreshToken))
	assert.NoError(t, env.auth.Logout(ctx, pair.RefreshToken))
	assert.NoError(t, env.auth.Logout(ctx, "never-issued"))
	assert.NoError(t, env.auth.Logout(ctx, ""))
}

func TestLogoutAll(t *testing.T) {
	env := newTestEnv(t, SessionConfig{})
	ctx := context.Background()
	user := env.addStudent("student@example.com")
	for i := 0; i < 3; i++ {
		_, err := env.auth.Login(ctx, loginInput("student@example.com", "SecurePass123"))
		require.NoError(t, err)
	}

	n, err := env.auth.LogoutAll(ctx, user.ID)

	require.NoError(t, err)
	assert.Equal(t, 3, n)
	env.events.AssertCalled(t, "PublishSessionsRevoked", mock.Anything, mock.MatchedBy(func(d event.SessionsRevokedData) bool {
		return d.Reason == event.RevokeReasonLogoutAll && len(d.SessionIDs) == 3
	}))
}
