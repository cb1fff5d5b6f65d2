package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/nemisolv/englearn-auth/internal/domain"
	"github.com/nemisolv/englearn-auth/internal/event"
	"github.com/nemisolv/englearn-auth/internal/repository"
	apperrors "github.com/nemisolv/englearn-auth/pkg/errors"
)

// Login results recorded by auth_logins_total.
const (
	loginSuccess  = "success"
	loginInvalid  = "invalid_credentials"
	loginInactive = "inactive"
	loginError    = "error"
)

var (
	dummyHashOnce sync.Once
	dummyHash     []byte
)

// compareDummy runs a bcrypt comparison against a fixed hash, matching the
// latency of a real password check.
func compareDummy(password string) {
	dummyHashOnce.Do(func() {
		dummyHash, _ = bcrypt.GenerateFromPassword([]byte("englearn-dummy-password"), bcrypt.DefaultCost)
	})
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
}

// LoginInput carries credentials and client metadata.
type LoginInput struct {
	Email      string
	Password   string
	DeviceInfo string
	IPAddress  string
	UserAgent  string
}

// AuthService implements login, refresh and logout on top of SessionService.
type AuthService struct {
	users    repository.UserRepository
	sessions *SessionService
	events   EventPublisher
	logger   *slog.Logger
	now      func() time.Time
}

// NewAuthService creates a new auth service.
func NewAuthService(users repository.UserRepository, sessions *SessionService, events EventPublisher, logger *slog.Logger) *AuthService {
	return &AuthService{
		users:    users,
		sessions: sessions,
		events:   events,
		logger:   logger,
		now:      sessions.now,
	}
}

// Login verifies credentials and opens a new session.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*domain.TokenPair, error) {
	user, err := s.users.GetByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			compareDummy(in.Password)
			loginsTotal.WithLabelValues(loginInvalid).Inc()
			return nil, apperrors.InvalidCredentials()
		}
		loginsTotal.WithLabelValues(loginError).Inc()
		return nil, fmt.Errorf("get user by email: %w", err)
	}

	if user.PasswordHash == "" {
		compareDummy(in.Password)
		loginsTotal.WithLabelValues(loginInvalid).Inc()
		return nil, apperrors.InvalidCredentials()
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)); err != nil {
		loginsTotal.WithLabelValues(loginInvalid).Inc()
		s.logger.InfoContext(ctx, "login rejected",
			slog.Int64("user_id", user.ID),
			slog.String("reason", "password mismatch"),
		)
		return nil, apperrors.InvalidCredentials()
	}

	if !user.IsActive() {
		loginsTotal.WithLabelValues(loginInactive).Inc()
		return nil, apperrors.AccountInactive()
	}
	if !user.EmailVerified {
		loginsTotal.WithLabelValues(loginInactive).Inc()
		return nil, apperrors.EmailNotVerified()
	}

	pair, err := s.sessions.Issue(ctx, IssueInput{
		User:       user,
		DeviceInfo: in.DeviceInfo,
		IPAddress:  in.IPAddress,
		UserAgent:  in.UserAgent,
	})
	if err != nil {
		loginsTotal.WithLabelValues(loginError).Inc()
		return nil, err
	}
	loginsTotal.WithLabelValues(loginSuccess).Inc()

	now := s.now().UTC()
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		s.logger.WarnContext(ctx, "failed to update last login",
			slog.Int64("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	if err := s.events.PublishUserLoggedIn(ctx, event.UserLoggedInData{
		UserID:     user.ID,
		Email:      user.Email,
		SessionID:  pair.SessionID,
		DeviceInfo: in.DeviceInfo,
		IPAddress:  in.IPAddress,
		OccurredAt: now,
	}); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user logged in event",
			slog.Int64("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "user logged in",
		slog.Int64("user_id", user.ID),
		slog.Int64("session_id", pair.SessionID),
	)
	return pair, nil
}

// Refresh rotates a refresh token.
func (s *AuthService) Refresh(ctx context.Context, in RotateInput) (*domain.TokenPair, error) {
	return s.sessions.Rotate(ctx, in)
}

// Logout revokes the session of refreshToken. Unknown and already revoked
// tokens are accepted silently.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	row, err := s.sessions.LookupByToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil
		}
		return err
	}
	return s.sessions.Revoke(ctx, row.ID)
}

// LogoutAll revokes every session of userID.
func (s *AuthService) LogoutAll(ctx context.Context, userID int64) (int, error) {
	return s.sessions.RevokeAllForUser(ctx, userID, event.RevokeReasonLogoutAll)
}
