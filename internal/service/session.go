package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nemisolv/englearn-auth/internal/auth"
	"github.com/nemisolv/englearn-auth/internal/domain"
	"github.com/nemisolv/englearn-auth/internal/event"
	"github.com/nemisolv/englearn-auth/internal/repository"
	apperrors "github.com/nemisolv/englearn-auth/pkg/errors"
	"github.com/nemisolv/englearn-auth/pkg/middleware"
)

// ReuseScope selects which tokens are revoked when a rotated refresh token
// is presented again.
type ReuseScope string

const (
	// ReuseScopeUser revokes every active token of the user.
	ReuseScopeUser ReuseScope = "user"
	// ReuseScopeFamily revokes only the rotation chain the replayed token
	// belongs to.
	ReuseScopeFamily ReuseScope = "family"
)

// Defaults applied by NewSessionService for zero config values.
const (
	DefaultRefreshTTL        = 7 * 24 * time.Hour
	DefaultMaxActiveSessions = 5
)

// TokenTypeBearer is the token_type of every issued pair.
const TokenTypeBearer = "Bearer"

// SessionConfig tunes the refresh-token lifecycle.
type SessionConfig struct {
	RefreshTTL        time.Duration
	MaxActiveSessions int
	ReuseRevokeScope  ReuseScope
}

// IssueInput carries the user and client metadata of a new session.
type IssueInput struct {
	User       *domain.User
	DeviceInfo string
	IPAddress  string
	UserAgent  string
}

// RotateInput carries a presented refresh-token secret and the metadata of
// the client presenting it.
type RotateInput struct {
	Token      string
	DeviceInfo string
	IPAddress  string
	UserAgent  string
}

// SessionOption configures a SessionService.
type SessionOption func(*SessionService)

// WithClock overrides the wall clock used for issuance, expiry and revocation.
func WithClock(now func() time.Time) SessionOption {
	return func(s *SessionService) {
		s.now = now
	}
}

// SessionService owns the refresh-token lifecycle: issue, rotate with reuse
// detection, and revoke. It also validates access tokens against the
// denylist of revoked sessions.
type SessionService struct {
	users    repository.UserRepository
	tokens   repository.RefreshTokenRepository
	rbac     *RBACService
	denylist repository.Denylist
	jwt      *auth.JWTManager
	hasher   *auth.TokenHasher
	events   EventPublisher
	cfg      SessionConfig
	logger   *slog.Logger
	now      func() time.Time
}

// NewSessionService creates a new session engine.
func NewSessionService(
	users repository.UserRepository,
	tokens repository.RefreshTokenRepository,
	rbac *RBACService,
	denylist repository.Denylist,
	jwtManager *auth.JWTManager,
	hasher *auth.TokenHasher,
	events EventPublisher,
	cfg SessionConfig,
	logger *slog.Logger,
	opts ...SessionOption,
) *SessionService {
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	if cfg.MaxActiveSessions < 0 {
		cfg.MaxActiveSessions = 0
	}
	if cfg.ReuseRevokeScope == "" {
		cfg.ReuseRevokeScope = ReuseScopeUser
	}

	s := &SessionService{
		users:    users,
		tokens:   tokens,
		rbac:     rbac,
		denylist: denylist,
		jwt:      jwtManager,
		hasher:   hasher,
		events:   events,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue opens a new session for in.User and returns its token pair. When the
// user already holds MaxActiveSessions active sessions the oldest are revoked.
func (s *SessionService) Issue(ctx context.Context, in IssueInput) (*domain.TokenPair, error) {
	if in.User == nil {
		return nil, apperrors.InvalidInput("user is required")
	}
	now := s.now().UTC()

	scopes, err := s.rbac.ResolveUserScopes(ctx, in.User.ID)
	if err != nil {
		return nil, err
	}

	secret, err := auth.NewRefreshSecret()
	if err != nil {
		return nil, err
	}
	jti := uuid.NewString()
	accessToken, accessExp, err := s.jwt.GenerateAccessToken(in.User, jti, scopes, now)
	if err != nil {
		return nil, err
	}

	row := &domain.RefreshToken{
		UserID:         in.User.ID,
		TokenHash:      s.hasher.Hash(secret),
		AccessTokenJTI: jti,
		ExpiresAt:      now.Add(s.cfg.RefreshTTL),
		DeviceInfo:     in.DeviceInfo,
		IPAddress:      in.IPAddress,
		UserAgent:      in.UserAgent,
		CreatedAt:      now,
	}
	capped, err := s.tokens.CreateWithCap(ctx, row, s.cfg.MaxActiveSessions, now)
	if err != nil {
		return nil, fmt.Errorf("create refresh token: %w", err)
	}
	s.afterRevoke(ctx, in.User.ID, event.RevokeReasonSessionCap, capped, now)

	s.logger.InfoContext(ctx, "session issued",
		slog.Int64("user_id", in.User.ID),
		slog.Int64("session_id", row.ID),
		slog.String("device_info", in.DeviceInfo),
	)

	return s.pair(accessToken, accessExp, secret, row, scopes, now), nil
}

// Rotate exchanges a refresh-token secret for a new pair. A secret that was
// already rotated is treated as stolen: the configured set of sessions is
// revoked and TokenReuseDetected is returned.
func (s *SessionService) Rotate(ctx context.Context, in RotateInput) (*domain.TokenPair, error) {
	if in.Token == "" {
		tokenRotationsTotal.WithLabelValues(rotationInvalid).Inc()
		return nil, apperrors.InvalidRefreshToken()
	}
	now := s.now().UTC()

	current, err := s.tokens.GetByHash(ctx, s.hasher.Hash(in.Token))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			tokenRotationsTotal.WithLabelValues(rotationInvalid).Inc()
			return nil, apperrors.InvalidRefreshToken()
		}
		tokenRotationsTotal.WithLabelValues(rotationError).Inc()
		return nil, fmt.Errorf("lookup refresh token: %w", err)
	}

	switch current.State(now) {
	case domain.TokenStateRotated:
		return nil, s.handleReuse(ctx, current, in, now)
	case domain.TokenStateRevoked:
		tokenRotationsTotal.WithLabelValues(rotationRevoked).Inc()
		return nil, apperrors.RefreshTokenRevoked()
	case domain.TokenStateExpired:
		tokenRotationsTotal.WithLabelValues(rotationExpired).Inc()
		return nil, apperrors.RefreshTokenExpired()
	}

	user, err := s.users.GetByID(ctx, current.UserID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			tokenRotationsTotal.WithLabelValues(rotationInvalid).Inc()
			return nil, apperrors.Unauthenticated("user no longer exists")
		}
		tokenRotationsTotal.WithLabelValues(rotationError).Inc()
		return nil, fmt.Errorf("get user: %w", err)
	}
	if !user.IsActive() {
		tokenRotationsTotal.WithLabelValues(rotationInvalid).Inc()
		return nil, apperrors.AccountInactive()
	}

	scopes, err := s.rbac.ResolveUserScopes(ctx, user.ID)
	if err != nil {
		tokenRotationsTotal.WithLabelValues(rotationError).Inc()
		return nil, err
	}

	secret, err := auth.NewRefreshSecret()
	if err != nil {
		tokenRotationsTotal.WithLabelValues(rotationError).Inc()
		return nil, err
	}
	jti := uuid.NewString()
	accessToken, accessExp, err := s.jwt.GenerateAccessToken(user, jti, scopes, now)
	if err != nil {
		tokenRotationsTotal.WithLabelValues(rotationError).Inc()
		return nil, err
	}

	successor := &domain.RefreshToken{
		UserID:         user.ID,
		TokenHash:      s.hasher.Hash(secret),
		AccessTokenJTI: jti,
		ExpiresAt:      now.Add(s.cfg.RefreshTTL),
		DeviceInfo:     orDefault(in.DeviceInfo, current.DeviceInfo),
		IPAddress:      orDefault(in.IPAddress, current.IPAddress),
		UserAgent:      orDefault(in.UserAgent, current.UserAgent),
		CreatedAt:      now,
	}

	if err := s.tokens.Rotate(ctx, current, successor, now); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			tokenRotationsTotal.WithLabelValues(rotationConflict).Inc()
			s.logger.InfoContext(ctx, "refresh token rotation lost race",
				slog.Int64("user_id", user.ID),
				slog.Int64("token_id", current.ID),
			)
			return nil, err
		}
		tokenRotationsTotal.WithLabelValues(rotationError).Inc()
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}

	tokenRotationsTotal.WithLabelValues(rotationSuccess).Inc()
	s.logger.InfoContext(ctx, "refresh token rotated",
		slog.Int64("user_id", user.ID),
		slog.Int64("token_id", current.ID),
		slog.Int64("successor_id", successor.ID),
	)

	return s.pair(accessToken, accessExp, secret, successor, scopes, now), nil
}

func (s *SessionService) handleReuse(ctx context.Context, current *domain.RefreshToken, in RotateInput, now time.Time) error {
	tokenRotationsTotal.WithLabelValues(rotationReuse).Inc()
	tokenReuseDetectedTotal.Inc()

	var (
		revoked []repository.RevokedToken
		err     error
	)
	switch s.cfg.ReuseRevokeScope {
	case ReuseScopeFamily:
		revoked, err = s.tokens.RevokeFamily(ctx, current.ID, now)
	default:
		revoked, err = s.tokens.RevokeAllByUserID(ctx, current.UserID, now)
	}
	if err != nil {
		return fmt.Errorf("revoke sessions after token reuse: %w", err)
	}

	s.logger.WarnContext(ctx, "refresh token reuse detected",
		slog.Int64("user_id", current.UserID),
		slog.Int64("token_id", current.ID),
		slog.String("scope", string(s.cfg.ReuseRevokeScope)),
		slog.Int("revoked_count", len(revoked)),
		slog.String("ip_address", in.IPAddress),
	)

	s.afterRevoke(ctx, current.UserID, event.RevokeReasonTokenReuse, revoked, now)
	s.publish(ctx, "token_reuse_detected", s.events.PublishTokenReuseDetected(ctx, event.TokenReuseDetectedData{
		UserID:       current.UserID,
		TokenID:      current.ID,
		Scope:        string(s.cfg.ReuseRevokeScope),
		RevokedCount: len(revoked),
		IPAddress:    in.IPAddress,
		UserAgent:    in.UserAgent,
		OccurredAt:   now,
	}))

	return apperrors.TokenReuseDetected()
}

// Revoke revokes one session. Revoking an unknown or already revoked
// session succeeds without effect.
func (s *SessionService) Revoke(ctx context.Context, tokenID int64) error {
	row, err := s.tokens.GetByID(ctx, tokenID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("get refresh token: %w", err)
	}
	if row.Revoked {
		return nil
	}

	now := s.now().UTC()
	revoked, changed, err := s.tokens.Revoke(ctx, tokenID, now)
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	if !changed {
		return nil
	}

	s.afterRevoke(ctx, row.UserID, event.RevokeReasonLogout, []repository.RevokedToken{revoked}, now)
	return nil
}

// RevokeAllForUser revokes every active session of userID and returns how
// many were revoked.
func (s *SessionService) RevokeAllForUser(ctx context.Context, userID int64, reason string) (int, error) {
	now := s.now().UTC()
	revoked, err := s.tokens.RevokeAllByUserID(ctx, userID, now)
	if err != nil {
		return 0, fmt.Errorf("revoke user sessions: %w", err)
	}
	s.afterRevoke(ctx, userID, reason, revoked, now)
	return len(revoked), nil
}

// ListSessions returns the active sessions of userID, oldest first.
func (s *SessionService) ListSessions(ctx context.Context, userID int64) ([]domain.Session, error) {
	rows, err := s.tokens.ListActiveByUserID(ctx, userID, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	sessions := make([]domain.Session, 0, len(rows))
	for i := range rows {
		sessions = append(sessions, domain.SessionFromToken(&rows[i]))
	}
	return sessions, nil
}

// LookupByToken returns the stored row for a refresh-token secret.
// Returns apperrors.ErrNotFound for an unknown secret.
func (s *SessionService) LookupByToken(ctx context.Context, secret string) (*domain.RefreshToken, error) {
	if secret == "" {
		return nil, apperrors.ErrNotFound
	}
	row, err := s.tokens.GetByHash(ctx, s.hasher.Hash(secret))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("lookup refresh token: %w", err)
	}
	return row, nil
}

// Authenticate validates an access token and rejects tokens whose session
// was revoked. It satisfies middleware.TokenValidator.
func (s *SessionService) Authenticate(ctx context.Context, token string) (*middleware.Principal, error) {
	claims, err := s.jwt.ValidateAccessToken(token)
	if err != nil {
		if errors.Is(err, auth.ErrAccessTokenExpired) {
			return nil, apperrors.Unauthenticated("access token has expired")
		}
		return nil, apperrors.Unauthenticated("invalid access token")
	}

	denied, err := s.denylist.Contains(ctx, claims.ID)
	if err != nil {
		s.logger.ErrorContext(ctx, "denylist lookup failed",
			slog.String("jti", claims.ID),
			slog.String("error", err.Error()),
		)
	} else if denied {
		return nil, apperrors.Unauthenticated("access token has been revoked")
	}

	userID, _ := claims.UserID()
	p := &middleware.Principal{
		UserID: userID,
		Email:  claims.Email,
		JTI:    claims.ID,
	}
	if claims.ExpiresAt != nil {
		p.ExpiresAt = claims.ExpiresAt.Time
	}
	return p, nil
}

// afterRevoke denylists the access tokens of revoked sessions until their
// natural expiry and announces the revocation.
func (s *SessionService) afterRevoke(ctx context.Context, userID int64, reason string, revoked []repository.RevokedToken, now time.Time) {
	if len(revoked) == 0 {
		return
	}
	sessionsRevokedTotal.WithLabelValues(reason).Add(float64(len(revoked)))

	ids := make([]int64, 0, len(revoked))
	for _, r := range revoked {
		ids = append(ids, r.ID)
		if r.AccessTokenJTI == "" {
			continue
		}
		ttl := r.CreatedAt.Add(s.jwt.AccessExpiry()).Sub(now)
		if ttl <= 0 {
			continue
		}
		if err := s.denylist.Add(ctx, r.AccessTokenJTI, ttl); err != nil {
			s.logger.ErrorContext(ctx, "failed to denylist access token",
				slog.Int64("user_id", userID),
				slog.Int64("session_id", r.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "sessions revoked",
		slog.Int64("user_id", userID),
		slog.String("reason", reason),
		slog.Int("count", len(revoked)),
	)
	s.publish(ctx, "sessions_revoked", s.events.PublishSessionsRevoked(ctx, event.SessionsRevokedData{
		UserID:     userID,
		Reason:     reason,
		SessionIDs: ids,
		OccurredAt: now,
	}))
}

func (s *SessionService) publish(ctx context.Context, name string, err error) {
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to publish event",
			slog.String("event", name),
			slog.String("error", err.Error()),
		)
	}
}

func (s *SessionService) pair(accessToken string, accessExp time.Time, secret string, row *domain.RefreshToken, scopes domain.Scopes, now time.Time) *domain.TokenPair {
	return &domain.TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     secret,
		TokenType:        TokenTypeBearer,
		ExpiresIn:        int64(accessExp.Sub(now).Seconds()),
		SessionID:        row.ID,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: row.ExpiresAt,
		Scopes:           scopes,
	}
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
