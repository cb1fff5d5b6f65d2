package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nemisolv/englearn-auth/internal/domain"
)

// Issuer is the iss claim of every access token minted by this service.
const Issuer = "englearn-auth"

// ErrAccessTokenExpired is returned by ValidateAccessToken for a well-formed
// token whose exp has passed.
var ErrAccessTokenExpired = errors.New("access token expired")

// Claims represents the JWT claims for an access token. Scopes are for
// client-side display only; authorization decisions re-resolve them.
type Claims struct {
	Email  string        `json:"email"`
	Scopes domain.Scopes `json:"scopes"`
	jwt.RegisteredClaims
}

// UserID parses the numeric user id carried in sub.
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid subject %q", c.Subject)
	}
	return id, nil
}

// JWTManager handles access token generation and validation.
type JWTManager struct {
	secret       []byte
	accessExpiry time.Duration
	now          func() time.Time
}

// NewJWTManager creates a new JWT manager with the given HMAC secret and
// access token lifetime.
func NewJWTManager(secret string, accessExpiry time.Duration) *JWTManager {
	return &JWTManager{
		secret:       []byte(secret),
		accessExpiry: accessExpiry,
		now:          time.Now,
	}
}

// AccessExpiry returns the configured access token lifetime.
func (m *JWTManager) AccessExpiry() time.Duration {
	return m.accessExpiry
}

// GenerateAccessToken signs an HS256 access token for user with the given
// jti and scopes, issued at now. It returns the token and its expiry.
func (m *JWTManager) GenerateAccessToken(user *domain.User, jti string, scopes domain.Scopes, now time.Time) (string, time.Time, error) {
	now = now.UTC()
	expiresAt := now.Add(m.accessExpiry)
	if scopes == nil {
		scopes = domain.Scopes{}
	}

	claims := &Claims{
		Email:  user.Email,
		Scopes: scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Issuer:    Issuer,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateAccessToken parses and validates an access token, returning the claims.
func (m *JWTManager) ValidateAccessToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrAccessTokenExpired
		}
		return nil, fmt.Errorf("parse access token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid access token claims")
	}
	if claims.ID == "" {
		return nil, fmt.Errorf("access token has no jti")
	}
	if _, err := claims.UserID(); err != nil {
		return nil, err
	}

	return claims, nil
}
