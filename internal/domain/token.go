package domain

import "time"

// TokenState is the derived lifecycle state of a refresh token.
type TokenState string

const (
	TokenStateActive  TokenState = "ACTIVE"
	TokenStateRotated TokenState = "ROTATED"
	TokenStateRevoked TokenState = "REVOKED"
	TokenStateExpired TokenState = "EXPIRED"
)

// RefreshToken is a persisted refresh-token record. Only the hash of the
// secret is stored. ReplacedBy is set exactly when the token was rotated,
// and a rotated token is always revoked.
type RefreshToken struct {
	ID             int64
	UserID         int64
	TokenHash      string
	AccessTokenJTI string
	ExpiresAt      time.Time
	Revoked        bool
	RevokedAt      *time.Time
	DeviceInfo     string
	IPAddress      string
	UserAgent      string
	CreatedAt      time.Time
	LastUsedAt     *time.Time
	ReplacedBy     *int64
	Version        int64
}

// IsValid reports whether the token can still be exchanged at now.
func (t *RefreshToken) IsValid(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}

// IsRotated reports whether the token was already exchanged for a successor.
func (t *RefreshToken) IsRotated() bool {
	return t.ReplacedBy != nil
}

// State derives the lifecycle state at now. Rotation and revocation take
// precedence over expiry.
func (t *RefreshToken) State(now time.Time) TokenState {
	switch {
	case t.ReplacedBy != nil:
		return TokenStateRotated
	case t.Revoked:
		return TokenStateRevoked
	case !now.Before(t.ExpiresAt):
		return TokenStateExpired
	default:
		return TokenStateActive
	}
}

// TokenPair is returned by login and refresh. RefreshToken is the clear
// secret and is only ever shown to the client here.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	ExpiresIn        int64     `json:"expires_in"`
	SessionID        int64     `json:"session_id"`
	AccessExpiresAt  time.Time `json:"-"`
	RefreshExpiresAt time.Time `json:"-"`
	Scopes           Scopes    `json:"scopes"`
}

// Session is the client-facing view of an active refresh token.
type Session struct {
	ID         int64      `json:"id"`
	DeviceInfo string     `json:"device_info,omitempty"`
	IPAddress  string     `json:"ip_address,omitempty"`
	UserAgent  string     `json:"user_agent,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	ExpiresAt  time.Time  `json:"expires_at"`
}

// SessionFromToken builds the session view of t.
func SessionFromToken(t *RefreshToken) Session {
	return Session{
		ID:         t.ID,
		DeviceInfo: t.DeviceInfo,
		IPAddress:  t.IPAddress,
		UserAgent:  t.UserAgent,
		CreatedAt:  t.CreatedAt,
		LastUsedAt: t.LastUsedAt,
		ExpiresAt:  t.ExpiresAt,
	}
}
