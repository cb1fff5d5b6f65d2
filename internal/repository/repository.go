package repository

import (
	"context"
	"time"

	"github.com/nemisolv/englearn-auth/internal/domain"
)

// UserRepository defines the user lookups the session engine needs.
type UserRepository interface {
	// GetByID retrieves a user by id. Returns apperrors.ErrNotFound if absent.
	GetByID(ctx context.Context, id int64) (*domain.User, error)

	// GetByEmail retrieves a user by email address (case-insensitive).
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// UpdateLastLogin records a successful login.
	UpdateLastLogin(ctx context.Context, id int64, at time.Time) error
}

// RoleWithPermissions is a catalogue entry returned by ListRoles.
type RoleWithPermissions struct {
	domain.Role
	Permissions []string `json:"permissions"`
}

// RBACRepository defines the role and permission queries. Every call reads
// the store; implementations must not cache.
type RBACRepository interface {
	// GetUserScopes returns role -> permission names for the user. A user
	// without roles yields an empty map. Returns apperrors.ErrNotFound if the
	// user does not exist.
	GetUserScopes(ctx context.Context, userID int64) (domain.Scopes, error)

	// UserHasPermission reports whether any role of the user carries the
	// named permission. Returns apperrors.ErrNotFound if the user does not exist.
	UserHasPermission(ctx context.Context, userID int64, permission string) (bool, error)

	// UserHasRole reports whether the user holds the role (exact match).
	// Returns apperrors.ErrNotFound if the user does not exist.
	UserHasRole(ctx context.Context, userID int64, role string) (bool, error)

	// ListRoles returns every role with its permission names, ordered by name.
	ListRoles(ctx context.Context) ([]RoleWithPermissions, error)

	// ListPermissions returns the permission catalogue ordered by name.
	ListPermissions(ctx context.Context) ([]domain.Permission, error)

	// AssignRole grants a role to a user. Granting a held role is a no-op.
	AssignRole(ctx context.Context, userID int64, role string) error

	// RemoveRole withdraws a role from a user. Removing an absent role is a no-op.
	RemoveRole(ctx context.Context, userID int64, role string) error
}

// RevokedToken identifies a refresh token revoked by a bulk operation and
// the access token issued alongside it.
type RevokedToken struct {
	ID             int64
	AccessTokenJTI string
	CreatedAt      time.Time
}

// RefreshTokenRepository defines refresh-token persistence. Rows are never
// deleted except by DeleteExpiredBefore.
type RefreshTokenRepository interface {
	// Create inserts t and sets its ID and Version.
	Create(ctx context.Context, t *domain.RefreshToken) error

	// CreateWithCap inserts t like Create and, when maxActive is positive,
	// revokes the user's oldest live tokens so that at most maxActive remain.
	// Both take effect together or not at all.
	CreateWithCap(ctx context.Context, t *domain.RefreshToken, maxActive int, now time.Time) ([]RevokedToken, error)

	// GetByHash retrieves a token by the hash of its secret.
	GetByHash(ctx context.Context, tokenHash string) (*domain.RefreshToken, error)

	// GetByID retrieves a token by id.
	GetByID(ctx context.Context, id int64) (*domain.RefreshToken, error)

	// ListActiveByUserID returns the user's unrevoked, unexpired tokens,
	// oldest first.
	ListActiveByUserID(ctx context.Context, userID int64, now time.Time) ([]domain.RefreshToken, error)

	// Rotate atomically inserts successor and marks current as revoked and
	// replaced by it, provided current is still at current.Version and
	// neither revoked nor replaced. On a lost race nothing is written and
	// apperrors.ErrConflict is returned. On success current is updated in place.
	Rotate(ctx context.Context, current, successor *domain.RefreshToken, now time.Time) error

	// Revoke marks one token revoked without touching replaced_by. changed
	// is false when the token was already revoked or does not exist.
	Revoke(ctx context.Context, id int64, now time.Time) (revoked RevokedToken, changed bool, err error)

	// RevokeAllByUserID revokes every active token of the user.
	RevokeAllByUserID(ctx context.Context, userID int64, now time.Time) ([]RevokedToken, error)

	// RevokeFamily revokes the unrevoked tokens reachable from id by
	// following replaced_by forward.
	RevokeFamily(ctx context.Context, id int64, now time.Time) ([]RevokedToken, error)

	// DeleteExpiredBefore physically removes tokens that expired before cutoff,
	// keeping any whose predecessor has not.
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Denylist records access-token jtis that must be rejected before their
// natural expiry.
type Denylist interface {
	// Add denylists jti for ttl. A non-positive ttl is a no-op.
	Add(ctx context.Context, jti string, ttl time.Duration) error

	// Contains reports whether jti is currently denylisted.
	Contains(ctx context.Context, jti string) (bool, error)
}
