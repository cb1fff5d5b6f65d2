package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/nemisolv/englearn-auth/internal/domain"
	"github.com/nemisolv/englearn-auth/internal/repository"
	"github.com/nemisolv/englearn-auth/pkg/database"
	apperrors "github.com/nemisolv/englearn-auth/pkg/errors"
)

const refreshTokenColumns = `id, user_id, token_hash, access_token_jti, expires_at, revoked, revoked_at,
		device_info, ip_address, user_agent, created_at, last_used_at, replaced_by, version`

const insertRefreshToken = `
		INSERT INTO refresh_tokens (user_id, token_hash, access_token_jti, expires_at, device_info, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, version`

// RefreshTokenRepository implements repository.RefreshTokenRepository using PostgreSQL.
type RefreshTokenRepository struct {
	db database.DBTX
}

// NewRefreshTokenRepository creates a new PostgreSQL-backed refresh token repository.
func NewRefreshTokenRepository(db database.DBTX) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

// Create inserts a new refresh token row.
func (r *RefreshTokenRepository) Create(ctx context.Context, t *domain.RefreshToken) (err error) {
	ctx, end := database.TraceQuery(ctx, "refresh_tokens.Create", insertRefreshToken)
	defer func() { end(err) }()

	if err := insertToken(ctx, r.db, t); err != nil {
		return err
	}
	return nil
}

// CreateWithCap inserts t and, when maxActive is positive, revokes the user's
// oldest live sessions so that at most maxActive remain including t. Both
// run in one transaction under the user's row lock; a failed insert leaves
// the old sessions live.
func (r *RefreshTokenRepository) CreateWithCap(ctx context.Context, t *domain.RefreshToken, maxActive int, now time.Time) (revoked []repository.RevokedToken, err error) {
	query := `
		WITH active AS (
			SELECT id, row_number() OVER (ORDER BY created_at DESC, id DESC) AS rn
			FROM refresh_tokens
			WHERE user_id = $2 AND NOT revoked AND expires_at > $1
		)
		UPDATE refresh_tokens
		SET revoked = true, revoked_at = $1, version = version + 1
		WHERE id IN (SELECT id FROM active WHERE rn >= $3)
		RETURNING id, access_token_jti, created_at`

	ctx, end := database.TraceQuery(ctx, "refresh_tokens.CreateWithCap", query)
	defer func() { end(err) }()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := lockUser(ctx, tx, t.UserID); err != nil {
		return nil, err
	}

	revoked = []repository.RevokedToken{}
	if maxActive > 0 {
		revoked, err = collectRevoked(tx.Query(ctx, query, now, t.UserID, maxActive))
		if err != nil {
			return nil, err
		}
	}

	if err := insertToken(ctx, tx, t); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return revoked, nil
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Rotation and the revocation cascades serialise on the owning user's row.
// Under READ COMMITTED each statement after the lock sees every successor
// committed by the previous holder.
const (
	lockUserQuery = `SELECT id FROM users WHERE id = $1 FOR UPDATE`

	lockTokenOwnerQuery = `
		SELECT u.id FROM users u
		JOIN refresh_tokens t ON t.user_id = u.id
		WHERE t.id = $1
		FOR UPDATE OF u`
)

func lockUser(ctx context.Context, tx pgx.Tx, userID int64) error {
	if _, err := tx.Exec(ctx, lockUserQuery, userID); err != nil {
		return fmt.Errorf("lock user: %w", err)
	}
	return nil
}

func insertToken(ctx context.Context, q queryRower, t *domain.RefreshToken) error {
	err := q.QueryRow(ctx, insertRefreshToken,
		t.UserID,
		t.TokenHash,
		t.AccessTokenJTI,
		t.ExpiresAt,
		t.DeviceInfo,
		t.IPAddress,
		t.UserAgent,
		t.CreatedAt,
	).Scan(&t.ID, &t.Version)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperrors.Conflict("refresh token hash collision")
		}
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

// GetByHash retrieves a refresh token by the hash of its secret.
func (r *RefreshTokenRepository) GetByHash(ctx context.Context, tokenHash string) (t *domain.RefreshToken, err error) {
	query := `SELECT ` + refreshTokenColumns + ` FROM refresh_tokens WHERE token_hash = $1`

	ctx, end := database.TraceQuery(ctx, "refresh_tokens.GetByHash", query)
	defer func() { end(err) }()

	return scanRefreshToken(r.db.QueryRow(ctx, query, tokenHash))
}

// GetByID retrieves a refresh token by id.
func (r *RefreshTokenRepository) GetByID(ctx context.Context, id int64) (t *domain.RefreshToken, err error) {
	query := `SELECT ` + refreshTokenColumns + ` FROM refresh_tokens WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "refresh_tokens.GetByID", query)
	defer func() { end(err) }()

	return scanRefreshToken(r.db.QueryRow(ctx, query, id))
}

// ListActiveByUserID returns the user's live sessions, oldest first.
func (r *RefreshTokenRepository) ListActiveByUserID(ctx context.Context, userID int64, now time.Time) (tokens []domain.RefreshToken, err error) {
	query := `SELECT ` + refreshTokenColumns + `
		FROM refresh_tokens
		WHERE user_id = $1 AND NOT revoked AND expires_at > $2
		ORDER BY created_at ASC, id ASC`

	ctx, end := database.TraceQuery(ctx, "refresh_tokens.ListActiveByUserID", query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query, userID, now)
	if err != nil {
		return nil, fmt.Errorf("list active refresh tokens: %w", err)
	}
	defer rows.Close()

	tokens = []domain.RefreshToken{}
	for rows.Next() {
		t, err := scanRefreshToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate refresh token rows: %w", err)
	}

	return tokens, nil
}

// Rotate inserts successor and retires current in one transaction holding
// the user's row lock. The predecessor update is a compare-and-swap on version: a concurrent rotation
// that committed first makes it match zero rows, and the whole transaction,
// including the successor insert, is rolled back.
func (r *RefreshTokenRepository) Rotate(ctx context.Context, current, successor *domain.RefreshToken, now time.Time) (err error) {
	query := `
		UPDATE refresh_tokens
		SET revoked = true, revoked_at = $1, last_used_at = $1, replaced_by = $2, version = version + 1
		WHERE id = $3 AND version = $4 AND NOT revoked AND replaced_by IS NULL`

	ctx, end := database.TraceQuery(ctx, "refresh_tokens.Rotate", query)
	defer func() { end(err) }()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := lockUser(ctx, tx, current.UserID); err != nil {
		return err
	}

	if err := insertToken(ctx, tx, successor); err != nil {
		return err
	}

	ct, err := tx.Exec(ctx, query, now, successor.ID, current.ID, current.Version)
	if err != nil {
		return fmt.Errorf("retire refresh token: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.Conflict("refresh token was rotated concurrently")
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	current.Revoked = true
	current.RevokedAt = &now
	current.LastUsedAt = &now
	current.ReplacedBy = &successor.ID
	current.Version++
	return nil
}

// Revoke marks a single token revoked.
func (r *RefreshTokenRepository) Revoke(ctx context.Context, id int64, now time.Time) (rt repository.RevokedToken, changed bool, err error) {
	query := `
		UPDATE refresh_tokens
		SET revoked = true, revoked_at = $1, version = version + 1
		WHERE id = $2 AND NOT revoked
		RETURNING id, access_token_jti, created_at`

	ctx, end := database.TraceQuery(ctx, "refresh_tokens.Revoke", query)
	defer func() { end(err) }()

	err = r.db.QueryRow(ctx, query, now, id).Scan(&rt.ID, &rt.AccessTokenJTI, &rt.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.RevokedToken{}, false, nil
		}
		return repository.RevokedToken{}, false, fmt.Errorf("revoke refresh token: %w", err)
	}
	return rt, true, nil
}

// RevokeAllByUserID revokes every active token of the user.
func (r *RefreshTokenRepository) RevokeAllByUserID(ctx context.Context, userID int64, now time.Time) (revoked []repository.RevokedToken, err error) {
	query := `
		UPDATE refresh_tokens
		SET revoked = true, revoked_at = $1, version = version + 1
		WHERE user_id = $2 AND NOT revoked
		RETURNING id, access_token_jti, created_at`

	ctx, end := database.TraceQuery(ctx, "refresh_tokens.RevokeAllByUserID", query)
	defer func() { end(err) }()

	return r.revokeUnderLock(ctx, lockUserQuery, userID, query, now, userID)
}

// RevokeFamily revokes the descendants of id along the replaced_by chain.
func (r *RefreshTokenRepository) RevokeFamily(ctx context.Context, id int64, now time.Time) (revoked []repository.RevokedToken, err error) {
	query := `
		WITH RECURSIVE chain AS (
			SELECT id, replaced_by FROM refresh_tokens WHERE id = $2
			UNION ALL
			SELECT t.id, t.replaced_by FROM refresh_tokens t JOIN chain c ON t.id = c.replaced_by
		)
		UPDATE refresh_tokens
		SET revoked = true, revoked_at = $1, version = version + 1
		WHERE id IN (SELECT id FROM chain) AND NOT revoked
		RETURNING id, access_token_jti, created_at`

	ctx, end := database.TraceQuery(ctx, "refresh_tokens.RevokeFamily", query)
	defer func() { end(err) }()

	return r.revokeUnderLock(ctx, lockTokenOwnerQuery, id, query, now, id)
}

// revokeUnderLock runs a RETURNING revocation inside a transaction that first
// takes the owner lock selected by lockQuery.
func (r *RefreshTokenRepository) revokeUnderLock(ctx context.Context, lockQuery string, lockArg int64, query string, args ...any) ([]repository.RevokedToken, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, lockQuery, lockArg); err != nil {
		return nil, fmt.Errorf("lock user: %w", err)
	}

	revoked, err := collectRevoked(tx.Query(ctx, query, args...))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return revoked, nil
}

// DeleteExpiredBefore removes tokens that expired before cutoff. A token
// whose predecessor is still within cutoff is kept so the predecessor's
// replaced_by link survives.
func (r *RefreshTokenRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (n int64, err error) {
	query := `
		DELETE FROM refresh_tokens t
		WHERE t.expires_at < $1
		AND NOT EXISTS (
			SELECT 1 FROM refresh_tokens p
			WHERE p.replaced_by = t.id AND p.expires_at >= $1
		)`

	ctx, end := database.TraceQuery(ctx, "refresh_tokens.DeleteExpiredBefore", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh tokens: %w", err)
	}
	return ct.RowsAffected(), nil
}

func collectRevoked(rows pgx.Rows, err error) ([]repository.RevokedToken, error) {
	if err != nil {
		return nil, fmt.Errorf("revoke refresh tokens: %w", err)
	}
	defer rows.Close()

	revoked := []repository.RevokedToken{}
	for rows.Next() {
		var rt repository.RevokedToken
		if err := rows.Scan(&rt.ID, &rt.AccessTokenJTI, &rt.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan revoked token: %w", err)
		}
		revoked = append(revoked, rt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate revoked tokens: %w", err)
	}
	return revoked, nil
}

func scanRefreshToken(row pgx.Row) (*domain.RefreshToken, error) {
	var t domain.RefreshToken
	err := row.Scan(
		&t.ID,
		&t.UserID,
		&t.TokenHash,
		&t.AccessTokenJTI,
		&t.ExpiresAt,
		&t.Revoked,
		&t.RevokedAt,
		&t.DeviceInfo,
		&t.IPAddress,
		&t.UserAgent,
		&t.CreatedAt,
		&t.LastUsedAt,
		&t.ReplacedBy,
		&t.Version,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan refresh token: %w", err)
	}
	return &t, nil
}
