package memory

import (
	"context"
	"sort"
	"time"

	"github.com/nemisolv/englearn-auth/internal/domain"
	"github.com/nemisolv/englearn-auth/internal/repository"
	apperrors "github.com/nemisolv/englearn-auth/pkg/errors"
)

// RefreshTokenRepository implements repository.RefreshTokenRepository over
// a Store. Rotate applies the same version compare-and-swap as the
// PostgreSQL implementation.
type RefreshTokenRepository struct {
	s *Store
}

func (r *RefreshTokenRepository) Create(ctx context.Context, t *domain.RefreshToken) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.insertLocked(ctx, t)
}

// CreateWithCap inserts t and revokes the user's oldest live sessions beyond
// maxActive in one critical section. Nothing is revoked when the insert fails.
func (r *RefreshTokenRepository) CreateWithCap(ctx context.Context, t *domain.RefreshToken, maxActive int, now time.Time) ([]repository.RevokedToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var victims []*domain.RefreshToken
	if maxActive > 0 {
		active := r.activeLocked(t.UserID, now)
		if excess := len(active) - maxActive + 1; excess > 0 {
			victims = active[:excess]
		}
	}

	if err := r.insertLocked(ctx, t); err != nil {
		return nil, err
	}

	revoked := make([]repository.RevokedToken, 0, len(victims))
	for _, v := range victims {
		revoked = append(revoked, revokeLocked(v, now))
	}
	return revoked, nil
}

func (r *RefreshTokenRepository) insertLocked(ctx context.Context, t *domain.RefreshToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, dup := r.s.tokensByHash[t.TokenHash]; dup {
		return apperrors.Conflict("refresh token hash collision")
	}
	r.s.nextTokenID++
	t.ID = r.s.nextTokenID
	t.Version = 1
	t.Revoked = false
	t.RevokedAt = nil
	t.ReplacedBy = nil

	r.s.tokens[t.ID] = copyToken(t)
	r.s.tokensByHash[t.TokenHash] = t.ID
	return nil
}

func (r *RefreshTokenRepository) GetByHash(_ context.Context, tokenHash string) (*domain.RefreshToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	id, ok := r.s.tokensByHash[tokenHash]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return copyToken(r.s.tokens[id]), nil
}

func (r *RefreshTokenRepository) GetByID(_ context.Context, id int64) (*domain.RefreshToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	t, ok := r.s.tokens[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return copyToken(t), nil
}

func (r *RefreshTokenRepository) ListActiveByUserID(_ context.Context, userID int64, now time.Time) ([]domain.RefreshToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	tokens := []domain.RefreshToken{}
	for _, t := range r.activeLocked(userID, now) {
		tokens = append(tokens, *copyToken(t))
	}
	return tokens, nil
}

// activeLocked returns the user's live stored tokens, oldest first.
func (r *RefreshTokenRepository) activeLocked(userID int64, now time.Time) []*domain.RefreshToken {
	var active []*domain.RefreshToken
	for _, t := range r.s.tokens {
		if t.UserID == userID && t.IsValid(now) {
			active = append(active, t)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		if !active[i].CreatedAt.Equal(active[j].CreatedAt) {
			return active[i].CreatedAt.Before(active[j].CreatedAt)
		}
		return active[i].ID < active[j].ID
	})
	return active
}

func (r *RefreshTokenRepository) Rotate(ctx context.Context, current, successor *domain.RefreshToken, now time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored, ok := r.s.tokens[current.ID]
	if !ok || stored.Version != current.Version || stored.Revoked || stored.ReplacedBy != nil {
		return apperrors.Conflict("refresh token was rotated concurrently")
	}
	if err := r.insertLocked(ctx, successor); err != nil {
		return err
	}

	succID := successor.ID
	stored.Revoked = true
	stored.RevokedAt = timePtr(now)
	stored.LastUsedAt = timePtr(now)
	stored.ReplacedBy = &succID
	stored.Version++

	*current = *copyToken(stored)
	return nil
}

func (r *RefreshTokenRepository) Revoke(_ context.Context, id int64, now time.Time) (repository.RevokedToken, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	t, ok := r.s.tokens[id]
	if !ok || t.Revoked {
		return repository.RevokedToken{}, false, nil
	}
	return revokeLocked(t, now), true, nil
}

func (r *RefreshTokenRepository) RevokeAllByUserID(_ context.Context, userID int64, now time.Time) ([]repository.RevokedToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	revoked := []repository.RevokedToken{}
	for _, t := range r.s.tokens {
		if t.UserID == userID && !t.Revoked {
			revoked = append(revoked, revokeLocked(t, now))
		}
	}
	sort.Slice(revoked, func(i, j int) bool { return revoked[i].ID < revoked[j].ID })
	return revoked, nil
}

func (r *RefreshTokenRepository) RevokeFamily(_ context.Context, id int64, now time.Time) ([]repository.RevokedToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	revoked := []repository.RevokedToken{}
	seen := make(map[int64]struct{})
	for next := &id; next != nil; {
		t, ok := r.s.tokens[*next]
		if !ok {
			break
		}
		if _, loop := seen[t.ID]; loop {
			break
		}
		seen[t.ID] = struct{}{}
		if !t.Revoked {
			revoked = append(revoked, revokeLocked(t, now))
		}
		next = t.ReplacedBy
	}
	return revoked, nil
}

func (r *RefreshTokenRepository) DeleteExpiredBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	// A successor stays while its predecessor is unexpired.
	linked := make(map[int64]struct{})
	for _, t := range r.s.tokens {
		if t.ReplacedBy != nil && !t.ExpiresAt.Before(cutoff) {
			linked[*t.ReplacedBy] = struct{}{}
		}
	}

	var n int64
	for id, t := range r.s.tokens {
		if _, keep := linked[id]; keep {
			continue
		}
		if t.ExpiresAt.Before(cutoff) {
			delete(r.s.tokensByHash, t.TokenHash)
			delete(r.s.tokens, id)
			n++
		}
	}
	return n, nil
}

func revokeLocked(t *domain.RefreshToken, now time.Time) repository.RevokedToken {
	t.Revoked = true
	t.RevokedAt = timePtr(now)
	t.Version++
	return repository.RevokedToken{ID: t.ID, AccessTokenJTI: t.AccessTokenJTI, CreatedAt: t.CreatedAt}
}
