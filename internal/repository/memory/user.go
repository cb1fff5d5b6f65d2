package memory

import (
	"context"
	"time"

	"github.com/nemisolv/englearn-auth/internal/domain"
	apperrors "github.com/nemisolv/englearn-auth/pkg/errors"
)

// UserRepository implements repository.UserRepository over a Store.
type UserRepository struct {
	s *Store
}

func (r *UserRepository) GetByID(_ context.Context, id int64) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	out := *u
	return &out, nil
}

func (r *UserRepository) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	want := normalizeEmail(email)
	for _, u := range r.s.users {
		if normalizeEmail(u.Email) == want {
			out := *u
			return &out, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (r *UserRepository) UpdateLastLogin(_ context.Context, id int64, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	u.LastLoginAt = timePtr(at)
	u.UpdatedAt = at
	return nil
}
