package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/nemisolv/englearn-auth/internal/domain"
	"github.com/nemisolv/englearn-auth/internal/repository"
	apperrors "github.com/nemisolv/englearn-auth/pkg/errors"
)

// RBACRepository implements repository.RBACRepository over a Store.
type RBACRepository struct {
	s *Store
}

func (r *RBACRepository) GetUserScopes(_ context.Context, userID int64) (domain.Scopes, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[userID]; !ok {
		return nil, apperrors.ErrNotFound
	}

	scopes := domain.Scopes{}
	for role := range r.s.userRoles[userID] {
		if _, ok := r.s.roles[role]; !ok {
			continue
		}
		perms := []string{}
		for _, p := range r.s.rolePerms[role] {
			if _, ok := r.s.permissions[p]; ok {
				perms = append(perms, p)
			}
		}
		scopes[role] = perms
	}
	return scopes, nil
}

func (r *RBACRepository) UserHasPermission(ctx context.Context, userID int64, permission string) (bool, error) {
	scopes, err := r.GetUserScopes(ctx, userID)
	if err != nil {
		return false, err
	}
	return scopes.HasPermission(permission), nil
}

func (r *RBACRepository) UserHasRole(ctx context.Context, userID int64, role string) (bool, error) {
	scopes, err := r.GetUserScopes(ctx, userID)
	if err != nil {
		return false, err
	}
	return scopes.HasRole(role), nil
}

func (r *RBACRepository) ListRoles(_ context.Context) ([]repository.RoleWithPermissions, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	roles := make([]repository.RoleWithPermissions, 0, len(r.s.roles))
	for name, role := range r.s.roles {
		perms := append([]string{}, r.s.rolePerms[name]...)
		sort.Strings(perms)
		roles = append(roles, repository.RoleWithPermissions{Role: *role, Permissions: perms})
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].Name < roles[j].Name })
	return roles, nil
}

func (r *RBACRepository) ListPermissions(_ context.Context) ([]domain.Permission, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	perms := make([]domain.Permission, 0, len(r.s.permissions))
	for _, p := range r.s.permissions {
		perms = append(perms, *p)
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i].Name < perms[j].Name })
	return perms, nil
}

func (r *RBACRepository) AssignRole(_ context.Context, userID int64, role string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.checkUserAndRole(userID, role); err != nil {
		return err
	}
	r.s.userRoles[userID][role] = struct{}{}
	return nil
}

func (r *RBACRepository) RemoveRole(_ context.Context, userID int64, role string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.checkUserAndRole(userID, role); err != nil {
		return err
	}
	delete(r.s.userRoles[userID], role)
	return nil
}

func (r *RBACRepository) checkUserAndRole(userID int64, role string) error {
	if _, ok := r.s.users[userID]; !ok {
		return apperrors.NotFound("user", fmt.Sprint(userID))
	}
	if _, ok := r.s.roles[role]; !ok {
		return apperrors.NotFound("role", role)
	}
	if r.s.userRoles[userID] == nil {
		r.s.userRoles[userID] = make(map[string]struct{})
	}
	return nil
}
