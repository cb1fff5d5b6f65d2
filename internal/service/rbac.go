package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nemisolv/englearn-auth/internal/domain"
	"github.com/nemisolv/englearn-auth/internal/repository"
	apperrors "github.com/nemisolv/englearn-auth/pkg/errors"
)

// RBACService resolves roles and permissions. Every call reads the store so
// that a grant withdrawn after token issuance takes effect immediately.
type RBACService struct {
	repo   repository.RBACRepository
	logger *slog.Logger
}

// NewRBACService creates a new RBAC resolver.
func NewRBACService(repo repository.RBACRepository, logger *slog.Logger) *RBACService {
	return &RBACService{repo: repo, logger: logger}
}

// ResolveUserScopes returns the role -> permissions map of a user. A user
// without roles gets an empty, non-nil map.
func (s *RBACService) ResolveUserScopes(ctx context.Context, userID int64) (domain.Scopes, error) {
	scopes, err := s.repo.GetUserScopes(ctx, userID)
	if err != nil {
		return nil, s.mapUserErr(userID, "resolve user scopes", err)
	}
	if scopes == nil {
		scopes = domain.Scopes{}
	}
	return scopes, nil
}

// UserHasPermission reports whether any role of the user carries name.
func (s *RBACService) UserHasPermission(ctx context.Context, userID int64, name string) (bool, error) {
	if name == "" {
		return false, nil
	}
	ok, err := s.repo.UserHasPermission(ctx, userID, name)
	if err != nil {
		return false, s.mapUserErr(userID, "check permission", err)
	}
	return ok, nil
}

// UserHasResourcePermission is UserHasPermission with the name derived from
// resourceType and action.
func (s *RBACService) UserHasResourcePermission(ctx context.Context, userID int64, resourceType, action string) (bool, error) {
	if resourceType == "" || action == "" {
		return false, nil
	}
	return s.UserHasPermission(ctx, userID, domain.PermissionName(resourceType, action))
}

// UserHasRole reports whether the user holds role. Matching is exact.
func (s *RBACService) UserHasRole(ctx context.Context, userID int64, role string) (bool, error) {
	if role == "" {
		return false, nil
	}
	ok, err := s.repo.UserHasRole(ctx, userID, role)
	if err != nil {
		return false, s.mapUserErr(userID, "check role", err)
	}
	return ok, nil
}

// ListRoles returns the role catalogue with permissions.
func (s *RBACService) ListRoles(ctx context.Context) ([]repository.RoleWithPermissions, error) {
	roles, err := s.repo.ListRoles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	return roles, nil
}

// ListPermissions returns the permission catalogue.
func (s *RBACService) ListPermissions(ctx context.Context) ([]domain.Permission, error) {
	perms, err := s.repo.ListPermissions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	return perms, nil
}

// AssignRole grants role to the user.
func (s *RBACService) AssignRole(ctx context.Context, userID int64, role string) error {
	if err := s.repo.AssignRole(ctx, userID, role); err != nil {
		return fmt.Errorf("assign role: %w", err)
	}
	s.logger.InfoContext(ctx, "role assigned",
		slog.Int64("user_id", userID),
		slog.String("role", role),
	)
	return nil
}

// RemoveRole withdraws role from the user.
func (s *RBACService) RemoveRole(ctx context.Context, userID int64, role string) error {
	if err := s.repo.RemoveRole(ctx, userID, role); err != nil {
		return fmt.Errorf("remove role: %w", err)
	}
	s.logger.InfoContext(ctx, "role removed",
		slog.Int64("user_id", userID),
		slog.String("role", role),
	)
	return nil
}

func (s *RBACService) mapUserErr(userID int64, op string, err error) error {
	if errors.Is(err, apperrors.ErrNotFound) {
		return apperrors.UserNotFound(userID)
	}
	return fmt.Errorf("%s: %w", op, err)
}
