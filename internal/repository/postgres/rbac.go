package postgres

import (
	"context"
	"fmt"

	"github.com/nemisolv/englearn-auth/internal/domain"
	"github.com/nemisolv/englearn-auth/internal/repository"
	"github.com/nemisolv/englearn-auth/pkg/database"
	apperrors "github.com/nemisolv/englearn-auth/pkg/errors"
)

// RBACRepository implements repository.RBACRepository using PostgreSQL.
type RBACRepository struct {
	db database.DBTX
}

// NewRBACRepository creates a new PostgreSQL-backed RBAC repository.
func NewRBACRepository(db database.DBTX) *RBACRepository {
	return &RBACRepository{db: db}
}

// GetUserScopes loads all roles of the user and each role's permissions in
// one query. The users table drives the join so that a missing user (no
// rows) is distinguishable from a user without roles (one all-null row).
func (r *RBACRepository) GetUserScopes(ctx context.Context, userID int64) (scopes domain.Scopes, err error) {
	query := `
		SELECT r.name, p.name
		FROM users u
		LEFT JOIN user_roles ur ON ur.user_id = u.id
		LEFT JOIN roles r ON r.id = ur.role_id
		LEFT JOIN role_permissions rp ON rp.role_id = r.id
		LEFT JOIN permissions p ON p.id = rp.permission_id
		WHERE u.id = $1`

	ctx, end := database.TraceQuery(ctx, "rbac.GetUserScopes", query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query user scopes: %w", err)
	}
	defer rows.Close()

	found := false
	scopes = domain.Scopes{}
	for rows.Next() {
		found = true
		var roleName, permName *string
		if err := rows.Scan(&roleName, &permName); err != nil {
			return nil, fmt.Errorf("scan user scope row: %w", err)
		}
		if roleName == nil {
			continue
		}
		perms, ok := scopes[*roleName]
		if !ok {
			perms = []string{}
		}
		if permName != nil {
			perms = append(perms, *permName)
		}
		scopes[*roleName] = perms
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user scope rows: %w", err)
	}
	if !found {
		return nil, apperrors.ErrNotFound
	}

	return scopes, nil
}

// UserHasPermission checks the permission with a single existence query.
func (r *RBACRepository) UserHasPermission(ctx context.Context, userID int64, permission string) (ok bool, err error) {
	query := `
		SELECT
			EXISTS (SELECT 1 FROM users WHERE id = $1),
			EXISTS (
				SELECT 1
				FROM user_roles ur
				JOIN role_permissions rp ON rp.role_id = ur.role_id
				JOIN permissions p ON p.id = rp.permission_id
				WHERE ur.user_id = $1 AND p.name = $2
			)`

	ctx, end := database.TraceQuery(ctx, "rbac.UserHasPermission", query)
	defer func() { end(err) }()

	return r.existsForUser(ctx, query, userID, permission)
}

// UserHasRole checks role membership with a single existence query.
func (r *RBACRepository) UserHasRole(ctx context.Context, userID int64, role string) (ok bool, err error) {
	query := `
		SELECT
			EXISTS (SELECT 1 FROM users WHERE id = $1),
			EXISTS (
				SELECT 1
				FROM user_roles ur
				JOIN roles r ON r.id = ur.role_id
				WHERE ur.user_id = $1 AND r.name = $2
			)`

	ctx, end := database.TraceQuery(ctx, "rbac.UserHasRole", query)
	defer func() { end(err) }()

	return r.existsForUser(ctx, query, userID, role)
}

func (r *RBACRepository) existsForUser(ctx context.Context, query string, userID int64, name string) (bool, error) {
	var userExists, has bool
	if err := r.db.QueryRow(ctx, query, userID, name).Scan(&userExists, &has); err != nil {
		return false, fmt.Errorf("query user grant: %w", err)
	}
	if !userExists {
		return false, apperrors.ErrNotFound
	}
	return has, nil
}

// ListRoles returns every role with its permissions.
func (r *RBACRepository) ListRoles(ctx context.Context) (roles []repository.RoleWithPermissions, err error) {
	query := `
		SELECT r.id, r.name, r.description, p.name
		FROM roles r
		LEFT JOIN role_permissions rp ON rp.role_id = r.id
		LEFT JOIN permissions p ON p.id = rp.permission_id
		ORDER BY r.name, p.name`

	ctx, end := database.TraceQuery(ctx, "rbac.ListRoles", query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer rows.Close()

	roles = []repository.RoleWithPermissions{}
	for rows.Next() {
		var (
			role     domain.Role
			permName *string
		)
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &permName); err != nil {
			return nil, fmt.Errorf("scan role row: %w", err)
		}
		if n := len(roles); n == 0 || roles[n-1].ID != role.ID {
			roles = append(roles, repository.RoleWithPermissions{Role: role, Permissions: []string{}})
		}
		if permName != nil {
			last := &roles[len(roles)-1]
			last.Permissions = append(last.Permissions, *permName)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate role rows: %w", err)
	}

	return roles, nil
}

// ListPermissions returns the permission catalogue.
func (r *RBACRepository) ListPermissions(ctx context.Context) (perms []domain.Permission, err error) {
	query := `SELECT id, name, resource_type, action, description FROM permissions ORDER BY name`

	ctx, end := database.TraceQuery(ctx, "rbac.ListPermissions", query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	defer rows.Close()

	perms = []domain.Permission{}
	for rows.Next() {
		var p domain.Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.ResourceType, &p.Action, &p.Description); err != nil {
			return nil, fmt.Errorf("scan permission row: %w", err)
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate permission rows: %w", err)
	}

	return perms, nil
}

// AssignRole grants role to the user.
func (r *RBACRepository) AssignRole(ctx context.Context, userID int64, role string) (err error) {
	query := `
		INSERT INTO user_roles (user_id, role_id)
		SELECT u.id, r.id FROM users u, roles r WHERE u.id = $1 AND r.name = $2
		ON CONFLICT (user_id, role_id) DO NOTHING`

	ctx, end := database.TraceQuery(ctx, "rbac.AssignRole", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query, userID, role)
	if err != nil {
		return fmt.Errorf("assign role: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return r.checkUserAndRole(ctx, userID, role)
	}
	return nil
}

// RemoveRole withdraws role from the user.
func (r *RBACRepository) RemoveRole(ctx context.Context, userID int64, role string) (err error) {
	query := `
		DELETE FROM user_roles ur
		USING roles r
		WHERE ur.role_id = r.id AND ur.user_id = $1 AND r.name = $2`

	ctx, end := database.TraceQuery(ctx, "rbac.RemoveRole", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query, userID, role)
	if err != nil {
		return fmt.Errorf("remove role: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return r.checkUserAndRole(ctx, userID, role)
	}
	return nil
}

// checkUserAndRole distinguishes a no-op grant change from an unknown user
// or role after a statement affected no rows.
func (r *RBACRepository) checkUserAndRole(ctx context.Context, userID int64, role string) error {
	var userExists, roleExists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1), EXISTS (SELECT 1 FROM roles WHERE name = $2)`,
		userID, role,
	).Scan(&userExists, &roleExists)
	if err != nil {
		return fmt.Errorf("check user and role: %w", err)
	}
	switch {
	case !userExists:
		return apperrors.NotFound("user", fmt.Sprint(userID))
	case !roleExists:
		return apperrors.NotFound("role", role)
	}
	return nil
}
