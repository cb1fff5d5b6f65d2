// Package memory provides mutex-guarded in-process implementations of the
// repository interfaces. It backs STORE_DRIVER=memory and the engine tests.
package memory

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nemisolv/englearn-auth/internal/domain"
)

// Store holds all tables behind one lock, so multi-table operations are
// atomic in the same way a database transaction would make them.
type Store struct {
	mu sync.Mutex

	users        map[int64]*domain.User
	roles        map[string]*domain.Role
	permissions  map[string]*domain.Permission
	rolePerms    map[string][]string
	userRoles    map[int64]map[string]struct{}
	tokens       map[int64]*domain.RefreshToken
	tokensByHash map[string]int64

	nextUserID  int64
	nextRoleID  int64
	nextPermID  int64
	nextTokenID int64
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		users:        make(map[int64]*domain.User),
		roles:        make(map[string]*domain.Role),
		permissions:  make(map[string]*domain.Permission),
		rolePerms:    make(map[string][]string),
		userRoles:    make(map[int64]map[string]struct{}),
		tokens:       make(map[int64]*domain.RefreshToken),
		tokensByHash: make(map[string]int64),
	}
}

// NewSeededStore returns a store holding the default role and permission
// catalogue.
func NewSeededStore() *Store {
	s := NewStore()
	names := make([]string, 0, len(domain.DefaultPermissions))
	for name := range domain.DefaultPermissions {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s.AddPermission(domain.DefaultPermissions[name])
	}
	for role, perms := range domain.DefaultRoles {
		s.AddRole(domain.Role{Name: role}, perms...)
	}
	return s
}

// AddUser inserts u, assigning an id when u.ID is zero, and grants roles.
func (s *Store) AddUser(u domain.User, roles ...string) *domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.ID == 0 {
		s.nextUserID++
		u.ID = s.nextUserID
	} else if u.ID > s.nextUserID {
		s.nextUserID = u.ID
	}
	stored := u
	s.users[u.ID] = &stored
	grants := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		grants[r] = struct{}{}
	}
	s.userRoles[u.ID] = grants

	out := stored
	return &out
}

// DeleteUser removes a user and its role grants.
func (s *Store) DeleteUser(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, id)
	delete(s.userRoles, id)
}

// SetUserStatus changes the status of an existing user.
func (s *Store) SetUserStatus(id int64, status domain.UserStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		u.Status = status
	}
}

// AddRole inserts or replaces a role with the given permission names.
func (s *Store) AddRole(r domain.Role, perms ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.roles[r.Name]; ok {
		r.ID = existing.ID
	} else {
		s.nextRoleID++
		r.ID = s.nextRoleID
	}
	s.roles[r.Name] = &r
	s.rolePerms[r.Name] = append([]string{}, perms...)
}

// AddPermission inserts or replaces a permission.
func (s *Store) AddPermission(p domain.Permission) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.Name == "" {
		p.Name = domain.PermissionName(p.ResourceType, p.Action)
	}
	if existing, ok := s.permissions[p.Name]; ok {
		p.ID = existing.ID
	} else {
		s.nextPermID++
		p.ID = s.nextPermID
	}
	s.permissions[p.Name] = &p
}

// Users returns the user repository view of the store.
func (s *Store) Users() *UserRepository { return &UserRepository{s: s} }

// RBAC returns the RBAC repository view of the store.
func (s *Store) RBAC() *RBACRepository { return &RBACRepository{s: s} }

// RefreshTokens returns the refresh-token repository view of the store.
func (s *Store) RefreshTokens() *RefreshTokenRepository { return &RefreshTokenRepository{s: s} }

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func copyToken(t *domain.RefreshToken) *domain.RefreshToken {
	c := *t
	if t.RevokedAt != nil {
		v := *t.RevokedAt
		c.RevokedAt = &v
	}
	if t.LastUsedAt != nil {
		v := *t.LastUsedAt
		c.LastUsedAt = &v
	}
	if t.ReplacedBy != nil {
		v := *t.ReplacedBy
		c.ReplacedBy = &v
	}
	return &c
}

func timePtr(t time.Time) *time.Time { return &t }
