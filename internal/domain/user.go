package domain

import "time"

// UserStatus is the lifecycle state of an account.
type UserStatus string

const (
	UserStatusActive    UserStatus = "ACTIVE"
	UserStatusInactive  UserStatus = "INACTIVE"
	UserStatusSuspended UserStatus = "SUSPENDED"
)

// AuthProvider names the identity provider an account was created with.
type AuthProvider string

const (
	AuthProviderLocal     AuthProvider = "LOCAL"
	AuthProviderGoogle    AuthProvider = "GOOGLE"
	AuthProviderMicrosoft AuthProvider = "MICROSOFT"
)

// User represents a registered account.
type User struct {
	ID            int64        `json:"id"`
	Email         string       `json:"email"`
	PasswordHash  string       `json:"-"`
	Status        UserStatus   `json:"status"`
	AuthProvider  AuthProvider `json:"auth_provider"`
	EmailVerified bool         `json:"email_verified"`
	LastLoginAt   *time.Time   `json:"last_login_at,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// IsActive reports whether the account may hold sessions.
func (u *User) IsActive() bool {
	return u.Status == UserStatusActive
}
