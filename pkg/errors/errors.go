package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors shared by the session engine, the RBAC resolver and the
// HTTP layer. Callers match them with errors.Is.
var (
	ErrNotFound           = errors.New("resource not found")
	ErrAlreadyExists      = errors.New("resource already exists")
	ErrInvalidInput       = errors.New("invalid input")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrAccessDenied       = errors.New("access denied")
	ErrInternal           = errors.New("internal error")
	ErrConflict           = errors.New("conflict")
	ErrTooManyRequests    = errors.New("too many requests")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidToken       = errors.New("invalid refresh token")
	ErrTokenExpired       = errors.New("refresh token expired")
	ErrTokenRevoked       = errors.New("refresh token revoked")
	ErrTokenReuse         = errors.New("refresh token reuse detected")
	ErrServiceUnavail     = errors.New("service unavailable")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountInactive    = errors.New("account inactive")
)

// AppError represents a structured application error with HTTP status mapping.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound creates a 404 error.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s with id %s not found", resource, id),
		Status:  http.StatusNotFound,
		Err:     ErrNotFound,
	}
}

// InvalidInput creates a 400 error.
func InvalidInput(message string) *AppError {
	return &AppError{
		Code:    "INVALID_INPUT",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidInput,
	}
}

// Unauthenticated creates a 401 error for a missing or unusable principal.
func Unauthenticated(message string) *AppError {
	return &AppError{
		Code:    "UNAUTHENTICATED",
		Message: message,
		Status:  http.StatusUnauthorized,
		Err:     ErrUnauthenticated,
	}
}

// InvalidCredentials creates a 401 error for a failed login.
func InvalidCredentials() *AppError {
	return &AppError{
		Code:    "INVALID_CREDENTIALS",
		Message: "invalid email or password",
		Status:  http.StatusUnauthorized,
		Err:     ErrInvalidCredentials,
	}
}

// AccessDenied creates a 403 error for an authenticated principal that does
// not satisfy a requirement.
func AccessDenied(message string) *AppError {
	return &AppError{
		Code:    "ACCESS_DENIED",
		Message: message,
		Status:  http.StatusForbidden,
		Err:     ErrAccessDenied,
	}
}

// AccountInactive creates a 403 error for an account that is not ACTIVE.
func AccountInactive() *AppError {
	return &AppError{
		Code:    "ACCOUNT_INACTIVE",
		Message: "account is not active",
		Status:  http.StatusForbidden,
		Err:     ErrAccountInactive,
	}
}

// EmailNotVerified creates a 403 error for a login before email verification.
func EmailNotVerified() *AppError {
	return &AppError{
		Code:    "EMAIL_NOT_VERIFIED",
		Message: "email address has not been verified",
		Status:  http.StatusForbidden,
		Err:     ErrAccountInactive,
	}
}

// UserNotFound creates a 401 error. A principal whose user row disappeared
// is treated as unauthenticated at the boundary.
func UserNotFound(userID int64) *AppError {
	return &AppError{
		Code:    "UNAUTHENTICATED",
		Message: fmt.Sprintf("user %d not found", userID),
		Status:  http.StatusUnauthorized,
		Err:     ErrUserNotFound,
	}
}

// InvalidRefreshToken creates a 401 error for an unknown refresh token.
func InvalidRefreshToken() *AppError {
	return &AppError{
		Code:    "INVALID_REFRESH_TOKEN",
		Message: "invalid refresh token",
		Status:  http.StatusUnauthorized,
		Err:     ErrInvalidToken,
	}
}

// RefreshTokenExpired creates a 401 error.
func RefreshTokenExpired() *AppError {
	return &AppError{
		Code:    "REFRESH_TOKEN_EXPIRED",
		Message: "refresh token has expired",
		Status:  http.StatusUnauthorized,
		Err:     ErrTokenExpired,
	}
}

// RefreshTokenRevoked creates a 401 error.
func RefreshTokenRevoked() *AppError {
	return &AppError{
		Code:    "REFRESH_TOKEN_REVOKED",
		Message: "refresh token has been revoked",
		Status:  http.StatusUnauthorized,
		Err:     ErrTokenRevoked,
	}
}

// TokenReuseDetected creates a 401 error returned after a rotated token was
// presented again and the user's sessions were revoked.
func TokenReuseDetected() *AppError {
	return &AppError{
		Code:    "TOKEN_REUSE_DETECTED",
		Message: "token reuse detected, all sessions have been revoked, please login again",
		Status:  http.StatusUnauthorized,
		Err:     ErrTokenReuse,
	}
}

// Conflict creates a 409 error. Conflicts raised by a lost rotation race are
// retryable.
func Conflict(message string) *AppError {
	return &AppError{
		Code:    "CONFLICT",
		Message: message,
		Status:  http.StatusConflict,
		Err:     ErrConflict,
	}
}

// TooManyRequests creates a 429 error.
func TooManyRequests() *AppError {
	return &AppError{
		Code:    "RATE_LIMITED",
		Message: "too many requests, please try again later",
		Status:  http.StatusTooManyRequests,
		Err:     ErrTooManyRequests,
	}
}

// Internal creates a 500 error.
func Internal(err error) *AppError {
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Message: "an internal error occurred",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

// IsRetryable reports whether the caller may repeat the operation unchanged.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}

// HTTPStatus returns the HTTP status code for the given error.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyExists), errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthenticated), errors.Is(err, ErrUserNotFound),
		errors.Is(err, ErrInvalidToken), errors.Is(err, ErrTokenExpired),
		errors.Is(err, ErrTokenRevoked), errors.Is(err, ErrTokenReuse),
		errors.Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, ErrAccessDenied), errors.Is(err, ErrAccountInactive):
		return http.StatusForbidden
	case errors.Is(err, ErrTooManyRequests):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrServiceUnavail):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
