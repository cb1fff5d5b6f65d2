package http

import (
	"log/slog"
	"net/http"

	"github.com/nemisolv/englearn-auth/internal/auth"
	"github.com/nemisolv/englearn-auth/internal/domain"
	"github.com/nemisolv/englearn-auth/internal/service"
	"github.com/nemisolv/englearn-auth/pkg/httputil"
	"github.com/nemisolv/englearn-auth/pkg/middleware"
	"github.com/nemisolv/englearn-auth/pkg/validator"
)

// AuthHandler handles HTTP requests for the auth endpoints.
type AuthHandler struct {
	auth     *service.AuthService
	sessions *service.SessionService
	rbac     *service.RBACService
	ips      *auth.ClientIPResolver
	logger   *slog.Logger
}

// NewAuthHandler creates a new auth HTTP handler.
func NewAuthHandler(authSvc *service.AuthService, sessions *service.SessionService, rbac *service.RBACService, ips *auth.ClientIPResolver, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: authSvc, sessions: sessions, rbac: rbac, ips: ips, logger: logger}
}

// --- Request DTOs ---

// LoginRequest is the JSON request body for login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,max=72"`
}

// RefreshTokenRequest is the JSON request body for refresh and logout.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required,max=256"`
}

// --- Response types ---

// ScopesResponse describes the live roles and permissions of a user.
type ScopesResponse struct {
	UserID int64         `json:"user_id"`
	Roles  []string      `json:"roles"`
	Scopes domain.Scopes `json:"scopes"`
}

// RevokedResponse reports how many sessions a bulk revoke ended.
type RevokedResponse struct {
	RevokedSessions int `json:"revoked_sessions"`
}

// --- Handlers ---

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	pair, err := h.auth.Login(r.Context(), service.LoginInput{
		Email:      req.Email,
		Password:   req.Password,
		DeviceInfo: auth.DeviceInfo(r.UserAgent()),
		IPAddress:  h.ips.ClientIP(r),
		UserAgent:  r.UserAgent(),
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: pair})
}

// Refresh handles POST /api/v1/auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshTokenRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	pair, err := h.auth.Refresh(r.Context(), service.RotateInput{
		Token:      req.RefreshToken,
		DeviceInfo: auth.DeviceInfo(r.UserAgent()),
		IPAddress:  h.ips.ClientIP(r),
		UserAgent:  r.UserAgent(),
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: pair})
}

// Logout handles POST /api/v1/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req RefreshTokenRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	if err := h.auth.Logout(r.Context(), req.RefreshToken); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: map[string]string{"message": "logged out"},
	})
}

// LogoutAll handles POST /api/v1/auth/logout-all
func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	n, err := h.auth.LogoutAll(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: RevokedResponse{RevokedSessions: n}})
}

// ListSessions handles GET /api/v1/auth/sessions
func (h *AuthHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.sessions.ListSessions(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: sessions})
}

// MyScopes handles GET /api/v1/auth/me/scopes
func (h *AuthHandler) MyScopes(w http.ResponseWriter, r *http.Request) {
	writeScopes(w, r, h.rbac, middleware.UserIDFromContext(r.Context()), h.logger)
}

func writeScopes(w http.ResponseWriter, r *http.Request, rbac *service.RBACService, userID int64, logger *slog.Logger) {
	scopes, err := rbac.ResolveUserScopes(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, r, err, logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: ScopesResponse{UserID: userID, Roles: scopes.Roles(), Scopes: scopes},
	})
}
