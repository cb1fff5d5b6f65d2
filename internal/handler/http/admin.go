package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nemisolv/englearn-auth/internal/event"
	"github.com/nemisolv/englearn-auth/internal/service"
	"github.com/nemisolv/englearn-auth/pkg/httputil"
)

// AdminHandler handles administrative session and role endpoints.
type AdminHandler struct {
	sessions *service.SessionService
	rbac     *service.RBACService
	logger   *slog.Logger
}

// NewAdminHandler creates a new admin HTTP handler.
func NewAdminHandler(sessions *service.SessionService, rbac *service.RBACService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{sessions: sessions, rbac: rbac, logger: logger}
}

// RevokeUserSessions handles DELETE /api/v1/admin/users/{id}/sessions
func (h *AdminHandler) RevokeUserSessions(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParseID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	n, err := h.sessions.RevokeAllForUser(r.Context(), userID, event.RevokeReasonAdmin)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: RevokedResponse{RevokedSessions: n}})
}

// UserScopes handles GET /api/v1/admin/users/{id}/scopes
func (h *AdminHandler) UserScopes(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParseID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	writeScopes(w, r, h.rbac, userID, h.logger)
}

// AssignRole handles POST /api/v1/admin/users/{id}/roles/{role}
func (h *AdminHandler) AssignRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParseID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	if err := h.rbac.AssignRole(r.Context(), userID, chi.URLParam(r, "role")); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RemoveRole handles DELETE /api/v1/admin/users/{id}/roles/{role}
func (h *AdminHandler) RemoveRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParseID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	if err := h.rbac.RemoveRole(r.Context(), userID, chi.URLParam(r, "role")); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
