package http

import (
	"log/slog"
	"net/http"

	"github.com/nemisolv/englearn-auth/internal/service"
	"github.com/nemisolv/englearn-auth/pkg/httputil"
)

// RBACHandler exposes the role and permission catalogue.
type RBACHandler struct {
	rbac   *service.RBACService
	logger *slog.Logger
}

// NewRBACHandler creates a new catalogue handler.
func NewRBACHandler(rbac *service.RBACService, logger *slog.Logger) *RBACHandler {
	return &RBACHandler{rbac: rbac, logger: logger}
}

// ListRoles handles GET /api/v1/rbac/roles
func (h *RBACHandler) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.rbac.ListRoles(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: roles})
}

// ListPermissions handles GET /api/v1/rbac/permissions
func (h *RBACHandler) ListPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.rbac.ListPermissions(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: perms})
}
