package users

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/fieldops/fieldops/internal/platform/httpx"
	"github.com/fieldops/fieldops/internal/rbac"
)

// Handler manages user management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, mw rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: mw, validator: validator.New()}
}

// MountRoutes registers user and permission routes. Writes are rate limited
// per acting user.
func (h *Handler) MountRoutes(r chi.Router) {
	writeLimiter := httprate.Limit(20, time.Minute,
		httprate.WithKeyFuncs(actorKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "")
		}),
	)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.PermManageUsers))
		r.Get("/permissions", h.catalogue)
		r.Get("/users", h.listUsers)
		r.Get("/users/{id}/permissions", h.getPermissions)
		r.Group(func(r chi.Router) {
			r.Use(writeLimiter)
			r.Put("/users/{id}/permissions", h.putPermissions)
			r.Put("/users/{id}/role", h.putRole)
		})
	})
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.fail(w, "list users", err)
		return
	}
	httpx.JSON(w, http.StatusOK, accounts)
}

func (h *Handler) catalogue(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, h.service.Catalogue())
}

func (h *Handler) getPermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}
	view, err := h.service.Permissions(r.Context(), id)
	if err != nil {
		h.fail(w, "get permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) putPermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}
	var req PermissionUpdate
	if err := httpx.DecodeValid(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	view, err := h.service.UpdatePermissions(r.Context(), rbac.UserFromContext(r.Context()), id, req)
	if err != nil {
		h.fail(w, "update permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) putRole(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}
	var req RoleUpdate
	if err := httpx.DecodeValid(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	view, err := h.service.SetRole(r.Context(), rbac.UserFromContext(r.Context()), id, req)
	if err != nil {
		h.fail(w, "set role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Warn(op, slog.Any("error", err))
	httpx.RespondError(w, err)
}

func userIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid user id")
		return 0, false
	}
	return id, true
}

func actorKey(r *http.Request) (string, error) {
	if user := rbac.UserFromContext(r.Context()); user != nil && user.ID != "" {
		return "user:" + user.ID, nil
	}
	return httprate.KeyByIP(r)
}
