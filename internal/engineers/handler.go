package engineers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fieldops/fieldops/internal/platform/httpx"
	"github.com/fieldops/fieldops/internal/rbac"
)

// Handler exposes engineer management endpoints.
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

// MountRoutes registers engineer routes under /engineers.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/engineers", func(r chi.Router) {
		r.With(h.rbac.RequireAny(rbac.PermAssignEngineers, rbac.PermManageEngineers)).Get("/", h.list)
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequireAll(rbac.PermManageEngineers))
			r.Post("/", h.create)
			r.Post("/{id}/activate", h.setActive(true))
			r.Post("/{id}/deactivate", h.setActive(false))
			r.Delete("/{id}", h.remove)
		})
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filters := ListFilters{ActiveOnly: r.URL.Query().Get("active") == "true"}
	list, err := h.service.List(r.Context(), rbac.UserFromContext(r.Context()), filters)
	if err != nil {
		h.fail(w, "list engineers", err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := httpx.DecodeValid(r, h.validator, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	created, err := h.service.Create(r.Context(), rbac.UserFromContext(r.Context()), in)
	if err != nil {
		h.fail(w, "create engineer", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) setActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r)
		if !ok {
			return
		}
		updated, err := h.service.SetActive(r.Context(), rbac.UserFromContext(r.Context()), id, active)
		if err != nil {
			h.fail(w, "set engineer active", err)
			return
		}
		httpx.JSON(w, http.StatusOK, updated)
	}
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), rbac.UserFromContext(r.Context()), id); err != nil {
		h.fail(w, "delete engineer", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Warn(op, slog.Any("error", err))
	httpx.RespondError(w, err)
}

func idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid engineer id")
		return 0, false
	}
	return id, true
}
