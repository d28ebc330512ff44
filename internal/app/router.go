package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	audithttp "github.com/fieldops/fieldops/internal/audit/http"
	"github.com/fieldops/fieldops/internal/auth"
	"github.com/fieldops/fieldops/internal/categories"
	"github.com/fieldops/fieldops/internal/engineers"
	"github.com/fieldops/fieldops/internal/identity"
	"github.com/fieldops/fieldops/internal/inquiries"
	"github.com/fieldops/fieldops/internal/observability"
	"github.com/fieldops/fieldops/internal/platform/httpx"
	"github.com/fieldops/fieldops/internal/rbac"
	"github.com/fieldops/fieldops/internal/settings"
	"github.com/fieldops/fieldops/internal/users"
	"github.com/fieldops/fieldops/jobs"
)

// RouterParams groups dependencies for building the HTTP router. Nil handlers
// are skipped.
type RouterParams struct {
	Logger   *slog.Logger
	Config   *Config
	Identity identity.Provider
	Metrics  *observability.Metrics
	RBAC     rbac.Middleware

	AuthHandler       *auth.Handler
	UsersHandler      *users.Handler
	InquiriesHandler  *inquiries.Handler
	EngineersHandler  *engineers.Handler
	CategoriesHandler *categories.Handler
	SettingsHandler   *settings.Handler
	AuditHandler      *audithttp.Handler
	JobHandler        *jobs.Handler
}

// NewRouter constructs the chi.Router with fieldops defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:   params.Logger,
		Config:   params.Config,
		Identity: params.Identity,
		Metrics:  params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "")
	})
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	if params.AuthHandler != nil {
		r.Route("/auth", params.AuthHandler.MountRoutes)
	}
	if params.UsersHandler != nil {
		params.UsersHandler.MountRoutes(r)
	}
	if params.InquiriesHandler != nil {
		params.InquiriesHandler.MountRoutes(r)
	}
	if params.EngineersHandler != nil {
		params.EngineersHandler.MountRoutes(r)
	}
	if params.CategoriesHandler != nil {
		params.CategoriesHandler.MountRoutes(r)
	}
	if params.SettingsHandler != nil {
		params.SettingsHandler.MountRoutes(r)
	}
	if params.AuditHandler != nil {
		params.AuditHandler.MountRoutes(r)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", func(r chi.Router) {
			r.Use(params.RBAC.RequireAll(rbac.PermConfigureSystemSettings))
			params.JobHandler.MountRoutes(r)
		})
	}

	return r
}
