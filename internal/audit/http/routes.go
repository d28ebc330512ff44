package audithttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/fieldops/fieldops/internal/platform/httpx"
	"github.com/fieldops/fieldops/internal/rbac"
)

const rateLimit = 30
const rateWindow = time.Minute

// MountRoutes registers the audit timeline endpoint.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(rateLimit, rateWindow,
		httprate.WithKeyFuncs(RateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "")
		}),
	)
	r.Group(func(gr chi.Router) {
		gr.Use(h.rbac.RequireAll(rbac.PermViewReports))
		gr.Use(limiter)
		gr.Get("/audit", h.handleTimeline)
	})
}

// RateLimitKey keys limits by authenticated user, falling back to client IP.
func RateLimitKey(r *http.Request) (string, error) {
	if user := rbac.UserFromContext(r.Context()); user != nil && user.ID != "" {
		return "user:" + user.ID, nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
