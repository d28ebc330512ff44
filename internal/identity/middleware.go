package identity

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/fieldops/fieldops/internal/platform/httpx"
	"github.com/fieldops/fieldops/internal/rbac"
)

// DefaultCookieName is the cookie checked when no Authorization header is sent.
const DefaultCookieName = "fieldops_session"

// Credential extracts the bearer credential from the Authorization header or
// the session cookie.
func Credential(r *http.Request, cookieName string) string {
	if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
		scheme, value, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(value)
		}
		return ""
	}
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	if cookie, err := r.Cookie(cookieName); err == nil {
		return strings.TrimSpace(cookie.Value)
	}
	return ""
}

// Middleware attaches the authenticated user to the request context. Requests
// without a valid credential continue anonymously; the guard denies them at
// protected routes. Store failures end the request with 500.
func Middleware(provider Provider, cookieName string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			credential := Credential(r, cookieName)
			if credential == "" {
				next.ServeHTTP(w, r)
				return
			}
			user, err := provider.Identify(r.Context(), credential)
			if err != nil {
				if errors.Is(err, ErrUnauthenticated) {
					next.ServeHTTP(w, r)
					return
				}
				if logger != nil {
					logger.Error("identify request", slog.Any("error", err), slog.String("path", r.URL.Path))
				}
				httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
				return
			}
			next.ServeHTTP(w, r.WithContext(rbac.ContextWithUser(r.Context(), user)))
		})
	}
}
