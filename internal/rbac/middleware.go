package rbac

import (
	"log/slog"
	"net/http"

	"github.com/fieldops/fieldops/internal/platform/httpx"
)

// Middleware wires Guard checks into HTTP handler chains. The acting user is
// read from the request context (see ContextWithUser).
type Middleware struct {
	Guard  *Guard
	Logger *slog.Logger
}

// RequireAll ensures the current user holds every listed permission.
func (m Middleware) RequireAll(perms ...Permission) func(http.Handler) http.Handler {
	required := All(perms)
	return m.gate(func(user *User) (Decision, error) {
		return m.Guard.Check(user, required)
	})
}

// RequireAny ensures the current user holds at least one listed permission.
// Exactly one decision is recorded: for the first held permission, or for the
// last one listed when none is held.
func (m Middleware) RequireAny(perms ...Permission) func(http.Handler) http.Handler {
	return m.gate(func(user *User) (Decision, error) {
		if len(perms) == 0 {
			return m.Guard.Check(user, All(nil))
		}
		choice := perms[len(perms)-1]
		if m.Guard != nil {
			held := m.Guard.Resolver().EffectivePermissions(user)
			for _, p := range perms {
				if held.Has(p) {
					choice = p
					break
				}
			}
		}
		return m.Guard.Check(user, choice)
	})
}

// RequireRole ensures the current user has exactly role and every listed
// permission.
func (m Middleware) RequireRole(role Role, perms ...Permission) func(http.Handler) http.Handler {
	required := All(perms)
	return m.gate(func(user *User) (Decision, error) {
		return m.Guard.Check(user, required, WithRole(role))
	})
}

func (m Middleware) gate(check func(*User) (Decision, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d, err := check(UserFromContext(r.Context()))
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error("rbac check", slog.Any("error", err), slog.String("path", r.URL.Path))
				}
				httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
				return
			}
			if !d.Allowed {
				WriteDenial(w, d)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WriteDenial writes the structured 401/403 body for d.
func WriteDenial(w http.ResponseWriter, d Decision) {
	err := &DeniedError{Decision: d}
	httpx.Deny(w, err.HTTPStatus(), err.DenialReason())
}
