package users

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldops/fieldops/internal/rbac"
)

func newTestRouter(t *testing.T, as *rbac.User) (http.Handler, *memRepo) {
	t.Helper()
	svc, repo, _ := newTestService()
	h := NewHandler(nil, svc, rbac.Middleware{Guard: svc.guard})
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if as != nil {
				req = req.WithContext(rbac.ContextWithUser(req.Context(), as))
			}
			next.ServeHTTP(w, req)
		})
	})
	h.MountRoutes(r)
	return r, repo
}

func TestUserRoutesRequireManageUsers(t *testing.T) {
	router, _ := newTestRouter(t, &rbac.User{ID: "3", Role: rbac.RoleEngineer})
	for _, path := range []string{"/users", "/permissions", "/users/4/permissions"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusForbidden, rec.Code, path)
	}

	router, _ = newTestRouter(t, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPutPermissions(t *testing.T) {
	router, repo := newTestRouter(t, &rbac.User{ID: "2", Role: rbac.RoleAdmin})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/users/3/permissions", strings.NewReader(`{"granted":["viewReports"],"revoked":[]}`))
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var view PermissionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Contains(t, view.Effective, "viewReports")
	assert.True(t, repo.users[3].Overrides.Has(rbac.PermViewReports))

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPut, "/users/3/permissions", strings.NewReader(`{"granted":["configureSystemSettings"]}`))
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPut, "/users/3/permissions", strings.NewReader(`{"granted":[""]}`))
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPut, "/users/abc/permissions", strings.NewReader(`{}`))
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPutRoleSuperAdminNeedsSuperAdmin(t *testing.T) {
	router, _ := newTestRouter(t, &rbac.User{ID: "2", Role: rbac.RoleAdmin})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/users/3/role", strings.NewReader(`{"role":"SUPER_ADMIN"}`)))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "RoleMismatch", body["reason"])

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/users/99/role", strings.NewReader(`{"role":"USER"}`)))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListAndCatalogue(t *testing.T) {
	router, _ := newTestRouter(t, &rbac.User{ID: "1", Role: rbac.RoleSuperAdmin})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var accounts []Account
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accounts))
	assert.Len(t, accounts, 4)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/permissions", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var cat Catalogue
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cat))
	assert.Len(t, cat.Permissions, 15)
}
