package audithttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldops/fieldops/internal/audit"
	"github.com/fieldops/fieldops/internal/rbac"
)

type stubTimelineService struct {
	result      audit.Result
	lastFilters audit.TimelineFilters
	calls       int
}

func (s *stubTimelineService) Timeline(ctx context.Context, filters audit.TimelineFilters) (audit.Result, error) {
	s.calls++
	s.lastFilters = filters
	return s.result, nil
}

func newRouter(t *testing.T, service *stubTimelineService, user *rbac.User) http.Handler {
	t.Helper()
	guard := rbac.NewGuard(rbac.NewHolder(rbac.DefaultRegistry()), nil)
	handler := NewHandler(nil, service, rbac.Middleware{Guard: guard})
	handler.now = func() time.Time { return time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC) }

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if user != nil {
				req = req.WithContext(rbac.ContextWithUser(req.Context(), user))
			}
			next.ServeHTTP(w, req)
		})
	})
	handler.MountRoutes(r)
	return r
}

func TestTimelineRequiresViewReports(t *testing.T) {
	service := &stubTimelineService{}
	router := newRouter(t, service, &rbac.User{ID: "3", Role: rbac.RoleEngineer})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/audit", nil))
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Zero(t, service.calls)

	rr = httptest.NewRecorder()
	newRouter(t, service, nil).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/audit", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestTimelineReturnsRows(t *testing.T) {
	rows := []audit.Entry{{ID: 1, ActorID: "9", Action: audit.ActionRoleChanged, Entity: "user", EntityID: "4"}}
	service := &stubTimelineService{result: audit.Result{Rows: rows, Paging: audit.PagingInfo{Page: 1, PageSize: 20}}}
	router := newRouter(t, service, &rbac.User{ID: "1", Role: rbac.RoleAdmin})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/audit?actor=9&page=1&page_size=20", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var body audit.Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Rows, 1)
	assert.Equal(t, audit.ActionRoleChanged, body.Rows[0].Action)

	assert.Equal(t, "9", service.lastFilters.Actor)
	assert.Equal(t, time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC), service.lastFilters.From)
	assert.Equal(t, time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC), service.lastFilters.To)
}

func TestTimelineRejectsBadFilters(t *testing.T) {
	service := &stubTimelineService{}
	router := newRouter(t, service, &rbac.User{ID: "1", Role: rbac.RoleSuperAdmin})

	for _, query := range []string{"from=2026-03-10&to=2026-03-01", "to=yesterday", "page=0", "page_size=-1", "from=2025-01-01&to=2026-03-01"} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/audit?"+query, nil))
		assert.Equal(t, http.StatusBadRequest, rr.Code, query)
	}
	assert.Zero(t, service.calls)
}
