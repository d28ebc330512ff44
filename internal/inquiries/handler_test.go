package inquiries

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldops/fieldops/internal/platform/httpx"
	"github.com/fieldops/fieldops/internal/rbac"
)

func newTestRouter(t *testing.T, user *rbac.User) (http.Handler, *Service) {
	t.Helper()
	svc, _ := newTestService(t, nil)
	handler := NewHandler(nil, svc, rbac.Middleware{Guard: svc.guard})

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
	return r, svc
}

func do(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateAndFetchOverHTTP(t *testing.T) {
	router, _ := newTestRouter(t, customer)

	rec := do(router, http.MethodPost, "/inquiries", `{"customer_name":"Ana","phone":"555","address":"1 Main St","appliance":"oven","problem":"no heat"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created Inquiry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, StatusPending, created.Status)

	rec = do(router, http.MethodGet, "/inquiries/1", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(router, http.MethodPost, "/inquiries", `{"customer_name":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(router, http.MethodGet, "/inquiries/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMiddlewareDeniesMissingPermission(t *testing.T) {
	router, _ := newTestRouter(t, engineerA)

	rec := do(router, http.MethodPut, "/inquiries/1/price", `{"price":10}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	var body httpx.DenialBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "forbidden", body.Error)
	assert.Equal(t, "MissingPermission", body.Reason)

	rec = do(router, http.MethodGet, "/reports/summary", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAnonymousGetsGenericDenial(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	rec := do(router, http.MethodPost, "/inquiries", `{}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	var body httpx.DenialBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "authentication required", body.Error)

	rec = do(router, http.MethodGet, "/dashboard", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestScopeDenialOverHTTP(t *testing.T) {
	router, svc := newTestRouter(t, engineerB)
	inq := newInquiry(t, svc, customer)
	_, err := svc.Assign(t.Context(), admin, inq.ID, AssignInput{EngineerID: 10})
	require.NoError(t, err)

	rec := do(router, http.MethodPost, "/inquiries/1/status", `{"status":"in_progress"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	var body httpx.DenialBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ResourceScope", body.Reason)
}

func TestReportRejectsBadDate(t *testing.T) {
	router, _ := newTestRouter(t, admin)

	rec := do(router, http.MethodGet, "/reports/summary?from=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(router, http.MethodGet, "/reports/summary?from=2024-03-01&to=2024-03-10", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var rep Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	assert.Equal(t, 11, rep.To.Day())
}
