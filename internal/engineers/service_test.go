package engineers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/fieldops/fieldops/internal/platform/httpx"
	"github.com/fieldops/fieldops/internal/rbac"
)

type memRepo struct {
	items  map[int64]Engineer
	hashes map[int64]string
	next   int64
}

func newMemRepo() *memRepo {
	return &memRepo{items: map[int64]Engineer{}, hashes: map[int64]string{}, next: 100}
}

func (m *memRepo) List(ctx context.Context, filters ListFilters) ([]Engineer, error) {
	var out []Engineer
	for _, e := range m.items {
		if filters.ActiveOnly && !e.IsActive {
			continue
		}
		if filters.PartnerID > 0 && (e.PartnerID == nil || *e.PartnerID != filters.PartnerID) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *memRepo) Get(ctx context.Context, userID int64) (Engineer, error) {
	e, ok := m.items[userID]
	if !ok {
		return Engineer{}, fmt.Errorf("engineer %d: %w", userID, httpx.ErrNotFound)
	}
	return e, nil
}

func (m *memRepo) Create(ctx context.Context, e Engineer, passwordHash string) (Engineer, error) {
	for _, existing := range m.items {
		if existing.Email == e.Email {
			return Engineer{}, httpx.ErrDuplicate
		}
	}
	m.next++
	e.UserID, e.IsActive, e.CreatedAt = m.next, true, time.Now()
	m.items[e.UserID] = e
	m.hashes[e.UserID] = passwordHash
	return e, nil
}

func (m *memRepo) SetActive(ctx context.Context, userID int64, active bool) error {
	e := m.items[userID]
	e.IsActive = active
	m.items[userID] = e
	return nil
}

func (m *memRepo) Delete(ctx context.Context, userID int64) error {
	delete(m.items, userID)
	return nil
}

var (
	admin     = &rbac.User{ID: "2", Role: rbac.RoleAdmin}
	providerA = &rbac.User{ID: "30", Role: rbac.RoleServiceProvider}
	providerB = &rbac.User{ID: "31", Role: rbac.RoleServiceProvider}
	tech      = &rbac.User{ID: "40", Role: rbac.RoleEngineer}
)

func newTestService() (*Service, *memRepo) {
	return newRecordingService(nil)
}

func newRecordingService(rec rbac.Recorder) (*Service, *memRepo) {
	repo := newMemRepo()
	svc := NewService(repo, rbac.NewGuard(rbac.NewHolder(rbac.DefaultRegistry()), rec), nil)
	svc.hashCost = bcrypt.MinCost
	return svc, repo
}

func input(email string) CreateInput {
	return CreateInput{Email: email, Name: "Sam", Password: "longenough", Skills: []string{"hvac"}}
}

func TestProviderOwnsTheEngineersItCreates(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	mine, err := svc.Create(ctx, providerA, input(" Sam@Test.local "))
	require.NoError(t, err)
	assert.Equal(t, "sam@test.local", mine.Email)
	require.NotNil(t, mine.PartnerID)
	assert.Equal(t, int64(30), *mine.PartnerID)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.hashes[mine.UserID]), []byte("longenough")))

	staff, err := svc.Create(ctx, admin, input("staff@test.local"))
	require.NoError(t, err)
	assert.Nil(t, staff.PartnerID)

	list, err := svc.List(ctx, providerA, ListFilters{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, mine.UserID, list[0].UserID)

	list, err = svc.List(ctx, admin, ListFilters{})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	_, err = svc.SetActive(ctx, providerB, mine.UserID, false)
	requireScopeDenied(t, err)
	_, err = svc.SetActive(ctx, providerA, staff.UserID, false)
	requireScopeDenied(t, err)

	updated, err := svc.SetActive(ctx, providerA, mine.UserID, false)
	require.NoError(t, err)
	assert.False(t, updated.IsActive)
	found, err := svc.Lookup(ctx, mine.UserID)
	require.NoError(t, err)
	assert.False(t, found.IsActive)

	require.NoError(t, svc.Delete(ctx, admin, mine.UserID))
	_, err = svc.SetActive(ctx, admin, mine.UserID, true)
	assert.ErrorIs(t, err, httpx.ErrNotFound)
}

func requireScopeDenied(t *testing.T, err error) {
	t.Helper()
	var denied *rbac.DeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, rbac.ReasonResourceScope, denied.Decision.Reason)
}

func TestOtherPartnersEngineerIsScopeDenied(t *testing.T) {
	var seen []rbac.Decision
	svc, _ := newRecordingService(rbac.RecorderFunc(func(d rbac.Decision) { seen = append(seen, d) }))
	ctx := context.Background()
	mine, err := svc.Create(ctx, providerA, input("mine@test.local"))
	require.NoError(t, err)

	seen = nil
	err = svc.Delete(ctx, providerB, mine.UserID)
	requireScopeDenied(t, err)
	require.Len(t, seen, 1)
	assert.False(t, seen[0].Allowed)
	assert.Equal(t, rbac.RuleScopeNotOwner, seen[0].Rule)
	assert.Equal(t, "30", seen[0].OwnerID)

	seen = nil
	require.NoError(t, svc.Delete(ctx, admin, mine.UserID))
	require.Len(t, seen, 1)
	assert.Equal(t, rbac.RuleScopeBypass, seen[0].Rule)
}

func TestEngineerOwnerIsPartner(t *testing.T) {
	partner := int64(30)
	e := Engineer{UserID: 40, PartnerID: &partner}
	owner, ok := e.OwnerID(rbac.RelationPartner)
	assert.True(t, ok)
	assert.Equal(t, "30", owner)

	_, ok = e.OwnerID(rbac.RelationAssignee)
	assert.False(t, ok)
	_, ok = Engineer{UserID: 41}.OwnerID(rbac.RelationPartner)
	assert.False(t, ok)
}

func TestEngineerCannotManageEngineers(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.Create(context.Background(), tech, input("x@test.local"))
	var denied *rbac.DeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, rbac.ReasonMissingPermission, denied.Decision.Reason)
}

func TestEngineerRoutes(t *testing.T) {
	svc, _ := newTestService()
	h := NewHandler(nil, svc, rbac.Middleware{Guard: svc.guard})
	serve := func(user *rbac.User, method, path, body string) *httptest.ResponseRecorder {
		r := chi.NewRouter()
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				next.ServeHTTP(w, req.WithContext(rbac.ContextWithUser(req.Context(), user)))
			})
		})
		h.MountRoutes(r)
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	rec := serve(tech, http.MethodGet, "/engineers", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = serve(admin, http.MethodPost, "/engineers", `{"email":"new@test.local","name":"New","password":"longenough"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created Engineer
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = serve(admin, http.MethodPost, "/engineers", `{"email":"bad","name":"New","password":"short"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(admin, http.MethodPost, fmt.Sprintf("/engineers/%d/deactivate", created.UserID), "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(providerA, http.MethodGet, "/engineers", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = serve(providerA, http.MethodDelete, fmt.Sprintf("/engineers/%d", created.UserID), "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"forbidden","reason":"ResourceScope"}`, rec.Body.String())
}
