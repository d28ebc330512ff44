package users

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldops/fieldops/internal/audit"
	"github.com/fieldops/fieldops/internal/platform/httpx"
	"github.com/fieldops/fieldops/internal/rbac"
)

type memRepo struct {
	users   map[int64]*rbac.User
	writes  int
	grantBy int64
}

func newMemRepo() *memRepo {
	return &memRepo{users: map[int64]*rbac.User{
		1: {ID: "1", Role: rbac.RoleSuperAdmin},
		2: {ID: "2", Role: rbac.RoleAdmin},
		3: {ID: "3", Role: rbac.RoleEngineer},
		4: {ID: "4", Role: rbac.RoleUser, Overrides: rbac.NewPermissionSet("legacyPermission")},
	}}
}

func (m *memRepo) ListUsers(ctx context.Context) ([]Account, error) {
	var out []Account
	for id, u := range m.users {
		out = append(out, Account{ID: id, Role: u.Role, IsActive: true})
	}
	return out, nil
}

func (m *memRepo) Principal(ctx context.Context, userID int64) (*rbac.User, error) {
	u, ok := m.users[userID]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", userID, httpx.ErrNotFound)
	}
	return &rbac.User{ID: u.ID, Role: u.Role, Overrides: u.Overrides.Clone(), Revoked: u.Revoked.Clone()}, nil
}

func (m *memRepo) ReplaceOverrides(ctx context.Context, userID int64, granted, revoked []rbac.Permission, actorID int64) error {
	m.writes++
	m.grantBy = actorID
	m.users[userID].Overrides = rbac.NewPermissionSet(granted...)
	m.users[userID].Revoked = rbac.NewPermissionSet(revoked...)
	return nil
}

func (m *memRepo) SetRole(ctx context.Context, userID int64, role rbac.Role) error {
	m.writes++
	m.users[userID].Role = role
	return nil
}

type memAudit struct {
	entries []audit.Entry
}

func (m *memAudit) Insert(ctx context.Context, e audit.Entry) error {
	m.entries = append(m.entries, e)
	return nil
}

func newTestService() (*Service, *memRepo, *memAudit) {
	repo := newMemRepo()
	log := &memAudit{}
	guard := rbac.NewGuard(rbac.NewHolder(rbac.DefaultRegistry()), nil)
	return NewService(repo, guard, log, nil), repo, log
}

func actor(repo *memRepo, id int64) *rbac.User {
	u, _ := repo.Principal(context.Background(), id)
	return u
}

func TestUpdatePermissionsGrantsAndRevokes(t *testing.T) {
	svc, repo, log := newTestService()
	ctx := context.Background()

	view, err := svc.UpdatePermissions(ctx, actor(repo, 2), 3, PermissionUpdate{
		Granted: []string{"viewReports"},
		Revoked: []string{"UPDATE_INQUIRY_STATUS"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"viewReports"}, view.Overrides)
	assert.Equal(t, []string{"updateInquiryStatus"}, view.Revoked)
	assert.Contains(t, view.Effective, "viewReports")
	assert.NotContains(t, view.Effective, "updateInquiryStatus")
	assert.Contains(t, view.Defaults, "updateInquiryStatus")
	assert.EqualValues(t, 2, repo.grantBy)

	require.Len(t, log.entries, 1)
	assert.Equal(t, audit.ActionPermissionsChanged, log.entries[0].Action)
	assert.Equal(t, "3", log.entries[0].EntityID)
}

func TestUpdatePermissionsRules(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	_, err := svc.UpdatePermissions(ctx, actor(repo, 2), 2, PermissionUpdate{Granted: []string{"viewReports"}})
	require.ErrorIs(t, err, httpx.ErrForbidden, "no self edits")

	_, err = svc.UpdatePermissions(ctx, actor(repo, 2), 3, PermissionUpdate{Granted: []string{"deleteInquiries"}})
	require.ErrorIs(t, err, httpx.ErrForbidden, "admin lacks deleteInquiries")

	_, err = svc.UpdatePermissions(ctx, actor(repo, 2), 3, PermissionUpdate{Granted: []string{"teleport"}})
	require.ErrorIs(t, err, httpx.ErrValidation)

	_, err = svc.UpdatePermissions(ctx, actor(repo, 2), 3, PermissionUpdate{Granted: []string{"viewReports"}, Revoked: []string{"viewReports"}})
	require.ErrorIs(t, err, httpx.ErrValidation)

	_, err = svc.UpdatePermissions(ctx, actor(repo, 2), 99, PermissionUpdate{})
	require.ErrorIs(t, err, httpx.ErrNotFound)

	_, err = svc.UpdatePermissions(ctx, actor(repo, 2), 1, PermissionUpdate{Revoked: []string{"manageUsers"}})
	var denied *rbac.DeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, rbac.ReasonRoleMismatch, denied.Decision.Reason)

	_, err = svc.UpdatePermissions(ctx, nil, 3, PermissionUpdate{})
	require.ErrorIs(t, err, httpx.ErrUnauthorized)

	assert.Zero(t, repo.writes)

	_, err = svc.UpdatePermissions(ctx, actor(repo, 1), 3, PermissionUpdate{Granted: []string{"deleteInquiries"}})
	require.NoError(t, err, "super admin holds deleteInquiries")
}

func TestPermissionsViewHidesUnknownOverrides(t *testing.T) {
	svc, _, _ := newTestService()
	view, err := svc.Permissions(context.Background(), 4)
	require.NoError(t, err)
	assert.Empty(t, view.Overrides)
	assert.Equal(t, "USER", view.Role)
	assert.Equal(t, view.Defaults, view.Effective)
}

func TestSetRole(t *testing.T) {
	svc, repo, log := newTestService()
	ctx := context.Background()

	view, err := svc.SetRole(ctx, actor(repo, 2), 3, RoleUpdate{Role: "service_provider"})
	require.NoError(t, err)
	assert.Equal(t, "SERVICE_PROVIDER", view.Role)
	assert.Contains(t, view.Effective, "manageEngineers")
	require.Len(t, log.entries, 1)
	assert.Equal(t, "ENGINEER", log.entries[0].Meta["from"])

	_, err = svc.SetRole(ctx, actor(repo, 2), 3, RoleUpdate{Role: "SUPER_ADMIN"})
	var denied *rbac.DeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, rbac.ReasonRoleMismatch, denied.Decision.Reason)

	_, err = svc.SetRole(ctx, actor(repo, 2), 1, RoleUpdate{Role: "USER"})
	require.ErrorAs(t, err, &denied, "admins cannot demote a super admin")

	_, err = svc.SetRole(ctx, actor(repo, 2), 3, RoleUpdate{Role: "JANITOR"})
	require.ErrorIs(t, err, httpx.ErrValidation)

	_, err = svc.SetRole(ctx, actor(repo, 1), 2, RoleUpdate{Role: "SUPER_ADMIN"})
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleSuperAdmin, repo.users[2].Role)
}

func TestCatalogue(t *testing.T) {
	svc, _, _ := newTestService()
	cat := svc.Catalogue()
	require.Len(t, cat.Permissions, len(rbac.AllPermissions()))
	assert.Equal(t, "View Dashboard", cat.Permissions[0].Label)
	require.Len(t, cat.Roles, len(rbac.AllRoles()))
	assert.Equal(t, []string{"viewDashboard", "submitFeedback", "createInquiry", "cancelInquiry"}, cat.Roles[0].Defaults)
}
