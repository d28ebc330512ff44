package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/fieldops/fieldops/internal/audit"
	"github.com/fieldops/fieldops/internal/platform/httpx"
	"github.com/fieldops/fieldops/internal/rbac"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context) ([]Account, error)
	Principal(ctx context.Context, userID int64) (*rbac.User, error)
	ReplaceOverrides(ctx context.Context, userID int64, granted, revoked []rbac.Permission, actorID int64) error
	SetRole(ctx context.Context, userID int64, role rbac.Role) error
}

// AuditWriter records user management changes.
type AuditWriter interface {
	Insert(ctx context.Context, e audit.Entry) error
}

// Service handles user and permission management. Callers are expected to
// have passed the manageUsers gate; the service enforces the finer rules.
type Service struct {
	repo   RepositoryPort
	guard  *rbac.Guard
	audit  AuditWriter
	logger *slog.Logger
}

// NewService builds Service instance. auditWriter may be nil.
func NewService(repo RepositoryPort, guard *rbac.Guard, auditWriter AuditWriter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, guard: guard, audit: auditWriter, logger: logger}
}

// ListUsers returns all users.
func (s *Service) ListUsers(ctx context.Context) ([]Account, error) {
	accounts, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	if accounts == nil {
		accounts = []Account{}
	}
	return accounts, nil
}

// Catalogue lists every permission with its label and the defaults of each
// role in the active registry.
func (s *Service) Catalogue() Catalogue {
	resolver := s.guard.Resolver()
	cat := Catalogue{}
	for _, p := range rbac.AllPermissions() {
		cat.Permissions = append(cat.Permissions, PermissionInfo{Name: string(p), Label: p.Label()})
	}
	for _, role := range resolver.Roles() {
		cat.Roles = append(cat.Roles, RoleInfo{
			Role:     string(role),
			Label:    role.Label(),
			Defaults: resolver.Defaults(role).Strings(),
		})
	}
	return cat
}

// Permissions returns the permission breakdown of userID.
func (s *Service) Permissions(ctx context.Context, userID int64) (PermissionView, error) {
	user, err := s.repo.Principal(ctx, userID)
	if err != nil {
		return PermissionView{}, err
	}
	return s.view(userID, user), nil
}

// UpdatePermissions replaces the overrides of userID. An actor cannot edit
// their own permissions, cannot grant what they do not hold themselves, and
// only a SUPER_ADMIN may edit a SUPER_ADMIN.
func (s *Service) UpdatePermissions(ctx context.Context, actor *rbac.User, userID int64, update PermissionUpdate) (PermissionView, error) {
	actorID, err := s.checkActor(actor, userID)
	if err != nil {
		return PermissionView{}, err
	}
	granted, err := parsePermissions(update.Granted)
	if err != nil {
		return PermissionView{}, err
	}
	revoked, err := parsePermissions(update.Revoked)
	if err != nil {
		return PermissionView{}, err
	}
	grantSet, revokeSet := rbac.NewPermissionSet(granted...), rbac.NewPermissionSet(revoked...)
	if both := grantSet.Intersect(revokeSet); both.Len() > 0 {
		return PermissionView{}, fmt.Errorf("%w: %v both granted and revoked", httpx.ErrValidation, both.Strings())
	}

	target, err := s.repo.Principal(ctx, userID)
	if err != nil {
		return PermissionView{}, err
	}
	if target.Role == rbac.RoleSuperAdmin {
		if err := s.requireSuperAdmin(actor); err != nil {
			return PermissionView{}, err
		}
	}
	held := s.guard.Resolver().EffectivePermissions(actor)
	if lacking := grantSet.Minus(held); lacking.Len() > 0 {
		return PermissionView{}, fmt.Errorf("%w: cannot grant %v", httpx.ErrForbidden, lacking.Strings())
	}

	if err := s.repo.ReplaceOverrides(ctx, userID, grantSet.Sorted(), revokeSet.Sorted(), actorID); err != nil {
		return PermissionView{}, err
	}
	s.record(ctx, audit.Entry{
		ActorID:  actor.ID,
		Action:   audit.ActionPermissionsChanged,
		Entity:   "user",
		EntityID: strconv.FormatInt(userID, 10),
		Meta: map[string]any{
			"granted":          grantSet.Strings(),
			"revoked":          revokeSet.Strings(),
			"previous_granted": target.Overrides.Strings(),
			"previous_revoked": target.Revoked.Strings(),
		},
	})

	target.Overrides, target.Revoked = grantSet, revokeSet
	return s.view(userID, target), nil
}

// SetRole changes the role of userID. Assigning or removing SUPER_ADMIN
// requires the actor to be SUPER_ADMIN.
func (s *Service) SetRole(ctx context.Context, actor *rbac.User, userID int64, update RoleUpdate) (PermissionView, error) {
	if _, err := s.checkActor(actor, userID); err != nil {
		return PermissionView{}, err
	}
	role, err := rbac.ParseRole(update.Role)
	if err != nil {
		return PermissionView{}, fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	target, err := s.repo.Principal(ctx, userID)
	if err != nil {
		return PermissionView{}, err
	}
	if role == rbac.RoleSuperAdmin || target.Role == rbac.RoleSuperAdmin {
		if err := s.requireSuperAdmin(actor); err != nil {
			return PermissionView{}, err
		}
	}
	if target.Role == role {
		return s.view(userID, target), nil
	}
	if err := s.repo.SetRole(ctx, userID, role); err != nil {
		return PermissionView{}, err
	}
	s.record(ctx, audit.Entry{
		ActorID:  actor.ID,
		Action:   audit.ActionRoleChanged,
		Entity:   "user",
		EntityID: strconv.FormatInt(userID, 10),
		Meta:     map[string]any{"from": string(target.Role), "to": string(role)},
	})
	target.Role = role
	return s.view(userID, target), nil
}

func (s *Service) checkActor(actor *rbac.User, userID int64) (int64, error) {
	if actor == nil {
		return 0, httpx.ErrUnauthorized
	}
	actorID, err := strconv.ParseInt(actor.ID, 10, 64)
	if err != nil {
		return 0, httpx.ErrUnauthorized
	}
	if actorID == userID {
		return 0, fmt.Errorf("%w: cannot change own permissions or role", httpx.ErrForbidden)
	}
	return actorID, nil
}

func (s *Service) requireSuperAdmin(actor *rbac.User) error {
	d, err := s.guard.Check(actor, rbac.PermManageUsers, rbac.WithRole(rbac.RoleSuperAdmin))
	if err != nil {
		return err
	}
	return d.Err()
}

func (s *Service) view(userID int64, user *rbac.User) PermissionView {
	resolver := s.guard.Resolver()
	return PermissionView{
		UserID:    userID,
		Role:      string(user.Role),
		Defaults:  resolver.Defaults(user.Role).Strings(),
		Overrides: validOnly(user.Overrides).Strings(),
		Revoked:   validOnly(user.Revoked).Strings(),
		Effective: resolver.EffectivePermissions(user).Strings(),
	}
}

func (s *Service) record(ctx context.Context, e audit.Entry) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Insert(ctx, e); err != nil {
		s.logger.Warn("audit user change", slog.Any("error", err), slog.String("action", e.Action))
	}
}

func parsePermissions(raw []string) ([]rbac.Permission, error) {
	perms, err := rbac.ParsePermissions(raw)
	if errors.Is(err, rbac.ErrUnknownPermission) {
		return nil, fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	return perms, err
}

func validOnly(set rbac.PermissionSet) rbac.PermissionSet {
	out := rbac.NewPermissionSet()
	for p := range set {
		if p.Valid() {
			out[p] = struct{}{}
		}
	}
	return out
}
