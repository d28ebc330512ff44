package engineers

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/fieldops/fieldops/internal/rbac"
)

// Service manages engineer accounts. A service provider only manages the
// engineers it partners with; holders of manageUsers manage all of them.
type Service struct {
	repo     Repository
	guard    *rbac.Guard
	logger   *slog.Logger
	hashCost int
}

// NewService constructs a Service.
func NewService(repo Repository, guard *rbac.Guard, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, guard: guard, logger: logger, hashCost: bcrypt.DefaultCost}
}

// List returns engineers, restricted to the actor's partners when the actor
// cannot manage users.
func (s *Service) List(ctx context.Context, actor *rbac.User, filters ListFilters) ([]Engineer, error) {
	if !s.manageAll(actor) {
		if s.holds(actor, rbac.PermManageEngineers) {
			filters.PartnerID = parseID(actor)
		}
	}
	list, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []Engineer{}
	}
	return list, nil
}

// Create registers a new engineer login. Service providers become its partner.
func (s *Service) Create(ctx context.Context, actor *rbac.User, in CreateInput) (Engineer, error) {
	if err := s.authorize(actor, rbac.PermManageEngineers); err != nil {
		return Engineer{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.hashCost)
	if err != nil {
		return Engineer{}, fmt.Errorf("engineers: hash password: %w", err)
	}
	e := Engineer{
		Email:  strings.ToLower(strings.TrimSpace(in.Email)),
		Name:   strings.TrimSpace(in.Name),
		Phone:  strings.TrimSpace(in.Phone),
		Skills: in.Skills,
	}
	if e.Skills == nil {
		e.Skills = []string{}
	}
	if !s.manageAll(actor) {
		partner := parseID(actor)
		e.PartnerID = &partner
	}
	created, err := s.repo.Create(ctx, e, string(hash))
	if err != nil {
		return Engineer{}, err
	}
	s.logger.Info("engineer created", slog.Int64("user_id", created.UserID), slog.String("actor", actor.ID))
	return created, nil
}

// SetActive activates or deactivates an engineer.
func (s *Service) SetActive(ctx context.Context, actor *rbac.User, userID int64, active bool) (Engineer, error) {
	if _, err := s.owned(ctx, actor, userID); err != nil {
		return Engineer{}, err
	}
	if err := s.repo.SetActive(ctx, userID, active); err != nil {
		return Engineer{}, err
	}
	return s.repo.Get(ctx, userID)
}

// Delete removes an engineer.
func (s *Service) Delete(ctx context.Context, actor *rbac.User, userID int64) error {
	if _, err := s.owned(ctx, actor, userID); err != nil {
		return err
	}
	return s.repo.Delete(ctx, userID)
}

// Lookup returns an engineer without authorizing. Callers scope the result
// through the guard themselves.
func (s *Service) Lookup(ctx context.Context, userID int64) (Engineer, error) {
	return s.repo.Get(ctx, userID)
}

// owned loads an engineer the actor may manage. The unscoped gate reads the
// resolver so only the partner-scoped check reaches the recorder.
func (s *Service) owned(ctx context.Context, actor *rbac.User, userID int64) (Engineer, error) {
	if !s.holds(actor, rbac.PermManageEngineers) {
		if err := s.authorize(actor, rbac.PermManageEngineers); err != nil {
			return Engineer{}, err
		}
	}
	e, err := s.repo.Get(ctx, userID)
	if err != nil {
		return Engineer{}, err
	}
	if err := s.authorize(actor, rbac.PermManageEngineers, rbac.WithResource(e)); err != nil {
		return Engineer{}, err
	}
	return e, nil
}

func (s *Service) authorize(actor *rbac.User, perm rbac.Permission, opts ...rbac.Option) error {
	d, err := s.guard.Check(actor, perm, opts...)
	if err != nil {
		return err
	}
	return d.Err()
}

func (s *Service) holds(actor *rbac.User, perm rbac.Permission) bool {
	return s.guard.Resolver().EffectivePermissions(actor).Has(perm)
}

func (s *Service) manageAll(actor *rbac.User) bool {
	return s.holds(actor, rbac.PermManageUsers)
}

func parseID(actor *rbac.User) int64 {
	if actor == nil {
		return 0
	}
	id, _ := strconv.ParseInt(actor.ID, 10, 64)
	return id
}
