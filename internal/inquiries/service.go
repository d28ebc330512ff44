package inquiries

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/fieldops/fieldops/internal/engineers"
	"github.com/fieldops/fieldops/internal/platform/cache"
	"github.com/fieldops/fieldops/internal/platform/httpx"
	"github.com/fieldops/fieldops/internal/rbac"
)

// EngineerDirectory looks up the engineers inquiries are assigned to.
type EngineerDirectory interface {
	Lookup(ctx context.Context, userID int64) (engineers.Engineer, error)
}

// Service applies inquiry rules. Every operation authorizes the actor through
// the guard before touching storage.
type Service struct {
	repo      Repository
	engineers EngineerDirectory
	guard     *rbac.Guard
	cache     *cache.Versioned
	logger    *slog.Logger
	now       func() time.Time
}

// ServiceConfig groups Service dependencies. Cache may be nil.
type ServiceConfig struct {
	Repo      Repository
	Engineers EngineerDirectory
	Guard     *rbac.Guard
	Cache     *cache.Versioned
	Logger    *slog.Logger
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      cfg.Repo,
		engineers: cfg.Engineers,
		guard:     cfg.Guard,
		cache:     cfg.Cache,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *Service) authorize(actor *rbac.User, required rbac.Requirement, opts ...rbac.Option) error {
	d, err := s.guard.Check(actor, required, opts...)
	if err != nil {
		return err
	}
	return d.Err()
}

func (s *Service) holds(actor *rbac.User, perm rbac.Permission) bool {
	return s.guard.Resolver().EffectivePermissions(actor).Has(perm)
}

func actorID(actor *rbac.User) int64 {
	if actor == nil {
		return 0
	}
	id, err := strconv.ParseInt(actor.ID, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// scope picks the widest listing the actor is entitled to.
func (s *Service) scope(actor *rbac.User) (Scope, rbac.Permission) {
	held := s.guard.Resolver().EffectivePermissions(actor)
	switch {
	case held.Has(rbac.PermViewAllInquiries):
		return ScopeAll, rbac.PermViewAllInquiries
	case held.Has(rbac.PermViewAssignedInquiries):
		return ScopeAssigned, rbac.PermViewAssignedInquiries
	case held.Has(rbac.PermCreateInquiry):
		return ScopeOwn, rbac.PermCreateInquiry
	}
	return "", rbac.PermViewAssignedInquiries
}

func (q ListQuery) scoped(scope Scope, actor int64) ListQuery {
	switch scope {
	case ScopeAssigned:
		q.AssignedTo = actor
	case ScopeOwn:
		q.CreatedBy = actor
	}
	return q
}

// Create raises a new inquiry on behalf of actor.
func (s *Service) Create(ctx context.Context, actor *rbac.User, in CreateInput) (Inquiry, error) {
	if err := s.authorize(actor, rbac.PermCreateInquiry); err != nil {
		return Inquiry{}, err
	}
	created, err := s.repo.Create(ctx, Inquiry{
		UserID:       actorID(actor),
		CategoryID:   in.CategoryID,
		CustomerName: in.CustomerName,
		Phone:        in.Phone,
		Address:      in.Address,
		Appliance:    in.Appliance,
		Problem:      in.Problem,
		Status:       StatusPending,
	})
	if err != nil {
		return Inquiry{}, err
	}
	s.invalidate(ctx)
	return created, nil
}

// List returns the inquiries visible to actor: all of them with
// viewAllInquiries, those assigned to the actor with viewAssignedInquiries,
// otherwise those the actor created.
func (s *Service) List(ctx context.Context, actor *rbac.User, q ListQuery) ([]Inquiry, error) {
	scope, perm := s.scope(actor)
	if err := s.authorize(actor, perm); err != nil {
		return nil, err
	}
	if q.Status != "" && !q.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", httpx.ErrValidation, q.Status)
	}
	list, err := s.repo.List(ctx, q.scoped(scope, actorID(actor)))
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []Inquiry{}
	}
	return list, nil
}

// Get returns one inquiry if actor may see it.
func (s *Service) Get(ctx context.Context, actor *rbac.User, id int64) (Inquiry, error) {
	if err := s.authorize(actor, rbac.PermViewDashboard); err != nil {
		return Inquiry{}, err
	}
	inq, err := s.repo.Get(ctx, id)
	if err != nil {
		return Inquiry{}, err
	}
	if err := s.authorizeView(actor, inq); err != nil {
		return Inquiry{}, err
	}
	return inq, nil
}

func (s *Service) authorizeView(actor *rbac.User, inq Inquiry) error {
	if uid := actorID(actor); uid != 0 && inq.UserID == uid {
		return s.authorize(actor, rbac.PermCreateInquiry)
	}
	if scope, _ := s.scope(actor); scope == ScopeAll {
		return s.authorize(actor, rbac.PermViewAllInquiries)
	}
	return s.authorize(actor, rbac.PermViewAssignedInquiries, rbac.WithResource(inq))
}

// Assign gives a pending or assigned inquiry to an active engineer. Service
// providers only assign their own engineers.
func (s *Service) Assign(ctx context.Context, actor *rbac.User, id int64, in AssignInput) (Inquiry, error) {
	if !s.holds(actor, rbac.PermAssignEngineers) {
		if err := s.authorize(actor, rbac.PermAssignEngineers); err != nil {
			return Inquiry{}, err
		}
	}
	eng, err := s.engineers.Lookup(ctx, in.EngineerID)
	if errors.Is(err, httpx.ErrNotFound) || (err == nil && !eng.IsActive) {
		return Inquiry{}, fmt.Errorf("%w: engineer %d is not available", httpx.ErrValidation, in.EngineerID)
	}
	if err != nil {
		return Inquiry{}, err
	}
	if err := s.authorize(actor, rbac.PermAssignEngineers, rbac.WithResource(eng)); err != nil {
		return Inquiry{}, err
	}
	if err := s.repo.Assign(ctx, id, in.EngineerID); err != nil {
		return Inquiry{}, err
	}
	s.invalidate(ctx)
	return s.repo.Get(ctx, id)
}

// UpdateStatus advances an inquiry. Only the assignee may do so unless the
// actor can view every inquiry.
func (s *Service) UpdateStatus(ctx context.Context, actor *rbac.User, id int64, in StatusInput) (Inquiry, error) {
	inq, err := s.load(ctx, actor, id, rbac.PermUpdateInquiryStatus)
	if err != nil {
		return Inquiry{}, err
	}
	if !in.Status.Valid() {
		return Inquiry{}, fmt.Errorf("%w: unknown status %q", httpx.ErrValidation, in.Status)
	}
	if !CanTransition(inq.Status, in.Status) {
		return Inquiry{}, fmt.Errorf("%w: cannot move from %s to %s", httpx.ErrConflict, inq.Status, in.Status)
	}
	if err := s.repo.SetStatus(ctx, id, inq.Status, in.Status); err != nil {
		return Inquiry{}, err
	}
	s.invalidate(ctx)
	inq.Status = in.Status
	return inq, nil
}

// Cancel withdraws an inquiry that has not reached a final status.
func (s *Service) Cancel(ctx context.Context, actor *rbac.User, id int64) (Inquiry, error) {
	inq, err := s.load(ctx, actor, id, rbac.PermCancelInquiry)
	if err != nil {
		return Inquiry{}, err
	}
	if inq.Status.Final() {
		return Inquiry{}, fmt.Errorf("%w: inquiry is %s", httpx.ErrConflict, inq.Status)
	}
	if err := s.repo.SetStatus(ctx, id, inq.Status, StatusCancelled); err != nil {
		return Inquiry{}, err
	}
	s.invalidate(ctx)
	inq.Status = StatusCancelled
	return inq, nil
}

// EditPrice sets the quoted price.
func (s *Service) EditPrice(ctx context.Context, actor *rbac.User, id int64, in PriceInput) (Inquiry, error) {
	if err := s.authorize(actor, rbac.PermEditInquiryPrice); err != nil {
		return Inquiry{}, err
	}
	if in.Price < 0 {
		return Inquiry{}, fmt.Errorf("%w: price must not be negative", httpx.ErrValidation)
	}
	if err := s.repo.SetPrice(ctx, id, in.Price); err != nil {
		return Inquiry{}, err
	}
	s.invalidate(ctx)
	return s.repo.Get(ctx, id)
}

// Delete removes an inquiry permanently.
func (s *Service) Delete(ctx context.Context, actor *rbac.User, id int64) error {
	if err := s.authorize(actor, rbac.PermDeleteInquiries); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// SubmitFeedback rates a completed inquiry. Only its creator may rate it, once.
func (s *Service) SubmitFeedback(ctx context.Context, actor *rbac.User, id int64, in FeedbackInput) (Inquiry, error) {
	inq, err := s.load(ctx, actor, id, rbac.PermSubmitFeedback)
	if err != nil {
		return Inquiry{}, err
	}
	if in.Rating < 1 || in.Rating > 5 {
		return Inquiry{}, fmt.Errorf("%w: rating must be between 1 and 5", httpx.ErrValidation)
	}
	if inq.Status != StatusCompleted {
		return Inquiry{}, fmt.Errorf("%w: feedback needs a completed inquiry", httpx.ErrConflict)
	}
	if inq.Rating != nil {
		return Inquiry{}, fmt.Errorf("%w: feedback already recorded", httpx.ErrConflict)
	}
	if err := s.repo.SaveFeedback(ctx, id, in.Rating, in.Comment); err != nil {
		return Inquiry{}, err
	}
	s.invalidate(ctx)
	rating := in.Rating
	inq.Rating, inq.Feedback = &rating, in.Comment
	return inq, nil
}

// RecordCollection logs a payment taken by the assigned engineer.
func (s *Service) RecordCollection(ctx context.Context, actor *rbac.User, id int64, in CollectionInput) (Collection, error) {
	inq, err := s.load(ctx, actor, id, rbac.PermUpdateInquiryStatus)
	if err != nil {
		return Collection{}, err
	}
	if in.Amount <= 0 {
		return Collection{}, fmt.Errorf("%w: amount must be positive", httpx.ErrValidation)
	}
	if inq.Status != StatusInProgress && inq.Status != StatusCompleted {
		return Collection{}, fmt.Errorf("%w: payments need work to have started", httpx.ErrConflict)
	}
	if inq.EngineerID == nil {
		return Collection{}, fmt.Errorf("%w: inquiry has no engineer", httpx.ErrConflict)
	}
	c, err := s.repo.AddCollection(ctx, Collection{
		InquiryID:  id,
		EngineerID: *inq.EngineerID,
		Amount:     in.Amount,
		Method:     in.Method,
		Reference:  in.Reference,
	})
	if err != nil {
		return Collection{}, err
	}
	s.invalidate(ctx)
	return c, nil
}

// Collections lists payments, optionally for one inquiry.
func (s *Service) Collections(ctx context.Context, actor *rbac.User, inquiryID int64) ([]Collection, error) {
	if err := s.authorize(actor, rbac.PermViewReports); err != nil {
		return nil, err
	}
	list, err := s.repo.ListCollections(ctx, inquiryID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []Collection{}
	}
	return list, nil
}

// Dashboard counts the inquiries visible to actor by status.
func (s *Service) Dashboard(ctx context.Context, actor *rbac.User) (Dashboard, error) {
	if err := s.authorize(actor, rbac.PermViewDashboard); err != nil {
		return Dashboard{}, err
	}
	scope, _ := s.scope(actor)
	if scope == "" {
		return Dashboard{ByStatus: map[Status]int{}}, nil
	}
	uid := actorID(actor)
	keyParts := []string{"dashboard", string(scope)}
	if scope != ScopeAll {
		keyParts = append(keyParts, strconv.FormatInt(uid, 10))
	}
	key, err := s.cache.BuildKey(ctx, keyParts...)
	if err != nil {
		return Dashboard{}, err
	}
	var out Dashboard
	err = s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
		counts, err := s.repo.CountByStatus(ctx, ListQuery{}.scoped(scope, uid))
		if err != nil {
			return nil, err
		}
		d := Dashboard{Scope: scope, ByStatus: counts}
		for _, n := range counts {
			d.Total += n
		}
		return d, nil
	})
	return out, err
}

// Report summarises activity between from and to. A zero range covers the
// last 30 days.
func (s *Service) Report(ctx context.Context, actor *rbac.User, from, to time.Time) (Report, error) {
	if err := s.authorize(actor, rbac.PermViewReports); err != nil {
		return Report{}, err
	}
	if to.IsZero() {
		to = s.now().UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
	}
	if from.IsZero() {
		from = to.AddDate(0, 0, -30)
	}
	if !from.Before(to) {
		return Report{}, fmt.Errorf("%w: empty report range", httpx.ErrValidation)
	}
	key, err := s.cache.BuildKey(ctx, "report", from.Format(time.DateOnly), to.Format(time.DateOnly))
	if err != nil {
		return Report{}, err
	}
	var out Report
	err = s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
		return s.repo.Report(ctx, from, to)
	})
	return out, err
}

// load fetches an inquiry and authorizes a scoped permission against it. The
// unscoped gate reads the resolver so only the scoped check is recorded.
func (s *Service) load(ctx context.Context, actor *rbac.User, id int64, perm rbac.Permission) (Inquiry, error) {
	if !s.holds(actor, perm) {
		if err := s.authorize(actor, perm); err != nil {
			return Inquiry{}, err
		}
	}
	inq, err := s.repo.Get(ctx, id)
	if err != nil {
		return Inquiry{}, err
	}
	if err := s.authorize(actor, perm, rbac.WithResource(inq)); err != nil {
		return Inquiry{}, err
	}
	return inq, nil
}

func (s *Service) invalidate(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("inquiries: bump cache", slog.Any("error", err))
	}
}
