// Package settings stores system-wide key/value configuration editable by
// super administrators.
package settings

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fieldops/fieldops/internal/audit"
	"github.com/fieldops/fieldops/internal/platform/db"
	"github.com/fieldops/fieldops/internal/platform/httpx"
	"github.com/fieldops/fieldops/internal/rbac"
)

// Setting is one stored value.
type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedBy *int64    `json:"updated_by,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Update is the body of PUT /settings.
type Update struct {
	Values map[string]string `json:"values" validate:"required,min=1,dive,keys,required,max=64,endkeys,max=2000"`
}

// Repository persists settings.
type Repository interface {
	List(ctx context.Context) ([]Setting, error)
	Upsert(ctx context.Context, values map[string]string, actorID int64) error
}

// AuditWriter records configuration changes.
type AuditWriter interface {
	Insert(ctx context.Context, e audit.Entry) error
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a PostgreSQL backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

func (r *pgRepository) List(ctx context.Context) ([]Setting, error) {
	rows, err := r.pool.Query(ctx, `SELECT key, value, updated_by, updated_at FROM settings ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Setting
	for rows.Next() {
		var s Setting
		if err := rows.Scan(&s.Key, &s.Value, &s.UpdatedBy, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Upsert writes every value in one transaction.
func (r *pgRepository) Upsert(ctx context.Context, values map[string]string, actorID int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for key, value := range values {
			batch.Queue(`INSERT INTO settings (key, value, updated_by, updated_at) VALUES ($1, $2, NULLIF($3, 0), NOW())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_by = EXCLUDED.updated_by, updated_at = NOW()`,
				key, value, actorID)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

// Service reads and writes settings.
type Service struct {
	repo   Repository
	guard  *rbac.Guard
	audit  AuditWriter
	logger *slog.Logger
}

// NewService constructs a Service. auditWriter may be nil.
func NewService(repo Repository, guard *rbac.Guard, auditWriter AuditWriter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, guard: guard, audit: auditWriter, logger: logger}
}

// List returns all stored settings.
func (s *Service) List(ctx context.Context, actor *rbac.User) ([]Setting, error) {
	if err := s.authorize(actor); err != nil {
		return nil, err
	}
	list, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []Setting{}
	}
	return list, nil
}

// Apply stores the update and audits the changed keys.
func (s *Service) Apply(ctx context.Context, actor *rbac.User, update Update) ([]Setting, error) {
	if err := s.authorize(actor); err != nil {
		return nil, err
	}
	actorID, _ := strconv.ParseInt(actor.ID, 10, 64)
	if err := s.repo.Upsert(ctx, update.Values, actorID); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(update.Values))
	for k := range update.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if s.audit != nil {
		err := s.audit.Insert(ctx, audit.Entry{
			ActorID:  actor.ID,
			Action:   audit.ActionSettingsChanged,
			Entity:   "settings",
			EntityID: "system",
			Meta:     map[string]any{"keys": keys},
		})
		if err != nil {
			s.logger.Warn("audit settings change", slog.Any("error", err))
		}
	}
	return s.List(ctx, actor)
}

func (s *Service) authorize(actor *rbac.User) error {
	d, err := s.guard.Check(actor, rbac.PermConfigureSystemSettings)
	if err != nil {
		return err
	}
	return d.Err()
}

// Handler exposes the settings endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, mw rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: mw, validator: validator.New()}
}

// MountRoutes registers GET and PUT /settings.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.PermConfigureSystemSettings))
		r.Get("/settings", h.get)
		r.Put("/settings", h.put)
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context(), rbac.UserFromContext(r.Context()))
	if err != nil {
		h.logger.Warn("list settings", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) put(w http.ResponseWriter, r *http.Request) {
	var update Update
	if err := httpx.DecodeValid(r, h.validator, &update); err != nil {
		httpx.RespondError(w, err)
		return
	}
	list, err := h.service.Apply(r.Context(), rbac.UserFromContext(r.Context()), update)
	if err != nil {
		h.logger.Warn("update settings", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}
