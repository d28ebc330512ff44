package inquiries

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fieldops/fieldops/internal/platform/httpx"
	"github.com/fieldops/fieldops/internal/rbac"
)

// Handler exposes inquiry endpoints.
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

// MountRoutes registers inquiry routes. Coarse permission gates run in
// middleware; record-level scoping happens in the service.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/dashboard", h.dashboard)
	r.Route("/inquiries", func(r chi.Router) {
		r.Get("/", h.list)
		r.With(h.rbac.RequireAll(rbac.PermCreateInquiry)).Post("/", h.create)
		r.With(h.rbac.RequireAll(rbac.PermViewReports)).Get("/collections", h.collections)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.get)
			r.With(h.rbac.RequireAll(rbac.PermDeleteInquiries)).Delete("/", h.remove)
			r.With(h.rbac.RequireAll(rbac.PermAssignEngineers)).Post("/assign", h.assign)
			r.With(h.rbac.RequireAll(rbac.PermUpdateInquiryStatus)).Post("/status", h.status)
			r.With(h.rbac.RequireAll(rbac.PermCancelInquiry)).Post("/cancel", h.cancel)
			r.With(h.rbac.RequireAll(rbac.PermEditInquiryPrice)).Put("/price", h.price)
			r.With(h.rbac.RequireAll(rbac.PermSubmitFeedback)).Post("/feedback", h.feedback)
			r.With(h.rbac.RequireAll(rbac.PermUpdateInquiryStatus)).Post("/collections", h.collect)
			r.With(h.rbac.RequireAll(rbac.PermViewReports)).Get("/collections", h.collections)
		})
	})
	r.With(h.rbac.RequireAll(rbac.PermViewReports)).Get("/reports/summary", h.report)
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.Dashboard(r.Context(), rbac.UserFromContext(r.Context()))
	if err != nil {
		h.fail(w, "dashboard", err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := ListQuery{Status: Status(r.URL.Query().Get("status"))}
	q.Limit, q.Offset = paging(r)
	out, err := h.service.List(r.Context(), rbac.UserFromContext(r.Context()), q)
	if err != nil {
		h.fail(w, "list inquiries", err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := httpx.DecodeValid(r, h.validator, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	out, err := h.service.Create(r.Context(), rbac.UserFromContext(r.Context()), in)
	if err != nil {
		h.fail(w, "create inquiry", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, out)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	out, err := h.service.Get(r.Context(), rbac.UserFromContext(r.Context()), id)
	if err != nil {
		h.fail(w, "get inquiry", err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), rbac.UserFromContext(r.Context()), id); err != nil {
		h.fail(w, "delete inquiry", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) assign(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var in AssignInput
	if err := httpx.DecodeValid(r, h.validator, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	out, err := h.service.Assign(r.Context(), rbac.UserFromContext(r.Context()), id, in)
	if err != nil {
		h.fail(w, "assign inquiry", err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var in StatusInput
	if err := httpx.DecodeValid(r, h.validator, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	out, err := h.service.UpdateStatus(r.Context(), rbac.UserFromContext(r.Context()), id, in)
	if err != nil {
		h.fail(w, "update status", err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	out, err := h.service.Cancel(r.Context(), rbac.UserFromContext(r.Context()), id)
	if err != nil {
		h.fail(w, "cancel inquiry", err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) price(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var in PriceInput
	if err := httpx.DecodeValid(r, h.validator, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	out, err := h.service.EditPrice(r.Context(), rbac.UserFromContext(r.Context()), id, in)
	if err != nil {
		h.fail(w, "edit price", err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) feedback(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var in FeedbackInput
	if err := httpx.DecodeValid(r, h.validator, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	out, err := h.service.SubmitFeedback(r.Context(), rbac.UserFromContext(r.Context()), id, in)
	if err != nil {
		h.fail(w, "submit feedback", err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) collect(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var in CollectionInput
	if err := httpx.DecodeValid(r, h.validator, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	out, err := h.service.RecordCollection(r.Context(), rbac.UserFromContext(r.Context()), id, in)
	if err != nil {
		h.fail(w, "record collection", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, out)
}

func (h *Handler) collections(w http.ResponseWriter, r *http.Request) {
	var id int64
	if chi.URLParam(r, "id") != "" {
		var ok bool
		if id, ok = idParam(w, r); !ok {
			return
		}
	}
	out, err := h.service.Collections(r.Context(), rbac.UserFromContext(r.Context()), id)
	if err != nil {
		h.fail(w, "list collections", err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) report(w http.ResponseWriter, r *http.Request) {
	var from, to time.Time
	query := r.URL.Query()
	for key, dst := range map[string]*time.Time{"from": &from, "to": &to} {
		raw := query.Get(key)
		if raw == "" {
			continue
		}
		parsed, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid "+key+" date")
			return
		}
		*dst = parsed
	}
	if !to.IsZero() {
		to = to.Add(24 * time.Hour)
	}
	out, err := h.service.Report(r.Context(), rbac.UserFromContext(r.Context()), from, to)
	if err != nil {
		h.fail(w, "report", err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Warn(op, slog.Any("error", err))
	httpx.RespondError(w, err)
}

func idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid inquiry id")
		return 0, false
	}
	return id, true
}

func paging(r *http.Request) (limit, offset int) {
	limit = 50
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 200 {
		limit = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v > 0 {
		offset = v
	}
	return limit, offset
}
