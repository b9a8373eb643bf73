package jobs

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/kirim-crm/kirim-crm/internal/auth"
	"github.com/kirim-crm/kirim-crm/internal/crm/customers"
	"github.com/kirim-crm/kirim-crm/internal/shared"
	"github.com/kirim-crm/kirim-crm/internal/view"
)

// Handler serves the delivery job pages.
type Handler struct {
	repo      *Repository
	customers *customers.Repository
	templates *view.Engine
	csrf      *shared.CSRFManager
	validate  *validator.Validate
	logger    *slog.Logger
}

// NewHandler constructs a Handler.
func NewHandler(repo *Repository, customerRepo *customers.Repository, templates *view.Engine, csrf *shared.CSRFManager, logger *slog.Logger) *Handler {
	return &Handler{
		repo:      repo,
		customers: customerRepo,
		templates: templates,
		csrf:      csrf,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		logger:    logger,
	}
}

// Routes registers job routes. gate maps a feature action to the
// middleware enforcing it.
func (h *Handler) Routes(r chi.Router, gate func(feature string) func(http.Handler) http.Handler) {
	r.With(gate("jobs:read")).Get("/", h.list)
	r.With(gate("jobs:create")).Get("/new", h.showNew)
	r.With(gate("jobs:create")).Post("/", h.create)
	r.With(gate("jobs:read")).Get("/{jobID}", h.detail)
	r.With(gate("jobs:update")).Post("/{jobID}/status", h.updateStatus)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	status := Status(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		status = ""
	}
	items, err := h.repo.List(r.Context(), status, 100, 0)
	if err != nil {
		h.logger.Error("list jobs", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	data := h.baseData(r, "Pekerjaan")
	data.Data = map[string]any{
		"Jobs":     items,
		"Filter":   status,
		"Statuses": []Status{StatusNew, StatusInProgress, StatusDone},
	}
	h.render(w, "pages/jobs_list.html", data, http.StatusOK)
}

func (h *Handler) showNew(w http.ResponseWriter, r *http.Request) {
	clients, err := h.customers.List(r.Context(), 200, 0)
	if err != nil {
		h.logger.Error("list customers for job form", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	data := h.baseData(r, "Pekerjaan Baru")
	data.Data = map[string]any{"Customers": clients}
	h.render(w, "pages/jobs_new.html", data, http.StatusOK)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	in := CreateInput{
		CustomerID:  r.PostFormValue("customer_id"),
		Description: r.PostFormValue("description"),
	}
	if err := h.validate.Struct(in); err != nil {
		h.renderNewError(w, r, "Periksa kembali data pekerjaan")
		return
	}
	created, err := h.repo.Create(r.Context(), in)
	if err != nil {
		h.logger.Error("create job", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Pekerjaan untuk " + created.CustomerName + " berhasil dibuat"})
	}
	http.Redirect(w, r, "/jobs", http.StatusSeeOther)
}

func (h *Handler) detail(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	job, err := h.repo.FindByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.logger.Error("load job", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	next, hasNext := transitions[job.Status]
	data := h.baseData(r, "Pekerjaan "+job.CustomerName)
	data.Data = map[string]any{
		"Job":     job,
		"Next":    next,
		"HasNext": hasNext,
	}
	h.render(w, "pages/jobs_detail.html", data, http.StatusOK)
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	id := chi.URLParam(r, "jobID")
	to := Status(r.PostFormValue("status"))
	if _, err := h.repo.UpdateStatus(r.Context(), id, to); err != nil {
		switch {
		case errors.Is(err, shared.ErrNotFound):
			http.NotFound(w, r)
		case errors.Is(err, ErrBadTransition):
			if sess := shared.SessionFromContext(r.Context()); sess != nil {
				sess.AddFlash(shared.FlashMessage{Kind: "error", Message: "Perubahan status tidak diizinkan"})
			}
			http.Redirect(w, r, "/jobs/"+id, http.StatusSeeOther)
		default:
			h.logger.Error("update job status", slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Status pekerjaan diperbarui"})
	}
	http.Redirect(w, r, "/jobs/"+id, http.StatusSeeOther)
}

func (h *Handler) renderNewError(w http.ResponseWriter, r *http.Request, msg string) {
	clients, err := h.customers.List(r.Context(), 200, 0)
	if err != nil {
		clients = nil
	}
	data := h.baseData(r, "Pekerjaan Baru")
	data.Data = map[string]any{"Error": msg, "Customers": clients}
	h.render(w, "pages/jobs_new.html", data, http.StatusUnprocessableEntity)
}

func (h *Handler) baseData(r *http.Request, title string) view.TemplateData {
	data := view.TemplateData{Title: title, CurrentPath: r.URL.Path}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		if token, err := h.csrf.EnsureToken(r.Context(), sess); err == nil {
			data.CSRFToken = token
		}
		data.Flash = sess.PopFlash()
	}
	if user := auth.UserFromContext(r.Context()); user != nil {
		data.UserName = user.Name
		data.UserRole = string(user.Role)
	}
	return data
}

func (h *Handler) render(w http.ResponseWriter, name string, data view.TemplateData, status int) {
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	if err := h.templates.Render(w, name, data); err != nil {
		h.logger.Error("render template", slog.String("template", name), slog.Any("error", err))
	}
}
