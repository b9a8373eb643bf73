package customers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/kirim-crm/kirim-crm/internal/auth"
	"github.com/kirim-crm/kirim-crm/internal/shared"
	"github.com/kirim-crm/kirim-crm/internal/view"
)

// Handler serves the customer pages.
type Handler struct {
	repo      *Repository
	templates *view.Engine
	csrf      *shared.CSRFManager
	validate  *validator.Validate
	logger    *slog.Logger
}

// NewHandler constructs a Handler.
func NewHandler(repo *Repository, templates *view.Engine, csrf *shared.CSRFManager, logger *slog.Logger) *Handler {
	return &Handler{
		repo:      repo,
		templates: templates,
		csrf:      csrf,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		logger:    logger,
	}
}

// Routes registers customer routes. gate maps a feature action to the
// middleware enforcing it.
func (h *Handler) Routes(r chi.Router, gate func(feature string) func(http.Handler) http.Handler) {
	r.With(gate("customers:read")).Get("/", h.list)
	r.With(gate("customers:create")).Get("/new", h.showNew)
	r.With(gate("customers:create")).Post("/", h.create)
	r.With(gate("customers:read")).Get("/{customerID}", h.detail)
	r.With(gate("customers:update")).Post("/{customerID}", h.update)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	items, err := h.repo.List(r.Context(), 100, 0)
	if err != nil {
		h.logger.Error("list customers", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	data := h.baseData(r, "Pelanggan")
	data.Data = map[string]any{"Customers": items}
	h.render(w, "pages/customers_list.html", data, http.StatusOK)
}

func (h *Handler) showNew(w http.ResponseWriter, r *http.Request) {
	data := h.baseData(r, "Pelanggan Baru")
	data.Data = map[string]any{}
	h.render(w, "pages/customers_new.html", data, http.StatusOK)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	in := CreateInput{
		Name:    r.PostFormValue("name"),
		Email:   r.PostFormValue("email"),
		Phone:   r.PostFormValue("phone"),
		Address: r.PostFormValue("address"),
	}
	if err := h.validate.Struct(in); err != nil {
		h.renderNewError(w, r, in, "Periksa kembali data pelanggan")
		return
	}
	created, err := h.repo.Create(r.Context(), in)
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			h.renderNewError(w, r, in, "Email pelanggan sudah terdaftar")
			return
		}
		h.logger.Error("create customer", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Pelanggan " + created.Name + " berhasil dibuat"})
	}
	http.Redirect(w, r, "/customers", http.StatusSeeOther)
}

func (h *Handler) detail(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "customerID")
	customer, err := h.repo.FindByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.logger.Error("load customer", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	data := h.baseData(r, customer.Name)
	data.Data = map[string]any{"Customer": customer}
	h.render(w, "pages/customers_detail.html", data, http.StatusOK)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	id := chi.URLParam(r, "customerID")
	in := UpdateInput{}
	if v := r.PostFormValue("name"); v != "" {
		in.Name = &v
	}
	if v := r.PostFormValue("phone"); v != "" {
		in.Phone = &v
	}
	if v := r.PostFormValue("address"); v != "" {
		in.Address = &v
	}
	if err := h.validate.Struct(in); err != nil {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}
	if _, err := h.repo.Update(r.Context(), id, in); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.logger.Error("update customer", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Pelanggan berhasil diperbarui"})
	}
	http.Redirect(w, r, "/customers/"+id, http.StatusSeeOther)
}

func (h *Handler) renderNewError(w http.ResponseWriter, r *http.Request, in CreateInput, msg string) {
	data := h.baseData(r, "Pelanggan Baru")
	data.Data = map[string]any{"Error": msg, "Form": in}
	h.render(w, "pages/customers_new.html", data, http.StatusUnprocessableEntity)
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
