package dashboard

import (
	"log/slog"
	"net/http"

	"github.com/kirim-crm/kirim-crm/internal/auth"
	crmjobs "github.com/kirim-crm/kirim-crm/internal/crm/jobs"
	"github.com/kirim-crm/kirim-crm/internal/platform/httpx"
	"github.com/kirim-crm/kirim-crm/internal/shared"
	"github.com/kirim-crm/kirim-crm/internal/view"
)

// Handler serves the landing page with operation statistics.
type Handler struct {
	service   *Service
	jobs      *crmjobs.Repository
	templates *view.Engine
	csrf      *shared.CSRFManager
	logger    *slog.Logger
}

// NewHandler constructs a Handler.
func NewHandler(service *Service, jobRepo *crmjobs.Repository, templates *view.Engine, csrf *shared.CSRFManager, logger *slog.Logger) *Handler {
	return &Handler{
		service:   service,
		jobs:      jobRepo,
		templates: templates,
		csrf:      csrf,
		logger:    logger,
	}
}

// Reports renders the aggregated report page for managers and admins.
func (h *Handler) Reports(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		h.logger.Error("report stats", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	data := h.baseData(r, "Laporan")
	data.Data = map[string]any{"Stats": stats}
	if err := h.templates.Render(w, "pages/reports.html", data); err != nil {
		h.logger.Error("render reports", slog.Any("error", err))
	}
}

// StatsJSON serves the report statistics as JSON for export tooling.
func (h *Handler) StatsJSON(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		h.logger.Error("stats export", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}

// Home renders the dashboard.
func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		h.logger.Error("dashboard stats", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	recent, err := h.jobs.List(r.Context(), "", 5, 0)
	if err != nil {
		h.logger.Error("recent jobs", slog.Any("error", err))
		recent = nil
	}

	data := h.baseData(r, "Dasbor")
	data.Data = map[string]any{
		"Stats":      stats,
		"RecentJobs": recent,
	}
	if err := h.templates.Render(w, "pages/home.html", data); err != nil {
		h.logger.Error("render dashboard", slog.Any("error", err))
	}
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
