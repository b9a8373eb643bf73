package app

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/kirim-crm/kirim-crm/internal/auth"
	authhttp "github.com/kirim-crm/kirim-crm/internal/auth/http"
	"github.com/kirim-crm/kirim-crm/internal/crm/customers"
	"github.com/kirim-crm/kirim-crm/internal/crm/dashboard"
	crmjobs "github.com/kirim-crm/kirim-crm/internal/crm/jobs"
	"github.com/kirim-crm/kirim-crm/internal/guard"
	"github.com/kirim-crm/kirim-crm/internal/observability"
	"github.com/kirim-crm/kirim-crm/internal/platform/httpx"
	"github.com/kirim-crm/kirim-crm/internal/shared"
	"github.com/kirim-crm/kirim-crm/internal/view"
	"github.com/kirim-crm/kirim-crm/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	Templates        *view.Engine
	SessionManager   *shared.SessionManager
	CSRFManager      *shared.CSRFManager
	Guard            *guard.Guard
	AuthHandler      *authhttp.Handler
	DashboardHandler *dashboard.Handler
	CustomerHandler  *customers.Handler
	JobHandler       *crmjobs.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router.
//
// Every page a signed-in user can see sits behind the Guard middleware, so
// a single navigation check covers the whole surface. Authentication
// actions that must work for anonymous or expired sessions (logout,
// signup, reset, the expired-session retry) are mounted outside it.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	params.AuthHandler.Routes(r)

	gate := params.Guard.RequireFeature

	r.Group(func(r chi.Router) {
		r.Use(params.Guard.Middleware)

		params.AuthHandler.GuardedRoutes(r)

		r.Get("/", params.DashboardHandler.Home)
		r.Get("/dashboard", func(w http.ResponseWriter, req *http.Request) {
			http.Redirect(w, req, "/", http.StatusSeeOther)
		})

		r.Route("/customers", func(sub chi.Router) {
			params.CustomerHandler.Routes(sub, gate)
		})
		r.Route("/jobs", func(sub chi.Router) {
			params.JobHandler.Routes(sub, gate)
		})

		r.With(gate("reports:read")).Get("/reports", params.DashboardHandler.Reports)
		r.With(gate("reports:read")).Get("/api/stats", params.DashboardHandler.StatsJSON)
		r.With(gate("settings:read")).Get("/settings", settingsPage(params))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	return r
}

func settingsPage(params RouterParams) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := view.TemplateData{Title: "Pengaturan", CurrentPath: r.URL.Path}
		if sess := shared.SessionFromContext(r.Context()); sess != nil {
			if token, err := params.CSRFManager.EnsureToken(r.Context(), sess); err == nil {
				data.CSRFToken = token
			}
			data.Flash = sess.PopFlash()
		}
		if user := auth.UserFromContext(r.Context()); user != nil {
			data.UserName = user.Name
			data.UserRole = string(user.Role)
		}
		data.Data = map[string]any{
			"Environment": params.Config.AppEnv,
			"BaseURL":     params.Config.AppBaseURL,
		}
		if err := params.Templates.Render(w, "pages/settings.html", data); err != nil {
			params.Logger.Error("render settings", slog.Any("error", err))
		}
	}
}

// staticCacheHandler wraps a file server with Cache-Control headers so
// browsers keep assets for an hour.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
