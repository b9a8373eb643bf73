package authhttp

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"

	"github.com/kirim-crm/kirim-crm/internal/auth"
	"github.com/kirim-crm/kirim-crm/internal/guard"
	"github.com/kirim-crm/kirim-crm/internal/shared"
	"github.com/kirim-crm/kirim-crm/internal/view"
	"github.com/kirim-crm/kirim-crm/jobs"
)

// Handler serves the authentication pages and actions: sign-in, sign-out,
// registration, password reset and profile updates.
type Handler struct {
	store     *auth.Store
	sessions  *shared.SessionManager
	csrf      *shared.CSRFManager
	templates *view.Engine
	urls      *guard.URLChecker
	activity  *guard.ActivityTracker
	broadcast *guard.Broadcaster
	audit     *shared.AuditLogger
	tasks     *asynq.Client
	validate  *validator.Validate
	logger    *slog.Logger
}

// HandlerParams collects the handler's dependencies.
type HandlerParams struct {
	Store       *auth.Store
	Sessions    *shared.SessionManager
	CSRF        *shared.CSRFManager
	Templates   *view.Engine
	URLs        *guard.URLChecker
	Activity    *guard.ActivityTracker
	Broadcaster *guard.Broadcaster
	Audit       *shared.AuditLogger
	Tasks       *asynq.Client
	Logger      *slog.Logger
}

// NewHandler constructs a Handler.
func NewHandler(p HandlerParams) *Handler {
	return &Handler{
		store:     p.Store,
		sessions:  p.Sessions,
		csrf:      p.CSRF,
		templates: p.Templates,
		urls:      p.URLs,
		activity:  p.Activity,
		broadcast: p.Broadcaster,
		audit:     p.Audit,
		tasks:     p.Tasks,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		logger:    p.Logger,
	}
}

type loginForm struct {
	Email     string `validate:"required,email"`
	Password  string `validate:"required,min=6"`
	ReturnURL string
}

type signupForm struct {
	Name     string `validate:"required,min=2,max=120"`
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=6"`
}

type resetForm struct {
	Email string `validate:"required,email"`
}

type profileForm struct {
	Name string `validate:"required,min=2,max=120"`
}

// GuardedRoutes registers the routes that must run behind the Guard
// middleware: the login page itself and the profile pages.
func (h *Handler) GuardedRoutes(r chi.Router) {
	r.Get(guard.LoginPath, h.showLogin)
	r.Post(guard.LoginPath, h.handleLogin)
	r.Get("/profile", h.showProfile)
	r.Post("/profile", h.handleProfile)
}

// Routes registers the remaining authentication endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/logout", h.handleLogout)
	r.Get("/signup", h.showSignup)
	r.Post("/signup", h.handleSignup)
	r.Get("/reset-password", h.showResetPassword)
	r.Post("/reset-password", h.handleResetPassword)
	r.Post("/session/expired", h.handleExpiredRetry)
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	h.renderLogin(w, r, "", r.URL.Query().Get("returnUrl"), http.StatusOK)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := loginForm{
		Email:     r.PostFormValue("email"),
		Password:  r.PostFormValue("password"),
		ReturnURL: r.PostFormValue("returnUrl"),
	}
	if err := h.validate.Struct(form); err != nil {
		h.renderLogin(w, r, "Email atau kata sandi tidak valid", form.ReturnURL, http.StatusUnprocessableEntity)
		return
	}

	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	user, msg := h.store.SignIn(r.Context(), sess.ID, auth.Credentials{
		Email:    form.Email,
		Password: form.Password,
	})
	if msg != "" {
		h.renderLogin(w, r, msg, form.ReturnURL, http.StatusUnprocessableEntity)
		return
	}

	sess.SetUser(user.ID)
	h.activity.UpdateLastActivity(r.Context(), sess.ID)
	sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Selamat datang, " + user.Name})
	h.recordAudit(r, user.ID, "auth.login", "user", user.ID, nil)

	target := h.urls.ValidateReturnURL(form.ReturnURL)
	if target == "" {
		target = guard.DefaultHomePath
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		http.Redirect(w, r, guard.LoginPath, http.StatusSeeOther)
		return
	}
	userID := sess.User()

	if msg := h.store.SignOut(r.Context(), sess.ID); msg != "" {
		// Navigation proceeds regardless; a failed provider call must never
		// trap the user in a signed-in shell.
		h.logger.Warn("sign out reported a problem", slog.String("message", msg))
	}
	h.activity.ClearAuthStorage(r.Context(), sess.ID)
	if userID != "" {
		h.broadcast.SignalLogout(r.Context(), userID)
		h.recordAudit(r, userID, "auth.logout", "user", userID, nil)
	}
	h.store.Forget(sess.ID)
	h.sessions.Destroy(sess)

	http.Redirect(w, r, guard.LoginPath, http.StatusSeeOther)
}

func (h *Handler) showSignup(w http.ResponseWriter, r *http.Request) {
	h.renderSignup(w, r, "", http.StatusOK)
}

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := signupForm{
		Name:     r.PostFormValue("name"),
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
	}
	if err := h.validate.Struct(form); err != nil {
		h.renderSignup(w, r, "Periksa kembali data pendaftaran Anda", http.StatusUnprocessableEntity)
		return
	}

	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	// Self-service registration always creates an operator. Elevated roles
	// are granted by an admin afterwards.
	user, msg := h.store.SignUp(r.Context(), sess.ID, auth.SignUpParams{
		Name:     form.Name,
		Email:    form.Email,
		Password: form.Password,
		Role:     auth.RoleOperator,
	})
	if msg != "" {
		h.renderSignup(w, r, msg, http.StatusUnprocessableEntity)
		return
	}

	sess.SetUser(user.ID)
	h.activity.UpdateLastActivity(r.Context(), sess.ID)
	sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Pendaftaran berhasil"})
	h.recordAudit(r, user.ID, "auth.signup", "user", user.ID, nil)

	http.Redirect(w, r, guard.DefaultHomePath, http.StatusSeeOther)
}

func (h *Handler) showResetPassword(w http.ResponseWriter, r *http.Request) {
	h.renderReset(w, r, "", false, http.StatusOK)
}

func (h *Handler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := resetForm{Email: r.PostFormValue("email")}
	if err := h.validate.Struct(form); err != nil {
		h.renderReset(w, r, "Alamat email tidak valid", false, http.StatusUnprocessableEntity)
		return
	}

	if msg := h.store.ResetPassword(r.Context(), form.Email); msg != "" {
		h.renderReset(w, r, msg, false, http.StatusUnprocessableEntity)
		return
	}
	if h.tasks != nil {
		if _, err := h.tasks.EnqueueContext(r.Context(), jobs.NewPasswordResetEmailTask(form.Email)); err != nil {
			h.logger.Error("enqueue reset email", slog.Any("error", err))
		}
	}
	h.recordAudit(r, "", "auth.password_reset_requested", "user", form.Email, nil)
	h.renderReset(w, r, "", true, http.StatusOK)
}

func (h *Handler) showProfile(w http.ResponseWriter, r *http.Request) {
	h.renderProfile(w, r, "", http.StatusOK)
}

func (h *Handler) handleProfile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := profileForm{Name: r.PostFormValue("name")}
	if err := h.validate.Struct(form); err != nil {
		h.renderProfile(w, r, "Nama tidak valid", http.StatusUnprocessableEntity)
		return
	}

	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	user, msg := h.store.UpdateProfile(r.Context(), sess.ID, auth.ProfileUpdate{Name: &form.Name})
	if msg != "" {
		h.renderProfile(w, r, msg, http.StatusUnprocessableEntity)
		return
	}
	sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Profil berhasil diperbarui"})
	h.recordAudit(r, user.ID, "auth.profile_updated", "user", user.ID, nil)
	http.Redirect(w, r, "/profile", http.StatusSeeOther)
}

// handleExpiredRetry finishes an expired session: clears the stale auth
// records, then sends the browser back to login with the interrupted path
// preserved as the return URL.
func (h *Handler) handleExpiredRetry(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	from := guard.SanitizePath(r.PostFormValue("from"))
	if sess != nil {
		userID := sess.User()
		h.activity.ClearAuthStorage(r.Context(), sess.ID)
		if msg := h.store.SignOut(r.Context(), sess.ID); msg != "" {
			h.logger.Warn("forced sign out reported a problem", slog.String("message", msg))
		}
		h.store.Forget(sess.ID)
		h.sessions.Destroy(sess)
		if userID != "" {
			h.recordAudit(r, userID, "auth.session_expired", "user", userID, map[string]any{"from": from})
		}
	}
	http.Redirect(w, r, h.urls.LoginURL(from), http.StatusSeeOther)
}

func (h *Handler) renderLogin(w http.ResponseWriter, r *http.Request, errMsg, returnURL string, status int) {
	data := h.baseData(r, "Masuk")
	data.Data = map[string]any{
		"Error":     errMsg,
		"ReturnURL": returnURL,
		"Email":     r.PostFormValue("email"),
	}
	h.render(w, "pages/login.html", data, status)
}

func (h *Handler) renderSignup(w http.ResponseWriter, r *http.Request, errMsg string, status int) {
	data := h.baseData(r, "Daftar")
	data.Data = map[string]any{
		"Error": errMsg,
		"Name":  r.PostFormValue("name"),
		"Email": r.PostFormValue("email"),
	}
	h.render(w, "pages/signup.html", data, status)
}

func (h *Handler) renderReset(w http.ResponseWriter, r *http.Request, errMsg string, sent bool, status int) {
	data := h.baseData(r, "Atur Ulang Kata Sandi")
	data.Data = map[string]any{
		"Error": errMsg,
		"Sent":  sent,
		"Email": r.PostFormValue("email"),
	}
	h.render(w, "pages/reset_password.html", data, status)
}

func (h *Handler) renderProfile(w http.ResponseWriter, r *http.Request, errMsg string, status int) {
	sess := shared.SessionFromContext(r.Context())
	snap := auth.Snapshot{}
	if sess != nil {
		snap = h.store.Snapshot(sess.ID)
	}
	data := h.baseData(r, "Profil")
	data.Data = map[string]any{
		"Error": errMsg,
		"User":  snap.User,
	}
	h.render(w, "pages/profile.html", data, status)
}

func (h *Handler) baseData(r *http.Request, title string) view.TemplateData {
	data := view.TemplateData{
		Title:       title,
		CurrentPath: r.URL.Path,
	}
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return data
	}
	if token, err := h.csrf.EnsureToken(r.Context(), sess); err == nil {
		data.CSRFToken = token
	}
	data.Flash = sess.PopFlash()
	if snap := h.store.Snapshot(sess.ID); snap.IsAuthenticated() {
		data.UserName = snap.User.Name
		data.UserRole = string(snap.User.Role)
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

func (h *Handler) recordAudit(r *http.Request, actorID, action, entity, entityID string, meta map[string]any) {
	if h.audit == nil {
		return
	}
	if err := h.audit.Record(r.Context(), shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
		Meta:     meta,
	}); err != nil {
		h.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
