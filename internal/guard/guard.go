package guard

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/kirim-crm/kirim-crm/internal/auth"
	"github.com/kirim-crm/kirim-crm/internal/shared"
	"github.com/kirim-crm/kirim-crm/internal/view"
)

// DecisionKind enumerates the outcomes of one navigation check.
type DecisionKind int

const (
	DecisionChecking DecisionKind = iota
	DecisionSessionExpired
	DecisionRedirectLogin
	DecisionRedirectReturn
	DecisionUnauthorized
	DecisionAllowed
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionChecking:
		return "checking"
	case DecisionSessionExpired:
		return "session_expired"
	case DecisionRedirectLogin:
		return "redirect_login"
	case DecisionRedirectReturn:
		return "redirect_return"
	case DecisionUnauthorized:
		return "unauthorized"
	case DecisionAllowed:
		return "allowed"
	}
	return "unknown"
}

// Decision is the guard's verdict for one navigation attempt.
type Decision struct {
	Kind          DecisionKind
	Target        string // redirect destination, when applicable
	RequiredRoles []auth.Role
}

// Input gathers everything Evaluate needs. Building it is the messy part;
// the decision itself is a pure function so the transition table can be
// tested without HTTP.
type Input struct {
	Path             string
	ReturnURLParam   string
	Snapshot         auth.Snapshot
	LastActivity     time.Time
	ActivityRecorded bool
}

// Guard decides, for every navigation, whether to serve the requested
// content, redirect, or render a blocking state.
type Guard struct {
	store     *auth.Store
	activity  *ActivityTracker
	urls      *URLChecker
	templates *view.Engine
	csrf      *shared.CSRFManager
	logger    *slog.Logger

	// OnDecision, when set, observes every verdict (metrics).
	OnDecision func(kind string)
}

// New constructs a Guard.
func New(store *auth.Store, activity *ActivityTracker, urls *URLChecker, templates *view.Engine, csrf *shared.CSRFManager, logger *slog.Logger) *Guard {
	return &Guard{
		store:     store,
		activity:  activity,
		urls:      urls,
		templates: templates,
		csrf:      csrf,
		logger:    logger,
	}
}

// Evaluate runs the transition algorithm over a snapshot of the world.
// The ordering is load-bearing:
//  1. never decide while the auth state is still resolving;
//  2. staleness outranks everything an authenticated user could reach;
//  3. unauthenticated access to protected paths goes to login with a
//     return URL;
//  4. authenticated users never see the login page;
//  5. role restrictions apply only after authentication is settled;
//  6. everything else is allowed.
func (g *Guard) Evaluate(in Input) Decision {
	path := SanitizePath(in.Path)

	if in.Snapshot.State == auth.StateUninitialized || in.Snapshot.State == auth.StateLoading {
		return Decision{Kind: DecisionChecking}
	}

	authed := in.Snapshot.IsAuthenticated()

	if authed && g.activity.IsSessionExpired(in.LastActivity, in.ActivityRecorded) {
		return Decision{Kind: DecisionSessionExpired}
	}

	policy := PolicyFor(path)

	if !authed && policy.RequireAuth {
		return Decision{Kind: DecisionRedirectLogin, Target: g.urls.LoginURL(path)}
	}

	if authed && path == LoginPath {
		target := g.urls.ValidateReturnURL(in.ReturnURLParam)
		if target == "" {
			target = DefaultHomePath
		}
		return Decision{Kind: DecisionRedirectReturn, Target: target}
	}

	if authed && len(policy.AllowedRoles) > 0 && !RoleAllowed(path, in.Snapshot.User.Role) {
		return Decision{Kind: DecisionUnauthorized, RequiredRoles: policy.AllowedRoles}
	}

	return Decision{Kind: DecisionAllowed}
}

// Middleware applies Evaluate to every request passing through it and
// renders or redirects accordingly. Successful entry into allowed content
// while authenticated refreshes the activity heartbeat.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		sess := shared.SessionFromContext(ctx)
		sessionID, userRef := "", ""
		if sess != nil {
			sessionID = sess.ID
			userRef = sess.User()
		}

		snap := g.store.Resolve(ctx, sessionID, userRef)
		last, recorded := time.Time{}, false
		if snap.IsAuthenticated() {
			last, recorded = g.activity.LastActivity(ctx, sessionID)
		}

		decision := g.Evaluate(Input{
			Path:             r.URL.Path,
			ReturnURLParam:   r.URL.Query().Get("returnUrl"),
			Snapshot:         snap,
			LastActivity:     last,
			ActivityRecorded: recorded,
		})
		if g.OnDecision != nil {
			g.OnDecision(decision.Kind.String())
		}

		switch decision.Kind {
		case DecisionChecking:
			g.renderChecking(w, r)
		case DecisionSessionExpired:
			g.renderSessionExpired(w, r, sess)
		case DecisionRedirectLogin, DecisionRedirectReturn:
			// 303 so the browser replaces the attempted navigation instead
			// of re-posting it; no back-button trap.
			http.Redirect(w, r, decision.Target, http.StatusSeeOther)
		case DecisionUnauthorized:
			g.renderUnauthorized(w, r, sess, snap, decision.RequiredRoles)
		case DecisionAllowed:
			if snap.IsAuthenticated() {
				g.activity.UpdateLastActivity(ctx, sessionID)
				ctx = auth.ContextWithUser(ctx, snap.User)
				r = r.WithContext(ctx)
			}
			next.ServeHTTP(w, r)
		}
	})
}

func (g *Guard) renderChecking(w http.ResponseWriter, r *http.Request) {
	// The initial user fetch is still in flight; tell the browser to ask
	// again shortly rather than leak protected content early.
	w.Header().Set("Refresh", "1")
	data := view.TemplateData{
		Title:       "Memeriksa sesi",
		CurrentPath: r.URL.Path,
	}
	if err := g.templates.Render(w, "pages/checking.html", data); err != nil {
		g.logger.Error("render checking", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
	}
}

func (g *Guard) renderSessionExpired(w http.ResponseWriter, r *http.Request, sess *shared.Session) {
	csrfToken := ""
	if sess != nil {
		csrfToken, _ = g.csrf.EnsureToken(r.Context(), sess)
	}
	data := view.TemplateData{
		Title:       "Sesi berakhir",
		CSRFToken:   csrfToken,
		CurrentPath: r.URL.Path,
		Data: map[string]any{
			"From": SanitizePath(r.URL.Path),
		},
	}
	w.WriteHeader(http.StatusUnauthorized)
	if err := g.templates.Render(w, "pages/session_expired.html", data); err != nil {
		g.logger.Error("render session expired", slog.Any("error", err))
	}
}

func (g *Guard) renderUnauthorized(w http.ResponseWriter, r *http.Request, sess *shared.Session, snap auth.Snapshot, required []auth.Role) {
	currentRole := auth.Role("")
	if snap.User != nil {
		currentRole = snap.User.Role
	}
	csrfToken := ""
	if sess != nil {
		csrfToken, _ = g.csrf.EnsureToken(r.Context(), sess)
	}
	data := view.TemplateData{
		Title:       "Akses ditolak",
		CSRFToken:   csrfToken,
		CurrentPath: r.URL.Path,
		Data: map[string]any{
			"CurrentRole":   currentRole,
			"RequiredRoles": required,
		},
	}
	w.WriteHeader(http.StatusForbidden)
	if err := g.templates.Render(w, "pages/unauthorized.html", data); err != nil {
		g.logger.Error("render unauthorized", slog.Any("error", err))
	}
}

// RequireFeature gates a handler on a feature action from the capability
// table. It assumes the surrounding Guard middleware has already settled
// authentication; a missing user is treated as forbidden.
func (g *Guard) RequireFeature(feature string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := shared.SessionFromContext(r.Context())
			sessionID := ""
			if sess != nil {
				sessionID = sess.ID
			}
			snap := g.store.Snapshot(sessionID)
			if !snap.IsAuthenticated() || !Can(snap.User.Role, feature) {
				if g.OnDecision != nil {
					g.OnDecision(DecisionUnauthorized.String())
				}
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
