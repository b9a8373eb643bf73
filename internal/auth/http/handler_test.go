package authhttp

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirim-crm/kirim-crm/internal/auth"
	"github.com/kirim-crm/kirim-crm/internal/guard"
	"github.com/kirim-crm/kirim-crm/internal/shared"
	"github.com/kirim-crm/kirim-crm/internal/view"
	_ "github.com/kirim-crm/kirim-crm/testing"
)

type fixedProvider struct {
	user     *auth.User
	password string
}

func (p *fixedProvider) SignIn(ctx context.Context, creds auth.Credentials) (*auth.User, error) {
	if p.user != nil && creds.Email == p.user.Email && creds.Password == p.password {
		return p.user, nil
	}
	return nil, shared.ErrInvalidCredentials
}

func (p *fixedProvider) SignUp(ctx context.Context, params auth.SignUpParams) (*auth.User, error) {
	return &auth.User{ID: "new-1", Email: params.Email, Name: params.Name, Role: params.Role, IsActive: true}, nil
}

func (p *fixedProvider) SignOut(ctx context.Context, userID string) error { return nil }

func (p *fixedProvider) GetCurrentUser(ctx context.Context, userRef string) (*auth.User, error) {
	if p.user != nil && userRef == p.user.ID {
		return p.user, nil
	}
	return nil, nil
}

func (p *fixedProvider) OnAuthStateChange(fn func(auth.ChangeEvent)) func() {
	return func() {}
}

func (p *fixedProvider) ResetPassword(ctx context.Context, email string) error { return nil }

func (p *fixedProvider) UpdateProfile(ctx context.Context, userID string, update auth.ProfileUpdate) (*auth.User, error) {
	return p.user, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	router   chi.Router
	store    *auth.Store
	sessions *shared.SessionManager
	tracker  *guard.ActivityTracker
	redis    *miniredis.Miniredis
	client   *redis.Client
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	provider := &fixedProvider{
		user:     &auth.User{ID: "u-1", Email: "op@kirim.id", Name: "Op", Role: auth.RoleOperator, IsActive: true},
		password: "rahasia1",
	}
	store := auth.NewStore(provider, nil)
	sessions := shared.NewSessionManager(client, "kirim_session", "secret", time.Hour, false)
	csrf := shared.NewCSRFManager("csrf-secret")
	templates, err := view.NewEngine()
	require.NoError(t, err)
	urls, err := guard.NewURLChecker("https://crm.kirim.id", nil)
	require.NoError(t, err)
	tracker := guard.NewActivityTracker(client, nil, guard.DefaultMaxIdle)
	broadcaster := guard.NewBroadcaster(client, nil)

	h := NewHandler(HandlerParams{
		Store:       store,
		Sessions:    sessions,
		CSRF:        csrf,
		Templates:   templates,
		URLs:        urls,
		Activity:    tracker,
		Broadcaster: broadcaster,
		Logger:      testLogger(),
	})

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			sess, err := sessions.Load(req.Context(), req)
			require.NoError(t, err)
			ctx := shared.ContextWithSession(req.Context(), sess)
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	h.GuardedRoutes(r)
	h.Routes(r)

	return &fixture{router: r, store: store, sessions: sessions, tracker: tracker, redis: mr, client: client}
}

func postForm(t *testing.T, router chi.Router, path string, form url.Values, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestShowLoginPage(t *testing.T) {
	fx := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/login?returnUrl=%2Fjobs", nil)
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Masuk")
	assert.Contains(t, body, `name="returnUrl" value="/jobs"`)
}

func TestLoginSuccessRedirectsHome(t *testing.T) {
	fx := newFixture(t)

	rec := postForm(t, fx.router, "/login", url.Values{
		"email":    {"op@kirim.id"},
		"password": {"rahasia1"},
	}, nil)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
}

func TestLoginSuccessHonorsWhitelistedReturnURL(t *testing.T) {
	fx := newFixture(t)

	rec := postForm(t, fx.router, "/login", url.Values{
		"email":     {"op@kirim.id"},
		"password":  {"rahasia1"},
		"returnUrl": {"/customers"},
	}, nil)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/customers", rec.Header().Get("Location"))
}

func TestLoginSuccessRejectsForeignReturnURL(t *testing.T) {
	fx := newFixture(t)

	rec := postForm(t, fx.router, "/login", url.Values{
		"email":     {"op@kirim.id"},
		"password":  {"rahasia1"},
		"returnUrl": {"https://evil.example.com/jobs"},
	}, nil)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
}

func TestLoginFailureShowsLocalizedMessage(t *testing.T) {
	fx := newFixture(t)

	rec := postForm(t, fx.router, "/login", url.Values{
		"email":    {"op@kirim.id"},
		"password": {"salah-total"},
	}, nil)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "Email atau kata sandi tidak valid")
}

func TestLoginValidationFailure(t *testing.T) {
	fx := newFixture(t)

	rec := postForm(t, fx.router, "/login", url.Values{
		"email":    {"not-an-email"},
		"password": {"x"},
	}, nil)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func seedSignedInSession(t *testing.T, fx *fixture, sessionID string) *http.Cookie {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, fx.client.Set(ctx, "session:"+sessionID, `{"values":{},"user_id":"u-1"}`, time.Hour).Err())
	require.NoError(t, fx.client.SAdd(ctx, "session_user:u-1", sessionID).Err())
	fx.tracker.UpdateLastActivity(ctx, sessionID)

	_, msg := fx.store.SignIn(ctx, sessionID, auth.Credentials{Email: "op@kirim.id", Password: "rahasia1"})
	require.Empty(t, msg)

	return &http.Cookie{Name: "kirim_session", Value: sessionID}
}

func TestLogoutClearsEverything(t *testing.T) {
	fx := newFixture(t)
	cookie := seedSignedInSession(t, fx, "sess-logout")

	rec := postForm(t, fx.router, "/logout", url.Values{}, cookie)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	assert.False(t, fx.redis.Exists("activity:sess-logout"))
	snap := fx.store.Snapshot("sess-logout")
	assert.False(t, snap.IsAuthenticated())
	assert.False(t, fx.redis.Exists("auth:logout:last"), "logout signal must not persist")
}

func TestExpiredRetryRedirectsToLoginWithReturnURL(t *testing.T) {
	fx := newFixture(t)
	cookie := seedSignedInSession(t, fx, "sess-expired")

	rec := postForm(t, fx.router, "/session/expired", url.Values{
		"from": {"/jobs"},
	}, cookie)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login?returnUrl=%2Fjobs", rec.Header().Get("Location"))
	assert.False(t, fx.redis.Exists("activity:sess-expired"))
	assert.False(t, fx.store.Snapshot("sess-expired").IsAuthenticated())
}

func TestExpiredRetrySanitizesFromPath(t *testing.T) {
	fx := newFixture(t)

	rec := postForm(t, fx.router, "/session/expired", url.Values{
		"from": {"//jobs/"},
	}, nil)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login?returnUrl=%2Fjobs", rec.Header().Get("Location"))
}

func TestSignupCreatesOperator(t *testing.T) {
	fx := newFixture(t)

	rec := postForm(t, fx.router, "/signup", url.Values{
		"name":     {"Kurir Baru"},
		"email":    {"kurir@kirim.id"},
		"password": {"rahasia1"},
	}, nil)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
}

func TestResetPasswordPage(t *testing.T) {
	fx := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/reset-password", nil)
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = postForm(t, fx.router, "/reset-password", url.Values{
		"email": {"op@kirim.id"},
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tautan pengaturan ulang")
}
