package shared

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSessionManager(t *testing.T) (*SessionManager, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSessionManager(client, "kirim_session", "secret", time.Hour, false), mr, client
}

func TestLoadCreatesNewSession(t *testing.T) {
	sm, _, _ := newSessionManager(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(context.Background(), req)
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)
	assert.True(t, sess.isNew)
}

func TestCommitPersistsAndSetsCookie(t *testing.T) {
	sm, mr, client := newSessionManager(t)
	ctx := context.Background()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(ctx, req)
	require.NoError(t, err)
	sess.Set("k", "v")
	sess.SetUser("u-1")

	rec := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, rec, req, sess))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "kirim_session", cookies[0].Name)
	assert.Equal(t, sess.ID, cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)

	require.True(t, mr.Exists("session:"+sess.ID))
	members, err := client.SMembers(ctx, "session_user:u-1").Result()
	require.NoError(t, err)
	assert.Contains(t, members, sess.ID)
}

func TestLoadRoundTrip(t *testing.T) {
	sm, _, _ := newSessionManager(t)
	ctx := context.Background()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(ctx, req)
	require.NoError(t, err)
	sess.Set("lang", "id")
	sess.SetUser("u-1")
	sess.AddFlash(FlashMessage{Kind: "success", Message: "halo"})

	rec := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, rec, req, sess))

	again := httptest.NewRequest(http.MethodGet, "/", nil)
	again.AddCookie(rec.Result().Cookies()[0])
	loaded, err := sm.Load(ctx, again)
	require.NoError(t, err)
	assert.False(t, loaded.isNew)
	assert.Equal(t, "id", loaded.Get("lang"))
	assert.Equal(t, "u-1", loaded.User())

	flash := loaded.PopFlash()
	require.NotNil(t, flash)
	assert.Equal(t, "halo", flash.Message)
	assert.Nil(t, loaded.PopFlash())
}

func TestLoadRevokedSessionIsFresh(t *testing.T) {
	sm, _, _ := newSessionManager(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "kirim_session", Value: "gone-id"})
	sess, err := sm.Load(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, sess.isNew)
	assert.Equal(t, "gone-id", sess.ID)
	assert.Empty(t, sess.User())
}

func TestDestroyRemovesSessionAndIndex(t *testing.T) {
	sm, mr, _ := newSessionManager(t)
	ctx := context.Background()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(ctx, req)
	require.NoError(t, err)
	sess.SetUser("u-1")

	rec := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, rec, req, sess))
	require.True(t, mr.Exists("session:"+sess.ID))

	sm.Destroy(sess)
	rec2 := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, rec2, req, sess))

	assert.False(t, mr.Exists("session:"+sess.ID))
	cookies := rec2.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge)
}

func TestRevokeUserSessions(t *testing.T) {
	sm, mr, client := newSessionManager(t)
	ctx := context.Background()

	for _, id := range []string{"s1", "s2"} {
		require.NoError(t, mr.Set("session:"+id, "{}"))
		require.NoError(t, client.SAdd(ctx, "session_user:u-1", id).Err())
	}

	revoked, err := sm.RevokeUserSessions(ctx, "u-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"s1", "s2"}, revoked)
	assert.False(t, mr.Exists("session:s1"))
	assert.False(t, mr.Exists("session:s2"))
	assert.False(t, mr.Exists("session_user:u-1"))

	// Unknown users revoke nothing.
	revoked, err = sm.RevokeUserSessions(ctx, "ghost")
	require.NoError(t, err)
	assert.Empty(t, revoked)
}
