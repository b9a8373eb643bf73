package view

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEngineParsesAllTemplates(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)

	pages := []string{
		"pages/login.html",
		"pages/signup.html",
		"pages/reset_password.html",
		"pages/profile.html",
		"pages/home.html",
		"pages/customers_list.html",
		"pages/customers_new.html",
		"pages/customers_detail.html",
		"pages/jobs_list.html",
		"pages/jobs_new.html",
		"pages/jobs_detail.html",
		"pages/reports.html",
		"pages/settings.html",
		"pages/checking.html",
		"pages/session_expired.html",
		"pages/unauthorized.html",
	}
	for _, name := range pages {
		assert.NotNil(t, engine.templates.Lookup(name), name)
	}
}

func TestRenderLoginPage(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	err = engine.Render(rec, "pages/login.html", TemplateData{
		Title:     "Masuk",
		CSRFToken: "tok",
		Data:      map[string]any{"ReturnURL": "/jobs", "Email": ""},
	})
	require.NoError(t, err)

	body := rec.Body.String()
	assert.Contains(t, body, "Masuk")
	assert.Contains(t, body, `value="tok"`)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
}

func TestRenderNavShowsRoleName(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	err = engine.Render(rec, "pages/home.html", TemplateData{
		Title:     "Beranda",
		UserName:  "Dewi",
		UserRole:  "manager",
		CSRFToken: "tok",
		Data:      map[string]any{},
	})
	require.NoError(t, err)

	body := rec.Body.String()
	assert.Contains(t, body, "Dewi")
	assert.Contains(t, body, "Manajer")
}

func TestRenderNilEngine(t *testing.T) {
	var engine *Engine
	assert.Error(t, engine.Render(httptest.NewRecorder(), "pages/home.html", TemplateData{}))
}
