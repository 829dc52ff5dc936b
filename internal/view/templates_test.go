package view

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/libris-app/libris/testing"
)

func TestNewEngine(t *testing.T) {
	engine, err := NewEngine()
	assert.NoError(t, err, "Templates should parse without error")
	assert.NotNil(t, engine)
}

func TestRenderNestedPage(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	err = engine.Render(rec, "pages/forbidden.html", TemplateData{Title: "Forbidden"})
	require.NoError(t, err)
	assert.Contains(t, rec.Body.String(), "403 Forbidden")
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
}
