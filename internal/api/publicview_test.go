package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelscript/reelscript/internal/model"
)

func (f *apiFixture) view(t *testing.T, publicID string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/s/"+publicID, nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestPublicViewRendersSections(t *testing.T) {
	f := newAPIFixture(t)
	_, err := f.st.Scripts().Upsert(context.Background(), &model.Script{
		RequestHash: "hash-1",
		PublicID:    "Ab3_x9",
		ScriptText:  "[HOOK]\nStop scrolling right now.\n[BODY]\nHere is why this matters.\n[CTA]\nFollow for part two.",
	})
	require.NoError(t, err)

	rec := f.view(t, "Ab3_x9")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Equal(t, "public, max-age=3600", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	body := rec.Body.String()
	assert.Contains(t, body, "Stop scrolling right now.")
	assert.Contains(t, body, "Here is why this matters.")
	assert.Contains(t, body, "Follow for part two.")
	assert.Contains(t, body, "noindex, nofollow")
}

func TestPublicViewEscapesContent(t *testing.T) {
	f := newAPIFixture(t)
	_, err := f.st.Scripts().Upsert(context.Background(), &model.Script{
		RequestHash: "hash-1",
		PublicID:    "Ab3_x9",
		ScriptText:  "[HOOK]\n<script>alert(1)</script>\n[BODY]\nBody.",
	})
	require.NoError(t, err)

	rec := f.view(t, "Ab3_x9")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "<script>alert(1)</script>")
	assert.Contains(t, rec.Body.String(), "&lt;script&gt;")
}

func TestPublicViewUnknownID(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.view(t, "Zz9_qQ")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Script not found")
}

func TestPublicViewRejectsMalformedID(t *testing.T) {
	f := newAPIFixture(t)

	// too short for the mint format
	rec := f.view(t, "abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
