package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelscript/reelscript/internal/model"
)

func seedGeneration(t *testing.T, f *apiFixture, requestHash, publicID string) {
	t.Helper()
	ctx := context.Background()
	_, err := f.st.Scripts().Upsert(ctx, &model.Script{
		RequestHash:  requestHash,
		PublicID:     publicID,
		SubscriberID: "1001",
		ScriptText:   "[HOOK]\nStop scrolling.\n[BODY]\nThe middle.\n[CTA]\nFollow.",
	})
	require.NoError(t, err)
	require.NoError(t, f.st.Dataset().Insert(ctx, &model.DatasetRecord{
		ID:            "rec-1",
		SchemaVersion: model.DatasetRecordSchemaVersion,
		RequestHash:   requestHash,
		SubscriberID:  "1001",
		ScriptText:    "[HOOK]\nStop scrolling.",
		CreationTime:  time.Now(),
	}))
}

func (f *apiFixture) submitFeedback(t *testing.T, body map[string]interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/feedback", bytes.NewReader(raw))
	req.RemoteAddr = "198.51.100.7:4242"
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestFeedbackAttachesAndScores(t *testing.T) {
	f := newAPIFixture(t)
	seedGeneration(t, f, "hash-1", "Ab3_x9")

	rec := f.submitFeedback(t, map[string]interface{}{
		"subscriber_id":  "1001",
		"request_hash":   "hash-1",
		"overall_rating": 5,
		"feedback_text":  "nailed the tone",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	ctx := context.Background()
	records, err := f.st.Dataset().List(ctx, 10, 0, false)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.NotNil(t, records[0].OverallRating)
	assert.Equal(t, 5, *records[0].OverallRating)
	assert.True(t, records[0].Validated)

	sc, err := f.st.Scripts().GetByRequestHash(ctx, "hash-1")
	require.NoError(t, err)
	require.NotNil(t, sc.QualityScore)
	assert.InDelta(t, 5.0, *sc.QualityScore, 0.001)

	mem, err := f.st.UserMemory().Get(ctx, "1001")
	require.NoError(t, err)
	assert.Equal(t, 1, mem.PositiveCount)
	require.NotEmpty(t, mem.LikedHooks)
	assert.Contains(t, mem.LikedHooks[0], "Stop scrolling")
}

func TestFeedbackResolvesByPublicID(t *testing.T) {
	f := newAPIFixture(t)
	seedGeneration(t, f, "hash-1", "Ab3_x9")

	rec := f.submitFeedback(t, map[string]interface{}{
		"subscriber_id":  "1001",
		"public_id":      "Ab3_x9",
		"overall_rating": 2,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	mem, err := f.st.UserMemory().Get(context.Background(), "1001")
	require.NoError(t, err)
	assert.Equal(t, 1, mem.NegativeCount)
}

func TestFeedbackValidation(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.submitFeedback(t, map[string]interface{}{
		"subscriber_id":  "1001",
		"request_hash":   "hash-1",
		"overall_rating": 6,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// no target at all
	rec = f.submitFeedback(t, map[string]interface{}{
		"subscriber_id": "1001",
		"feedback_text": "no target provided",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFeedbackUnknownTarget(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.submitFeedback(t, map[string]interface{}{
		"subscriber_id":  "1001",
		"request_hash":   "no-such-hash",
		"overall_rating": 4,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDatasetExportCSV(t *testing.T) {
	f := newAPIFixture(t)
	seedGeneration(t, f, "hash-1", "Ab3_x9")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/dataset/export?format=csv", nil)
	req.Header.Set("X-Admin-Key", "hunter2")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "hash-1")
}

func TestFeedbackStats(t *testing.T) {
	f := newAPIFixture(t)
	seedGeneration(t, f, "hash-1", "Ab3_x9")
	f.submitFeedback(t, map[string]interface{}{
		"subscriber_id":  "1001",
		"request_hash":   "hash-1",
		"overall_rating": 4,
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/feedback/stats", nil)
	req.Header.Set("X-Admin-Key", "hunter2")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var stats model.FeedbackStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.EqualValues(t, 1, stats.TotalRecords)
	assert.EqualValues(t, 1, stats.RatedRecords)
	assert.EqualValues(t, 1, stats.Positive)
}
