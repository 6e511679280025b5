package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelscript/reelscript/internal/model"
)

// A retried job mints a fresh public id for the same request hash; the
// upsert must replace every content column so the delivered /s/ link
// resolves, keeping only the original creation_time.
func TestScriptsUpsertReplacesContentOnConflict(t *testing.T) {
	ctx := context.Background()
	st := New()

	first, err := st.Scripts().Upsert(ctx, &model.Script{
		RequestHash:  "hash-1",
		PublicID:     "AAAAAAAA",
		SubscriberID: "1001",
		ScriptText:   "[HOOK]\nOld take.",
		ScriptURL:    "http://localhost:8080/s/AAAAAAAA",
		Generator:    "gpt-4o",
		CreationTime: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	second, err := st.Scripts().Upsert(ctx, &model.Script{
		RequestHash:  "hash-1",
		PublicID:     "BBBBBBBB",
		SubscriberID: "1001",
		ScriptText:   "[HOOK]\nNew take.",
		ScriptURL:    "http://localhost:8080/s/BBBBBBBB",
		Generator:    "fallback",
	})
	require.NoError(t, err)
	assert.Equal(t, first.CreationTime, second.CreationTime)

	got, err := st.Scripts().GetByRequestHash(ctx, "hash-1")
	require.NoError(t, err)
	assert.Equal(t, "BBBBBBBB", got.PublicID)
	assert.Equal(t, "[HOOK]\nNew take.", got.ScriptText)
	assert.Equal(t, "fallback", got.Generator)

	// the delivered link points at the replacement id
	_, err = st.Scripts().GetByPublicID(ctx, "BBBBBBBB")
	require.NoError(t, err)
	_, err = st.Scripts().GetByPublicID(ctx, "AAAAAAAA")
	assert.ErrorIs(t, err, model.ErrNotFound)
}
