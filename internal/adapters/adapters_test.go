package adapters

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelscript/reelscript/internal/model"
)

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "job-123_abc", SanitizeName("job-123_abc"))
	assert.Equal(t, "jobrmrf", SanitizeName("job;rm -rf /"))
	assert.Equal(t, "", SanitizeName("../../etc"))
	assert.Equal(t, "ABC09_-", SanitizeName("ABC09_-"))
}

func TestFrameRateAdaptive(t *testing.T) {
	assert.InDelta(t, 1.0/3.0, FrameRate(10), 1e-9)
	assert.InDelta(t, 1.0/3.0, FrameRate(14.9), 1e-9)
	assert.InDelta(t, 0.5, FrameRate(15), 1e-9)
	assert.InDelta(t, 0.5, FrameRate(29.9), 1e-9)
	assert.InDelta(t, 0.4, FrameRate(30), 1e-9)
	assert.InDelta(t, 0.4, FrameRate(300), 1e-9)
}

func TestClassifyDownloadErrorLoginRequired(t *testing.T) {
	err := classifyDownloadError("ERROR: [Instagram] login required to access this content", errors.New("exit status 1"))
	var up *model.UpstreamError
	require.ErrorAs(t, err, &up)
	assert.True(t, up.Permanent)
	assert.False(t, model.IsRetryable(err))
}

func TestClassifyDownloadErrorNotAvailable(t *testing.T) {
	err := classifyDownloadError("ERROR: This video is not available", errors.New("exit status 1"))
	var up *model.UpstreamError
	require.ErrorAs(t, err, &up)
	assert.True(t, up.Permanent)
}

func TestClassifyDownloadErrorRateLimit(t *testing.T) {
	err := classifyDownloadError("HTTP Error 429: Too Many Requests", errors.New("exit status 1"))
	var up *model.UpstreamError
	require.ErrorAs(t, err, &up)
	assert.False(t, up.Permanent)
	assert.True(t, model.IsRetryable(err))
}

func TestClassifyDownloadErrorUnknownIsRetryable(t *testing.T) {
	err := classifyDownloadError("something odd happened", errors.New("exit status 1"))
	var up *model.UpstreamError
	require.ErrorAs(t, err, &up)
	assert.False(t, up.Permanent)
}

func TestBuildPromptSections(t *testing.T) {
	prompt := BuildPrompt(GenerationRequest{
		Idea:              "meal prep for beginners",
		Tone:              "funny",
		Intensity:         "deep",
		Transcript:        "here is what I eat in a day",
		SameIdeaSummaries: []string{"You will not believe this meal"},
		OtherIdeaBodies:   []string{"Full body of an earlier script"},
	})
	assert.Contains(t, prompt, "meal prep for beginners")
	assert.Contains(t, prompt, "Tone: funny")
	assert.Contains(t, prompt, "in depth")
	assert.Contains(t, prompt, "here is what I eat in a day")
	assert.Contains(t, prompt, "do not repeat")
	assert.Contains(t, prompt, "Full body of an earlier script")
}

func TestBuildPromptHookOnly(t *testing.T) {
	prompt := BuildPrompt(GenerationRequest{Idea: "x", HookOnly: true})
	assert.Contains(t, prompt, "[HOOK]")
	assert.True(t, strings.Contains(prompt, "Only produce"))
}

func TestBuildPromptMemoryToneOnlyWithoutExplicitTone(t *testing.T) {
	mem := &model.UserMemory{PreferredTone: "casual"}
	withTone := BuildPrompt(GenerationRequest{Idea: "x", Tone: "serious", Memory: mem})
	assert.NotContains(t, withTone, "usually prefers")

	withoutTone := BuildPrompt(GenerationRequest{Idea: "x", Memory: mem})
	assert.Contains(t, withoutTone, "usually prefers a casual tone")
}

func TestCardRendererPrefersReadableFrame(t *testing.T) {
	dir := t.TempDir()
	missing := dir + "/frame_001.jpg"
	present := dir + "/frame_002.jpg"
	require.NoError(t, os.WriteFile(present, []byte("jpegdata"), 0o644))

	r := NewCardRenderer(zerolog.Nop())
	path, contentType, err := r.Render(context.Background(), dir, "A hook", []string{missing, present})
	require.NoError(t, err)
	assert.Equal(t, present, path)
	assert.Equal(t, "image/jpeg", contentType)
}

func TestCardRendererFallsBackToTextCard(t *testing.T) {
	dir := t.TempDir()
	r := NewCardRenderer(zerolog.Nop())
	path, contentType, err := r.Render(context.Background(), dir, `Don't <scroll> past`, nil)
	require.NoError(t, err)

	// the card lands in the caller's directory, never the system temp dir
	assert.Equal(t, dir, filepath.Dir(path))
	assert.Equal(t, "image/svg+xml", contentType)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "&lt;scroll&gt;")
	assert.NotContains(t, string(raw), "<scroll>")
}
