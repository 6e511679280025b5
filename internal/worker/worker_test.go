package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelscript/reelscript/internal/adapters"
	"github.com/reelscript/reelscript/internal/ephemeral/ephemeraltest"
	"github.com/reelscript/reelscript/internal/model"
	"github.com/reelscript/reelscript/internal/reelhash"
	"github.com/reelscript/reelscript/internal/session"
	"github.com/reelscript/reelscript/internal/store/storetest"
)

const (
	testURL = "https://www.instagram.com/reel/AbC"
	testSub = "1234567890"
)

type fakeDownloader struct {
	err error
}

func (f *fakeDownloader) Download(ctx context.Context, url, destDir, name string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	p := filepath.Join(destDir, adapters.SanitizeName(name)+".mp4")
	if err := os.WriteFile(p, []byte("video"), 0o644); err != nil {
		return "", err
	}
	return p, nil
}

type fakeExtractor struct {
	duration float64
	frames   int
}

func (f *fakeExtractor) ProbeDuration(ctx context.Context, videoPath string) (float64, error) {
	return f.duration, nil
}

func (f *fakeExtractor) ExtractFrames(ctx context.Context, videoPath, outDir string, durationSec float64) ([]string, error) {
	var out []string
	for i := 0; i < f.frames; i++ {
		p := filepath.Join(outDir, fmt.Sprintf("frame_%03d.jpg", i+1))
		if err := os.WriteFile(p, []byte("jpg"), 0o644); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeExtractor) ExtractAudio(ctx context.Context, videoPath, outDir string) (string, error) {
	p := filepath.Join(outDir, "audio.wav")
	return p, os.WriteFile(p, []byte("wav"), 0o644)
}

type fakeGenerator struct {
	script          string
	analysis        *model.ReelAnalysis
	genErr          error
	multimodalCalls int
	textOnlyCalls   int
	analyzeCalls    int
}

func (f *fakeGenerator) GenerateMultimodal(ctx context.Context, req adapters.GenerationRequest) (*adapters.GenerationResult, error) {
	f.multimodalCalls++
	if f.genErr != nil {
		return nil, f.genErr
	}
	return &adapters.GenerationResult{ScriptText: f.script, Generator: "gpt-4o", DurationMs: 1200}, nil
}

func (f *fakeGenerator) GenerateTextOnly(ctx context.Context, req adapters.GenerationRequest) (*adapters.GenerationResult, error) {
	f.textOnlyCalls++
	if f.genErr != nil {
		return nil, f.genErr
	}
	return &adapters.GenerationResult{ScriptText: f.script, Generator: "gpt-4o", DurationMs: 800}, nil
}

func (f *fakeGenerator) Transcribe(ctx context.Context, audioPath string) (string, error) {
	return "First line. Middle part. Closing words.", nil
}

func (f *fakeGenerator) AnalyzeStructured(ctx context.Context, transcript string, framePaths []string) (*model.ReelAnalysis, error) {
	f.analyzeCalls++
	if f.analysis != nil {
		cp := *f.analysis
		cp.Transcript = transcript
		return &cp, nil
	}
	return &model.ReelAnalysis{Transcript: transcript, Tone: "casual"}, nil
}

type fakeMessenger struct {
	calls    []string
	failCopy string // field name whose write should fail
}

func (f *fakeMessenger) SetCustomField(ctx context.Context, subscriberID, fieldName, value string) error {
	if fieldName == f.failCopy {
		return errors.New("manychat down")
	}
	f.calls = append(f.calls, "field:"+fieldName)
	return nil
}

func (f *fakeMessenger) SendText(ctx context.Context, subscriberID, text string) error {
	f.calls = append(f.calls, "text")
	return nil
}

func (f *fakeMessenger) SendCard(ctx context.Context, subscriberID string, card adapters.Card) error {
	f.calls = append(f.calls, "card")
	return nil
}

type fixture struct {
	worker     *Worker
	st         *storetest.Memory
	gen        *fakeGenerator
	msg        *fakeMessenger
	downloader *fakeDownloader
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := storetest.New()
	gen := &fakeGenerator{script: "[HOOK]\nWatch.\n\n[BODY]\nContent.\n\n[CTA]\nFollow."}
	msg := &fakeMessenger{}
	dl := &fakeDownloader{}
	sessions := session.NewManager(ephemeraltest.New(), 30*time.Minute, zerolog.Nop())
	cfg := Config{
		BaseURL:         "http://localhost:8080",
		CopyURLField:    "script_copy_url",
		ImageURLField:   "script_image_url",
		JobTimeout:      time.Minute,
		AnalysisTTL:     time.Hour,
		AnalysisMode:    "hybrid",
		TempRoot:        t.TempDir(),
		MaxAttempts:     3,
		MaxVideoSeconds: 300,
	}
	w := New(st, sessions, dl, &fakeExtractor{duration: 20, frames: 3}, gen,
		adapters.NoopUploader{}, adapters.NewCardRenderer(zerolog.Nop()), msg, cfg, nil, nil, zerolog.Nop())
	return &fixture{worker: w, st: st, gen: gen, msg: msg, downloader: dl}
}

func newJob(variation int, copyMode bool) *model.Job {
	return &model.Job{
		JobID:        "11111111-2222-3333-4444-555555555555",
		SubscriberID: testSub,
		RequestHash:  reelhash.RequestHash(testSub, testURL, "make it about coding", variation, model.ModeFull),
		AttemptCount: 1,
		Payload: model.JobPayload{
			ReelURL:        testURL,
			CanonicalURL:   testURL,
			UserIdea:       "make it about coding",
			VariationIndex: variation,
			Mode:           model.ModeFull,
			IsCopyMode:     copyMode,
		},
	}
}

func TestHandleMissPathPersistsAndDelivers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	job := newJob(0, false)

	require.NoError(t, f.worker.Handle(ctx, job))

	assert.Equal(t, 1, f.gen.multimodalCalls)
	assert.Zero(t, f.gen.textOnlyCalls)
	// the structured-analysis call fills tier-1 after generation
	assert.Equal(t, 1, f.gen.analyzeCalls)
	_, err := f.st.Analyses().Get(ctx, reelhash.ReelHash(testURL))
	require.NoError(t, err)

	sc, err := f.st.Scripts().GetByRequestHash(ctx, job.RequestHash)
	require.NoError(t, err)
	assert.True(t, ValidPublicID(sc.PublicID))
	assert.Equal(t, job.ResultPublicID, sc.PublicID)
	assert.Contains(t, sc.ScriptText, "[HOOK]")
	assert.Equal(t, "http://localhost:8080/s/"+sc.PublicID, sc.ScriptURL)

	require.Len(t, f.st.Records, 1)
	assert.Equal(t, model.DatasetRecordSchemaVersion, f.st.Records[0].SchemaVersion)

	// copy-URL field strictly precedes the image-URL trigger field
	require.Len(t, f.msg.calls, 2)
	assert.Equal(t, "field:script_copy_url", f.msg.calls[0])
	assert.Equal(t, "field:script_image_url", f.msg.calls[1])
}

func TestHandleTierOneHitSkipsDownload(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.downloader.err = errors.New("downloader must not be called")

	require.NoError(t, f.st.Analyses().Upsert(ctx, &model.ReelAnalysis{
		ReelHash:   reelhash.ReelHash(testURL),
		Transcript: "cached transcript",
		ExpiresAt:  time.Now().Add(time.Hour),
	}))

	job := newJob(1, false)
	require.NoError(t, f.worker.Handle(ctx, job))
	assert.Equal(t, 1, f.gen.textOnlyCalls)
	assert.Zero(t, f.gen.multimodalCalls)
	assert.Zero(t, f.gen.analyzeCalls)
}

func TestHandleCachedPathLeavesNoWorkingFiles(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.downloader.err = errors.New("downloader must not be called")

	require.NoError(t, f.st.Analyses().Upsert(ctx, &model.ReelAnalysis{
		ReelHash:   reelhash.ReelHash(testURL),
		Transcript: "cached transcript",
		ExpiresAt:  time.Now().Add(time.Hour),
	}))

	job := newJob(1, false)
	require.NoError(t, f.worker.Handle(ctx, job))

	// the generated text card is removed with the rest of the working set
	entries, err := os.ReadDir(f.worker.cfg.TempRoot)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestHandleCopyModeSkipsGenerator(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	job := newJob(0, true)

	require.NoError(t, f.worker.Handle(ctx, job))
	assert.Zero(t, f.gen.multimodalCalls)
	assert.Zero(t, f.gen.textOnlyCalls)

	sc, err := f.st.Scripts().GetByRequestHash(ctx, job.RequestHash)
	require.NoError(t, err)
	assert.Equal(t, "copy", sc.Generator)
	assert.Contains(t, sc.ScriptText, "[HOOK]")
	assert.Contains(t, sc.ScriptText, "First line.")
}

func TestHandleRejectsOverlongVideo(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	w := f.worker
	w.extractor = &fakeExtractor{duration: 301, frames: 0}

	job := newJob(0, false)
	job.AttemptCount = 1
	err := w.Handle(ctx, job)
	var up *model.UpstreamError
	require.ErrorAs(t, err, &up)
	assert.True(t, up.Permanent)
	assert.False(t, model.IsRetryable(err))
}

func TestHandleFinalAttemptDeliversFallback(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.gen.genErr = &model.UpstreamError{Service: "generation", Permanent: false, Cause: errors.New("boom")}

	job := newJob(0, false)
	job.AttemptCount = 3 // final attempt
	err := f.worker.Handle(ctx, job)
	require.Error(t, err)

	sc, lookupErr := f.st.Scripts().GetByRequestHash(ctx, job.RequestHash)
	require.NoError(t, lookupErr)
	assert.Equal(t, "fallback", sc.Generator)
	assert.Contains(t, sc.ScriptText, "make it about coding")
	assert.Equal(t, sc.PublicID, job.ResultPublicID)
	assert.Contains(t, f.msg.calls, "field:script_copy_url")
}

func TestHandleMidAttemptFailureSkipsFallback(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.gen.genErr = &model.UpstreamError{Service: "generation", Permanent: false, Cause: errors.New("boom")}

	job := newJob(0, false)
	job.AttemptCount = 1
	require.Error(t, f.worker.Handle(ctx, job))

	_, err := f.st.Scripts().GetByRequestHash(ctx, job.RequestHash)
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.Empty(t, f.msg.calls)
}

func TestDeliverOrderingOnCopyFieldFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.msg.failCopy = "script_copy_url"

	job := newJob(0, false)
	// messaging failures never fail the job
	require.NoError(t, f.worker.Handle(ctx, job))
	assert.NotContains(t, f.msg.calls, "field:script_image_url")
}

func TestHandleTimeoutClassification(t *testing.T) {
	f := newFixture(t)
	f.worker.cfg.JobTimeout = time.Nanosecond

	job := newJob(0, false)
	job.AttemptCount = 1
	err := f.worker.Handle(context.Background(), job)
	var to *model.TimeoutError
	require.ErrorAs(t, err, &to)
	assert.Equal(t, "timeout", model.ErrorClass(err))
}
