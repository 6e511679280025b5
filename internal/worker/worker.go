// Package worker executes pipeline jobs: download, analyze, generate,
// render, persist, deliver. Stages within a job run sequentially under a
// single wall-clock ceiling.
package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/reelscript/reelscript/internal/adapters"
	"github.com/reelscript/reelscript/internal/events"
	"github.com/reelscript/reelscript/internal/model"
	"github.com/reelscript/reelscript/internal/observability"
	"github.com/reelscript/reelscript/internal/reelhash"
	"github.com/reelscript/reelscript/internal/scriptfmt"
	"github.com/reelscript/reelscript/internal/session"
	"github.com/reelscript/reelscript/internal/store"
)

// Narrow adapter contracts so tests can fake each stage.

type VideoDownloader interface {
	Download(ctx context.Context, url, destDir, name string) (string, error)
}

type MediaExtractor interface {
	ProbeDuration(ctx context.Context, videoPath string) (float64, error)
	ExtractFrames(ctx context.Context, videoPath, outDir string, durationSec float64) ([]string, error)
	ExtractAudio(ctx context.Context, videoPath, outDir string) (string, error)
}

type ScriptGenerator interface {
	GenerateMultimodal(ctx context.Context, req adapters.GenerationRequest) (*adapters.GenerationResult, error)
	GenerateTextOnly(ctx context.Context, req adapters.GenerationRequest) (*adapters.GenerationResult, error)
	Transcribe(ctx context.Context, audioPath string) (string, error)
	AnalyzeStructured(ctx context.Context, transcript string, framePaths []string) (*model.ReelAnalysis, error)
}

type FieldMessenger interface {
	SetCustomField(ctx context.Context, subscriberID, fieldName, value string) error
	SendText(ctx context.Context, subscriberID, text string) error
	SendCard(ctx context.Context, subscriberID string, card adapters.Card) error
}

// CardMaker produces the share-card image for a finished script. Generated
// card files go into dir so they are cleaned up with the job's working set.
type CardMaker interface {
	Render(ctx context.Context, dir, hook string, framePaths []string) (path string, contentType string, err error)
}

// Config carries the worker knobs.
type Config struct {
	BaseURL           string
	CopyURLField      string
	ImageURLField     string
	DirectMessageSend bool
	JobTimeout        time.Duration
	AnalysisTTL       time.Duration
	AnalysisMode      string // audio | frames | hybrid
	TempRoot          string
	MaxAttempts       int
	MaxVideoSeconds   int
}

// Worker runs one job at a time through the stage graph.
type Worker struct {
	st         store.Store
	sessions   *session.Manager
	downloader VideoDownloader
	extractor  MediaExtractor
	generator  ScriptGenerator
	uploader   adapters.Uploader
	renderer   CardMaker
	messenger  FieldMessenger
	cfg        Config
	metrics    *observability.Metrics
	bus        *events.Bus
	log        zerolog.Logger
}

func New(st store.Store, sessions *session.Manager, downloader VideoDownloader, extractor MediaExtractor,
	generator ScriptGenerator, uploader adapters.Uploader, renderer CardMaker, messenger FieldMessenger,
	cfg Config, metrics *observability.Metrics, bus *events.Bus, log zerolog.Logger) *Worker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 5 * time.Minute
	}
	return &Worker{
		st:         st,
		sessions:   sessions,
		downloader: downloader,
		extractor:  extractor,
		generator:  generator,
		uploader:   uploader,
		renderer:   renderer,
		messenger:  messenger,
		cfg:        cfg,
		metrics:    metrics,
		bus:        bus,
		log:        log,
	}
}

// Handle is the queue handler. On the final failed attempt it delivers the
// fallback script before returning the error to the queue.
func (w *Worker) Handle(ctx context.Context, job *model.Job) error {
	start := time.Now()
	if w.metrics != nil {
		w.metrics.ActiveJobs.Inc()
		defer w.metrics.ActiveJobs.Dec()
	}

	jobCtx, cancel := context.WithTimeout(ctx, w.cfg.JobTimeout)
	err := w.run(jobCtx, job)
	cancel()

	if w.metrics != nil {
		w.metrics.JobDuration.Observe(float64(time.Since(start).Milliseconds()))
		if err != nil {
			w.metrics.Errors.WithLabelValues(model.ErrorClass(err)).Inc()
		}
	}
	if err == nil {
		return nil
	}

	final := !model.IsRetryable(err) || job.AttemptCount >= w.cfg.MaxAttempts
	if final {
		// fresh deadline: the job budget may already be spent
		fbCtx, fbCancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		w.deliverFallback(fbCtx, job)
		fbCancel()
	}
	return err
}

func (w *Worker) run(ctx context.Context, job *model.Job) error {
	payload := job.Payload
	log := w.log.With().Str("job", job.JobID).Str("subscriber", job.SubscriberID).Logger()
	w.progress(job.JobID, "load")

	reelHash := reelhash.ReelHash(payload.CanonicalURL)
	analysis, err := w.st.Analyses().Get(ctx, reelHash)
	tier1Hit := err == nil
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		log.Warn().Err(err).Msg("tier-1 lookup failed, treating as miss")
	}
	w.countCache("tier1", tier1Hit)

	if tier1Hit {
		scriptText, generatorName, genMs, err := w.produceFromAnalysis(ctx, job, analysis)
		if err != nil {
			return err
		}
		return w.finalize(ctx, job, scriptText, generatorName, genMs, nil)
	}

	tempDir, err := os.MkdirTemp(w.cfg.TempRoot, "job-"+adapters.SanitizeName(job.JobID)+"-")
	if err != nil {
		return fmt.Errorf("create job dir: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(tempDir); rmErr != nil {
			log.Warn().Err(rmErr).Str("dir", tempDir).Msg("cleanup failed")
		}
	}()

	m, err := w.acquireMedia(ctx, job, tempDir)
	if err != nil {
		return err
	}

	var (
		scriptText    string
		generatorName string
		genMs         int64
	)
	if payload.IsCopyMode {
		// copy mode needs the structured analysis up front; it is the script
		analysis, err = w.analyzeStructured(ctx, job, m, reelHash)
		if err != nil {
			return err
		}
		scriptText = scriptfmt.FormatCopy(analysis.Transcript, analysis.SceneSummaries, analysis.VisualCues)
		generatorName = "copy"
	} else {
		req := w.buildRequest(ctx, job)
		req.Transcript = m.transcript
		req.FramePaths = m.framePaths

		if err := abortCheck(ctx, "generate"); err != nil {
			return err
		}
		w.progress(job.JobID, "generate")
		res, err := w.generator.GenerateMultimodal(ctx, req)
		if err != nil {
			return err
		}
		if w.metrics != nil {
			w.metrics.GeneratorDuration.Observe(float64(res.DurationMs))
		}
		scriptText, generatorName, genMs = res.ScriptText, res.Generator, res.DurationMs

		// cache fill so future requests take the cheap path; failure here
		// loses the optimization, not the job
		if _, err := w.analyzeStructured(ctx, job, m, reelHash); err != nil {
			log.Warn().Err(err).Msg("tier-1 fill failed")
		}
	}

	return w.finalize(ctx, job, scriptText, generatorName, genMs, m.framePaths)
}

// media is the local working set for a tier-1 miss.
type media struct {
	videoPath  string
	duration   float64
	framePaths []string
	transcript string
}

// acquireMedia downloads the reel and extracts frames and transcript per
// the configured analysis mode.
func (w *Worker) acquireMedia(ctx context.Context, job *model.Job, tempDir string) (*media, error) {
	payload := job.Payload
	log := w.log.With().Str("job", job.JobID).Logger()

	if err := abortCheck(ctx, "download"); err != nil {
		return nil, err
	}
	w.progress(job.JobID, "download")
	videoPath, err := w.downloader.Download(ctx, payload.ReelURL, tempDir, job.JobID)
	if err != nil {
		return nil, err
	}

	if err := abortCheck(ctx, "extract"); err != nil {
		return nil, err
	}
	w.progress(job.JobID, "extract")
	duration, err := w.extractor.ProbeDuration(ctx, videoPath)
	if err != nil {
		return nil, err
	}
	if w.cfg.MaxVideoSeconds > 0 && duration > float64(w.cfg.MaxVideoSeconds) {
		return nil, &model.UpstreamError{
			Service:   adapters.CircuitDownload,
			Permanent: true,
			Cause:     fmt.Errorf("video is %.0fs, limit is %ds", duration, w.cfg.MaxVideoSeconds),
		}
	}

	m := &media{videoPath: videoPath, duration: duration}
	if w.cfg.AnalysisMode != "audio" {
		m.framePaths, err = w.extractor.ExtractFrames(ctx, videoPath, tempDir, duration)
		if err != nil {
			return nil, err
		}
	}
	if w.cfg.AnalysisMode != "frames" {
		m.transcript, err = w.transcribe(ctx, videoPath, tempDir)
		if err != nil {
			// hybrid mode tolerates a missing transcript when frames exist
			if w.cfg.AnalysisMode == "audio" || len(m.framePaths) == 0 {
				return nil, err
			}
			log.Warn().Err(err).Msg("transcription failed, continuing with frames only")
		}
	}
	return m, nil
}

func (w *Worker) transcribe(ctx context.Context, videoPath, tempDir string) (string, error) {
	if err := abortCheck(ctx, "extract"); err != nil {
		return "", err
	}
	audioPath, err := w.extractor.ExtractAudio(ctx, videoPath, tempDir)
	if err != nil {
		return "", err
	}
	if err := abortCheck(ctx, "analysis"); err != nil {
		return "", err
	}
	return w.generator.Transcribe(ctx, audioPath)
}

// analyzeStructured issues the explicit analysis call and writes the tier-1
// record.
func (w *Worker) analyzeStructured(ctx context.Context, job *model.Job, m *media, reelHash string) (*model.ReelAnalysis, error) {
	if err := abortCheck(ctx, "analysis"); err != nil {
		return nil, err
	}
	w.progress(job.JobID, "analysis")
	anStart := time.Now()
	analysis, err := w.generator.AnalyzeStructured(ctx, m.transcript, m.framePaths)
	if w.metrics != nil {
		w.metrics.AnalysisDuration.Observe(float64(time.Since(anStart).Milliseconds()))
	}
	if err != nil {
		return nil, err
	}
	analysis.ReelHash = reelHash
	analysis.CanonicalURL = job.Payload.CanonicalURL
	analysis.DurationSec = m.duration
	analysis.ExpiresAt = time.Now().Add(w.cfg.AnalysisTTL)

	if err := w.st.Analyses().Upsert(ctx, analysis); err != nil {
		w.log.Warn().Err(err).Str("job", job.JobID).Msg("tier-1 write failed")
	}
	return analysis, nil
}

// produceFromAnalysis is the tier-1 hit path: copy mode formats the cached
// analysis directly, everything else goes through the text-only generator.
func (w *Worker) produceFromAnalysis(ctx context.Context, job *model.Job, analysis *model.ReelAnalysis) (string, string, int64, error) {
	payload := job.Payload

	if payload.IsCopyMode {
		return scriptfmt.FormatCopy(analysis.Transcript, analysis.SceneSummaries, analysis.VisualCues), "copy", 0, nil
	}

	req := w.buildRequest(ctx, job)
	req.Transcript = analysis.Transcript
	req.SceneSummaries = analysis.SceneSummaries
	req.VisualCues = analysis.VisualCues

	if err := abortCheck(ctx, "generate"); err != nil {
		return "", "", 0, err
	}
	w.progress(job.JobID, "generate")
	res, err := w.generator.GenerateTextOnly(ctx, req)
	if err != nil {
		return "", "", 0, err
	}
	if w.metrics != nil {
		w.metrics.GeneratorDuration.Observe(float64(res.DurationMs))
	}
	return res.ScriptText, res.Generator, res.DurationMs, nil
}

// buildRequest assembles the generation request with prior-script context
// and user memory. Both lookups are best effort.
func (w *Worker) buildRequest(ctx context.Context, job *model.Job) adapters.GenerationRequest {
	payload := job.Payload
	log := w.log.With().Str("job", job.JobID).Logger()

	var sameIdea, otherIdeas []string
	if prior, err := w.st.Scripts().ListByCanonicalURL(ctx, payload.CanonicalURL, maxPriorScripts); err != nil {
		log.Warn().Err(err).Msg("prior-script lookup failed")
	} else {
		sameIdea, otherIdeas = BuildPriorContext(prior, payload.UserIdea)
	}
	var memory *model.UserMemory
	if mem, err := w.st.UserMemory().Get(ctx, job.SubscriberID); err == nil {
		memory = mem
	}

	return adapters.GenerationRequest{
		Idea:              payload.UserIdea,
		Tone:              payload.ToneHint,
		Intensity:         payload.Intensity,
		HookOnly:          payload.HookOnly,
		Mode:              payload.Mode,
		SameIdeaSummaries: sameIdea,
		OtherIdeaBodies:   otherIdeas,
		Memory:            memory,
	}
}

// finalize renders the artifact, persists the records, and delivers. The
// copy-URL custom field is always written before the image-URL field; the
// image field is the automation trigger and fires the atomic read of both.
func (w *Worker) finalize(ctx context.Context, job *model.Job, scriptText, generatorName string, genMs int64, framePaths []string) error {
	payload := job.Payload
	log := w.log.With().Str("job", job.JobID).Logger()

	if err := abortCheck(ctx, "render"); err != nil {
		return err
	}
	w.progress(job.JobID, "render")
	publicID, err := MintPublicID(ctx, w.st.Scripts())
	if err != nil {
		return fmt.Errorf("mint public id: %w", err)
	}
	viewURL := strings.TrimRight(w.cfg.BaseURL, "/") + "/s/" + publicID

	var imageURL string
	if w.renderer != nil {
		// generated cards live in the job's working directory; the cached
		// path has no frames, so it gets its own short-lived directory
		cardDir := ""
		if len(framePaths) > 0 {
			cardDir = filepath.Dir(framePaths[0])
		} else if d, derr := os.MkdirTemp(w.cfg.TempRoot, "card-"+adapters.SanitizeName(job.JobID)+"-"); derr == nil {
			cardDir = d
			defer func() {
				if rmErr := os.RemoveAll(d); rmErr != nil {
					log.Warn().Err(rmErr).Str("dir", d).Msg("card cleanup failed")
				}
			}()
		} else {
			log.Warn().Err(derr).Msg("card dir unavailable, delivering without image")
		}
		if cardDir != "" {
			cardPath, cardType, rerr := w.renderer.Render(ctx, cardDir, scriptfmt.Parse(scriptText).Hook, framePaths)
			if rerr != nil {
				log.Warn().Err(rerr).Msg("card render failed, delivering without image")
			} else {
				ext := ".jpg"
				if cardType == "image/svg+xml" {
					ext = ".svg"
				}
				imageURL, err = w.uploader.UploadFile(ctx, cardPath, "cards/"+publicID+ext, cardType)
				if err != nil {
					return err
				}
			}
		}
	} else if len(framePaths) > 0 {
		imageURL, err = w.uploader.UploadFile(ctx, framePaths[0], "cards/"+publicID+".jpg", "image/jpeg")
		if err != nil {
			return err
		}
	}

	now := time.Now()
	script := &model.Script{
		RequestHash:    job.RequestHash,
		PublicID:       publicID,
		SubscriberID:   job.SubscriberID,
		ReelURL:        payload.CanonicalURL,
		UserIdea:       payload.UserIdea,
		ScriptText:     scriptText,
		ImageURL:       imageURL,
		ScriptURL:      viewURL,
		Generator:      generatorName,
		GenerationMs:   genMs,
		VariationIndex: payload.VariationIndex,
		Mode:           payload.Mode,
		IsCopyMode:     payload.IsCopyMode,
		CreationTime:   now,
	}
	if _, err := w.st.Scripts().Upsert(ctx, script); err != nil {
		return fmt.Errorf("persist script: %w", err)
	}
	job.ResultPublicID = publicID

	record := &model.DatasetRecord{
		ID:             uuid.New().String(),
		SchemaVersion:  model.DatasetRecordSchemaVersion,
		RequestHash:    job.RequestHash,
		SubscriberID:   job.SubscriberID,
		CanonicalURL:   payload.CanonicalURL,
		UserIdea:       payload.UserIdea,
		ScriptText:     scriptText,
		Generator:      generatorName,
		VariationIndex: payload.VariationIndex,
		Mode:           payload.Mode,
		Features: map[string]interface{}{
			"toneHint":  payload.ToneHint,
			"intensity": payload.Intensity,
			"hookOnly":  payload.HookOnly,
			"copyMode":  payload.IsCopyMode,
		},
		CreationTime: now,
	}
	if err := w.st.Dataset().Insert(ctx, record); err != nil {
		log.Warn().Err(err).Msg("dataset write failed")
	}

	if w.sessions != nil {
		if _, err := w.sessions.ObserveResult(ctx, job.SubscriberID, job.RequestHash, publicID); err != nil {
			log.Warn().Err(err).Msg("session update failed")
		}
	}

	if err := abortCheck(ctx, "deliver"); err != nil {
		return err
	}
	w.progress(job.JobID, "deliver")
	w.deliver(ctx, job.SubscriberID, scriptText, viewURL, imageURL, log)
	return nil
}

// deliver writes the custom fields and the optional direct message.
// Messaging failures are logged, never propagated: the artifact is already
// durable and retrievable.
func (w *Worker) deliver(ctx context.Context, subscriberID, scriptText, viewURL, imageURL string, log zerolog.Logger) {
	if err := w.messenger.SetCustomField(ctx, subscriberID, w.cfg.CopyURLField, viewURL); err != nil {
		log.Error().Err(err).Msg("copy-url field write failed, skipping trigger field")
		return
	}
	trigger := imageURL
	if trigger == "" {
		trigger = viewURL
	}
	if err := w.messenger.SetCustomField(ctx, subscriberID, w.cfg.ImageURLField, trigger); err != nil {
		log.Error().Err(err).Msg("image-url field write failed")
		return
	}
	if w.cfg.DirectMessageSend {
		card := adapters.Card{
			ImageURL: imageURL,
			Title:    "Your script is ready",
			Subtitle: scriptfmt.Summary(scriptText, summaryMaxLen),
			Buttons:  map[string]string{"Open script": viewURL},
		}
		if err := w.messenger.SendCard(ctx, subscriberID, card); err != nil {
			log.Warn().Err(err).Msg("direct message failed")
		}
	}
}

// deliverFallback sends the deterministic skeleton after the last attempt.
func (w *Worker) deliverFallback(ctx context.Context, job *model.Job) {
	log := w.log.With().Str("job", job.JobID).Logger()
	text := scriptfmt.Fallback(job.Payload.UserIdea)

	publicID, err := MintPublicID(ctx, w.st.Scripts())
	if err != nil {
		log.Error().Err(err).Msg("fallback mint failed")
		return
	}
	viewURL := strings.TrimRight(w.cfg.BaseURL, "/") + "/s/" + publicID
	script := &model.Script{
		RequestHash:    job.RequestHash,
		PublicID:       publicID,
		SubscriberID:   job.SubscriberID,
		ReelURL:        job.Payload.CanonicalURL,
		UserIdea:       job.Payload.UserIdea,
		ScriptText:     text,
		ScriptURL:      viewURL,
		Generator:      "fallback",
		VariationIndex: job.Payload.VariationIndex,
		Mode:           job.Payload.Mode,
		CreationTime:   time.Now(),
	}
	if _, err := w.st.Scripts().Upsert(ctx, script); err != nil {
		log.Error().Err(err).Msg("fallback persist failed")
		return
	}
	job.ResultPublicID = publicID
	w.deliver(ctx, job.SubscriberID, text, viewURL, "", log)
	log.Info().Str("public_id", publicID).Msg("fallback script delivered")
}

func (w *Worker) countCache(tier string, hit bool) {
	if w.metrics == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	w.metrics.Cache.WithLabelValues(tier, result).Inc()
}

func (w *Worker) progress(jobID, stage string) {
	if w.bus != nil {
		w.bus.Publish(events.Event{Kind: events.EventJobProgress, JobID: jobID, Stage: stage})
	}
}

// abortCheck guards every I/O boundary with the job's abort signal.
func abortCheck(ctx context.Context, stage string) error {
	select {
	case <-ctx.Done():
		return &model.TimeoutError{Stage: stage}
	default:
		return nil
	}
}
