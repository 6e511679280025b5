// Package api is the HTTP surface: ingress, feedback, the public script
// view, and the observability endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/reelscript/reelscript/internal/api/respond"
	"github.com/reelscript/reelscript/internal/api/validate"
	"github.com/reelscript/reelscript/internal/ephemeral"
	"github.com/reelscript/reelscript/internal/gate"
	"github.com/reelscript/reelscript/internal/intent"
	"github.com/reelscript/reelscript/internal/model"
	"github.com/reelscript/reelscript/internal/observability"
	"github.com/reelscript/reelscript/internal/reelhash"
	"github.com/reelscript/reelscript/internal/session"
	"github.com/reelscript/reelscript/internal/store"
)

type generateRequest struct {
	SubscriberID string `json:"subscriber_id"`
	ReelURL      string `json:"reel_url"`
	UserIdea     string `json:"user_idea"`
	ToneHint     string `json:"tone_hint"`
	LanguageHint string `json:"language_hint"`
	Mode         string `json:"mode"`
}

func (r *generateRequest) coercePlaceholders() {
	r.SubscriberID = validate.CoercePlaceholder(r.SubscriberID)
	r.ReelURL = validate.CoercePlaceholder(r.ReelURL)
	r.UserIdea = validate.CoercePlaceholder(r.UserIdea)
	r.ToneHint = validate.CoercePlaceholder(r.ToneHint)
	r.LanguageHint = validate.CoercePlaceholder(r.LanguageHint)
	r.Mode = validate.CoercePlaceholder(r.Mode)
}

// IngressHandler owns POST /api/v1/script/generate.
type IngressHandler struct {
	st         store.Store
	eph        ephemeral.Store
	gate       *gate.Gate
	sessions   *session.Manager
	variations *session.Variations
	metrics    *observability.Metrics
	log        zerolog.Logger
}

func NewIngressHandler(st store.Store, eph ephemeral.Store, g *gate.Gate, sessions *session.Manager,
	variations *session.Variations, metrics *observability.Metrics, log zerolog.Logger) *IngressHandler {
	return &IngressHandler{
		st:         st,
		eph:        eph,
		gate:       g,
		sessions:   sessions,
		variations: variations,
		metrics:    metrics,
		log:        log,
	}
}

// HandleGenerate validates, gates, classifies intent, and either answers
// inline from the tier-2 cache or enqueues a job. It never awaits worker
// completion.
func (h *IngressHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if h.metrics != nil {
		h.metrics.Requests.WithLabelValues("generate").Inc()
		defer func() {
			h.metrics.IngressDuration.Observe(float64(time.Since(start).Milliseconds()))
		}()
	}
	ctx := r.Context()

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.countError("validation")
		respond.WriteBadRequest(w, "invalid JSON body")
		return
	}
	req.coercePlaceholders()

	checks := []error{
		validate.SubscriberID(req.SubscriberID),
		validate.ToneHint(req.ToneHint),
		validate.LanguageHint(req.LanguageHint),
		validate.Mode(req.Mode),
	}
	// an absent idea is legal: the URL-only flow parks the reel and asks
	if req.UserIdea != "" {
		checks = append(checks, validate.UserIdea(req.UserIdea))
	}
	if err := firstErr(checks...); err != nil {
		h.countError("validation")
		respond.WriteTyped(w, err)
		return
	}

	decision, err := h.gate.Check(ctx, req.SubscriberID)
	if err != nil {
		h.countError(model.ErrorClass(err))
		respond.WriteTyped(w, err)
		return
	}
	if decision.Waitlisted {
		respond.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
			"status":   "waitlist",
			"position": decision.WaitlistPosition,
			"message":  fmt.Sprintf("You're #%d on the waitlist. We'll let you know the moment a spot opens.", decision.WaitlistPosition),
		})
		return
	}
	w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", decision.QuotaRemaining))
	w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", int(decision.QuotaReset.Seconds())))

	parsed, embeddedURL := intent.ParseWithURL(req.UserIdea)
	reelURL := req.ReelURL
	if reelURL == "" {
		reelURL = embeddedURL
	}
	if reelURL != "" {
		if err := validate.ReelURL(reelURL); err != nil {
			h.countError("validation")
			respond.WriteTyped(w, err)
			return
		}
	}

	switch {
	case parsed.Type == intent.TypePositive || parsed.Type == intent.TypeNegative:
		if h.metrics != nil {
			h.metrics.Feedback.WithLabelValues(parsed.FeedbackPolarity).Inc()
		}
		msg := "Glad you liked it! Send a new reel link whenever you're ready."
		if parsed.Type == intent.TypeNegative {
			msg = "Thanks for the honesty. Send the reel again with a fresh idea and I'll take another swing."
		}
		respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "message": msg})

	case parsed.IsRedo:
		sess, err := h.sessions.Get(ctx, req.SubscriberID)
		if err == nil && sess.LastURL != "" && sess.LastIdea != "" {
			h.enqueue(ctx, w, &req, decision, sess.LastURL, sess.LastIdea, parsed)
			return
		}
		respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"status":  "ok",
			"message": "I don't have a recent reel from you. Send the reel link and your idea and I'll get going.",
		})

	case reelURL != "" && (parsed.IsCopyFlow || parsed.IsInstantFlow):
		canonical := reelhash.Canonical(reelURL)
		idea := parsed.CleanedMessage
		if idea == "" {
			idea = h.defaultIdea(ctx, canonical)
		}
		h.enqueue(ctx, w, &req, decision, canonical, idea, parsed)

	case reelURL != "" && parsed.Type == intent.TypeIdea:
		canonical := reelhash.Canonical(reelURL)
		h.enqueue(ctx, w, &req, decision, canonical, parsed.CleanedMessage, parsed)

	case reelURL != "":
		// URL with no usable intent: hold it and ask for the idea
		canonical := reelhash.Canonical(reelURL)
		if _, err := h.sessions.ObserveURL(ctx, req.SubscriberID, canonical); err != nil {
			h.log.Warn().Err(err).Msg("session write failed")
		}
		respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"status":  "ok",
			"message": "Got the reel! What's your idea for it? Or say \"generate\" and I'll pick an angle.",
		})

	default:
		sess, err := h.sessions.Get(ctx, req.SubscriberID)
		if err == nil && sess.State == model.SessionAwaitingIdea && sess.LastURL != "" {
			switch {
			case parsed.Type == intent.TypeIdea:
				h.enqueue(ctx, w, &req, decision, sess.LastURL, parsed.CleanedMessage, parsed)
				return
			case parsed.IsCopyFlow || parsed.IsInstantFlow:
				idea := parsed.CleanedMessage
				if idea == "" {
					idea = h.defaultIdea(ctx, sess.LastURL)
				}
				h.enqueue(ctx, w, &req, decision, sess.LastURL, idea, parsed)
				return
			}
		}
		respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"status":  "ok",
			"message": "Hi! Send me an Instagram reel link plus your idea, and I'll write you a speaking script for it.",
		})
	}
}

// enqueue resolves the variation, consults the tier-2 cache, reuses any
// in-flight job, and otherwise persists and queues a new one.
func (h *IngressHandler) enqueue(ctx context.Context, w http.ResponseWriter, req *generateRequest,
	decision *gate.Decision, canonicalURL, idea string, parsed intent.Result) {

	sess, repeat, err := h.sessions.ObserveIdea(ctx, req.SubscriberID, canonicalURL, idea)
	if err != nil {
		h.log.Warn().Err(err).Msg("session write failed")
	}

	// an identical request while its job is still running reuses the job
	// instead of burning a variation
	if err == nil && repeat && sess.State == model.SessionProcessing && sess.ActiveJobID != "" {
		if job, jobErr := h.st.Jobs().Get(ctx, sess.ActiveJobID); jobErr == nil &&
			(job.Status == model.JobQueued || job.Status == model.JobProcessing) {
			respond.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
				"status":          "queued",
				"jobId":           job.JobID,
				"variationNumber": job.Payload.VariationIndex + 1,
				"message":         "Already working on that one, hang tight.",
			})
			return
		}
	}

	// a repeated request is idempotent: it stays on the index the family
	// already consumed and serves the stored script. Only an explicit
	// another-take intent, or a brand-new family, spends a fresh index.
	variation := 0
	advisory := false
	fresh := true
	if repeat && !parsed.IsRedo {
		if idx, found, peekErr := h.variations.Peek(ctx, req.SubscriberID, canonicalURL, idea); peekErr != nil {
			h.log.Warn().Err(peekErr).Msg("variation counter unavailable, assuming first variation")
		} else if found {
			variation = idx
			fresh = false
		}
	}
	if fresh {
		v, adv, incErr := h.variations.GetAndIncrement(ctx, req.SubscriberID, canonicalURL, idea)
		if incErr != nil {
			// losing the counter costs dedup quality, not the request
			h.log.Warn().Err(incErr).Msg("variation counter unavailable, assuming first variation")
			v = 0
		}
		variation, advisory = v, adv
	}

	mode := req.Mode
	if mode == "" {
		mode = model.ModeFull
	}
	if parsed.IsHookOnly {
		mode = model.ModeHookOnly
	}
	requestHash := reelhash.RequestHash(req.SubscriberID, canonicalURL, idea, variation, mode)

	if !fresh || variation == 0 {
		sc, err := h.st.Scripts().GetByRequestHash(ctx, requestHash)
		if err == nil {
			h.countCache("tier2", true)
			respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
				"status":    "success",
				"cached":    true,
				"script":    sc.ScriptText,
				"imageUrl":  sc.ImageURL,
				"scriptUrl": sc.ScriptURL,
			})
			return
		}
		if !errors.Is(err, model.ErrNotFound) {
			h.countError("internal")
			respond.WriteTyped(w, err)
			return
		}
		h.countCache("tier2", false)
	}

	if job, err := h.st.Jobs().FindActiveByRequestHash(ctx, requestHash); err == nil {
		respond.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
			"status":          "queued",
			"jobId":           job.JobID,
			"variationNumber": variation + 1,
			"message":         "Already working on that one, hang tight.",
		})
		return
	}

	job := &model.Job{
		JobID:        uuid.New().String(),
		SubscriberID: req.SubscriberID,
		RequestHash:  requestHash,
		Payload: model.JobPayload{
			ReelURL:        canonicalURL,
			CanonicalURL:   canonicalURL,
			UserIdea:       idea,
			VariationIndex: variation,
			Mode:           mode,
			IsCopyMode:     parsed.IsCopyFlow,
			ToneHint:       toneFor(req, parsed),
			LanguageHint:   req.LanguageHint,
			Intensity:      string(parsed.Intensity),
			HookOnly:       parsed.IsHookOnly,
		},
	}
	created, err := h.st.Jobs().Create(ctx, job)
	if err != nil {
		// likely lost a race on the active-request unique index
		if existing, findErr := h.st.Jobs().FindActiveByRequestHash(ctx, requestHash); findErr == nil {
			respond.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
				"status":          "queued",
				"jobId":           existing.JobID,
				"variationNumber": variation + 1,
			})
			return
		}
		h.countError("internal")
		respond.WriteInternalError(w, "could not queue the request")
		return
	}

	if _, err := h.sessions.MarkProcessing(ctx, req.SubscriberID, created.JobID); err != nil {
		h.log.Warn().Err(err).Msg("session write failed")
	}
	if err := h.st.Users().TouchRequest(ctx, req.SubscriberID); err != nil {
		h.log.Warn().Err(err).Msg("request counter update failed")
	}

	resp := map[string]interface{}{
		"status":          "queued",
		"jobId":           created.JobID,
		"variationNumber": variation + 1,
		"remaining":       decision.QuotaRemaining,
		"message":         fmt.Sprintf("On it! Writing version #%d now, you'll get it in a minute or two.", variation+1),
	}
	if advisory {
		resp["advisory"] = fmt.Sprintf("That's variation #%d for this reel and idea. A new idea usually works better than another rewrite.", variation+1)
	}
	respond.WriteJSON(w, http.StatusAccepted, resp)
}

// defaultIdea picks the instant-flow idea from the cached analysis:
// explicit niche, then detected hook type, then content type, then generic.
func (h *IngressHandler) defaultIdea(ctx context.Context, canonicalURL string) string {
	an, err := h.st.Analyses().Get(ctx, reelhash.ReelHash(canonicalURL))
	if err != nil {
		return "a fresh take on this video in my own voice"
	}
	switch {
	case an.Niche != "":
		return fmt.Sprintf("a %s video in my own style", an.Niche)
	case an.HookType != "":
		return fmt.Sprintf("a video opening with a %s hook in my own style", an.HookType)
	case an.ContentType != "":
		return fmt.Sprintf("my own take on this %s", an.ContentType)
	default:
		return "a fresh take on this video in my own voice"
	}
}

func toneFor(req *generateRequest, parsed intent.Result) string {
	if req.ToneHint != "" {
		return req.ToneHint
	}
	return parsed.DetectedTone
}

func (h *IngressHandler) countError(class string) {
	if h.metrics != nil {
		h.metrics.Errors.WithLabelValues(class).Inc()
	}
}

func (h *IngressHandler) countCache(tier string, hit bool) {
	if h.metrics != nil {
		result := "miss"
		if hit {
			result = "hit"
		}
		h.metrics.Cache.WithLabelValues(tier, result).Inc()
	}
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
