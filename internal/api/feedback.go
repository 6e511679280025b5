package api

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/reelscript/reelscript/internal/api/respond"
	"github.com/reelscript/reelscript/internal/api/validate"
	"github.com/reelscript/reelscript/internal/model"
	"github.com/reelscript/reelscript/internal/observability"
	"github.com/reelscript/reelscript/internal/scriptfmt"
	"github.com/reelscript/reelscript/internal/session"
	"github.com/reelscript/reelscript/internal/store"
)

type feedbackRequest struct {
	SubscriberID     string                 `json:"subscriber_id"`
	RequestHash      string                 `json:"request_hash"`
	PublicID         string                 `json:"public_id"`
	OverallRating    *int                   `json:"overall_rating"`
	SectionFeedback  map[string]string      `json:"section_feedback"`
	FeedbackText     string                 `json:"feedback_text"`
	VideoPerformance map[string]interface{} `json:"video_performance"`
}

// FeedbackHandler owns the explicit-feedback and dataset endpoints.
type FeedbackHandler struct {
	st       store.Store
	sessions *session.Manager
	metrics  *observability.Metrics
	log      zerolog.Logger
}

func NewFeedbackHandler(st store.Store, sessions *session.Manager, metrics *observability.Metrics, log zerolog.Logger) *FeedbackHandler {
	return &FeedbackHandler{st: st, sessions: sessions, metrics: metrics, log: log}
}

// HandleSubmit attaches structured feedback to the dataset record and folds
// it into the subscriber's preference memory.
func (h *FeedbackHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	if h.metrics != nil {
		h.metrics.Requests.WithLabelValues("feedback").Inc()
	}
	ctx := r.Context()

	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "invalid JSON body")
		return
	}
	req.SubscriberID = validate.CoercePlaceholder(req.SubscriberID)
	req.RequestHash = validate.CoercePlaceholder(req.RequestHash)
	req.PublicID = validate.CoercePlaceholder(req.PublicID)
	req.FeedbackText = validate.CoercePlaceholder(req.FeedbackText)

	if err := validate.SubscriberID(req.SubscriberID); err != nil {
		respond.WriteTyped(w, err)
		return
	}
	if req.OverallRating != nil {
		if err := validate.Rating(*req.OverallRating); err != nil {
			respond.WriteTyped(w, err)
			return
		}
	}
	if err := validate.FeedbackText(req.FeedbackText); err != nil {
		respond.WriteTyped(w, err)
		return
	}

	requestHash, err := h.resolveRequestHash(r, &req)
	if err != nil {
		respond.WriteTyped(w, err)
		return
	}

	if err := h.st.Dataset().AttachFeedback(ctx, requestHash, req.SubscriberID,
		req.OverallRating, req.SectionFeedback, req.FeedbackText, req.VideoPerformance); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			respond.WriteNotFound(w, "no generation found for that feedback")
			return
		}
		respond.WriteInternalError(w, "could not record feedback")
		return
	}

	if req.OverallRating != nil {
		rating := *req.OverallRating
		positive := rating >= 4
		if h.metrics != nil {
			polarity := "negative"
			if positive {
				polarity = "positive"
			}
			h.metrics.Feedback.WithLabelValues(polarity).Inc()
		}
		if err := h.st.Scripts().SetQualityScore(ctx, requestHash, float64(rating)); err != nil {
			h.log.Warn().Err(err).Msg("quality score update failed")
		}
		// preference memory keys off the hook line of the rated script
		hookLine := ""
		if sc, err := h.st.Scripts().GetByRequestHash(ctx, requestHash); err == nil {
			if sections := scriptfmt.Parse(sc.ScriptText); sections.Hook != "" {
				hookLine = sections.Hook
			} else {
				hookLine = scriptfmt.Summary(sc.ScriptText, 120)
			}
		}
		if err := h.st.UserMemory().ApplyFeedback(ctx, req.SubscriberID, positive, "", hookLine); err != nil {
			h.log.Warn().Err(err).Msg("preference memory update failed")
		}
	}

	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"message": "Feedback recorded, thank you.",
	})
}

// resolveRequestHash resolves the feedback target: explicit hash, then the
// public id, then the subscriber's last generation this session.
func (h *FeedbackHandler) resolveRequestHash(r *http.Request, req *feedbackRequest) (string, error) {
	if req.RequestHash != "" {
		return req.RequestHash, nil
	}
	if req.PublicID != "" {
		sc, err := h.st.Scripts().GetByPublicID(r.Context(), req.PublicID)
		if err != nil {
			return "", err
		}
		return sc.RequestHash, nil
	}
	sess, err := h.sessions.Get(r.Context(), req.SubscriberID)
	if err == nil && sess.LastRequestHash != "" {
		return sess.LastRequestHash, nil
	}
	return "", fmt.Errorf("%w: request_hash or public_id required", model.ErrValidation)
}

// HandleStats serves the aggregate feedback counters.
func (h *FeedbackHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.st.Dataset().Stats(r.Context())
	if err != nil {
		respond.WriteInternalError(w, "could not load stats")
		return
	}
	respond.WriteJSON(w, http.StatusOK, stats)
}

// HandleExport streams dataset records as JSON or CSV for offline training.
func (h *FeedbackHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := intParam(q.Get("limit"), 100)
	skip := intParam(q.Get("skip"), 0)
	validatedOnly := q.Get("validated") == "true"

	records, err := h.st.Dataset().List(r.Context(), limit, skip, validatedOnly)
	if err != nil {
		respond.WriteInternalError(w, "could not load dataset")
		return
	}

	switch q.Get("format") {
	case "", "json":
		respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"count":   len(records),
			"records": records,
		})
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="dataset.csv"`)
		cw := csv.NewWriter(w)
		_ = cw.Write([]string{"id", "request_hash", "subscriber_id", "canonical_url", "user_idea",
			"script_text", "generator", "variation_index", "mode", "overall_rating", "validated", "creation_time"})
		for _, rec := range records {
			rating := ""
			if rec.OverallRating != nil {
				rating = strconv.Itoa(*rec.OverallRating)
			}
			_ = cw.Write([]string{
				rec.ID, rec.RequestHash, rec.SubscriberID, rec.CanonicalURL, rec.UserIdea,
				rec.ScriptText, rec.Generator, strconv.Itoa(rec.VariationIndex), rec.Mode,
				rating, strconv.FormatBool(rec.Validated), rec.CreationTime.Format(time.RFC3339),
			})
		}
		cw.Flush()
	default:
		respond.WriteBadRequest(w, "format must be json or csv")
	}
}

func intParam(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
