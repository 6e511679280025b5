package model

import "time"

// Job status values. Transitions are monotonic:
// queued -> processing -> completed | failed.
const (
	JobQueued     = "queued"
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobFailed     = "failed"
)

// User access status values.
const (
	UserActive   = "active"
	UserWaitlist = "waitlist"
	UserBlocked  = "blocked"
)

// Generation modes.
const (
	ModeFull     = "full"
	ModeHookOnly = "hook_only"
)

// Script is the durable result of one generation, immutable after creation
// except for feedback-scored quality fields.
type Script struct {
	RequestHash    string     `json:"requestHash"`
	PublicID       string     `json:"publicId"`
	SubscriberID   string     `json:"subscriberId"`
	ReelURL        string     `json:"reelUrl"`
	UserIdea       string     `json:"userIdea"`
	ScriptText     string     `json:"scriptText"`
	ImageURL       string     `json:"imageUrl,omitempty"`
	ScriptURL      string     `json:"scriptUrl,omitempty"`
	Generator      string     `json:"generator"`
	GenerationMs   int64      `json:"generationMs"`
	QualityScore   *float64   `json:"qualityScore,omitempty"`
	VariationIndex int        `json:"variationIndex"`
	Mode           string     `json:"mode"`
	IsCopyMode     bool       `json:"isCopyMode"`
	CreationTime   time.Time  `json:"creationTime"`
	ScoredTime     *time.Time `json:"scoredTime,omitempty"`
}

// Job is the durable queue record for one pipeline execution.
type Job struct {
	JobID          string     `json:"jobId"`
	SubscriberID   string     `json:"subscriberId"`
	RequestHash    string     `json:"requestHash"`
	Status         string     `json:"status"`
	AttemptCount   int        `json:"attemptCount"`
	ErrorSummary   string     `json:"errorSummary,omitempty"`
	ResultPublicID string     `json:"resultPublicId,omitempty"`
	Payload        JobPayload `json:"payload"`
	CreationTime   time.Time  `json:"creationTime"`
	StartedTime    *time.Time `json:"startedTime,omitempty"`
	CompletedTime  *time.Time `json:"completedTime,omitempty"`
	HeartbeatTime  *time.Time `json:"heartbeatTime,omitempty"`
	NextAttemptAt  *time.Time `json:"nextAttemptAt,omitempty"`
}

// JobPayload carries everything the worker needs to run the pipeline.
type JobPayload struct {
	ReelURL        string `json:"reelUrl"`
	CanonicalURL   string `json:"canonicalUrl"`
	UserIdea       string `json:"userIdea"`
	VariationIndex int    `json:"variationIndex"`
	Mode           string `json:"mode"`
	IsCopyMode     bool   `json:"isCopyMode"`
	ToneHint       string `json:"toneHint,omitempty"`
	LanguageHint   string `json:"languageHint,omitempty"`
	Intensity      string `json:"intensity,omitempty"`
	HookOnly       bool   `json:"hookOnly,omitempty"`
}

// User is the durable beta-access record for a subscriber.
type User struct {
	SubscriberID       string     `json:"subscriberId"`
	Status             string     `json:"status"`
	RegistrationNumber *int64     `json:"registrationNumber,omitempty"`
	RequestCount       int64      `json:"requestCount"`
	LastRequestTime    *time.Time `json:"lastRequestTime,omitempty"`
	CreationTime       time.Time  `json:"creationTime"`
}

// ReelAnalysis is the tier-1 cache record keyed by the canonical URL hash.
type ReelAnalysis struct {
	ReelHash       string    `json:"reelHash"`
	CanonicalURL   string    `json:"canonicalUrl"`
	Transcript     string    `json:"transcript,omitempty"`
	Tone           string    `json:"tone,omitempty"`
	HookType       string    `json:"hookType,omitempty"`
	Niche          string    `json:"niche,omitempty"`
	ContentType    string    `json:"contentType,omitempty"`
	VisualCues     []string  `json:"visualCues,omitempty"`
	SceneSummaries []string  `json:"sceneSummaries,omitempty"`
	DurationSec    float64   `json:"durationSec,omitempty"`
	VideoURL       string    `json:"videoUrl,omitempty"`
	CreationTime   time.Time `json:"creationTime"`
	ExpiresAt      time.Time `json:"expiresAt"`
}

// Session states.
const (
	SessionIdle            = "idle"
	SessionAwaitingIdea    = "awaiting_idea"
	SessionAwaitingConfirm = "awaiting_confirm"
	SessionProcessing      = "processing"
)

// SessionContext is the per-subscriber conversational memory. It lives in
// the ephemeral store under a 30 minute sliding TTL.
type SessionContext struct {
	SubscriberID    string    `json:"subscriberId"`
	LastURL         string    `json:"lastUrl,omitempty"`
	LastIdea        string    `json:"lastIdea,omitempty"`
	LastRequestHash string    `json:"lastRequestHash,omitempty"`
	LastScriptID    string    `json:"lastScriptId,omitempty"`
	VariationCount  int       `json:"variationCount"`
	State           string    `json:"state"`
	ActiveJobID     string    `json:"activeJobId,omitempty"`
	LastActivity    time.Time `json:"lastActivity"`
}

// DatasetRecordSchemaVersion tags the current write shape; readers dispatch
// on the persisted value.
const DatasetRecordSchemaVersion = 2

// DatasetRecord is the append-only training/feedback record written once
// per completed generation.
type DatasetRecord struct {
	ID              string                 `json:"id"`
	SchemaVersion   int                    `json:"schemaVersion"`
	RequestHash     string                 `json:"requestHash"`
	SubscriberID    string                 `json:"subscriberId"`
	CanonicalURL    string                 `json:"canonicalUrl"`
	UserIdea        string                 `json:"userIdea"`
	ScriptText      string                 `json:"scriptText"`
	Generator       string                 `json:"generator"`
	VariationIndex  int                    `json:"variationIndex"`
	Mode            string                 `json:"mode"`
	Features        map[string]interface{} `json:"features,omitempty"`
	Experiment      string                 `json:"experiment,omitempty"`
	OverallRating   *int                   `json:"overallRating,omitempty"`
	SectionFeedback map[string]string      `json:"sectionFeedback,omitempty"`
	FeedbackText    string                 `json:"feedbackText,omitempty"`
	VideoPerformance map[string]interface{} `json:"videoPerformance,omitempty"`
	Validated       bool                   `json:"validated"`
	CreationTime    time.Time              `json:"creationTime"`
	FeedbackTime    *time.Time             `json:"feedbackTime,omitempty"`
}

// UserMemory accumulates per-subscriber generation preferences fed back
// into later prompts.
type UserMemory struct {
	SubscriberID  string    `json:"subscriberId"`
	PreferredTone string    `json:"preferredTone,omitempty"`
	LikedHooks    []string  `json:"likedHooks,omitempty"`
	DislikedHooks []string  `json:"dislikedHooks,omitempty"`
	PositiveCount int       `json:"positiveCount"`
	NegativeCount int       `json:"negativeCount"`
	UpdateTime    time.Time `json:"updateTime"`
}

// FeedbackStats is the aggregate served by the admin stats endpoint.
type FeedbackStats struct {
	TotalRecords  int64   `json:"totalRecords"`
	RatedRecords  int64   `json:"ratedRecords"`
	AverageRating float64 `json:"averageRating"`
	Positive      int64   `json:"positive"`
	Negative      int64   `json:"negative"`
}
