// Package store exposes the durable persistence operations required by the
// ingress, the gate and the worker. Implementations live under
// internal/store/<driver>/.
package store

import (
	"context"
	"time"

	"github.com/reelscript/reelscript/internal/model"
)

type Store interface {
	Scripts() Scripts
	Jobs() Jobs
	Users() Users
	Analyses() Analyses
	Dataset() Dataset
	UserMemory() UserMemory
}

// Scripts is the tier-2 script cache plus the public-view lookup.
type Scripts interface {
	Upsert(ctx context.Context, s *model.Script) (*model.Script, error)
	GetByRequestHash(ctx context.Context, requestHash string) (*model.Script, error)
	GetByPublicID(ctx context.Context, publicID string) (*model.Script, error)
	// ListByCanonicalURL returns the most recent scripts for a reel,
	// newest first, for prior-context retrieval.
	ListByCanonicalURL(ctx context.Context, canonicalURL string, limit int) ([]*model.Script, error)
	PublicIDExists(ctx context.Context, publicID string) (bool, error)
	SetQualityScore(ctx context.Context, requestHash string, score float64) error
}

// Jobs covers the ingress-side job operations. Lease/heartbeat/retry
// bookkeeping belongs to internal/queue, which owns the polling SQL.
type Jobs interface {
	Create(ctx context.Context, j *model.Job) (*model.Job, error)
	Get(ctx context.Context, jobID string) (*model.Job, error)
	// FindActiveByRequestHash returns the queued or processing job for a
	// request hash, or model.ErrNotFound.
	FindActiveByRequestHash(ctx context.Context, requestHash string) (*model.Job, error)
	CountActive(ctx context.Context) (int64, error)
}

// AdmitResult reports the outcome of a beta admission attempt.
type AdmitResult struct {
	User             *model.User
	WaitlistPosition int  // 1-based; 0 when active
	Promoted         bool // true when this call moved the user off the waitlist
}

type Users interface {
	Get(ctx context.Context, subscriberID string) (*model.User, error)
	// Admit runs the beta admission state machine atomically: admit new
	// subscribers while capacity remains, waitlist beyond it, and
	// opportunistically promote waitlisted subscribers oldest-first.
	Admit(ctx context.Context, subscriberID string, capacity int) (*AdmitResult, error)
	TouchRequest(ctx context.Context, subscriberID string) error
	CountActive(ctx context.Context) (int64, error)
}

// Analyses is the tier-1 reel-analysis cache.
type Analyses interface {
	Get(ctx context.Context, reelHash string) (*model.ReelAnalysis, error)
	Upsert(ctx context.Context, a *model.ReelAnalysis) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Dataset is the append-only training/feedback collection.
type Dataset interface {
	Insert(ctx context.Context, r *model.DatasetRecord) error
	AttachFeedback(ctx context.Context, requestHash, subscriberID string, rating *int, section map[string]string, text string, perf map[string]interface{}) error
	List(ctx context.Context, limit, skip int, validatedOnly bool) ([]*model.DatasetRecord, error)
	Stats(ctx context.Context) (*model.FeedbackStats, error)
}

type UserMemory interface {
	Get(ctx context.Context, subscriberID string) (*model.UserMemory, error)
	// ApplyFeedback folds one explicit feedback event into the memory row.
	ApplyFeedback(ctx context.Context, subscriberID string, positive bool, tone, hookLine string) error
}
