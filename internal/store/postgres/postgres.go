// Package postgres implements the durable store on PostgreSQL via the pgx
// stdlib driver.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/reelscript/reelscript/internal/model"
	"github.com/reelscript/reelscript/internal/store"
)

const (
	connectAttempts = 5
	connectBaseWait = 2 * time.Second
)

// Open opens a PostgreSQL connection with bounded exponential backoff and
// verifies connectivity. The pool is sized for the worker concurrency.
func Open(ctx context.Context, dsn string, poolSize int) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is empty")
	}
	if poolSize < 5 {
		poolSize = 5
	}
	var lastErr error
	for attempt := 0; attempt < connectAttempts; attempt++ {
		if attempt > 0 {
			wait := connectBaseWait * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}
		db, err := sql.Open("pgx", dsn)
		if err != nil {
			lastErr = err
			continue
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			lastErr = err
			continue
		}
		db.SetMaxOpenConns(poolSize)
		db.SetMaxIdleConns(poolSize / 2)
		db.SetConnMaxLifetime(30 * time.Minute)
		return db, nil
	}
	return nil, fmt.Errorf("postgres connect failed after %d attempts: %w", connectAttempts, lastErr)
}

// NewWithDB constructs a native Postgres store backed directly by database/sql.
func NewWithDB(db *sql.DB) store.Store { return &pgStore{db: db} }

type pgStore struct{ db *sql.DB }

func (s *pgStore) Scripts() store.Scripts      { return &scripts{db: s.db} }
func (s *pgStore) Jobs() store.Jobs            { return &jobs{db: s.db} }
func (s *pgStore) Users() store.Users          { return &users{db: s.db} }
func (s *pgStore) Analyses() store.Analyses    { return &analyses{db: s.db} }
func (s *pgStore) Dataset() store.Dataset      { return &dataset{db: s.db} }
func (s *pgStore) UserMemory() store.UserMemory { return &userMemory{db: s.db} }

// HealthPing implements health.HealthPinger for the Postgres-backed store.
func (s *pgStore) HealthPing(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func mapNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrNotFound
	}
	return err
}

// --- Scripts ---

type scripts struct{ db *sql.DB }

func (s *scripts) Upsert(ctx context.Context, m *model.Script) (*model.Script, error) {
	var created time.Time
	row := s.db.QueryRowContext(ctx, `
        INSERT INTO scripts (request_hash, public_id, subscriber_id, reel_url, user_idea,
                             script_text, image_url, script_url, generator, generation_ms,
                             variation_index, mode, is_copy_mode)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
        ON CONFLICT (request_hash) DO UPDATE SET
            public_id = EXCLUDED.public_id,
            script_text = EXCLUDED.script_text,
            image_url = EXCLUDED.image_url,
            script_url = EXCLUDED.script_url,
            generator = EXCLUDED.generator,
            generation_ms = EXCLUDED.generation_ms,
            variation_index = EXCLUDED.variation_index,
            mode = EXCLUDED.mode,
            is_copy_mode = EXCLUDED.is_copy_mode
        RETURNING creation_time
    `, m.RequestHash, m.PublicID, m.SubscriberID, m.ReelURL, m.UserIdea,
		m.ScriptText, nullStr(m.ImageURL), nullStr(m.ScriptURL), m.Generator, m.GenerationMs,
		m.VariationIndex, m.Mode, m.IsCopyMode)
	if err := row.Scan(&created); err != nil {
		return nil, err
	}
	out := *m
	out.CreationTime = created
	return &out, nil
}

const scriptCols = `request_hash, public_id, subscriber_id, reel_url, user_idea,
       script_text, image_url, script_url, generator, generation_ms,
       quality_score, variation_index, mode, is_copy_mode, creation_time, scored_time`

func scanScript(row interface{ Scan(...interface{}) error }) (*model.Script, error) {
	var m model.Script
	var imageURL, scriptURL sql.NullString
	var quality sql.NullFloat64
	var scored sql.NullTime
	if err := row.Scan(&m.RequestHash, &m.PublicID, &m.SubscriberID, &m.ReelURL, &m.UserIdea,
		&m.ScriptText, &imageURL, &scriptURL, &m.Generator, &m.GenerationMs,
		&quality, &m.VariationIndex, &m.Mode, &m.IsCopyMode, &m.CreationTime, &scored); err != nil {
		return nil, err
	}
	m.ImageURL = imageURL.String
	m.ScriptURL = scriptURL.String
	if quality.Valid {
		v := quality.Float64
		m.QualityScore = &v
	}
	if scored.Valid {
		t := scored.Time
		m.ScoredTime = &t
	}
	return &m, nil
}

func (s *scripts) GetByRequestHash(ctx context.Context, requestHash string) (*model.Script, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+scriptCols+` FROM scripts WHERE request_hash=$1`, requestHash)
	out, err := scanScript(row)
	return out, mapNotFound(err)
}

func (s *scripts) GetByPublicID(ctx context.Context, publicID string) (*model.Script, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+scriptCols+` FROM scripts WHERE public_id=$1`, publicID)
	out, err := scanScript(row)
	return out, mapNotFound(err)
}

func (s *scripts) ListByCanonicalURL(ctx context.Context, canonicalURL string, limit int) ([]*model.Script, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT `+scriptCols+` FROM scripts
        WHERE reel_url=$1 ORDER BY creation_time DESC LIMIT $2
    `, canonicalURL, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*model.Script
	for rows.Next() {
		m, err := scanScript(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *scripts) PublicIDExists(ctx context.Context, publicID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM scripts WHERE public_id=$1`, publicID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *scripts) SetQualityScore(ctx context.Context, requestHash string, score float64) error {
	res, err := s.db.ExecContext(ctx, `
        UPDATE scripts SET quality_score=$1, scored_time=now() WHERE request_hash=$2
    `, score, requestHash)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

// --- Jobs ---

type jobs struct{ db *sql.DB }

func (j *jobs) Create(ctx context.Context, m *model.Job) (*model.Job, error) {
	payload, err := json.Marshal(m.Payload)
	if err != nil {
		return nil, err
	}
	var created time.Time
	row := j.db.QueryRowContext(ctx, `
        INSERT INTO jobs (job_id, subscriber_id, request_hash, status, payload)
        VALUES ($1,$2,$3,'queued',$4)
        ON CONFLICT (job_id) DO NOTHING
        RETURNING creation_time
    `, m.JobID, m.SubscriberID, m.RequestHash, payload)
	if err := row.Scan(&created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// duplicate jobId: queue-level dedup, return the existing row
			return j.Get(ctx, m.JobID)
		}
		return nil, err
	}
	out := *m
	out.Status = model.JobQueued
	out.CreationTime = created
	return &out, nil
}

const jobCols = `job_id, subscriber_id, request_hash, status, attempt_count,
       error_summary, result_public_id, payload, creation_time,
       started_time, completed_time, heartbeat_time, next_attempt_at`

func scanJob(row interface{ Scan(...interface{}) error }) (*model.Job, error) {
	var m model.Job
	var errSummary, resultID sql.NullString
	var payload []byte
	var started, completed, heartbeat, nextAttempt sql.NullTime
	if err := row.Scan(&m.JobID, &m.SubscriberID, &m.RequestHash, &m.Status, &m.AttemptCount,
		&errSummary, &resultID, &payload, &m.CreationTime,
		&started, &completed, &heartbeat, &nextAttempt); err != nil {
		return nil, err
	}
	m.ErrorSummary = errSummary.String
	m.ResultPublicID = resultID.String
	if len(payload) > 0 {
		_ = json.Unmarshal(payload, &m.Payload)
	}
	if started.Valid {
		t := started.Time
		m.StartedTime = &t
	}
	if completed.Valid {
		t := completed.Time
		m.CompletedTime = &t
	}
	if heartbeat.Valid {
		t := heartbeat.Time
		m.HeartbeatTime = &t
	}
	if nextAttempt.Valid {
		t := nextAttempt.Time
		m.NextAttemptAt = &t
	}
	return &m, nil
}

func (j *jobs) Get(ctx context.Context, jobID string) (*model.Job, error) {
	row := j.db.QueryRowContext(ctx, `SELECT `+jobCols+` FROM jobs WHERE job_id=$1`, jobID)
	out, err := scanJob(row)
	return out, mapNotFound(err)
}

func (j *jobs) FindActiveByRequestHash(ctx context.Context, requestHash string) (*model.Job, error) {
	row := j.db.QueryRowContext(ctx, `
        SELECT `+jobCols+` FROM jobs
        WHERE request_hash=$1 AND status IN ('queued','processing')
        ORDER BY creation_time ASC LIMIT 1
    `, requestHash)
	out, err := scanJob(row)
	return out, mapNotFound(err)
}

func (j *jobs) CountActive(ctx context.Context) (int64, error) {
	var n int64
	err := j.db.QueryRowContext(ctx, `SELECT count(*) FROM jobs WHERE status IN ('queued','processing')`).Scan(&n)
	return n, err
}

// --- Users ---

type users struct{ db *sql.DB }

func scanUser(row interface{ Scan(...interface{}) error }) (*model.User, error) {
	var m model.User
	var reg sql.NullInt64
	var last sql.NullTime
	if err := row.Scan(&m.SubscriberID, &m.Status, &reg, &m.RequestCount, &last, &m.CreationTime); err != nil {
		return nil, err
	}
	if reg.Valid {
		v := reg.Int64
		m.RegistrationNumber = &v
	}
	if last.Valid {
		t := last.Time
		m.LastRequestTime = &t
	}
	return &m, nil
}

const userCols = `subscriber_id, status, registration_number, request_count, last_request_time, creation_time`

func (u *users) Get(ctx context.Context, subscriberID string) (*model.User, error) {
	row := u.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE subscriber_id=$1`, subscriberID)
	out, err := scanUser(row)
	return out, mapNotFound(err)
}

func (u *users) Admit(ctx context.Context, subscriberID string, capacity int) (*store.AdmitResult, error) {
	tx, err := u.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := scanUser(tx.QueryRowContext(ctx,
		`SELECT `+userCols+` FROM users WHERE subscriber_id=$1 FOR UPDATE`, subscriberID))
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	found := err == nil

	var active int64
	// Recompute the active count under the transaction so concurrent
	// admissions cannot overshoot capacity.
	if err := tx.QueryRowContext(ctx,
		`SELECT count(*) FROM users WHERE status='active'`).Scan(&active); err != nil {
		return nil, err
	}

	res := &store.AdmitResult{}
	switch {
	case !found && active < int64(capacity):
		// Ordinals come from a sequence and are never reused.
		created, err := scanUser(tx.QueryRowContext(ctx, `
            INSERT INTO users (subscriber_id, status, registration_number)
            VALUES ($1, 'active', nextval('beta_seq'))
            RETURNING `+userCols, subscriberID))
		if err != nil {
			return nil, err
		}
		res.User = created
	case !found:
		created, err := scanUser(tx.QueryRowContext(ctx, `
            INSERT INTO users (subscriber_id, status)
            VALUES ($1, 'waitlist')
            RETURNING `+userCols, subscriberID))
		if err != nil {
			return nil, err
		}
		res.User = created
		pos, err := waitlistPosition(ctx, tx, subscriberID)
		if err != nil {
			return nil, err
		}
		res.WaitlistPosition = pos
	case existing.Status == model.UserBlocked:
		res.User = existing
	case existing.Status == model.UserWaitlist && active < int64(capacity):
		// Promotion is strictly oldest-first; only promote this subscriber
		// when no older waitlist entry exists.
		pos, err := waitlistPosition(ctx, tx, subscriberID)
		if err != nil {
			return nil, err
		}
		if pos == 1 {
			promoted, err := scanUser(tx.QueryRowContext(ctx, `
                UPDATE users SET status='active', registration_number=nextval('beta_seq')
                WHERE subscriber_id=$1
                RETURNING `+userCols, subscriberID))
			if err != nil {
				return nil, err
			}
			res.User = promoted
			res.Promoted = true
		} else {
			res.User = existing
			res.WaitlistPosition = pos
		}
	case existing.Status == model.UserWaitlist:
		pos, err := waitlistPosition(ctx, tx, subscriberID)
		if err != nil {
			return nil, err
		}
		res.User = existing
		res.WaitlistPosition = pos
	default:
		res.User = existing
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return res, nil
}

func waitlistPosition(ctx context.Context, tx *sql.Tx, subscriberID string) (int, error) {
	var pos int
	err := tx.QueryRowContext(ctx, `
        SELECT count(*) FROM users w, users me
        WHERE me.subscriber_id=$1
          AND w.status='waitlist' AND w.creation_time <= me.creation_time
    `, subscriberID).Scan(&pos)
	return pos, err
}

func (u *users) TouchRequest(ctx context.Context, subscriberID string) error {
	_, err := u.db.ExecContext(ctx, `
        UPDATE users SET request_count = request_count + 1, last_request_time = now()
        WHERE subscriber_id=$1
    `, subscriberID)
	return err
}

func (u *users) CountActive(ctx context.Context) (int64, error) {
	var n int64
	err := u.db.QueryRowContext(ctx, `SELECT count(*) FROM users WHERE status='active'`).Scan(&n)
	return n, err
}

// --- Analyses (tier-1 cache) ---

type analyses struct{ db *sql.DB }

func (a *analyses) Get(ctx context.Context, reelHash string) (*model.ReelAnalysis, error) {
	var m model.ReelAnalysis
	var cues, scenes []byte
	var videoURL sql.NullString
	row := a.db.QueryRowContext(ctx, `
        SELECT reel_hash, canonical_url, transcript, tone, hook_type, niche, content_type,
               visual_cues, scene_summaries, duration_sec, video_url, creation_time, expires_at
        FROM reel_analysis WHERE reel_hash=$1 AND expires_at > now()
    `, reelHash)
	if err := row.Scan(&m.ReelHash, &m.CanonicalURL, &m.Transcript, &m.Tone, &m.HookType,
		&m.Niche, &m.ContentType, &cues, &scenes, &m.DurationSec, &videoURL,
		&m.CreationTime, &m.ExpiresAt); err != nil {
		return nil, mapNotFound(err)
	}
	m.VideoURL = videoURL.String
	if len(cues) > 0 {
		_ = json.Unmarshal(cues, &m.VisualCues)
	}
	if len(scenes) > 0 {
		_ = json.Unmarshal(scenes, &m.SceneSummaries)
	}
	return &m, nil
}

func (a *analyses) Upsert(ctx context.Context, m *model.ReelAnalysis) error {
	cues, _ := json.Marshal(m.VisualCues)
	scenes, _ := json.Marshal(m.SceneSummaries)
	_, err := a.db.ExecContext(ctx, `
        INSERT INTO reel_analysis (reel_hash, canonical_url, transcript, tone, hook_type, niche,
                                   content_type, visual_cues, scene_summaries, duration_sec,
                                   video_url, expires_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
        ON CONFLICT (reel_hash) DO UPDATE SET
            transcript = CASE WHEN EXCLUDED.transcript <> '' THEN EXCLUDED.transcript ELSE reel_analysis.transcript END,
            tone = EXCLUDED.tone,
            hook_type = EXCLUDED.hook_type,
            niche = EXCLUDED.niche,
            content_type = EXCLUDED.content_type,
            visual_cues = EXCLUDED.visual_cues,
            scene_summaries = EXCLUDED.scene_summaries,
            duration_sec = EXCLUDED.duration_sec,
            video_url = COALESCE(NULLIF(EXCLUDED.video_url, ''), reel_analysis.video_url),
            expires_at = EXCLUDED.expires_at
    `, m.ReelHash, m.CanonicalURL, m.Transcript, m.Tone, m.HookType, m.Niche,
		m.ContentType, cues, scenes, m.DurationSec, nullStr(m.VideoURL), m.ExpiresAt)
	return err
}

func (a *analyses) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := a.db.ExecContext(ctx, `DELETE FROM reel_analysis WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// --- Dataset ---

type dataset struct{ db *sql.DB }

func (d *dataset) Insert(ctx context.Context, r *model.DatasetRecord) error {
	features, _ := json.Marshal(r.Features)
	_, err := d.db.ExecContext(ctx, `
        INSERT INTO dataset_records (id, schema_version, request_hash, subscriber_id,
                                     canonical_url, user_idea, script_text, generator,
                                     variation_index, mode, features, experiment, validated)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
    `, r.ID, r.SchemaVersion, r.RequestHash, r.SubscriberID,
		r.CanonicalURL, r.UserIdea, r.ScriptText, r.Generator,
		r.VariationIndex, r.Mode, nullIfEmpty(features), nullStr(r.Experiment), r.Validated)
	return err
}

func (d *dataset) AttachFeedback(ctx context.Context, requestHash, subscriberID string, rating *int, section map[string]string, text string, perf map[string]interface{}) error {
	sectionJSON, _ := json.Marshal(section)
	perfJSON, _ := json.Marshal(perf)
	res, err := d.db.ExecContext(ctx, `
        UPDATE dataset_records
        SET overall_rating = COALESCE($1, overall_rating),
            section_feedback = COALESCE($2, section_feedback),
            feedback_text = CASE WHEN $3 <> '' THEN $3 ELSE feedback_text END,
            video_performance = COALESCE($4, video_performance),
            feedback_time = now(),
            validated = true
        WHERE request_hash=$5 AND subscriber_id=$6
    `, rating, nullIfEmpty(sectionJSON), text, nullIfEmpty(perfJSON), requestHash, subscriberID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (d *dataset) List(ctx context.Context, limit, skip int, validatedOnly bool) ([]*model.DatasetRecord, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	query := `
        SELECT id, schema_version, request_hash, subscriber_id, canonical_url, user_idea,
               script_text, generator, variation_index, mode, features, experiment,
               overall_rating, section_feedback, feedback_text, video_performance,
               validated, creation_time, feedback_time
        FROM dataset_records`
	if validatedOnly {
		query += ` WHERE validated = true`
	}
	query += ` ORDER BY creation_time DESC LIMIT $1 OFFSET $2`
	rows, err := d.db.QueryContext(ctx, query, limit, skip)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*model.DatasetRecord
	for rows.Next() {
		var r model.DatasetRecord
		var features, section, perf []byte
		var rating sql.NullInt64
		var experiment, feedbackText sql.NullString
		var feedbackTime sql.NullTime
		if err := rows.Scan(&r.ID, &r.SchemaVersion, &r.RequestHash, &r.SubscriberID,
			&r.CanonicalURL, &r.UserIdea, &r.ScriptText, &r.Generator,
			&r.VariationIndex, &r.Mode, &features, &experiment,
			&rating, &section, &feedbackText, &perf,
			&r.Validated, &r.CreationTime, &feedbackTime); err != nil {
			return nil, err
		}
		if len(features) > 0 {
			_ = json.Unmarshal(features, &r.Features)
		}
		if len(section) > 0 {
			_ = json.Unmarshal(section, &r.SectionFeedback)
		}
		if len(perf) > 0 {
			_ = json.Unmarshal(perf, &r.VideoPerformance)
		}
		if rating.Valid {
			v := int(rating.Int64)
			r.OverallRating = &v
		}
		r.Experiment = experiment.String
		r.FeedbackText = feedbackText.String
		if feedbackTime.Valid {
			t := feedbackTime.Time
			r.FeedbackTime = &t
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (d *dataset) Stats(ctx context.Context) (*model.FeedbackStats, error) {
	var s model.FeedbackStats
	var avg sql.NullFloat64
	err := d.db.QueryRowContext(ctx, `
        SELECT count(*),
               count(overall_rating),
               avg(overall_rating),
               count(*) FILTER (WHERE overall_rating >= 4),
               count(*) FILTER (WHERE overall_rating <= 2)
        FROM dataset_records
    `).Scan(&s.TotalRecords, &s.RatedRecords, &avg, &s.Positive, &s.Negative)
	if err != nil {
		return nil, err
	}
	s.AverageRating = avg.Float64
	return &s, nil
}

// --- UserMemory ---

type userMemory struct{ db *sql.DB }

func (m *userMemory) Get(ctx context.Context, subscriberID string) (*model.UserMemory, error) {
	var out model.UserMemory
	var tone sql.NullString
	var liked, disliked []byte
	row := m.db.QueryRowContext(ctx, `
        SELECT subscriber_id, preferred_tone, liked_hooks, disliked_hooks,
               positive_count, negative_count, update_time
        FROM user_memory WHERE subscriber_id=$1
    `, subscriberID)
	if err := row.Scan(&out.SubscriberID, &tone, &liked, &disliked,
		&out.PositiveCount, &out.NegativeCount, &out.UpdateTime); err != nil {
		return nil, mapNotFound(err)
	}
	out.PreferredTone = tone.String
	if len(liked) > 0 {
		_ = json.Unmarshal(liked, &out.LikedHooks)
	}
	if len(disliked) > 0 {
		_ = json.Unmarshal(disliked, &out.DislikedHooks)
	}
	return &out, nil
}

func (m *userMemory) ApplyFeedback(ctx context.Context, subscriberID string, positive bool, tone, hookLine string) error {
	existing, err := m.Get(ctx, subscriberID)
	if errors.Is(err, model.ErrNotFound) {
		existing = &model.UserMemory{SubscriberID: subscriberID}
	} else if err != nil {
		return err
	}

	if positive {
		existing.PositiveCount++
		if tone != "" {
			existing.PreferredTone = tone
		}
		if hookLine != "" {
			existing.LikedHooks = appendCapped(existing.LikedHooks, hookLine, 10)
		}
	} else {
		existing.NegativeCount++
		if hookLine != "" {
			existing.DislikedHooks = appendCapped(existing.DislikedHooks, hookLine, 10)
		}
	}

	liked, _ := json.Marshal(existing.LikedHooks)
	disliked, _ := json.Marshal(existing.DislikedHooks)
	_, err = m.db.ExecContext(ctx, `
        INSERT INTO user_memory (subscriber_id, preferred_tone, liked_hooks, disliked_hooks,
                                 positive_count, negative_count, update_time)
        VALUES ($1,$2,$3,$4,$5,$6,now())
        ON CONFLICT (subscriber_id) DO UPDATE SET
            preferred_tone = EXCLUDED.preferred_tone,
            liked_hooks = EXCLUDED.liked_hooks,
            disliked_hooks = EXCLUDED.disliked_hooks,
            positive_count = EXCLUDED.positive_count,
            negative_count = EXCLUDED.negative_count,
            update_time = now()
    `, subscriberID, nullStr(existing.PreferredTone), nullIfEmpty(liked), nullIfEmpty(disliked),
		existing.PositiveCount, existing.NegativeCount)
	return err
}

func appendCapped(list []string, v string, limit int) []string {
	list = append(list, v)
	if len(list) > limit {
		list = list[len(list)-limit:]
	}
	return list
}

// helpers

func nullStr(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullIfEmpty(b []byte) interface{} {
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	return b
}
