package postgres

import (
	"context"
	"database/sql"
)

// Schema is applied at boot; every statement is idempotent so repeated
// startups are safe.
const Schema = `
CREATE SEQUENCE IF NOT EXISTS beta_seq;

CREATE TABLE IF NOT EXISTS users (
    subscriber_id       TEXT PRIMARY KEY,
    status              TEXT NOT NULL DEFAULT 'active',
    registration_number BIGINT,
    request_count       BIGINT NOT NULL DEFAULT 0,
    last_request_time   TIMESTAMPTZ,
    creation_time       TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS users_status_created_idx ON users (status, creation_time);

CREATE TABLE IF NOT EXISTS scripts (
    request_hash    TEXT PRIMARY KEY,
    public_id       TEXT NOT NULL UNIQUE,
    subscriber_id   TEXT NOT NULL,
    reel_url        TEXT NOT NULL,
    user_idea       TEXT NOT NULL,
    script_text     TEXT NOT NULL,
    image_url       TEXT,
    script_url      TEXT,
    generator       TEXT NOT NULL,
    generation_ms   BIGINT NOT NULL DEFAULT 0,
    quality_score   DOUBLE PRECISION,
    variation_index INT NOT NULL DEFAULT 0,
    mode            TEXT NOT NULL DEFAULT 'full',
    is_copy_mode    BOOLEAN NOT NULL DEFAULT false,
    creation_time   TIMESTAMPTZ NOT NULL DEFAULT now(),
    scored_time     TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS scripts_subscriber_created_idx ON scripts (subscriber_id, creation_time);
CREATE INDEX IF NOT EXISTS scripts_reel_url_idx ON scripts (reel_url, creation_time);

CREATE TABLE IF NOT EXISTS jobs (
    job_id           TEXT PRIMARY KEY,
    subscriber_id    TEXT NOT NULL,
    request_hash     TEXT NOT NULL,
    status           TEXT NOT NULL DEFAULT 'queued',
    attempt_count    INT NOT NULL DEFAULT 0,
    error_summary    TEXT,
    result_public_id TEXT,
    payload          JSONB NOT NULL,
    creation_time    TIMESTAMPTZ NOT NULL DEFAULT now(),
    started_time     TIMESTAMPTZ,
    completed_time   TIMESTAMPTZ,
    heartbeat_time   TIMESTAMPTZ,
    next_attempt_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
-- at most one live job per request hash
CREATE UNIQUE INDEX IF NOT EXISTS jobs_active_request_hash_idx
    ON jobs (request_hash) WHERE status IN ('queued','processing');
CREATE INDEX IF NOT EXISTS jobs_status_created_idx ON jobs (status, creation_time);

CREATE TABLE IF NOT EXISTS reel_analysis (
    reel_hash       TEXT PRIMARY KEY,
    canonical_url   TEXT NOT NULL,
    transcript      TEXT NOT NULL DEFAULT '',
    tone            TEXT NOT NULL DEFAULT '',
    hook_type       TEXT NOT NULL DEFAULT '',
    niche           TEXT NOT NULL DEFAULT '',
    content_type    TEXT NOT NULL DEFAULT '',
    visual_cues     JSONB,
    scene_summaries JSONB,
    duration_sec    DOUBLE PRECISION NOT NULL DEFAULT 0,
    video_url       TEXT,
    creation_time   TIMESTAMPTZ NOT NULL DEFAULT now(),
    expires_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS reel_analysis_expires_idx ON reel_analysis (expires_at);

CREATE TABLE IF NOT EXISTS dataset_records (
    id                TEXT PRIMARY KEY,
    schema_version    INT NOT NULL,
    request_hash      TEXT NOT NULL,
    subscriber_id     TEXT NOT NULL,
    canonical_url     TEXT NOT NULL,
    user_idea         TEXT NOT NULL,
    script_text       TEXT NOT NULL,
    generator         TEXT NOT NULL,
    variation_index   INT NOT NULL DEFAULT 0,
    mode              TEXT NOT NULL DEFAULT 'full',
    features          JSONB,
    experiment        TEXT,
    overall_rating    INT,
    section_feedback  JSONB,
    feedback_text     TEXT,
    video_performance JSONB,
    validated         BOOLEAN NOT NULL DEFAULT false,
    creation_time     TIMESTAMPTZ NOT NULL DEFAULT now(),
    feedback_time     TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS dataset_request_hash_idx ON dataset_records (request_hash, subscriber_id);

CREATE TABLE IF NOT EXISTS user_memory (
    subscriber_id  TEXT PRIMARY KEY,
    preferred_tone TEXT,
    liked_hooks    JSONB,
    disliked_hooks JSONB,
    positive_count INT NOT NULL DEFAULT 0,
    negative_count INT NOT NULL DEFAULT 0,
    update_time    TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Bootstrap applies the schema.
func Bootstrap(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, Schema)
	return err
}
