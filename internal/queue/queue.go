// Package queue is the durable job queue consumer. Delivery is
// at-least-once: a claimed job whose process dies is recovered by the stall
// sweep and retried. Deduplication happens at insert time via the caller
// supplied jobId and the active-request-hash unique index.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/reelscript/reelscript/internal/events"
	"github.com/reelscript/reelscript/internal/model"
)

// Handler executes one job attempt. The job's AttemptCount reflects the
// running attempt (1-based); handlers use it to detect the final attempt.
type Handler func(ctx context.Context, job *model.Job) error

// SQL kept as constants, one statement per lifecycle transition.
const (
	claimSQL = `
UPDATE jobs
SET status = 'processing',
    attempt_count = attempt_count + 1,
    started_time = now(),
    heartbeat_time = now()
WHERE job_id = (
    SELECT job_id FROM jobs
    WHERE status = 'queued' AND next_attempt_at <= now()
    ORDER BY creation_time ASC
    FOR UPDATE SKIP LOCKED
    LIMIT 1
)
RETURNING job_id, subscriber_id, request_hash, attempt_count, payload, creation_time`

	completeSQL = `
UPDATE jobs
SET status = 'completed', completed_time = now(), heartbeat_time = now(), result_public_id = $2
WHERE job_id = $1`

	retrySQL = `
UPDATE jobs
SET status = 'queued', error_summary = $2, next_attempt_at = $3, heartbeat_time = NULL
WHERE job_id = $1`

	failSQL = `
UPDATE jobs
SET status = 'failed', completed_time = now(), error_summary = $2, result_public_id = NULLIF($3, '')
WHERE job_id = $1`

	heartbeatSQL = `UPDATE jobs SET heartbeat_time = now() WHERE job_id = $1 AND status = 'processing'`

	recoverStalledSQL = `
UPDATE jobs
SET status = 'queued', next_attempt_at = now(), error_summary = 'stalled: heartbeat lapsed', heartbeat_time = NULL
WHERE status = 'processing' AND heartbeat_time < now() - make_interval(secs => $1)
RETURNING job_id`

	evictSQL = `
DELETE FROM jobs
WHERE status IN ('completed','failed') AND completed_time < now() - make_interval(secs => $1)`

	depthSQL = `SELECT count(*) FROM jobs WHERE status = 'queued'`
)

// Config controls the consumer.
type Config struct {
	Concurrency       int           // simultaneous jobs per process
	StartsPerMinute   int           // queue-wide start rate, distinct from user quotas
	MaxAttempts       int           // total attempts before terminal failure
	BaseBackoff       time.Duration // first retry delay, doubled per attempt
	PollInterval      time.Duration // idle poll cadence
	HeartbeatInterval time.Duration
	StallAfter        time.Duration // heartbeat age that counts as stalled
	Retention         time.Duration // terminal record lifetime
	SweepInterval     time.Duration
}

func (c *Config) applyDefaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 5
	}
	if c.StartsPerMinute <= 0 {
		c.StartsPerMinute = 10
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 2 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 15 * time.Second
	}
	if c.StallAfter <= 0 {
		c.StallAfter = 2 * time.Minute
	}
	if c.Retention <= 0 {
		c.Retention = 7 * 24 * time.Hour
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Minute
	}
}

// Consumer claims queued jobs and runs them through the handler.
type Consumer struct {
	db      *sql.DB
	handler Handler
	cfg     Config
	bus     *events.Bus
	log     zerolog.Logger
	limiter *rate.Limiter
	sem     *semaphore.Weighted
	wg      sync.WaitGroup
}

func NewConsumer(db *sql.DB, handler Handler, cfg Config, bus *events.Bus, log zerolog.Logger) *Consumer {
	cfg.applyDefaults()
	return &Consumer{
		db:      db,
		handler: handler,
		cfg:     cfg,
		bus:     bus,
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(float64(cfg.StartsPerMinute)/60.0), cfg.StartsPerMinute),
		sem:     semaphore.NewWeighted(int64(cfg.Concurrency)),
	}
}

// Run claims and executes jobs until ctx is canceled, then waits for
// in-flight jobs to finish.
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Info().
		Int("concurrency", c.cfg.Concurrency).
		Int("starts_per_minute", c.cfg.StartsPerMinute).
		Msg("queue consumer starting")

	c.wg.Add(1)
	go c.sweepLoop(ctx)

	for {
		if err := c.limiter.Wait(ctx); err != nil {
			break
		}
		if err := c.sem.Acquire(ctx, 1); err != nil {
			break
		}

		job, err := c.claim(ctx)
		if err != nil {
			c.sem.Release(1)
			c.log.Error().Err(err).Msg("claim failed")
			if !sleepCtx(ctx, c.cfg.PollInterval) {
				break
			}
			continue
		}
		if job == nil {
			c.sem.Release(1)
			if !sleepCtx(ctx, c.cfg.PollInterval) {
				break
			}
			continue
		}

		c.wg.Add(1)
		go func(job *model.Job) {
			defer c.wg.Done()
			defer c.sem.Release(1)
			c.execute(ctx, job)
		}(job)
	}

	c.log.Info().Msg("queue consumer stopping")
	c.wg.Wait()
	return ctx.Err()
}

// claim leases the oldest ready job, marking it processing in the same
// statement so a crash between claim and execute is recoverable.
func (c *Consumer) claim(ctx context.Context) (*model.Job, error) {
	var (
		job model.Job
		raw []byte
	)
	err := c.db.QueryRowContext(ctx, claimSQL).Scan(
		&job.JobID, &job.SubscriberID, &job.RequestHash, &job.AttemptCount, &raw, &job.CreationTime,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	job.Status = model.JobProcessing
	if err := json.Unmarshal(raw, &job.Payload); err != nil {
		// poison pill: fail terminally rather than hot-loop
		c.finish(ctx, &job, "bad payload: "+err.Error(), "")
		return nil, nil
	}
	return &job, nil
}

func (c *Consumer) execute(ctx context.Context, job *model.Job) {
	log := c.log.With().Str("job", job.JobID).Int("attempt", job.AttemptCount).Logger()
	log.Info().Msg("job started")

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go c.heartbeatLoop(hbCtx, job.JobID)

	err := c.handler(ctx, job)
	stopHeartbeat()

	if err == nil {
		if _, e := c.db.ExecContext(ctx, completeSQL, job.JobID, job.ResultPublicID); e != nil {
			log.Error().Err(e).Msg("mark completed failed")
		}
		c.publish(events.Event{Kind: events.EventJobCompleted, JobID: job.JobID})
		log.Info().Msg("job completed")
		return
	}

	class := model.ErrorClass(err)
	if model.IsRetryable(err) && job.AttemptCount < c.cfg.MaxAttempts {
		nextAt := time.Now().Add(Backoff(job.AttemptCount, c.cfg.BaseBackoff))
		if _, e := c.db.ExecContext(ctx, retrySQL, job.JobID, class+": "+err.Error(), nextAt); e != nil {
			log.Error().Err(e).Msg("schedule retry failed")
		}
		log.Warn().Err(err).Str("class", class).Time("next_attempt", nextAt).Msg("job retry scheduled")
		return
	}

	c.finish(ctx, job, class+": "+err.Error(), job.ResultPublicID)
	c.publish(events.Event{Kind: events.EventJobFailed, JobID: job.JobID, Detail: class})
	log.Error().Err(err).Str("class", class).Msg("job failed terminally")
}

func (c *Consumer) finish(ctx context.Context, job *model.Job, summary, publicID string) {
	if _, err := c.db.ExecContext(ctx, failSQL, job.JobID, summary, publicID); err != nil {
		c.log.Error().Err(err).Str("job", job.JobID).Msg("mark failed error")
	}
}

func (c *Consumer) heartbeatLoop(ctx context.Context, jobID string) {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.db.ExecContext(ctx, heartbeatSQL, jobID); err != nil {
				c.log.Warn().Err(err).Str("job", jobID).Msg("heartbeat failed")
			}
		}
	}
}

// sweepLoop recovers stalled jobs and evicts expired terminal records.
func (c *Consumer) sweepLoop(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.recoverStalled(ctx)
			c.evictExpired(ctx)
		}
	}
}

func (c *Consumer) recoverStalled(ctx context.Context) {
	rows, err := c.db.QueryContext(ctx, recoverStalledSQL, c.cfg.StallAfter.Seconds())
	if err != nil {
		c.log.Error().Err(err).Msg("stall sweep failed")
		return
	}
	defer rows.Close()
	for rows.Next() {
		var jobID string
		if err := rows.Scan(&jobID); err != nil {
			c.log.Error().Err(err).Msg("stall sweep scan")
			return
		}
		c.log.Warn().Str("job", jobID).Msg("stalled job recovered")
		c.publish(events.Event{Kind: events.EventJobStalled, JobID: jobID})
	}
}

func (c *Consumer) evictExpired(ctx context.Context) {
	res, err := c.db.ExecContext(ctx, evictSQL, c.cfg.Retention.Seconds())
	if err != nil {
		c.log.Error().Err(err).Msg("eviction sweep failed")
		return
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		c.log.Info().Int64("evicted", n).Msg("terminal jobs evicted")
	}
}

// Depth reports the number of queued jobs, for telemetry.
func (c *Consumer) Depth(ctx context.Context) (int64, error) {
	var n int64
	err := c.db.QueryRowContext(ctx, depthSQL).Scan(&n)
	return n, err
}

func (c *Consumer) publish(evt events.Event) {
	if c.bus != nil {
		c.bus.Publish(evt)
	}
}

// Backoff returns the delay before the next attempt. attempt is the
// 1-based attempt that just failed. Exponential from the base, capped at
// five minutes.
func Backoff(attempt int, base time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= 5*time.Minute {
			return 5 * time.Minute
		}
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
