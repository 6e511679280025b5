package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/reelscript/reelscript/internal/adapters"
	"github.com/reelscript/reelscript/internal/api/respond"
	"github.com/reelscript/reelscript/internal/breaker"
	"github.com/reelscript/reelscript/internal/config"
	"github.com/reelscript/reelscript/internal/events"
	"github.com/reelscript/reelscript/internal/health"
	"github.com/reelscript/reelscript/internal/observability"
	"github.com/reelscript/reelscript/internal/platform/factory"
	"github.com/reelscript/reelscript/internal/platform/logger"
	"github.com/reelscript/reelscript/internal/queue"
	"github.com/reelscript/reelscript/internal/session"
	"github.com/reelscript/reelscript/internal/store"
	"github.com/reelscript/reelscript/internal/worker"
)

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the pipeline worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker()
		},
	}
}

func runWorker() error {
	log := logger.New("reelscript-worker")

	cfg, err := config.New()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, db, err := factory.NewStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Durable store unavailable")
	}
	defer func() { _ = db.Close() }()

	eph, err := factory.NewEphemeral(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Ephemeral store unavailable")
	}
	defer func() { _ = eph.Close() }()

	metrics := observability.New()
	bus := events.NewBus(256)
	breakers := breaker.NewRegistry(breaker.Settings{
		FailureThreshold: cfg.BreakerFailureThreshold,
		ResetTimeout:     cfg.BreakerResetTimeout,
		SuccessThreshold: cfg.BreakerSuccessThreshold,
		FailureWindow:    cfg.BreakerFailureWindow,
	}, eph, bus, log)

	downloader := adapters.NewDownloader(cfg.YtDlpPath, cfg.CookiesPath, cfg.MaxVideoSeconds, cfg.MaxVideoBytes,
		breakers.Get(adapters.CircuitDownload), cfg.DownloadTimeout, log)
	extractor := adapters.NewExtractor(cfg.FFmpegPath, cfg.FFprobePath,
		breakers.Get(adapters.CircuitAnalysis), cfg.AdapterTimeout, log)
	generator := adapters.NewGenerator(cfg.OpenAIKey, cfg.GeneratorModel,
		breakers.Get(adapters.CircuitGeneration), breakers.Get(adapters.CircuitAnalysis), cfg.AdapterTimeout, log)
	messenger := adapters.NewMessenger(cfg.ManychatBaseURL, cfg.ManychatAPIKey,
		breakers.Get(adapters.CircuitMessaging), cfg.AdapterTimeout, log)

	var uploader adapters.Uploader = adapters.NoopUploader{}
	if cfg.ImageProvider == "gcs" {
		gcs, err := adapters.NewGCSUploader(ctx, cfg.GCSBucket,
			breakers.Get(adapters.CircuitUpload), cfg.AdapterTimeout, log)
		if err != nil {
			log.Fatal().Err(err).Msg("GCS uploader unavailable")
		}
		uploader = gcs
	}

	sessions := session.NewManager(eph, cfg.SessionTTL, log)

	renderer := adapters.NewCardRenderer(log)

	w := worker.New(st, sessions, downloader, extractor, generator, uploader, renderer, messenger, worker.Config{
		BaseURL:           cfg.BaseURL,
		CopyURLField:      cfg.CopyURLField,
		ImageURLField:     cfg.ImageURLField,
		DirectMessageSend: cfg.DirectMessageSend,
		JobTimeout:        cfg.JobTimeout,
		AnalysisTTL:       cfg.AnalysisTTL,
		AnalysisMode:      cfg.AnalysisMode,
		TempRoot:          cfg.TempRoot,
		MaxAttempts:       cfg.QueueMaxAttempts,
		MaxVideoSeconds:   cfg.MaxVideoSeconds,
	}, metrics, bus, log)

	consumer := queue.NewConsumer(db, w.Handle, queue.Config{
		Concurrency:     cfg.QueueConcurrency,
		StartsPerMinute: cfg.QueueStartsPerMinute,
		MaxAttempts:     cfg.QueueMaxAttempts,
		Retention:       cfg.JobRetention,
	}, bus, log)

	// Health monitor over the stores and the messaging platform
	probeTimeout := time.Duration(cfg.HealthProbeTimeoutSeconds) * time.Second
	interval := time.Duration(cfg.HealthIntervalSeconds) * time.Second
	checkers := []health.HealthChecker{
		health.NewPingChecker("ephemeral", eph, log, probeTimeout),
		health.NewPingChecker("manychat", messenger, log, probeTimeout),
	}
	if pinger, ok := st.(health.HealthPinger); ok {
		checkers = append(checkers, health.NewPingChecker("postgres", pinger, log, probeTimeout))
	}
	svcHealth := health.NewServiceHealthChecker(log, checkers...)
	for _, c := range checkers {
		go c.Start(ctx, interval)
	}
	go svcHealth.Start(ctx, interval)

	go consumeEvents(ctx, bus, metrics, log)
	go gaugeLoop(ctx, consumer, breakers, metrics, log)
	go janitor(ctx, st.Analyses(), log)

	// Telemetry sidecar endpoint
	telemetry := &http.Server{Addr: cfg.GetHTTPAddr(), Handler: telemetryRouter(metrics, svcHealth, breakers)}
	go func() {
		log.Info().Int("port", cfg.HTTPPort).Msg("worker telemetry starting")
		if err := telemetry.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("telemetry server failed")
		}
	}()

	runErr := make(chan error, 1)
	go func() { runErr <- consumer.Run(ctx) }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
		log.Info().Msg("Shutting down worker…")
		cancel()
		<-runErr
	case err := <-runErr:
		if err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("consumer stopped")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = telemetry.Shutdown(shutdownCtx)
	log.Info().Msg("Worker exited")
	return nil
}

func telemetryRouter(metrics *observability.Metrics, svcHealth *health.ServiceHealthChecker, breakers *breaker.Registry) *mux.Router {
	router := mux.NewRouter()
	router.Handle("/metrics", metrics.Handler()).Methods("GET")
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		status, label := http.StatusOK, "ok"
		if !svcHealth.IsHealthy() {
			status, label = http.StatusServiceUnavailable, "unhealthy"
		}
		states := map[string]string{}
		for service, state := range breakers.States() {
			states[service] = state.String()
		}
		respond.WriteJSON(w, status, map[string]interface{}{
			"status":     label,
			"components": svcHealth.Components(),
			"breakers":   states,
		})
	}).Methods("GET")
	return router
}

// janitor runs the reel-analysis expiry sweep. Job stall recovery and
// terminal eviction belong to the queue's own sweep loop.
func janitor(ctx context.Context, analyses store.Analyses, log zerolog.Logger) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := analyses.DeleteExpired(ctx, time.Now()); err != nil {
				log.Warn().Err(err).Msg("analysis expiry sweep failed")
			} else if n > 0 {
				log.Info().Int64("expired", n).Msg("expired reel analyses removed")
			}
		}
	}
}

// consumeEvents drains the internal bus: breaker transitions update the
// state gauge, job events become log lines.
func consumeEvents(ctx context.Context, bus *events.Bus, metrics *observability.Metrics, log zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-bus.Subscribe():
			switch evt.Kind {
			case events.EventBreakerStateChanged:
				metrics.SetBreakerState(evt.Service, evt.State)
				log.Warn().Str("service", evt.Service).Str("state", evt.State).Msg("breaker state changed")
			case events.EventJobCompleted:
				log.Info().Str("job_id", evt.JobID).Msg("job completed")
			case events.EventJobFailed:
				log.Warn().Str("job_id", evt.JobID).Str("detail", evt.Detail).Msg("job failed")
			case events.EventJobStalled:
				log.Warn().Str("job_id", evt.JobID).Msg("job recovered from stall")
			case events.EventJobProgress:
				log.Debug().Str("job_id", evt.JobID).Str("stage", evt.Stage).Msg("job progress")
			}
		}
	}
}

// gaugeLoop refreshes the queue depth and breaker gauges, and pulls the
// shared breaker mirror so sibling workers agree on OPEN services.
func gaugeLoop(ctx context.Context, consumer *queue.Consumer, breakers *breaker.Registry,
	metrics *observability.Metrics, log zerolog.Logger) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if depth, err := consumer.Depth(ctx); err == nil {
				metrics.QueueDepth.Set(float64(depth))
			} else {
				log.Debug().Err(err).Msg("queue depth probe failed")
			}
			for service, state := range breakers.States() {
				metrics.SetBreakerState(service, state.String())
				breakers.Get(service).SyncFromMirror(ctx)
			}
		}
	}
}
