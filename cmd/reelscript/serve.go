package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/reelscript/reelscript/internal/api"
	"github.com/reelscript/reelscript/internal/config"
	"github.com/reelscript/reelscript/internal/gate"
	"github.com/reelscript/reelscript/internal/health"
	"github.com/reelscript/reelscript/internal/observability"
	"github.com/reelscript/reelscript/internal/platform/factory"
	"github.com/reelscript/reelscript/internal/platform/logger"
	"github.com/reelscript/reelscript/internal/session"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the ingress HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	log := logger.New("reelscript-api")

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
	sessions := session.NewManager(eph, cfg.SessionTTL, log)
	variations := session.NewVariations(eph, cfg.VariationTTL, cfg.SoftVariationLimit)
	accessGate := gate.New(st.Users(), eph, cfg.BetaCapacity, cfg.UserRateLimitPerHour, time.Hour, log)

	// Health monitor over the two stores
	probeTimeout := time.Duration(cfg.HealthProbeTimeoutSeconds) * time.Second
	interval := time.Duration(cfg.HealthIntervalSeconds) * time.Second
	checkers := []health.HealthChecker{
		health.NewPingChecker("ephemeral", eph, log, probeTimeout),
	}
	if pinger, ok := st.(health.HealthPinger); ok {
		checkers = append(checkers, health.NewPingChecker("postgres", pinger, log, probeTimeout))
	}
	svcHealth := health.NewServiceHealthChecker(log, checkers...)
	for _, c := range checkers {
		go c.Start(ctx, interval)
	}
	go svcHealth.Start(ctx, interval)

	// Session gauge
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if keys, err := eph.Keys(ctx, "session:"); err == nil {
					metrics.ActiveSessions.Set(float64(len(keys)))
				}
			}
		}
	}()

	router := api.NewRouter(api.RouterDeps{
		Store:      st,
		Ephemeral:  eph,
		Gate:       accessGate,
		Sessions:   sessions,
		Variations: variations,
		Metrics:    metrics,
		Health:     svcHealth,
		AdminKey:   cfg.AdminAPIKey,
		RateRPS:    float64(cfg.IPRateLimitPerMinute) / 60.0,
		RateBurst:  cfg.IPRateLimitPerMinute,
		Log:        log,
	})

	server := &http.Server{
		Addr:         cfg.GetHTTPAddr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.HTTPPort).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server…")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited")
	return nil
}
