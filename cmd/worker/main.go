package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/canasta/internal/app"
	"github.com/noah-isme/canasta/internal/config"
	"github.com/noah-isme/canasta/internal/obs"
	"github.com/noah-isme/canasta/internal/queue"
	"github.com/noah-isme/canasta/internal/repo"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().
		Str("env", cfg.AppEnv).
		Str("component", "worker").
		Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !cfg.RemoteSyncEnabled() {
		logger.Fatal().Msg("DATABASE_URL is required for the sync worker")
	}

	if cfg.Obs.EnableTracing {
		shutdown, err := obs.InitTracer(ctx, obs.TracingConfig{
			ServiceName:   cfg.Obs.ServiceName + "-worker",
			Endpoint:      cfg.Obs.OTLPEndpoint,
			SamplingRatio: cfg.Obs.TracingSampleRate,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	deps, err := app.Open(ctx, cfg, cfg.Obs.ServiceName+"-worker", logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise dependencies")
	}
	defer deps.Close()

	queueOpt, err := app.QueueRedisOpt(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise queue")
	}

	var metrics *obs.SessionMetrics
	var metricsSrv *http.Server
	if cfg.Obs.EnablePrometheus {
		metrics = obs.NewSessionMetrics(cfg.Obs.MetricsNamespace, prometheus.DefaultRegisterer)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("metrics server exited")
			}
		}()
	}
	mux := queue.NewServeMux(queue.SyncHandler{
		Store:   repo.SessionRepo{DB: deps.DB},
		Metrics: metrics,
		Logger:  logger,
	})

	srv := queue.NewServer(queueOpt, cfg.QueueConcurrency, logger)
	if err := srv.Start(mux); err != nil {
		logger.Fatal().Err(err).Msg("start worker")
	}
	logger.Info().Int("concurrency", cfg.QueueConcurrency).Msg("worker started")

	<-ctx.Done()
	logger.Info().Msg("worker stopping")
	srv.Shutdown()
	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
}
