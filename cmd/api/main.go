package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/noah-isme/canasta/internal/app"
	"github.com/noah-isme/canasta/internal/config"
	"github.com/noah-isme/canasta/internal/events"
	"github.com/noah-isme/canasta/internal/health"
	"github.com/noah-isme/canasta/internal/lock"
	"github.com/noah-isme/canasta/internal/obs"
	"github.com/noah-isme/canasta/internal/queue"
	"github.com/noah-isme/canasta/internal/ratelimit"
	"github.com/noah-isme/canasta/internal/repo"
	"github.com/noah-isme/canasta/internal/resilience"
	"github.com/noah-isme/canasta/internal/security"
	"github.com/noah-isme/canasta/internal/shopping"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().
		Str("env", cfg.AppEnv).
		Str("component", "api").
		Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracingEnabled := cfg.Obs.EnableTracing
	if tracingEnabled {
		shutdown, err := obs.InitTracer(ctx, obs.TracingConfig{
			ServiceName:   cfg.Obs.ServiceName,
			Endpoint:      cfg.Obs.OTLPEndpoint,
			SamplingRatio: cfg.Obs.TracingSampleRate,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	deps, err := app.Open(ctx, cfg, cfg.Obs.ServiceName, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise dependencies")
	}
	defer deps.Close()

	queueOpt, err := app.QueueRedisOpt(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise queue")
	}
	taskClient := asynq.NewClient(queueOpt)
	defer func() {
		if err := taskClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close queue client")
		}
	}()

	var sessionMetrics *obs.SessionMetrics
	var httpMetrics *obs.HTTPMetrics
	var breakerMetrics *obs.BreakerMetrics
	if cfg.Obs.EnablePrometheus {
		sessionMetrics = obs.NewSessionMetrics(cfg.Obs.MetricsNamespace, prometheus.DefaultRegisterer)
		breakerMetrics = obs.NewBreakerMetrics(cfg.Obs.MetricsNamespace, prometheus.DefaultRegisterer)
		httpMetrics = obs.NewHTTPMetrics(cfg.Obs.MetricsNamespace, obs.ParseBucketsCSV(cfg.Obs.MetricsBucketsMS), prometheus.DefaultRegisterer)
	}

	bus := &events.Bus{}
	var promotions shopping.PromotionSource
	var db health.Pinger
	if deps.DB != nil {
		db = deps.DB
		bus.Store = repo.EventRepo{DB: deps.DB}
		bus.Notifiers = append(bus.Notifiers, queue.SyncPublisher{Client: taskClient})
		promotions = shopping.GuardedPromotions{
			Source: repo.PromotionRepo{DB: deps.DB},
			Breaker: resilience.NewBreaker(5, 0.5, 30*time.Second,
				resilience.WithTarget("promotions"),
				resilience.WithLogger(logger),
				resilience.WithMetrics(breakerMetrics),
			),
		}
	}

	svc := &shopping.Service{
		Store: repo.SessionCache{
			R:            deps.Redis,
			TTL:          cfg.SessionTTL,
			HistoryLimit: cfg.SessionHistory,
		},
		Locker:       lock.Locker{R: deps.Redis, MaxWait: 2 * cfg.SessionLockTTL},
		LockTTL:      cfg.SessionLockTTL,
		Promotions:   promotions,
		Bus:          bus,
		Metrics:      sessionMetrics,
		Logger:       logger.With().Str("module", "shopping").Logger(),
		HistoryLimit: cfg.SessionHistory,
	}
	shoppingHandler := &shopping.Handler{Svc: svc}

	limiterStore, err := ratelimit.NewRedisStore(deps.Redis, "canasta:ratelimit")
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise rate limiter")
	}
	rateLimit := ratelimit.Handler{
		Limiter: ratelimit.StoreLimiter{Store: limiterStore},
		Config: ratelimit.Config{
			Key:    ratelimit.ClientKey,
			Window: time.Minute,
			Max:    cfg.RateLimitPerMinute,
		},
		OnError: func(err error) {
			logger.Warn().Err(err).Msg("rate limiter unavailable")
		},
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{Enable: true, EnableHSTS: cfg.AppEnv == "production"}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins(cfg),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		MaxAge:         300,
	}))

	if cfg.Obs.EnablePrometheus {
		r.Handle("/metrics", promhttp.Handler())
	}

	healthHandler := health.Handler{
		Checker:      health.Probes{Redis: deps.Redis, DB: db},
		DBTimeout:    500 * time.Millisecond,
		RedisTimeout: 300 * time.Millisecond,
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(rateLimit.Middleware)
		v.Use(security.BodyLimit{Max: cfg.MaxBodyBytes}.Middleware)
		shoppingHandler.Register(v)
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Bool("remote_sync", cfg.RemoteSyncEnabled()).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	}()

	<-ctx.Done()
	shutdown(srv, logger)
}

func shutdown(srv *http.Server, logger zerolog.Logger) {
	health.SetReady(false)
	logger.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}
