package health

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/canasta/internal/common"
)

// ErrDisabled marks an optional dependency that is not configured.
var ErrDisabled = errors.New("disabled")

var ready atomic.Bool

func init() {
	ready.Store(true)
}

// SetReady toggles readiness, used to drain traffic during shutdown.
func SetReady(v bool) {
	ready.Store(v)
}

// Checker represents dependencies that can be probed for readiness.
type Checker interface {
	PingDB(ctx context.Context, timeout time.Duration) error
	PingRedis(ctx context.Context, timeout time.Duration) error
}

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Probes checks Redis and, when configured, Postgres.
type Probes struct {
	Redis redis.UniversalClient
	DB    Pinger
}

// PingDB pings Postgres, returning ErrDisabled when no database is configured.
func (p Probes) PingDB(ctx context.Context, timeout time.Duration) error {
	if p.DB == nil {
		return ErrDisabled
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.DB.Ping(ctx)
}

// PingRedis pings Redis.
func (p Probes) PingRedis(ctx context.Context, timeout time.Duration) error {
	if p.Redis == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.Redis.Ping(ctx).Err()
}

// Handler exposes HTTP handlers for health endpoints.
type Handler struct {
	Checker      Checker
	DBTimeout    time.Duration
	RedisTimeout time.Duration
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready reports readiness based on dependency probes. A disabled database does
// not fail readiness.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if !ready.Load() {
		common.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "shutting_down"})
		return
	}
	if h.Checker == nil {
		common.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "dependencies unavailable"})
		return
	}
	ctx := r.Context()
	healthy := true
	dbStatus := "ok"
	if err := h.Checker.PingDB(ctx, h.dbTimeout()); errors.Is(err, ErrDisabled) {
		dbStatus = ErrDisabled.Error()
	} else if err != nil {
		dbStatus = err.Error()
		healthy = false
	}
	redisStatus := "ok"
	if err := h.Checker.PingRedis(ctx, h.redisTimeout()); err != nil {
		redisStatus = err.Error()
		healthy = false
	}
	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	common.JSON(w, status, map[string]string{
		"db":    dbStatus,
		"redis": redisStatus,
	})
}

func (h Handler) dbTimeout() time.Duration {
	if h.DBTimeout <= 0 {
		return 500 * time.Millisecond
	}
	return h.DBTimeout
}

func (h Handler) redisTimeout() time.Duration {
	if h.RedisTimeout <= 0 {
		return 300 * time.Millisecond
	}
	return h.RedisTimeout
}
