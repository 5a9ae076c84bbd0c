// AngelaMos | 2026
// handler.go

package admin

import (
	"context"
	"database/sql"
	"net/http"
	"runtime"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/carterperez-dev/gatepass/internal/core"
	"github.com/carterperez-dev/gatepass/internal/gate"
)

type TotalsSource interface {
	Totals(ctx context.Context) (*gate.Totals, error)
}

type HandlerConfig struct {
	Totals        TotalsSource
	SchemaVersion func() (int64, error)
	DBStats       func() sql.DBStats
	DBPing        func(ctx context.Context) error
	RedisStats    func() *redis.PoolStats
	RedisPing     func(ctx context.Context) error
}

// Handler serves the operator overview to clients holding the ops scope.
type Handler struct {
	cfg HandlerConfig
}

func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{cfg: cfg}
}

func (h *Handler) RegisterRoutes(r chi.Router, guards ...func(http.Handler) http.Handler) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(guards...)

		r.Get("/stats", h.GetSystemStats)
		r.Get("/stats/gate", h.GetGateStats)
		r.Get("/stats/db", h.GetDatabaseStats)
		r.Get("/stats/redis", h.GetRedisStats)
		r.Get("/stats/runtime", h.GetRuntimeStats)
	})
}

func (h *Handler) GetSystemStats(w http.ResponseWriter, r *http.Request) {
	var (
		totals       *gate.Totals
		dbHealthy    = true
		redisHealthy = true
	)

	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		totals, err = h.totals(ctx)
		return err
	})
	g.Go(func() error {
		dbHealthy = ping(ctx, h.cfg.DBPing)
		return nil
	})
	g.Go(func() error {
		redisHealthy = ping(ctx, h.cfg.RedisPing)
		return nil
	})

	if err := g.Wait(); err != nil {
		core.InternalServerError(w, err)
		return
	}

	core.OK(w, SystemStatsResponse{
		Gate: totals,
		Database: DatabaseStatus{
			Healthy:       dbHealthy,
			SchemaVersion: h.schemaVersion(),
			Stats:         h.dbStats(),
		},
		Redis: RedisStatus{
			Healthy: redisHealthy,
			Stats:   h.redisStats(),
		},
		Runtime: runtimeStats(),
	})
}

func (h *Handler) GetGateStats(w http.ResponseWriter, r *http.Request) {
	totals, err := h.totals(r.Context())
	if err != nil {
		core.InternalServerError(w, err)
		return
	}
	core.OK(w, totals)
}

func (h *Handler) GetDatabaseStats(w http.ResponseWriter, _ *http.Request) {
	core.OK(w, h.dbStats())
}

func (h *Handler) GetRedisStats(w http.ResponseWriter, _ *http.Request) {
	core.OK(w, h.redisStats())
}

func (h *Handler) GetRuntimeStats(w http.ResponseWriter, _ *http.Request) {
	core.OK(w, runtimeStats())
}

func (h *Handler) totals(ctx context.Context) (*gate.Totals, error) {
	if h.cfg.Totals == nil {
		return nil, nil
	}
	return h.cfg.Totals.Totals(ctx)
}

func (h *Handler) schemaVersion() int64 {
	if h.cfg.SchemaVersion == nil {
		return 0
	}
	v, err := h.cfg.SchemaVersion()
	if err != nil {
		return 0
	}
	return v
}

func ping(ctx context.Context, fn func(context.Context) error) bool {
	if fn == nil {
		return true
	}
	return fn(ctx) == nil
}

func (h *Handler) dbStats() *DBPoolStats {
	if h.cfg.DBStats == nil {
		return nil
	}

	stats := h.cfg.DBStats()
	return &DBPoolStats{
		MaxOpenConnections: stats.MaxOpenConnections,
		OpenConnections:    stats.OpenConnections,
		InUse:              stats.InUse,
		Idle:               stats.Idle,
		WaitCount:          stats.WaitCount,
		WaitDuration:       stats.WaitDuration.String(),
		MaxLifetimeClosed:  stats.MaxLifetimeClosed,
	}
}

func (h *Handler) redisStats() *RedisPoolStats {
	if h.cfg.RedisStats == nil {
		return nil
	}

	stats := h.cfg.RedisStats()
	return &RedisPoolStats{
		Hits:       stats.Hits,
		Misses:     stats.Misses,
		Timeouts:   stats.Timeouts,
		TotalConns: stats.TotalConns,
		IdleConns:  stats.IdleConns,
	}
}

func runtimeStats() RuntimeStats {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return RuntimeStats{
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
		MemAlloc:     mem.Alloc,
		NumGC:        mem.NumGC,
	}
}

type SystemStatsResponse struct {
	Gate     *gate.Totals   `json:"gate"`
	Database DatabaseStatus `json:"database"`
	Redis    RedisStatus    `json:"redis"`
	Runtime  RuntimeStats   `json:"runtime"`
}

type DatabaseStatus struct {
	Healthy       bool         `json:"healthy"`
	SchemaVersion int64        `json:"schema_version"`
	Stats         *DBPoolStats `json:"stats,omitempty"`
}

type RedisStatus struct {
	Healthy bool            `json:"healthy"`
	Stats   *RedisPoolStats `json:"stats,omitempty"`
}

type DBPoolStats struct {
	MaxOpenConnections int    `json:"max_open_connections"`
	OpenConnections    int    `json:"open_connections"`
	InUse              int    `json:"in_use"`
	Idle               int    `json:"idle"`
	WaitCount          int64  `json:"wait_count"`
	WaitDuration       string `json:"wait_duration"`
	MaxLifetimeClosed  int64  `json:"max_lifetime_closed"`
}

type RedisPoolStats struct {
	Hits       uint32 `json:"hits"`
	Misses     uint32 `json:"misses"`
	Timeouts   uint32 `json:"timeouts"`
	TotalConns uint32 `json:"total_conns"`
	IdleConns  uint32 `json:"idle_conns"`
}

type RuntimeStats struct {
	GoVersion    string `json:"go_version"`
	NumGoroutine int    `json:"num_goroutine"`
	MemAlloc     uint64 `json:"mem_alloc_bytes"`
	NumGC        uint32 `json:"num_gc"`
}
