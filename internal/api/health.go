package api

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/acmedental/scheduling-assistant/internal/cache"
)

type HealthHandler struct {
	cache   *cache.SchedulingCache
	pgPool  *pgxpool.Pool // nil when the audit log is disabled
	redis   *redis.Client // nil when dedup is disabled
	env     string
	version string
}

func NewHealthHandler(schedCache *cache.SchedulingCache, pgPool *pgxpool.Pool, rdb *redis.Client, env, version string) *HealthHandler {
	return &HealthHandler{
		cache:   schedCache,
		pgPool:  pgPool,
		redis:   rdb,
		env:     env,
		version: version,
	}
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "ok",
		Version: h.version,
		Env:     h.env,
	}
	writeJSON(w, http.StatusOK, resp)
}

// Health reports overall status plus cache statistics and the state of the
// optional side-channel dependencies. The cache serves from memory, so a
// degraded Postgres or Redis never fails the endpoint outright.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "healthy"
	deps := make(map[string]string)

	if h.pgPool != nil {
		pgCtx, pgCancel := context.WithTimeout(ctx, time.Second)
		err := h.pgPool.Ping(pgCtx)
		pgCancel()
		if err != nil {
			deps["postgres"] = "down"
			status = "degraded"
		} else {
			deps["postgres"] = "ok"
		}
	}

	if h.redis != nil {
		redisCtx, redisCancel := context.WithTimeout(ctx, time.Second)
		err := h.redis.Ping(redisCtx).Err()
		redisCancel()
		if err != nil {
			deps["redis"] = "down"
			status = "degraded"
		} else {
			deps["redis"] = "ok"
		}
	}

	stats := h.cache.GetStats()
	resp := HealthResponse{
		Status:     status,
		Version:    h.version,
		Env:        h.env,
		CacheStats: &stats,
	}
	if len(deps) > 0 {
		resp.Dependencies = deps
	}

	writeJSON(w, http.StatusOK, resp)
}
