package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/acmedental/scheduling-assistant/internal/cache"
	"github.com/acmedental/scheduling-assistant/internal/eventlog"
	"github.com/acmedental/scheduling-assistant/internal/webhook"
)

type RouterConfig struct {
	Cache          *cache.SchedulingCache
	Agent          ChatAgent
	Webhook        *webhook.Handler
	SigningKey     string          // empty disables webhook signature checks
	RequestTimeout time.Duration   // budget for one chat turn
	EventLog       *eventlog.Store // optional, exposes the event audit trail
	PgPool         *pgxpool.Pool   // optional
	Redis          *redis.Client   // optional
	Env            string
	Version        string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)

	health := NewHealthHandler(cfg.Cache, cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health", health.Health)

	r.Get("/", rootHandler())
	r.Post("/chat", chatHandler(cfg.Agent, cfg.RequestTimeout))
	r.Post("/chat/stream", chatStreamHandler(cfg.Agent, cfg.RequestTimeout))
	r.Get("/availability", availabilityHandler(cfg.Cache))
	r.Post("/bookings/search", bookingSearchHandler(cfg.Cache))
	r.Get("/stats", statsHandler(cfg.Cache))
	r.Post("/webhooks/calendly", webhookHandler(cfg.Webhook, cfg.SigningKey))
	if cfg.EventLog != nil {
		r.Get("/webhooks/events", webhookEventsHandler(cfg.EventLog))
	}

	return r
}
