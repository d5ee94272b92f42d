package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/acmedental/scheduling-assistant/internal/agent"
	"github.com/acmedental/scheduling-assistant/internal/api"
	"github.com/acmedental/scheduling-assistant/internal/cache"
	"github.com/acmedental/scheduling-assistant/internal/calendly"
	"github.com/acmedental/scheduling-assistant/internal/config"
	"github.com/acmedental/scheduling-assistant/internal/eventlog"
	"github.com/acmedental/scheduling-assistant/internal/webhook"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("api-server starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.Printf("running in env=%s http_port=%s", cfg.Env, cfg.HTTPPort)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	calendlyClient := calendly.NewClient(cfg.CalendlyAPIToken)

	schedCache := cache.New(calendlyClient, cache.Config{
		SyncInterval:    cfg.SyncInterval,
		AvailabilityTTL: cfg.AvailabilityTTL,
		BookingsTTL:     cfg.BookingsTTL,
		MaxSlots:        cfg.MaxSlots,
	})
	schedCache.Start()
	defer schedCache.Stop()

	chatAgent, err := agent.New(agent.Config{
		APIKey:  cfg.OpenAIAPIKey,
		Model:   cfg.OpenAIModel,
		BaseURL: cfg.OpenAIBaseURL,
	}, schedCache, calendlyClient)
	if err != nil {
		log.Fatalf("agent init error: %v", err)
	}

	// Optional Postgres audit log
	var pgPool *pgxpool.Pool
	var store *eventlog.Store
	var audit webhook.Recorder
	if cfg.PostgresDSN != "" {
		pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
		pgPool, err = eventlog.ConnectPostgres(pgCtx, cfg.PostgresDSN)
		cancelPg()
		if err != nil {
			log.Fatalf("postgres connection error: %v", err)
		}
		defer pgPool.Close()

		store = eventlog.NewStore(pgPool)
		if err := store.EnsureSchema(rootCtx); err != nil {
			log.Fatalf("eventlog schema error: %v", err)
		}
		audit = store
		log.Println("connected to Postgres, event audit log enabled")
	}

	// Optional Redis webhook dedup
	var rdb *redis.Client
	var dedup webhook.Deduper
	if cfg.RedisAddr != "" {
		rdb, err = webhook.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			log.Fatalf("redis connection error: %v", err)
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Printf("error closing redis: %v", err)
			}
		}()
		dedup = webhook.NewRedisDeduper(rdb, 24*time.Hour)
		log.Println("connected to Redis, webhook dedup enabled")
	}

	router := api.NewRouter(api.RouterConfig{
		Cache:          schedCache,
		Agent:          chatAgent,
		Webhook:        webhook.NewHandler(schedCache, dedup, audit),
		SigningKey:     cfg.CalendlyWebhookKey,
		RequestTimeout: cfg.RequestTimeout,
		EventLog:       store,
		PgPool:         pgPool,
		Redis:          rdb,
		Env:            cfg.Env,
		Version:        "1.0.0",
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("listening on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-rootCtx.Done()

	log.Println("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}
}
