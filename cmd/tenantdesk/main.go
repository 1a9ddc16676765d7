package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	cfhttp "github.com/Strob0t/tenantdesk/internal/adapter/http"
	cfnats "github.com/Strob0t/tenantdesk/internal/adapter/nats"
	"github.com/Strob0t/tenantdesk/internal/adapter/natskv"
	cfotel "github.com/Strob0t/tenantdesk/internal/adapter/otel"
	"github.com/Strob0t/tenantdesk/internal/adapter/postgres"
	"github.com/Strob0t/tenantdesk/internal/adapter/ristretto"
	"github.com/Strob0t/tenantdesk/internal/adapter/tenantapi"
	"github.com/Strob0t/tenantdesk/internal/adapter/tiered"
	"github.com/Strob0t/tenantdesk/internal/adapter/ws"
	"github.com/Strob0t/tenantdesk/internal/config"
	"github.com/Strob0t/tenantdesk/internal/domain/session"
	"github.com/Strob0t/tenantdesk/internal/logger"
	"github.com/Strob0t/tenantdesk/internal/middleware"
	"github.com/Strob0t/tenantdesk/internal/port/cache"
	"github.com/Strob0t/tenantdesk/internal/port/database"
	"github.com/Strob0t/tenantdesk/internal/port/messagequeue"
	"github.com/Strob0t/tenantdesk/internal/resilience"
	"github.com/Strob0t/tenantdesk/internal/service"
)

// l1Expire bounds how long a snapshot stays in the in-process cache when a
// shared L2 exists, so other replicas' writes become visible.
const l1Expire = 2 * time.Minute

func main() {
	var err error
	if len(os.Args) > 1 && os.Args[1] != "serve" {
		err = runCommand(os.Args[1], os.Args[2:])
	} else {
		err = run()
	}
	if err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	defer logCloser.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"tenant_api", cfg.TenantAPI.BaseURL,
		"nats", cfg.NATS.URL != "",
		"postgres", cfg.Postgres.DSN != "",
	)

	ctx := context.Background()

	// --- Observability ---

	shutdownOTEL, err := cfotel.Setup(ctx, cfg.OTEL)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTEL(shutdownCtx); err != nil {
			slog.Warn("otel shutdown", "error", err)
		}
	}()

	metrics, err := cfotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("otel metrics: %w", err)
	}

	// --- Infrastructure ---

	factory := tenantapi.NewFactory(cfg.TenantAPI)
	factory.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))

	l1, err := ristretto.New(cfg.Cache.L1MaxSizeMB)
	if err != nil {
		return fmt.Errorf("l1 cache: %w", err)
	}
	defer l1.Close()
	var snapshots cache.Cache = l1

	var publisher messagequeue.Publisher = messagequeue.Nop{}
	if cfg.NATS.URL != "" {
		queue, err := cfnats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() {
			if err := queue.Drain(); err != nil {
				slog.Warn("nats drain", "error", err)
			}
		}()
		publisher = queue

		kv, err := natskv.Open(ctx, queue.JetStream(), cfg.Cache.L2Bucket, cfg.Cache.L2TTL)
		if err != nil {
			return fmt.Errorf("l2 cache: %w", err)
		}
		snapshots = tiered.New(l1, kv, l1Expire)
		slog.Info("snapshot cache tiered", "l2_bucket", cfg.Cache.L2Bucket)
	}

	var audit database.SwitchAuditStore = database.NopAuditStore{}
	if cfg.Postgres.DSN != "" {
		pool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer pool.Close()

		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		slog.Info("migrations applied")
		audit = postgres.NewStore(pool)
	}

	// --- Services ---

	hub := ws.NewHub(originPatterns(cfg.Server.CORSOrigin), func(r *http.Request) (string, bool) {
		return middleware.PrincipalKey(r.Context())
	})
	defer hub.Close()

	registry := service.NewSessionRegistry(factory,
		service.SessionConfig{
			SwitchTimeout:    cfg.Session.SwitchTimeout,
			SubscriberBuffer: cfg.Session.SubscriberBuffer,
		},
		service.SessionDeps{Publisher: publisher, Audit: audit, Metrics: metrics},
		snapshots, hub, cfg.Session.SnapshotTTL,
	)
	defer registry.Close()

	hub.OnConnect(func(_ context.Context, principal string) (string, any, bool) {
		m, err := registry.GetByKey(principal)
		if err != nil {
			return "", nil, false
		}
		return session.EventSessionChanged, session.ChangedEvent{View: m.View()}, true
	})

	// --- HTTP ---

	handlers := &cfhttp.Handlers{
		Sessions:   registry,
		Audit:      audit,
		Publisher:  publisher,
		BodyLimit:  cfg.Server.BodyLimit,
		AuditLimit: cfg.Session.AuditLimit,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(cfhttp.SecurityHeaders)
	r.Use(cfhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(middleware.Session(cfg.TenantAPI.CookieName, service.PrincipalKey))
	r.Use(cfhttp.Logger)
	r.Use(cfotel.HTTPMiddleware(cfg.OTEL.ServiceName))

	cfhttp.MountRoutes(r, handlers, hub.HandleWS)

	addr := ":" + cfg.Server.Port

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-done:
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	}
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

// originPatterns turns the CORS origin into the host pattern the WebSocket
// handshake checks against.
func originPatterns(origin string) []string {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return nil
	}
	return []string{u.Host}
}
