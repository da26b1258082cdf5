// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/bissquit/push-relay/internal/config"
	"github.com/bissquit/push-relay/internal/dispatch"
	"github.com/bissquit/push-relay/internal/dispatch/webpush"
	"github.com/bissquit/push-relay/internal/domain"
	"github.com/bissquit/push-relay/internal/heartbeat"
	"github.com/bissquit/push-relay/internal/keyvault"
	keyvaultpostgres "github.com/bissquit/push-relay/internal/keyvault/postgres"
	"github.com/bissquit/push-relay/internal/ledger"
	ledgerpostgres "github.com/bissquit/push-relay/internal/ledger/postgres"
	"github.com/bissquit/push-relay/internal/pkg/auth"
	"github.com/bissquit/push-relay/internal/pkg/ctxlog"
	"github.com/bissquit/push-relay/internal/pkg/httputil"
	"github.com/bissquit/push-relay/internal/pkg/metrics"
	"github.com/bissquit/push-relay/internal/pkg/postgres"
	"github.com/bissquit/push-relay/internal/sites"
	sitespostgres "github.com/bissquit/push-relay/internal/sites/postgres"
	"github.com/bissquit/push-relay/internal/subscriptions"
	subscriptionspostgres "github.com/bissquit/push-relay/internal/subscriptions/postgres"
	"github.com/bissquit/push-relay/internal/version"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const publicPathPrefix = "/api/v1/public/"

// App represents the application instance.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	db            *pgxpool.Pool
	server        *http.Server
	metricsServer *http.Server
	bgCancel      context.CancelFunc
	sweeper       *heartbeat.Sweeper
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)
	slog.SetDefault(logger)

	connectCtx, connectCancel := context.WithTimeout(context.Background(), cfg.Database.ConnectTimeout)
	defer connectCancel()

	db, err := postgres.Connect(connectCtx, postgres.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnectAttempts: cfg.Database.ConnectAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())

	app := &App{
		config:   cfg,
		logger:   logger,
		db:       db,
		bgCancel: bgCancel,
	}

	go metrics.WatchDBPool(bgCtx, db, 15*time.Second)

	router, err := app.setupRouter(bgCtx)
	if err != nil {
		db.Close()
		bgCancel()
		return nil, fmt.Errorf("setup router: %w", err)
	}

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	// Metrics server on separate port
	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())

	app.metricsServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           metricsRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return app, nil
}

// Run starts the HTTP servers.
func (a *App) Run() error {
	// Start metrics server in background
	go func() {
		a.logger.Info("starting metrics server",
			"host", a.config.Server.Host,
			"port", a.config.Server.MetricsPort,
		)
		if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	a.logger.Info("starting server",
		"host", a.config.Server.Host,
		"port", a.config.Server.Port,
		"version", version.Version,
	)

	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the application.
// In-flight dispatches finish before the database pool is closed.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down servers")

	a.sweeper.Stop()

	// Shutdown both servers in parallel
	var wg sync.WaitGroup
	var errs []error
	var mu sync.Mutex

	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := a.server.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown server: %w", err))
			mu.Unlock()
		}
	}()

	go func() {
		defer wg.Done()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown metrics server: %w", err))
			mu.Unlock()
		}
	}()

	wg.Wait()

	a.bgCancel()
	a.db.Close()

	return errors.Join(errs...)
}

type publicRoutes interface {
	RegisterPublicRoutes(r chi.Router)
}

// mountPublicRoutes mounts the routes subscriber browsers call with a site token.
// Subscribe and key lookups are limited per IP. Heartbeats and delivery callbacks
// always acknowledge, so they are mounted without the limiter.
func mountPublicRoutes(r chi.Router, limiter *httputil.RateLimiter, limited, acked []publicRoutes) {
	r.Group(func(r chi.Router) {
		r.Use(limiter.Middleware)
		for _, h := range limited {
			h.RegisterPublicRoutes(r)
		}
	})
	r.Group(func(r chi.Router) {
		for _, h := range acked {
			h.RegisterPublicRoutes(r)
		}
	})
}

func (a *App) cleanupRateLimiter(ctx context.Context, limiter *httputil.RateLimiter) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			if n := limiter.Cleanup(now); n > 0 {
				slog.Debug("rate limiter entries evicted", "count", n)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

// Sweeper returns the stale subscription sweeper. Used in tests.
func (a *App) Sweeper() *heartbeat.Sweeper {
	return a.sweeper
}

func (a *App) corsHandler() func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(a.config.CORS.AllowedOrigins))
	for _, o := range a.config.CORS.AllowedOrigins {
		allowed[o] = true
	}

	return cors.Handler(cors.Options{
		// Subscriber routes are called from every tenant's pages; the dashboard API only from configured origins.
		AllowOriginFunc: func(r *http.Request, origin string) bool {
			if strings.HasPrefix(r.URL.Path, publicPathPrefix) {
				return true
			}
			return allowed["*"] || allowed[origin]
		},
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         86400,
	})
}

func (a *App) setupRouter(ctx context.Context) (*chi.Mux, error) {
	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)

	// CORS must be early to handle preflight requests before other middleware
	r.Use(a.corsHandler())
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	r.Get("/api/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-yaml")
		http.ServeFile(w, r, "api/openapi/openapi.yaml")
	})

	sealer, err := keyvault.NewSealer(a.config.Keys.MasterKey)
	if err != nil {
		return nil, fmt.Errorf("create key sealer: %w", err)
	}
	if !sealer.Enabled() {
		slog.Warn("keys.master_key is empty: site private keys are stored unsealed")
	}

	vault := keyvault.NewVault(keyvaultpostgres.NewRepository(a.db), sealer)
	sitesService := sites.NewService(sitespostgres.NewRepository(a.db), vault, a.config.Sites.DefaultQuota)
	registry := subscriptions.NewRegistry(subscriptionspostgres.NewRepository(a.db))
	deliveryLedger := ledger.NewLedger(ledgerpostgres.NewRepository(a.db))

	transport := webpush.NewTransport(webpush.Config{
		Subscriber:      a.config.Push.Subscriber,
		TTL:             a.config.Push.TTL,
		Urgency:         a.config.Push.Urgency,
		RecordSize:      a.config.Push.RecordSize,
		MaxConnsPerHost: a.config.Push.MaxConcurrency,
	})
	engine := dispatch.NewEngine(
		dispatch.Config{
			MaxConcurrency: a.config.Push.MaxConcurrency,
			AttemptTimeout: a.config.Push.AttemptTimeout,
		},
		sitesService,
		registry,
		vault,
		deliveryLedger,
		transport,
		dispatch.NewRenderer(a.config.PublicBaseURL, a.config.Push.MaxPayloadSize),
	)

	tracker := heartbeat.NewTracker(sitesService, registry)
	a.sweeper = heartbeat.NewSweeper(heartbeat.SweeperConfig{
		Interval:   a.config.Heartbeat.SweepInterval,
		StaleAfter: a.config.Heartbeat.StaleAfter,
		BatchSize:  a.config.Heartbeat.BatchSize,
	}, registry)
	a.sweeper.Start(ctx)

	limiter := httputil.NewRateLimiter(a.config.RateLimit.RequestsPerSecond, a.config.RateLimit.Burst)
	go a.cleanupRateLimiter(ctx, limiter)

	tokens := auth.NewValidator(auth.Config{
		SecretKey: a.config.JWT.SecretKey,
		Issuer:    a.config.JWT.Issuer,
		Leeway:    a.config.JWT.Leeway,
	})

	sitesHandler := sites.NewHandler(sitesService)
	subscriptionsHandler := subscriptions.NewHandler(registry, sitesService)
	keysHandler := keyvault.NewHandler(vault, sitesService)
	heartbeatHandler := heartbeat.NewHandler(tracker)
	dispatchHandler := dispatch.NewHandler(engine)
	ledgerHandler := ledger.NewHandler(deliveryLedger, sitesService)

	r.Route("/api/v1", func(r chi.Router) {
		mountPublicRoutes(r, limiter,
			[]publicRoutes{subscriptionsHandler, keysHandler},
			[]publicRoutes{heartbeatHandler, ledgerHandler},
		)

		r.Group(func(r chi.Router) {
			r.Use(httputil.AuthMiddleware(tokens))

			sitesHandler.RegisterRoutes(r)
			subscriptionsHandler.RegisterRoutes(r)
			dispatchHandler.RegisterRoutes(r)
			ledgerHandler.RegisterRoutes(r)

			r.Group(func(r chi.Router) {
				r.Use(httputil.RequireRole(domain.RoleAdmin))
				sitesHandler.RegisterAdminRoutes(r)
				ledgerHandler.RegisterAdminRoutes(r)
			})
		})
	})

	return r, nil
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.db.Ping(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, version.Info())
}

func initLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
