// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/bissquit/sjtu-digest/api/openapi"
	"github.com/bissquit/sjtu-digest/internal/api"
	"github.com/bissquit/sjtu-digest/internal/config"
	"github.com/bissquit/sjtu-digest/internal/domain"
	"github.com/bissquit/sjtu-digest/internal/form"
	"github.com/bissquit/sjtu-digest/internal/pkg/ctxlog"
	"github.com/bissquit/sjtu-digest/internal/pkg/httputil"
	"github.com/bissquit/sjtu-digest/internal/pkg/metrics"
	"github.com/bissquit/sjtu-digest/internal/pkg/postgres"
	"github.com/bissquit/sjtu-digest/internal/subscription"
	subscriptionpostgres "github.com/bissquit/sjtu-digest/internal/subscription/postgres"
	"github.com/bissquit/sjtu-digest/internal/subscription/postgrest"
	"github.com/bissquit/sjtu-digest/internal/version"
	"github.com/bissquit/sjtu-digest/internal/web"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	dbMetricsInterval = 15 * time.Second
	limiterIdleTTL    = 10 * time.Minute
)

// App represents the application instance.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	db            *pgxpool.Pool
	client        *subscription.Client
	sessions      *web.SessionStore
	limiter       *httputil.RateLimiter
	server        *http.Server
	metricsServer *http.Server
	bgCancel      context.CancelFunc
	bgWG          sync.WaitGroup
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)
	slog.SetDefault(logger)

	catalog, err := domain.NewCatalog(cfg.Sources)
	if err != nil {
		return nil, fmt.Errorf("build source catalog: %w", err)
	}

	app := &App{
		config: cfg,
		logger: logger,
	}

	backend, err := app.connectBackend()
	if err != nil {
		return nil, err
	}

	app.client = subscription.NewClient(backend, subscription.Options{
		DemoDelay: cfg.Backend.DemoDelay,
	})
	if !app.client.Configured() {
		logger.Warn("subscription backend is not configured: submissions will be rejected",
			"driver", cfg.Backend.Driver,
		)
	}

	app.sessions = web.NewSessionStore(web.SessionConfig{
		TTL:          cfg.Sessions.TTL,
		CookieSecure: cfg.Sessions.CookieSecure,
	}, func() *form.Controller {
		return form.NewController(app.client, catalog, form.Options{
			ToastDuration: cfg.Toast.Duration,
		})
	})

	if cfg.RateLimit.RPS > 0 {
		app.limiter = httputil.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, limiterIdleTTL)
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	app.bgCancel = bgCancel
	app.startBackground(bgCtx)

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           app.setupRouter(catalog),
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

// connectBackend builds the configured subscription backend. A nil backend
// with a nil error means the backend is not configured.
func (a *App) connectBackend() (subscription.Backend, error) {
	cfg := a.config

	switch cfg.Backend.Driver {
	case config.DriverPostgres:
		if cfg.Database.URL == "" {
			return nil, nil
		}

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
		a.db = db
		return subscriptionpostgres.NewBackend(db), nil

	default:
		b, err := postgrest.NewBackend(postgrest.Config{
			URL:     cfg.Backend.URL,
			Key:     cfg.Backend.Key,
			Timeout: cfg.Backend.Timeout,
		})
		if errors.Is(err, subscription.ErrNotConfigured) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("create postgrest backend: %w", err)
		}
		return b, nil
	}
}

func (a *App) startBackground(ctx context.Context) {
	a.bgWG.Add(1)
	go func() {
		defer a.bgWG.Done()
		a.sessions.Run(ctx, a.config.Sessions.SweepInterval)
	}()

	if a.db != nil {
		a.bgWG.Add(1)
		go func() {
			defer a.bgWG.Done()
			metrics.CollectDBPoolMetrics(ctx, a.db, dbMetricsInterval)
		}()
	}

	if a.limiter != nil {
		a.bgWG.Add(1)
		go func() {
			defer a.bgWG.Done()
			a.pruneLimiter(ctx)
		}()
	}
}

func (a *App) pruneLimiter(ctx context.Context) {
	ticker := time.NewTicker(limiterIdleTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.limiter.Prune()
		case <-ctx.Done():
			return
		}
	}
}

// Run starts the HTTP servers.
func (a *App) Run() error {
	// Start metrics server in background
	go func() {
		a.logger.Info("starting metrics server",
			"host", a.config.Server.Host,
			"port", a.config.Server.MetricsPort,
		)
		if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	a.logger.Info("starting server",
		"host", a.config.Server.Host,
		"port", a.config.Server.Port,
		"backend_configured", a.client.Configured(),
	)

	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down servers")

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

	a.Close()

	return errors.Join(errs...)
}

// Close stops background work and releases resources without touching the
// HTTP servers. Used directly by tests that only exercise Router.
func (a *App) Close() {
	a.bgCancel()
	a.bgWG.Wait()
	a.sessions.Close()

	if a.db != nil {
		a.db.Close()
	}
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

func (a *App) setupRouter(catalog *domain.Catalog) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(a.config.Server.RequestTimeout))

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	r.Get("/api/openapi.yaml", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/x-yaml")
		_, _ = w.Write(openapi.Document)
	})

	web.NewHandler(a.sessions, catalog).RegisterRoutes(r, a.limiter)

	apiHandler := api.NewHandler(a.client, catalog)
	r.Route("/api/v1", func(r chi.Router) {
		// CORS must be early to handle preflight requests before other middleware
		r.Use(httputil.CORSMiddleware(a.config.CORS.AllowedOrigins))
		apiHandler.RegisterRoutes(r, a.limiter)
	})

	return r
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

// readyzHandler reports ready when the database, if one is used, answers.
// An unconfigured backend is still ready: the form serves and reports the
// configuration error on submit.
func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	if a.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := a.db.Ping(ctx); err != nil {
			ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
			httputil.Text(w, http.StatusServiceUnavailable, "Database unavailable")
			return
		}
	}

	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]any{
		"version":            version.Version,
		"commit":             version.GitCommit,
		"build_date":         version.BuildDate,
		"backend_configured": a.client.Configured(),
	})
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
