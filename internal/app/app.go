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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tuapuikia/dispatch/internal/config"
	"github.com/tuapuikia/dispatch/internal/domain"
	"github.com/tuapuikia/dispatch/internal/identity"
	identitypostgres "github.com/tuapuikia/dispatch/internal/identity/postgres"
	"github.com/tuapuikia/dispatch/internal/incidents"
	incidentspostgres "github.com/tuapuikia/dispatch/internal/incidents/postgres"
	"github.com/tuapuikia/dispatch/internal/lifecycle"
	"github.com/tuapuikia/dispatch/internal/notifications"
	"github.com/tuapuikia/dispatch/internal/notifications/chat"
	"github.com/tuapuikia/dispatch/internal/notifications/email"
	"github.com/tuapuikia/dispatch/internal/participants"
	participantspostgres "github.com/tuapuikia/dispatch/internal/participants/postgres"
	"github.com/tuapuikia/dispatch/internal/pkg/ctxlog"
	"github.com/tuapuikia/dispatch/internal/pkg/httputil"
	"github.com/tuapuikia/dispatch/internal/pkg/metrics"
	"github.com/tuapuikia/dispatch/internal/pkg/postgres"
	"github.com/tuapuikia/dispatch/internal/reports"
	"github.com/tuapuikia/dispatch/internal/scheduler"
	"github.com/tuapuikia/dispatch/internal/version"
)

// App represents the application instance.
type App struct {
	config           *config.Config
	logger           *slog.Logger
	db               *pgxpool.Pool
	server           *http.Server
	metricsServer    *http.Server
	backgroundCancel context.CancelFunc
	scheduler        *scheduler.Scheduler
	reporter         *reports.Reporter
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)

	db, err := postgres.Connect(context.Background(), postgres.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnectTimeout:  cfg.Database.ConnectTimeout,
		ConnectAttempts: cfg.Database.ConnectAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	backgroundCtx, backgroundCancel := context.WithCancel(context.Background())

	app := &App{
		config:           cfg,
		logger:           logger,
		db:               db,
		backgroundCancel: backgroundCancel,
	}

	go app.collectDBMetrics(backgroundCtx)

	router, err := app.setupRouter(backgroundCtx)
	if err != nil {
		db.Close()
		backgroundCancel()
		return nil, fmt.Errorf("setup router: %w", err)
	}

	if err := app.reporter.Start(); err != nil {
		app.scheduler.Stop()
		db.Close()
		backgroundCancel()
		return nil, fmt.Errorf("start reporter: %w", err)
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

	// Start main server
	a.logger.Info("starting server",
		"host", a.config.Server.Host,
		"port", a.config.Server.Port,
	)

	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the application. HTTP servers go first so
// no new mutations enter, then the report schedules, then the scheduler
// workers drain the queue while the database is still reachable.
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

	a.reporter.Stop()
	a.scheduler.Stop()

	a.backgroundCancel()
	a.db.Close()

	return errors.Join(errs...)
}

func (a *App) collectDBMetrics(ctx context.Context) {
	// Collect immediately on start
	metrics.RecordDBPoolMetrics(a.db)

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			metrics.RecordDBPoolMetrics(a.db)
		case <-ctx.Done():
			return
		}
	}
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

// Scheduler returns the task scheduler instance. Used in tests to submit
// tasks directly and to stop the workers deterministically.
func (a *App) Scheduler() *scheduler.Scheduler {
	return a.scheduler
}

func (a *App) setupRouter(ctx context.Context) (*chi.Mux, error) {
	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)

	// CORS must be early to handle preflight requests before other middleware
	r.Use(httputil.CORSMiddleware(a.config.CORS.AllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	r.Get("/api/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-yaml")
		http.ServeFile(w, r, "api/openapi/openapi.yaml")
	})

	r.Get("/docs", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<!DOCTYPE html>
<html>
<head>
    <title>Dispatch API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
        SwaggerUIBundle({
            url: "/api/openapi.yaml",
            dom_id: '#swagger-ui',
            presets: [SwaggerUIBundle.presets.apis, SwaggerUIBundle.SwaggerUIStandalonePreset],
            layout: "BaseLayout"
        });
    </script>
</body>
</html>`))
	})

	incidentsRepo := incidentspostgres.NewRepository(a.db)
	participantsRepo := participantspostgres.NewRepository(a.db)

	// The repository backs the existence check so the participants service
	// can be built before the incidents service.
	participantsService := participants.NewService(participantsRepo, incidentsRepo)

	sched := scheduler.New(scheduler.Config{
		QueueSize:  a.config.Scheduler.QueueSize,
		NumWorkers: a.config.Scheduler.NumWorkers,
	})
	a.scheduler = sched

	orchestrator := lifecycle.NewOrchestrator(participantsService, sched)
	incidentsService := incidents.NewService(incidentsRepo, orchestrator)

	senders, err := a.buildSenders()
	if err != nil {
		return nil, err
	}

	renderer, err := notifications.NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("create notification renderer: %w", err)
	}

	dispatcher := notifications.NewDispatcher(renderer, senders...)
	sink := notifications.NewSink(dispatcher, incidentsService, participantsService, a.config.Notifications.BaseURL)

	// Handlers must be registered before the workers start.
	sink.Register(sched)
	sched.Start(ctx)

	identityRepo := identitypostgres.NewRepository(a.db)
	jwtAuth, err := identity.NewJWTAuthenticator(identity.JWTConfig{
		Secret:               a.config.JWT.SecretKey,
		AccessTokenDuration:  a.config.JWT.AccessTokenDuration,
		RefreshTokenDuration: a.config.JWT.RefreshTokenDuration,
	}, identityRepo)
	if err != nil {
		return nil, fmt.Errorf("create jwt authenticator: %w", err)
	}
	identityService := identity.NewService(identityRepo, jwtAuth, nil)
	identityHandler := identity.NewHandler(identityService)

	a.reporter = reports.New(reports.Config{
		DailySummaryEnabled:  a.config.Reports.DailySummaryEnabled,
		DailySummarySchedule: a.config.Reports.DailySummarySchedule,
		TokenCleanupSchedule: a.config.Reports.TokenCleanupSchedule,
	}, sched, identityRepo)

	incidentsHandler := incidents.NewHandler(incidentsService, participantsService)

	r.Route("/api/v1", func(r chi.Router) {
		identityHandler.RegisterRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(httputil.AuthMiddleware(identityService))

			identityHandler.RegisterProtectedRoutes(r)
			incidentsHandler.RegisterRoutes(r)

			r.Group(func(r chi.Router) {
				r.Use(httputil.RequireRole(domain.RoleAdmin))
				incidentsHandler.RegisterAdminRoutes(r)
			})
		})
	})

	return r, nil
}

// buildSenders assembles the delivery channels from configuration. A
// disabled notifications block yields an empty set, and the dispatcher
// then drops events with a debug log.
func (a *App) buildSenders() ([]notifications.Sender, error) {
	if !a.config.Notifications.Enabled {
		slog.Info("notifications disabled")
		return nil, nil
	}

	var senders []notifications.Sender

	emailSender, err := email.NewSender(email.Config{
		Enabled:          a.config.Notifications.Email.Enabled,
		SMTPHost:         a.config.Notifications.Email.SMTPHost,
		SMTPPort:         a.config.Notifications.Email.SMTPPort,
		SMTPUser:         a.config.Notifications.Email.SMTPUser,
		SMTPPassword:     a.config.Notifications.Email.SMTPPassword,
		FromAddress:      a.config.Notifications.Email.FromAddress,
		DistributionList: a.config.Notifications.Email.DistributionList,
		BatchSize:        a.config.Notifications.Email.BatchSize,
	})
	if err != nil {
		return nil, fmt.Errorf("create email sender: %w", err)
	}
	if !a.config.Notifications.Email.Enabled {
		slog.Warn("email sender is disabled: incident emails will not be sent")
	}
	senders = append(senders, emailSender)

	if a.config.Notifications.Chat.Enabled {
		chatSender, err := chat.NewSender(chat.Config{
			WebhookURL: a.config.Notifications.Chat.WebhookURL,
			RateLimit:  a.config.Notifications.Chat.RateLimit,
		})
		if err != nil {
			return nil, fmt.Errorf("create chat sender: %w", err)
		}
		senders = append(senders, chatSender)
	}

	return senders, nil
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
	httputil.JSON(w, http.StatusOK, map[string]string{
		"version":    version.Version,
		"commit":     version.GitCommit,
		"build_date": version.BuildDate,
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
