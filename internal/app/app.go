// Package app assembles the license server: configuration, logging,
// metrics, storage, services, and the HTTP router, with explicit
// construction and no import-time side effects.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"golang.org/x/sync/errgroup"

	"licensegate/internal/config"
	"licensegate/internal/infrastructure"
	customMiddleware "licensegate/internal/middleware"
	"licensegate/internal/notify"
	"licensegate/internal/services"
	"licensegate/internal/store"
	handlers "licensegate/internal/transport/http"
	"licensegate/internal/websocket"
)

const (
	Version = "v1.0.0"
	AppName = "License Gate Server"
)

// BuildTime is set at compile time via -ldflags
var BuildTime = time.Now().Format(time.RFC3339)

// Application is the main application container. It owns every long-lived
// dependency and wires them together at construction.
type Application struct {
	Config           *config.Config
	Router           *chi.Mux
	Server           *http.Server
	Store            store.Store
	DashboardService services.DashboardService
	HealthService    *services.HealthService
	LiveHub          *websocket.Hub
	Logger           *slog.Logger
	OTelProviders    *infrastructure.OTelProviders
	Metrics          *infrastructure.GateMetrics
}

// NewApplication creates a new application instance with dependency injection
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return NewApplicationWithConfig(cfg)
}

// NewApplicationWithConfig creates an application from an explicit config,
// used by tests to avoid touching the environment.
func NewApplicationWithConfig(cfg *config.Config) (*Application, error) {
	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info("Application starting",
		slog.String("name", AppName),
		slog.String("version", Version),
		slog.String("storage_driver", cfg.Storage.Driver))

	otelProviders, err := infrastructure.InitializeOTel(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	metrics, err := infrastructure.CreateGateMetrics(otelProviders.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	app := &Application{
		Config:        cfg,
		Logger:        logger,
		OTelProviders: otelProviders,
		Metrics:       metrics,
	}

	if err := app.initializeServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.setupRouter()
	app.createServer()

	return app, nil
}

// initializeServices initializes the store and business services
func (a *Application) initializeServices() error {
	st, err := openStore(a.Config)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	a.Store = st

	notifier := notify.NewSMTPNotifier(a.Config.SMTP, a.Logger)
	if notifier == nil {
		a.Logger.Info("email notification disabled, no SMTP host configured")
		a.DashboardService = services.NewDashboardService(st, nil, a.Logger)
	} else {
		a.DashboardService = services.NewDashboardService(st, notifier, a.Logger)
	}

	a.HealthService = services.NewHealthService(st, Version, BuildTime, a.Logger)

	a.LiveHub = websocket.NewHub(a.Logger)
	a.LiveHub.Start()

	return nil
}

// openStore selects the store backend from configuration
func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Storage.Driver {
	case "sqlite":
		return store.NewSQLiteStore(cfg.Storage.Path, cfg.Telemetry.MaxEvents)
	case "memory":
		return store.NewMemoryStore(cfg.Telemetry.MaxEvents), nil
	default:
		return nil, fmt.Errorf("unknown storage driver: %q", cfg.Storage.Driver)
	}
}

// setupRouter configures the HTTP router with all routes
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	// RequestID must come first so every later middleware logs with a trace id
	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)
	r.Use(customMiddleware.StructuredLogger(a.Logger))
	r.Use(customMiddleware.Recoverer(a.Logger))
	r.Use(customMiddleware.SecurityHeaders)

	if a.Config.Security.EnableCORS {
		r.Use(customMiddleware.CORS(customMiddleware.CORSConfig{
			AllowedOrigins: a.Config.Security.AllowedOrigins,
			Logger:         a.Logger,
		}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Use(customMiddleware.Timeout(a.Config.Server.ReadTimeout))

		healthHandler := handlers.NewHealthHandler(a.HealthService, a.Logger)
		r.Get("/health", healthHandler.HealthCheck)
		r.Get("/health/live", healthHandler.LivenessCheck)
		r.Get("/health/ready", healthHandler.ReadinessCheck)

		// Gate-facing endpoints: unauthenticated, rate limited
		r.Group(func(r chi.Router) {
			if a.Config.Security.RateLimit.Enabled {
				r.Use(customMiddleware.NewRateLimiter(
					a.Config.Security.RateLimit.RPS,
					a.Config.Security.RateLimit.Burst,
					a.Logger,
				).Handler)
			}
			ingestHandler := handlers.NewIngestHandler(a.DashboardService, a.Metrics, a.LiveHub, a.Logger)
			r.Mount("/license", ingestHandler.Routes())
		})

		// Admin API behind the static credential
		r.Group(func(r chi.Router) {
			adminAuth := customMiddleware.NewAdminAuth(a.Config.Admin.Key, a.Logger)
			r.Use(adminAuth.Handler)

			dashboardHandler := handlers.NewDashboardHandler(a.DashboardService, a.Metrics, a.Logger)
			r.Mount("/admin", dashboardHandler.Routes())

			liveHandler := handlers.NewLiveHandler(a.LiveHub, a.Logger)
			r.Handle("/admin/live", liveHandler)
		})
	})

	// Prometheus metrics outside the middleware chain for scrape performance
	if a.OTelProviders.PrometheusHTTP != nil {
		r.Handle("/metrics", a.OTelProviders.PrometheusHTTP)
	}

	a.Router = r
}

// createServer creates the HTTP server from configuration
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:           fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:        a.Router,
		ReadTimeout:    a.Config.Server.ReadTimeout,
		WriteTimeout:   a.Config.Server.WriteTimeout,
		IdleTimeout:    a.Config.Server.IdleTimeout,
		MaxHeaderBytes: a.Config.Server.MaxHeaderBytes,
	}
}

// Run starts the HTTP server and blocks until ctx is canceled or a signal
// arrives, then shuts down gracefully.
func (a *Application) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.Info("HTTP server listening", slog.String("addr", a.Server.Addr))
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		a.Logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
		defer cancel()

		if err := a.Server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})

	err := g.Wait()

	if cerr := a.Close(); cerr != nil {
		a.Logger.Error("cleanup failed", slog.String("error", cerr.Error()))
	}
	return err
}

// Close releases application resources
func (a *Application) Close() error {
	var errs []error

	if a.LiveHub != nil {
		a.LiveHub.Stop()
	}

	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store close: %w", err))
		}
	}

	if a.OTelProviders != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.OTelProviders.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("otel shutdown: %w", err))
		}
	}

	if err := infrastructure.CloseLogFile(); err != nil {
		errs = append(errs, fmt.Errorf("log file close: %w", err))
	}

	return errors.Join(errs...)
}
