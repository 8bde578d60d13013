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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.opentelemetry.io/otel/trace"

	"retailcli/internal/config"
	apierrors "retailcli/internal/errors"
	"retailcli/internal/infrastructure"
	customMiddleware "retailcli/internal/middleware"
	"retailcli/internal/scheduler"
	"retailcli/internal/services"
	handlers "retailcli/internal/transport/http"
	ws "retailcli/internal/websocket"
	"retailcli/pkg/contracts"
)

// Application is the dashboard server.
type Application struct {
	Config        *config.Config
	Core          *Core
	Router        *chi.Mux
	Server        *http.Server
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders
	Services      *ServiceContainer
	Hub           *ws.Hub
	AutoRefresh   *scheduler.AutoRefresher
}

// ServiceContainer holds all application services
type ServiceContainer struct {
	Dashboard *services.DashboardService
	Export    *services.ExportService
	Health    *services.HealthService
}

// NewApplication loads configuration and builds the server.
func NewApplication() (*Application, error) {
	cfg, paths, logger, providers, err := Bootstrap()
	if err != nil {
		return nil, err
	}
	return New(cfg, paths, logger, providers)
}

// New builds the server from already loaded parts. providers may be nil, in
// which case no metrics are recorded.
func New(cfg *config.Config, paths *config.Paths, logger *slog.Logger, providers *infrastructure.OTelProviders) (*Application, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("application starting",
		slog.String("version", contracts.GetVersionString()),
		slog.String("addr", cfg.Server.Addr()))
	logger.Info("resolved paths", paths.LogAttrs()...)

	if err := paths.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to ensure directories: %w", err)
	}

	var metrics *infrastructure.PipelineMetrics
	if providers != nil && providers.MeterProvider != nil {
		m, err := infrastructure.CreatePipelineMetrics(providers.Meter)
		if err != nil {
			return nil, fmt.Errorf("failed to create metrics: %w", err)
		}
		metrics = m
	}

	core := NewCore(cfg, paths, logger, metrics)
	hub := ws.NewHub(logger)
	core.Refresher.SetObserver(ws.NewRunBroadcaster(hub))
	autoRefresh := scheduler.NewAutoRefresher(core.Refresher, core.Source,
		cfg.Export.RefreshInterval, cfg.Server.RequestTimeout, logger)
	exports := services.NewExportService(logger, core.Refresher, core.Source)
	a := &Application{
		Config:        cfg,
		Core:          core,
		Logger:        logger,
		OTelProviders: providers,
		Hub:           hub,
		AutoRefresh:   autoRefresh,
		Services: &ServiceContainer{
			Dashboard: services.NewDashboardService(logger, core.Loader, core.Pipeline, core.Source),
			Export:    exports,
			Health:    services.NewHealthService(*paths, core.Source, core.Loader, exports, logger),
		},
	}

	a.setupRouter()
	a.createServer()
	return a, nil
}

func (a *Application) setupRouter() {
	r := chi.NewRouter()
	errorHandler := apierrors.NewErrorHandler(a.Logger, a.Config.Telemetry.Environment == "development")

	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)
	r.NotFound(errorHandler.NotFound)
	r.MethodNotAllowed(errorHandler.MethodNotAllowed)

	// The websocket upgrade skips the response-wrapping middleware below.
	r.Handle("/ws", ws.NewHandler(a.Hub, a.Config.Security.AllowedOrigins, a.Logger))

	if a.OTelProviders != nil && a.OTelProviders.MeterProvider != nil {
		r.Handle("/metrics", handlers.NewMetricsHandler(a.OTelProviders.PrometheusHTTP))
	}

	validator := customMiddleware.NewValidator()
	health := handlers.NewHealthHandler(a.Services.Health, a.Logger)
	dashboard := handlers.NewDashboardHandler(a.Services.Dashboard, validator, a.Logger, errorHandler)
	exports := handlers.NewExportHandler(a.Services.Export, validator, a.Logger, errorHandler)

	r.Group(func(r chi.Router) {
		// RequestID → RealIP → OTel → Logger → Recoverer → Timeout
		r.Use(customMiddleware.NewTelemetry(tracerOf(a.OTelProviders), a.Core.Metrics).Handler)
		r.Use(customMiddleware.StructuredLogger(a.Logger))
		r.Use(customMiddleware.Recoverer(errorHandler))
		r.Use(customMiddleware.Timeout(a.Config.Server.RequestTimeout))
		r.Use(customMiddleware.SecurityHeaders)
		if a.Config.Security.EnableCORS {
			r.Use(customMiddleware.CORS(customMiddleware.CORSConfig{
				AllowedOrigins: a.Config.Security.AllowedOrigins,
				Logger:         a.Logger,
			}))
		}

		r.Route("/api", func(r chi.Router) {
			r.Use(render.SetContentType(render.ContentTypeJSON))

			// Health checks stay outside the rate limit.
			r.Get("/health", health.HealthCheck)
			r.Get("/health/ready", health.ReadinessCheck)
			r.Get("/health/live", health.LivenessCheck)
			r.Get("/version", health.Version)

			r.Group(func(r chi.Router) {
				if rl := a.Config.Security.RateLimit; rl.Enabled {
					r.Use(customMiddleware.NewRateLimiter(rl.RPS, rl.Burst, a.Logger, errorHandler).Handler)
				}
				r.With(customMiddleware.ContentTypeValidator(errorHandler, "application/json")).
					Mount("/exports", exports.Routes())
				r.Mount("/", dashboard.Routes())
			})
		})
	})

	a.Router = r
}

func tracerOf(p *infrastructure.OTelProviders) trace.Tracer {
	if p == nil {
		return nil
	}
	return p.Tracer
}

func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:         a.Config.Server.Addr(),
		Handler:      a.Router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
		IdleTimeout:  a.Config.Server.IdleTimeout,
	}
}

// Start begins serving in the background. A listener failure calls cancel.
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) error {
	a.Logger.InfoContext(ctx, "starting server",
		slog.String("addr", a.Server.Addr),
		slog.String("source", a.Core.Source.String()),
		slog.String("export_dir", a.Core.Paths.ExportDir))

	go a.Hub.Run(ctx)
	a.AutoRefresh.Start(ctx)
	go func() {
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.ErrorContext(ctx, "server error", slog.String("error", err.Error()))
			cancel()
		}
	}()
	return nil
}

// Stop gracefully stops the application
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	a.AutoRefresh.Stop()

	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.ErrorContext(ctx, "error shutting down OpenTelemetry", slog.String("error", err.Error()))
		}
	}

	a.Logger.InfoContext(ctx, "application shutdown complete")
	return nil
}

// Run serves until SIGINT, SIGTERM or a listener failure.
func (a *Application) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx, stop); err != nil {
		return err
	}

	<-ctx.Done()
	a.Logger.Info("received shutdown signal")
	return a.Stop(context.Background())
}
