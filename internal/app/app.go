package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"golang.org/x/sync/errgroup"

	"enrichdash/internal/channel"
	"enrichdash/internal/config"
	apierrors "enrichdash/internal/errors"
	"enrichdash/internal/infrastructure"
	"enrichdash/internal/jobs"
	customMiddleware "enrichdash/internal/middleware"
	"enrichdash/internal/services"
	handlers "enrichdash/internal/transport/http"
	ws "enrichdash/internal/websocket"
	"enrichdash/pkg/contracts"
)

// startupCheckTimeout bounds the job API check made when the server starts
const startupCheckTimeout = 5 * time.Second

// Application represents the dashboard server and everything it owns
type Application struct {
	Config          *config.Config
	Router          *chi.Mux
	Server          *http.Server
	Logger          *slog.Logger
	OTelProviders   *infrastructure.OTelProviders
	ErrorHandler    *apierrors.ErrorHandler
	JobAPI          *jobs.Client
	Channel         *channel.Client
	WebSocketHub    *ws.Hub
	ProgressService *services.ProgressService
	HealthService   *services.HealthService
}

// NewApplication wires the dashboard from cfg. The websocket hub is started;
// call Run or Serve to accept connections.
func NewApplication(cfg *config.Config, logger *slog.Logger) (*Application, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = infrastructure.GetLogger()
	}

	logger.Info("Application starting",
		slog.String("name", config.AppName),
		slog.String("version", contracts.Version),
		slog.String("job_api", cfg.API.BaseURL),
		slog.String("channel", cfg.ChannelURL()))

	// Instruments are created lazily from the global meter, so OTel goes first.
	otelProviders, err := infrastructure.InitializeOTel(cfg.Telemetry, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	app := &Application{
		Config:        cfg,
		Logger:        logger,
		OTelProviders: otelProviders,
		ErrorHandler:  apierrors.NewErrorHandler(logger, false),
	}

	if err := app.initializeServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.setupRouter()
	app.createServer()

	return app, nil
}

// initializeServices creates the job API client, the push channel and the services built on them
func (a *Application) initializeServices() error {
	jobAPI, err := jobs.NewClient(a.Config.API.BaseURL, a.Config.API.Timeout, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to create job api client: %w", err)
	}
	a.JobAPI = jobAPI

	a.Channel = channel.NewClient(a.Config.ChannelURL(), channel.Options{
		ReconnectAttempts: a.Config.Channel.ReconnectAttempts,
		ReconnectDelay:    a.Config.Channel.ReconnectDelay,
		PingPeriod:        a.Config.Channel.PingPeriod,
		PongWait:          a.Config.Channel.PongWait,
	}, a.Logger)

	hub := ws.NewHub(a.Logger)
	hub.Start()
	a.WebSocketHub = hub

	a.ProgressService = services.NewProgressService(a.Channel, hub, a.Logger)

	a.HealthService = services.NewHealthService(
		contracts.Version,
		hub,
		a.ProgressService,
		a.Logger,
		services.WithBuildInfo(contracts.BuildTime, contracts.GitCommit),
		services.WithJobAPICheck(func(ctx context.Context) error {
			_, err := a.JobAPI.AuthStatus(ctx)
			return err
		}),
	)
	return nil
}

// setupRouter configures the HTTP router with all routes
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	r.NotFound(a.ErrorHandler.NotFound)
	r.MethodNotAllowed(a.ErrorHandler.MethodNotAllowed)

	// Middleware that does not wrap the ResponseWriter, safe for websocket upgrades
	r.Use(customMiddleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(customMiddleware.Recoverer(a.Logger))

	wsHandler := handlers.NewWebSocketHandler(a.WebSocketHub, a.ProgressService,
		a.Config.Security.AllowedOrigins, a.ErrorHandler, a.Logger)
	r.With(customMiddleware.WebSocketTraceMiddleware(a.Logger)).Handle("/ws", wsHandler)

	metricsHandler := handlers.NewMetricsHandler(a.OTelProviders.PrometheusHTTP, a.WebSocketHub, a.ProgressService)
	r.Get("/metrics", metricsHandler.Prometheus)

	healthHandler := handlers.NewHealthHandler(a.HealthService, a.Logger)
	jobsHandler := handlers.NewJobsHandler(a.JobAPI, a.ErrorHandler, a.Logger)

	r.Group(func(r chi.Router) {
		a.useObservability(r)
		r.Use(customMiddleware.StructuredLogger(a.Logger))

		r.Get("/health", healthHandler.HealthCheck)
		r.Get("/health/ready", healthHandler.ReadinessCheck)
		r.Get("/health/live", healthHandler.LivenessCheck)
	})

	r.Group(func(r chi.Router) {
		a.useObservability(r)
		r.Use(apierrors.NewErrorMiddleware(a.ErrorHandler, a.Logger).Handler)
		r.Use(customMiddleware.SecurityHeaders)
		if a.Config.Security.EnableCORS {
			r.Use(customMiddleware.CORS(customMiddleware.CORSConfig{
				AllowedOrigins:   a.Config.Security.AllowedOrigins,
				AllowCredentials: true,
				MaxAge:           300,
				Logger:           a.Logger,
			}))
		}
		if a.Config.Security.RateLimit.Enabled {
			r.Use(customMiddleware.NewRateLimiter(
				a.Config.Security.RateLimit.RPS,
				a.Config.Security.RateLimit.Burst,
				a.Logger,
			).Handler)
		}

		r.Get("/auth/status", jobsHandler.AuthStatus)
		a.setupAPIRoutes(r, jobsHandler, healthHandler, metricsHandler)
	})

	a.Router = r
}

// setupAPIRoutes configures the /api endpoints
func (a *Application) setupAPIRoutes(r chi.Router, jobsHandler *handlers.JobsHandler, healthHandler *handlers.HealthHandler, metricsHandler *handlers.MetricsHandler) {
	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		r.Get("/version", healthHandler.Version)
		r.Mount("/metrics", metricsHandler.Routes())
		validation := customMiddleware.NewValidationMiddleware(a.Logger, a.ErrorHandler)
		r.With(
			customMiddleware.ContentTypeValidator("application/json"),
			validation.ValidateRequest,
		).Post("/client-log", handlers.NewClientLogHandler(a.ErrorHandler, a.Logger).Handle)

		// Report downloads and exports may stream for longer than a JSON call
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(a.Config.API.Timeout + a.Config.Server.WriteTimeout))
			r.Use(customMiddleware.ContentTypeValidator("application/json", "multipart/form-data"))
			r.Mount("/jobs", jobsHandler.Routes())
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(a.Config.Server.ReadTimeout))
			r.Mount("/progress", handlers.NewProgressHandler(a.ProgressService, a.ErrorHandler, a.Logger).Routes())
		})
	})
}

func (a *Application) useObservability(r chi.Router) {
	otelMiddleware, err := customMiddleware.NewOTelMiddleware(a.OTelProviders)
	if err != nil {
		a.Logger.Error("Failed to create OpenTelemetry middleware", slog.String("error", err.Error()))
		return
	}
	r.Use(otelMiddleware.Handler)
}

// createServer creates the HTTP server
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:           fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:        a.Router,
		ReadTimeout:    a.Config.Server.ReadTimeout,
		IdleTimeout:    a.Config.Server.IdleTimeout,
		MaxHeaderBytes: a.Config.Server.MaxHeaderBytes,
	}
	// WriteTimeout is left unset: it would cut long-lived websocket connections.
}

// Run listens on the configured port and serves until ctx is cancelled or the
// process receives SIGINT or SIGTERM.
func (a *Application) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", a.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", a.Server.Addr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then shuts down gracefully
func (a *Application) Serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfoContext(gctx, "Server listening",
			slog.String("address", ln.Addr().String()),
			slog.String("version", contracts.Version))
		if err := a.Server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		a.performStartupHealthCheck(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.Logger.Info("Shutdown requested")
		return a.Stop(context.Background())
	})

	return g.Wait()
}

// Stop gracefully stops the server, releases every tracked job and flushes telemetry
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
	}

	if err := a.ProgressService.Shutdown(); err != nil {
		a.Logger.ErrorContext(ctx, "Error releasing tracked jobs", slog.String("error", err.Error()))
	}
	a.WebSocketHub.Stop()

	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.ErrorContext(ctx, "Error shutting down OpenTelemetry", slog.String("error", err.Error()))
		}
	}

	a.Logger.InfoContext(ctx, "Application shutdown complete")
	return errors.Join(errs...)
}

// performStartupHealthCheck logs whether the job API answers. The dashboard
// starts regardless so it can report the outage through readiness.
func (a *Application) performStartupHealthCheck(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, startupCheckTimeout)
	defer cancel()

	status, err := a.JobAPI.AuthStatus(ctx)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}
		a.Logger.WarnContext(ctx, "Job API not reachable at startup",
			slog.String("job_api", a.JobAPI.BaseURL()),
			slog.String("error", err.Error()))
		return
	}
	a.Logger.InfoContext(ctx, "Job API reachable",
		slog.String("job_api", a.JobAPI.BaseURL()),
		slog.Bool("authenticated", status.IsAuthenticated))
}
