// Package app wires the whole service together: configuration, storage, the
// event fabric, the domain services, the observers, and the HTTP server.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/labstack/echo/v4"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/xenking/presso/internal/domain/coupon"
	"github.com/xenking/presso/internal/domain/order"
	"github.com/xenking/presso/internal/domain/workflow"
	"github.com/xenking/presso/internal/eventbus"
	"github.com/xenking/presso/internal/handler"
	"github.com/xenking/presso/internal/observer/journey"
	"github.com/xenking/presso/internal/observer/metrics"
	"github.com/xenking/presso/internal/observer/publisher"
	"github.com/xenking/presso/internal/storage/postgres"
	"github.com/xenking/presso/pkg/health"
	"github.com/xenking/presso/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Repositories.
	orderRepo := postgres.NewOrderRepository(pool)
	windowRepo := postgres.NewWindowRepository(pool)
	configRepo := postgres.NewConfigRepository(pool)
	counterRepo := postgres.NewCounterRepository(pool)
	journeyRepo := postgres.NewJourneyRepository(pool)

	// Event fabric and domain services. Registration order matters: the
	// executor and manager react before the observers see the same event.
	bus := eventbus.New()

	issuer := coupon.NewIssuer(windowRepo, configRepo, bus)
	issuer.SetWindowDuration(cfg.Coupon.WindowDuration)

	executor := workflow.New(bus, configRepo, counterRepo, workflow.Config{
		MaxConcurrentOrders: cfg.Workflow.MaxConcurrentOrders,
		CustomerTimeout:     cfg.Workflow.CustomerTimeout,
		BaristaTimeout:      cfg.Workflow.BaristaTimeout,
	}, lg)
	executor.Register(bus)

	manager := order.NewManager(orderRepo, configRepo, executor, bus, lg)
	manager.Register(bus)

	// Observers.
	publisher.New(nil, lg).Register(bus)

	aggregator, err := metrics.New(m.MeterProvider().Meter("presso"), lg)
	if err != nil {
		return errors.Wrap(err, "create metrics aggregator")
	}
	aggregator.Register(bus)

	recorder := journey.NewRecorder(journeyRepo, lg)
	recorder.Register(bus)

	// Periodic metrics report.
	reporter := cron.New()
	_, err = reporter.AddFunc(cfg.Metrics.ReportSchedule, func() {
		lg.Info("metrics report", zap.String("report", aggregator.Report()))
	})
	if err != nil {
		return errors.Wrap(err, "schedule metrics report")
	}
	reporter.Start()
	defer reporter.Stop()

	// HTTP routes.
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	handler.NewHandler(issuer, manager, configRepo, aggregator, recorder, bus).Routes(e)
	e.GET("/livez", echo.WrapHandler(http.HandlerFunc(healthSvc.LiveEndpoint)))
	e.GET("/readyz", echo.WrapHandler(http.HandlerFunc(healthSvc.ReadyEndpoint)))

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(
			otelhttp.NewHandler(e, "presso-api",
				otelhttp.WithTracerProvider(m.TracerProvider()),
				otelhttp.WithMeterProvider(m.MeterProvider()),
			),
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", "X-User-Id"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.LogRequests(),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
