// Package bootstrap wires all dependencies and runs the application:
// stores for the configured database driver, the payment processor
// registry, the services, the cron scheduler and the operational HTTP
// server.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/artpar/billgate/adapters/clock"
	"github.com/artpar/billgate/adapters/idgen"
	"github.com/artpar/billgate/adapters/metrics"
	"github.com/artpar/billgate/adapters/payment"
	"github.com/artpar/billgate/adapters/pdf"
	"github.com/artpar/billgate/adapters/sqlite"
	"github.com/artpar/billgate/app"
	"github.com/artpar/billgate/config"
	"github.com/artpar/billgate/domain/calendar"
	"github.com/artpar/billgate/ports"
)

// App represents the running application.
type App struct {
	Logger  zerolog.Logger
	Config  *config.Holder
	DB      *sqlite.DB // nil for the memory driver
	Metrics *metrics.Collector

	Stores   Stores
	Registry *payment.Registry
	Renderer ports.DocumentRenderer

	Documents     *app.DocumentService
	Billing       *app.BillingService
	Payments      *app.PaymentService
	Subscriptions *app.SubscriptionService

	HTTPServer *http.Server
	scheduler  *cron.Cron
}

// New creates and initializes the application from the config file at
// path. A missing or empty path falls back to environment variables,
// without hot reload.
func New(path string) (*App, error) {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			holder, err := config.NewHolder(path, logger)
			if err != nil {
				return nil, err
			}
			return newWithHolder(holder, logger)
		}
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, err
	}
	return newWithHolder(config.NewStaticHolder(cfg, logger), logger)
}

func newWithHolder(holder *config.Holder, logger zerolog.Logger) (*App, error) {
	cfg := holder.Get()
	logger = setupLogger(cfg.Logging)

	logger.Info().Msg("initializing billgate")

	a := &App{
		Logger: logger,
		Config: holder,
	}

	if cfg.Metrics.Enabled {
		a.Metrics = metrics.New()
		logger.Info().Msg("prometheus metrics enabled")
	}

	clk := clock.Real{}
	ids := idgen.UUID{}

	stores, db, err := openStores(cfg.Database, clk)
	if err != nil {
		return nil, err
	}
	a.Stores = stores
	a.DB = db

	registry, err := payment.NewRegistry(cfg.Payments.Processors)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("build processor registry: %w", err)
	}
	a.Registry = registry

	switch cfg.Renderer.Mode {
	case "file":
		a.Renderer = pdf.NewFileRenderer(cfg.Renderer.Dir, logger)
	default:
		a.Renderer = pdf.NewNoopRenderer()
	}

	a.Documents = app.NewDocumentService(
		stores.Documents, stores.Customers, stores.Providers,
		stores.Transactions, stores.PaymentMethods, registry,
		a.Renderer, clk, ids, a.Metrics, logger,
	)
	a.Billing = app.NewBillingService(
		stores.Subscriptions, stores.Plans, stores.Customers,
		stores.Providers, stores.BillingLogs, stores.UnitsLogs,
		stores.Documents, a.Documents, clk, ids, a.Metrics, logger,
		cfg.Billing.Workers,
	)
	a.Payments = app.NewPaymentService(
		stores.Transactions, stores.Documents, stores.PaymentMethods,
		stores.Providers, registry, a.Documents, clk, ids, a.Metrics,
		logger,
	)
	a.Subscriptions = app.NewSubscriptionService(
		stores.Subscriptions, stores.Plans, stores.Customers, clk, ids,
		logger,
	)

	a.initHTTPServer(cfg)
	if err := a.initScheduler(cfg); err != nil {
		a.Close()
		return nil, err
	}

	holder.OnChange(a.applyConfig)
	return a, nil
}

func (a *App) initHTTPServer(cfg *config.Config) {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	if cfg.Metrics.Enabled {
		path := cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, promhttp.Handler())
	}

	a.HTTPServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}

// initScheduler registers the billing run and the payment retry pass.
func (a *App) initScheduler(cfg *config.Config) error {
	c := cron.New()

	_, err := c.AddFunc(cfg.Billing.Schedule, func() {
		ctx := context.Background()
		asOf := calendar.Truncate(time.Now().UTC())
		if _, err := a.Billing.Run(ctx, asOf); err != nil {
			a.Logger.Error().Err(err).Msg("scheduled billing run failed")
		}
	})
	if err != nil {
		return fmt.Errorf("billing schedule %q: %w", cfg.Billing.Schedule, err)
	}

	_, err = c.AddFunc(cfg.Payments.RetrySchedule, func() {
		if err := a.Payments.RetryPass(context.Background()); err != nil {
			a.Logger.Error().Err(err).Msg("scheduled retry pass failed")
		}
	})
	if err != nil {
		return fmt.Errorf("retry schedule %q: %w", cfg.Payments.RetrySchedule, err)
	}

	a.scheduler = c
	return nil
}

// applyConfig reacts to a config reload: log level takes effect
// immediately, schedule changes rebuild the cron entries. Server address
// and database changes need a restart.
func (a *App) applyConfig(cfg *config.Config) {
	if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if err := a.initScheduler(cfg); err != nil {
		a.Logger.Error().Err(err).Msg("reloaded schedule rejected, scheduler stopped")
		return
	}
	a.scheduler.Start()

	if a.Metrics != nil {
		a.Metrics.ConfigReloads.Inc()
		a.Metrics.ConfigLastReload.SetToCurrentTime()
	}
}

// Run starts the scheduler and the HTTP server and blocks until shutdown.
func (a *App) Run() error {
	if err := a.Config.WatchFile(); err != nil {
		a.Logger.Warn().Err(err).Msg("config file watch unavailable")
	}
	a.Config.WatchSignals()

	a.scheduler.Start()

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().
			Str("addr", a.HTTPServer.Addr).
			Msg("starting http server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	return a.Shutdown()
}

// Shutdown gracefully stops the application. In-flight cron jobs get to
// finish before the database closes.
func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if a.scheduler != nil {
		stopped := a.scheduler.Stop()
		select {
		case <-stopped.Done():
		case <-ctx.Done():
			a.Logger.Warn().Msg("scheduler jobs still running at shutdown deadline")
		}
	}

	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
		}
	}

	a.Config.Stop()
	a.Close()

	a.Logger.Info().Msg("shutdown complete")
	return nil
}

// Close releases held resources without touching the HTTP server.
func (a *App) Close() {
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("database close error")
		}
		a.DB = nil
	}
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
