package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"

	"github.com/wrcelo/erpwebui/pkg/apiclient"
	"github.com/wrcelo/erpwebui/pkg/config"
	"github.com/wrcelo/erpwebui/pkg/notify"
	"github.com/wrcelo/erpwebui/pkg/retry"
	"github.com/wrcelo/erpwebui/pkg/session"
	"github.com/wrcelo/erpwebui/pkg/tokenstore"
	"github.com/wrcelo/erpwebui/pkg/ui"
)

const (
	shutdownTimeout      = 30 * time.Second
	sessionSweepInterval = time.Minute
)

func main() {
	// A missing .env is normal.
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to configuration file")
	addr := flag.String("addr", "", "Listen address (overrides dashboard.address, env: ERP_DASHBOARD_ADDR)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(os.Getenv("LOG_LEVEL")),
	}))
	slog.SetDefault(logger)

	cfg, err := config.Build(*configPath, func(c *config.Config) {
		if *addr != "" {
			c.Dashboard.Address = *addr
		}
	})
	if err != nil {
		logger.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("dashboard failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// dashboard is the assembled session stack and HTTP handler.
type dashboard struct {
	tokens   tokenstore.Namespace
	sessions *ui.Sessions
	handler  http.Handler
}

func newDashboard(cfg *config.Config, reg *prometheus.Registry, logger *slog.Logger) (*dashboard, error) {
	tokens, err := tokenstore.NewNamespace(cfg.TokenStore, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open token store: %w", err)
	}

	apiMetrics := apiclient.NewMetrics(reg)
	sessionMetrics := session.NewMetrics(reg)
	notifier := notify.NewLogNotifier(logger)

	// Every browser gets its own token slot, guard and client.
	build := func(store tokenstore.Store, registry *session.Registry) (*session.Guard, ui.Backend, error) {
		client, err := apiclient.New(apiclient.Options{
			BaseURL:        cfg.API.BaseURL,
			IdentityURL:    cfg.API.IdentityURL,
			ProbePath:      cfg.API.ProbePath,
			Store:          store,
			OnUnauthorized: registry.Notify,
			Timeout:        cfg.API.Timeout,
			Logger:         logger,
			Metrics:        apiMetrics,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create API client: %w", err)
		}
		guard := session.NewGuard(session.Options{
			Store:    store,
			Backend:  client,
			Notifier: notifier,
			Logger:   logger,
			Metrics:  sessionMetrics,
		})
		return guard, client, nil
	}

	sessions, err := session.NewManager(session.ManagerOptions[ui.Backend]{
		Tokens:       tokens,
		Build:        build,
		SecureCookie: cfg.Dashboard.SecureCookie,
		IdleTimeout:  cfg.Dashboard.SessionIdleTimeout,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "erp",
		Subsystem: "dashboard",
		Name:      "browser_sessions",
		Help:      "Browser sessions currently held by this process.",
	}, func() float64 { return float64(sessions.Len()) }))

	route := session.NewResolvingRouteGuard(sessions, session.WithRouteLogger(logger))

	views, err := ui.NewHandler(ui.Options{
		Sessions:       sessions,
		Route:          route,
		PageSize:       cfg.Dashboard.PageSize,
		LoginRate:      cfg.Dashboard.LoginRate,
		LoginBurst:     cfg.Dashboard.LoginBurst,
		TrustedProxies: cfg.Dashboard.TrustedProxies,
		Logger:         logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create UI handler: %w", err)
	}

	mux := http.NewServeMux()
	views.RegisterRoutes(mux)
	mux.HandleFunc("/healthz", healthzHandler)
	mux.HandleFunc("/readyz", readyzHandler(tokens, logger))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return &dashboard{
		tokens:   tokens,
		sessions: sessions,
		handler:  route.Wrap(mux),
	}, nil
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	d, err := newDashboard(cfg, reg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := d.tokens.Close(); err != nil {
			logger.Error("error closing token store", slog.String("error", err.Error()))
		}
	}()

	if err := waitForStore(ctx, d.tokens, retry.StartupConfig(), logger); err != nil {
		return err
	}

	logger.Info("starting ERP dashboard",
		slog.String("addr", cfg.Dashboard.Address),
		slog.String("api", cfg.API.BaseURL),
		slog.String("token_store", cfg.TokenStore.Backend),
	)

	httpServer := &http.Server{
		Addr:              cfg.Dashboard.Address,
		Handler:           h2c.NewHandler(d.handler, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return d.sessions.Run(gctx, sessionSweepInterval)
	})

	g.Go(func() error {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("error shutting down HTTP server: %w", err)
		}
		return nil
	})

	err = g.Wait()
	logger.Info("dashboard stopped")
	return err
}

// waitForStore blocks until a networked token store answers a ping.
func waitForStore(ctx context.Context, store tokenstore.Namespace, cfg retry.Config, logger *slog.Logger) error {
	p, ok := store.(interface{ Ping(context.Context) error })
	if !ok {
		return nil
	}
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		logger.Warn("token store not reachable, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)
	}
	if err := retry.Do(ctx, cfg, p.Ping); err != nil {
		return fmt.Errorf("token store unreachable: %w", err)
	}
	return nil
}

func healthzHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// readyzHandler reports ready while the token store is reachable.
func readyzHandler(store tokenstore.Namespace, logger *slog.Logger) http.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if p, ok := store.(interface{ Ping(context.Context) error }); ok {
			if err := p.Ping(r.Context()); err != nil {
				logger.Warn("readiness check failed", slog.String("error", err.Error()))
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte("token store not ready"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
