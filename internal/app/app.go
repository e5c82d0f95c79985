package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"thinkora-client/internal/config"
	"thinkora-client/internal/database"
	"thinkora-client/internal/event"
	"thinkora-client/internal/gateway"
	"thinkora-client/internal/handler"
	"thinkora-client/internal/metrics"
	"thinkora-client/internal/router"
	"thinkora-client/internal/service"
	"thinkora-client/internal/session"
	"thinkora-client/internal/store"
	"thinkora-client/internal/transport"
	"thinkora-client/internal/websocket"
)

type App struct {
	server       *http.Server
	manager      *session.Manager
	logger       *slog.Logger
	cleanupFuncs []func()
}

// New wires the session host. Background loops (websocket hub, token
// auto-refresh) start immediately and stop when the App is shut down.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	credentials, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	appMetrics := metrics.New(registry)

	tokenTransport := transport.New(cfg.APIBaseURL,
		transport.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout}),
		transport.WithRateLimit(cfg.TransportRPM),
		transport.WithMetrics(appMetrics),
	)

	bus := event.NewBus()
	manager := session.NewManager(tokenTransport, credentials,
		session.WithBus(bus),
		session.WithMetrics(appMetrics),
		session.WithLogger(logger),
		session.WithRefreshSkew(cfg.RefreshSkew),
		session.WithOperationTimeout(cfg.RequestTimeout),
	)

	gw := gateway.New(manager,
		gateway.WithMetrics(appMetrics),
		gateway.WithLogger(logger),
	)
	authorized := gw.Client()
	authorized.Timeout = 2 * cfg.RequestTimeout

	assistantService := service.NewAssistantService(cfg.APIBaseURL, authorized, &http.Client{Timeout: cfg.RequestTimeout})

	proxy, err := handler.NewProxy(cfg.APIBaseURL, gw, logger)
	if err != nil {
		closeStore()
		return nil, fmt.Errorf("failed to build API proxy: %w", err)
	}

	hub := websocket.NewHub(bus, logger)

	appRouter := router.New(cfg, logger, manager, router.Handlers{
		Session:   handler.NewSessionHandler(manager),
		Assistant: handler.NewAssistantHandler(assistantService),
		Proxy:     proxy,
		Events:    websocket.Handler(hub, manager, cfg.CORSOrigins),
		Metrics:   promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
	})

	bgCtx, bgCancel := context.WithCancel(context.Background())
	go hub.Run(bgCtx)
	go manager.StartAutoRefresh(bgCtx, cfg.AutoRefreshInterval)

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           appRouter,
		ReadHeaderTimeout: cfg.ServerReadHeaderTimeout,
		WriteTimeout:      cfg.ServerWriteTimeout,
		IdleTimeout:       cfg.ServerIdleTimeout,
	}

	snap := manager.Snapshot()
	logger.Info("session host ready",
		"state", snap.State,
		"store", cfg.StoreBackend,
		"api", cfg.APIBaseURL,
	)

	return &App{
		server:  server,
		manager: manager,
		logger:  logger,
		cleanupFuncs: []func(){
			bgCancel,
			closeStore,
		},
	}, nil
}

// Handler exposes the routed handler for in-process tests.
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

func (a *App) Sessions() *session.Manager {
	return a.manager
}

// Run serves until ctx is cancelled or SIGINT/SIGTERM arrives, then shuts
// down gracefully.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("server starting", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		a.Close()
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := a.server.Shutdown(shutdownCtx)
	a.Close()
	if err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	a.logger.Info("server stopped")
	return nil
}

// Close stops background loops and releases the store. Safe to call twice.
func (a *App) Close() {
	for _, cleanup := range a.cleanupFuncs {
		cleanup()
	}
	a.cleanupFuncs = nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*store.CredentialStore, func(), error) {
	opts := []store.Option{store.WithLogger(logger), store.WithTimeout(cfg.RequestTimeout)}

	switch cfg.StoreBackend {
	case config.StoreFile:
		backend, err := store.NewFileBackend(cfg.StoreFile, cfg.StorePassphrase)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open session file: %w", err)
		}
		s := store.New(backend, opts...)
		return s, func() { _ = s.Close() }, nil

	case config.StorePostgres:
		logger.Info("connecting to PostgreSQL session store")
		db, err := database.New(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to ensure database schema: %w", err)
		}
		s := store.New(store.NewPostgresBackend(db.Pool, cfg.StoreSlot), opts...)
		return s, db.Close, nil

	case config.StoreRedis:
		logger.Info("connecting to Redis session store")
		client, err := database.NewRedis(ctx, cfg.RedisURL, cfg.RequestTimeout)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		s := store.New(store.NewRedisBackend(client, cfg.RedisKeyPrefix, cfg.StoreSlot), opts...)
		return s, func() { _ = client.Close() }, nil

	case config.StoreMemory:
		logger.Warn("memory session store: the session will not survive a restart")
		return store.New(store.NewMemoryBackend(), opts...), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("%w: %q", store.ErrUnknownBackend, cfg.StoreBackend)
	}
}

