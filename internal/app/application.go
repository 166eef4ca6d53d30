package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"chatdesk/internal/api"
	"chatdesk/internal/config"
	"chatdesk/internal/database"
	"chatdesk/internal/logger"
	"chatdesk/internal/router"
	"chatdesk/internal/session"
	"chatdesk/internal/sweeper"
	"chatdesk/internal/websocket"
	"chatdesk/pkg/interfaces"
	"chatdesk/pkg/types"
)

// Application owns every long-lived component of the chat server.
type Application struct {
	config       *config.Config
	log          *logrus.Entry
	store        *database.Manager
	registry     *websocket.Registry
	limiter      *router.RateLimiter
	adminLimiter *router.RateLimiter
	service      *session.Service
	sweeper      *sweeper.Sweeper
	apiServer    *api.Server
	httpServer   *http.Server
	listener     net.Listener
}

// NewApplication builds the component graph in dependency order:
// store, registry, router, limiters, service, sockets, API, sweeper.
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	log := logger.Component("app")

	// STEP 1: store, migrated and validated before anything can use it
	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	if applied, err := store.Migrate(); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	} else if len(applied) > 0 {
		log.WithField("migrations", applied).Info("database migrations applied")
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Database.Timeout)
	defer cancel()
	if err := store.HealthCheck(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}

	// STEP 2: presence registry and fan-out
	registry := websocket.NewRegistry()
	broadcast := router.NewRouter(registry, logger.Component("router"))

	// STEP 3: limiters for the socket path and for admin HTTP replies
	limiter := router.NewRateLimiter(cfg.Chat.RateLimit, cfg.Chat.RateWindow, nil)
	adminLimiter := router.NewRateLimiter(cfg.Chat.AdminHTTPRateLimit, cfg.Chat.RateWindow, nil)

	// STEP 4: chat operations shared by sockets and HTTP
	service := session.NewService(store, registry, broadcast, limiter, session.Options{
		HistoryLimit: cfg.Chat.HistoryLimit,
	}, logger.Component("session"))

	// STEP 5: socket endpoints
	wsOpts := websocket.ConnectionOptions{
		BufferSize:   cfg.WebSocket.BufferSize,
		WriteTimeout: cfg.WebSocket.WriteTimeout,
		ReadLimit:    cfg.WebSocket.ReadLimit,
	}
	checkOrigin := originChecker(cfg.HTTP.CORSOrigins)
	wsLog := logger.Component("ws")
	customerSocket := websocket.NewHandler(types.RoleCustomer, func(c *websocket.Connection) websocket.Session {
		return service.NewCustomerSession(c)
	}, wsOpts, checkOrigin, wsLog)
	adminSocket := websocket.NewHandler(types.RoleAdmin, func(c *websocket.Connection) websocket.Session {
		return service.NewAdminSession(c)
	}, wsOpts, checkOrigin, wsLog)

	// STEP 6: HTTP surface
	apiServer := api.NewServer(api.Dependencies{
		Service:        service,
		Registry:       registry,
		CustomerSocket: customerSocket,
		AdminSocket:    adminSocket,
		AdminLimiter:   adminLimiter,
	}, api.Options{
		CORSOrigins: cfg.HTTP.CORSOrigins,
		Upload: api.UploadOptions{
			Dir:       cfg.Upload.Dir,
			URLPrefix: cfg.Upload.URLPrefix,
			MaxBytes:  cfg.Upload.MaxBytes,
		},
	}, logger.Component("http"))

	// STEP 7: housekeeping
	sw := sweeper.NewSweeper(registry, []sweeper.Evictor{limiter, adminLimiter}, sweeper.Options{
		PingInterval:  cfg.WebSocket.PingInterval,
		EvictInterval: cfg.Chat.EvictInterval,
	}, logger.Component("sweeper"))

	httpServer := &http.Server{
		Addr:              cfg.Address(),
		Handler:           apiServer,
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:       cfg,
		log:          log,
		store:        store,
		registry:     registry,
		limiter:      limiter,
		adminLimiter: adminLimiter,
		service:      service,
		sweeper:      sw,
		apiServer:    apiServer,
		httpServer:   httpServer,
	}, nil
}

func openStore(cfg *config.Config) (*database.Manager, error) {
	dbCfg, err := cfg.DatabaseConfig()
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Chat.Location()
	if err != nil {
		return nil, err
	}
	store, err := database.NewManager(dbCfg, database.Options{
		AdminName: cfg.Chat.AdminName,
		Location:  loc,
		Logger:    logger.Component("store"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database manager: %w", err)
	}
	return store, nil
}

// Migrate applies pending migrations without starting the server.
func Migrate(cfg *config.Config) ([]string, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return store.Migrate()
}

// Start begins serving. It returns once the listener is bound and the
// sweeper is running; serving continues in the background.
func (app *Application) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}
	app.listener = ln

	if err := app.sweeper.Start(ctx); err != nil {
		ln.Close()
		return fmt.Errorf("failed to start sweeper: %w", err)
	}

	go func() {
		if err := app.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.log.WithError(err).Error("HTTP server error")
		}
	}()

	app.log.WithField("addr", ln.Addr().String()).Info("chatdesk started")
	return nil
}

// Stop shuts down in reverse order: HTTP, live sockets, sweeper, store.
func (app *Application) Stop(ctx context.Context) error {
	app.log.Info("shutting down chatdesk")
	var errs []error

	// STEP 1: stop accepting requests
	if err := app.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}

	// STEP 2: hijacked sockets are not covered by Shutdown
	app.registry.ForEach(nil, func(c interfaces.Connection) { _ = c.Close() })

	// STEP 3: housekeeping
	if err := app.sweeper.Stop(); err != nil && !errors.Is(err, sweeper.ErrNotRunning) {
		errs = append(errs, fmt.Errorf("sweeper shutdown: %w", err))
	}

	// STEP 4: drain writes and close the store
	if err := app.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("database shutdown: %w", err))
	}

	app.log.Info("chatdesk shutdown complete")
	return errors.Join(errs...)
}

// Handler exposes the full HTTP surface, mostly for tests.
func (app *Application) Handler() http.Handler {
	return app.apiServer
}

// GetAddr returns the bound address once started, else the configured one.
func (app *Application) GetAddr() string {
	if app.listener != nil {
		return app.listener.Addr().String()
	}
	return app.httpServer.Addr
}

// ShutdownTimeout bounds Stop when driven by a signal.
func (app *Application) ShutdownTimeout() time.Duration {
	return app.config.HTTP.ShutdownTimeout
}

// originChecker allows every origin when origins is empty or contains "*".
func originChecker(origins []string) func(*http.Request) bool {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			return nil
		}
		allowed[o] = true
	}
	if len(allowed) == 0 {
		return nil
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed[origin]
	}
}
