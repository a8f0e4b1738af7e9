// Package server wires the long-running components together and
// supervises them.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	v1 "github.com/streamarr/streamarr/internal/api/v1"
	"github.com/streamarr/streamarr/internal/cache"
	"github.com/streamarr/streamarr/internal/catalog"
	"github.com/streamarr/streamarr/internal/config"
	"github.com/streamarr/streamarr/internal/dlm"
	"github.com/streamarr/streamarr/internal/events"
	"github.com/streamarr/streamarr/internal/media"
	"github.com/streamarr/streamarr/internal/notify"
	"github.com/streamarr/streamarr/internal/presence"
	"github.com/streamarr/streamarr/internal/quota"
	"github.com/streamarr/streamarr/internal/reconcile"
	"github.com/streamarr/streamarr/internal/request"
	"github.com/streamarr/streamarr/internal/syncer"
	"github.com/streamarr/streamarr/internal/webhook"
	"github.com/streamarr/streamarr/internal/writer"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 30 * time.Second

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == http.StatusOK { // only the first WriteHeader counts
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler, log *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		log.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// Runner builds the full component graph from a database handle and a
// loaded configuration, then runs everything until the context is
// canceled.
type Runner struct {
	db     *sql.DB
	cfg    *config.Config
	logger *slog.Logger
}

// NewRunner creates a runner.
func NewRunner(db *sql.DB, cfg *config.Config, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{db: db, cfg: cfg, logger: logger}
}

// Run starts all components and blocks until the context is canceled
// or a component fails. Returns context.Canceled on clean shutdown.
func (r *Runner) Run(ctx context.Context) error {
	eventLog := events.NewEventLog(r.db)
	bus := events.NewBus(eventLog, r.logger.With("component", "bus"))
	defer bus.Close()

	serial := writer.New(r.logger)

	mediaStore := media.NewStore(r.db)
	cacheStore := cache.NewStore(r.db)
	requestStore := request.NewStore(r.db)
	serverStore := dlm.NewServerStore(r.db)
	permStore := quota.NewPermissionStore(r.db)

	var catalogOpts []catalog.Option
	if r.cfg.Catalog.BaseURL != "" {
		catalogOpts = append(catalogOpts, catalog.WithBaseURL(r.cfg.Catalog.BaseURL))
	}
	catalogClient := catalog.NewClient(r.cfg.Catalog.APIKey, catalogOpts...)

	var checker presence.Checker
	if r.cfg.Plex != nil {
		checker = presence.NewClient(r.cfg.Plex.URL, r.cfg.Plex.Token, r.logger)
	}

	engine := reconcile.NewEngine(mediaStore, cacheStore, requestStore, checker, serial, bus, r.logger)
	quotaEngine := quota.NewEngine(requestStore, mediaStore, permStore, r.cfg.Requests.LegacyPermissions())
	controller := request.NewController(requestStore, mediaStore, quotaEngine,
		serverStore, catalogClient, serial, bus, r.logger)

	sync := syncer.New(serverStore, cacheStore, mediaStore, requestStore,
		engine, serial, bus, r.logger,
		syncer.WithInterval(time.Duration(r.cfg.Sync.Interval)))

	hooks := webhook.NewHandler(engine, mediaStore, catalogClient, serial, r.logger)

	agents := []notify.Agent{notify.NewLogAgent(r.logger)}
	for _, wh := range r.cfg.Notifications.Webhooks {
		agent := notify.Agent(notify.NewWebhookAgent(wh.URL))
		if wh.Admin {
			agent = notify.AdminOnly(agent)
		}
		agents = append(agents, agent)
	}
	notifier := notify.New(bus, agents, r.logger)

	apiServer, err := v1.New(v1.ServerDeps{
		Requests:   requestStore,
		Controller: controller,
		Media:      mediaStore,
		Reconcile:  engine,
		Quota:      quotaEngine,
		Perms:      permStore,
		Servers:    serverStore,
		Serial:     serial,
		Webhook:    hooks,
		Sync:       sync,
		EventLog:   eventLog,
	}, r.logger)
	if err != nil {
		return fmt.Errorf("build api server: %w", err)
	}

	mux := http.NewServeMux()
	apiServer.RegisterRoutes(mux)

	addr := net.JoinHostPort(r.cfg.Server.Host, strconv.Itoa(r.cfg.Server.Port))
	httpServer := &http.Server{
		Addr:        addr,
		Handler:     logRequests(mux, r.logger),
		ReadTimeout: 30 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return serial.Run(ctx) })
	g.Go(func() error { return sync.Run(ctx) })
	g.Go(func() error { return notifier.Run(ctx) })

	g.Go(func() error {
		r.logger.Info("http server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutCtx); err != nil {
			r.logger.Warn("http shutdown", "error", err)
		}
		return ctx.Err()
	})

	return g.Wait()
}
