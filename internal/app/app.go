package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"hearthsync/internal/sweep"
	"hearthsync/pkg/cache"
	"hearthsync/pkg/config"
	"hearthsync/pkg/fanout"
	"hearthsync/pkg/gateway"
	"hearthsync/pkg/hub"
	"hearthsync/pkg/logger"
	"hearthsync/pkg/queue"
	"hearthsync/pkg/state"
	"hearthsync/pkg/store"
)

// App encapsulates the server components and lifecycle.
type App struct {
	cfg     *config.Config
	addr    string
	dbPath  string
	version string

	snaps *cache.Snapshots
	q     *queue.Queue
	gw    *gateway.Gateway
	hub   *hub.Hub
	disp  *fanout.Dispatcher

	stopFanout  chan struct{}
	sweepCancel context.CancelFunc

	srv *http.Server
}

// New initializes everything that does not require a running context:
// state dirs, the store, the cache tiers, the queue and the gateway. Call
// Run to start fanout, sweep and the HTTP server.
func New(cfg *config.Config, rc *config.RuntimeConfig, addr, dbPath, version string) (*App, error) {
	_ = godotenv.Load(".env")

	if err := validateConfig(cfg, addr, dbPath); err != nil {
		return nil, err
	}
	config.SetRuntime(rc)

	if err := state.EnsureStateDirs(dbPath); err != nil {
		return nil, fmt.Errorf("failed to prepare state dirs under %s: %w", dbPath, err)
	}
	if err := store.Open(dbPath); err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", dbPath, err)
	}

	snaps, err := cache.New(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("failed to init snapshot cache: %w", err)
	}

	q := queue.NewQueue(cfg.Fanout.Queue.Capacity)
	queue.SetDefaultQueue(q)
	queue.SetMaxPooledBuffer(int(cfg.Fanout.Queue.MaxPooledBufferBytes))

	gw := gateway.New(cfg, snaps, q)
	h := hub.New(cfg.Hub.SubscriberBuffer)

	disp := fanout.NewDispatcher(q)
	fanout.RegisterDefaultHandlers(disp, h, gw)

	return &App{
		cfg:     cfg,
		addr:    addr,
		dbPath:  dbPath,
		version: version,
		snaps:   snaps,
		q:       q,
		gw:      gw,
		hub:     h,
		disp:    disp,
	}, nil
}

// Gateway exposes the mutation gateway, mainly for tests and tooling.
func (a *App) Gateway() *gateway.Gateway { return a.gw }

// Run starts fanout workers, the sweep scheduler and the HTTP server, and
// blocks until ctx is canceled or a fatal server error occurs.
func (a *App) Run(ctx context.Context) error {
	a.stopFanout = make(chan struct{})
	a.disp.Run(a.stopFanout, a.cfg.Fanout.Workers)

	cancel, err := sweep.Start(ctx, a.cfg, a.gw)
	if err != nil {
		return err
	}
	a.sweepCancel = cancel

	errCh := a.startHTTP()

	select {
	case <-ctx.Done():
		a.shutdown()
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		a.shutdown()
		return err
	}
}

// shutdown tears components down in dependency order: stop accepting
// requests, drain the queue so in-flight mutations broadcast, then close
// subscribers, cache and store.
func (a *App) shutdown() {
	if a.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.srv.Shutdown(ctx); err != nil {
			logger.Warn("http_shutdown_error", "error", err.Error())
		}
	}
	if a.sweepCancel != nil {
		a.sweepCancel()
	}

	a.q.CloseAndDrain()
	a.disp.Wait()
	close(a.stopFanout)

	a.hub.CloseAll()
	if err := a.snaps.Close(); err != nil {
		logger.Warn("cache_close_error", "error", err.Error())
	}
	if err := store.Close(); err != nil {
		logger.Warn("store_close_error", "error", err.Error())
	}
	logger.Info("shutdown_complete")
}

// validateConfig fails fast on configurations that cannot serve.
func validateConfig(cfg *config.Config, addr, dbPath string) error {
	if addr == "" {
		return fmt.Errorf("listen address required")
	}
	if dbPath == "" {
		return fmt.Errorf("db path required")
	}
	if cfg.Engagement.MaxCommentDepth < 1 {
		return fmt.Errorf("engagement.max_comment_depth must be >= 1")
	}
	if !cfg.Celebrations.Disabled && (cfg.Celebrations.WarmthThreshold <= 0 || cfg.Celebrations.WarmthThreshold > 1) {
		return fmt.Errorf("celebrations.warmth_threshold must be in (0, 1]")
	}
	if cfg.Fanout.Queue.Capacity < 1 {
		return fmt.Errorf("fanout.queue.capacity must be >= 1")
	}
	return nil
}
