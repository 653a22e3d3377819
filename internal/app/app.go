// Package app wires the headless client daemon: the shared realtime
// transport, the notification feed, an optional chat session, local
// state, and the health/metrics listener.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/joho/godotenv"

	"deskchat/pkg/banner"
	"deskchat/pkg/chat"
	"deskchat/pkg/config"
	"deskchat/pkg/localstate"
	"deskchat/pkg/logger"
	"deskchat/pkg/models"
	"deskchat/pkg/notice"
	"deskchat/pkg/notify"
	"deskchat/pkg/realtime"
	"deskchat/pkg/state"
	"deskchat/pkg/ticketapi"
)

// App encapsulates the daemon components and lifecycle.
type App struct {
	cfg     *config.Config
	source  string
	version string

	viewer   models.User
	api      *ticketapi.Client
	rt       *realtime.Client
	feed     *notify.Feed
	session  *chat.Session
	notifier notice.Notifier

	srv    *http.Server
	cancel context.CancelFunc
}

// New initializes resources that do not require a running context: state
// directories, the local store, the API client and the transport. Nothing
// connects until Run.
func New(cfg *config.Config, source, version string) (*App, error) {
	_ = godotenv.Load(".env")

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	if err := state.EnsureStateDirs(cfg.Daemon.StateDir); err != nil {
		return nil, fmt.Errorf("state dirs: %w", err)
	}
	if err := localstate.Open(state.LocalDBPath(cfg.Daemon.StateDir)); err != nil {
		return nil, fmt.Errorf("open local state: %w", err)
	}

	api, err := ticketapi.NewClient(ticketapi.Config{Origin: cfg.API.Origin, Token: cfg.API.Token})
	if err != nil {
		return nil, err
	}

	viewer := models.User{ID: cfg.Viewer.ID, Name: cfg.Viewer.Name, Role: cfg.Viewer.Role}

	// a different login must not inherit the previous viewer's panel state
	var cached models.User
	if ok, err := localstate.Session(&cached); err == nil && ok && cached.ID != viewer.ID {
		logger.Info("viewer_changed", "cached", cached.ID, "viewer", viewer.ID)
		if err := localstate.ClearChatState(); err != nil {
			logger.Warn("chat_state_clear_failed", "error", err)
		}
		if err := localstate.ClearSession(); err != nil {
			logger.Warn("session_clear_failed", "error", err)
		}
	}
	if err := localstate.SetSession(viewer); err != nil {
		logger.Warn("session_cache_failed", "error", err)
	}

	rt := realtime.New(realtime.Config{
		AppKey:     cfg.Realtime.AppKey,
		Cluster:    cfg.Realtime.Cluster,
		ForceTLS:   cfg.Realtime.ForceTLS,
		Host:       cfg.Realtime.Host,
		Port:       cfg.Realtime.Port,
		Authorizer: api,
	})

	return &App{cfg: cfg, source: source, version: version, viewer: viewer, api: api, rt: rt, notifier: notice.LogNotifier{}}, nil
}

func validateConfig(cfg *config.Config) error {
	if cfg.API.Origin == "" {
		return fmt.Errorf("api.origin is required")
	}
	if cfg.Viewer.ID == 0 {
		return fmt.Errorf("viewer.id is required")
	}
	if cfg.Realtime.AppKey == "" {
		return fmt.Errorf("realtime.app_key is required")
	}
	return nil
}

// Run connects the transport, starts the controllers and the HTTP
// listener, and blocks until ctx is canceled or a fatal server error
// occurs.
func (a *App) Run(ctx context.Context) error {
	banner.Print(a.cfg, a.source, a.version)

	// transport failures surface as transient user notices; the client
	// reconnects on its own
	a.rt.OnError(func(err error) {
		a.notifier.Error("Chat connection error. Reconnecting...")
	})

	// a failed first connect is degraded, not fatal: the reconnect loop
	// comes up once the hub is reachable, and REST still works
	if err := a.rt.Connect(ctx); err != nil {
		logger.Warn("transport_initial_connect_failed", "error", err)
		go a.retryConnect(ctx)
	}

	a.feed = notify.NewFeed(a.viewer, a.api, notify.WrapTransport(a.rt), a.notifier)
	if err := a.feed.Start(ctx); err != nil {
		logger.Warn("feed_start_degraded", "error", err)
	}

	if a.cfg.Daemon.Ticket != 0 {
		a.session = chat.NewSession(a.cfg.Daemon.Ticket, a.viewer, a.api, chat.WrapTransport(a.rt), localstate.Handle{}, a.notifier)
		if err := a.session.Start(ctx); err != nil {
			logger.Warn("chat_start_degraded", "ticket", a.cfg.Daemon.Ticket, "error", err)
		}
	}

	rctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	if err := a.startResync(rctx); err != nil {
		cancel()
		return err
	}

	errCh := a.startHTTP()

	select {
	case <-ctx.Done():
		a.shutdown()
		return nil
	case err := <-errCh:
		a.shutdown()
		return err
	}
}

// retryConnect keeps trying the initial connection; once any dial
// succeeds the client's own reconnect loop takes over for later drops.
func (a *App) retryConnect(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-timeAfterReconnect():
		}
		if err := a.rt.Connect(ctx); err == nil {
			return
		}
	}
}

func (a *App) shutdown() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.session != nil {
		a.session.Close()
	}
	if a.feed != nil {
		a.feed.Close()
	}
	a.rt.Disconnect()
	if err := localstate.Close(); err != nil {
		logger.Warn("localstate_close_failed", "error", err)
	}
	if a.srv != nil {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = a.srv.Shutdown(sctx)
	}
	logger.Info("daemon_stopped")
}

// Feed exposes the notification feed (nil before Run).
func (a *App) Feed() *notify.Feed { return a.feed }

// Session exposes the attached chat session, or nil when none is
// configured.
func (a *App) Session() *chat.Session { return a.session }
