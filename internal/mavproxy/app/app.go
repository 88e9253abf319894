// Package app runs the proxy daemon: it serves the HTTP API and, on shutdown,
// stops the routing process before returning.
package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/volantvm/mavproxy/internal/mavproxy/config"
	"github.com/volantvm/mavproxy/internal/mavproxy/manager"
)

// Daemon coordinates HTTP serving, router autostart and graceful shutdown.
type Daemon struct {
	cfg     config.Config
	logger  *slog.Logger
	manager *manager.Manager
	http    *http.Server
}

// New constructs a Daemon with the provided configuration and handler.
func New(cfg config.Config, logger *slog.Logger, mgr *manager.Manager, handler http.Handler) *Daemon {
	return &Daemon{
		cfg:     cfg,
		logger:  logger,
		manager: mgr,
		http: &http.Server{
			Addr:              cfg.HTTPListen,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Run starts the router when configured to, serves HTTP and blocks until the
// context is canceled. No healthy router at boot is logged, not fatal.
func (d *Daemon) Run(ctx context.Context) error {
	if d.cfg.Autostart {
		if st, err := d.manager.Start(ctx); err != nil {
			d.logger.Warn("router autostart failed", "error", err)
		} else {
			d.logger.Info("router autostarted", "router", st.Router, "pid", st.PID)
		}
	}

	serverErr := make(chan error, 1)
	go func() {
		d.logger.Info("http server starting", "addr", d.cfg.HTTPListen)
		if err := d.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serverErr:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), d.cfg.StopTimeout+5*time.Second)
	defer cancel()
	if err := d.http.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	if err := d.manager.Stop(shutdownCtx); err != nil && !errors.Is(err, manager.ErrNotRunning) {
		d.logger.Error("stop router", "error", err)
		if runErr == nil {
			runErr = err
		}
	}
	return runErr
}
