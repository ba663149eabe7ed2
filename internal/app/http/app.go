package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

type App struct {
	log    *slog.Logger
	server *http.Server
	addr   string
}

func New(log *slog.Logger, handler http.Handler, bindIP string, port int) *App {
	addr := net.JoinHostPort(bindIP, fmt.Sprint(port))
	return &App{
		log:  log,
		addr: addr,
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Run blocks until the listener fails or Stop is called. A normal shutdown
// returns nil.
func (a *App) Run() error {
	const op = "httpapp.Run"

	l, err := net.Listen("tcp", a.addr)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	a.log.Info("control api started", slog.String("addr", l.Addr().String()))

	if err := a.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Stop stops the control API, waiting for in-flight requests.
func (a *App) Stop(ctx context.Context) {
	const op = "httpapp.Stop"

	a.log.With(slog.String("op", op)).
		Info("stopping control api", slog.String("addr", a.addr))

	if err := a.server.Shutdown(ctx); err != nil {
		a.log.Error("control api shutdown failed", slog.String("error", err.Error()))
	}
}
